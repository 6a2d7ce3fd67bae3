package room

import "errors"

// ErrorCode is the wire classification of a rejected action.
type ErrorCode string

const (
	CodeInvalidInput        ErrorCode = "InvalidInput"
	CodeRoomNotFound        ErrorCode = "RoomNotFound"
	CodeDuplicateName       ErrorCode = "DuplicateName"
	CodeNotInRoom           ErrorCode = "NotInRoom"
	CodeNotYourTurn         ErrorCode = "NotYourTurn"
	CodeInvalidAmount       ErrorCode = "InvalidAmount"
	CodeInsufficientBalance ErrorCode = "InsufficientBalance"
	CodeAlreadyPacked       ErrorCode = "AlreadyPacked"
	CodeForbidden           ErrorCode = "Forbidden"
	CodeEmptyPool           ErrorCode = "EmptyPool"
	CodeNotFound            ErrorCode = "NotFound"
	CodeCannotRemoveOwner   ErrorCode = "CannotRemoveOwner"
	CodeTargetInactive      ErrorCode = "TargetInactive"
	CodeRejoinFailed        ErrorCode = "RejoinFailed"
)

// Error is a recoverable, classified rejection. It never leaves a room
// partially mutated.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error with the same code, so wrapped or re-worded
// errors still satisfy errors.Is against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrInvalidInput        = &Error{Code: CodeInvalidInput, Message: "invalid input"}
	ErrRoomsExhausted      = &Error{Code: CodeInvalidInput, Message: "no room codes available"}
	ErrRoomNotFound        = &Error{Code: CodeRoomNotFound, Message: "room not found"}
	ErrDuplicateName       = &Error{Code: CodeDuplicateName, Message: "name already taken in this room"}
	ErrNotInRoom           = &Error{Code: CodeNotInRoom, Message: "not in a room"}
	ErrNotYourTurn         = &Error{Code: CodeNotYourTurn, Message: "not your turn"}
	ErrInvalidAmount       = &Error{Code: CodeInvalidAmount, Message: "amount must be positive"}
	ErrInsufficientBalance = &Error{Code: CodeInsufficientBalance, Message: "insufficient balance"}
	ErrAlreadyPacked       = &Error{Code: CodeAlreadyPacked, Message: "already packed"}
	ErrForbidden           = &Error{Code: CodeForbidden, Message: "only the room owner can do that"}
	ErrEmptyPool           = &Error{Code: CodeEmptyPool, Message: "pool is empty"}
	ErrNotFound            = &Error{Code: CodeNotFound, Message: "participant not found"}
	ErrCannotRemoveOwner   = &Error{Code: CodeCannotRemoveOwner, Message: "cannot remove the room owner"}
	ErrTargetInactive      = &Error{Code: CodeTargetInactive, Message: "target has packed"}
	ErrRejoinFailed        = &Error{Code: CodeRejoinFailed, Message: "room or participant no longer exists"}
	ErrRoomFull            = &Error{Code: CodeInvalidInput, Message: "room is full"}
	ErrPoolOverflow        = &Error{Code: CodeInvalidAmount, Message: "bid would overflow the pool"}
)

// invalidInput returns an InvalidInput error with a specific message.
func invalidInput(msg string) *Error {
	return &Error{Code: CodeInvalidInput, Message: msg}
}

// CodeOf extracts the wire code from err. Unclassified errors report
// InvalidInput.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInvalidInput
}

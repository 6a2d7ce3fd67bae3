// models/models.go
package models

// ParticipantView 参与者在快照中的视图
type ParticipantView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Balance   int64  `json:"balance"`
	IsOwner   bool   `json:"isOwner"`
	Packed    bool   `json:"packed"`
	Connected bool   `json:"connected"`
}

// LogItem 房间日志条目
type LogItem struct {
	Timestamp int64  `json:"timestamp"` // unix millis
	Content   string `json:"content"`
}

// RoomSnapshot 房间完整状态，每次变更后广播
type RoomSnapshot struct {
	Code            string            `json:"code"`
	StartingBalance int64             `json:"startingBalance"`
	Participants    []ParticipantView `json:"participants"`
	Pool            int64             `json:"pool"`
	CurrentTurn     int               `json:"currentTurn"`
	CurrentTurnID   string            `json:"currentTurnId,omitempty"`
	Round           int               `json:"round"`
	TotalBids       int               `json:"totalBids"`
	Logs            []LogItem         `json:"logs"`
}

// RoomSummary is the short form used by the admin listing.
type RoomSummary struct {
	Code         string `json:"code"`
	Participants int    `json:"participants"`
	Pool         int64  `json:"pool"`
	Round        int    `json:"round"`
}

// SessionView describes one live connection bound to a room.
type SessionView struct {
	ID            string `json:"id"`
	ParticipantID string `json:"participantId"`
	RemoteAddr    string `json:"remoteAddr"`
	ConnectedAt   int64  `json:"connectedAt"` // unix millis
	LastActive    int64  `json:"lastActive"`  // unix millis
}

type EventKind string

const (
	EventPlayerJoined       EventKind = "player_joined"
	EventPlayerRejoined     EventKind = "player_rejoined"
	EventPlayerDisconnected EventKind = "player_disconnected"
	EventBidPlaced          EventKind = "bid_placed"
	EventPlayerPacked       EventKind = "player_packed"
	EventPoolReset          EventKind = "pool_reset"
	EventWinnerDeclared     EventKind = "winner_declared"
	EventPlayerLeft         EventKind = "player_left"
	EventPlayerRemoved      EventKind = "player_removed"
	EventTurnChanged        EventKind = "turn_changed"
)

// RoomEvent carries just enough for a client to animate a transition.
type RoomEvent struct {
	Kind       EventKind `json:"kind"`
	RoomCode   string    `json:"roomCode"`
	PlayerID   string    `json:"playerId,omitempty"`
	PlayerName string    `json:"playerName,omitempty"`
	Amount     int64     `json:"amount,omitempty"`
	Pool       int64     `json:"pool"`
	Round      int       `json:"round,omitempty"`
	Auto       bool      `json:"auto,omitempty"`
	NextTurnID string    `json:"nextTurnId,omitempty"`
	NewOwnerID string    `json:"newOwnerId,omitempty"`
	ByID       string    `json:"byId,omitempty"`
}

// --- 客户端请求 ---

type CreateRoomRequest struct {
	OwnerName       string `json:"ownerName"`
	StartingBalance int64  `json:"startingBalance"`
}

type JoinRoomRequest struct {
	PlayerName string `json:"playerName"`
	RoomCode   string `json:"roomCode"`
}

type RejoinRoomRequest struct {
	RoomCode      string `json:"roomCode"`
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
}

type PlaceBidRequest struct {
	Amount int64 `json:"amount"`
}

type DeclareWinnerRequest struct {
	WinnerID string `json:"winnerId"`
}

type TargetRequest struct {
	TargetID string `json:"targetId"`
}

// --- 服务端响应 ---

// JoinedResponse is sent to the connection that created, joined or rejoined a room.
type JoinedResponse struct {
	Room        RoomSnapshot    `json:"room"`
	Participant ParticipantView `json:"participant"`
}

type RemovedNotice struct {
	RoomCode string `json:"roomCode"`
	ByID     string `json:"byId"`
}

type ErrorResponse struct {
	Action  string `json:"action"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

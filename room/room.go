// room/room.go
package room

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/coder/quartz"
	"github.com/google/uuid"

	"github.com/wfunc/poolroom/models"
)

const (
	// MaxNameLength 玩家名称最大长度（字符数）
	MaxNameLength = 24
	// MaxParticipants 每个房间的最大人数
	MaxParticipants = 50
	// MaxStartingBalance keeps the total stake of a full room within int64.
	MaxStartingBalance = math.MaxInt64 / MaxParticipants
)

// Participant 房间中的玩家
type Participant struct {
	ID       string
	Name     string
	Balance  int64
	IsOwner  bool
	Packed   bool
	ConnID   string // 当前绑定的连接，断线时为空
	Epoch    uint64 // 每次绑定连接时递增
	JoinedAt time.Time
}

// Connected reports whether a live connection is bound to the participant.
func (p *Participant) Connected() bool {
	return p.ConnID != ""
}

// View returns the wire form of the participant.
func (p *Participant) View() models.ParticipantView {
	return models.ParticipantView{
		ID:        p.ID,
		Name:      p.Name,
		Balance:   p.Balance,
		IsOwner:   p.IsOwner,
		Packed:    p.Packed,
		Connected: p.Connected(),
	}
}

// Room 是游戏房间的核心结构。
//
// Every method that reads or mutates a Room expects the caller to hold the
// room lock, which Manager.Do takes on its behalf. Mutating methods validate
// everything before touching state, so an error always means "unchanged".
type Room struct {
	Code            string
	StartingBalance int64
	Participants    []*Participant
	Pool            int64
	CurrentTurn     int
	Round           int
	TotalBids       int
	CreatedAt       time.Time

	log    *EventLog
	clock  quartz.Clock
	mu     sync.Mutex
	closed bool
}

func newRoom(code string, startingBalance int64, clock quartz.Clock, logCapacity int) *Room {
	return &Room{
		Code:            code,
		StartingBalance: startingBalance,
		Participants:    make([]*Participant, 0, 4),
		Round:           1,
		CreatedAt:       clock.Now(),
		log:             NewEventLog(logCapacity),
		clock:           clock,
	}
}

// --- 查询 ---

// Participant looks a participant up by id.
func (r *Room) Participant(id string) *Participant {
	if i := r.indexOf(id); i >= 0 {
		return r.Participants[i]
	}
	return nil
}

// Current returns the participant whose turn it is.
func (r *Room) Current() *Participant {
	if r.CurrentTurn < 0 || r.CurrentTurn >= len(r.Participants) {
		return nil
	}
	return r.Participants[r.CurrentTurn]
}

// Owner returns the room owner, or nil for an empty room.
func (r *Room) Owner() *Participant {
	for _, p := range r.Participants {
		if p.IsOwner {
			return p
		}
	}
	return nil
}

// Log returns the room history, oldest first.
func (r *Room) Log() []LogEntry {
	return r.log.Entries()
}

// Snapshot returns a deep copy of the room for broadcasting.
func (r *Room) Snapshot() models.RoomSnapshot {
	views := make([]models.ParticipantView, len(r.Participants))
	for i, p := range r.Participants {
		views[i] = p.View()
	}
	snap := models.RoomSnapshot{
		Code:            r.Code,
		StartingBalance: r.StartingBalance,
		Participants:    views,
		Pool:            r.Pool,
		CurrentTurn:     r.CurrentTurn,
		Round:           r.Round,
		TotalBids:       r.TotalBids,
		Logs:            r.log.items(),
	}
	if cur := r.Current(); cur != nil {
		snap.CurrentTurnID = cur.ID
	}
	return snap
}

// Summary returns the short listing form of the room.
func (r *Room) Summary() models.RoomSummary {
	return models.RoomSummary{
		Code:         r.Code,
		Participants: len(r.Participants),
		Pool:         r.Pool,
		Round:        r.Round,
	}
}

func (r *Room) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, p := range r.Participants {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (r *Room) nameTaken(name string) bool {
	for _, p := range r.Participants {
		if strings.EqualFold(p.Name, name) {
			return true
		}
	}
	return false
}

func (r *Room) logf(format string, args ...interface{}) {
	r.log.Append(r.clock.Now(), fmt.Sprintf(format, args...))
}

func (r *Room) event(kind models.EventKind, p *Participant) models.RoomEvent {
	ev := models.RoomEvent{
		Kind:     kind,
		RoomCode: r.Code,
		Pool:     r.Pool,
	}
	if p != nil {
		ev.PlayerID = p.ID
		ev.PlayerName = p.Name
	}
	if cur := r.Current(); cur != nil {
		ev.NextTurnID = cur.ID
	}
	return ev
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalidInput("name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", invalidInput(fmt.Sprintf("name must be at most %d characters", MaxNameLength))
	}
	return name, nil
}

// addParticipant appends a participant with a fresh id. The first
// participant of a room becomes its owner.
func (r *Room) addParticipant(name, connID string) *Participant {
	p := &Participant{
		ID:       uuid.NewString(),
		Name:     name,
		Balance:  r.StartingBalance,
		IsOwner:  len(r.Participants) == 0,
		ConnID:   connID,
		Epoch:    1,
		JoinedAt: r.clock.Now(),
	}
	r.Participants = append(r.Participants, p)
	r.normalizeTurn()
	return p
}

// removeAt drops the participant at idx and keeps CurrentTurn pointing at
// the same logical player where possible.
func (r *Room) removeAt(idx int) *Participant {
	p := r.Participants[idx]
	r.Participants = append(r.Participants[:idx], r.Participants[idx+1:]...)
	if idx < r.CurrentTurn {
		r.CurrentTurn--
	}
	r.normalizeTurn()
	return p
}

// --- 状态机操作 ---

// Join adds a new participant bound to connID.
func (r *Room) Join(name, connID string) (*Participant, []models.RoomEvent, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, nil, err
	}
	if r.nameTaken(name) {
		return nil, nil, ErrDuplicateName
	}
	if len(r.Participants) >= MaxParticipants {
		return nil, nil, ErrRoomFull
	}

	p := r.addParticipant(name, connID)
	r.logf("%s joined", p.Name)
	return p, []models.RoomEvent{r.event(models.EventPlayerJoined, p)}, nil
}

// Rejoin rebinds an existing participant, found by id, to connID.
func (r *Room) Rejoin(participantID, connID string) (*Participant, []models.RoomEvent, error) {
	p := r.Participant(participantID)
	if p == nil {
		return nil, nil, ErrRejoinFailed
	}

	p.ConnID = connID
	p.Epoch++
	r.logf("%s reconnected", p.Name)
	return p, []models.RoomEvent{r.event(models.EventPlayerRejoined, p)}, nil
}

// PlaceBid moves amount from the participant's balance into the pool and
// passes the turn on.
func (r *Room) PlaceBid(participantID string, amount int64) ([]models.RoomEvent, error) {
	p := r.Participant(participantID)
	if p == nil {
		return nil, ErrNotInRoom
	}
	if cur := r.Current(); cur == nil || cur.ID != p.ID {
		return nil, ErrNotYourTurn
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if amount > p.Balance {
		return nil, ErrInsufficientBalance
	}
	if r.Pool > math.MaxInt64-amount {
		return nil, ErrPoolOverflow
	}

	p.Balance -= amount
	r.Pool += amount
	r.TotalBids++
	r.logf("%s bid %d (pool %d)", p.Name, amount, r.Pool)
	r.advanceTurn()

	ev := r.event(models.EventBidPlaced, p)
	ev.Amount = amount
	return []models.RoomEvent{ev}, nil
}

// Pack folds the participant for the rest of the round. When at most one
// active participant is left the round settles automatically.
func (r *Room) Pack(participantID string) ([]models.RoomEvent, error) {
	idx := r.indexOf(participantID)
	if idx < 0 {
		return nil, ErrNotInRoom
	}
	p := r.Participants[idx]
	if idx != r.CurrentTurn {
		return nil, ErrNotYourTurn
	}
	if p.Packed {
		return nil, ErrAlreadyPacked
	}

	p.Packed = true
	r.logf("%s packed", p.Name)
	r.advanceTurn()

	if r.activeCount() > 1 {
		return []models.RoomEvent{r.event(models.EventPlayerPacked, p)}, nil
	}

	// Last player standing. A solo room has nobody left, so the packer
	// takes back their own stake.
	winner := r.firstActive()
	if winner < 0 {
		winner = idx
	}
	packed := r.event(models.EventPlayerPacked, p)
	won := r.settle(winner, true, nil)
	packed.NextTurnID = won.NextTurnID
	packed.Pool = won.Pool
	return []models.RoomEvent{packed, won}, nil
}

// ResetPool restores the room to its starting position. Owner only.
func (r *Room) ResetPool(requesterID string) ([]models.RoomEvent, error) {
	requester := r.Participant(requesterID)
	if requester == nil {
		return nil, ErrNotInRoom
	}
	if !requester.IsOwner {
		return nil, ErrForbidden
	}

	previous := r.Pool
	r.Pool = 0
	r.Round = 1
	r.TotalBids = 0
	r.CurrentTurn = 0
	for _, p := range r.Participants {
		p.Balance = r.StartingBalance
		p.Packed = false
	}
	r.logf("%s reset the game (pool was %d)", requester.Name, previous)

	ev := r.event(models.EventPoolReset, requester)
	ev.Amount = previous
	ev.ByID = requester.ID
	return []models.RoomEvent{ev}, nil
}

// DeclareWinner pays the pool to winnerID. Owner only.
func (r *Room) DeclareWinner(requesterID, winnerID string) ([]models.RoomEvent, error) {
	requester := r.Participant(requesterID)
	if requester == nil {
		return nil, ErrNotInRoom
	}
	if !requester.IsOwner {
		return nil, ErrForbidden
	}
	if r.Pool <= 0 {
		return nil, ErrEmptyPool
	}
	idx := r.indexOf(winnerID)
	if idx < 0 {
		return nil, ErrNotFound
	}

	return []models.RoomEvent{r.settle(idx, false, requester)}, nil
}

// Remove kicks targetID out of the room. Owner only; the owner cannot be
// removed.
func (r *Room) Remove(requesterID, targetID string) (*Participant, []models.RoomEvent, error) {
	requester := r.Participant(requesterID)
	if requester == nil {
		return nil, nil, ErrNotInRoom
	}
	if !requester.IsOwner {
		return nil, nil, ErrForbidden
	}
	idx := r.indexOf(targetID)
	if idx < 0 {
		return nil, nil, ErrNotFound
	}
	if r.Participants[idx].IsOwner {
		return nil, nil, ErrCannotRemoveOwner
	}

	target := r.removeAt(idx)
	r.logf("%s was removed by %s", target.Name, requester.Name)

	ev := r.event(models.EventPlayerRemoved, target)
	ev.ByID = requester.ID
	return target, []models.RoomEvent{ev}, nil
}

// ChangeTurn hands the turn to targetID regardless of rotation. Owner only.
func (r *Room) ChangeTurn(requesterID, targetID string) ([]models.RoomEvent, error) {
	requester := r.Participant(requesterID)
	if requester == nil {
		return nil, ErrNotInRoom
	}
	if !requester.IsOwner {
		return nil, ErrForbidden
	}
	idx := r.indexOf(targetID)
	if idx < 0 {
		return nil, ErrNotFound
	}
	target := r.Participants[idx]
	if target.Packed {
		return nil, ErrTargetInactive
	}

	r.CurrentTurn = idx
	r.logf("%s gave the turn to %s", requester.Name, target.Name)

	ev := r.event(models.EventTurnChanged, target)
	ev.ByID = requester.ID
	return []models.RoomEvent{ev}, nil
}

// Leave removes the participant. Ownership passes to the earliest-joined
// remaining participant. The registry deletes the room once it is empty.
func (r *Room) Leave(participantID string) ([]models.RoomEvent, error) {
	idx := r.indexOf(participantID)
	if idx < 0 {
		return nil, ErrNotInRoom
	}

	p := r.removeAt(idx)
	r.logf("%s left", p.Name)
	ev := r.event(models.EventPlayerLeft, p)

	if p.IsOwner && len(r.Participants) > 0 {
		next := r.Participants[0]
		next.IsOwner = true
		ev.NewOwnerID = next.ID
		r.logf("%s is now the owner", next.Name)
	}
	return []models.RoomEvent{ev}, nil
}

// Disconnect clears the participant's connection if connID is still the one
// bound to it, and returns the epoch a removal timer must match.
func (r *Room) Disconnect(participantID, connID string) (uint64, []models.RoomEvent, bool) {
	p := r.Participant(participantID)
	if p == nil || connID == "" || p.ConnID != connID {
		return 0, nil, false
	}

	p.ConnID = ""
	r.logf("%s disconnected", p.Name)
	return p.Epoch, []models.RoomEvent{r.event(models.EventPlayerDisconnected, p)}, true
}

// DisconnectTimeout removes a participant whose grace period expired. It is
// a no-op if the participant reconnected since the epoch was issued.
func (r *Room) DisconnectTimeout(participantID string, epoch uint64) ([]models.RoomEvent, bool) {
	p := r.Participant(participantID)
	if p == nil || p.Connected() || p.Epoch != epoch {
		return nil, false
	}

	r.logf("%s did not reconnect in time", p.Name)
	events, err := r.Leave(participantID)
	if err != nil {
		return nil, false
	}
	return events, true
}

// settle pays the pool to the participant at winnerIdx and starts the next
// round with the winner to act. Both the last-player-standing path and an
// owner's declaration go through here.
func (r *Room) settle(winnerIdx int, auto bool, by *Participant) models.RoomEvent {
	winner := r.Participants[winnerIdx]
	amount := r.Pool
	wonRound := r.Round

	winner.Balance = addCapped(winner.Balance, amount)
	r.Pool = 0
	r.Round++
	r.TotalBids = 0
	for _, p := range r.Participants {
		p.Packed = false
	}
	r.CurrentTurn = winnerIdx

	if auto {
		r.logf("System (Auto): %s wins %d as the last player standing", winner.Name, amount)
	} else {
		r.logf("%s declared %s the winner of %d", by.Name, winner.Name, amount)
	}

	ev := r.event(models.EventWinnerDeclared, winner)
	ev.Amount = amount
	ev.Round = wonRound
	ev.Auto = auto
	if by != nil {
		ev.ByID = by.ID
	}
	return ev
}

// addCapped adds two non-negative amounts, saturating at math.MaxInt64.
func addCapped(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

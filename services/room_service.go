// services/room_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/coder/quartz"

	"github.com/wfunc/poolroom/broadcast"
	"github.com/wfunc/poolroom/logger"
	"github.com/wfunc/poolroom/models"
	"github.com/wfunc/poolroom/monitor"
	"github.com/wfunc/poolroom/network"
	"github.com/wfunc/poolroom/persistence"
	"github.com/wfunc/poolroom/room"
	"github.com/wfunc/poolroom/session"
	"github.com/wfunc/poolroom/timer"
)

type Options struct {
	DefaultStartingBalance int64
	DisconnectGrace        time.Duration
	Clock                  quartz.Clock
}

// RoomService executes client actions against the rooms and fans the
// results out to every subscribed connection.
type RoomService struct {
	rooms          *room.Manager
	sessions       *session.Manager
	broadcaster    broadcast.Broadcaster
	tracker        *session.Tracker
	monitor        *monitor.Monitor
	recorder       *persistence.Recorder
	clock          quartz.Clock
	defaultBalance int64
}

// NewRoomService wires the service. recorder may be nil when no ledger is
// configured.
func NewRoomService(
	rooms *room.Manager,
	sessions *session.Manager,
	broadcaster broadcast.Broadcaster,
	timers *timer.TimerManager,
	mon *monitor.Monitor,
	recorder *persistence.Recorder,
	opts Options,
) *RoomService {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	s := &RoomService{
		rooms:          rooms,
		sessions:       sessions,
		broadcaster:    broadcaster,
		monitor:        mon,
		recorder:       recorder,
		clock:          opts.Clock,
		defaultBalance: opts.DefaultStartingBalance,
	}
	s.tracker = session.NewTracker(timers, opts.DisconnectGrace, s.expire)
	return s
}

func (s *RoomService) Tracker() *session.Tracker {
	return s.tracker
}

// CreateRoom opens a new room with the caller as owner. A caller already in
// a room leaves it once the new room exists.
func (s *RoomService) CreateRoom(ctx context.Context, sess *session.Session, req models.CreateRoomRequest) error {
	previous, _ := sess.Binding()

	balance := req.StartingBalance
	if balance == 0 {
		balance = s.defaultBalance
	}
	r, owner, err := s.rooms.CreateRoom(req.OwnerName, balance, sess.ID)
	if err != nil {
		return err
	}
	logger.Log.Infof("Room %s created by %s", r.Code, owner.Name)

	err = s.rooms.Do(r.Code, func(r *room.Room) error {
		s.attach(sess, r, owner, network.MsgTypeRoomJoined)
		s.publish(r, nil)
		return nil
	})
	if err != nil {
		return err
	}
	s.leavePrevious(sess, previous)
	s.roomsChanged()
	return nil
}

// JoinRoom adds the caller to an existing room. A rejected join leaves the
// caller where it was.
func (s *RoomService) JoinRoom(ctx context.Context, sess *session.Session, req models.JoinRoomRequest) error {
	code := strings.TrimSpace(req.RoomCode)
	if !room.ValidCode(code) {
		return room.ErrRoomNotFound
	}
	previous, _ := sess.Binding()

	err := s.rooms.Do(code, func(r *room.Room) error {
		p, events, err := r.Join(req.PlayerName, sess.ID)
		if err != nil {
			return err
		}
		s.attach(sess, r, p, network.MsgTypeRoomJoined)
		s.publish(r, events)
		return nil
	})
	if err != nil {
		return err
	}
	s.leavePrevious(sess, previous)
	return nil
}

// RejoinRoom rebinds an existing participant to this connection. The
// connection it replaces loses its binding and stops receiving updates.
func (s *RoomService) RejoinRoom(ctx context.Context, sess *session.Session, req models.RejoinRoomRequest) error {
	code := strings.TrimSpace(req.RoomCode)
	previous, _ := sess.Binding()

	err := s.rooms.Do(code, func(r *room.Room) error {
		existing := r.Participant(req.ParticipantID)
		if existing == nil {
			return room.ErrRejoinFailed
		}
		if req.Name != "" && !strings.EqualFold(strings.TrimSpace(req.Name), existing.Name) {
			return room.ErrRejoinFailed
		}
		replaced := existing.ConnID

		p, events, err := r.Rejoin(req.ParticipantID, sess.ID)
		if err != nil {
			return err
		}
		if replaced != "" && replaced != sess.ID {
			s.detach(replaced, r.Code, p.ID)
		}
		s.tracker.Cancel(r.Code, p.ID)
		s.attach(sess, r, p, network.MsgTypeRejoined)
		s.publish(r, events)
		return nil
	})
	if errors.Is(err, room.ErrRoomNotFound) {
		return room.ErrRejoinFailed
	}
	if err != nil {
		return err
	}
	s.leavePrevious(sess, previous)
	s.pendingChanged()
	return nil
}

func (s *RoomService) PlaceBid(ctx context.Context, sess *session.Session, req models.PlaceBidRequest) error {
	return s.act(sess, func(r *room.Room, pid string) ([]models.RoomEvent, error) {
		return r.PlaceBid(pid, req.Amount)
	})
}

func (s *RoomService) PackCards(ctx context.Context, sess *session.Session) error {
	return s.act(sess, func(r *room.Room, pid string) ([]models.RoomEvent, error) {
		return r.Pack(pid)
	})
}

func (s *RoomService) ResetPool(ctx context.Context, sess *session.Session) error {
	return s.act(sess, func(r *room.Room, pid string) ([]models.RoomEvent, error) {
		return r.ResetPool(pid)
	})
}

func (s *RoomService) DeclareWinner(ctx context.Context, sess *session.Session, req models.DeclareWinnerRequest) error {
	return s.act(sess, func(r *room.Room, pid string) ([]models.RoomEvent, error) {
		return r.DeclareWinner(pid, req.WinnerID)
	})
}

// RemovePlayer kicks the target out; its connection, if any, is told why.
func (s *RoomService) RemovePlayer(ctx context.Context, sess *session.Session, req models.TargetRequest) error {
	return s.act(sess, func(r *room.Room, pid string) ([]models.RoomEvent, error) {
		target, events, err := r.Remove(pid, req.TargetID)
		if err != nil {
			return nil, err
		}
		if target.ConnID != "" {
			notice, _ := json.Marshal(models.RemovedNotice{RoomCode: r.Code, ByID: pid})
			if err := s.broadcaster.SendToSession(target.ConnID, network.MsgTypeRemoved, notice); err != nil {
				logger.Log.Debugf("Removed notice for %s not delivered: %v", target.ID, err)
			}
			s.detach(target.ConnID, r.Code, target.ID)
		}
		s.tracker.Cancel(r.Code, target.ID)
		return events, nil
	})
}

func (s *RoomService) ChangeTurn(ctx context.Context, sess *session.Session, req models.TargetRequest) error {
	return s.act(sess, func(r *room.Room, pid string) ([]models.RoomEvent, error) {
		return r.ChangeTurn(pid, req.TargetID)
	})
}

func (s *RoomService) LeaveRoom(ctx context.Context, sess *session.Session) error {
	b, _ := sess.Binding()
	err := s.act(sess, func(r *room.Room, pid string) ([]models.RoomEvent, error) {
		events, err := r.Leave(pid)
		if err != nil {
			return nil, err
		}
		s.broadcaster.Unsubscribe(r.Code, sess.ID)
		return events, nil
	})
	if err == nil {
		sess.UnbindIf(b)
		logger.Log.Infof("Session %s left room %s", sess.ID, b.RoomCode)
	}
	return err
}

// Disconnect handles a dropped connection. The participant stays in the
// room for the grace period and may rejoin from another connection.
func (s *RoomService) Disconnect(sess *session.Session) {
	b := sess.Unbind()
	if b.RoomCode == "" {
		return
	}
	s.broadcaster.Unsubscribe(b.RoomCode, sess.ID)

	err := s.rooms.Do(b.RoomCode, func(r *room.Room) error {
		epoch, events, ok := r.Disconnect(b.ParticipantID, sess.ID)
		if !ok {
			return nil
		}
		s.tracker.ScheduleRemoval(r.Code, b.ParticipantID, epoch)
		s.publish(r, events)
		return nil
	})
	if err != nil && !errors.Is(err, room.ErrRoomNotFound) {
		logger.Log.Warnf("Disconnect of session %s: %v", sess.ID, err)
	}
	s.pendingChanged()
}

// expire runs when a grace timer fires.
func (s *RoomService) expire(code, participantID string, epoch uint64) {
	err := s.rooms.Do(code, func(r *room.Room) error {
		events, removed := r.DisconnectTimeout(participantID, epoch)
		if removed {
			logger.Log.Infof("Participant %s removed from room %s after grace period", participantID, code)
			s.publish(r, events)
		}
		return nil
	})
	if err != nil && !errors.Is(err, room.ErrRoomNotFound) {
		logger.Log.Warnf("Grace expiry for %s in room %s: %v", participantID, code, err)
	}
	s.roomsChanged()
	s.pendingChanged()
}

// Snapshot returns the current state of a room for read-only callers.
func (s *RoomService) Snapshot(code string) (models.RoomSnapshot, error) {
	return s.rooms.Snapshot(code)
}

func (s *RoomService) Rooms() []models.RoomSummary {
	return s.rooms.Rooms()
}

func (s *RoomService) RoomCount() int {
	return s.rooms.Count()
}

// act runs fn for the participant bound to sess, under the room lock, and
// publishes what it returns.
func (s *RoomService) act(sess *session.Session, fn func(r *room.Room, pid string) ([]models.RoomEvent, error)) error {
	b, ok := sess.Binding()
	if !ok {
		return room.ErrNotInRoom
	}

	err := s.rooms.Do(b.RoomCode, func(r *room.Room) error {
		p := r.Participant(b.ParticipantID)
		if p == nil || p.ConnID != sess.ID {
			return room.ErrNotInRoom
		}
		events, err := fn(r, p.ID)
		if err != nil {
			return err
		}
		s.publish(r, events)
		return nil
	})
	if errors.Is(err, room.ErrRoomNotFound) || errors.Is(err, room.ErrNotInRoom) {
		sess.UnbindIf(b)
		err = room.ErrNotInRoom
	}
	s.roomsChanged()
	return err
}

// leavePrevious takes the participant sess used to hold out of its room,
// after sess has been bound elsewhere. It runs under its own room lock.
func (s *RoomService) leavePrevious(sess *session.Session, previous session.Binding) {
	if previous.RoomCode == "" {
		return
	}
	current, _ := sess.Binding()
	if current == previous {
		return
	}

	err := s.rooms.Do(previous.RoomCode, func(r *room.Room) error {
		if current.RoomCode != r.Code {
			s.broadcaster.Unsubscribe(r.Code, sess.ID)
		}
		p := r.Participant(previous.ParticipantID)
		if p == nil || p.ConnID != sess.ID {
			return nil
		}
		events, err := r.Leave(p.ID)
		if err != nil {
			return err
		}
		s.publish(r, events)
		return nil
	})
	if err != nil && !errors.Is(err, room.ErrRoomNotFound) {
		logger.Log.Warnf("Session %s leaving room %s: %v", sess.ID, previous.RoomCode, err)
	}
	s.roomsChanged()
}

// attach binds sess to p and sends it the directed join reply. Caller holds
// the room lock.
func (s *RoomService) attach(sess *session.Session, r *room.Room, p *room.Participant, msgID uint16) {
	sess.Bind(r.Code, p.ID)
	s.broadcaster.Subscribe(r.Code, sess.ID)

	reply, err := json.Marshal(models.JoinedResponse{Room: r.Snapshot(), Participant: p.View()})
	if err != nil {
		logger.Log.Errorf("Failed to marshal join reply: %v", err)
		return
	}
	if err := sess.Send(msgID, reply); err != nil {
		logger.Log.Warnf("Join reply to session %s dropped: %v", sess.ID, err)
	}
}

// detach cuts a connection loose from a participant it no longer owns.
func (s *RoomService) detach(sessionID, code, participantID string) {
	s.broadcaster.Unsubscribe(code, sessionID)
	if old, ok := s.sessions.Get(sessionID); ok {
		old.UnbindIf(session.Binding{RoomCode: code, ParticipantID: participantID})
	}
}

// publish sends each event followed by a fresh snapshot. Caller holds the
// room lock, which keeps per-room ordering across publishers.
func (s *RoomService) publish(r *room.Room, events []models.RoomEvent) {
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			logger.Log.Errorf("Failed to marshal %s event: %v", ev.Kind, err)
			continue
		}
		_ = s.broadcaster.BroadcastToRoom(r.Code, network.MsgTypeRoomEvent, data)

		if ev.Kind == models.EventWinnerDeclared {
			s.settled(ev)
		}
	}

	data, err := json.Marshal(r.Snapshot())
	if err != nil {
		logger.Log.Errorf("Failed to marshal room %s: %v", r.Code, err)
		return
	}
	_ = s.broadcaster.BroadcastToRoom(r.Code, network.MsgTypeRoomState, data)
}

func (s *RoomService) settled(ev models.RoomEvent) {
	if s.monitor != nil {
		s.monitor.IncSettlement(ev.Auto)
	}
	if s.recorder == nil {
		return
	}
	s.recorder.Enqueue(models.SettlementRecord{
		RoomCode:   ev.RoomCode,
		Round:      ev.Round,
		WinnerID:   ev.PlayerID,
		WinnerName: ev.PlayerName,
		Amount:     ev.Amount,
		Auto:       ev.Auto,
		SettledAt:  s.clock.Now(),
	})
}

func (s *RoomService) roomsChanged() {
	for _, code := range s.broadcaster.Rooms() {
		if _, ok := s.rooms.GetRoom(code); !ok {
			s.broadcaster.DropRoom(code)
		}
	}
	if s.monitor != nil {
		s.monitor.SetActiveRooms(s.rooms.Count())
	}
}

func (s *RoomService) pendingChanged() {
	if s.monitor != nil {
		s.monitor.SetPendingRemovals(s.tracker.Count())
	}
}

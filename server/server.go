package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/poolroom/logger"
	"github.com/wfunc/poolroom/models"
	"github.com/wfunc/poolroom/monitor"
	"github.com/wfunc/poolroom/network"
	"github.com/wfunc/poolroom/room"
	"github.com/wfunc/poolroom/services"
	"github.com/wfunc/poolroom/session"
)

type Options struct {
	Addr          string
	Mode          string // debug, release, test
	SendQueueSize int
	Heartbeat     time.Duration
	Clock         quartz.Clock
}

type GameServer struct {
	opts           Options
	upgrader       websocket.Upgrader
	service        *services.RoomService
	sessionManager *session.Manager
	monitor        *monitor.Monitor
	engine         *gin.Engine
	httpServer     *http.Server
}

func NewGameServer(opts Options, service *services.RoomService, sessions *session.Manager, mon *monitor.Monitor) *GameServer {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	switch opts.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	s := &GameServer{
		opts:           opts,
		service:        service,
		sessionManager: sessions,
		monitor:        mon,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}
	s.engine = s.routes()
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *GameServer) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", s.handleHealth)
	r.GET("/ws", s.handleWebSocket)
	r.GET("/metrics", gin.WrapH(s.monitor.Handler()))

	api := r.Group("/api")
	{
		api.GET("/rooms", s.handleListRooms)
		api.GET("/rooms/:code", s.handleGetRoom)
		api.GET("/rooms/:code/sessions", s.handleRoomSessions)
	}
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Log.Debugf("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// Handler exposes the router, mainly for httptest.
func (s *GameServer) Handler() http.Handler {
	return s.engine
}

// Start serves until Shutdown is called.
func (s *GameServer) Start() error {
	logger.Log.Infof("Game server listening on %s", s.opts.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and closes every open session.
func (s *GameServer) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	for _, sess := range s.sessionManager.All() {
		sess.Close()
	}
	return err
}

func (s *GameServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"rooms":  s.service.RoomCount(),
		"uptime": s.monitor.Uptime().Round(time.Second).String(),
	})
}

func (s *GameServer) handleListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, s.service.Rooms())
}

func (s *GameServer) handleGetRoom(c *gin.Context) {
	snap, err := s.service.Snapshot(c.Param("code"))
	if err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Code:    string(room.CodeOf(err)),
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// handleRoomSessions lists the live connections bound to a room.
func (s *GameServer) handleRoomSessions(c *gin.Context) {
	code := c.Param("code")
	if _, err := s.service.Snapshot(code); err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Code:    string(room.CodeOf(err)),
			Message: err.Error(),
		})
		return
	}

	sessions := s.sessionManager.GetByRoom(code)
	views := make([]models.SessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, sess.View())
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ConnectedAt < views[j].ConnectedAt })
	c.JSON(http.StatusOK, views)
}

func (s *GameServer) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn, s.opts.SendQueueSize, s.opts.Heartbeat)
	sess := session.NewSession(uuid.New().String(), wsConn, s.opts.Clock)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlineSessions()

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.service.Disconnect(sess)
		s.sessionManager.Remove(sess.GetID())
		s.monitor.DecOnlineSessions()
		wsConn.Close()
	}()

	for {
		packet, err := wsConn.ReadPacket()
		if errors.Is(err, io.ErrShortBuffer) {
			logger.Log.Warnf("Malformed packet from session %s", sess.GetID())
			s.replyError(sess, "unknown", fmt.Errorf("%w: malformed packet", room.ErrInvalidInput))
			continue
		}
		if err != nil {
			return
		}
		wsConn.Touch()
		sess.Touch()
		s.handlePacket(sess, packet)
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	action := network.ActionName(packet.MsgID)
	start := time.Now()
	s.monitor.IncMessagesReceived(action)

	err := s.dispatch(context.Background(), sess, packet)
	s.monitor.ObserveMessageLatency(time.Since(start))
	if err == nil {
		return
	}

	logger.Log.Debugf("Session %s %s rejected: %v", sess.GetID(), action, err)
	s.replyError(sess, action, err)
}

// replyError sends the wire form of err to sess alone.
func (s *GameServer) replyError(sess *session.Session, action string, err error) {
	code := room.CodeOf(err)
	s.monitor.IncActionError(string(code))

	message := err.Error()
	var roomErr *room.Error
	if errors.As(err, &roomErr) {
		message = roomErr.Message
	}
	data, _ := json.Marshal(models.ErrorResponse{Action: action, Code: string(code), Message: message})
	if err := sess.Send(network.MsgTypeError, data); err != nil {
		logger.Log.Debugf("Error reply to session %s dropped: %v", sess.GetID(), err)
	}
}

func (s *GameServer) dispatch(ctx context.Context, sess *session.Session, packet *network.Packet) error {
	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		_ = sess.Send(network.MsgTypeHeartbeat, nil)
		return nil

	case network.MsgTypeCreateRoom:
		var req models.CreateRoomRequest
		if err := decode(packet.Data, &req); err != nil {
			return err
		}
		return s.service.CreateRoom(ctx, sess, req)

	case network.MsgTypeJoinRoom:
		var req models.JoinRoomRequest
		if err := decode(packet.Data, &req); err != nil {
			return err
		}
		return s.service.JoinRoom(ctx, sess, req)

	case network.MsgTypeRejoinRoom:
		var req models.RejoinRoomRequest
		if err := decode(packet.Data, &req); err != nil {
			return err
		}
		return s.service.RejoinRoom(ctx, sess, req)

	case network.MsgTypeLeaveRoom:
		return s.service.LeaveRoom(ctx, sess)

	case network.MsgTypePlaceBid:
		var req models.PlaceBidRequest
		if err := decode(packet.Data, &req); err != nil {
			return err
		}
		return s.service.PlaceBid(ctx, sess, req)

	case network.MsgTypePackCards:
		return s.service.PackCards(ctx, sess)

	case network.MsgTypeResetPool:
		return s.service.ResetPool(ctx, sess)

	case network.MsgTypeDeclareWinner:
		var req models.DeclareWinnerRequest
		if err := decode(packet.Data, &req); err != nil {
			return err
		}
		return s.service.DeclareWinner(ctx, sess, req)

	case network.MsgTypeRemovePlayer:
		var req models.TargetRequest
		if err := decode(packet.Data, &req); err != nil {
			return err
		}
		return s.service.RemovePlayer(ctx, sess, req)

	case network.MsgTypeChangeTurn:
		var req models.TargetRequest
		if err := decode(packet.Data, &req); err != nil {
			return err
		}
		return s.service.ChangeTurn(ctx, sess, req)

	default:
		return fmt.Errorf("%w: unknown message type %d", room.ErrInvalidInput, packet.MsgID)
	}
}

func decode(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", room.ErrInvalidInput, err)
	}
	return nil
}

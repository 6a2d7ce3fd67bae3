package network

// 客户端 -> 服务端
const (
	MsgTypeHeartbeat     = 1
	MsgTypeCreateRoom    = 101
	MsgTypeJoinRoom      = 102
	MsgTypeRejoinRoom    = 103
	MsgTypeLeaveRoom     = 104
	MsgTypePlaceBid      = 201
	MsgTypePackCards     = 202
	MsgTypeResetPool     = 203
	MsgTypeDeclareWinner = 204
	MsgTypeRemovePlayer  = 205
	MsgTypeChangeTurn    = 206
)

// 服务端 -> 客户端
const (
	MsgTypeRoomJoined = 301
	MsgTypeRoomState  = 302
	MsgTypeRoomEvent  = 303
	MsgTypeRemoved    = 304
	MsgTypeError      = 305
	MsgTypeRejoined   = 306
)

var actionNames = map[uint16]string{
	MsgTypeHeartbeat:     "heartbeat",
	MsgTypeCreateRoom:    "createRoom",
	MsgTypeJoinRoom:      "joinRoom",
	MsgTypeRejoinRoom:    "rejoinRoom",
	MsgTypeLeaveRoom:     "leaveRoom",
	MsgTypePlaceBid:      "placeBid",
	MsgTypePackCards:     "packCards",
	MsgTypeResetPool:     "resetPool",
	MsgTypeDeclareWinner: "declareWinner",
	MsgTypeRemovePlayer:  "removePlayer",
	MsgTypeChangeTurn:    "changeTurn",
}

// ActionName returns the action surface name for a client message id.
func ActionName(msgID uint16) string {
	if name, ok := actionNames[msgID]; ok {
		return name
	}
	return "unknown"
}

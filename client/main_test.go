package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wfunc/poolroom/models"
	"github.com/wfunc/poolroom/network"
)

func TestCommand(t *testing.T) {
	tests := []struct {
		line  string
		msgID uint16
		body  interface{}
		ok    bool
	}{
		{"bid 25", network.MsgTypePlaceBid, models.PlaceBidRequest{Amount: 25}, true},
		{"bid lots", 0, nil, false},
		{"pack", network.MsgTypePackCards, nil, true},
		{"declare p-1", network.MsgTypeDeclareWinner, models.DeclareWinnerRequest{WinnerID: "p-1"}, true},
		{"turn p-2", network.MsgTypeChangeTurn, models.TargetRequest{TargetID: "p-2"}, true},
		{"rejoin 1234 p-3", network.MsgTypeRejoinRoom, models.RejoinRoomRequest{RoomCode: "1234", ParticipantID: "p-3"}, true},
		{"", 0, nil, false},
		{"dance", 0, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			msgID, body, ok := command(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.msgID, msgID)
			assert.Equal(t, tt.body, body)
		})
	}
}

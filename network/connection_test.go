package network

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	body := []byte(`{"amount":50}`)
	raw, err := Encode(MsgTypePlaceBid, body)
	require.NoError(t, err)
	assert.Len(t, raw, 4+len(body))

	packet, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, uint16(MsgTypePlaceBid), packet.MsgID)
	assert.Equal(t, uint16(len(body)), packet.Length)
	assert.Equal(t, body, packet.Data)
}

func TestDecode_ShortBuffers(t *testing.T) {
	_, err := Decode([]byte{0, 1})
	assert.ErrorIs(t, err, io.ErrShortBuffer)

	raw, err := Encode(MsgTypeJoinRoom, []byte("hello"))
	require.NoError(t, err)
	_, err = Decode(raw[:len(raw)-1])
	assert.ErrorIs(t, err, io.ErrShortBuffer)
}

func TestEncode_TooLarge(t *testing.T) {
	_, err := Encode(MsgTypeRoomState, make([]byte, maxPayloadSize+1))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestActionName(t *testing.T) {
	assert.Equal(t, "placeBid", ActionName(MsgTypePlaceBid))
	assert.Equal(t, "unknown", ActionName(9999))
}

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/gorilla/websocket"

	"github.com/wfunc/poolroom/logger"
	"github.com/wfunc/poolroom/models"
	"github.com/wfunc/poolroom/network"
)

type CLI struct {
	Server string `short:"s" help:"Server host:port" default:"localhost:8080"`
	Name   string `short:"n" help:"Player name" required:""`
	Create bool   `help:"Create a new room on connect"`
	Room   string `short:"r" help:"Room code to join on connect"`
}

const usage = `commands:
  bid <amount>        place a bid
  pack                fold for this round
  reset               reset balances and pool (owner)
  declare <id>        pay the pool to a participant (owner)
  remove <id>         remove a participant (owner)
  turn <id>           hand the turn to a participant (owner)
  rejoin <code> <id>  take over an existing participant
  leave               leave the room
  quit`

type terminal struct {
	conn   *websocket.Conn
	name   string
	selfID string
}

func (t *terminal) send(msgID uint16, body interface{}) error {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return err
		}
	}
	packet, err := network.Encode(msgID, data)
	if err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.BinaryMessage, packet)
}

func (t *terminal) readLoop(done chan<- struct{}) {
	defer close(done)
	for {
		_, message, err := t.conn.ReadMessage()
		if err != nil {
			logger.Log.Infof("Read error: %v", err)
			return
		}
		packet, err := network.Decode(message)
		if err != nil {
			logger.Log.Warnf("Received invalid packet of size %d", len(message))
			continue
		}
		t.render(packet)
	}
}

func (t *terminal) render(packet *network.Packet) {
	switch packet.MsgID {
	case network.MsgTypeRoomJoined, network.MsgTypeRejoined:
		var resp models.JoinedResponse
		if json.Unmarshal(packet.Data, &resp) == nil {
			t.selfID = resp.Participant.ID
			fmt.Printf("in room %s as %s (id %s)\n", resp.Room.Code, resp.Participant.Name, resp.Participant.ID)
		}
	case network.MsgTypeRoomState:
		var snap models.RoomSnapshot
		if json.Unmarshal(packet.Data, &snap) == nil {
			printSnapshot(snap, t.selfID)
		}
	case network.MsgTypeRoomEvent:
		var ev models.RoomEvent
		if json.Unmarshal(packet.Data, &ev) == nil {
			fmt.Printf("* %s %s\n", ev.Kind, ev.PlayerName)
		}
	case network.MsgTypeRemoved:
		fmt.Println("you were removed from the room")
		t.selfID = ""
	case network.MsgTypeError:
		var resp models.ErrorResponse
		if json.Unmarshal(packet.Data, &resp) == nil {
			fmt.Printf("! %s: %s (%s)\n", resp.Action, resp.Message, resp.Code)
		}
	}
}

func printSnapshot(snap models.RoomSnapshot, selfID string) {
	fmt.Printf("room %s  round %d  pool %d  bids %d\n", snap.Code, snap.Round, snap.Pool, snap.TotalBids)
	for _, p := range snap.Participants {
		marker := " "
		if p.ID == snap.CurrentTurnID {
			marker = ">"
		}
		var flags []string
		if p.IsOwner {
			flags = append(flags, "owner")
		}
		if p.Packed {
			flags = append(flags, "packed")
		}
		if !p.Connected {
			flags = append(flags, "away")
		}
		if p.ID == selfID {
			flags = append(flags, "you")
		}
		fmt.Printf(" %s %-24s %8d  %s  [%s]\n", marker, p.Name, p.Balance, p.ID, strings.Join(flags, ","))
	}
}

// command turns one input line into a request. ok is false for unknown input.
func command(line string) (msgID uint16, body interface{}, ok bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, nil, false
	}
	arg := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}

	switch fields[0] {
	case "bid":
		amount, err := strconv.ParseInt(arg(1), 10, 64)
		if err != nil {
			return 0, nil, false
		}
		return network.MsgTypePlaceBid, models.PlaceBidRequest{Amount: amount}, true
	case "pack":
		return network.MsgTypePackCards, nil, true
	case "reset":
		return network.MsgTypeResetPool, nil, true
	case "declare":
		return network.MsgTypeDeclareWinner, models.DeclareWinnerRequest{WinnerID: arg(1)}, true
	case "remove":
		return network.MsgTypeRemovePlayer, models.TargetRequest{TargetID: arg(1)}, true
	case "turn":
		return network.MsgTypeChangeTurn, models.TargetRequest{TargetID: arg(1)}, true
	case "rejoin":
		return network.MsgTypeRejoinRoom, models.RejoinRoomRequest{RoomCode: arg(1), ParticipantID: arg(2)}, true
	case "leave":
		return network.MsgTypeLeaveRoom, nil, true
	}
	return 0, nil, false
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli, kong.Description("Terminal client for the pool server"))
	logger.Init("debug")
	defer logger.Sync()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	u := url.URL{Scheme: "ws", Host: cli.Server, Path: "/ws"}
	logger.Log.Infof("Connecting to %s", u.String())
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		kctx.Fatalf("dial failed: %v", err)
	}
	defer c.Close()

	t := &terminal{conn: c, name: cli.Name}
	done := make(chan struct{})
	go t.readLoop(done)

	switch {
	case cli.Room != "":
		err = t.send(network.MsgTypeJoinRoom, models.JoinRoomRequest{PlayerName: cli.Name, RoomCode: cli.Room})
	case cli.Create:
		err = t.send(network.MsgTypeCreateRoom, models.CreateRoomRequest{OwnerName: cli.Name})
	}
	if err != nil {
		kctx.Fatalf("write failed: %v", err)
	}
	fmt.Println(usage)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	heartbeat := time.NewTicker(20 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-done:
			return
		case <-heartbeat.C:
			_ = t.send(network.MsgTypeHeartbeat, nil)
		case line, open := <-lines:
			if !open || line == "quit" {
				closeGracefully(c, done)
				return
			}
			msgID, body, ok := command(line)
			if !ok {
				fmt.Println(usage)
				continue
			}
			if err := t.send(msgID, body); err != nil {
				logger.Log.Errorf("Write error: %v", err)
				return
			}
		case <-interrupt:
			logger.Log.Info("Interrupt received, closing connection.")
			closeGracefully(c, done)
			return
		}
	}
}

func closeGracefully(c *websocket.Conn, done <-chan struct{}) {
	err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		logger.Log.Warnf("Write close error: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}

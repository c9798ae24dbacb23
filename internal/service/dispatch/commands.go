package dispatch

import (
	"context"

	svcErr "github.com/oggyb/campus-connect/internal/errors"
	"github.com/oggyb/campus-connect/internal/presence"
	"github.com/oggyb/campus-connect/internal/service/messages"
)

// Commands a live client may issue.
const (
	CmdJoinRoom   = "join_room"
	CmdLeaveRoom  = "leave_room"
	CmdSendDirect = "send_direct"
	CmdSendGroup  = "send_group"
	CmdPing       = "ping"
)

// Command is one client frame on the event channel.
type Command struct {
	Type       string  `json:"type"`
	RequestID  string  `json:"request_id,omitempty"`
	RoomID     string  `json:"room_id,omitempty"`
	ReceiverID uint64  `json:"receiver_id,omitempty"`
	GroupID    uint64  `json:"group_id,omitempty"`
	Content    string  `json:"content,omitempty"`
	Attachment *string `json:"attachment,omitempty"`
}

type AckPayload struct {
	RequestID string         `json:"request_id,omitempty"`
	Command   string         `json:"command"`
	RoomID    string         `json:"room_id,omitempty"`
	State     string         `json:"state,omitempty"`
	Message   *messages.View `json:"message,omitempty"`
}

type ErrorPayload struct {
	RequestID string `json:"request_id,omitempty"`
	Command   string `json:"command,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// HandleCommand runs one command for conn and returns the reply event (ack,
// pong or error). Message broadcasts go out separately through the room.
func (d *Dispatcher) HandleCommand(ctx context.Context, conn presence.Conn, cmd Command) presence.Event {
	ack := AckPayload{RequestID: cmd.RequestID, Command: cmd.Type}

	var err error
	switch cmd.Type {
	case CmdPing:
		return d.reply(presence.EventPong, "", ack)

	case CmdJoinRoom:
		var room presence.RoomID
		if room, err = d.JoinRoom(ctx, conn, cmd.RoomID); err == nil {
			ack.RoomID = string(room)
		}

	case CmdLeaveRoom:
		var room presence.RoomID
		if room, err = d.LeaveRoom(conn, cmd.RoomID); err == nil {
			ack.RoomID = string(room)
		}

	case CmdSendDirect:
		var r Receipt
		if r, err = d.SendDirect(ctx, conn.UserID(), cmd.ReceiverID, cmd.Content, cmd.Attachment); err == nil {
			ack.RoomID, ack.State, ack.Message = r.Message.RoomID, r.State.String(), &r.Message
		}

	case CmdSendGroup:
		var r Receipt
		if r, err = d.SendGroup(ctx, conn.UserID(), cmd.GroupID, cmd.Content, cmd.Attachment); err == nil {
			ack.RoomID, ack.State, ack.Message = r.Message.RoomID, r.State.String(), &r.Message
		}

	default:
		err = svcErr.InvalidArgument("unknown command " + cmd.Type)
	}

	if err != nil {
		d.log.Debug("command rejected", "user_id", conn.UserID(), "command", cmd.Type, "err", err)
		_, msg := svcErr.HTTPStatus(err)
		return d.reply(presence.EventError, presence.RoomID(cmd.RoomID), ErrorPayload{
			RequestID: cmd.RequestID,
			Command:   cmd.Type,
			Code:      svcErr.KindOf(err).String(),
			Message:   msg,
		})
	}
	return d.reply(presence.EventAck, presence.RoomID(ack.RoomID), ack)
}

func (d *Dispatcher) reply(typ string, room presence.RoomID, payload any) presence.Event {
	ev, err := presence.NewEvent(typ, room, payload)
	if err != nil {
		d.log.Error("encode reply failed", "type", typ, "err", err)
		return presence.Event{Type: presence.EventError}
	}
	return ev
}

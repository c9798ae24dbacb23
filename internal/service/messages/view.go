package messages

import (
	"time"

	"github.com/oggyb/campus-connect/internal/db"
)

// View is the client-facing shape of a message, used in API responses and
// live events alike.
type View struct {
	ID         uint64    `json:"id"`
	SenderID   uint64    `json:"sender_id"`
	ReceiverID uint64    `json:"receiver_id,omitempty"`
	GroupID    uint64    `json:"group_id,omitempty"`
	RoomID     string    `json:"room_id"`
	Content    string    `json:"content"`
	Attachment string    `json:"attachment,omitempty"`
	IsRead     bool      `json:"is_read"`
	CreatedAt  time.Time `json:"created_at"`
}

func ToView(m *db.Message) View {
	v := View{
		ID:        m.ID,
		SenderID:  m.SenderID,
		RoomID:    m.RoomKey,
		Content:   m.Content,
		IsRead:    m.IsRead,
		CreatedAt: m.CreatedAt.UTC(),
	}
	if m.ReceiverID != nil {
		v.ReceiverID = *m.ReceiverID
	}
	if m.GroupID != nil {
		v.GroupID = *m.GroupID
	}
	if m.Attachment != nil {
		v.Attachment = *m.Attachment
	}
	return v
}

func ToViews(ms []db.Message) []View {
	out := make([]View, 0, len(ms))
	for i := range ms {
		out = append(out, ToView(&ms[i]))
	}
	return out
}

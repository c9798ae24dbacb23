// Package messages is the durable, ordered message log with read state.
package messages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/oggyb/campus-connect/internal/db"
	svcErr "github.com/oggyb/campus-connect/internal/errors"
	"github.com/oggyb/campus-connect/internal/metrics"
	"github.com/oggyb/campus-connect/internal/presence"
	"github.com/oggyb/campus-connect/internal/repository"
	"github.com/oggyb/campus-connect/internal/utils/pagination"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
	maxAttachment   = 512
)

// errNoMessaging is deliberately vague: a blocked sender must not learn
// whether a block or a missing connection stopped them.
var errNoMessaging = svcErr.Forbidden("cannot message this user")

// Gate answers the connection questions the store asks before a direct send.
type Gate interface {
	IsConnected(ctx context.Context, a, b uint64) (bool, error)
	IsBlocked(ctx context.Context, a, b uint64) (bool, error)
}

// UnreadCache holds per-user direct unread totals. The database stays the
// source of truth; cache errors are logged and ignored.
type UnreadCache interface {
	GetUnreadDirect(ctx context.Context, userID uint64) (int64, bool, error)
	SetUnreadDirect(ctx context.Context, userID uint64, count int64) error
	InvalidateUnreadDirect(ctx context.Context, userID uint64) error
}

type Options struct {
	MaxContentLen int
	Cache         UnreadCache
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

type Store struct {
	msgs   *repository.MessageRepository
	groups *repository.GroupRepository
	users  *repository.UserRepository
	gate   Gate
	cache  UnreadCache
	log    *slog.Logger

	maxContent int
	now        func() time.Time

	clockMu sync.Mutex
	last    time.Time

	// appends holds a room while its next timestamp is chosen and the row
	// written, so stamps in a room are committed in increasing order.
	appends presence.RoomLocks
}

func NewStore(
	msgs *repository.MessageRepository,
	groups *repository.GroupRepository,
	users *repository.UserRepository,
	gate Gate,
	log *slog.Logger,
	opts Options,
) *Store {
	s := &Store{
		msgs:       msgs,
		groups:     groups,
		users:      users,
		gate:       gate,
		cache:      opts.Cache,
		log:        log,
		maxContent: opts.MaxContentLen,
		now:        opts.Now,
	}
	if s.maxContent <= 0 {
		s.maxContent = 4000
	}
	if s.now == nil {
		s.now = db.Now
	}
	return s
}

// stamp returns a strictly increasing timestamp at microsecond precision, so
// persisted order matches call order even if the wall clock steps back.
func (s *Store) stamp() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()

	t := s.now().UTC().Truncate(time.Microsecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

// stampAfterHead returns a stamp later than both the local clock and the
// newest message already in room. The second bound keeps room order intact
// when another instance with a faster clock wrote last. Callers hold
// s.appends for room.
func (s *Store) stampAfterHead(ctx context.Context, room presence.RoomID) (time.Time, error) {
	head, ok, err := s.msgs.LastCreatedAt(ctx, string(room))
	if err != nil {
		return time.Time{}, err
	}
	t := s.stamp()
	if ok && !t.After(head) {
		t = head.Add(time.Microsecond)
		s.clockMu.Lock()
		if t.After(s.last) {
			s.last = t
		}
		s.clockMu.Unlock()
	}
	return t, nil
}

func (s *Store) validateContent(content string, attachment *string) error {
	if strings.TrimSpace(content) == "" {
		return svcErr.InvalidArgument("content must not be empty")
	}
	if utf8.RuneCountInString(content) > s.maxContent {
		return svcErr.InvalidArgument(fmt.Sprintf("content exceeds %d characters", s.maxContent))
	}
	if attachment != nil && len(*attachment) > maxAttachment {
		return svcErr.InvalidArgument("attachment reference too long")
	}
	return nil
}

// CheckDirect runs the direct-send preconditions without writing anything.
func (s *Store) CheckDirect(ctx context.Context, senderID, receiverID uint64, content string, attachment *string) error {
	if err := s.validateContent(content, attachment); err != nil {
		return err
	}
	if senderID == receiverID {
		return svcErr.InvalidArgument("cannot message yourself")
	}
	ok, err := s.users.Exists(ctx, receiverID)
	if err != nil {
		return svcErr.Transient("look up receiver", err)
	}
	if !ok {
		return svcErr.NotFound("user not found")
	}
	return s.checkPair(ctx, senderID, receiverID)
}

func (s *Store) checkPair(ctx context.Context, a, b uint64) error {
	blocked, err := s.gate.IsBlocked(ctx, a, b)
	if err != nil {
		return svcErr.Transient("check block", err)
	}
	if blocked {
		return errNoMessaging
	}
	connected, err := s.gate.IsConnected(ctx, a, b)
	if err != nil {
		return svcErr.Transient("check connection", err)
	}
	if !connected {
		return errNoMessaging
	}
	return nil
}

// AppendDirect validates and stores a direct message. The returned message
// carries the server-assigned id and timestamp.
func (s *Store) AppendDirect(ctx context.Context, senderID, receiverID uint64, content string, attachment *string) (*db.Message, error) {
	if err := s.CheckDirect(ctx, senderID, receiverID, content, attachment); err != nil {
		metrics.SendRejected.WithLabelValues("direct", svcErr.KindOf(err).String()).Inc()
		return nil, err
	}
	return s.PersistDirect(ctx, senderID, receiverID, content, attachment)
}

// PersistDirect stores a direct message whose preconditions were already checked.
func (s *Store) PersistDirect(ctx context.Context, senderID, receiverID uint64, content string, attachment *string) (*db.Message, error) {
	room := presence.DirectRoom(senderID, receiverID)
	unlock := s.appends.Lock(room)
	defer unlock()

	at, err := s.stampAfterHead(ctx, room)
	if err != nil {
		return nil, svcErr.Transient("read room head", err)
	}
	rcv := receiverID
	m := &db.Message{
		SenderID:   senderID,
		ReceiverID: &rcv,
		RoomKey:    string(room),
		Content:    content,
		Attachment: attachment,
		CreatedAt:  at,
	}
	if err := s.msgs.Create(ctx, m); err != nil {
		s.log.Error("persist direct message failed", "sender", senderID, "receiver", receiverID, "err", err)
		return nil, svcErr.Transient("store message", err)
	}
	metrics.MessagesSent.WithLabelValues("direct").Inc()
	s.invalidate(ctx, receiverID)
	return m, nil
}

// CheckGroup runs the group-send preconditions without writing anything.
func (s *Store) CheckGroup(ctx context.Context, senderID, groupID uint64, content string, attachment *string) error {
	if err := s.validateContent(content, attachment); err != nil {
		return err
	}
	_, err := s.activeMember(ctx, groupID, senderID)
	return err
}

// AppendGroup validates and stores a group message.
func (s *Store) AppendGroup(ctx context.Context, senderID, groupID uint64, content string, attachment *string) (*db.Message, error) {
	if err := s.CheckGroup(ctx, senderID, groupID, content, attachment); err != nil {
		metrics.SendRejected.WithLabelValues("group", svcErr.KindOf(err).String()).Inc()
		return nil, err
	}
	return s.PersistGroup(ctx, senderID, groupID, content, attachment)
}

// PersistGroup stores a group message whose preconditions were already checked.
func (s *Store) PersistGroup(ctx context.Context, senderID, groupID uint64, content string, attachment *string) (*db.Message, error) {
	room := presence.GroupRoom(groupID)
	unlock := s.appends.Lock(room)
	defer unlock()

	at, err := s.stampAfterHead(ctx, room)
	if err != nil {
		return nil, svcErr.Transient("read room head", err)
	}
	gid := groupID
	m := &db.Message{
		SenderID:   senderID,
		GroupID:    &gid,
		RoomKey:    string(room),
		Content:    content,
		Attachment: attachment,
		CreatedAt:  at,
	}
	if err := s.msgs.Create(ctx, m); err != nil {
		s.log.Error("persist group message failed", "sender", senderID, "group", groupID, "err", err)
		return nil, svcErr.Transient("store message", err)
	}
	metrics.MessagesSent.WithLabelValues("group").Inc()
	return m, nil
}

// activeMember returns the roster entry, NotFound for a missing group and
// Forbidden for a non-member or former member.
func (s *Store) activeMember(ctx context.Context, groupID, userID uint64) (*db.GroupMember, error) {
	m, err := s.groups.GetMember(ctx, groupID, userID)
	if err == nil {
		if !m.Active {
			return nil, svcErr.Forbidden("not a member of this group")
		}
		return m, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.Transient("load membership", err)
	}
	if _, err := s.groups.Get(ctx, groupID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, svcErr.NotFound("group not found")
		}
		return nil, svcErr.Transient("load group", err)
	}
	return nil, svcErr.Forbidden("not a member of this group")
}

// MarkDirectRead marks everything counterpart sent to user as read and
// returns how many messages changed.
func (s *Store) MarkDirectRead(ctx context.Context, userID, counterpartID uint64) (int64, error) {
	if userID == counterpartID {
		return 0, svcErr.InvalidArgument("counterpart must be another user")
	}
	ok, err := s.users.Exists(ctx, counterpartID)
	if err != nil {
		return 0, svcErr.Transient("look up counterpart", err)
	}
	if !ok {
		return 0, svcErr.NotFound("user not found")
	}

	n, err := s.msgs.MarkDirectRead(ctx, userID, counterpartID)
	if err != nil {
		return 0, svcErr.Transient("mark read", err)
	}
	s.invalidate(ctx, userID)
	return n, nil
}

// MarkGroupRead advances the member's watermark to the newest committed
// message, which as far as unread counts go is the same as now. A message
// still being written carries a later stamp than that, so it stays unread
// instead of hiding under a watermark taken mid-insert. Calling it again with
// nothing new in between changes nothing observable.
func (s *Store) MarkGroupRead(ctx context.Context, userID, groupID uint64) error {
	if _, err := s.activeMember(ctx, groupID, userID); err != nil {
		return err
	}
	head, ok, err := s.msgs.LastCreatedAt(ctx, string(presence.GroupRoom(groupID)))
	if err != nil {
		return svcErr.Transient("read room head", err)
	}
	if !ok {
		return nil
	}
	if err := s.groups.AdvanceLastRead(ctx, groupID, userID, head); err != nil {
		return svcErr.Transient("mark read", err)
	}
	return nil
}

// UnreadDirectCount is cache-first: a hit is returned as is, a miss is
// computed from the database and cached.
func (s *Store) UnreadDirectCount(ctx context.Context, userID uint64) (int64, error) {
	if s.cache != nil {
		n, ok, err := s.cache.GetUnreadDirect(ctx, userID)
		if err != nil {
			s.log.Warn("unread cache read failed", "user_id", userID, "err", err)
		} else if ok {
			return n, nil
		}
	}

	n, err := s.msgs.CountUnreadDirect(ctx, userID)
	if err != nil {
		return 0, svcErr.Transient("count unread", err)
	}
	if s.cache != nil {
		if err := s.cache.SetUnreadDirect(ctx, userID, n); err != nil {
			s.log.Warn("unread cache write failed", "user_id", userID, "err", err)
		}
	}
	return n, nil
}

// UnreadDirectFrom counts unread messages from one counterpart.
func (s *Store) UnreadDirectFrom(ctx context.Context, userID, counterpartID uint64) (int64, error) {
	n, err := s.msgs.CountUnreadDirectFrom(ctx, userID, counterpartID)
	if err != nil {
		return 0, svcErr.Transient("count unread", err)
	}
	return n, nil
}

// UnreadGroupCount counts messages by other members newer than the user's
// watermark.
func (s *Store) UnreadGroupCount(ctx context.Context, userID, groupID uint64) (int64, error) {
	m, err := s.activeMember(ctx, groupID, userID)
	if err != nil {
		return 0, err
	}
	n, err := s.msgs.CountGroupSince(ctx, groupID, userID, m.LastReadAt)
	if err != nil {
		return 0, svcErr.Transient("count unread", err)
	}
	return n, nil
}

// Unread is the per-user summary.
type Unread struct {
	Direct int64
	Groups map[uint64]int64
}

func (s *Store) UnreadCounts(ctx context.Context, userID uint64) (Unread, error) {
	direct, err := s.UnreadDirectCount(ctx, userID)
	if err != nil {
		return Unread{}, err
	}
	rows, err := s.msgs.CountUnreadGroups(ctx, userID)
	if err != nil {
		return Unread{}, svcErr.Transient("count unread", err)
	}
	out := Unread{Direct: direct, Groups: make(map[uint64]int64, len(rows))}
	for _, r := range rows {
		out.Groups[r.GroupID] = r.Unread
	}
	return out, nil
}

func (s *Store) invalidate(ctx context.Context, userID uint64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateUnreadDirect(ctx, userID); err != nil {
		s.log.Warn("unread cache invalidate failed", "user_id", userID, "err", err)
	}
}

// Authorize checks that userID may see room: a participant of a connected,
// unblocked pair for direct rooms, an active member for group rooms, the
// owner for a personal room.
func (s *Store) Authorize(ctx context.Context, userID uint64, room presence.Room) error {
	switch room.Kind {
	case presence.RoomDirect:
		other, ok := room.Counterpart(userID)
		if !ok {
			return svcErr.Forbidden("not a participant of this room")
		}
		return s.checkPair(ctx, userID, other)
	case presence.RoomGroup:
		_, err := s.activeMember(ctx, room.GroupID, userID)
		return err
	case presence.RoomUser:
		if room.A != userID {
			return svcErr.Forbidden("not your room")
		}
		return nil
	}
	return svcErr.InvalidArgument("unknown room")
}

// History returns one page of a room in stored order plus the token for the
// next page, empty when there is none.
func (s *Store) History(ctx context.Context, userID uint64, roomID string, pageToken string, limit int) ([]db.Message, string, error) {
	room, err := presence.ParseRoom(roomID)
	if err != nil {
		return nil, "", svcErr.InvalidArgument(err.Error())
	}
	if room.Kind == presence.RoomUser {
		return nil, "", svcErr.InvalidArgument("personal rooms have no history")
	}
	if err := s.Authorize(ctx, userID, room); err != nil {
		return nil, "", err
	}

	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}

	var after pagination.Cursor
	if pageToken != "" {
		if after, err = pagination.Decode(pageToken); err != nil {
			return nil, "", svcErr.InvalidArgument("invalid page token")
		}
	}

	// one extra row tells us whether a next page exists
	rows, err := s.msgs.ListRoom(ctx, string(room.ID()), after, limit+1)
	if err != nil {
		return nil, "", svcErr.Transient("list messages", err)
	}
	if len(rows) <= limit {
		return rows, "", nil
	}

	rows = rows[:limit]
	last := rows[len(rows)-1]
	next, err := pagination.Encode(pagination.After(last.ID, last.CreatedAt))
	if err != nil {
		return nil, "", fmt.Errorf("encode page token: %w", err)
	}
	return rows, next, nil
}

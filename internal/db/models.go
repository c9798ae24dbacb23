package db

import (
	"time"
)

// Swipe decisions.
const (
	DecisionLike = "like"
	DecisionPass = "pass"
)

// User is the identity row. Auth and admin flows own its lifecycle; this
// service only reads it.
type User struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement"`
	Username     string    `gorm:"uniqueIndex;size:64;not null"`
	DisplayName  string    `gorm:"size:128"`
	Email        string    `gorm:"uniqueIndex;size:128;not null"`
	PasswordHash string    `gorm:"size:255;not null"`
	Verified     bool      `gorm:"not null"`
	Blocked      bool      `gorm:"not null"`
	Role         string    `gorm:"size:32;not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`

	Profile *Profile `gorm:"foreignKey:UserID"`
}

// Name is what other students see.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// Profile is one per user. Tag lists keep the order the user entered them.
type Profile struct {
	UserID    uint64    `gorm:"primaryKey;autoIncrement:false"`
	College   string    `gorm:"size:128"`
	Branch    string    `gorm:"size:128"`
	Year      int       `gorm:"not null"`
	Bio       string    `gorm:"type:text"`
	Skills    []string  `gorm:"serializer:json;type:text"`
	Interests []string  `gorm:"serializer:json;type:text"`
	OpenFor   []string  `gorm:"serializer:json;type:text"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// SwipeDecision is an actor's like/pass on a target.
//
// Composite PK: (ActorID, TargetID)
//   - One row per directed pair; a later swipe overwrites the earlier one.
//
// Indexes:
//   - idx_target_decision(target_id, decision) serves the reciprocal-like
//     lookup during match materialization.
type SwipeDecision struct {
	ActorID   uint64    `gorm:"primaryKey;autoIncrement:false"`
	TargetID  uint64    `gorm:"primaryKey;autoIncrement:false;index:idx_target_decision,priority:1"`
	Decision  string    `gorm:"size:8;not null;index:idx_target_decision,priority:2"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Connection is the undirected result of a mutual like, stored once per
// unordered pair with UserLowID < UserHighID. The PK is the compare-and-set
// key for match materialization.
type Connection struct {
	UserLowID  uint64    `gorm:"primaryKey;autoIncrement:false"`
	UserHighID uint64    `gorm:"primaryKey;autoIncrement:false;index"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

// Block is directed: BlockerID no longer wants to see or hear from BlockedID.
type Block struct {
	BlockerID uint64    `gorm:"primaryKey;autoIncrement:false"`
	BlockedID uint64    `gorm:"primaryKey;autoIncrement:false;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Message is immutable apart from IsRead. Exactly one of ReceiverID and
// GroupID is set. RoomKey names the conversation; (room_key, created_at, id)
// is the retrieval order.
type Message struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	SenderID   uint64    `gorm:"not null;index"`
	ReceiverID *uint64   `gorm:"index:idx_receiver_unread,priority:1"`
	GroupID    *uint64   `gorm:"index"`
	RoomKey    string    `gorm:"size:64;not null;index:idx_room_order,priority:1"`
	Content    string    `gorm:"type:text;not null"`
	Attachment *string   `gorm:"size:512"`
	IsRead     bool      `gorm:"not null;index:idx_receiver_unread,priority:2"`
	CreatedAt  time.Time `gorm:"precision:6;not null;index:idx_room_order,priority:2"`
}

// Group is a team chat.
type Group struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	Name      string    `gorm:"size:128;not null"`
	CreatorID uint64    `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`

	Members []GroupMember `gorm:"foreignKey:GroupID"`
}

// TableName avoids the reserved word GROUPS on MySQL 8.
func (Group) TableName() string { return "team_groups" }

// GroupMember is one roster entry. LastReadAt is the member's read watermark
// and only ever moves forward.
type GroupMember struct {
	GroupID    uint64    `gorm:"primaryKey;autoIncrement:false"`
	UserID     uint64    `gorm:"primaryKey;autoIncrement:false;index"`
	Active     bool      `gorm:"not null"`
	JoinedAt   time.Time `gorm:"precision:6;not null"`
	LastReadAt time.Time `gorm:"precision:6;not null"`
}

func (GroupMember) TableName() string { return "team_group_members" }

// Models lists every table this service migrates.
func Models() []any {
	return []any{
		&User{}, &Profile{}, &SwipeDecision{}, &Connection{}, &Block{},
		&Message{}, &Group{}, &GroupMember{},
	}
}

package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidToken is returned for tokens this package did not produce.
var ErrInvalidToken = errors.New("invalid pagination token")

// Cursor is the opaque pagination state we encode/decode.
// MessageID + CreatedMicros mirror the (created_at, id) message order, so a
// cursor stays stable while new messages arrive.
type Cursor struct {
	MessageID     uint64 `json:"message_id"`
	CreatedMicros int64  `json:"created_us,omitempty"`
}

// After builds the cursor that resumes right after the given message.
func After(id uint64, createdAt time.Time) Cursor {
	return Cursor{MessageID: id, CreatedMicros: createdAt.UnixMicro()}
}

// IsZero reports whether the cursor points at the first page.
func (c Cursor) IsZero() bool { return c.MessageID == 0 && c.CreatedMicros == 0 }

// CreatedAt returns the cursor timestamp in UTC.
func (c Cursor) CreatedAt() time.Time { return time.UnixMicro(c.CreatedMicros).UTC() }

// Encode converts a Cursor into a Base64 string.
func Encode(c Cursor) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// Decode parses a Base64 string into a Cursor.
// Empty token → empty cursor (first page).
func Decode(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}

	b, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, ErrInvalidToken
	}

	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return Cursor{}, ErrInvalidToken
	}
	return c, nil
}

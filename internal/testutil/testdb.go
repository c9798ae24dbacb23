// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oggyb/campus-connect/internal/db"
)

var dbSeq atomic.Int64

// NewDB spins up an isolated in-memory SQLite database with the full schema.
// The pool is pinned to one connection: the shared-cache memory database lives
// as long as that connection, and concurrent tests serialize at the driver
// instead of failing with "table is locked".
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc:                db.Now,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(gdb))
	return gdb
}

// CreateUser inserts a verified student with an optional profile.
func CreateUser(t *testing.T, gdb *gorm.DB, id uint64, profile *db.Profile) db.User {
	t.Helper()
	u := db.User{
		ID:           id,
		Username:     fmt.Sprintf("user%d", id),
		DisplayName:  fmt.Sprintf("User %d", id),
		Email:        fmt.Sprintf("u%d@test.com", id),
		PasswordHash: "x",
		Verified:     true,
		Role:         "student",
	}
	require.NoError(t, gdb.Create(&u).Error)
	if profile != nil {
		profile.UserID = id
		require.NoError(t, gdb.Create(profile).Error)
	}
	return u
}

// Connect stores a Connection directly, bypassing the swipe flow.
func Connect(t *testing.T, gdb *gorm.DB, a, b uint64) {
	t.Helper()
	if a > b {
		a, b = b, a
	}
	require.NoError(t, gdb.Create(&db.Connection{UserLowID: a, UserHighID: b}).Error)
}

// Clock is a manual clock that advances one millisecond per reading, so
// consecutive writes get strictly increasing timestamps.
type Clock struct {
	now atomic.Int64
}

func NewClock(start time.Time) *Clock {
	c := &Clock{}
	c.now.Store(start.UTC().UnixMicro())
	return c
}

func (c *Clock) Now() time.Time {
	return time.UnixMicro(c.now.Add(int64(time.Millisecond / time.Microsecond))).UTC()
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.now.Add(d.Microseconds())
}

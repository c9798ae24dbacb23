package db

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	seedColleges  = []string{"IIT Delhi", "NIT Trichy", "BITS Pilani"}
	seedBranches  = []string{"CSE", "ECE", "ME", "EE"}
	seedSkills    = []string{"python", "go", "ml", "react", "figma", "rust", "sql", "docker"}
	seedInterests = []string{"ai", "startups", "music", "chess", "robotics", "open-source", "design"}
	seedIntents   = []string{"hackathon", "project", "study-group", "startup", "research"}
)

// seedTables lists tables in delete order.
var seedTables = []string{
	"messages", "team_group_members", "team_groups", "connections", "blocks",
	"swipe_decisions", "profiles", "users",
}

// SeedTestData resets the database and populates it with demo students.
//
// Behavior:
//  1. Clears every table this service owns.
//  2. Creates 20 verified students with bcrypt password hashes and profiles
//     drawn from a fixed tag vocabulary.
//  3. Generates swipes with ~60% likes; every 4th swipe is made mutual and
//     materialized as a Connection.
//  4. Creates one study group owned by user 1.
//
// Compatible with both MySQL and SQLite (AUTO_INCREMENT reset skipped for SQLite).
func SeedTestData(db *gorm.DB, log *slog.Logger) ([]User, error) {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	for _, table := range seedTables {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return nil, fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	switch db.Dialector.Name() {
	case "mysql":
		db.Exec("ALTER TABLE users AUTO_INCREMENT = 1")
		db.Exec("ALTER TABLE messages AUTO_INCREMENT = 1")
		db.Exec("ALTER TABLE team_groups AUTO_INCREMENT = 1")
	case "sqlite":
		db.Exec("DELETE FROM sqlite_sequence WHERE name IN ('users', 'messages', 'team_groups')")
	}
	log.Info("cleared existing data")

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	users := make([]User, 0, 20)
	for i := 1; i <= 20; i++ {
		user := User{
			Username:     fmt.Sprintf("student%d", i),
			DisplayName:  fmt.Sprintf("Student %d", i),
			Email:        fmt.Sprintf("student%d@campus.example", i),
			PasswordHash: string(hash),
			Verified:     true,
			Role:         "student",
		}
		if err := db.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to seed user: %w", err)
		}

		profile := Profile{
			UserID:    user.ID,
			College:   seedColleges[r.Intn(len(seedColleges))],
			Branch:    seedBranches[r.Intn(len(seedBranches))],
			Year:      r.Intn(4) + 1,
			Bio:       "Hi, I'm " + user.DisplayName,
			Skills:    pick(r, seedSkills, 3),
			Interests: pick(r, seedInterests, 2),
			OpenFor:   pick(r, seedIntents, 2),
		}
		if err := db.Create(&profile).Error; err != nil {
			return nil, fmt.Errorf("failed to seed profile: %w", err)
		}
		users = append(users, user)
	}
	log.Info("seeded users", "count", len(users))

	counter := 0
	for _, actor := range users {
		for j := 0; j < 6; j++ {
			target := users[r.Intn(len(users))]
			if target.ID == actor.ID {
				continue
			}

			decision := DecisionPass
			if r.Intn(100) < 60 {
				decision = DecisionLike
			}
			mutual := counter%4 == 0
			if mutual {
				decision = DecisionLike
				if err := upsertSwipe(db, target.ID, actor.ID, DecisionLike); err != nil {
					return nil, err
				}
				low, high := actor.ID, target.ID
				if low > high {
					low, high = high, low
				}
				db.Clauses(clause.OnConflict{DoNothing: true}).
					Create(&Connection{UserLowID: low, UserHighID: high})
			}
			if err := upsertSwipe(db, actor.ID, target.ID, decision); err != nil {
				return nil, err
			}
			counter++
		}
	}
	log.Info("seeded swipes", "count", counter)

	now := Now()
	group := Group{Name: "Hackathon Crew", CreatorID: users[0].ID}
	if err := db.Create(&group).Error; err != nil {
		return nil, fmt.Errorf("failed to seed group: %w", err)
	}
	for _, u := range users[:4] {
		member := GroupMember{GroupID: group.ID, UserID: u.ID, Active: true, JoinedAt: now, LastReadAt: now}
		if err := db.Create(&member).Error; err != nil {
			return nil, fmt.Errorf("failed to seed group member: %w", err)
		}
	}

	return users, nil
}

func upsertSwipe(db *gorm.DB, actorID, targetID uint64, decision string) error {
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "actor_id"}, {Name: "target_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"decision", "updated_at"}),
	}).Create(&SwipeDecision{ActorID: actorID, TargetID: targetID, Decision: decision}).Error
	if err != nil {
		return fmt.Errorf("failed to seed swipe: %w", err)
	}
	return nil
}

// pick returns n distinct tags in vocabulary order.
func pick(r *rand.Rand, vocab []string, n int) []string {
	idx := r.Perm(len(vocab))[:n]
	chosen := make(map[int]bool, n)
	for _, i := range idx {
		chosen[i] = true
	}
	out := make([]string, 0, n)
	for i, tag := range vocab {
		if chosen[i] {
			out = append(out, tag)
		}
	}
	return out
}

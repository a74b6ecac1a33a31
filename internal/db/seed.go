package db

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// seedTables are cleared child-first so MySQL and SQLite both accept it.
var seedTables = []string{"verifications", "responses", "matches", "point_records", "surveys", "users"}

func clearTables(db *gorm.DB) error {
	for _, table := range seedTables {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// SeedTestData resets the database and populates it with demo users, surveys and matches.
//
// Behavior:
//  1. Clears every exchange table.
//  2. Creates 10 registered users (user<N>@example.com / "password").
//  3. Gives each user two active surveys; every user's first survey has a
//     verification link "verify-<N>".
//  4. Opens ~15 random matches between users, expiring within 48h of now.
//
// Point totals start at 0 so the ledger and users.total_points agree.
func SeedTestData(db *gorm.DB, now time.Time) error {
	r := rand.New(rand.NewSource(now.UnixNano()))
	now = now.UTC()

	// --- Fresh start ---
	if err := clearTables(db); err != nil {
		return err
	}
	log.Println("Cleared existing data")

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	// --- Seed Users and Surveys ---
	userIDs := make([]string, 0, 10)
	surveysByUser := make(map[string][]string)
	for i := 1; i <= 10; i++ {
		email := fmt.Sprintf("user%d@example.com", i)
		user := User{
			ID:           uuid.NewString(),
			Email:        &email,
			DisplayName:  fmt.Sprintf("user%d", i),
			PasswordHash: string(hash),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := db.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to seed user: %w", err)
		}
		userIDs = append(userIDs, user.ID)

		for j := 1; j <= 2; j++ {
			survey := Survey{
				ID:          uuid.NewString(),
				Title:       fmt.Sprintf("Survey %d of user%d", j, i),
				CreatedBy:   user.ID,
				Incentive:   5 * (1 + r.Intn(4)),
				TargetCount: 20 + r.Intn(80),
				IsActive:    true,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if j == 1 {
				link := fmt.Sprintf("verify-%d", i)
				survey.VerificationID = &link
			}
			if err := db.Create(&survey).Error; err != nil {
				return fmt.Errorf("failed to seed survey: %w", err)
			}
			surveysByUser[user.ID] = append(surveysByUser[user.ID], survey.ID)
		}
	}
	log.Printf("Seeded %d users with surveys.", len(userIDs))

	// --- Seed open Matches ---
	matches := 0
	for range 15 {
		requester := userIDs[r.Intn(len(userIDs))]
		counterpart := userIDs[r.Intn(len(userIDs))]
		if requester == counterpart {
			continue
		}
		selected := surveysByUser[requester][r.Intn(2)]
		created := now.Add(-time.Duration(r.Intn(24)) * time.Hour)
		m := Match{
			ID:                 uuid.NewString(),
			OwnerSurveyID:      surveysByUser[counterpart][r.Intn(2)],
			RequesterUID:       requester,
			SelectedMySurveyID: &selected,
			CounterpartUID:     counterpart,
			Status:             MatchOpen,
			CreatedAt:          created,
			ExpireAt:           created.Add(48 * time.Hour),
			MutualBonus:        2,
		}
		if err := db.Create(&m).Error; err != nil {
			return fmt.Errorf("failed to seed match: %w", err)
		}
		matches++
	}
	log.Printf("Seeded %d open matches.", matches)

	return nil
}

// SeedMinimalTestData seeds two users, A and B, each owning one survey.
// B's survey carries the verification link "link-b".
func SeedMinimalTestData(db *gorm.DB) error {
	// Clear
	if err := clearTables(db); err != nil {
		return err
	}

	// Users
	users := []User{
		{ID: "A", DisplayName: "user A"},
		{ID: "B", DisplayName: "user B"},
	}
	if err := db.Create(&users).Error; err != nil {
		return err
	}

	// Surveys
	link := "link-b"
	surveys := []Survey{
		{ID: "survey-a", Title: "A's survey", CreatedBy: "A", Incentive: 10, IsActive: true},
		{ID: "survey-b", Title: "B's survey", CreatedBy: "B", Incentive: 10, IsActive: true, VerificationID: &link},
	}
	if err := db.Create(&surveys).Error; err != nil {
		return err
	}

	return nil
}

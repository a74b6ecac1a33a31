package db

import (
	"time"

	"gorm.io/datatypes"
)

type PointType string

const (
	PointsSurveyComplete PointType = "survey_complete"
	PointsMutualBonus    PointType = "mutual_bonus"
	PointsPenalty        PointType = "penalty"
	PointsBonus          PointType = "bonus"
	PointsReferral       PointType = "referral"
)

type MatchStatus string

const (
	MatchOpen          MatchStatus = "open"
	MatchClosed        MatchStatus = "closed"
	MatchClosedExpired MatchStatus = "closed_expired"
)

type ResponseStatus string

const (
	ResponsePending   ResponseStatus = "pending"
	ResponseCompleted ResponseStatus = "completed"
	ResponseExpired   ResponseStatus = "expired"
)

const VerificationVerified = "verified"

// User table. Anonymous respondents are users too; TotalPoints is the
// cached ledger total and is only written by the points ledger.
type User struct {
	ID           string  `gorm:"primaryKey;size:36"`
	Anonymous    bool    `gorm:"not null"`
	Email        *string `gorm:"uniqueIndex;size:128"`
	DisplayName  string  `gorm:"size:64"`
	PasswordHash string  `gorm:"size:255"`
	TotalPoints  int     `gorm:"not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Survey is owned by the survey management layer; the engine only reads it
// and bumps its counters.
type Survey struct {
	ID                string  `gorm:"primaryKey;size:36"`
	Title             string  `gorm:"size:255;not null"`
	CreatedBy         string  `gorm:"size:36;not null;index"`
	Incentive         int     `gorm:"not null;default:0"`
	Filled            int     `gorm:"not null;default:0"`
	TargetCount       int     `gorm:"not null;default:0"`
	IsActive          bool    `gorm:"not null"`
	VerificationID    *string `gorm:"uniqueIndex;size:64"`
	VerificationCount int     `gorm:"not null;default:0"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PointRecord is one immutable ledger entry.
//
// Indexes:
//   - idx_points_user_created(user_id, created_at DESC, id)
//     Serves history listing and cursor pagination.
//   - idx_points_user_type_related(user_id, type, related_id)
//     Serves the penalty exactly-once lookup.
type PointRecord struct {
	ID          string    `gorm:"primaryKey;size:36;index:idx_points_user_created,priority:3"`
	UserID      string    `gorm:"size:36;not null;index:idx_points_user_created,priority:1;index:idx_points_user_type_related,priority:1"`
	Points      int       `gorm:"not null"`
	Type        PointType `gorm:"size:32;not null;index:idx_points_user_type_related,priority:2"`
	Description string    `gorm:"size:512"`
	RelatedID   *string   `gorm:"size:36;index:idx_points_user_type_related,priority:3"`
	CreatedAt   time.Time `gorm:"index:idx_points_user_created,priority:2,sort:desc"`
}

// Match is a reciprocal fill agreement between the requester and the owner
// (counterpart) of OwnerSurveyID.
//
// Status only moves open → closed or open → closed_expired.
// Version is bumped on every completion write and used as a precondition.
type Match struct {
	ID                    string      `gorm:"primaryKey;size:36"`
	OwnerSurveyID         string      `gorm:"size:36;not null"`
	RequesterUID          string      `gorm:"size:36;not null;index"`
	RequesterResponseID   *string     `gorm:"size:36"`
	SelectedMySurveyID    *string     `gorm:"size:36"`
	CounterpartUID        string      `gorm:"size:36;not null;index"`
	CounterpartResponseID *string     `gorm:"size:36"`
	Status                MatchStatus `gorm:"size:16;not null;index:idx_match_status_expire,priority:1"`
	CreatedAt             time.Time
	ExpireAt              time.Time `gorm:"not null;index:idx_match_status_expire,priority:2"`
	RequesterDone         bool      `gorm:"not null"`
	CounterpartDone       bool      `gorm:"not null"`
	RequesterPoints       int       `gorm:"not null;default:0"`
	CounterpartPoints     int       `gorm:"not null;default:0"`
	MutualBonus           int       `gorm:"not null"`
	Version               int       `gorm:"not null;default:0"`
}

// Response is one respondent's attempt at filling one survey.
//
// Indexes:
//   - idx_response_lookup(survey_id, respondent_id, status)
//     Serves the single pending response lookup.
//   - idx_response_status_expire(status, expire_at)
//     Serves the expiry sweep.
type Response struct {
	ID            string            `gorm:"primaryKey;size:36"`
	SurveyID      string            `gorm:"size:36;not null;index:idx_response_lookup,priority:1"`
	RespondentID  string            `gorm:"size:36;not null;index:idx_response_lookup,priority:2;index"`
	Status        ResponseStatus    `gorm:"size:16;not null;index:idx_response_lookup,priority:3;index:idx_response_status_expire,priority:1"`
	StartedAt     time.Time         `gorm:"not null"`
	CompletedAt   *time.Time
	ExpireAt      time.Time `gorm:"not null;index:idx_response_status_expire,priority:2"`
	PointsAwarded int       `gorm:"not null;default:0"`
	MatchID       *string   `gorm:"size:36;index"`
	UserAgent     string    `gorm:"size:512"`
	IPAddress     string    `gorm:"size:64"`
	Metadata      datatypes.JSONMap
}

// Verification records one external-link verification of a survey.
type Verification struct {
	ID             string  `gorm:"primaryKey;size:36"`
	VerificationID string  `gorm:"size:64;not null;index"`
	SurveyID       string  `gorm:"size:36;not null;index"`
	UserID         *string `gorm:"size:36;index"`
	SessionID      string  `gorm:"size:64;index"`
	UserAgent      string  `gorm:"size:512"`
	IPAddress      string  `gorm:"size:64"`
	Status         string  `gorm:"size:16;not null"`
	VerifiedAt     time.Time
	Metadata       datatypes.JSONMap
}

// Models lists every table in migration order.
func Models() []any {
	return []any{&User{}, &Survey{}, &PointRecord{}, &Match{}, &Response{}, &Verification{}}
}

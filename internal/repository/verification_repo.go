package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/oggyb/survey-exchange/internal/db"
)

// VerificationRepository stores external-link verification events.
type VerificationRepository struct {
	db *gorm.DB
}

func NewVerificationRepository(database *gorm.DB) *VerificationRepository {
	return &VerificationRepository{db: database}
}

func (r *VerificationRepository) Create(ctx context.Context, v *db.Verification) error {
	return r.db.WithContext(ctx).Create(v).Error
}

// Exists reports whether the link was already verified by userID or from sessionID.
// Empty values are ignored; both empty reports false.
func (r *VerificationRepository) Exists(ctx context.Context, verificationID, userID, sessionID string) (bool, error) {
	if userID == "" && sessionID == "" {
		return false, nil
	}

	q := r.db.WithContext(ctx).
		Model(&db.Verification{}).
		Where("verification_id = ?", verificationID)
	switch {
	case userID != "" && sessionID != "":
		q = q.Where("(user_id = ? OR session_id = ?)", userID, sessionID)
	case userID != "":
		q = q.Where("user_id = ?", userID)
	default:
		q = q.Where("session_id = ?", sessionID)
	}

	var n int64
	err := q.Count(&n).Error
	return n > 0, err
}

// ListBySurvey returns every verification of a survey, newest first.
func (r *VerificationRepository) ListBySurvey(ctx context.Context, surveyID string) ([]db.Verification, error) {
	var rows []db.Verification
	err := r.db.WithContext(ctx).
		Where("survey_id = ?", surveyID).
		Order("verified_at DESC, id DESC").
		Find(&rows).Error
	return rows, err
}

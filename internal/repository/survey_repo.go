package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/oggyb/survey-exchange/internal/db"
	svcErr "github.com/oggyb/survey-exchange/internal/errors"
)

// SurveyRepository reads surveys and bumps their counters.
// Survey authoring lives outside this service.
type SurveyRepository struct {
	db *gorm.DB
}

func NewSurveyRepository(database *gorm.DB) *SurveyRepository {
	return &SurveyRepository{db: database}
}

func (r *SurveyRepository) Create(ctx context.Context, s *db.Survey) error {
	return r.db.WithContext(ctx).Create(s).Error
}

// Get returns the survey or an ErrNotFound-wrapped error.
func (r *SurveyRepository) Get(ctx context.Context, id string) (*db.Survey, error) {
	var s db.Survey
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("survey %s: %w", id, svcErr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetActiveByVerificationID resolves a verification link to its active survey.
func (r *SurveyRepository) GetActiveByVerificationID(ctx context.Context, verificationID string) (*db.Survey, error) {
	var s db.Survey
	err := r.db.WithContext(ctx).
		Where("verification_id = ? AND is_active = ?", verificationID, true).
		Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("verification link %s: %w", verificationID, svcErr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// IncrementFilled bumps the fill counter by one.
func (r *SurveyRepository) IncrementFilled(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&db.Survey{}).
		Where("id = ?", id).
		UpdateColumn("filled", gorm.Expr("filled + 1")).Error
}

// RecordVerification bumps both the fill counter and the verification counter.
func (r *SurveyRepository) RecordVerification(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&db.Survey{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"filled":             gorm.Expr("filled + 1"),
			"verification_count": gorm.Expr("verification_count + 1"),
		}).Error
}

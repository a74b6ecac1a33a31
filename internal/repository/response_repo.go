package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/survey-exchange/internal/db"
	svcErr "github.com/oggyb/survey-exchange/internal/errors"
)

// ResponseRepository provides data access for survey fill attempts.
// Status transitions are conditional on status = pending so each one
// happens at most once.
type ResponseRepository struct {
	db *gorm.DB
}

func NewResponseRepository(database *gorm.DB) *ResponseRepository {
	return &ResponseRepository{db: database}
}

func (r *ResponseRepository) Create(ctx context.Context, resp *db.Response) error {
	return r.db.WithContext(ctx).Create(resp).Error
}

func (r *ResponseRepository) Get(ctx context.Context, id string) (*db.Response, error) {
	var resp db.Response
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&resp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("response %s: %w", id, svcErr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// FindPending returns the pending response of respondent on surveyID, or nil when there is none.
func (r *ResponseRepository) FindPending(ctx context.Context, surveyID, respondentID string) (*db.Response, error) {
	var rows []db.Response
	err := r.db.WithContext(ctx).
		Where("survey_id = ? AND respondent_id = ? AND status = ?", surveyID, respondentID, db.ResponsePending).
		Order("started_at DESC, id DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// SetMatchID ties a still-pending response to matchID.
// Returns false when the response is no longer pending.
func (r *ResponseRepository) SetMatchID(ctx context.Context, id, matchID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Response{}).
		Where("id = ? AND status = ?", id, db.ResponsePending).
		UpdateColumn("match_id", matchID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CompleteIfPending moves a pending response to completed.
//
// Behavior:
//   - Sets completed_at and points_awarded in the same statement.
//   - Returns false when the response is no longer pending (already
//     verified by a concurrent request, or expired).
func (r *ResponseRepository) CompleteIfPending(ctx context.Context, id string, at time.Time, points int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Response{}).
		Where("id = ? AND status = ?", id, db.ResponsePending).
		UpdateColumns(map[string]any{
			"status":         db.ResponseCompleted,
			"completed_at":   at,
			"points_awarded": points,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ExpireIfPending moves a pending response to expired. Completed responses are never touched.
func (r *ResponseRepository) ExpireIfPending(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Response{}).
		Where("id = ? AND status = ?", id, db.ResponsePending).
		UpdateColumn("status", db.ResponseExpired)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ExpireOverdue expires every pending response whose deadline is at or before now.
func (r *ResponseRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Response{}).
		Where("status = ? AND expire_at <= ?", db.ResponsePending, now).
		UpdateColumn("status", db.ResponseExpired)
	return res.RowsAffected, res.Error
}

// ListByRespondent returns a respondent's responses, newest first.
func (r *ResponseRepository) ListByRespondent(ctx context.Context, respondentID string) ([]db.Response, error) {
	var rows []db.Response
	err := r.db.WithContext(ctx).
		Where("respondent_id = ?", respondentID).
		Order("started_at DESC, id DESC").
		Find(&rows).Error
	return rows, err
}

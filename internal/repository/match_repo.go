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

// MatchRepository provides data access for reciprocal fill matches.
type MatchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(database *gorm.DB) *MatchRepository {
	return &MatchRepository{db: database}
}

func (r *MatchRepository) Create(ctx context.Context, m *db.Match) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// Get returns the match or an ErrNotFound-wrapped error.
func (r *MatchRepository) Get(ctx context.Context, id string) (*db.Match, error) {
	var m db.Match
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("match %s: %w", id, svcErr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListByRequester returns matches the user asked for, newest first.
func (r *MatchRepository) ListByRequester(ctx context.Context, uid string) ([]db.Match, error) {
	var matches []db.Match
	err := r.db.WithContext(ctx).
		Where("requester_uid = ?", uid).
		Order("created_at DESC, id DESC").
		Find(&matches).Error
	return matches, err
}

// ListByCounterpart returns matches on the user's surveys, newest first.
func (r *MatchRepository) ListByCounterpart(ctx context.Context, uid string) ([]db.Match, error) {
	var matches []db.Match
	err := r.db.WithContext(ctx).
		Where("counterpart_uid = ?", uid).
		Order("created_at DESC, id DESC").
		Find(&matches).Error
	return matches, err
}

// ListOpenExpired returns open matches whose deadline is at or before now.
// A non-empty uid restricts the result to matches where uid is either side.
func (r *MatchRepository) ListOpenExpired(ctx context.Context, now time.Time, uid string) ([]db.Match, error) {
	var matches []db.Match
	q := r.db.WithContext(ctx).
		Where("status = ? AND expire_at <= ?", db.MatchOpen, now)
	if uid != "" {
		q = q.Where("(requester_uid = ? OR counterpart_uid = ?)", uid, uid)
	}
	err := q.Order("expire_at, id").Find(&matches).Error
	return matches, err
}

// SetResponseID binds a response to one side. Overwrites any previous binding.
func (r *MatchRepository) SetResponseID(ctx context.Context, id, responseID string, isRequester bool) error {
	col := "counterpart_response_id"
	if isRequester {
		col = "requester_response_id"
	}
	res := r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("id = ?", id).
		UpdateColumn(col, responseID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// mysql reports 0 for an unchanged value, so tell that apart from a miss
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// UpdateVersioned applies updates only if the row still carries version,
// bumping the version in the same statement.
//
// Behavior:
//   - Returns false (no error) when another writer got there first.
//   - Callers re-read and retry on false.
func (r *MatchRepository) UpdateVersioned(ctx context.Context, id string, version int, updates map[string]any) (bool, error) {
	fields := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		fields[k] = v
	}
	fields["version"] = gorm.Expr("version + 1")

	res := r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("id = ? AND version = ?", id, version).
		UpdateColumns(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ExpireIfOpen flips an open match to closed_expired.
// Returns false when the match was no longer open, so repeated sweeps are no-ops.
func (r *MatchRepository) ExpireIfOpen(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("id = ? AND status = ?", id, db.MatchOpen).
		UpdateColumns(map[string]any{
			"status":  db.MatchClosedExpired,
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SumTallies returns the display tally a user has accumulated across matches.
func (r *MatchRepository) SumTallies(ctx context.Context, uid string) (int, error) {
	var asRequester, asCounterpart int
	err := r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("requester_uid = ?", uid).
		Select("COALESCE(SUM(requester_points), 0)").
		Scan(&asRequester).Error
	if err != nil {
		return 0, err
	}
	err = r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("counterpart_uid = ?", uid).
		Select("COALESCE(SUM(counterpart_points), 0)").
		Scan(&asCounterpart).Error
	return asRequester + asCounterpart, err
}

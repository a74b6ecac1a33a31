package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/oggyb/survey-exchange/internal/db"
	"github.com/oggyb/survey-exchange/internal/utils/pagination"
)

// PointsRepository is the append-only store of ledger entries.
// It never updates or deletes a record.
type PointsRepository struct {
	db *gorm.DB
}

func NewPointsRepository(database *gorm.DB) *PointsRepository {
	return &PointsRepository{db: database}
}

func (r *PointsRepository) Create(ctx context.Context, rec *db.PointRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

// ListByUser returns a user's records, newest first. limit <= 0 returns all.
func (r *PointsRepository) ListByUser(ctx context.Context, userID string, limit int) ([]db.PointRecord, error) {
	var records []db.PointRecord
	q := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&records).Error
	return records, err
}

// ListPage returns one page of a user's history.
//
// Behavior:
//   - Ordered by created_at DESC, id DESC.
//   - pageToken is the opaque cursor returned by the previous page ("" = first page).
//   - nextToken is nil on the last page.
//
// Example:
//
//	repo.ListPage(ctx, "u1", "", 20) // newest 20 entries of u1
func (r *PointsRepository) ListPage(
	ctx context.Context,
	userID string,
	pageToken string,
	limit int,
) ([]db.PointRecord, *string, error) {
	var records []db.PointRecord

	cursor, err := pagination.Decode(pageToken)
	if err != nil {
		return nil, nil, err
	}

	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit + 1)

	// apply cursor
	if !cursor.IsZero() {
		ts := cursor.CreatedAt()
		query = query.Where(
			"(created_at < ? OR (created_at = ? AND id < ?))",
			ts, ts, cursor.ID,
		)
	}

	if err := query.Find(&records).Error; err != nil {
		return nil, nil, err
	}

	// pagination: build next cursor if needed
	var nextToken *string
	if len(records) > limit {
		last := records[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{
			ID:              last.ID,
			CreatedUnixNano: last.CreatedAt.UnixNano(),
		})
		nextToken = &token
		records = records[:limit]
	}

	return records, nextToken, nil
}

// SumByUser recomputes a user's total from history.
func (r *PointsRepository) SumByUser(ctx context.Context, userID string) (int, error) {
	var sum int
	err := r.db.WithContext(ctx).
		Model(&db.PointRecord{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(points), 0)").
		Scan(&sum).Error
	return sum, err
}

// Exists reports whether the user already has a record of typ tied to relatedID.
func (r *PointsRepository) Exists(ctx context.Context, userID string, typ db.PointType, relatedID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&db.PointRecord{}).
		Where("user_id = ? AND type = ? AND related_id = ?", userID, typ, relatedID).
		Limit(1).
		Count(&n).Error
	return n > 0, err
}

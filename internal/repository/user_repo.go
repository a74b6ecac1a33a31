package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/survey-exchange/internal/db"
	svcErr "github.com/oggyb/survey-exchange/internal/errors"
)

// UserRepository provides data access for users and their cached point totals.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(database *gorm.DB) *UserRepository {
	return &UserRepository{db: database}
}

func (r *UserRepository) Create(ctx context.Context, u *db.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

// Get returns the user or an ErrNotFound-wrapped error.
func (r *UserRepository) Get(ctx context.Context, id string) (*db.User, error) {
	var u db.User
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %s: %w", id, svcErr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*db.User, error) {
	var u db.User
	err := r.db.WithContext(ctx).Where("email = ?", email).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %s: %w", email, svcErr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// EnsureExists creates an empty profile (total 0) for id when none exists.
//
// Behavior:
//   - Existing rows are left untouched (ON CONFLICT DO NOTHING).
//   - Safe to call before every ledger append.
func (r *UserRepository) EnsureExists(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(&db.User{ID: id}).Error
}

// IncrementPoints applies delta to total_points with a single
// UPDATE ... SET total_points = total_points + ? so concurrent postings never lose updates.
func (r *UserRepository) IncrementPoints(ctx context.Context, id string, delta int) error {
	if delta == 0 {
		return nil // mysql reports 0 affected rows for no-op updates
	}
	res := r.db.WithContext(ctx).
		Model(&db.User{}).
		Where("id = ?", id).
		UpdateColumn("total_points", gorm.Expr("total_points + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %s: %w", id, svcErr.ErrNotFound)
	}
	return nil
}

// SetTotalPoints overwrites the cached total. Reserved for reconciliation.
func (r *UserRepository) SetTotalPoints(ctx context.Context, id string, total int) error {
	return r.db.WithContext(ctx).
		Model(&db.User{}).
		Where("id = ?", id).
		UpdateColumn("total_points", total).Error
}

// GetTotalPoints returns the cached total; found is false when the user has no profile.
func (r *UserRepository) GetTotalPoints(ctx context.Context, id string) (total int, found bool, err error) {
	var rows []int
	err = r.db.WithContext(ctx).
		Model(&db.User{}).
		Where("id = ?", id).
		Limit(1).
		Pluck("total_points", &rows).Error
	if err != nil || len(rows) == 0 {
		return 0, false, err
	}
	return rows[0], true, nil
}

// ListIDs returns every user id in a stable order.
func (r *UserRepository) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&db.User{}).Order("id").Pluck("id", &ids).Error
	return ids, err
}

package points

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/oggyb/survey-exchange/internal/db"
	"github.com/oggyb/survey-exchange/internal/repository"
	"github.com/oggyb/survey-exchange/internal/utils/text"
)

const maxDescriptionRunes = 255

// TotalsCache is a read-through cache for user totals. Optional.
// gen is the user's append generation at snapshot time; FillTotal must not
// store a value once an append has moved it.
type TotalsCache interface {
	SnapshotTotal(ctx context.Context, userID string) (total int, found bool, gen int64, err error)
	FillTotal(ctx context.Context, userID string, total int, gen int64) (stored bool, err error)
	SetTotal(ctx context.Context, userID string, total int) error
}

// Listener is notified after a record and its total increment were written.
type Listener interface {
	OnPointsAdded(ctx context.Context, rec db.PointRecord)
}

// ListenerFunc adapts a plain function to Listener.
type ListenerFunc func(ctx context.Context, rec db.PointRecord)

func (f ListenerFunc) OnPointsAdded(ctx context.Context, rec db.PointRecord) { f(ctx, rec) }

// Ledger is the single writer of point records and user totals.
//
// Records are append-only. Each append is two writes (record, then an atomic
// total increment); a failed increment leaves drift that Reconcile repairs.
type Ledger struct {
	users     *repository.UserRepository
	records   *repository.PointsRepository
	matches   *repository.MatchRepository
	totals    TotalsCache
	clock     clockwork.Clock
	log       *slog.Logger
	listeners []Listener
}

// NewLedger wires a ledger. totals may be nil to always read the DB.
func NewLedger(
	users *repository.UserRepository,
	records *repository.PointsRepository,
	matches *repository.MatchRepository,
	totals TotalsCache,
	clock clockwork.Clock,
	log *slog.Logger,
) *Ledger {
	return &Ledger{
		users:   users,
		records: records,
		matches: matches,
		totals:  totals,
		clock:   clock,
		log:     log.With("service", "points"),
	}
}

// Subscribe registers l for every future append.
func (l *Ledger) Subscribe(listener Listener) {
	l.listeners = append(l.listeners, listener)
}

// AddPointsRecord appends a record and applies it to the user's total.
//
// Behavior:
//   - Creates the user's profile with total 0 if it does not exist.
//   - Appends the immutable record, then increments the total atomically.
//   - If the increment fails the record id is still returned together with
//     the error; the drift is left for Reconcile.
//   - Listeners run only after both writes succeeded.
//
// Example:
//
//	ledger.AddPointsRecord(ctx, "u1", 10, db.PointsSurveyComplete, "completed survey: Sleep", &surveyID)
func (l *Ledger) AddPointsRecord(
	ctx context.Context,
	userID string,
	points int,
	typ db.PointType,
	description string,
	relatedID *string,
) (string, error) {
	if err := l.users.EnsureExists(ctx, userID); err != nil {
		return "", fmt.Errorf("ensure points profile: %w", err)
	}

	rec := db.PointRecord{
		ID:          uuid.NewString(),
		UserID:      userID,
		Points:      points,
		Type:        typ,
		Description: text.Plain(description, maxDescriptionRunes),
		RelatedID:   relatedID,
		CreatedAt:   l.clock.Now().UTC(),
	}
	if err := l.records.Create(ctx, &rec); err != nil {
		return "", fmt.Errorf("append points record: %w", err)
	}

	if err := l.users.IncrementPoints(ctx, userID, points); err != nil {
		l.log.Error("points total increment failed, total drifted",
			"user", userID, "record", rec.ID, "points", points, "err", err)
		return rec.ID, fmt.Errorf("increment points total: %w", err)
	}

	l.log.Debug("points record added", "user", userID, "record", rec.ID, "type", typ, "points", points)

	for _, listener := range l.listeners {
		listener.OnPointsAdded(ctx, rec)
	}
	return rec.ID, nil
}

// GetUserTotalPoints returns the cached total, 0 when the user has no profile.
//
// Cache-first strategy:
//  1. Attempts to read from the totals cache.
//  2. On a miss or cache error falls back to the users table.
//  3. On DB fetch, fills the cache unless an append happened in between.
func (l *Ledger) GetUserTotalPoints(ctx context.Context, userID string) (int, error) {
	var (
		gen     int64
		canFill bool
	)
	if l.totals != nil {
		total, found, g, err := l.totals.SnapshotTotal(ctx, userID)
		if err == nil && found {
			return total, nil
		}
		gen, canFill = g, err == nil
	}

	total, found, err := l.users.GetTotalPoints(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}

	if canFill {
		_, _ = l.totals.FillTotal(ctx, userID, total, gen)
	}
	return total, nil
}

// GetUserPointsRecords returns history newest first. limit <= 0 returns all.
func (l *Ledger) GetUserPointsRecords(ctx context.Context, userID string, limit int) ([]db.PointRecord, error) {
	return l.records.ListByUser(ctx, userID, limit)
}

// ListPointsRecords returns one page of history and the token of the next page.
func (l *Ledger) ListPointsRecords(ctx context.Context, userID, pageToken string, limit int) ([]db.PointRecord, *string, error) {
	if limit <= 0 {
		limit = 20
	}
	return l.records.ListPage(ctx, userID, pageToken, limit)
}

// HasRecord reports whether a record of typ tied to relatedID exists for the user.
func (l *Ledger) HasRecord(ctx context.Context, userID string, typ db.PointType, relatedID string) (bool, error) {
	return l.records.Exists(ctx, userID, typ, relatedID)
}

// Now is the ledger's clock reading, used by callers computing stats.
func (l *Ledger) Now() time.Time {
	return l.clock.Now().UTC()
}

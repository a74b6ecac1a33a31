package matches

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/oggyb/survey-exchange/internal/auth"
	"github.com/oggyb/survey-exchange/internal/db"
	svcErr "github.com/oggyb/survey-exchange/internal/errors"
	"github.com/oggyb/survey-exchange/internal/repository"
)

const (
	RoleRequester   = "requester"
	RoleCounterpart = "counterpart"

	maxCompletionAttempts = 5
	expiryConcurrency     = 8
)

// SurveyLookup resolves survey ownership.
type SurveyLookup interface {
	Get(ctx context.Context, id string) (*db.Survey, error)
}

// ResponseExpirer expires a bound response unless it already completed.
type ResponseExpirer interface {
	ExpireIfPending(ctx context.Context, id string) (bool, error)
}

// Options are the exchange rules applied to new and completing matches.
type Options struct {
	TTL         time.Duration
	BasePoints  int
	MutualBonus int
}

// Engine owns the open → closed | closed_expired lifecycle of matches.
type Engine struct {
	matches   *repository.MatchRepository
	surveys   SurveyLookup
	responses ResponseExpirer
	clock     clockwork.Clock
	log       *slog.Logger
	opts      Options
}

func NewEngine(
	matches *repository.MatchRepository,
	surveys SurveyLookup,
	responses ResponseExpirer,
	clock clockwork.Clock,
	log *slog.Logger,
	opts Options,
) *Engine {
	return &Engine{
		matches:   matches,
		surveys:   surveys,
		responses: responses,
		clock:     clock,
		log:       log.With("service", "matches"),
		opts:      opts,
	}
}

// UserMatch is a match seen from one participant.
type UserMatch struct {
	db.Match
	Role string
}

// CompletionResult reports the effect of one side completing.
// TotalPoints is the completing side's tally after the write; PartnerUID is
// the other participant, who receives the same MutualBonus.
type CompletionResult struct {
	MatchCompleted bool
	MutualBonus    int
	TotalPoints    int
	PartnerUID     string
}

// CreateMatch opens a match between the caller and the owner of ownerSurveyID.
//
// Behavior:
//   - Requires an identity in ctx (ErrUnauthenticated otherwise).
//   - The owner survey must exist and carry an owner (ErrNotFound otherwise).
//   - A user cannot match their own survey (ErrInvalidArgument).
//   - The match expires after the configured TTL.
func (e *Engine) CreateMatch(ctx context.Context, ownerSurveyID string, selectedMySurveyID *string) (*db.Match, error) {
	requester, ok := auth.FromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("create match: %w", svcErr.ErrUnauthenticated)
	}

	survey, err := e.surveys.Get(ctx, ownerSurveyID)
	if err != nil {
		return nil, fmt.Errorf("resolve owner survey: %w", err)
	}
	if survey.CreatedBy == "" {
		return nil, fmt.Errorf("survey %s has no owner: %w", ownerSurveyID, svcErr.ErrNotFound)
	}
	if survey.CreatedBy == requester.UserID {
		return nil, fmt.Errorf("cannot match your own survey: %w", svcErr.ErrInvalidArgument)
	}

	now := e.clock.Now().UTC()
	m := &db.Match{
		ID:                 uuid.NewString(),
		OwnerSurveyID:      ownerSurveyID,
		RequesterUID:       requester.UserID,
		SelectedMySurveyID: selectedMySurveyID,
		CounterpartUID:     survey.CreatedBy,
		Status:             db.MatchOpen,
		CreatedAt:          now,
		ExpireAt:           now.Add(e.opts.TTL),
		MutualBonus:        e.opts.MutualBonus,
	}
	if err := e.matches.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create match: %w", err)
	}

	e.log.Info("match created", "match", m.ID, "requester", m.RequesterUID, "counterpart", m.CounterpartUID)
	return m, nil
}

func (e *Engine) GetMatch(ctx context.Context, id string) (*db.Match, error) {
	return e.matches.Get(ctx, id)
}

// UpdateMatchResponseID binds responseID to one side. Re-binding overwrites.
func (e *Engine) UpdateMatchResponseID(ctx context.Context, matchID, responseID string, isRequester bool) error {
	if err := e.matches.SetResponseID(ctx, matchID, responseID, isRequester); err != nil {
		return fmt.Errorf("bind response to match: %w", err)
	}
	return nil
}

// MarkMatchCompleted records that completedBy finished their side.
//
// Behavior:
//   - The side is requester when completedBy == requesterUid, counterpart otherwise.
//   - The side is marked done and its tally set to the base points.
//   - If the other side is already done and the match is open, the match
//     closes and both tallies get the mutual bonus.
//   - Each write is guarded by the match version and retried on conflict,
//     so concurrent completions award the bonus exactly once.
//   - Completing an already-done side changes nothing (MutualBonus 0).
func (e *Engine) MarkMatchCompleted(ctx context.Context, matchID, completedBy string) (CompletionResult, error) {
	for attempt := 0; attempt < maxCompletionAttempts; attempt++ {
		m, err := e.matches.Get(ctx, matchID)
		if err != nil {
			return CompletionResult{}, err
		}

		isRequester := completedBy == m.RequesterUID
		selfDone, otherDone := m.CounterpartDone, m.RequesterDone
		selfPoints, partner := m.CounterpartPoints, m.RequesterUID
		if isRequester {
			selfDone, otherDone = m.RequesterDone, m.CounterpartDone
			selfPoints, partner = m.RequesterPoints, m.CounterpartUID
		}

		if selfDone {
			return CompletionResult{
				MatchCompleted: m.Status == db.MatchClosed,
				TotalPoints:    selfPoints,
				PartnerUID:     partner,
			}, nil
		}

		selfPrefix, otherPrefix := "counterpart", "requester"
		otherPoints := m.RequesterPoints
		if isRequester {
			selfPrefix, otherPrefix = "requester", "counterpart"
			otherPoints = m.CounterpartPoints
		}

		res := CompletionResult{TotalPoints: e.opts.BasePoints, PartnerUID: partner}
		updates := map[string]any{
			selfPrefix + "_done":   true,
			selfPrefix + "_points": e.opts.BasePoints,
		}
		if otherDone && m.Status == db.MatchOpen {
			res.MatchCompleted = true
			res.MutualBonus = m.MutualBonus
			res.TotalPoints = e.opts.BasePoints + m.MutualBonus
			updates["status"] = db.MatchClosed
			updates[selfPrefix+"_points"] = res.TotalPoints
			updates[otherPrefix+"_points"] = otherPoints + m.MutualBonus
		}

		ok, err := e.matches.UpdateVersioned(ctx, m.ID, m.Version, updates)
		if err != nil {
			return CompletionResult{}, fmt.Errorf("mark match completed: %w", err)
		}
		if ok {
			e.log.Info("match side completed",
				"match", m.ID, "by", completedBy, "closed", res.MatchCompleted, "mutual_bonus", res.MutualBonus)
			return res, nil
		}
		e.log.Debug("match version conflict, retrying", "match", m.ID, "attempt", attempt+1)
	}
	return CompletionResult{}, fmt.Errorf("mark match %s completed: %w", matchID, svcErr.ErrConflict)
}

// GetUserMatches returns every match the user takes part in, newest first.
// Both sides are queried concurrently.
func (e *Engine) GetUserMatches(ctx context.Context, userID string) ([]UserMatch, error) {
	var asRequester, asCounterpart []db.Match

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		asRequester, err = e.matches.ListByRequester(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		asCounterpart, err = e.matches.ListByCounterpart(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("list user matches: %w", err)
	}

	out := make([]UserMatch, 0, len(asRequester)+len(asCounterpart))
	for _, m := range asRequester {
		out = append(out, UserMatch{Match: m, Role: RoleRequester})
	}
	for _, m := range asCounterpart {
		out = append(out, UserMatch{Match: m, Role: RoleCounterpart})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// ListOpenExpired returns open matches past their deadline. A non-empty
// userID restricts the result to that user's matches.
func (e *Engine) ListOpenExpired(ctx context.Context, userID string) ([]db.Match, error) {
	return e.matches.ListOpenExpired(ctx, e.clock.Now().UTC(), userID)
}

// ExpireMatches closes every open match past its deadline.
//
// Behavior:
//   - Only rows still open flip to closed_expired, so a second run counts 0.
//   - For each flipped match, every side with a bound response that is not
//     done has that response expired (pending only; failures are logged).
//   - Matches are processed concurrently.
func (e *Engine) ExpireMatches(ctx context.Context) (int, error) {
	expired, err := e.ListOpenExpired(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("list expired matches: %w", err)
	}

	var count atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(expiryConcurrency)
	for _, m := range expired {
		g.Go(func() error {
			flipped, err := e.matches.ExpireIfOpen(gctx, m.ID)
			if err != nil {
				e.log.Error("expire match failed", "match", m.ID, "err", err)
				return nil
			}
			if !flipped {
				return nil
			}
			count.Add(1)

			if m.RequesterResponseID != nil && !m.RequesterDone {
				e.expireResponse(gctx, m.ID, *m.RequesterResponseID)
			}
			if m.CounterpartResponseID != nil && !m.CounterpartDone {
				e.expireResponse(gctx, m.ID, *m.CounterpartResponseID)
			}
			return nil
		})
	}
	_ = g.Wait()

	if n := count.Load(); n > 0 {
		e.log.Info("matches expired", "count", n)
	}
	return int(count.Load()), nil
}

func (e *Engine) expireResponse(ctx context.Context, matchID, responseID string) {
	if _, err := e.responses.ExpireIfPending(ctx, responseID); err != nil {
		e.log.Error("expire match response failed", "match", matchID, "response", responseID, "err", err)
	}
}

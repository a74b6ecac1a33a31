package expiry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oggyb/survey-exchange/internal/db"
)

const unknownSurveyTitle = "unknown survey"

// MatchSource is the match engine surface the sweeper needs.
type MatchSource interface {
	ListOpenExpired(ctx context.Context, userID string) ([]db.Match, error)
	ExpireMatches(ctx context.Context) (int, error)
}

// ResponseExpirer expires overdue pending responses.
type ResponseExpirer interface {
	ExpireResponses(ctx context.Context) (int64, error)
}

// PenaltyLedger posts and deduplicates penalties.
type PenaltyLedger interface {
	HasRecord(ctx context.Context, userID string, typ db.PointType, relatedID string) (bool, error)
	AddPointsRecord(ctx context.Context, userID string, points int, typ db.PointType, description string, relatedID *string) (string, error)
}

// SurveyLookup resolves survey titles for penalty descriptions.
type SurveyLookup interface {
	Get(ctx context.Context, id string) (*db.Survey, error)
}

// Report summarizes one sweep.
type Report struct {
	Checked          int
	Penalized        int
	ExpiredMatches   int
	ExpiredResponses int64
}

// Sweeper penalizes unfinished sides of overdue matches and delegates the
// status transitions to the match and response engines. It never flips a
// match status itself.
type Sweeper struct {
	matches   MatchSource
	responses ResponseExpirer
	ledger    PenaltyLedger
	surveys   SurveyLookup
	penalty   int
	log       *slog.Logger
}

func NewSweeper(
	matches MatchSource,
	responses ResponseExpirer,
	ledger PenaltyLedger,
	surveys SurveyLookup,
	penaltyPoints int,
	log *slog.Logger,
) *Sweeper {
	return &Sweeper{
		matches:   matches,
		responses: responses,
		ledger:    ledger,
		surveys:   surveys,
		penalty:   penaltyPoints,
		log:       log.With("service", "expiry"),
	}
}

// CheckExpiredMatches is the per-actor pass: the actor's overdue open
// matches are penalized on the actor's side if it is not done, then the
// match engine expires every overdue match.
func (s *Sweeper) CheckExpiredMatches(ctx context.Context, actorUID string) (Report, error) {
	var rep Report

	overdue, err := s.matches.ListOpenExpired(ctx, actorUID)
	if err != nil {
		return rep, fmt.Errorf("list overdue matches: %w", err)
	}
	rep.Checked = len(overdue)

	for _, m := range overdue {
		isRequester := m.RequesterUID == actorUID
		done := m.CounterpartDone
		if isRequester {
			done = m.RequesterDone
		}
		if !done && s.penalize(ctx, m, actorUID, isRequester) {
			rep.Penalized++
		}
	}

	rep.ExpiredMatches, err = s.matches.ExpireMatches(ctx)
	if err != nil {
		return rep, err
	}
	return rep, nil
}

// Sweep covers every actor at once: each undone side of every overdue
// open match is penalized, then matches and responses are expired.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	var rep Report

	overdue, err := s.matches.ListOpenExpired(ctx, "")
	if err != nil {
		return rep, fmt.Errorf("list overdue matches: %w", err)
	}
	rep.Checked = len(overdue)

	for _, m := range overdue {
		if !m.RequesterDone && s.penalize(ctx, m, m.RequesterUID, true) {
			rep.Penalized++
		}
		if !m.CounterpartDone && s.penalize(ctx, m, m.CounterpartUID, false) {
			rep.Penalized++
		}
	}

	rep.ExpiredMatches, err = s.matches.ExpireMatches(ctx)
	if err != nil {
		return rep, err
	}
	rep.ExpiredResponses, err = s.responses.ExpireResponses(ctx)
	if err != nil {
		return rep, err
	}

	s.log.Info("sweep finished",
		"checked", rep.Checked, "penalized", rep.Penalized,
		"expired_matches", rep.ExpiredMatches, "expired_responses", rep.ExpiredResponses)
	return rep, nil
}

// penalize posts one penalty for uid on m unless one already exists.
// Failures are logged; the sweep carries on.
func (s *Sweeper) penalize(ctx context.Context, m db.Match, uid string, isRequester bool) bool {
	exists, err := s.ledger.HasRecord(ctx, uid, db.PointsPenalty, m.ID)
	if err != nil {
		s.log.Error("penalty lookup failed", "match", m.ID, "user", uid, "err", err)
		return false
	}
	if exists {
		return false
	}

	// the requester owed a fill of the owner survey, the counterpart of the selected one
	surveyID := m.SelectedMySurveyID
	if isRequester {
		surveyID = &m.OwnerSurveyID
	}

	matchID := m.ID
	desc := "not completed in time: " + s.surveyTitle(ctx, surveyID)
	if _, err := s.ledger.AddPointsRecord(ctx, uid, -s.penalty, db.PointsPenalty, desc, &matchID); err != nil {
		s.log.Error("penalty posting failed", "match", m.ID, "user", uid, "err", err)
		return false
	}

	s.log.Info("penalty applied", "match", m.ID, "user", uid, "points", -s.penalty)
	return true
}

func (s *Sweeper) surveyTitle(ctx context.Context, surveyID *string) string {
	if surveyID == nil || *surveyID == "" {
		return unknownSurveyTitle
	}
	survey, err := s.surveys.Get(ctx, *surveyID)
	if err != nil {
		s.log.Warn("penalty title lookup failed", "survey", *surveyID, "err", err)
		return unknownSurveyTitle
	}
	return survey.Title
}

package responses

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/oggyb/survey-exchange/internal/auth"
	"github.com/oggyb/survey-exchange/internal/db"
	svcErr "github.com/oggyb/survey-exchange/internal/errors"
	"github.com/oggyb/survey-exchange/internal/repository"
	"github.com/oggyb/survey-exchange/internal/service/matches"
)

// IdentityResolver yields the respondent, creating an anonymous one if needed.
type IdentityResolver interface {
	Ensure(ctx context.Context) (id auth.Identity, created bool, err error)
}

// PointsPoster appends ledger entries.
type PointsPoster interface {
	AddPointsRecord(ctx context.Context, userID string, points int, typ db.PointType, description string, relatedID *string) (string, error)
}

// MatchCompleter is the part of the match engine a verification drives.
type MatchCompleter interface {
	GetMatch(ctx context.Context, id string) (*db.Match, error)
	UpdateMatchResponseID(ctx context.Context, matchID, responseID string, isRequester bool) error
	MarkMatchCompleted(ctx context.Context, matchID, completedBy string) (matches.CompletionResult, error)
}

// LinkSigner signs the verify callback for one pending response.
type LinkSigner interface {
	IssueVerify(id auth.Identity, responseID string, ttl time.Duration) (string, error)
}

type Options struct {
	TTL              time.Duration
	DefaultIncentive int
	// PublicURL is the externally reachable base of the verify callback.
	PublicURL string
	// Links, when set, appends a signed token to every VerifyURL.
	Links LinkSigner
}

// Visit describes the client a response or verification comes from.
type Visit struct {
	UserAgent string
	IPAddress string
	Referrer  string
	SessionID string
}

// Engine tracks fills from pending to completed or expired and runs the
// verification round trip.
type Engine struct {
	responses     *repository.ResponseRepository
	surveys       *repository.SurveyRepository
	verifications *repository.VerificationRepository
	identity      IdentityResolver
	points        PointsPoster
	matches       MatchCompleter
	clock         clockwork.Clock
	log           *slog.Logger
	opts          Options
}

func NewEngine(
	responses *repository.ResponseRepository,
	surveys *repository.SurveyRepository,
	verifications *repository.VerificationRepository,
	identity IdentityResolver,
	points PointsPoster,
	matches MatchCompleter,
	clock clockwork.Clock,
	log *slog.Logger,
	opts Options,
) *Engine {
	return &Engine{
		responses:     responses,
		surveys:       surveys,
		verifications: verifications,
		identity:      identity,
		points:        points,
		matches:       matches,
		clock:         clock,
		log:           log.With("service", "responses"),
		opts:          opts,
	}
}

// PendingResponse is the outcome of starting a fill.
type PendingResponse struct {
	ResponseID      string
	IsNew           bool
	Identity        auth.Identity
	IdentityCreated bool
}

// CreatePendingResponse starts a fill of surveyID for the caller.
//
// Behavior:
//   - Creates an anonymous identity when ctx carries none.
//   - Returns the caller's existing pending response (IsNew=false); when a
//     matchId is given it is tied to that match first.
//   - Otherwise creates a pending response expiring after the configured TTL.
//   - The lookup-then-create is not atomic; two simultaneous starts may both create.
func (e *Engine) CreatePendingResponse(ctx context.Context, surveyID string, matchID *string, visit Visit) (PendingResponse, error) {
	id, created, err := e.identity.Ensure(ctx)
	if err != nil {
		return PendingResponse{}, fmt.Errorf("resolve respondent: %w", err)
	}
	out := PendingResponse{Identity: id, IdentityCreated: created}

	existing, err := e.responses.FindPending(ctx, surveyID, id.UserID)
	if err != nil {
		return out, fmt.Errorf("lookup pending response: %w", err)
	}
	if existing != nil {
		if matchID != nil && (existing.MatchID == nil || *existing.MatchID != *matchID) {
			ok, err := e.responses.SetMatchID(ctx, existing.ID, *matchID)
			if err != nil {
				return out, fmt.Errorf("tie pending response to match: %w", err)
			}
			if !ok {
				return out, fmt.Errorf("response %s is no longer pending: %w", existing.ID, svcErr.ErrConflict)
			}
		}
		out.ResponseID = existing.ID
		return out, nil
	}

	now := e.clock.Now().UTC()
	resp := &db.Response{
		ID:           uuid.NewString(),
		SurveyID:     surveyID,
		RespondentID: id.UserID,
		Status:       db.ResponsePending,
		StartedAt:    now,
		ExpireAt:     now.Add(e.opts.TTL),
		MatchID:      matchID,
		UserAgent:    visit.UserAgent,
		IPAddress:    visit.IPAddress,
		Metadata: map[string]any{
			"referrer":  visit.Referrer,
			"sessionId": visit.SessionID,
		},
	}
	if err := e.responses.Create(ctx, resp); err != nil {
		return out, fmt.Errorf("create pending response: %w", err)
	}

	e.log.Debug("pending response created", "response", resp.ID, "survey", surveyID, "respondent", id.UserID)
	out.ResponseID = resp.ID
	out.IsNew = true
	return out, nil
}

// FillStart is what a client needs to go fill the external survey.
type FillStart struct {
	PendingResponse
	VerifyURL string
}

// StartFill creates (or reuses) the pending response and, for a match fill,
// binds it on the caller's side of the match.
//
// Behavior:
//   - A match fill requires an identity that is a participant of the open match.
//   - The requester fills the owner survey, the counterpart fills the selected survey.
//   - VerifyURL is where the external survey must redirect on completion. It
//     carries a token bound to the response, so the redirect needs no header.
func (e *Engine) StartFill(ctx context.Context, surveyID string, matchID *string, visit Visit) (FillStart, error) {
	var isRequester bool
	if matchID != nil {
		caller, ok := auth.FromContext(ctx)
		if !ok {
			return FillStart{}, fmt.Errorf("match fill: %w", svcErr.ErrUnauthenticated)
		}
		m, err := e.matches.GetMatch(ctx, *matchID)
		if err != nil {
			return FillStart{}, err
		}
		if err := checkMatchSide(m, caller.UserID, surveyID); err != nil {
			return FillStart{}, err
		}
		isRequester = caller.UserID == m.RequesterUID
	}

	pending, err := e.CreatePendingResponse(ctx, surveyID, matchID, visit)
	if err != nil {
		return FillStart{}, err
	}

	if matchID != nil {
		if err := e.matches.UpdateMatchResponseID(ctx, *matchID, pending.ResponseID, isRequester); err != nil {
			return FillStart{}, err
		}
	}

	q := url.Values{"surveyId": {surveyID}}
	if e.opts.Links != nil {
		tok, err := e.opts.Links.IssueVerify(pending.Identity, pending.ResponseID, e.opts.TTL)
		if err != nil {
			return FillStart{}, fmt.Errorf("sign verify link: %w", err)
		}
		q.Set("token", tok)
	}

	return FillStart{
		PendingResponse: pending,
		VerifyURL:       e.opts.PublicURL + "/verify?" + q.Encode(),
	}, nil
}

func checkMatchSide(m *db.Match, uid, surveyID string) error {
	if m.Status != db.MatchOpen {
		return fmt.Errorf("match %s is %s: %w", m.ID, m.Status, svcErr.ErrInvalidArgument)
	}
	switch uid {
	case m.RequesterUID:
		if surveyID != m.OwnerSurveyID {
			return fmt.Errorf("requester must fill survey %s: %w", m.OwnerSurveyID, svcErr.ErrInvalidArgument)
		}
	case m.CounterpartUID:
		if m.SelectedMySurveyID != nil && surveyID != *m.SelectedMySurveyID {
			return fmt.Errorf("counterpart must fill survey %s: %w", *m.SelectedMySurveyID, svcErr.ErrInvalidArgument)
		}
	default:
		return fmt.Errorf("not a participant of match %s: %w", m.ID, svcErr.ErrInvalidArgument)
	}
	return nil
}

// GetUserResponses returns the respondent's responses, newest first.
func (e *Engine) GetUserResponses(ctx context.Context, userID string) ([]db.Response, error) {
	return e.responses.ListByRespondent(ctx, userID)
}

// ExpireResponses expires every pending response past its deadline.
func (e *Engine) ExpireResponses(ctx context.Context) (int64, error) {
	n, err := e.responses.ExpireOverdue(ctx, e.clock.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("expire responses: %w", err)
	}
	if n > 0 {
		e.log.Info("responses expired", "count", n)
	}
	return n, nil
}

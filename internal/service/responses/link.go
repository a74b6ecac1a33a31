package responses

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/oggyb/survey-exchange/internal/auth"
	"github.com/oggyb/survey-exchange/internal/db"
	svcErr "github.com/oggyb/survey-exchange/internal/errors"
)

// LinkVerificationResult is the outcome of a verification-link visit.
type LinkVerificationResult struct {
	Success        bool
	Code           string
	Message        string
	SurveyID       string
	SurveyTitle    string
	VerificationID string
}

// ProcessVerification records a visit to a survey's verification link.
//
// Behavior:
//   - The link must belong to an active survey (LINK_INVALID).
//   - A survey that reached its target count takes no more (TARGET_REACHED).
//   - A user or session verifies a link once (DUPLICATE_VERIFICATION).
//   - On success a verification row is stored and the survey's fill and
//     verification counters are bumped (best-effort).
func (e *Engine) ProcessVerification(ctx context.Context, verificationID string, visit Visit) LinkVerificationResult {
	log := e.log.With("verification_id", verificationID)

	survey, err := e.surveys.GetActiveByVerificationID(ctx, verificationID)
	if errors.Is(err, svcErr.ErrNotFound) {
		return LinkVerificationResult{Code: CodeLinkInvalid, Message: "verification link is invalid or inactive"}
	}
	if err != nil {
		log.Error("resolve verification link failed", "err", err)
		return LinkVerificationResult{Code: CodeVerificationError, Message: "verification failed"}
	}

	out := LinkVerificationResult{SurveyID: survey.ID, SurveyTitle: survey.Title}

	if survey.TargetCount > 0 && survey.Filled >= survey.TargetCount {
		out.Code, out.Message = CodeTargetReached, "survey has reached its target"
		return out
	}

	var userID *string
	if id, ok := auth.FromContext(ctx); ok {
		userID = &id.UserID
	}

	dup, err := e.verifications.Exists(ctx, verificationID, deref(userID), visit.SessionID)
	if err != nil {
		log.Error("duplicate check failed", "err", err)
		out.Code, out.Message = CodeVerificationError, "verification failed"
		return out
	}
	if dup {
		out.Code, out.Message = CodeDuplicateVerification, "already verified"
		return out
	}

	v := &db.Verification{
		ID:             uuid.NewString(),
		VerificationID: verificationID,
		SurveyID:       survey.ID,
		UserID:         userID,
		SessionID:      visit.SessionID,
		UserAgent:      visit.UserAgent,
		IPAddress:      visit.IPAddress,
		Status:         db.VerificationVerified,
		VerifiedAt:     e.clock.Now().UTC(),
		Metadata:       map[string]any{"referrer": visit.Referrer},
	}
	if err := e.verifications.Create(ctx, v); err != nil {
		log.Error("store verification failed", "err", err)
		out.Code, out.Message = CodeVerificationError, "verification failed"
		return out
	}

	if err := e.surveys.RecordVerification(ctx, survey.ID); err != nil {
		log.Warn("survey counters update failed", "survey", survey.ID, "err", err)
	}

	out.Success = true
	out.Message = "verified"
	out.VerificationID = v.ID
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// VerificationStats summarizes a survey's link verifications.
// DailyCounts is keyed by UTC date (2006-01-02).
type VerificationStats struct {
	Total        int
	Completed    int
	StatusCounts map[string]int
	DailyCounts  map[string]int
}

// GetVerificationStats is only available to the survey's creator.
func (e *Engine) GetVerificationStats(ctx context.Context, surveyID string) (VerificationStats, error) {
	caller, ok := auth.FromContext(ctx)
	if !ok {
		return VerificationStats{}, fmt.Errorf("verification stats: %w", svcErr.ErrUnauthenticated)
	}
	survey, err := e.surveys.Get(ctx, surveyID)
	if err != nil {
		return VerificationStats{}, err
	}
	if survey.CreatedBy != caller.UserID {
		return VerificationStats{}, fmt.Errorf("survey %s stats: %w", surveyID, svcErr.ErrForbidden)
	}

	rows, err := e.verifications.ListBySurvey(ctx, surveyID)
	if err != nil {
		return VerificationStats{}, fmt.Errorf("list verifications: %w", err)
	}

	st := VerificationStats{
		Total:        len(rows),
		StatusCounts: make(map[string]int),
		DailyCounts:  make(map[string]int),
	}
	for _, v := range rows {
		st.StatusCounts[v.Status]++
		if v.Status == db.VerificationVerified {
			st.Completed++
		}
		st.DailyCounts[v.VerifiedAt.UTC().Format("2006-01-02")]++
	}
	return st, nil
}

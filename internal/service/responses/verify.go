package responses

import (
	"context"
	"errors"

	"github.com/oggyb/survey-exchange/internal/auth"
	"github.com/oggyb/survey-exchange/internal/db"
	svcErr "github.com/oggyb/survey-exchange/internal/errors"
)

// Result codes of the verification entry points.
const (
	CodeNoPendingResponse     = "NO_PENDING_RESPONSE"
	CodeSurveyNotFound        = "SURVEY_NOT_FOUND"
	CodeNoIdentity            = "NO_IDENTITY"
	CodeVerificationError     = "VERIFICATION_ERROR"
	CodeAlreadyVerified       = "ALREADY_VERIFIED"
	CodeLinkInvalid           = "LINK_INVALID"
	CodeTargetReached         = "TARGET_REACHED"
	CodeDuplicateVerification = "DUPLICATE_VERIFICATION"
)

// VerificationResult is returned instead of an error; callers branch on Success/Code.
type VerificationResult struct {
	Success        bool
	Code           string
	Message        string
	BasePoints     int
	MutualBonus    int
	TotalPoints    int
	MatchCompleted bool
	SurveyTitle    string
	ResponseID     string

	Identity        auth.Identity
	IdentityCreated bool
}

func failed(code, msg string) VerificationResult {
	return VerificationResult{Code: code, Message: msg}
}

// VerifyResponse completes the caller's pending response on surveyID when
// they return from the external survey.
//
// Behavior:
//  1. Resolves the respondent (anonymous if needed).
//  2. Finds the pending response, NO_PENDING_RESPONSE otherwise.
//  3. Loads the survey, SURVEY_NOT_FOUND otherwise.
//  4. Base points are the survey incentive, or the default when unset.
//  5. Moves the response to completed; only a pending row moves, so a
//     concurrent second verification gets ALREADY_VERIFIED.
//  6. Bumps the survey fill counter.
//  7. Posts survey_complete points.
//  8. For a match fill, marks the side completed and posts any mutual bonus.
//
// Steps 6 to 8 fail independently and are only logged; the completed
// response and its award stand.
func (e *Engine) VerifyResponse(ctx context.Context, surveyID string) VerificationResult {
	id, created, err := e.identity.Ensure(ctx)
	if err != nil {
		e.log.Error("resolve respondent failed", "survey", surveyID, "err", err)
		return failed(CodeNoIdentity, "could not resolve a respondent identity")
	}
	return e.verify(ctx, surveyID, id, created, "")
}

// VerifyLinkedResponse is VerifyResponse for the redirect callback. The
// respondent must already be in ctx; no anonymous identity is created. A
// non-empty responseID restricts the match to that pending response.
func (e *Engine) VerifyLinkedResponse(ctx context.Context, surveyID, responseID string) VerificationResult {
	id, ok := auth.FromContext(ctx)
	if !ok {
		return failed(CodeNoIdentity, "verification link is missing or invalid")
	}
	return e.verify(ctx, surveyID, id, false, responseID)
}

func (e *Engine) verify(ctx context.Context, surveyID string, id auth.Identity, created bool, responseID string) VerificationResult {
	log := e.log.With("survey", surveyID)
	withID := func(r VerificationResult) VerificationResult {
		r.Identity, r.IdentityCreated = id, created
		return r
	}

	resp, err := e.responses.FindPending(ctx, surveyID, id.UserID)
	if err != nil {
		log.Error("lookup pending response failed", "respondent", id.UserID, "err", err)
		return withID(failed(CodeVerificationError, "verification failed"))
	}
	if resp == nil || (responseID != "" && resp.ID != responseID) {
		return withID(failed(CodeNoPendingResponse, "no pending response for this survey"))
	}

	survey, err := e.surveys.Get(ctx, surveyID)
	if errors.Is(err, svcErr.ErrNotFound) {
		return withID(failed(CodeSurveyNotFound, "survey not found"))
	}
	if err != nil {
		log.Error("load survey failed", "err", err)
		return withID(failed(CodeVerificationError, "verification failed"))
	}

	basePoints := survey.Incentive
	if basePoints <= 0 {
		basePoints = e.opts.DefaultIncentive
	}

	ok, err := e.responses.CompleteIfPending(ctx, resp.ID, e.clock.Now().UTC(), basePoints)
	if err != nil {
		log.Error("complete response failed", "response", resp.ID, "err", err)
		return withID(failed(CodeVerificationError, "verification failed"))
	}
	if !ok {
		return withID(failed(CodeAlreadyVerified, "response was already verified"))
	}

	if err := e.surveys.IncrementFilled(ctx, surveyID); err != nil {
		log.Warn("fill counter increment failed", "err", err)
	}

	if _, err := e.points.AddPointsRecord(ctx, id.UserID, basePoints, db.PointsSurveyComplete,
		"completed survey: "+survey.Title, &survey.ID); err != nil {
		log.Error("survey points posting failed", "respondent", id.UserID, "err", err)
	}

	res := VerificationResult{
		Success:     true,
		BasePoints:  basePoints,
		SurveyTitle: survey.Title,
		ResponseID:  resp.ID,
	}

	if resp.MatchID != nil {
		matchID := *resp.MatchID
		completion, err := e.matches.MarkMatchCompleted(ctx, matchID, id.UserID)
		if err != nil {
			log.Error("match completion failed", "match", matchID, "err", err)
		} else {
			res.MatchCompleted = completion.MatchCompleted
			if completion.MutualBonus > 0 {
				res.MutualBonus = completion.MutualBonus
				// both participants earn the bonus; the partner is credited here too
				for _, uid := range []string{id.UserID, completion.PartnerUID} {
					if _, err := e.points.AddPointsRecord(ctx, uid, completion.MutualBonus, db.PointsMutualBonus,
						"mutual fill bonus: "+survey.Title, &matchID); err != nil {
						log.Error("mutual bonus posting failed", "match", matchID, "user", uid, "err", err)
					}
				}
			}
		}
	}

	res.TotalPoints = res.BasePoints + res.MutualBonus
	res.Message = "verified"
	log.Info("response verified", "response", resp.ID, "respondent", id.UserID,
		"base_points", res.BasePoints, "mutual_bonus", res.MutualBonus)
	return withID(res)
}

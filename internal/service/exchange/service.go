package exchange

import (
	"context"
	"net"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/survey-exchange/internal/app"
	"github.com/oggyb/survey-exchange/internal/auth"
	svcErr "github.com/oggyb/survey-exchange/internal/errors"
	"github.com/oggyb/survey-exchange/internal/service/matches"
	"github.com/oggyb/survey-exchange/internal/service/points"
	"github.com/oggyb/survey-exchange/internal/service/responses"
)

// Service implements the Exchange gRPC API on top of the domain engines.
// Each method decodes its request document, calls one engine operation
// and encodes the result.
type Service struct {
	appCtx  *app.AppContext
	engines *app.Engines
}

var _ ExchangeServer = (*Service)(nil)

func NewExchangeService(appCtx *app.AppContext, engines *app.Engines) *Service {
	return &Service{appCtx: appCtx, engines: engines}
}

func (s *Service) caller(ctx context.Context) (auth.Identity, error) {
	id, ok := auth.FromContext(ctx)
	if !ok {
		return auth.Identity{}, svcErr.Unauthenticated("sign in first")
	}
	return id, nil
}

func (s *Service) reply(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		s.appCtx.Logger.Error("encode response failed", "err", err)
		return nil, svcErr.Map(err)
	}
	return out, nil
}

// identityFields adds the identity and, when it was minted by this call,
// a bearer token the client must keep for later calls.
func (s *Service) identityFields(fields map[string]any, id auth.Identity, created bool) error {
	fields["userId"] = id.UserID
	fields["anonymous"] = id.Anonymous
	if !created {
		return nil
	}
	tok, err := s.appCtx.Tokens.Issue(id)
	if err != nil {
		return err
	}
	fields["anonymousToken"] = tok
	return nil
}

func visitFrom(ctx context.Context, in *structpb.Struct) responses.Visit {
	v := responses.Visit{
		Referrer:  str(in, "referrer"),
		SessionID: str(in, "sessionId"),
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ua := md.Get("user-agent"); len(ua) > 0 {
			v.UserAgent = ua[0]
		}
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		host, _, err := net.SplitHostPort(p.Addr.String())
		if err != nil {
			host = p.Addr.String()
		}
		v.IPAddress = host
	}
	return v
}

func (s *Service) SignInAnonymously(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	id, err := s.engines.Identity.SignInAnonymously(ctx)
	if err != nil {
		s.appCtx.Logger.Error("SignInAnonymously failed", "err", err)
		return nil, svcErr.Map(err)
	}
	tok, err := s.appCtx.Tokens.Issue(id)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return s.reply(map[string]any{"userId": id.UserID, "anonymous": true, "token": tok})
}

func (s *Service) SignIn(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	email, password := str(in, "email"), str(in, "password")
	if email == "" || password == "" {
		return nil, svcErr.InvalidArgument("email and password are required")
	}
	id, err := s.engines.Identity.SignIn(ctx, email, password)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	tok, err := s.appCtx.Tokens.Issue(id)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return s.reply(map[string]any{"userId": id.UserID, "anonymous": id.Anonymous, "token": tok})
}

// CreateMatch opens a reciprocal fill agreement on ownerSurveyId.
//
// Example:
//
//	{"ownerSurveyId": "s-1", "selectedMySurveyId": "s-9"}
func (s *Service) CreateMatch(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ownerSurveyID := str(in, "ownerSurveyId")
	if ownerSurveyID == "" {
		return nil, svcErr.InvalidArgument("ownerSurveyId is required")
	}

	m, err := s.engines.Matches.CreateMatch(ctx, ownerSurveyID, optStr(in, "selectedMySurveyId"))
	if err != nil {
		s.appCtx.Logger.Debug("CreateMatch failed", "survey", ownerSurveyID, "err", err)
		return nil, svcErr.Map(err)
	}

	um := matches.UserMatch{Match: *m, Role: matches.RoleRequester}
	return s.reply(map[string]any{"match": matchFields(um, s.appCtx.Clock.Now())})
}

// StartFill creates or reuses the caller's pending response for surveyId.
// Callers without a token get an anonymous identity and its token back.
func (s *Service) StartFill(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	surveyID := str(in, "surveyId")
	if surveyID == "" {
		return nil, svcErr.InvalidArgument("surveyId is required")
	}

	start, err := s.engines.Responses.StartFill(ctx, surveyID, optStr(in, "matchId"), visitFrom(ctx, in))
	if err != nil {
		s.appCtx.Logger.Debug("StartFill failed", "survey", surveyID, "err", err)
		return nil, svcErr.Map(err)
	}

	fields := map[string]any{
		"responseId": start.ResponseID,
		"isNew":      start.IsNew,
		"verifyUrl":  start.VerifyURL,
	}
	if err := s.identityFields(fields, start.Identity, start.IdentityCreated); err != nil {
		return nil, svcErr.Map(err)
	}
	return s.reply(fields)
}

// BindMatchResponse attaches an existing response to the caller's side of a match.
func (s *Service) BindMatchResponse(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	matchID, responseID := str(in, "matchId"), str(in, "responseId")
	if matchID == "" || responseID == "" {
		return nil, svcErr.InvalidArgument("matchId and responseId are required")
	}

	m, err := s.engines.Matches.GetMatch(ctx, matchID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	var role string
	switch id.UserID {
	case m.RequesterUID:
		role = matches.RoleRequester
	case m.CounterpartUID:
		role = matches.RoleCounterpart
	default:
		return nil, svcErr.InvalidArgument("caller is not a participant of this match")
	}

	if err := s.engines.Matches.UpdateMatchResponseID(ctx, matchID, responseID, role == matches.RoleRequester); err != nil {
		return nil, svcErr.Map(err)
	}
	return s.reply(map[string]any{"matchId": matchID, "responseId": responseID, "role": role})
}

// VerifyResponse completes the caller's pending response. Business failures
// come back as success=false with a code, not as gRPC errors.
func (s *Service) VerifyResponse(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	surveyID := str(in, "surveyId")
	if surveyID == "" {
		return nil, svcErr.InvalidArgument("surveyId is required")
	}

	res := s.engines.Responses.VerifyResponse(ctx, surveyID)
	fields := verificationFields(res)
	if res.Identity.UserID != "" {
		if err := s.identityFields(fields, res.Identity, res.IdentityCreated); err != nil {
			return nil, svcErr.Map(err)
		}
	}
	return s.reply(fields)
}

func (s *Service) ProcessVerification(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	verificationID := str(in, "verificationId")
	if verificationID == "" {
		return nil, svcErr.InvalidArgument("verificationId is required")
	}
	res := s.engines.Responses.ProcessVerification(ctx, verificationID, visitFrom(ctx, in))
	return s.reply(linkFields(res))
}

func (s *Service) ListMatches(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	id, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	ms, err := s.engines.Matches.GetUserMatches(ctx, id.UserID)
	if err != nil {
		s.appCtx.Logger.Error("GetUserMatches failed", "user", id.UserID, "err", err)
		return nil, svcErr.Map(err)
	}
	now := s.appCtx.Clock.Now()
	return s.reply(map[string]any{
		"matches": list(ms, func(m matches.UserMatch) map[string]any { return matchFields(m, now) }),
	})
}

func (s *Service) ListResponses(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	id, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	rs, err := s.engines.Responses.GetUserResponses(ctx, id.UserID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return s.reply(map[string]any{"responses": list(rs, responseFields)})
}

// GetPoints returns the caller's total and a summary of their history.
func (s *Service) GetPoints(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	id, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	total, err := s.engines.Ledger.GetUserTotalPoints(ctx, id.UserID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	records, err := s.engines.Ledger.GetUserPointsRecords(ctx, id.UserID, 0)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	stats := points.CalculatePointsStats(records, s.engines.Ledger.Now())
	return s.reply(map[string]any{"total": total, "stats": statsFields(stats)})
}

// ListPointsRecords pages through the caller's history, newest first.
//
// Example:
//
//	{"limit": 20, "pageToken": "<nextPageToken of the previous page>"}
func (s *Service) ListPointsRecords(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	records, next, err := s.engines.Ledger.ListPointsRecords(ctx, id.UserID, str(in, "pageToken"), num(in, "limit"))
	if err != nil {
		return nil, svcErr.Map(err)
	}
	fields := map[string]any{"records": list(records, recordFields)}
	if next != nil {
		fields["nextPageToken"] = *next
	}
	return s.reply(fields)
}

// CheckExpiredMatches expires the caller's overdue matches and penalizes
// whichever side did not finish.
func (s *Service) CheckExpiredMatches(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	id, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	report, err := s.engines.Sweeper.CheckExpiredMatches(ctx, id.UserID)
	if err != nil {
		s.appCtx.Logger.Error("CheckExpiredMatches failed", "user", id.UserID, "err", err)
		return nil, svcErr.Map(err)
	}
	return s.reply(reportFields(report))
}

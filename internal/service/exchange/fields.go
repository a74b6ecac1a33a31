package exchange

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/survey-exchange/internal/db"
	"github.com/oggyb/survey-exchange/internal/service/expiry"
	"github.com/oggyb/survey-exchange/internal/service/matches"
	"github.com/oggyb/survey-exchange/internal/service/points"
	"github.com/oggyb/survey-exchange/internal/service/responses"
)

// --- request helpers ---

func str(in *structpb.Struct, key string) string {
	if v, ok := in.GetFields()[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func optStr(in *structpb.Struct, key string) *string {
	if s := str(in, key); s != "" {
		return &s
	}
	return nil
}

func num(in *structpb.Struct, key string) int {
	if v, ok := in.GetFields()[key]; ok {
		return int(v.GetNumberValue())
	}
	return 0
}

// --- response helpers ---

func ts(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func ptr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func matchFields(m matches.UserMatch, now time.Time) map[string]any {
	left := matches.CalculateTimeRemaining(m.ExpireAt, now)
	return map[string]any{
		"id":                    m.ID,
		"role":                  m.Role,
		"ownerSurveyId":         m.OwnerSurveyID,
		"selectedMySurveyId":    ptr(m.SelectedMySurveyID),
		"requesterUid":          m.RequesterUID,
		"requesterResponseId":   ptr(m.RequesterResponseID),
		"counterpartUid":        m.CounterpartUID,
		"counterpartResponseId": ptr(m.CounterpartResponseID),
		"status":                string(m.Status),
		"createdAt":             ts(m.CreatedAt),
		"expireAt":              ts(m.ExpireAt),
		"requesterDone":         m.RequesterDone,
		"counterpartDone":       m.CounterpartDone,
		"requesterPoints":       m.RequesterPoints,
		"counterpartPoints":     m.CounterpartPoints,
		"mutualBonus":           m.MutualBonus,
		"timeRemaining": map[string]any{
			"expired": left.Expired,
			"text":    left.Text,
			"hours":   left.Hours,
			"minutes": left.Minutes,
		},
	}
}

func responseFields(r db.Response) map[string]any {
	var completedAt any
	if r.CompletedAt != nil {
		completedAt = ts(*r.CompletedAt)
	}
	return map[string]any{
		"id":            r.ID,
		"surveyId":      r.SurveyID,
		"status":        string(r.Status),
		"startedAt":     ts(r.StartedAt),
		"completedAt":   completedAt,
		"expireAt":      ts(r.ExpireAt),
		"pointsAwarded": r.PointsAwarded,
		"matchId":       ptr(r.MatchID),
	}
}

func recordFields(r db.PointRecord) map[string]any {
	return map[string]any{
		"id":          r.ID,
		"points":      r.Points,
		"type":        string(r.Type),
		"description": r.Description,
		"relatedId":   ptr(r.RelatedID),
		"createdAt":   ts(r.CreatedAt),
	}
}

func statsFields(st points.Stats) map[string]any {
	byType := make(map[string]any, len(st.ByType))
	for typ, t := range st.ByType {
		byType[string(typ)] = map[string]any{"count": t.Count, "points": t.Points}
	}
	return map[string]any{
		"total":     st.Total,
		"earned":    st.Earned,
		"spent":     st.Spent,
		"thisMonth": st.ThisMonth,
		"byType":    byType,
	}
}

func verificationFields(r responses.VerificationResult) map[string]any {
	return map[string]any{
		"success":        r.Success,
		"code":           r.Code,
		"message":        r.Message,
		"basePoints":     r.BasePoints,
		"mutualBonus":    r.MutualBonus,
		"totalPoints":    r.TotalPoints,
		"matchCompleted": r.MatchCompleted,
		"surveyTitle":    r.SurveyTitle,
		"responseId":     r.ResponseID,
	}
}

func linkFields(r responses.LinkVerificationResult) map[string]any {
	return map[string]any{
		"success":        r.Success,
		"code":           r.Code,
		"message":        r.Message,
		"surveyId":       r.SurveyID,
		"surveyTitle":    r.SurveyTitle,
		"verificationId": r.VerificationID,
	}
}

func reportFields(r expiry.Report) map[string]any {
	return map[string]any{
		"checked":          r.Checked,
		"penalized":        r.Penalized,
		"expiredMatches":   r.ExpiredMatches,
		"expiredResponses": r.ExpiredResponses,
	}
}

func list[T any](items []T, conv func(T) map[string]any) []any {
	out := make([]any, 0, len(items))
	for _, it := range items {
		out = append(out, conv(it))
	}
	return out
}

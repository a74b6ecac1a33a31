package exchange_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/survey-exchange/internal/auth"
	"github.com/oggyb/survey-exchange/internal/repository"
	"github.com/oggyb/survey-exchange/internal/service/exchange"
	"github.com/oggyb/survey-exchange/internal/service/responses"
)

func get(t *testing.T, h http.Handler, target, token string) (int, map[string]any) {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestHTTP_Health(t *testing.T) {
	f := setupService(t)
	h := exchange.NewHTTPHandler(f.appCtx, f.engines).Router()

	code, body := get(t, h, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestHTTP_Verify(t *testing.T) {
	f := setupService(t)
	h := exchange.NewHTTPHandler(f.appCtx, f.engines).Router()

	tok, err := f.appCtx.Tokens.Issue(auth.Identity{UserID: "B"})
	require.NoError(t, err)

	code, _ := get(t, h, "/verify", tok)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := get(t, h, "/verify?surveyId=survey-a", tok)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NO_PENDING_RESPONSE", body["code"])

	_, err = f.engines.Responses.StartFill(as("B"), "survey-a", nil, responses.Visit{})
	require.NoError(t, err)

	code, body = get(t, h, "/verify?surveyId=survey-a", tok)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(10), body["basePoints"])
	assert.Nil(t, body["anonymousToken"])

	code, _ = get(t, h, "/verify?surveyId=survey-a", "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, code)
}

// The redirect from the external survey carries no header; the signed
// link in the verify URL identifies the respondent.
func TestHTTP_VerifyURLCompletesAnonymousFill(t *testing.T) {
	f := setupService(t)
	h := exchange.NewHTTPHandler(f.appCtx, f.engines).Router()
	bg := context.Background()

	fill, err := f.engines.Responses.StartFill(bg, "survey-a", nil, responses.Visit{})
	require.NoError(t, err)
	require.True(t, fill.IdentityCreated)

	link, err := url.Parse(fill.VerifyURL)
	require.NoError(t, err)
	assert.Equal(t, "exchange.test", link.Host)
	require.NotEmpty(t, link.Query().Get("token"))

	code, body := get(t, h, link.RequestURI(), "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, fill.ResponseID, body["responseId"])

	total, err := f.engines.Ledger.GetUserTotalPoints(bg, fill.Identity.UserID)
	require.NoError(t, err)
	assert.Equal(t, 10, total)

	code, body = get(t, h, link.RequestURI(), "")
	assert.Equal(t, http.StatusNotFound, code, "the link is spent once the response completes")
	assert.Equal(t, "NO_PENDING_RESPONSE", body["code"])
}

// Without a link token or bearer the callback is refused and no user is made.
func TestHTTP_VerifyWithoutIdentityCreatesNoUser(t *testing.T) {
	f := setupService(t)
	h := exchange.NewHTTPHandler(f.appCtx, f.engines).Router()
	users := repository.NewUserRepository(f.appCtx.DB)

	before, err := users.ListIDs(context.Background())
	require.NoError(t, err)

	code, body := get(t, h, "/verify?surveyId=survey-a", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "NO_IDENTITY", body["code"])
	assert.Nil(t, body["anonymousToken"])

	code, body = get(t, h, "/verify?surveyId=survey-a&token=forged", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "NO_IDENTITY", body["code"])

	bearer, err := f.appCtx.Tokens.Issue(auth.Identity{UserID: "B"})
	require.NoError(t, err)
	code, _ = get(t, h, "/verify?surveyId=survey-a&token="+url.QueryEscape(bearer), "")
	assert.Equal(t, http.StatusUnauthorized, code, "a bearer token is not a verify link")

	after, err := users.ListIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestHTTP_VerifyLink(t *testing.T) {
	f := setupService(t)
	h := exchange.NewHTTPHandler(f.appCtx, f.engines).Router()

	code, body := get(t, h, "/verify/link?id=link-1&sessionId=s1", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "survey-link", body["surveyId"])

	code, body = get(t, h, "/verify/link?id=link-1&sessionId=s1", "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "DUPLICATE_VERIFICATION", body["code"])

	code, body = get(t, h, "/verify/link?id=missing", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "LINK_INVALID", body["code"])

	owner, err := f.appCtx.Tokens.Issue(auth.Identity{UserID: "B"})
	require.NoError(t, err)
	other, err := f.appCtx.Tokens.Issue(auth.Identity{UserID: "A"})
	require.NoError(t, err)

	code, _ = get(t, h, "/surveys/survey-link/verifications/stats", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = get(t, h, "/surveys/survey-link/verifications/stats", other)
	assert.Equal(t, http.StatusForbidden, code, "only the survey owner sees its stats")
	code, _ = get(t, h, "/surveys/missing/verifications/stats", owner)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = get(t, h, "/surveys/survey-link/verifications/stats", owner)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["total"])
	assert.Equal(t, float64(1), body["completed"])
}

func TestHTTP_RateLimit(t *testing.T) {
	f := setupService(t)
	f.appCtx.Config.HTTP.RateLimitPerMinute = 2 // burst of 1
	h := exchange.NewHTTPHandler(f.appCtx, f.engines).Router()

	code, _ := get(t, h, "/verify/link?id=missing", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, body := get(t, h, "/verify/link?id=missing", "")
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate limit exceeded", body["error"])

	code, _ = get(t, h, "/healthz", "")
	assert.Equal(t, http.StatusOK, code, "health is not rate limited")
}

// With no trusted proxies a forged X-Forwarded-For does not buy a new bucket.
func TestHTTP_RateLimitIgnoresForwardedFor(t *testing.T) {
	f := setupService(t)
	f.appCtx.Config.HTTP.RateLimitPerMinute = 2
	h := exchange.NewHTTPHandler(f.appCtx, f.engines).Router()

	send := func(xff string) int {
		r := httptest.NewRequest(http.MethodGet, "/verify/link?id=missing", nil)
		r.RemoteAddr = "192.0.2.10:4711"
		r.Header.Set("X-Forwarded-For", xff)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusNotFound, send("203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.2"))
}

// Behind a configured proxy the forwarded client address keys the bucket.
func TestHTTP_RateLimitTrustedProxy(t *testing.T) {
	f := setupService(t)
	f.appCtx.Config.HTTP.RateLimitPerMinute = 2
	f.appCtx.Config.HTTP.TrustedProxies = []string{"192.0.2.10"}
	h := exchange.NewHTTPHandler(f.appCtx, f.engines).Router()

	send := func(xff string) int {
		r := httptest.NewRequest(http.MethodGet, "/verify/link?id=missing", nil)
		r.RemoteAddr = "192.0.2.10:4711"
		r.Header.Set("X-Forwarded-For", xff)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusNotFound, send("203.0.113.1"))
	assert.Equal(t, http.StatusNotFound, send("203.0.113.2"))
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.1"))
}

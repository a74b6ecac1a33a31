package auth_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/oggyb/survey-exchange/internal/auth"
	"github.com/oggyb/survey-exchange/internal/db"
	"github.com/oggyb/survey-exchange/internal/db/dbtest"
	svcErr "github.com/oggyb/survey-exchange/internal/errors"
	"github.com/oggyb/survey-exchange/internal/repository"
)

var start = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestTokenManager_RoundTripAndExpiry(t *testing.T) {
	clock := clockwork.NewFakeClockAt(start)
	tm := auth.NewTokenManager("secret", time.Hour, clock)

	tok, err := tm.Issue(auth.Identity{UserID: "u1", Anonymous: true})
	require.NoError(t, err)

	id, err := tm.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, auth.Identity{UserID: "u1", Anonymous: true}, id)

	_, err = auth.NewTokenManager("other", time.Hour, clock).Parse(tok)
	assert.Error(t, err, "wrong secret")

	clock.Advance(2 * time.Hour)
	_, err = tm.Parse(tok)
	assert.Error(t, err, "expired")
}

func TestTokenManager_VerifyLinkToken(t *testing.T) {
	clock := clockwork.NewFakeClockAt(start)
	tm := auth.NewTokenManager("secret", 24*time.Hour, clock)
	who := auth.Identity{UserID: "u1", Anonymous: true}

	link, err := tm.IssueVerify(who, "resp-1", time.Hour)
	require.NoError(t, err)

	id, responseID, err := tm.ParseVerify(link)
	require.NoError(t, err)
	assert.Equal(t, who, id)
	assert.Equal(t, "resp-1", responseID)

	_, err = tm.Parse(link)
	assert.Error(t, err, "link token must not work as a bearer token")

	bearer, err := tm.Issue(who)
	require.NoError(t, err)
	_, _, err = tm.ParseVerify(bearer)
	assert.Error(t, err, "bearer token must not work as a link token")

	_, err = tm.IssueVerify(who, "", time.Hour)
	assert.Error(t, err)

	clock.Advance(2 * time.Hour)
	_, _, err = tm.ParseVerify(link)
	assert.Error(t, err, "link expires with the response")
}

func TestResolver_EnsureAndSignIn(t *testing.T) {
	ctx := context.Background()
	users := repository.NewUserRepository(dbtest.Open(t))
	r := auth.NewResolver(users, clockwork.NewFakeClockAt(start), discard())

	id, created, err := r.Ensure(ctx)
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, id.Anonymous)

	u, err := users.Get(ctx, id.UserID)
	require.NoError(t, err)
	assert.True(t, u.Anonymous)

	again, created, err := r.Ensure(auth.WithIdentity(ctx, id))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, again)

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	require.NoError(t, err)
	email := "alice@example.com"
	require.NoError(t, users.Create(ctx, &db.User{ID: "alice", Email: &email, PasswordHash: string(hash)}))

	signed, err := r.SignIn(ctx, email, "password")
	require.NoError(t, err)
	assert.Equal(t, "alice", signed.UserID)

	_, err = r.SignIn(ctx, email, "wrong")
	assert.ErrorIs(t, err, svcErr.ErrUnauthenticated)
	_, err = r.SignIn(ctx, "nobody@example.com", "password")
	assert.ErrorIs(t, err, svcErr.ErrUnauthenticated)
}

func TestUnaryInterceptor(t *testing.T) {
	tm := auth.NewTokenManager("secret", time.Hour, clockwork.NewFakeClockAt(start))
	intercept := auth.UnaryInterceptor(tm)
	info := &grpc.UnaryServerInfo{FullMethod: "/test/Method"}

	var seen auth.Identity
	var ok bool
	handler := func(ctx context.Context, req any) (any, error) {
		seen, ok = auth.FromContext(ctx)
		return nil, nil
	}

	tok, err := tm.Issue(auth.Identity{UserID: "u1"})
	require.NoError(t, err)

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+tok))
	_, err = intercept(ctx, nil, info, handler)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "u1", seen.UserID)

	_, err = intercept(context.Background(), nil, info, handler)
	require.NoError(t, err)
	assert.False(t, ok, "no header means no identity")

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer junk"))
	_, err = intercept(ctx, nil, info, handler)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tm := auth.NewTokenManager("secret", time.Hour, clockwork.NewFakeClockAt(start))

	r := gin.New()
	r.Use(auth.GinMiddleware(tm))
	r.GET("/whoami", func(c *gin.Context) {
		id, _ := auth.FromContext(c.Request.Context())
		c.String(http.StatusOK, id.UserID)
	})

	tok, err := tm.Issue(auth.Identity{UserID: "u9"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u9", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Token abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

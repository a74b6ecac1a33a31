package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"

	"github.com/oggyb/survey-exchange/internal/db"
	svcErr "github.com/oggyb/survey-exchange/internal/errors"
	"github.com/oggyb/survey-exchange/internal/repository"
)

// Resolver turns a request context into a respondent identity.
type Resolver struct {
	users *repository.UserRepository
	clock clockwork.Clock
	log   *slog.Logger
}

func NewResolver(users *repository.UserRepository, clock clockwork.Clock, log *slog.Logger) *Resolver {
	return &Resolver{users: users, clock: clock, log: log.With("service", "identity")}
}

// Ensure returns the identity carried by ctx, or creates a fresh anonymous
// one when there is none. created reports the latter so transports can hand
// the caller a token for it.
func (r *Resolver) Ensure(ctx context.Context) (id Identity, created bool, err error) {
	if id, ok := FromContext(ctx); ok {
		return id, false, nil
	}
	id, err = r.SignInAnonymously(ctx)
	if err != nil {
		return Identity{}, false, err
	}
	return id, true, nil
}

// SignInAnonymously creates a new anonymous user.
func (r *Resolver) SignInAnonymously(ctx context.Context) (Identity, error) {
	now := r.clock.Now().UTC()
	u := &db.User{
		ID:          uuid.NewString(),
		Anonymous:   true,
		DisplayName: "anonymous",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.users.Create(ctx, u); err != nil {
		return Identity{}, fmt.Errorf("create anonymous identity: %w", err)
	}
	r.log.Debug("anonymous identity created", "user", u.ID)
	return Identity{UserID: u.ID, Anonymous: true}, nil
}

// SignIn checks email/password for a registered account.
func (r *Resolver) SignIn(ctx context.Context, email, password string) (Identity, error) {
	u, err := r.users.GetByEmail(ctx, email)
	if errors.Is(err, svcErr.ErrNotFound) {
		return Identity{}, fmt.Errorf("bad credentials: %w", svcErr.ErrUnauthenticated)
	}
	if err != nil {
		return Identity{}, err
	}
	if u.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return Identity{}, fmt.Errorf("bad credentials: %w", svcErr.ErrUnauthenticated)
	}
	return Identity{UserID: u.ID, Anonymous: u.Anonymous}, nil
}

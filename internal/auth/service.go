package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/rolodex-app/rolodex/internal/platform/httpx"
	"github.com/rolodex-app/rolodex/internal/shared"
)

// Service wraps the registration and login flows.
type Service struct {
	repo     Repository
	hasher   *Hasher
	tokens   *TokenService
	verifier IdentityVerifier
}

// NewService constructs a new Service.
func NewService(repo Repository, hasher *Hasher, tokens *TokenService, verifier IdentityVerifier) *Service {
	return &Service{repo: repo, hasher: hasher, tokens: tokens, verifier: verifier}
}

// Register creates an account and logs it straight in.
func (s *Service) Register(ctx context.Context, in NewUser) (User, TokenEnvelope, error) {
	username, err := shared.NormalizeUsername(in.Username)
	if err != nil {
		return User{}, TokenEnvelope{}, err
	}
	in.Username = username
	in.Email = strings.ToLower(in.Email)

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return User{}, TokenEnvelope{}, err
	}
	user, err := s.repo.CreateAccount(ctx, in, hash)
	if err != nil {
		return User{}, TokenEnvelope{}, err
	}
	envelope, err := s.envelope(user)
	if err != nil {
		return User{}, TokenEnvelope{}, err
	}
	return user, envelope, nil
}

// Login validates username/password credentials. An unknown username, a
// wrong password and a passwordless account all fail identically.
func (s *Service) Login(ctx context.Context, username, password string) (TokenEnvelope, error) {
	normalized, err := shared.NormalizeUsername(username)
	if err != nil {
		return TokenEnvelope{}, shared.ErrInvalidCredentials
	}
	account, err := s.repo.FindByUsername(ctx, normalized)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return TokenEnvelope{}, shared.ErrInvalidCredentials
		}
		return TokenEnvelope{}, err
	}
	if err := s.hasher.Compare(ctx, account.PasswordHash, password); err != nil {
		return TokenEnvelope{}, err
	}
	return s.envelope(account.User)
}

// GoogleLogin verifies a federated ID token and signs the asserted identity
// in, provisioning an account on first sight. A provider outage surfaces as
// an authentication failure, not a gateway error; the cause stays in the
// chain for the log.
func (s *Service) GoogleLogin(ctx context.Context, idToken string) (TokenEnvelope, error) {
	identity, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		if errors.Is(err, httpx.ErrUpstreamUnavailable) {
			return TokenEnvelope{}, fmt.Errorf("%w: %w", httpx.ErrUnauthenticated, err)
		}
		return TokenEnvelope{}, err
	}
	account, err := s.repo.FindByEmail(ctx, identity.Email)
	if err == nil {
		return s.envelope(account.User)
	}
	if !errors.Is(err, httpx.ErrNotFound) {
		return TokenEnvelope{}, err
	}
	user, err := s.provisionFederated(ctx, identity)
	if err != nil {
		return TokenEnvelope{}, err
	}
	return s.envelope(user)
}

// provisionFederated creates an account for a first-time federated identity.
// The username is derived from the email local part; on a collision we check
// for a concurrent signup with the same email before salting the name.
func (s *Service) provisionFederated(ctx context.Context, identity FederatedIdentity) (User, error) {
	base := identity.Email
	if at := strings.Index(base, "@"); at > 0 {
		base = base[:at]
	}
	username, err := shared.NormalizeUsername(base)
	if err != nil {
		username = "user-" + identity.Subject
	}

	user, err := s.repo.CreateFederated(ctx, username, identity.Email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, httpx.ErrConflict) {
		return User{}, err
	}
	if account, findErr := s.repo.FindByEmail(ctx, identity.Email); findErr == nil {
		return account.User, nil
	}
	salted := username + "-" + uuid.NewString()[:8]
	return s.repo.CreateFederated(ctx, salted, identity.Email)
}

func (s *Service) envelope(user User) (TokenEnvelope, error) {
	token, err := s.tokens.Mint(user)
	if err != nil {
		return TokenEnvelope{}, err
	}
	return TokenEnvelope{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.tokens.TTL().Seconds()),
	}, nil
}

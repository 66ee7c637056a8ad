package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rolodex-app/rolodex/internal/platform/httpx"
	"github.com/rolodex-app/rolodex/internal/shared"
)

const tokenIssuer = "rolodex"

// Claims is the JWT payload. The subject carries the user id; username and
// role ride along so the middleware can build a principal without a database
// read.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Principal converts verified claims into a request principal. An unknown
// role value degrades to a plain user rather than erroring.
func (c *Claims) Principal() (*shared.Principal, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: token subject is not a user id", httpx.ErrUnauthenticated)
	}
	role := shared.RoleUser
	if c.Role == shared.RoleAdmin {
		role = shared.RoleAdmin
	}
	return &shared.Principal{ID: id, Username: c.Username, Role: role}, nil
}

// TokenService mints and verifies HS256 bearer tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService constructs a token service with the given shared secret
// and token lifetime.
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL reports the configured token lifetime.
func (t *TokenService) TTL() time.Duration { return t.ttl }

// Mint signs a token for the user.
func (t *TokenService) Mint(user User) (string, error) {
	role := shared.RoleUser
	if user.IsAdmin {
		role = shared.RoleAdmin
	}
	now := t.now()
	claims := Claims{
		Username: user.Username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify parses and validates a raw token. Failures wrap the unauthenticated
// sentinel for the HTTP boundary together with the library's own cause, so
// logs and tests can still tell expired from forged while the response
// cannot.
func (t *TokenService) Verify(raw string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", httpx.ErrUnauthenticated, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("%w: token rejected", httpx.ErrUnauthenticated)
	}
	return claims, nil
}

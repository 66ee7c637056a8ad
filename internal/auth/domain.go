// Package auth owns credential handling: registration, password and
// federated login, token minting and verification, and the middleware that
// turns a bearer token into a request principal. It deliberately sees only a
// flat slice of the user record; profile reads and edits live elsewhere.
package auth

import (
	"time"

	"github.com/google/uuid"
)

// User is the slice of a user record the auth flows need.
type User struct {
	ID       uuid.UUID
	Username string
	Email    string
	IsAdmin  bool
}

// Account couples a user with its stored credential hash. The hash is empty
// for accounts provisioned through a federated identity, which makes
// password login impossible for them until one is set.
type Account struct {
	User         User
	PasswordHash string
}

// NewUser carries the registration fields. The password arrives in the
// clear and is hashed before it reaches the repository.
type NewUser struct {
	Username  string
	Email     string
	Phone     *string
	BirthDate *time.Time
	Password  string
}

// TokenEnvelope is the response body for every flow that ends in a token.
type TokenEnvelope struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

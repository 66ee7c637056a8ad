package shared

import (
	"fmt"

	"golang.org/x/text/secure/precis"

	"github.com/rolodex-app/rolodex/internal/platform/httpx"
)

// NormalizeUsername canonicalizes a username through the PRECIS
// UsernameCaseMapped profile, so "Alice" and "alice" resolve to one account
// and confusable or control characters are rejected. Registration and
// profile updates must both pass through here or lookups will diverge.
func NormalizeUsername(raw string) (string, error) {
	normalized, err := precis.UsernameCaseMapped.String(raw)
	if err != nil {
		return "", fmt.Errorf("%w: username contains invalid characters", httpx.ErrValidation)
	}
	return normalized, nil
}

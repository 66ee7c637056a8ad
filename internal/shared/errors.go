package shared

import (
	"fmt"

	"github.com/rolodex-app/rolodex/internal/platform/httpx"
)

// ErrInvalidCredentials covers every way a login can fail: unknown username,
// wrong password, or an account with no password at all. Callers must not
// distinguish between them. It unwraps to the unauthenticated sentinel so the
// HTTP layer answers 401 with a constant body.
var ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", httpx.ErrUnauthenticated)

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rolodex-app/rolodex/internal/platform/httpx"
)

// FederatedIdentity is the subset of a verified Google tokeninfo response
// this service trusts.
type FederatedIdentity struct {
	Subject string
	Email   string
}

// IdentityVerifier validates a federated ID token and returns the identity
// it asserts.
type IdentityVerifier interface {
	Verify(ctx context.Context, idToken string) (FederatedIdentity, error)
}

// The two issuer spellings Google emits, depending on token age and client
// library.
var googleIssuers = map[string]bool{
	"accounts.google.com":         true,
	"https://accounts.google.com": true,
}

// GoogleVerifier checks ID tokens against Google's tokeninfo endpoint.
type GoogleVerifier struct {
	endpoint   string
	audience   string
	now        func() time.Time
	httpClient *http.Client
}

// NewGoogleVerifier constructs a verifier. audience is the OAuth client ID
// tokens must be issued for.
func NewGoogleVerifier(endpoint, audience string, timeout time.Duration) *GoogleVerifier {
	return &GoogleVerifier{
		endpoint: endpoint,
		audience: audience,
		now:      time.Now,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// tokeninfo renders booleans and numbers as JSON strings; flexBool and
// flexInt64 accept both spellings.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	v, err := strconv.ParseBool(strings.Trim(string(data), `"`))
	if err != nil {
		return fmt.Errorf("cannot parse %s as bool", data)
	}
	*b = flexBool(v)
	return nil
}

type flexInt64 int64

func (i *flexInt64) UnmarshalJSON(data []byte) error {
	v, err := strconv.ParseInt(strings.Trim(string(data), `"`), 10, 64)
	if err != nil {
		return fmt.Errorf("cannot parse %s as int64", data)
	}
	*i = flexInt64(v)
	return nil
}

type tokeninfoResponse struct {
	Iss           string    `json:"iss"`
	Aud           string    `json:"aud"`
	Sub           string    `json:"sub"`
	Email         string    `json:"email"`
	EmailVerified flexBool  `json:"email_verified"`
	Exp           flexInt64 `json:"exp"`
}

// Verify submits the token to tokeninfo and applies the hard checks: a
// Google issuer, our audience, a verified email and an unexpired assertion.
// Transport failures and 5xx answers surface as upstream errors; everything
// the endpoint or the checks reject collapses into the unauthenticated
// sentinel.
func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (FederatedIdentity, error) {
	endpoint := v.endpoint + "?id_token=" + url.QueryEscape(idToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return FederatedIdentity{}, err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return FederatedIdentity{}, fmt.Errorf("%w: tokeninfo request: %v", httpx.ErrUpstreamUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return FederatedIdentity{}, fmt.Errorf("%w: google rejected the token", httpx.ErrUnauthenticated)
	default:
		return FederatedIdentity{}, fmt.Errorf("%w: tokeninfo returned status %d", httpx.ErrUpstreamUnavailable, resp.StatusCode)
	}

	var payload tokeninfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return FederatedIdentity{}, fmt.Errorf("%w: tokeninfo response unreadable: %v", httpx.ErrUpstreamUnavailable, err)
	}

	switch {
	case !googleIssuers[payload.Iss]:
		return FederatedIdentity{}, fmt.Errorf("%w: token issuer %q is not google", httpx.ErrUnauthenticated, payload.Iss)
	case payload.Aud != v.audience:
		return FederatedIdentity{}, fmt.Errorf("%w: token audience mismatch", httpx.ErrUnauthenticated)
	case !bool(payload.EmailVerified):
		return FederatedIdentity{}, fmt.Errorf("%w: email not verified by google", httpx.ErrUnauthenticated)
	case payload.Exp != 0 && time.Unix(int64(payload.Exp), 0).Before(v.now()):
		return FederatedIdentity{}, fmt.Errorf("%w: token expired", httpx.ErrUnauthenticated)
	case payload.Sub == "" || payload.Email == "":
		return FederatedIdentity{}, fmt.Errorf("%w: token carries no usable identity", httpx.ErrUnauthenticated)
	}

	return FederatedIdentity{
		Subject: payload.Sub,
		Email:   strings.ToLower(payload.Email),
	}, nil
}

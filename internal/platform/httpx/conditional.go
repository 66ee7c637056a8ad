package httpx

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Fingerprint computes a strong entity tag over the canonical JSON form of v.
// Struct field order is fixed and map keys are sorted by the encoder, so
// identical content always hashes to the same tag.
func Fingerprint(v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("httpx: fingerprint: %w", err)
	}
	sum := sha256.Sum256(payload)
	return `"` + hex.EncodeToString(sum[:]) + `"`, nil
}

// Freshness sets the validator headers for a cacheable representation. The
// max-age is the nominal cache TTL, not the remaining one.
func Freshness(w http.ResponseWriter, etag string, ttl time.Duration) {
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(int(ttl.Seconds())))
}

// NotModified reports whether the request's If-None-Match already names the
// current representation.
func NotModified(r *http.Request, etag string) bool {
	header := r.Header.Get("If-None-Match")
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || candidate == etag {
			return true
		}
		// Weak validators compare equal on the opaque part.
		if strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

// ServeCached writes v as JSON together with its validator headers, answering
// 304 when the client already holds the current representation. The tag is
// computed over the representation actually served, after any projection.
func ServeCached(w http.ResponseWriter, r *http.Request, v any, ttl time.Duration) {
	etag, err := Fingerprint(v)
	if err != nil {
		JSON(w, http.StatusOK, v)
		return
	}
	Freshness(w, etag, ttl)
	if NotModified(r, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	JSON(w, http.StatusOK, v)
}

// PageLinks builds a Link header for a collection response from the request's
// own URL, adjusting only the offset. A next link is emitted while the page
// is full, a prev link whenever there is something before it.
func PageLinks(r *http.Request, limit, offset, pageLen int) string {
	var links []string
	if pageLen == limit {
		links = append(links, pageLink(r, limit, offset+limit, "next"))
	}
	if offset > 0 {
		prev := offset - limit
		if prev < 0 {
			prev = 0
		}
		links = append(links, pageLink(r, limit, prev, "prev"))
	}
	return strings.Join(links, ", ")
}

func pageLink(r *http.Request, limit, offset int, rel string) string {
	u := *r.URL
	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	u.RawQuery = q.Encode()
	return fmt.Sprintf("<%s>; rel=%q", u.String(), rel)
}

// Package addresses manages mailing address records. An address can be
// linked to any number of users and is embedded in their representations,
// which is what makes address writes fan out across caches.
package addresses

import (
	"time"

	"github.com/google/uuid"

	"github.com/rolodex-app/rolodex/internal/cache"
	"github.com/rolodex-app/rolodex/internal/platform/patch"
)

// Address is a mailing address record.
type Address struct {
	ID         uuid.UUID `json:"id"`
	Street     string    `json:"street"`
	City       string    `json:"city"`
	State      *string   `json:"state,omitempty"`
	PostalCode string    `json:"postal_code"`
	Country    string    `json:"country"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewAddress carries the fields for address creation.
type NewAddress struct {
	Street     string
	City       string
	State      *string
	PostalCode string
	Country    string
}

// UpdateFields is the tri-state column set for a partial update. Only State
// is nullable; the service rejects explicit nulls on the other fields.
type UpdateFields struct {
	Street     patch.Field[string] `json:"street"`
	City       patch.Field[string] `json:"city"`
	State      patch.Field[string] `json:"state"`
	PostalCode patch.Field[string] `json:"postal_code"`
	Country    patch.Field[string] `json:"country"`
}

// ListFilters narrows address collections. Empty fields do not filter.
type ListFilters struct {
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
	Limit      int
	Offset     int
}

// CacheKey canonicalizes the filter set for the collection cache.
func (f ListFilters) CacheKey() string {
	return cache.CollectionKey(map[string]string{
		"street":      f.Street,
		"city":        f.City,
		"state":       f.State,
		"postal_code": f.PostalCode,
		"country":     f.Country,
	}, f.Limit, f.Offset)
}

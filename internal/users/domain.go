// Package users manages user records and their embedded address
// collections. Reads are served through the entity caches; what a caller
// sees of a user depends on who is asking, and the projection is applied
// after the cache so one cached record serves both audiences.
package users

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rolodex-app/rolodex/internal/addresses"
	"github.com/rolodex-app/rolodex/internal/cache"
	"github.com/rolodex-app/rolodex/internal/platform/patch"
)

// Date is a calendar date without a time component, rendered as YYYY-MM-DD.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// NewDate builds a Date pinned to UTC midnight.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return fmt.Errorf("invalid date %q, want YYYY-MM-DD", raw)
	}
	d.Time = t
	return nil
}

// User is the full representation, visible to the record's owner and to
// admins. The password hash never leaves the persistence layer.
type User struct {
	ID        uuid.UUID           `json:"id"`
	Username  string              `json:"username"`
	Email     string              `json:"email"`
	Phone     *string             `json:"phone,omitempty"`
	BirthDate *Date               `json:"birth_date,omitempty"`
	IsAdmin   bool                `json:"is_admin"`
	Addresses []addresses.Address `json:"addresses"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// PublicUser is the reduced representation served to everyone else. Contact
// details and birth date stay private.
type PublicUser struct {
	ID        uuid.UUID           `json:"id"`
	Username  string              `json:"username"`
	Addresses []addresses.Address `json:"addresses"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Public projects the user down to the fields anyone may see.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Username:  u.Username,
		Addresses: u.Addresses,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// Patch is the tri-state partial update document. Phone and birth_date are
// the nullable fields; password and is_admin are routed separately from the
// plain column updates and carry their own rules.
type Patch struct {
	Username  patch.Field[string] `json:"username"`
	Email     patch.Field[string] `json:"email"`
	Phone     patch.Field[string] `json:"phone"`
	BirthDate patch.Field[Date]   `json:"birth_date"`
	Password  patch.Field[string] `json:"password"`
	IsAdmin   patch.Field[bool]   `json:"is_admin"`
}

// Empty reports whether the patch carries no fields at all.
func (p Patch) Empty() bool {
	return !p.Username.Present() && !p.Email.Present() && !p.Phone.Present() &&
		!p.BirthDate.Present() && !p.Password.Present() && !p.IsAdmin.Present()
}

// UpdateFields is the column set a patch resolves to once password hashing
// and permission routing are done.
type UpdateFields struct {
	Username  patch.Field[string]
	Email     patch.Field[string]
	Phone     patch.Field[string]
	BirthDate patch.Field[Date]
	IsAdmin   patch.Field[bool]
}

// ListFilters narrows user collections. City and country match against the
// user's linked addresses; empty fields do not filter.
type ListFilters struct {
	Username string
	Email    string
	Phone    string
	City     string
	Country  string
	Limit    int
	Offset   int
}

// CacheKey canonicalizes the filter set for the collection cache.
func (f ListFilters) CacheKey() string {
	return cache.CollectionKey(map[string]string{
		"username": f.Username,
		"email":    f.Email,
		"phone":    f.Phone,
		"city":     f.City,
		"country":  f.Country,
	}, f.Limit, f.Offset)
}

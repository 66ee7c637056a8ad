package users

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rolodex-app/rolodex/internal/cache"
	"github.com/rolodex-app/rolodex/internal/platform/httpx"
	"github.com/rolodex-app/rolodex/internal/platform/patch"
	"github.com/rolodex-app/rolodex/internal/shared"
)

// PasswordHasher produces credential hashes. The implementation lives in the
// auth package and bounds how many hashes run at once.
type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
}

// Service exposes user operations with read-through caching.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (User, error)
	List(ctx context.Context, filters ListFilters) ([]User, error)
	Update(ctx context.Context, id uuid.UUID, p Patch) (User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo   Repository
	hasher PasswordHasher
	one    *cache.Cache[User]
	many   *cache.Cache[[]User]
	inv    *cache.Invalidator
}

// NewService wires the repository to its caches, registers the user kind
// with the invalidator and declares that addresses are embedded in users,
// which is what routes address invalidations into these caches.
func NewService(repo Repository, hasher PasswordHasher, one *cache.Cache[User], many *cache.Cache[[]User], inv *cache.Invalidator) Service {
	s := &service{repo: repo, hasher: hasher, one: one, many: many, inv: inv}
	inv.Register(cache.KindUser, func(id string) { one.Evict(id) }, many.Clear)
	inv.EmbeddedIn(cache.KindAddress, cache.KindUser)
	return s
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (User, error) {
	return s.one.GetOrLoad(ctx, id.String(), func(ctx context.Context) (User, error) {
		return s.repo.Get(ctx, id)
	})
}

func (s *service) List(ctx context.Context, filters ListFilters) ([]User, error) {
	return s.many.GetOrLoad(ctx, filters.CacheKey(), func(ctx context.Context) ([]User, error) {
		return s.repo.List(ctx, filters)
	})
}

func (s *service) Update(ctx context.Context, id uuid.UUID, p Patch) (User, error) {
	if err := validatePatch(p); err != nil {
		return User{}, err
	}

	fields := UpdateFields{
		Username:  p.Username,
		Email:     p.Email,
		Phone:     p.Phone,
		BirthDate: p.BirthDate,
		IsAdmin:   p.IsAdmin,
	}
	if raw, ok := p.Username.Get(); ok {
		normalized, err := shared.NormalizeUsername(raw)
		if err != nil {
			return User{}, err
		}
		fields.Username = patch.Of(normalized)
	}

	var passwordHash *string
	if pw, ok := p.Password.Get(); ok {
		hash, err := s.hasher.Hash(ctx, pw)
		if err != nil {
			return User{}, err
		}
		passwordHash = &hash
	}

	updated, err := s.repo.Update(ctx, id, fields, passwordHash)
	if err != nil {
		return User{}, err
	}
	s.inv.Invalidate(cache.KindUser, id.String())
	return updated, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.inv.Invalidate(cache.KindUser, id.String())
	return nil
}

// validatePatch enforces tri-state legality: only phone and birth_date may
// be nulled, and present values must not be blank.
func validatePatch(p Patch) error {
	if p.Empty() {
		return fmt.Errorf("%w: no fields to update", httpx.ErrValidation)
	}
	for name, f := range map[string]patch.Field[string]{
		"username": p.Username,
		"email":    p.Email,
		"password": p.Password,
	} {
		if f.Clear() {
			return fmt.Errorf("%w: %s cannot be null", httpx.ErrValidation, name)
		}
		if v, ok := f.Get(); ok && v == "" {
			return fmt.Errorf("%w: %s cannot be empty", httpx.ErrValidation, name)
		}
	}
	if v, ok := p.Phone.Get(); ok && v == "" {
		return fmt.Errorf("%w: phone cannot be empty, send null to clear it", httpx.ErrValidation)
	}
	if p.IsAdmin.Clear() {
		return fmt.Errorf("%w: is_admin cannot be null", httpx.ErrValidation)
	}
	return nil
}

package addresses

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rolodex-app/rolodex/internal/cache"
	"github.com/rolodex-app/rolodex/internal/platform/httpx"
	"github.com/rolodex-app/rolodex/internal/platform/patch"
)

// Service exposes address operations with read-through caching. Every
// mutation notifies the invalidator so user representations embedding the
// address are refreshed on the next read.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (Address, error)
	List(ctx context.Context, filters ListFilters) ([]Address, error)
	CreateForUser(ctx context.Context, userID uuid.UUID, in NewAddress) (Address, error)
	Update(ctx context.Context, id uuid.UUID, fields UpdateFields) (Address, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Owners(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
	Link(ctx context.Context, userID, addressID uuid.UUID) error
	Unlink(ctx context.Context, userID, addressID uuid.UUID) error
}

type service struct {
	repo Repository
	one  *cache.Cache[Address]
	many *cache.Cache[[]Address]
	inv  *cache.Invalidator
}

// NewService wires the repository to its caches and registers the address
// kind with the invalidator.
func NewService(repo Repository, one *cache.Cache[Address], many *cache.Cache[[]Address], inv *cache.Invalidator) Service {
	s := &service{repo: repo, one: one, many: many, inv: inv}
	inv.Register(cache.KindAddress, func(id string) { one.Evict(id) }, many.Clear)
	return s
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (Address, error) {
	return s.one.GetOrLoad(ctx, id.String(), func(ctx context.Context) (Address, error) {
		return s.repo.Get(ctx, id)
	})
}

func (s *service) List(ctx context.Context, filters ListFilters) ([]Address, error) {
	return s.many.GetOrLoad(ctx, filters.CacheKey(), func(ctx context.Context) ([]Address, error) {
		return s.repo.List(ctx, filters)
	})
}

func (s *service) CreateForUser(ctx context.Context, userID uuid.UUID, in NewAddress) (Address, error) {
	a, err := s.repo.CreateForUser(ctx, userID, in)
	if err != nil {
		return Address{}, err
	}
	s.inv.Invalidate(cache.KindAddress, a.ID.String(), userID.String())
	return a, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, fields UpdateFields) (Address, error) {
	if err := validateFields(fields); err != nil {
		return Address{}, err
	}
	a, owners, err := s.repo.Update(ctx, id, fields)
	if err != nil {
		return Address{}, err
	}
	s.inv.Invalidate(cache.KindAddress, id.String(), ownerKeys(owners)...)
	return a, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	owners, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.inv.Invalidate(cache.KindAddress, id.String(), ownerKeys(owners)...)
	return nil
}

func (s *service) Owners(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	return s.repo.Owners(ctx, id)
}

func (s *service) Link(ctx context.Context, userID, addressID uuid.UUID) error {
	if err := s.repo.Link(ctx, userID, addressID); err != nil {
		return err
	}
	// The address row is untouched; only the user's embedded collection moved.
	s.inv.Invalidate(cache.KindUser, userID.String())
	return nil
}

func (s *service) Unlink(ctx context.Context, userID, addressID uuid.UUID) error {
	if err := s.repo.Unlink(ctx, userID, addressID); err != nil {
		return err
	}
	s.inv.Invalidate(cache.KindUser, userID.String())
	return nil
}

func validateFields(fields UpdateFields) error {
	if !fields.Street.Present() && !fields.City.Present() && !fields.State.Present() &&
		!fields.PostalCode.Present() && !fields.Country.Present() {
		return fmt.Errorf("%w: no fields to update", httpx.ErrValidation)
	}
	for name, f := range map[string]patch.Field[string]{
		"street":      fields.Street,
		"city":        fields.City,
		"postal_code": fields.PostalCode,
		"country":     fields.Country,
	} {
		if f.Clear() {
			return fmt.Errorf("%w: %s cannot be null", httpx.ErrValidation, name)
		}
		if v, ok := f.Get(); ok && v == "" {
			return fmt.Errorf("%w: %s cannot be empty", httpx.ErrValidation, name)
		}
	}
	if v, ok := fields.State.Get(); ok && v == "" {
		return fmt.Errorf("%w: state cannot be empty, send null to clear it", httpx.ErrValidation)
	}
	return nil
}

func ownerKeys(ids []uuid.UUID) []string {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, id.String())
	}
	return keys
}

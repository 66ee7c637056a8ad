package users

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolodex-app/rolodex/internal/addresses"
	"github.com/rolodex-app/rolodex/internal/cache"
	"github.com/rolodex-app/rolodex/internal/platform/httpx"
	"github.com/rolodex-app/rolodex/internal/platform/patch"
)

type memoryUserRepo struct {
	mu         sync.Mutex
	users      map[uuid.UUID]User
	order      []uuid.UUID
	hashes     map[uuid.UUID]string
	getCalls   int
	listCalls  int
	lastFields UpdateFields
	lastHash   *string
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{
		users:  make(map[uuid.UUID]User),
		hashes: make(map[uuid.UUID]string),
	}
}

func (r *memoryUserRepo) seed(u User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
	r.order = append(r.order, u.ID)
}

func (r *memoryUserRepo) Get(ctx context.Context, id uuid.UUID) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getCalls++
	u, ok := r.users[id]
	if !ok {
		return User{}, httpx.ErrNotFound
	}
	return u, nil
}

func (r *memoryUserRepo) List(ctx context.Context, filters ListFilters) ([]User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	matched := make([]User, 0)
	for _, id := range r.order {
		u, ok := r.users[id]
		if !ok {
			continue
		}
		if filters.Username != "" && u.Username != filters.Username {
			continue
		}
		if filters.City != "" && !hasCity(u, filters.City) {
			continue
		}
		matched = append(matched, u)
	}
	if filters.Offset >= len(matched) {
		return make([]User, 0), nil
	}
	matched = matched[filters.Offset:]
	if filters.Limit > 0 && filters.Limit < len(matched) {
		matched = matched[:filters.Limit]
	}
	return matched, nil
}

func hasCity(u User, city string) bool {
	for _, a := range u.Addresses {
		if a.City == city {
			return true
		}
	}
	return false
}

func (r *memoryUserRepo) Update(ctx context.Context, id uuid.UUID, fields UpdateFields, passwordHash *string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastFields = fields
	r.lastHash = passwordHash
	u, ok := r.users[id]
	if !ok {
		return User{}, httpx.ErrNotFound
	}
	if v, ok := fields.Username.Get(); ok {
		u.Username = v
	}
	if v, ok := fields.Email.Get(); ok {
		u.Email = v
	}
	if fields.Phone.Clear() {
		u.Phone = nil
	} else if v, ok := fields.Phone.Get(); ok {
		u.Phone = &v
	}
	if fields.BirthDate.Clear() {
		u.BirthDate = nil
	} else if v, ok := fields.BirthDate.Get(); ok {
		u.BirthDate = &v
	}
	if v, ok := fields.IsAdmin.Get(); ok {
		u.IsAdmin = v
	}
	if passwordHash != nil {
		r.hashes[id] = *passwordHash
	}
	u.UpdatedAt = time.Now().UTC()
	r.users[id] = u
	return u, nil
}

func (r *memoryUserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return httpx.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

type fakeHasher struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeHasher) Hash(ctx context.Context, password string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return "hashed:" + password, nil
}

func newTestUserService(repo Repository, hasher PasswordHasher) (Service, *cache.Invalidator) {
	inv := cache.NewInvalidator()
	one := cache.New[User]("users", time.Minute, nil)
	many := cache.New[[]User]("users_list", time.Minute, nil)
	return NewService(repo, hasher, one, many, inv), inv
}

func seededUser(username string) (User, *memoryUserRepo) {
	repo := newMemoryUserRepo()
	now := time.Now().UTC()
	u := User{
		ID:        uuid.New(),
		Username:  username,
		Email:     username + "@example.com",
		Addresses: make([]addresses.Address, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
	repo.seed(u)
	return u, repo
}

func TestGetServesFromCache(t *testing.T) {
	u, repo := seededUser("ada")
	svc, _ := newTestUserService(repo, &fakeHasher{})
	ctx := context.Background()

	first, err := svc.Get(ctx, u.ID)
	require.NoError(t, err)
	second, err := svc.Get(ctx, u.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.getCalls)
}

func TestUpdateIsVisibleToTheNextRead(t *testing.T) {
	u, repo := seededUser("ada")
	svc, _ := newTestUserService(repo, &fakeHasher{})
	ctx := context.Background()

	_, err := svc.Get(ctx, u.ID)
	require.NoError(t, err)

	updated, err := svc.Update(ctx, u.ID, Patch{Phone: patch.Of("+1-555-0100")})
	require.NoError(t, err)
	require.NotNil(t, updated.Phone)
	assert.Equal(t, "+1-555-0100", *updated.Phone)

	fresh, err := svc.Get(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, fresh.Phone, "the writer must see its own write")
	assert.Equal(t, "+1-555-0100", *fresh.Phone)
	assert.Equal(t, 2, repo.getCalls)
}

func TestUpdateNormalizesUsername(t *testing.T) {
	u, repo := seededUser("ada")
	svc, _ := newTestUserService(repo, &fakeHasher{})

	updated, err := svc.Update(context.Background(), u.ID, Patch{Username: patch.Of("AdaL")})
	require.NoError(t, err)
	assert.Equal(t, "adal", updated.Username)

	got, ok := repo.lastFields.Username.Get()
	require.True(t, ok)
	assert.Equal(t, "adal", got, "the repository must only ever see the canonical form")
}

func TestUpdateRejectsUnnormalizableUsername(t *testing.T) {
	u, repo := seededUser("ada")
	svc, _ := newTestUserService(repo, &fakeHasher{})

	_, err := svc.Update(context.Background(), u.ID, Patch{Username: patch.Of("bad user")})
	assert.ErrorIs(t, err, httpx.ErrValidation)
	assert.Nil(t, repo.lastHash)
}

func TestUpdateRoutesPasswordThroughHasher(t *testing.T) {
	u, repo := seededUser("ada")
	hasher := &fakeHasher{}
	svc, _ := newTestUserService(repo, hasher)

	_, err := svc.Update(context.Background(), u.ID, Patch{Password: patch.Of("correct horse")})
	require.NoError(t, err)

	assert.Equal(t, 1, hasher.calls)
	require.NotNil(t, repo.lastHash)
	assert.Equal(t, "hashed:correct horse", *repo.lastHash)
	assert.Equal(t, "hashed:correct horse", repo.hashes[u.ID])
}

func TestUpdateTriStateRules(t *testing.T) {
	birth := NewDate(1815, time.December, 10)
	phone := "+1-555-0100"
	u, repo := seededUser("ada")
	u.BirthDate = &birth
	u.Phone = &phone
	repo.users[u.ID] = u
	svc, _ := newTestUserService(repo, &fakeHasher{})
	ctx := context.Background()

	for name, p := range map[string]Patch{
		"empty patch":   {},
		"null username": {Username: patch.Null[string]()},
		"null email":    {Email: patch.Null[string]()},
		"null password": {Password: patch.Null[string]()},
		"null is_admin": {IsAdmin: patch.Null[bool]()},
		"empty phone":   {Phone: patch.Of("")},
	} {
		_, err := svc.Update(ctx, u.ID, p)
		assert.ErrorIs(t, err, httpx.ErrValidation, name)
	}

	// phone and birth_date are the nullable columns.
	updated, err := svc.Update(ctx, u.ID, Patch{
		Phone:     patch.Null[string](),
		BirthDate: patch.Null[Date](),
	})
	require.NoError(t, err)
	assert.Nil(t, updated.Phone)
	assert.Nil(t, updated.BirthDate)
}

func TestAddressInvalidationReachesUserCaches(t *testing.T) {
	u, repo := seededUser("ada")
	svc, inv := newTestUserService(repo, &fakeHasher{})
	ctx := context.Background()

	_, err := svc.Get(ctx, u.ID)
	require.NoError(t, err)
	_, err = svc.List(ctx, ListFilters{Limit: 20})
	require.NoError(t, err)
	require.Equal(t, 1, repo.getCalls)
	require.Equal(t, 1, repo.listCalls)

	// An address mutation names its owners; the fan-out must reach both the
	// single-user slot and the user collections.
	inv.Invalidate(cache.KindAddress, uuid.NewString(), u.ID.String())

	_, err = svc.Get(ctx, u.ID)
	require.NoError(t, err)
	_, err = svc.List(ctx, ListFilters{Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.getCalls)
	assert.Equal(t, 2, repo.listCalls)
}

func TestDeleteEvictsTheRecord(t *testing.T) {
	u, repo := seededUser("ada")
	svc, _ := newTestUserService(repo, &fakeHasher{})
	ctx := context.Background()

	_, err := svc.Get(ctx, u.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, u.ID))

	_, err = svc.Get(ctx, u.ID)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

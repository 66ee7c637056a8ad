package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrLoadIdempotent(t *testing.T) {
	c := New[string]("users", time.Minute, nil)
	var calls atomic.Int32
	loader := func(context.Context) (string, error) {
		calls.Add(1)
		return "alice", nil
	}

	v, err := c.GetOrLoad(context.Background(), "u1", loader)
	require.NoError(t, err)
	assert.Equal(t, "alice", v)

	v, err = c.GetOrLoad(context.Background(), "u1", loader)
	require.NoError(t, err)
	assert.Equal(t, "alice", v)
	assert.Equal(t, int32(1), calls.Load(), "second call must be served from cache")

	c.Evict("u1")
	_, err = c.GetOrLoad(context.Background(), "u1", loader)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "eviction must force a reload")
}

func TestLoaderErrorsAreNotCached(t *testing.T) {
	c := New[string]("users", time.Minute, nil)
	var calls atomic.Int32
	boom := errors.New("row store down")

	_, err := c.GetOrLoad(context.Background(), "u1", func(context.Context) (string, error) {
		calls.Add(1)
		return "", boom
	})
	require.ErrorIs(t, err, boom)

	v, err := c.GetOrLoad(context.Background(), "u1", func(context.Context) (string, error) {
		calls.Add(1)
		return "alice", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", v)
	assert.Equal(t, int32(2), calls.Load(), "failed load must not satisfy later reads")
}

func TestLazyExpiry(t *testing.T) {
	c := New[string]("users", 15*time.Millisecond, nil)
	var calls atomic.Int32
	loader := func(context.Context) (string, error) {
		calls.Add(1)
		return "alice", nil
	}

	_, err := c.GetOrLoad(context.Background(), "u1", loader)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	_, ok := c.Get("u1")
	assert.False(t, ok, "an expired entry reads as absent")

	_, err = c.GetOrLoad(context.Background(), "u1", loader)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEvictIsIdempotent(t *testing.T) {
	c := New[string]("users", time.Minute, nil)
	c.Evict("missing")
	c.Evict("missing")

	_, err := c.GetOrLoad(context.Background(), "u1", func(context.Context) (string, error) {
		return "alice", nil
	})
	require.NoError(t, err)
	c.Evict("u1")
	c.Evict("u1")
	_, ok := c.Get("u1")
	assert.False(t, ok)
}

func TestClearDropsEverything(t *testing.T) {
	c := New[int]("user_lists", time.Minute, nil)
	for _, key := range []string{"a", "b", "c"} {
		_, err := c.GetOrLoad(context.Background(), key, func(context.Context) (int, error) {
			return 1, nil
		})
		require.NoError(t, err)
	}
	require.Equal(t, 3, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestConcurrentLoadsShareOneFlight(t *testing.T) {
	c := New[int]("users", time.Minute, nil)
	var calls atomic.Int32
	release := make(chan struct{})

	const workers = 8
	var wg sync.WaitGroup
	results := make([]int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrLoad(context.Background(), "k", func(context.Context) (int, error) {
				calls.Add(1)
				<-release
				return 42, nil
			})
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestEvictDuringLoadIsNotResurrected(t *testing.T) {
	c := New[string]("addresses", time.Minute, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	var got string
	go func() {
		defer close(done)
		got, _ = c.GetOrLoad(context.Background(), "a1", func(context.Context) (string, error) {
			close(started)
			<-release
			return "pre-mutation", nil
		})
	}()

	<-started
	c.Evict("a1")
	close(release)
	<-done

	assert.Equal(t, "pre-mutation", got, "the in-flight caller keeps what it loaded")
	_, ok := c.Get("a1")
	assert.False(t, ok, "a load that raced an eviction must not repopulate the cache")
}

func TestClearDuringLoadIsNotStored(t *testing.T) {
	c := New[string]("address_lists", time.Minute, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_, _ = c.GetOrLoad(context.Background(), "page-1", func(context.Context) (string, error) {
			close(started)
			<-release
			return "stale page", nil
		})
	}()

	<-started
	c.Clear()
	close(release)
	<-done

	assert.Equal(t, 0, c.Len())
}

func TestCallerContextAbandonsWaitOnly(t *testing.T) {
	c := New[int]("users", time.Minute, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := c.GetOrLoad(ctx, "k", func(context.Context) (int, error) {
			close(started)
			<-release
			return 7, nil
		})
		errCh <- err
	}()

	<-started
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	assert.Eventually(t, func() bool {
		_, ok := c.Get("k")
		return ok
	}, time.Second, 5*time.Millisecond, "the flight completes and populates despite the abandoned wait")
}

type recordingStats struct {
	mu     sync.Mutex
	hits   map[string]int
	misses map[string]int
}

func newRecordingStats() *recordingStats {
	return &recordingStats{hits: map[string]int{}, misses: map[string]int{}}
}

func (s *recordingStats) Hit(cache string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits[cache]++
}

func (s *recordingStats) Miss(cache string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.misses[cache]++
}

func TestStatsObserveHitsAndMisses(t *testing.T) {
	stats := newRecordingStats()
	c := New[string]("users", time.Minute, stats)
	loader := func(context.Context) (string, error) { return "alice", nil }

	_, _ = c.GetOrLoad(context.Background(), "u1", loader)
	_, _ = c.GetOrLoad(context.Background(), "u1", loader)
	_, _ = c.GetOrLoad(context.Background(), "u1", loader)

	assert.Equal(t, 1, stats.misses["users"])
	assert.Equal(t, 2, stats.hits["users"])
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

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
	"go.uber.org/goleak"

	"github.com/pdiddy/research-mcp/internal/envelope"
	"github.com/pdiddy/research-mcp/pkg/types"
)

func sample(ctx string) types.Result {
	return types.Result{
		Context:    ctx,
		Sources:    []types.Source{{Title: "T", URL: "https://example.com/" + ctx}},
		SourceURLs: []string{"https://example.com/" + ctx},
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

type memStore struct {
	mu    sync.Mutex
	data  map[string]types.Result
	saves int
	err   error
	block bool
}

func newMemStore() *memStore { return &memStore{data: map[string]types.Result{}} }

func (m *memStore) Load(_ context.Context, topic string) (types.Result, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return types.Result{}, false, m.err
	}
	r, ok := m.data[topic]
	return r, ok, nil
}

func (m *memStore) Save(ctx context.Context, topic string, r types.Result) error {
	if m.block {
		<-ctx.Done()
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.err != nil {
		return m.err
	}
	m.data[topic] = r
	return nil
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "quantum computing", Normalize("  quantum \t\n computing "))
	assert.Equal(t, "Quantum", Normalize("Quantum"))
	assert.Equal(t, "", Normalize("   "))
}

func TestPutGetLastWriteWins(t *testing.T) {
	c := New(Options{})
	a, b := sample("A"), sample("B")

	c.Put(context.Background(), "topic", a)
	got, ok := c.Get("topic")
	require.True(t, ok)
	assert.Equal(t, a, got)

	c.Put(context.Background(), " topic ", b)
	got, ok = c.Get("topic")
	require.True(t, ok)
	assert.Equal(t, b, got)
	assert.Equal(t, 1, c.Len())
}

func TestGetMissAndCaseSensitivity(t *testing.T) {
	c := New(Options{})
	c.Put(context.Background(), "Topic", sample("A"))
	_, ok := c.Get("topic")
	assert.False(t, ok)
}

func TestEntriesAreImmutable(t *testing.T) {
	c := New(Options{})
	r := sample("A")
	c.Put(context.Background(), "t", r)
	r.Sources[0].Title = "changed by writer"

	got, _ := c.Get("t")
	assert.Equal(t, "T", got.Sources[0].Title)
	got.Sources[0].Title = "changed by reader"

	again, _ := c.Get("t")
	assert.Equal(t, "T", again.Sources[0].Title)
}

func TestMaxEntriesEvicts(t *testing.T) {
	c := New(Options{MaxEntries: 2})
	c.Put(context.Background(), "a", sample("a"))
	c.Put(context.Background(), "b", sample("b"))
	c.Put(context.Background(), "c", sample("c"))

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestGetOrComputeSingleFlight(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := New(Options{})
	var calls int32
	release := make(chan struct{})
	compute := func(ctx context.Context) (types.Result, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return sample("quantum"), nil
	}

	const n = 25
	results := make([]types.Result, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, _, err := c.GetOrCompute(context.Background(), "  quantum   computing ", compute)
			assert.NoError(t, err)
			results[i] = r
		}()
	}
	time.Sleep(30 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Equal(t, sample("quantum"), r)
	}

	r, hit, err := c.GetOrCompute(context.Background(), "quantum computing", compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, sample("quantum"), r)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrComputeFailureNotCached(t *testing.T) {
	c := New(Options{})
	var calls int
	compute := func(ctx context.Context) (types.Result, error) {
		calls++
		if calls == 1 {
			return types.Result{}, errors.New("engine down")
		}
		return sample("ok"), nil
	}

	_, _, err := c.GetOrCompute(context.Background(), "t", compute)
	assert.EqualError(t, err, "engine down")
	_, ok := c.Get("t")
	assert.False(t, ok)

	r, hit, err := c.GetOrCompute(context.Background(), "t", compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, sample("ok"), r)
	assert.Equal(t, 2, calls)
}

func TestGetOrComputeTimeoutReleasesFlight(t *testing.T) {
	c := New(Options{})
	slow := func(ctx context.Context) (types.Result, error) {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		<-ctx.Done()
		return types.Result{}, ctx.Err()
	}
	_, _, err := c.GetOrCompute(context.Background(), "t", slow)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	r, _, err := c.GetOrCompute(context.Background(), "t", func(ctx context.Context) (types.Result, error) {
		return sample("fast"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fast", r.Context)
}

func TestGetOrComputeWaiterCancellation(t *testing.T) {
	c := New(Options{})
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	compute := func(ctx context.Context) (types.Result, error) {
		atomic.AddInt32(&calls, 1)
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
			return types.Result{}, ctx.Err()
		}
		return sample("done"), nil
	}

	type outcome struct {
		r   types.Result
		err error
	}
	patient := make(chan outcome, 1)
	go func() {
		r, _, err := c.GetOrCompute(context.Background(), "t", compute)
		patient <- outcome{r, err}
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	impatient := make(chan error, 1)
	go func() {
		_, _, err := c.GetOrCompute(ctx, "t", compute)
		impatient <- err
	}()
	cancel()
	assert.ErrorIs(t, <-impatient, context.Canceled)

	close(release)
	got := <-patient
	require.NoError(t, got.err)
	assert.Equal(t, "done", got.r.Context)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrComputeLeaderCancelDoesNotCancelCompute(t *testing.T) {
	c := New(Options{})
	started := make(chan struct{})
	release := make(chan struct{})
	compute := func(ctx context.Context) (types.Result, error) {
		close(started)
		select {
		case <-release:
			return sample("done"), nil
		case <-ctx.Done():
			return types.Result{}, ctx.Err()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	leader := make(chan error, 1)
	go func() {
		_, _, err := c.GetOrCompute(ctx, "t", compute)
		leader <- err
	}()
	<-started
	cancel()
	assert.ErrorIs(t, <-leader, context.Canceled)

	close(release)
	assert.Eventually(t, func() bool {
		_, ok := c.Get("t")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestGetOrComputeEmptyTopic(t *testing.T) {
	c := New(Options{})
	_, _, err := c.GetOrCompute(context.Background(), "  ", func(context.Context) (types.Result, error) {
		t.Fatal("compute must not run")
		return types.Result{}, nil
	})
	assert.ErrorIs(t, err, envelope.ErrValidation)
}

func TestStoreTier(t *testing.T) {
	store := newMemStore()
	store.data["persisted topic"] = sample("disk")
	c := New(Options{Store: store})

	r, hit, err := c.GetOrCompute(context.Background(), "persisted  topic", func(context.Context) (types.Result, error) {
		t.Fatal("compute must not run on a store hit")
		return types.Result{}, nil
	})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "disk", r.Context)

	_, ok := c.Get("persisted topic")
	assert.True(t, ok, "store hit is promoted to memory")

	c.Put(context.Background(), "new topic", sample("fresh"))
	assert.Equal(t, "fresh", store.data["new topic"].Context)
}

func TestStoreErrorsAreTolerated(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("disk full")
	c := New(Options{Store: store})

	r, hit, err := c.GetOrCompute(context.Background(), "t", func(context.Context) (types.Result, error) {
		return sample("computed"), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "computed", r.Context)
	assert.Equal(t, 1, store.saves)

	_, ok := c.Get("t")
	assert.True(t, ok)
}

func TestPutStoreWriteHonoursContext(t *testing.T) {
	store := newMemStore()
	store.block = true
	c := New(Options{Store: store})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		c.Put(ctx, "slow disk", sample("A"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Put did not return after its context ended")
	}
	_, ok := c.Get("slow disk")
	assert.True(t, ok, "memory tier is written before the store")
}

package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// collectionStore is a fake authoritative store for reload tests.
type collectionStore struct {
	mu        sync.Mutex
	digest    string
	entries   map[string]string
	digestErr error
	loadErr   error

	digestCalls int32
	loadCalls   int32
}

func newCollectionStore() *collectionStore {
	return &collectionStore{
		digest:  "v1",
		entries: map[string]string{"alpha": "one", "beta": "two"},
	}
}

func (s *collectionStore) Digest(ctx context.Context) (string, error) {
	atomic.AddInt32(&s.digestCalls, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.digestErr != nil {
		return "", s.digestErr
	}
	return s.digest, nil
}

func (s *collectionStore) Load(ctx context.Context) (map[string]string, error) {
	atomic.AddInt32(&s.loadCalls, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := make(map[string]string, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out, nil
}

func (s *collectionStore) update(digest string, entries map[string]string) {
	s.mu.Lock()
	s.digest = digest
	s.entries = entries
	s.mu.Unlock()
}

func (s *collectionStore) setErrors(digestErr, loadErr error) {
	s.mu.Lock()
	s.digestErr = digestErr
	s.loadErr = loadErr
	s.mu.Unlock()
}

func newTestReload(t *testing.T, store *collectionStore, cfg ReloadConfig) (*ReloadCache[string], *fakeClock) {
	t.Helper()
	c, err := NewReload[string](cfg, store.Digest, store.Load)
	if err != nil {
		t.Fatalf("NewReload failed: %v", err)
	}
	clock := newFakeClock()
	c.now = clock.Now
	return c, clock
}

func TestReloadCache_RequiresDigestAndLoader(t *testing.T) {
	store := newCollectionStore()

	if _, err := NewReload[string](ReloadConfig{}, nil, store.Load); !errors.Is(err, ErrNilDigest) {
		t.Errorf("NewReload without digest: error = %v, want ErrNilDigest", err)
	}
	if _, err := NewReload[string](ReloadConfig{}, store.Digest, nil); !errors.Is(err, ErrNilLoader) {
		t.Errorf("NewReload without loader: error = %v, want ErrNilLoader", err)
	}
}

func TestReloadCache_InitializeLoadsCollection(t *testing.T) {
	ctx := context.Background()
	store := newCollectionStore()
	c, _ := newTestReload(t, store, ReloadConfig{CheckInterval: time.Minute})
	defer c.Close()

	if c.Initialized() {
		t.Error("Initialized should be false before Initialize")
	}

	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if !c.Initialized() {
		t.Error("Initialized should be true after Initialize")
	}
	if got := c.Len(); got != 2 {
		t.Errorf("Len = %d, want 2", got)
	}

	v, ok, err := c.Get(ctx, "alpha")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || v != "one" {
		t.Errorf("Get returned (%q, %v), want (one, true)", v, ok)
	}

	// Absent key: present=false, no error
	_, ok, err = c.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Error("Get of absent key should report present=false")
	}

	// Idempotent: a second Initialize does not reload
	loads := atomic.LoadInt32(&store.loadCalls)
	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("second Initialize failed: %v", err)
	}
	if atomic.LoadInt32(&store.loadCalls) != loads {
		t.Error("second Initialize should be a no-op")
	}
}

func TestReloadCache_InitializeFailureIsHard(t *testing.T) {
	ctx := context.Background()
	store := newCollectionStore()
	store.setErrors(errors.New("store unreachable"), nil)
	c, _ := newTestReload(t, store, ReloadConfig{})
	defer c.Close()

	if err := c.Initialize(ctx); err == nil {
		t.Fatal("Initialize should fail when the initial digest fails")
	}
	if c.Initialized() {
		t.Error("a failed Initialize must not mark the cache initialized")
	}

	// Reads before a successful Initialize are refused
	if _, _, err := c.Get(ctx, "alpha"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Get before Initialize: error = %v, want ErrNotInitialized", err)
	}

	// The store recovers; Initialize succeeds on retry
	store.setErrors(nil, nil)
	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("Initialize after recovery failed: %v", err)
	}
}

func TestReloadCache_ThrottledDigestCheck(t *testing.T) {
	ctx := context.Background()
	store := newCollectionStore()
	c, clock := newTestReload(t, store, ReloadConfig{CheckInterval: time.Minute})
	defer c.Close()

	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	checks := atomic.LoadInt32(&store.digestCalls)

	// Reads inside the window never touch the store
	for i := 0; i < 10; i++ {
		if _, _, err := c.Get(ctx, "alpha"); err != nil {
			t.Fatalf("Get failed: %v", err)
		}
	}
	if got := atomic.LoadInt32(&store.digestCalls); got != checks {
		t.Errorf("digest called %d extra times inside the window, want 0", got-checks)
	}

	// The first read past the window performs exactly one check
	clock.Advance(61 * time.Second)
	if _, _, err := c.Get(ctx, "alpha"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got := atomic.LoadInt32(&store.digestCalls); got != checks+1 {
		t.Errorf("digest called %d times past the window, want 1", got-checks)
	}

	// Unchanged digest: no reload happened
	if got := atomic.LoadInt32(&store.loadCalls); got != 1 {
		t.Errorf("load called %d times, want 1 (digest unchanged)", got)
	}
}

func TestReloadCache_ReloadOnDigestChange(t *testing.T) {
	ctx := context.Background()
	store := newCollectionStore()
	c, clock := newTestReload(t, store, ReloadConfig{CheckInterval: time.Minute})
	defer c.Close()

	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	var swaps int32
	c.OnSwap(func() { atomic.AddInt32(&swaps, 1) })

	// The store moves on: beta removed, gamma added
	store.update("v2", map[string]string{"alpha": "one", "gamma": "three"})

	clock.Advance(61 * time.Second)
	all, err := c.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}

	if len(all) != 2 {
		t.Errorf("collection size = %d, want 2", len(all))
	}
	if _, ok := all["beta"]; ok {
		t.Error("removed key beta should be gone after reload")
	}
	if v := all["gamma"]; v != "three" {
		t.Errorf("added key gamma = %q, want %q", v, "three")
	}
	if n := atomic.LoadInt32(&swaps); n != 1 {
		t.Errorf("OnSwap fired %d times, want 1", n)
	}
}

func TestReloadCache_DigestFailureServesStale(t *testing.T) {
	ctx := context.Background()
	store := newCollectionStore()
	c, clock := newTestReload(t, store, ReloadConfig{CheckInterval: time.Minute})
	defer c.Close()

	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	store.setErrors(errors.New("store unreachable"), nil)

	// Availability over freshness: stale data keeps serving
	clock.Advance(61 * time.Second)
	v, ok, err := c.Get(ctx, "alpha")
	if err != nil {
		t.Fatalf("Get during digest outage failed: %v", err)
	}
	if !ok || v != "one" {
		t.Errorf("Get during outage returned (%q, %v), want cached (one, true)", v, ok)
	}
}

func TestReloadCache_EscalateAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	store := newCollectionStore()
	c, clock := newTestReload(t, store, ReloadConfig{CheckInterval: time.Minute, EscalateAfter: 3})
	defer c.Close()

	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	store.setErrors(errors.New("store unreachable"), nil)

	// Failures 1 and 2 stay below the threshold
	for i := 0; i < 2; i++ {
		clock.Advance(61 * time.Second)
		if _, _, err := c.Get(ctx, "alpha"); err != nil {
			t.Fatalf("Get on failure %d: %v (below escalation threshold)", i+1, err)
		}
	}

	// Failure 3 escalates
	clock.Advance(61 * time.Second)
	if _, _, err := c.Get(ctx, "alpha"); !errors.Is(err, ErrDigestUnavailable) {
		t.Fatalf("Get on failure 3: error = %v, want ErrDigestUnavailable", err)
	}

	// A successful check resets the counter
	store.setErrors(nil, nil)
	clock.Advance(61 * time.Second)
	if _, _, err := c.Get(ctx, "alpha"); err != nil {
		t.Fatalf("Get after recovery failed: %v", err)
	}

	store.setErrors(errors.New("store unreachable"), nil)
	clock.Advance(61 * time.Second)
	if _, _, err := c.Get(ctx, "alpha"); err != nil {
		t.Errorf("Get on first failure after reset: %v, want nil (counter reset)", err)
	}
}

func TestReloadCache_LoadFailureRetainsOldCollection(t *testing.T) {
	ctx := context.Background()
	store := newCollectionStore()
	c, clock := newTestReload(t, store, ReloadConfig{CheckInterval: time.Minute})
	defer c.Close()

	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	// Digest moves but the full load fails
	store.update("v2", map[string]string{"alpha": "updated"})
	store.setErrors(nil, errors.New("load timeout"))

	clock.Advance(61 * time.Second)
	v, ok, err := c.Get(ctx, "alpha")
	if err != nil {
		t.Fatalf("Get during load failure: %v", err)
	}
	if !ok || v != "one" {
		t.Errorf("Get during load failure returned (%q, %v), want old (one, true)", v, ok)
	}

	// The failed digest was not recorded, so recovery triggers the reload
	store.setErrors(nil, nil)
	clock.Advance(61 * time.Second)
	v, ok, err = c.Get(ctx, "alpha")
	if err != nil {
		t.Fatalf("Get after recovery failed: %v", err)
	}
	if !ok || v != "updated" {
		t.Errorf("Get after recovery returned (%q, %v), want (updated, true)", v, ok)
	}
}

func TestReloadCache_ConcurrentReads(t *testing.T) {
	ctx := context.Background()
	store := newCollectionStore()
	c, err := NewReload[string](ReloadConfig{CheckInterval: time.Minute}, store.Digest, store.Load)
	if err != nil {
		t.Fatalf("NewReload failed: %v", err)
	}
	defer c.Close()

	if err := c.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	const numGoroutines = 50
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, _, err := c.Get(ctx, "alpha"); err != nil {
					t.Errorf("Get failed: %v", err)
					return
				}
			}
		}()
	}

	wg.Wait()
}

package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// digestStore is a fake backend whose digest moves with its value.
type digestStore struct {
	mu        sync.Mutex
	value     string
	digest    string
	digestErr error
	loadErr   error

	digestCalls int32
	loadCalls   int32
}

func newDigestStore() *digestStore {
	return &digestStore{value: "one", digest: "d1"}
}

func (s *digestStore) Digest(ctx context.Context) (string, error) {
	atomic.AddInt32(&s.digestCalls, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.digestErr != nil {
		return "", s.digestErr
	}
	return s.digest, nil
}

func (s *digestStore) Load(ctx context.Context) (string, error) {
	atomic.AddInt32(&s.loadCalls, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return "", s.loadErr
	}
	return s.value, nil
}

func (s *digestStore) update(value, digest string) {
	s.mu.Lock()
	s.value = value
	s.digest = digest
	s.mu.Unlock()
}

func newTestDigest(t *testing.T, cfg DigestConfig) (*DigestCache[string], *fakeClock) {
	t.Helper()
	c := NewDigest[string](cfg)
	clock := newFakeClock()
	c.now = clock.Now
	return c, clock
}

func TestDigestCache_FirstAccessLoads(t *testing.T) {
	ctx := context.Background()
	store := newDigestStore()
	c, _ := newTestDigest(t, DigestConfig{VerifyInterval: 30 * time.Second})

	got, err := c.GetVerified(ctx, "alpha", store.Digest, store.Load)
	if err != nil {
		t.Fatalf("GetVerified failed: %v", err)
	}
	if got != "one" {
		t.Errorf("GetVerified returned %q, want %q", got, "one")
	}
	if n := atomic.LoadInt32(&store.loadCalls); n != 1 {
		t.Errorf("reload called %d times, want 1", n)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
	if keys := c.Keys(); len(keys) != 1 || keys[0] != "alpha" {
		t.Errorf("Keys = %v, want [alpha]", keys)
	}
}

func TestDigestCache_WithinWindowNoExternalCalls(t *testing.T) {
	ctx := context.Background()
	store := newDigestStore()
	c, _ := newTestDigest(t, DigestConfig{VerifyInterval: 30 * time.Second})

	if _, err := c.GetVerified(ctx, "alpha", store.Digest, store.Load); err != nil {
		t.Fatalf("GetVerified failed: %v", err)
	}
	digests := atomic.LoadInt32(&store.digestCalls)
	loads := atomic.LoadInt32(&store.loadCalls)

	// High read volume inside the window: zero store traffic
	for i := 0; i < 100; i++ {
		got, err := c.GetVerified(ctx, "alpha", store.Digest, store.Load)
		if err != nil {
			t.Fatalf("GetVerified failed: %v", err)
		}
		if got != "one" {
			t.Errorf("GetVerified returned %q, want %q", got, "one")
		}
	}

	if n := atomic.LoadInt32(&store.digestCalls); n != digests {
		t.Errorf("digest called %d extra times inside the window, want 0", n-digests)
	}
	if n := atomic.LoadInt32(&store.loadCalls); n != loads {
		t.Errorf("reload called %d extra times inside the window, want 0", n-loads)
	}
}

func TestDigestCache_UnchangedDigestSkipsReload(t *testing.T) {
	ctx := context.Background()
	store := newDigestStore()
	c, clock := newTestDigest(t, DigestConfig{VerifyInterval: 30 * time.Second})

	if _, err := c.GetVerified(ctx, "alpha", store.Digest, store.Load); err != nil {
		t.Fatalf("GetVerified failed: %v", err)
	}

	// Past the window: one digest verification, digest unchanged, no reload
	clock.Advance(31 * time.Second)
	got, err := c.GetVerified(ctx, "alpha", store.Digest, store.Load)
	if err != nil {
		t.Fatalf("GetVerified failed: %v", err)
	}
	if got != "one" {
		t.Errorf("GetVerified returned %q, want %q", got, "one")
	}
	if n := atomic.LoadInt32(&store.loadCalls); n != 1 {
		t.Errorf("reload called %d times, want 1 (digest unchanged)", n)
	}
}

func TestDigestCache_ChangedDigestReloads(t *testing.T) {
	ctx := context.Background()
	store := newDigestStore()
	c, clock := newTestDigest(t, DigestConfig{VerifyInterval: 30 * time.Second})

	if _, err := c.GetVerified(ctx, "alpha", store.Digest, store.Load); err != nil {
		t.Fatalf("GetVerified failed: %v", err)
	}

	store.update("two", "d2")

	clock.Advance(31 * time.Second)
	got, err := c.GetVerified(ctx, "alpha", store.Digest, store.Load)
	if err != nil {
		t.Fatalf("GetVerified failed: %v", err)
	}
	if got != "two" {
		t.Errorf("GetVerified after digest change returned %q, want %q", got, "two")
	}
	if n := atomic.LoadInt32(&store.loadCalls); n != 2 {
		t.Errorf("reload called %d times, want 2", n)
	}

	// The new pair is memoized: subsequent verification sees d2 unchanged
	clock.Advance(31 * time.Second)
	if _, err := c.GetVerified(ctx, "alpha", store.Digest, store.Load); err != nil {
		t.Fatalf("GetVerified failed: %v", err)
	}
	if n := atomic.LoadInt32(&store.loadCalls); n != 2 {
		t.Errorf("reload called %d times after re-verification, want 2", n)
	}
}

func TestDigestCache_DigestFailureServesCached(t *testing.T) {
	ctx := context.Background()
	store := newDigestStore()
	c, clock := newTestDigest(t, DigestConfig{VerifyInterval: 30 * time.Second})

	if _, err := c.GetVerified(ctx, "alpha", store.Digest, store.Load); err != nil {
		t.Fatalf("GetVerified failed: %v", err)
	}

	store.mu.Lock()
	store.digestErr = errors.New("digest endpoint down")
	store.mu.Unlock()

	// Verification fails but the memoized value keeps serving
	clock.Advance(31 * time.Second)
	got, err := c.GetVerified(ctx, "alpha", store.Digest, store.Load)
	if err != nil {
		t.Fatalf("GetVerified during digest outage failed: %v", err)
	}
	if got != "one" {
		t.Errorf("GetVerified during outage returned %q, want cached %q", got, "one")
	}

	// The failed verification still advanced the throttle window
	digests := atomic.LoadInt32(&store.digestCalls)
	if _, err := c.GetVerified(ctx, "alpha", store.Digest, store.Load); err != nil {
		t.Fatalf("GetVerified failed: %v", err)
	}
	if n := atomic.LoadInt32(&store.digestCalls); n != digests {
		t.Errorf("digest called %d extra times right after a failed verification, want 0", n-digests)
	}
}

func TestDigestCache_ReloadFailurePropagates(t *testing.T) {
	ctx := context.Background()
	store := newDigestStore()
	store.loadErr = errors.New("load timeout")
	c, _ := newTestDigest(t, DigestConfig{VerifyInterval: 30 * time.Second})

	// A cold key with a failing reload yields the error, nothing memoized
	if _, err := c.GetVerified(ctx, "alpha", store.Digest, store.Load); err == nil {
		t.Fatal("GetVerified should propagate the reload error")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d after failed reload, want 0", c.Len())
	}
}

func TestDigestCache_NilArguments(t *testing.T) {
	ctx := context.Background()
	store := newDigestStore()
	c, _ := newTestDigest(t, DigestConfig{})

	if _, err := c.GetVerified(ctx, "alpha", nil, store.Load); !errors.Is(err, ErrNilDigest) {
		t.Errorf("GetVerified with nil digest: error = %v, want ErrNilDigest", err)
	}
	if _, err := c.GetVerified(ctx, "alpha", store.Digest, nil); !errors.Is(err, ErrNilLoader) {
		t.Errorf("GetVerified with nil reload: error = %v, want ErrNilLoader", err)
	}
	if _, err := c.GetVerified(ctx, "", store.Digest, store.Load); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("GetVerified with empty key: error = %v, want ErrInvalidKey", err)
	}
}

func TestDigestCache_DeleteForcesReload(t *testing.T) {
	ctx := context.Background()
	store := newDigestStore()
	c, _ := newTestDigest(t, DigestConfig{VerifyInterval: 30 * time.Second})

	if _, err := c.GetVerified(ctx, "alpha", store.Digest, store.Load); err != nil {
		t.Fatalf("GetVerified failed: %v", err)
	}

	c.Delete("alpha")

	store.update("two", "d2")
	got, err := c.GetVerified(ctx, "alpha", store.Digest, store.Load)
	if err != nil {
		t.Fatalf("GetVerified after Delete failed: %v", err)
	}
	if got != "two" {
		t.Errorf("GetVerified after Delete returned %q, want fresh %q", got, "two")
	}
}

func TestDigestCache_ConcurrentReloadsShareFlight(t *testing.T) {
	ctx := context.Background()

	var loads int32
	release := make(chan struct{})
	digest := func(ctx context.Context) (string, error) { return "d1", nil }
	reload := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&loads, 1)
		<-release
		return "shared", nil
	}

	c := NewDigest[string](DigestConfig{VerifyInterval: 30 * time.Second})

	const readers = 10
	var wg sync.WaitGroup
	wg.Add(readers)
	errs := make([]error, readers)

	for i := 0; i < readers; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.GetVerified(ctx, "alpha", digest, reload)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("reader %d: GetVerified failed: %v", i, err)
		}
	}
	if n := atomic.LoadInt32(&loads); n != 1 {
		t.Errorf("reload called %d times under concurrent cold reads, want 1", n)
	}
}

package proxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/mixelka/mailpool/pkg/models"
)

type fakeStore struct {
	mu      sync.Mutex
	proxies map[models.ProxyKind][]*models.Proxy
	err     error
}

func (s *fakeStore) ListProxies(_ context.Context, _ int64, kind models.ProxyKind) ([]*models.Proxy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.proxies[kind], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testProxies(kind models.ProxyKind, n int) []*models.Proxy {
	out := make([]*models.Proxy, n)
	for i := range out {
		out[i] = &models.Proxy{ID: int64(i + 1), Kind: kind, Host: "127.0.0.1", Port: 1080 + i}
	}
	return out
}

func TestNextRoundRobin(t *testing.T) {
	store := &fakeStore{proxies: map[models.ProxyKind][]*models.Proxy{
		models.ProxyVerify: testProxies(models.ProxyVerify, 3),
	}}
	pool := NewPool(store, testLogger())

	want := []int64{1, 2, 3, 1, 2}
	for i, id := range want {
		prx, err := pool.Next(context.Background(), 7, models.ProxyVerify)
		if err != nil {
			t.Fatalf("Next() error: %v", err)
		}
		if prx.ID != id {
			t.Fatalf("call %d: got proxy %d, want %d", i, prx.ID, id)
		}
	}
}

func TestNextSeparateCursors(t *testing.T) {
	store := &fakeStore{proxies: map[models.ProxyKind][]*models.Proxy{
		models.ProxyVerify: testProxies(models.ProxyVerify, 2),
		models.ProxySend:   testProxies(models.ProxySend, 2),
	}}
	pool := NewPool(store, testLogger())
	ctx := context.Background()

	// Advancing one kind must not move the other kind's cursor, and
	// distinct users rotate independently too.
	pool.Next(ctx, 7, models.ProxyVerify)
	prx, _ := pool.Next(ctx, 7, models.ProxySend)
	if prx.ID != 1 {
		t.Fatalf("send cursor moved with verify cursor: got %d", prx.ID)
	}
	prx, _ = pool.Next(ctx, 8, models.ProxyVerify)
	if prx.ID != 1 {
		t.Fatalf("user 8 cursor moved with user 7: got %d", prx.ID)
	}
}

func TestNextEmptyPool(t *testing.T) {
	store := &fakeStore{proxies: map[models.ProxyKind][]*models.Proxy{}}
	pool := NewPool(store, testLogger())

	prx, err := pool.Next(context.Background(), 7, models.ProxyVerify)
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if prx != nil {
		t.Fatalf("Next() = %v, want nil for empty pool", prx)
	}
}

func TestNextStoreError(t *testing.T) {
	store := &fakeStore{err: errors.New("db closed")}
	pool := NewPool(store, testLogger())

	if _, err := pool.Next(context.Background(), 7, models.ProxyVerify); err == nil {
		t.Fatal("Next() should propagate store errors")
	}
}

func TestNextConcurrentRotation(t *testing.T) {
	const workers = 20
	store := &fakeStore{proxies: map[models.ProxyKind][]*models.Proxy{
		models.ProxyVerify: testProxies(models.ProxyVerify, 4),
	}}
	pool := NewPool(store, testLogger())

	var wg sync.WaitGroup
	counts := make(chan int64, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prx, err := pool.Next(context.Background(), 7, models.ProxyVerify)
			if err != nil || prx == nil {
				t.Errorf("Next() = %v, %v", prx, err)
				return
			}
			counts <- prx.ID
		}()
	}
	wg.Wait()
	close(counts)

	// 20 draws over 4 proxies must spread evenly
	perID := make(map[int64]int)
	for id := range counts {
		perID[id]++
	}
	for id, n := range perID {
		if n != workers/4 {
			t.Fatalf("proxy %d drawn %d times, want %d", id, n, workers/4)
		}
	}
}

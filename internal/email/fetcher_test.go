package email

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/emersion/go-imap/client"

	"github.com/mixelka/mailpool/internal/state"
	"github.com/mixelka/mailpool/pkg/models"
)

type fakeProxies struct {
	proxies []*models.Proxy
	cursor  int
}

func (f *fakeProxies) Next(context.Context, int64, models.ProxyKind) (*models.Proxy, error) {
	if len(f.proxies) == 0 {
		return nil, nil
	}
	prx := f.proxies[f.cursor%len(f.proxies)]
	f.cursor++
	return prx, nil
}

type fakeMessageStore struct {
	has   bool
	err   error
	calls int
}

func (f *fakeMessageStore) HasIncoming(context.Context, int64) (bool, error) {
	f.calls++
	return f.has, f.err
}

type fakeStrict bool

func (f fakeStrict) StrictVerify(context.Context, int64) (bool, error) {
	return bool(f), nil
}

func testFetcher(pool ProxySource, store MessageStore, gate FirstPassGate) *Fetcher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewFetcher(pool, store, fakeStrict(false), gate, FetcherConfig{}, logger)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short stays", "hello", 10, "hello"},
		{"exact stays", "hello", 5, "hello"},
		{"long cut", "hello world", 5, "hello"},
		{"multibyte counted in runes", "привет", 3, "при"},
		{"empty", "", 5, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truncate(tt.in, tt.max); got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func TestIsTLSError(t *testing.T) {
	if !isTLSError(errors.New("tls: handshake failure")) {
		t.Error("tls-prefixed error not recognized")
	}
	if isTLSError(errors.New("dial tcp: connection refused")) {
		t.Error("plain network error misclassified as TLS")
	}
}

func TestFetchErrorWrapping(t *testing.T) {
	cause := errors.New("login denied")
	err := &FetchError{Stage: "login", Err: cause}

	if !errors.Is(err, cause) {
		t.Error("FetchError does not unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "login") {
		t.Errorf("Error() = %q, want the stage name included", err.Error())
	}

	var fe *FetchError
	wrapped := &FetchError{Stage: "connect", Err: err}
	if !errors.As(wrapped, &fe) {
		t.Error("errors.As failed to find FetchError")
	}
}

func TestFirstPassSuppressesEmptyHistory(t *testing.T) {
	ctx := context.Background()
	gate := state.NewTracker()
	store := &fakeMessageStore{}
	f := testFetcher(&fakeProxies{}, store, gate)

	// Without a pending flag the store is never consulted
	if f.shouldSuppress(ctx, 7, 1) {
		t.Fatal("suppressed without a first-pass flag")
	}
	if store.calls != 0 {
		t.Fatalf("store queried %d times without a flag, want 0", store.calls)
	}

	// Flagged account with no stored messages: backlog is swallowed once
	gate.MarkFirstPass(7, 1)
	if !f.shouldSuppress(ctx, 7, 1) {
		t.Fatal("fresh flagged account with empty history should suppress")
	}
	if f.shouldSuppress(ctx, 7, 1) {
		t.Fatal("suppression fired twice for the same account")
	}
}

func TestFirstPassSkippedWhenHistoryExists(t *testing.T) {
	ctx := context.Background()
	gate := state.NewTracker()
	store := &fakeMessageStore{has: true}
	f := testFetcher(&fakeProxies{}, store, gate)

	// One previously recorded message means the backlog was seen before:
	// unread mail must be relayed, not swallowed.
	gate.MarkFirstPass(7, 1)
	if f.shouldSuppress(ctx, 7, 1) {
		t.Fatal("suppressed despite recorded history")
	}

	// The decision also spends the one-shot flag
	store.has = false
	if f.shouldSuppress(ctx, 7, 1) {
		t.Fatal("flag survived a decided first pass")
	}
}

func TestFirstPassSurvivesStoreError(t *testing.T) {
	ctx := context.Background()
	gate := state.NewTracker()
	store := &fakeMessageStore{err: errors.New("database is locked")}
	f := testFetcher(&fakeProxies{}, store, gate)

	gate.MarkFirstPass(7, 1)
	if f.shouldSuppress(ctx, 7, 1) {
		t.Fatal("suppressed while the store was unreadable")
	}

	// The flag stays armed, so the next healthy poll still suppresses
	store.err = nil
	if !f.shouldSuppress(ctx, 7, 1) {
		t.Fatal("flag was consumed by the failed store read")
	}
}

func TestEstablishOutcomes(t *testing.T) {
	ctx := context.Background()
	twoProxies := func() *fakeProxies {
		return &fakeProxies{proxies: []*models.Proxy{
			{ID: 1, Host: "10.0.0.1", Port: 1080},
			{ID: 2, Host: "10.0.0.2", Port: 1080},
		}}
	}

	t.Run("proxied on retry", func(t *testing.T) {
		f := testFetcher(twoProxies(), &fakeMessageStore{}, state.NewTracker())
		var dials int
		f.dialProxied = func(_ context.Context, _ *models.Proxy, _, _ string) (*client.Client, error) {
			dials++
			if dials == 1 {
				return nil, errors.New("connection refused")
			}
			return nil, nil
		}
		f.dialDirect = func(string) (*client.Client, error) {
			t.Fatal("direct fallback reached although a proxy attempt succeeded")
			return nil, nil
		}

		out := f.establish(ctx, 7, "imap.gmail.com", false, 2)
		if out.Mode != ModeProxied {
			t.Fatalf("mode = %v, want ModeProxied", out.Mode)
		}
		if !strings.Contains(out.Detail, "try 2") {
			t.Fatalf("detail = %q, want the second attempt recorded", out.Detail)
		}
	})

	t.Run("strict exhaustion fails hard", func(t *testing.T) {
		f := testFetcher(twoProxies(), &fakeMessageStore{}, state.NewTracker())
		f.dialProxied = func(_ context.Context, _ *models.Proxy, _, _ string) (*client.Client, error) {
			return nil, errors.New("connection refused")
		}
		f.dialDirect = func(string) (*client.Client, error) {
			t.Fatal("strict mode must never fall back to direct")
			return nil, nil
		}

		out := f.establish(ctx, 7, "imap.gmail.com", true, 2)
		if out.Mode != ModeFailed {
			t.Fatalf("mode = %v, want ModeFailed", out.Mode)
		}
		if out.Err == nil {
			t.Fatal("failed outcome carries no error")
		}
	})

	t.Run("direct fallback without proxies", func(t *testing.T) {
		f := testFetcher(&fakeProxies{}, &fakeMessageStore{}, state.NewTracker())
		f.dialDirect = func(string) (*client.Client, error) { return nil, nil }

		out := f.establish(ctx, 7, "imap.gmail.com", false, 2)
		if out.Mode != ModeDirect {
			t.Fatalf("mode = %v, want ModeDirect", out.Mode)
		}
	})

	t.Run("strict without proxies", func(t *testing.T) {
		f := testFetcher(&fakeProxies{}, &fakeMessageStore{}, state.NewTracker())
		f.dialDirect = func(string) (*client.Client, error) {
			t.Fatal("strict mode must never fall back to direct")
			return nil, nil
		}

		out := f.establish(ctx, 7, "imap.gmail.com", true, 2)
		if out.Mode != ModeFailed {
			t.Fatalf("mode = %v, want ModeFailed", out.Mode)
		}
	})
}

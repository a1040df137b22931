package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	xproxy "golang.org/x/net/proxy"

	"github.com/mixelka/mailpool/pkg/models"
)

// Probe targets: a well-known endpoint per kind, chosen so a successful
// TCP connect proves the proxy can reach the class of servers it serves.
const (
	verifyProbeAddr = "imap.gmail.com:993"
	sendProbeAddr   = "smtp.gmail.com:587"
)

// Store is the slice of the proxy repository the pool needs
type Store interface {
	ListProxies(ctx context.Context, userID int64, kind models.ProxyKind) ([]*models.Proxy, error)
}

// Pool selects egress proxies with round-robin rotation per (user, kind).
// The rotation cursor is shared across callers, so concurrent fetches of
// the same user rotate through distinct exit IPs.
type Pool struct {
	store  Store
	logger *slog.Logger

	mu      sync.Mutex
	cursors map[cursorKey]int
}

type cursorKey struct {
	userID int64
	kind   models.ProxyKind
}

// NewPool creates a proxy pool backed by the given store
func NewPool(store Store, logger *slog.Logger) *Pool {
	return &Pool{
		store:   store,
		logger:  logger.With("component", "proxy_pool"),
		cursors: make(map[cursorKey]int),
	}
}

// Next returns the next proxy of the kind for the user, or nil when the
// pool is empty. The list is re-read from the store so edits take effect
// without a restart.
func (p *Pool) Next(ctx context.Context, userID int64, kind models.ProxyKind) (*models.Proxy, error) {
	proxies, err := p.store.ListProxies(ctx, userID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s proxies: %w", kind, err)
	}
	if len(proxies) == 0 {
		return nil, nil
	}

	p.mu.Lock()
	key := cursorKey{userID: userID, kind: kind}
	idx := p.cursors[key] % len(proxies)
	p.cursors[key]++
	p.mu.Unlock()

	return proxies[idx], nil
}

// Probe attempts a bare TCP connect through the proxy to the kind's probe
// target. It has no side effects; callers persist the health result.
func (p *Pool) Probe(ctx context.Context, prx *models.Proxy, timeout time.Duration) (bool, string) {
	target := verifyProbeAddr
	if prx.Kind == models.ProxySend {
		target = sendProbeAddr
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := Dial(probeCtx, prx, target, timeout)
	if err != nil {
		return false, err.Error()
	}
	conn.Close()
	return true, "OK"
}

// CheckAll probes every proxy of a kind, persists the results through the
// given setter and returns the proxies that failed.
func (p *Pool) CheckAll(ctx context.Context, userID int64, kind models.ProxyKind, timeout time.Duration, setHealthy func(ctx context.Context, id int64, healthy bool) error) ([]*models.Proxy, error) {
	proxies, err := p.store.ListProxies(ctx, userID, kind)
	if err != nil {
		return nil, err
	}

	var bad []*models.Proxy
	for _, prx := range proxies {
		ok, detail := p.Probe(ctx, prx, timeout)
		if !ok {
			p.logger.Warn("proxy probe failed", "proxy", prx.Addr(), "detail", detail)
			bad = append(bad, prx)
		}
		if err := setHealthy(ctx, prx.ID, ok); err != nil {
			p.logger.Error("failed to persist proxy health", "proxy_id", prx.ID, "error", err)
		}
	}
	return bad, nil
}

// Dial opens a TCP connection to addr through the SOCKS5 proxy
func Dial(ctx context.Context, prx *models.Proxy, addr string, timeout time.Duration) (net.Conn, error) {
	var auth *xproxy.Auth
	if prx.Login != "" || prx.Password != "" {
		auth = &xproxy.Auth{User: prx.Login, Password: prx.Password}
	}

	forward := &net.Dialer{Timeout: timeout}
	dialer, err := xproxy.SOCKS5("tcp", prx.Addr(), auth, forward)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	// x/net/proxy returns a ContextDialer for SOCKS5
	cd, ok := dialer.(xproxy.ContextDialer)
	if !ok {
		return dialer.Dial("tcp", addr)
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := cd.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s via %s: %w", addr, prx.Addr(), err)
	}
	return conn, nil
}

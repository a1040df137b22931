package models

import (
	"fmt"
	"time"
)

// ProxyKind distinguishes the two egress pools
type ProxyKind string

const (
	ProxyVerify ProxyKind = "verify" // inbound polling (IMAP)
	ProxySend   ProxyKind = "send"   // outbound submission (SMTP)
)

// Proxy represents a SOCKS5 egress proxy
type Proxy struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Kind      ProxyKind `db:"kind"`
	Host      string    `db:"host"`
	Port      int       `db:"port"`
	Login     string    `db:"login"`
	Password  string    `db:"password"`
	Healthy   bool      `db:"healthy"` // Last probe result
	CreatedAt time.Time `db:"created_at"`
}

// Addr returns the host:port address of the proxy
func (p *Proxy) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

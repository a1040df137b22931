package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"

	"github.com/mixelka/mailpool/internal/parser"
	"github.com/mixelka/mailpool/internal/proxy"
	"github.com/mixelka/mailpool/pkg/models"
)

// FetchedMessage is one parsed unread message. Immutable once produced.
type FetchedMessage struct {
	AccountID    int64
	AccountEmail string
	UID          uint32
	FromName     string
	FromEmail    string
	Subject      string
	Body         string
	ReceivedAt   time.Time
}

// FetchResult is the outcome of a successful mailbox poll
type FetchResult struct {
	Messages   []*FetchedMessage
	Via        string // how the connection was established
	Suppressed bool   // first-pass backlog was silently consumed
}

// FetchError is the single error type surfaced by Fetch. Stage names the
// step that failed; the wrapped cause carries the details.
type FetchError struct {
	Stage string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ConnectMode enumerates how (or whether) a mailbox connection was made
type ConnectMode int

const (
	ModeFailed ConnectMode = iota
	ModeProxied
	ModeDirect
)

// ConnectOutcome is the explicit result of the connect ladder: a proxied
// connection, a direct fallback, or a failure. No branch is exceptional.
type ConnectOutcome struct {
	Client *client.Client
	Mode   ConnectMode
	Detail string
	Err    error
}

// ProxySource rotates through the user's verify proxies
type ProxySource interface {
	Next(ctx context.Context, userID int64, kind models.ProxyKind) (*models.Proxy, error)
}

// MessageStore is the slice of the message repository the fetcher needs
type MessageStore interface {
	HasIncoming(ctx context.Context, accountID int64) (bool, error)
}

// SettingsStore exposes the per-user strict-verify flag
type SettingsStore interface {
	StrictVerify(ctx context.Context, userID int64) (bool, error)
}

// FirstPassGate is the one-shot backlog-suppression flag
type FirstPassGate interface {
	PendingFirstPass(userID, accountID int64) bool
	ConsumeFirstPass(userID, accountID int64) bool
}

// FetcherConfig tuning knobs for the fetcher
type FetcherConfig struct {
	DialTimeout   time.Duration
	ProxyAttempts int
	BodyMaxLen    int
}

// Fetcher polls one mailbox account over a proxied IMAP connection
type Fetcher struct {
	pool     ProxySource
	store    MessageStore
	settings SettingsStore
	gate     FirstPassGate
	html     *parser.HTMLParser
	cfg      FetcherConfig
	logger   *slog.Logger

	// dial indirection, replaced in tests
	dialProxied func(ctx context.Context, prx *models.Proxy, host, addr string) (*client.Client, error)
	dialDirect  func(addr string) (*client.Client, error)
}

// NewFetcher creates a mail fetcher
func NewFetcher(pool ProxySource, store MessageStore, settings SettingsStore, gate FirstPassGate, cfg FetcherConfig, logger *slog.Logger) *Fetcher {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 20 * time.Second
	}
	if cfg.ProxyAttempts == 0 {
		cfg.ProxyAttempts = 3
	}
	if cfg.BodyMaxLen == 0 {
		cfg.BodyMaxLen = 3500
	}
	f := &Fetcher{
		pool:     pool,
		store:    store,
		settings: settings,
		gate:     gate,
		html:     parser.NewHTMLParser(),
		cfg:      cfg,
		logger:   logger.With("component", "mail_fetcher"),
	}
	f.dialProxied = f.proxiedIMAP
	f.dialDirect = f.directIMAP
	return f
}

// Fetch lists the account's unread messages, parses them and marks them
// read. On the very first poll of a freshly added account the entire
// unread backlog is consumed silently instead.
func (f *Fetcher) Fetch(ctx context.Context, userID int64, acc *models.Account) (*FetchResult, error) {
	host := ResolveIMAPHost(acc.Email)
	if host == "" {
		return nil, &FetchError{Stage: "resolve", Err: fmt.Errorf("invalid email address %q", acc.Email)}
	}

	strict, err := f.settings.StrictVerify(ctx, userID)
	if err != nil {
		f.logger.Warn("failed to read strict-verify setting, assuming off", "error", err)
		strict = false
	}

	out := f.establish(ctx, userID, host, strict, f.cfg.ProxyAttempts)
	if out.Mode == ModeFailed {
		return nil, &FetchError{Stage: "connect", Err: out.Err}
	}
	c := out.Client
	via := out.Detail
	defer c.Logout()

	if err := f.loginSelect(c, acc); err != nil {
		if !isTLSError(err) {
			return nil, &FetchError{Stage: "login", Err: err}
		}
		// A TLS failure mid-handshake is often the rotating proxy exit
		// dying underneath us: rotate once more before giving up.
		c.Terminate()
		retry := f.establish(ctx, userID, host, strict, 2)
		if retry.Mode == ModeFailed {
			return nil, &FetchError{Stage: "connect", Err: retry.Err}
		}
		c = retry.Client
		via = retry.Detail + " (after tls retry)"
		defer c.Logout()
		if err := f.loginSelect(c, acc); err != nil {
			return nil, &FetchError{Stage: "login", Err: err}
		}
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, &FetchError{Stage: "search", Err: err}
	}

	if len(uids) == 0 {
		return &FetchResult{Via: via}, nil
	}

	if f.shouldSuppress(ctx, userID, acc.ID) {
		if err := f.markSeen(c, uids); err != nil {
			f.logger.Warn("failed to mark backlog as read", "account", acc.Email, "error", err)
		}
		f.logger.Info("suppressed unread backlog on first pass", "account", acc.Email, "count", len(uids))
		return &FetchResult{Via: via, Suppressed: true}, nil
	}

	messages, err := f.fetchMessages(c, acc, uids)
	if err != nil {
		return nil, &FetchError{Stage: "fetch", Err: err}
	}
	if err := f.markSeen(c, uids); err != nil {
		f.logger.Warn("failed to mark messages as read", "account", acc.Email, "error", err)
	}

	return &FetchResult{Messages: messages, Via: via}, nil
}

// shouldSuppress decides whether the unread backlog of a freshly added
// account is consumed silently: the account must carry a pending
// first-pass flag and have no stored messages at all. The one-shot flag
// is only spent once the store has answered, so a transient read error
// leaves suppression armed for the next poll.
func (f *Fetcher) shouldSuppress(ctx context.Context, userID, accountID int64) bool {
	if !f.gate.PendingFirstPass(userID, accountID) {
		return false
	}
	hasAny, err := f.store.HasIncoming(ctx, accountID)
	if err != nil {
		f.logger.Warn("failed to check stored messages, keeping first-pass flag", "error", err)
		return false
	}
	f.gate.ConsumeFirstPass(userID, accountID)
	return !hasAny
}

// establish runs the connect ladder: up to attempts proxied connections
// through rotating verify proxies, then a direct fallback unless strict
// mode forbids it.
func (f *Fetcher) establish(ctx context.Context, userID int64, host string, strict bool, attempts int) ConnectOutcome {
	addr := net.JoinHostPort(host, strconv.Itoa(imapPortSSL))

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			// Let a rotating proxy switch its exit IP before retrying
			select {
			case <-ctx.Done():
				return ConnectOutcome{Mode: ModeFailed, Err: ctx.Err()}
			case <-time.After(250*time.Millisecond + 250*time.Millisecond*time.Duration(i-1)):
			}
		}

		prx, err := f.pool.Next(ctx, userID, models.ProxyVerify)
		if err != nil {
			lastErr = err
			break
		}
		if prx == nil {
			lastErr = errors.New("no verify proxies configured")
			break
		}

		c, err := f.dialProxied(ctx, prx, host, addr)
		if err != nil {
			lastErr = err
			continue
		}
		return ConnectOutcome{
			Client: c,
			Mode:   ModeProxied,
			Detail: fmt.Sprintf("via verify %s (try %d)", prx.Addr(), i+1),
		}
	}

	if strict {
		return ConnectOutcome{
			Mode: ModeFailed,
			Err:  fmt.Errorf("verify proxy required but all attempts failed: %w", lastErr),
		}
	}

	c, err := f.dialDirect(addr)
	if err != nil {
		return ConnectOutcome{Mode: ModeFailed, Err: err}
	}
	detail := "via direct"
	if lastErr != nil {
		detail = fmt.Sprintf("via direct (verify failed: %v)", lastErr)
	}
	return ConnectOutcome{Client: c, Mode: ModeDirect, Detail: detail}
}

func (f *Fetcher) proxiedIMAP(ctx context.Context, prx *models.Proxy, host, addr string) (*client.Client, error) {
	conn, err := proxy.Dial(ctx, prx, addr, f.cfg.DialTimeout)
	if err != nil {
		return nil, err
	}

	// TLS over the established SOCKS5 tunnel
	tlsConn := tls.Client(conn, &tls.Config{ServerName: host})
	hsCtx, cancel := context.WithTimeout(ctx, f.cfg.DialTimeout)
	defer cancel()
	if err := tlsConn.HandshakeContext(hsCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake via %s: %w", prx.Addr(), err)
	}

	c, err := client.New(tlsConn)
	if err != nil {
		tlsConn.Close()
		return nil, fmt.Errorf("failed to create IMAP client: %w", err)
	}
	c.Timeout = f.cfg.DialTimeout
	return c, nil
}

func (f *Fetcher) directIMAP(addr string) (*client.Client, error) {
	dialer := &net.Dialer{Timeout: f.cfg.DialTimeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c, err := client.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create IMAP client: %w", err)
	}
	c.Timeout = f.cfg.DialTimeout
	return c, nil
}

func (f *Fetcher) loginSelect(c *client.Client, acc *models.Account) error {
	if err := c.Login(acc.Email, acc.Password); err != nil {
		return fmt.Errorf("failed to login: %w", err)
	}
	if _, err := c.Select("INBOX", false); err != nil {
		return fmt.Errorf("failed to select INBOX: %w", err)
	}
	return nil
}

// fetchMessages downloads and parses the full body of every given UID
func (f *Fetcher) fetchMessages(c *client.Client, acc *models.Account, uids []uint32) ([]*FetchedMessage, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	ch := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, items, ch)
	}()

	var messages []*FetchedMessage
	for msg := range ch {
		parsed, err := f.parseMessage(acc, msg, section)
		if err != nil {
			f.logger.Warn("failed to parse message", "account", acc.Email, "uid", msg.Uid, "error", err)
			continue
		}
		messages = append(messages, parsed)
	}

	if err := <-done; err != nil {
		return messages, fmt.Errorf("failed to fetch: %w", err)
	}
	return messages, nil
}

func (f *Fetcher) parseMessage(acc *models.Account, msg *imap.Message, section *imap.BodySectionName) (*FetchedMessage, error) {
	out := &FetchedMessage{
		AccountID:    acc.ID,
		AccountEmail: acc.Email,
		UID:          msg.Uid,
		ReceivedAt:   time.Now(),
	}

	if msg.Envelope != nil {
		out.Subject = msg.Envelope.Subject
		if !msg.Envelope.Date.IsZero() {
			out.ReceivedAt = msg.Envelope.Date
		}
		if len(msg.Envelope.From) > 0 {
			from := msg.Envelope.From[0]
			out.FromName = from.PersonalName
			out.FromEmail = from.Address()
		}
	}

	body := msg.GetBody(section)
	if body == nil {
		return out, nil
	}

	mr, err := mail.CreateReader(body)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail reader: %w", err)
	}

	var textBody, htmlBody string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		raw, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(ct, "text/plain") && textBody == "":
			textBody = string(raw)
		case strings.HasPrefix(ct, "text/html") && htmlBody == "":
			htmlBody = string(raw)
		}
	}

	text := textBody
	if text == "" && htmlBody != "" {
		stripped, err := f.html.Parse(htmlBody)
		if err == nil {
			text = stripped
		}
	}
	out.Body = Truncate(text, f.cfg.BodyMaxLen)

	return out, nil
}

func (f *Fetcher) markSeen(c *client.Client, uids []uint32) error {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}
	if err := c.UidStore(seqSet, item, flags, nil); err != nil {
		return fmt.Errorf("failed to mark as read: %w", err)
	}
	return nil
}

// Truncate caps a string at max runes
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func isTLSError(err error) bool {
	var rh tls.RecordHeaderError
	if errors.As(err, &rh) {
		return true
	}
	return strings.Contains(err.Error(), "tls:")
}

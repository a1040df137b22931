package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/mixelka/mailpool/internal/proxy"
	"github.com/mixelka/mailpool/pkg/models"
)

// OutgoingMessage is a plain-text mail ready for submission
type OutgoingMessage struct {
	To      string
	Subject string
	Body    string
}

// SubmitConfig tuning knobs for the submitter
type SubmitConfig struct {
	DialTimeout time.Duration
}

// Submitter delivers mail through the sending account's own provider,
// optionally tunneled through a SOCKS5 send proxy.
type Submitter struct {
	cfg    SubmitConfig
	logger *slog.Logger
}

// NewSubmitter creates an SMTP submitter
func NewSubmitter(cfg SubmitConfig, logger *slog.Logger) *Submitter {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 20 * time.Second
	}
	return &Submitter{
		cfg:    cfg,
		logger: logger.With("component", "submitter"),
	}
}

// Submit sends one message from the account. A nil prx means a direct
// connection; otherwise the session is tunneled through the proxy.
func (s *Submitter) Submit(ctx context.Context, acc *models.Account, prx *models.Proxy, msg *OutgoingMessage) error {
	host := ResolveSMTPHost(acc.Email)
	if host == "" {
		return fmt.Errorf("invalid sender address %q", acc.Email)
	}
	addr := net.JoinHostPort(host, strconv.Itoa(smtpPortSubmit))

	conn, err := s.dial(ctx, prx, addr)
	if err != nil {
		return err
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello("localhost"); err != nil {
		return fmt.Errorf("helo failed: %w", err)
	}
	if err := c.StartTLS(&tls.Config{ServerName: host}); err != nil {
		return fmt.Errorf("starttls failed: %w", err)
	}
	if err := c.Auth(sasl.NewPlainClient("", acc.Email, acc.Password)); err != nil {
		return fmt.Errorf("auth failed for %s: %w", acc.Email, err)
	}

	if err := c.Mail(acc.Email, nil); err != nil {
		return fmt.Errorf("mail from failed: %w", err)
	}
	if err := c.Rcpt(msg.To, nil); err != nil {
		return fmt.Errorf("rcpt to %s failed: %w", msg.To, err)
	}

	raw, err := compose(acc, msg)
	if err != nil {
		return err
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("data failed: %w", err)
	}
	if _, err := wc.Write(raw); err != nil {
		wc.Close()
		return fmt.Errorf("failed to write message body: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}

	if err := c.Quit(); err != nil {
		// Delivery already succeeded, the session just closed uncleanly
		s.logger.Debug("quit failed after delivery", "account", acc.Email, "error", err)
	}

	s.logger.Info("message delivered", "from", acc.Email, "to", msg.To, "via", viaLabel(prx))
	return nil
}

func (s *Submitter) dial(ctx context.Context, prx *models.Proxy, addr string) (net.Conn, error) {
	if prx != nil {
		conn, err := proxy.Dial(ctx, prx, addr, s.cfg.DialTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to reach %s via %s: %w", addr, prx.Addr(), err)
		}
		return conn, nil
	}

	dialer := &net.Dialer{Timeout: s.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", addr, err)
	}
	return conn, nil
}

// compose renders the message as an RFC 5322 document with proper
// header encoding for non-ASCII subjects and names.
func compose(acc *models.Account, msg *OutgoingMessage) ([]byte, error) {
	var buf bytes.Buffer

	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Name: acc.DisplayName, Address: acc.Email}})
	h.SetAddressList("To", []*mail.Address{{Address: msg.To}})
	h.SetSubject(msg.Subject)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to compose message: %w", err)
	}
	if _, err := io.WriteString(w, msg.Body); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to compose message: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to compose message: %w", err)
	}

	return buf.Bytes(), nil
}

func viaLabel(prx *models.Proxy) string {
	if prx == nil {
		return "direct"
	}
	return "send " + prx.Addr()
}

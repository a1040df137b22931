package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/mixelka/mailpool/internal/email"
	"github.com/mixelka/mailpool/pkg/models"
)

var (
	// ErrCampaignRunning is returned when the user already has an
	// active campaign.
	ErrCampaignRunning = errors.New("campaign already running")
	// ErrNoRecipients is returned for an empty recipient list
	ErrNoRecipients = errors.New("no recipients")
)

// AccountStore lists the accounts available for sending
type AccountStore interface {
	ListActiveAccounts(ctx context.Context, userID int64) ([]*models.Account, error)
}

// ContentStore supplies the subject and template pools
type ContentStore interface {
	ListSubjects(ctx context.Context, userID int64) ([]string, error)
	ListTemplates(ctx context.Context, userID int64) ([]string, error)
}

// SettingsStore supplies the pacing interval
type SettingsStore interface {
	SendDelayRange(ctx context.Context, userID int64, defMin, defMax time.Duration) (time.Duration, time.Duration, error)
}

// ProxySource rotates through the user's send proxies
type ProxySource interface {
	Next(ctx context.Context, userID int64, kind models.ProxyKind) (*models.Proxy, error)
}

// Submitter delivers one composed message
type Submitter interface {
	Submit(ctx context.Context, acc *models.Account, prx *models.Proxy, msg *email.OutgoingMessage) error
}

// Notifier receives per-recipient and campaign-level outcome events
type Notifier interface {
	SendSucceeded(ctx context.Context, userID int64, toEmail, subject, bodyForLog string)
	SendFailed(ctx context.Context, userID int64, toEmail string)
	CampaignFinished(ctx context.Context, userID int64, st Status)
}

// Status is a point-in-time snapshot of a campaign
type Status struct {
	Running   bool
	Sent      int
	Failed    int
	Total     int
	Cancelled bool
}

// Config default pacing bounds, overridable per user via settings
type Config struct {
	DelayMin time.Duration
	DelayMax time.Duration
}

// Scheduler runs at most one send campaign per user: a paced sequential
// walk over the recipient list, each message going out through a random
// account and the next send proxy in rotation.
type Scheduler struct {
	accounts AccountStore
	content  ContentStore
	settings SettingsStore
	proxies  ProxySource
	submit   Submitter
	notifier Notifier
	cfg      Config
	logger   *slog.Logger

	mu   sync.Mutex
	runs map[int64]*run
}

type run struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	status Status
}

// NewScheduler creates a campaign scheduler
func NewScheduler(accounts AccountStore, content ContentStore, settings SettingsStore, proxies ProxySource, submit Submitter, notifier Notifier, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.DelayMin == 0 {
		cfg.DelayMin = 20 * time.Second
	}
	if cfg.DelayMax == 0 {
		cfg.DelayMax = 40 * time.Second
	}
	return &Scheduler{
		accounts: accounts,
		content:  content,
		settings: settings,
		proxies:  proxies,
		submit:   submit,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With("component", "sender"),

		runs: make(map[int64]*run),
	}
}

// Start launches a campaign over the recipients. At most one campaign
// per user runs at a time.
func (s *Scheduler) Start(ctx context.Context, userID int64, recipients []models.Recipient) error {
	if len(recipients) == 0 {
		return ErrNoRecipients
	}

	s.mu.Lock()
	if prev, ok := s.runs[userID]; ok && prev.running() {
		s.mu.Unlock()
		return ErrCampaignRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		cancel: cancel,
		done:   make(chan struct{}),
		status: Status{Running: true, Total: len(recipients)},
	}
	s.runs[userID] = r
	s.mu.Unlock()

	go s.loop(runCtx, userID, r, recipients)
	s.logger.Info("campaign started", "user_id", userID, "recipients", len(recipients))
	return nil
}

// Cancel requests a running campaign to stop after the current send.
// Returns false when no campaign is running.
func (s *Scheduler) Cancel(userID int64) bool {
	s.mu.Lock()
	r, ok := s.runs[userID]
	s.mu.Unlock()
	if !ok || !r.running() {
		return false
	}

	r.mu.Lock()
	r.status.Cancelled = true
	r.mu.Unlock()
	r.cancel()
	return true
}

func (r *run) running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status.Running
}

// Status returns the snapshot of the user's current or most recent
// campaign. The second return is false when none was ever started.
func (s *Scheduler) Status(userID int64) (Status, bool) {
	s.mu.Lock()
	r, ok := s.runs[userID]
	s.mu.Unlock()
	if !ok {
		return Status{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, true
}

// StopAll cancels every running campaign and waits them out. Used
// during shutdown.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	runs := make([]*run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	s.mu.Unlock()

	for _, r := range runs {
		r.cancel()
		<-r.done
	}
}

func (s *Scheduler) loop(ctx context.Context, userID int64, r *run, recipients []models.Recipient) {
	defer close(r.done)

	delayMin, delayMax, err := s.settings.SendDelayRange(ctx, userID, s.cfg.DelayMin, s.cfg.DelayMax)
	if err != nil {
		s.logger.Warn("failed to read pacing settings, using defaults", "error", err)
		delayMin, delayMax = s.cfg.DelayMin, s.cfg.DelayMax
	}

	for _, rcpt := range recipients {
		if cancelled(ctx) {
			break
		}

		msg := s.render(ctx, userID, rcpt)
		if err := s.sendOne(ctx, userID, rcpt.Email, msg); err != nil {
			r.mu.Lock()
			r.status.Failed++
			r.mu.Unlock()
			s.logger.Warn("send failed", "user_id", userID, "to", rcpt.Email, "error", err)
			s.notifier.SendFailed(ctx, userID, rcpt.Email)
		} else {
			r.mu.Lock()
			r.status.Sent++
			r.mu.Unlock()
			s.notifier.SendSucceeded(ctx, userID, rcpt.Email, msg.Subject, msg.BodyForLog)
		}

		// Uniform random pause between recipients, interruptible
		pause := delayMin + time.Duration(rand.Float64()*float64(delayMax-delayMin))
		select {
		case <-ctx.Done():
		case <-time.After(pause):
		}
	}

	// The run stays in the map so the final counters remain queryable
	r.mu.Lock()
	r.status.Running = false
	final := r.status
	r.mu.Unlock()

	// Report over a fresh context: the campaign one is already cancelled
	// when the user stopped the run.
	s.notifier.CampaignFinished(context.WithoutCancel(ctx), userID, final)
	s.logger.Info("campaign finished", "user_id", userID,
		"sent", final.Sent, "failed", final.Failed, "total", final.Total, "cancelled", final.Cancelled)
}

// render picks a random subject and body template, reloading the pools
// so mid-campaign edits take effect.
func (s *Scheduler) render(ctx context.Context, userID int64, rcpt models.Recipient) RenderedMessage {
	subject := ""
	if subjects, err := s.content.ListSubjects(ctx, userID); err == nil && len(subjects) > 0 {
		subject = subjects[rand.Intn(len(subjects))]
	}
	template := ""
	if templates, err := s.content.ListTemplates(ctx, userID); err == nil && len(templates) > 0 {
		template = templates[rand.Intn(len(templates))]
	}
	return Render(subject, template, rcpt.SellerName, rcpt.ItemTitle)
}

// sendOne delivers one message through a random active account and the
// next send proxy in rotation. Both are required.
func (s *Scheduler) sendOne(ctx context.Context, userID int64, to string, msg RenderedMessage) error {
	accounts, err := s.accounts.ListActiveAccounts(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}
	if len(accounts) == 0 {
		return errors.New("no active accounts")
	}
	acc := accounts[rand.Intn(len(accounts))]

	prx, err := s.proxies.Next(ctx, userID, models.ProxySend)
	if err != nil {
		return err
	}
	if prx == nil {
		return errors.New("no send proxies configured")
	}

	return s.submit.Submit(ctx, acc, prx, &email.OutgoingMessage{
		To:      to,
		Subject: msg.Subject,
		Body:    msg.Body,
	})
}

// SendDirect delivers a single ad-hoc message outside any campaign,
// with the same account and proxy rotation rules.
func (s *Scheduler) SendDirect(ctx context.Context, userID int64, to, subject, body string) error {
	return s.sendOne(ctx, userID, to, RenderedMessage{Subject: subject, Body: body})
}

func cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

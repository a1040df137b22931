package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mixelka/mailpool/internal/database"
	"github.com/mixelka/mailpool/internal/email"
	"github.com/mixelka/mailpool/internal/state"
	"github.com/mixelka/mailpool/pkg/models"
)

// Fetcher polls one mailbox account
type Fetcher interface {
	Fetch(ctx context.Context, userID int64, acc *models.Account) (*email.FetchResult, error)
}

// AccountStore lists the accounts to poll
type AccountStore interface {
	ListActiveAccounts(ctx context.Context, userID int64) ([]*models.Account, error)
}

// MessageStore persists fetched messages
type MessageStore interface {
	SaveIncoming(ctx context.Context, msg *models.IncomingMessage) error
}

// Notifier receives poll-lifecycle events for relaying to the user
type Notifier interface {
	StreamStarted(ctx context.Context, userID int64, accountEmail string)
	StreamError(ctx context.Context, userID int64, accountEmail, summary string)
	MessageReceived(ctx context.Context, userID int64, msg *email.FetchedMessage)
}

// Config tuning knobs for the poll scheduler
type Config struct {
	Interval    time.Duration
	MaxParallel int
}

// Scheduler runs one polling loop per user. Each tick it fans the user's
// eligible accounts out to a bounded worker group.
type Scheduler struct {
	accounts AccountStore
	messages MessageStore
	fetcher  Fetcher
	tracker  *state.Tracker
	notifier Notifier
	cfg      Config
	logger   *slog.Logger

	mu    sync.Mutex
	loops map[int64]*loop
}

type loop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a poll scheduler
func NewScheduler(accounts AccountStore, messages MessageStore, fetcher Fetcher, tracker *state.Tracker, notifier Notifier, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.Interval == 0 {
		cfg.Interval = 3 * time.Second
	}
	if cfg.MaxParallel < 1 {
		cfg.MaxParallel = 5
	}
	return &Scheduler{
		accounts: accounts,
		messages: messages,
		fetcher:  fetcher,
		tracker:  tracker,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With("component", "poller"),

		loops: make(map[int64]*loop),
	}
}

// Start launches the user's polling loop. Returns false when one is
// already running.
func (s *Scheduler) Start(ctx context.Context, userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, running := s.loops[userID]; running {
		return false
	}

	loopCtx, cancel := context.WithCancel(ctx)
	l := &loop{cancel: cancel, done: make(chan struct{})}
	s.loops[userID] = l

	go s.run(loopCtx, userID, l.done)
	s.logger.Info("polling started", "user_id", userID)
	return true
}

// Stop cancels the user's polling loop and waits for it to drain.
// Returns false when no loop was running.
func (s *Scheduler) Stop(userID int64) bool {
	s.mu.Lock()
	l, running := s.loops[userID]
	if running {
		delete(s.loops, userID)
	}
	s.mu.Unlock()

	if !running {
		return false
	}

	l.cancel()
	<-l.done
	s.tracker.MarkAllDisconnected(userID)
	s.logger.Info("polling stopped", "user_id", userID)
	return true
}

// Running reports whether the user's polling loop is active
func (s *Scheduler) Running(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, running := s.loops[userID]
	return running
}

// StopAll stops every running loop. Used during shutdown.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	users := make([]int64, 0, len(s.loops))
	for userID := range s.loops {
		users = append(users, userID)
	}
	s.mu.Unlock()

	for _, userID := range users {
		s.Stop(userID)
	}
}

func (s *Scheduler) run(ctx context.Context, userID int64, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	// First pass immediately, then on every tick
	s.poll(ctx, userID)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx, userID)
		}
	}
}

// poll fans the user's eligible accounts out to a bounded worker group
// and waits for the whole pass to finish before the next tick counts.
func (s *Scheduler) poll(ctx context.Context, userID int64) {
	accounts, err := s.accounts.ListActiveAccounts(ctx, userID)
	if err != nil {
		s.logger.Error("failed to list accounts", "user_id", userID, "error", err)
		return
	}

	now := time.Now()
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxParallel)

	for _, acc := range accounts {
		if !s.tracker.IsEligible(userID, acc.ID, now) {
			continue
		}
		acc := acc
		g.Go(func() error {
			s.pollOne(gCtx, userID, acc)
			return nil
		})
	}
	g.Wait()
}

func (s *Scheduler) pollOne(ctx context.Context, userID int64, acc *models.Account) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("poll panicked", "account", acc.Email, "panic", fmt.Sprint(r))
			err := fmt.Errorf("internal error: %v", r)
			if s.tracker.RecordFailure(userID, acc.ID, err) {
				s.notifier.StreamError(ctx, userID, acc.Email, summarize(err))
			}
		}
	}()

	res, err := s.fetcher.Fetch(ctx, userID, acc)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		if s.tracker.RecordFailure(userID, acc.ID, err) {
			s.notifier.StreamError(ctx, userID, acc.Email, summarize(err))
		}
		s.logger.Warn("poll failed", "account", acc.Email, "error", err)
		return
	}

	if s.tracker.RecordSuccess(userID, acc.ID) {
		s.notifier.StreamStarted(ctx, userID, acc.Email)
	}
	if res.Suppressed {
		return
	}

	for _, m := range res.Messages {
		record := &models.IncomingMessage{
			UserID:     userID,
			AccountID:  acc.ID,
			UID:        m.UID,
			FromName:   m.FromName,
			FromEmail:  m.FromEmail,
			Subject:    m.Subject,
			Body:       m.Body,
			ReceivedAt: m.ReceivedAt,
		}
		if err := s.messages.SaveIncoming(ctx, record); err != nil {
			if errors.Is(err, database.ErrAlreadyExists) {
				continue // already relayed on an earlier pass
			}
			s.logger.Error("failed to save message", "account", acc.Email, "uid", m.UID, "error", err)
			continue
		}
		s.notifier.MessageReceived(ctx, userID, m)
	}
}

// summarize trims an error chain down to a notification-sized line
func summarize(err error) string {
	var fe *email.FetchError
	msg := err.Error()
	if errors.As(err, &fe) {
		msg = fe.Error()
	}
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return msg
}

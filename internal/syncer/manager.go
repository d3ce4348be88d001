// Package syncer runs the unified inbox sync: it walks every initialized
// account, pulls each sync type the platform supports, deduplicates, and
// lands normalized messages in the store.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AdaptLabsAI/irisync/internal/dedup"
	"github.com/AdaptLabsAI/irisync/internal/events"
	"github.com/AdaptLabsAI/irisync/internal/platform"
	"github.com/AdaptLabsAI/irisync/internal/store"
	"github.com/AdaptLabsAI/irisync/pkg/logging"
	"github.com/AdaptLabsAI/irisync/pkg/monitoring"
)

// AccountStore is the slice of the persistence layer the manager needs.
type AccountStore interface {
	ListActive(ctx context.Context) ([]store.Account, error)
	UpdateAuth(ctx context.Context, p platform.Type, accountID string, auth platform.AuthState) error
}

// MessageSink lands one normalized message; it reports false when the
// message was already present.
type MessageSink interface {
	Insert(ctx context.Context, m *platform.Message) (bool, error)
}

// ProviderSource builds or returns the provider for one account.
type ProviderSource interface {
	Provider(t platform.Type, accountID string, auth platform.AuthState) (platform.Provider, error)
}

// SyncError records one failed sync operation without aborting the round.
type SyncError struct {
	Platform  platform.Type `json:"platform"`
	AccountID string        `json:"account_id"`
	SyncType  string        `json:"sync_type"`
	Message   string        `json:"message"`
}

func (e SyncError) Error() string {
	return fmt.Sprintf("%s/%s %s: %s", e.Platform, e.AccountID, e.SyncType, e.Message)
}

// SyncReport summarizes one sync round.
type SyncReport struct {
	StartedAt          time.Time             `json:"started_at"`
	Duration           time.Duration         `json:"duration"`
	AccountsSynced     int                   `json:"accounts_synced"`
	TotalMessages      int                   `json:"total_messages"`
	MessagesByPlatform map[platform.Type]int `json:"messages_by_platform"`
	Errors             []SyncError           `json:"errors,omitempty"`
}

type managedAccount struct {
	// mu guards account and provider: a mid-run token refresh swaps both
	// while other rounds and webhook deliveries read them.
	mu       sync.Mutex
	account  store.Account
	provider platform.Provider
}

func (ma *managedAccount) snapshot() (store.Account, platform.Provider) {
	ma.mu.Lock()
	defer ma.mu.Unlock()
	return ma.account, ma.provider
}

// Manager owns the set of initialized accounts and the background sync
// timers. Construct one per process; every dependency is injected.
type Manager struct {
	accounts  AccountStore
	inbox     MessageSink
	providers ProviderSource
	deduper   dedup.Deduper
	publisher events.Publisher
	metrics   *monitoring.SyncMetrics
	logger    logging.Logger

	concurrency int
	now         func() time.Time
	newTicker   TickerFactory

	mu          sync.Mutex
	initialized map[string]*managedAccount
	background  map[platform.Type]*backgroundSync
}

// Option configures a Manager.
type Option func(*Manager)

// WithConcurrency bounds how many accounts sync in parallel.
func WithConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// WithClock injects a clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithTickerFactory injects the background timer source, for tests.
func WithTickerFactory(f TickerFactory) Option {
	return func(m *Manager) { m.newTicker = f }
}

// WithMetrics attaches sync metrics.
func WithMetrics(sm *monitoring.SyncMetrics) Option {
	return func(m *Manager) { m.metrics = sm }
}

// New creates a sync manager. publisher may be events.NopPublisher{};
// deduper is required (use dedup.NewMemory for single-process runs).
func New(accounts AccountStore, inbox MessageSink, providers ProviderSource, deduper dedup.Deduper, publisher events.Publisher, logger logging.Logger, opts ...Option) *Manager {
	m := &Manager{
		accounts:    accounts,
		inbox:       inbox,
		providers:   providers,
		deduper:     deduper,
		publisher:   publisher,
		logger:      logger,
		concurrency: 4,
		now:         time.Now,
		newTicker:   realTickerFactory,
		initialized: make(map[string]*managedAccount),
		background:  make(map[platform.Type]*backgroundSync),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func accountKey(p platform.Type, accountID string) string {
	return string(p) + ":" + accountID
}

// InitializeAccounts loads every active account, builds its provider, and
// refreshes credentials that are due. A broken account is logged and
// skipped; it never blocks the rest.
func (m *Manager) InitializeAccounts(ctx context.Context) error {
	accounts, err := m.accounts.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	ready := 0
	for i := range accounts {
		acct := accounts[i]
		if err := m.initializeAccount(ctx, acct); err != nil {
			m.logger.WithFields(logging.Fields{
				"platform":   acct.Platform,
				"account_id": acct.AccountID,
				"error":      err.Error(),
			}).Warn("Skipping account during initialization")
			continue
		}
		ready++
	}

	m.logger.WithFields(logging.Fields{
		"total": len(accounts),
		"ready": ready,
	}).Info("Accounts initialized")
	return nil
}

func (m *Manager) initializeAccount(ctx context.Context, acct store.Account) error {
	provider, err := m.providers.Provider(acct.Platform, acct.AccountID, acct.Auth)
	if err != nil {
		return err
	}

	if !provider.IsAuthenticated() {
		state, err := provider.RefreshAccessToken(ctx)
		if err != nil {
			// degraded: register with the stale token and retry the
			// refresh before each sync round, never drop the account
			m.logger.WithFields(logging.Fields{
				"platform":   acct.Platform,
				"account_id": acct.AccountID,
				"error":      err.Error(),
			}).Warn("Token refresh failed, continuing with existing credentials")
		} else {
			acct.Auth = *state
			if err := m.accounts.UpdateAuth(ctx, acct.Platform, acct.AccountID, *state); err != nil {
				// the refreshed token works for this process; persistence
				// failure only costs a refresh on next restart
				m.logger.WithFields(logging.Fields{
					"platform":   acct.Platform,
					"account_id": acct.AccountID,
					"error":      err.Error(),
				}).Warn("Failed to persist refreshed credentials")
			}
			// the provider cache keys on the access token, rebuild
			provider, err = m.providers.Provider(acct.Platform, acct.AccountID, acct.Auth)
			if err != nil {
				return err
			}
		}
	}

	m.mu.Lock()
	m.initialized[accountKey(acct.Platform, acct.AccountID)] = &managedAccount{
		account:  acct,
		provider: provider,
	}
	m.mu.Unlock()
	return nil
}

func (m *Manager) managedAccounts() []*managedAccount {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*managedAccount, 0, len(m.initialized))
	for _, ma := range m.initialized {
		out = append(out, ma)
	}
	return out
}

// account returns the managed account, or nil when it was never
// initialized.
func (m *Manager) account(p platform.Type, accountID string) *managedAccount {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized[accountKey(p, accountID)]
}

// SyncAllPlatforms runs one sync round over every initialized account,
// bounded by the configured concurrency. Per-account failures land in the
// report, never abort the round.
func (m *Manager) SyncAllPlatforms(ctx context.Context) *SyncReport {
	return m.syncAccounts(ctx, m.managedAccounts(), nil)
}

// SyncPlatform runs one sync round over a single platform's accounts.
func (m *Manager) SyncPlatform(ctx context.Context, p platform.Type) *SyncReport {
	return m.syncPlatform(ctx, p, nil)
}

// syncPlatform runs one round for one platform. A non-nil allowed set
// restricts which sync types run; nil means every capability.
func (m *Manager) syncPlatform(ctx context.Context, p platform.Type, allowed map[string]bool) *SyncReport {
	var subset []*managedAccount
	for _, ma := range m.managedAccounts() {
		acct, _ := ma.snapshot()
		if acct.Platform == p {
			subset = append(subset, ma)
		}
	}
	return m.syncAccounts(ctx, subset, allowed)
}

func (m *Manager) syncAccounts(ctx context.Context, accounts []*managedAccount, allowed map[string]bool) *SyncReport {
	started := m.now()
	report := &SyncReport{
		StartedAt:          started,
		MessagesByPlatform: make(map[platform.Type]int),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	for _, ma := range accounts {
		ma := ma
		g.Go(func() error {
			count, errs := m.syncAccount(gctx, ma, allowed)
			acct, _ := ma.snapshot()

			mu.Lock()
			report.AccountsSynced++
			report.TotalMessages += count
			report.MessagesByPlatform[acct.Platform] += count
			report.Errors = append(report.Errors, errs...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = m.now().Sub(started)

	if m.publisher != nil {
		if err := m.publisher.Publish(ctx, events.SyncCompleted(report.TotalMessages, report.MessagesByPlatform, len(report.Errors))); err != nil {
			m.logger.WithFields(logging.Fields{"error": err.Error()}).Warn("Failed to publish sync event")
		}
	}

	m.logger.WithFields(logging.Fields{
		"accounts": report.AccountsSynced,
		"messages": report.TotalMessages,
		"errors":   len(report.Errors),
		"duration": report.Duration.String(),
	}).Info("Sync round complete")
	return report
}

// syncOperation is one optional capability in the fixed sync order.
type syncOperation struct {
	name  string
	fetch func(ctx context.Context, userID, accountID, orgID string) ([]platform.Message, error)
}

// operations discovers the provider's optional sync capabilities. The
// order is fixed: comments, notifications, conversations, private
// messages, mentions.
func operations(p platform.Provider) []syncOperation {
	var ops []syncOperation
	if s, ok := p.(platform.CommentSyncer); ok {
		ops = append(ops, syncOperation{"comments", s.SyncComments})
	}
	if s, ok := p.(platform.NotificationSyncer); ok {
		ops = append(ops, syncOperation{"notifications", s.SyncNotifications})
	}
	if s, ok := p.(platform.ConversationSyncer); ok {
		ops = append(ops, syncOperation{"conversations", s.SyncConversations})
	}
	if s, ok := p.(platform.PrivateMessageSyncer); ok {
		ops = append(ops, syncOperation{"private_messages", s.SyncPrivateMessages})
	}
	if s, ok := p.(platform.MentionSyncer); ok {
		ops = append(ops, syncOperation{"mentions", s.SyncMentions})
	}
	return ops
}

// ensureFresh re-attempts a token refresh when the held credentials have
// expired mid-run. Refresh failure degrades to syncing with the stale
// token: per-operation errors land in the report and the next round tries
// again. Concurrent rounds share one refresh through the adapter's
// single-flight group.
func (m *Manager) ensureFresh(ctx context.Context, ma *managedAccount) {
	acct, provider := ma.snapshot()
	if provider.IsAuthenticated() {
		return
	}

	state, err := provider.RefreshAccessToken(ctx)
	if err != nil {
		m.logger.WithFields(logging.Fields{
			"platform":   acct.Platform,
			"account_id": acct.AccountID,
			"error":      err.Error(),
		}).Warn("Token refresh failed, continuing with existing credentials")
		return
	}

	if err := m.accounts.UpdateAuth(ctx, acct.Platform, acct.AccountID, *state); err != nil {
		m.logger.WithFields(logging.Fields{
			"platform":   acct.Platform,
			"account_id": acct.AccountID,
			"error":      err.Error(),
		}).Warn("Failed to persist refreshed credentials")
	}

	acct.Auth = *state
	rebuilt, err := m.providers.Provider(acct.Platform, acct.AccountID, acct.Auth)
	if err != nil {
		rebuilt = provider
	}

	ma.mu.Lock()
	ma.account = acct
	ma.provider = rebuilt
	ma.mu.Unlock()

	if m.publisher != nil {
		if err := m.publisher.Publish(ctx, events.NewEvent(events.TypeAccountRefresh, acct.Platform, acct.AccountID)); err != nil {
			m.logger.WithFields(logging.Fields{"error": err.Error()}).Warn("Failed to publish refresh event")
		}
	}
}

func (m *Manager) syncAccount(ctx context.Context, ma *managedAccount, allowed map[string]bool) (int, []SyncError) {
	m.ensureFresh(ctx, ma)
	acct, provider := ma.snapshot()
	count := 0
	var errs []SyncError

	for _, op := range operations(provider) {
		if allowed != nil && !allowed[op.name] {
			continue
		}
		start := m.now()
		msgs, err := op.fetch(ctx, acct.UserID, acct.AccountID, acct.OrgID)
		if err != nil {
			errs = append(errs, SyncError{
				Platform:  acct.Platform,
				AccountID: acct.AccountID,
				SyncType:  op.name,
				Message:   err.Error(),
			})
			if m.metrics != nil {
				m.metrics.SyncErrors.WithLabelValues(string(acct.Platform)).Inc()
			}
			continue
		}

		stored := 0
		for i := range msgs {
			ok, err := m.ingest(ctx, &msgs[i])
			if err != nil {
				errs = append(errs, SyncError{
					Platform:  acct.Platform,
					AccountID: acct.AccountID,
					SyncType:  op.name,
					Message:   err.Error(),
				})
				continue
			}
			if ok {
				stored++
			}
		}
		count += stored

		if m.metrics != nil {
			m.metrics.MessagesSynced.WithLabelValues(string(acct.Platform), op.name).Add(float64(stored))
			m.metrics.SyncDuration.WithLabelValues(string(acct.Platform)).Observe(m.now().Sub(start).Seconds())
		}
	}
	return count, errs
}

// ingest lands one message: dedup check, store insert, event publish.
// Returns true when the message was new and stored.
func (m *Manager) ingest(ctx context.Context, msg *platform.Message) (bool, error) {
	fresh, err := m.deduper.Seen(ctx, msg.DedupKey())
	if err != nil {
		return false, fmt.Errorf("dedup: %w", err)
	}
	if !fresh {
		return false, nil
	}

	inserted, err := m.inbox.Insert(ctx, msg)
	if err != nil {
		// release the dedup claim so the next round retries the message
		if ferr := m.deduper.Forget(ctx, msg.DedupKey()); ferr != nil {
			m.logger.WithFields(logging.Fields{
				"dedup_key": msg.DedupKey(),
				"error":     ferr.Error(),
			}).Warn("Failed to release dedup claim")
		}
		return false, fmt.Errorf("store: %w", err)
	}
	if !inserted {
		return false, nil
	}

	if m.publisher != nil {
		if err := m.publisher.Publish(ctx, events.MessageIngested(msg)); err != nil {
			m.logger.WithFields(logging.Fields{
				"dedup_key": msg.DedupKey(),
				"error":     err.Error(),
			}).Warn("Failed to publish ingest event")
		}
	}
	return true, nil
}

// ReplyToMessage sends a reply through the owning account's provider.
func (m *Manager) ReplyToMessage(ctx context.Context, p platform.Type, accountID, nativeMessageID, content string) (*platform.Message, error) {
	ma := m.account(p, accountID)
	if ma == nil {
		return nil, fmt.Errorf("account %s/%s not initialized", p, accountID)
	}
	_, provider := ma.snapshot()
	replier, ok := provider.(platform.Replier)
	if !ok {
		return nil, fmt.Errorf("%s does not support replies", p)
	}
	return replier.ReplyToMessage(ctx, nativeMessageID, content)
}

// Package pipeline runs the STX20 sync loop: it reads the remote snapshot,
// reconciles it against the store and commits the result in one
// transaction, then runs the auxiliary price data and balance syncs.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/stx20sync/internal/backoff"
	"github.com/alanyoungcy/stx20sync/internal/domain"
	"github.com/alanyoungcy/stx20sync/internal/notify"
	"github.com/alanyoungcy/stx20sync/internal/observability"
	"github.com/alanyoungcy/stx20sync/internal/pricing"
	"github.com/alanyoungcy/stx20sync/internal/reconcile"
)

// State is the orchestrator's position in the cycle state machine.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateReconciling
	StateCommitting
	StateFailed
)

var stateNames = [...]string{"IDLE", "FETCHING", "RECONCILING", "COMMITTING", "FAILED"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int32(s))
	}
	return stateNames[s]
}

// SnapshotSource reads the remote state of one cycle.
type SnapshotSource interface {
	Read(ctx context.Context) (domain.Snapshot, error)
}

// BlockSource announces new blocks.
type BlockSource interface {
	Subscribe(ctx context.Context) (<-chan domain.BlockEvent, error)
}

// Alerter delivers operator notifications.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// PostCommitHook runs after every committed cycle. Its errors are logged and
// never fail the cycle.
type PostCommitHook interface {
	Name() string
	AfterCommit(ctx context.Context, snap domain.Snapshot) error
}

// Stream and channel names used on the signal bus.
const (
	CycleStream  = "stx20:sync"
	CycleChannel = "stx20:sync:cycles"
)

// OrchestratorConfig tunes the sync loop.
type OrchestratorConfig struct {
	FetchRetries int
	RetryBackoff time.Duration
	SettleDelay  time.Duration
	// PollInterval triggers cycles without block notifications. Zero
	// disables polling.
	PollInterval time.Duration
	CycleTimeout time.Duration
	LockKey      string
	LockTTL      time.Duration
}

// Status is a point-in-time view of the orchestrator for the REST facade.
type Status struct {
	State               string              `json:"state"`
	LastReport          *domain.CycleReport `json:"last_report,omitempty"`
	LastError           string              `json:"last_error,omitempty"`
	LastErrorAt         *time.Time          `json:"last_error_at,omitempty"`
	ConsecutiveFailures int                 `json:"consecutive_failures"`
	LastBlockHeight     int64               `json:"last_block_height,omitempty"`
}

// Orchestrator executes sync cycles one at a time on a single worker
// goroutine. Triggers arriving while a cycle runs collapse into exactly one
// follow-up cycle.
type Orchestrator struct {
	reader  SnapshotSource
	store   domain.SyncStore
	cfg     OrchestratorConfig
	metrics *observability.Metrics
	logger  *slog.Logger

	blocks   BlockSource
	locks    domain.LockManager
	bus      domain.SignalBus
	archiver domain.SnapshotArchiver
	alerter  Alerter
	hooks    []PostCommitHook

	now func() time.Time

	state     atomic.Int32
	lastBlock atomic.Int64
	trigger   chan struct{}
	cycleMu   sync.Mutex

	mu          sync.RWMutex
	last        *domain.CycleReport
	lastErr     error
	lastErrAt   time.Time
	failures    int
	alertedFail string
}

// OrchestratorOption configures optional collaborators.
type OrchestratorOption func(*Orchestrator)

// WithBlockSource triggers a cycle per announced block.
func WithBlockSource(b BlockSource) OrchestratorOption {
	return func(o *Orchestrator) { o.blocks = b }
}

// WithLocks fences cycles across replicas with a distributed lock.
func WithLocks(l domain.LockManager) OrchestratorOption {
	return func(o *Orchestrator) { o.locks = l }
}

// WithSignalBus publishes every committed CycleReport.
func WithSignalBus(b domain.SignalBus) OrchestratorOption {
	return func(o *Orchestrator) { o.bus = b }
}

// WithArchiver stores a copy of each committed cycle.
func WithArchiver(a domain.SnapshotArchiver) OrchestratorOption {
	return func(o *Orchestrator) { o.archiver = a }
}

// WithAlerter sends failure and recovery notifications.
func WithAlerter(a Alerter) OrchestratorOption {
	return func(o *Orchestrator) { o.alerter = a }
}

// WithHooks registers post-commit hooks, run in order.
func WithHooks(h ...PostCommitHook) OrchestratorOption {
	return func(o *Orchestrator) { o.hooks = append(o.hooks, h...) }
}

// WithClock overrides the wall clock used for window tracking.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(
	reader SnapshotSource,
	store domain.SyncStore,
	cfg OrchestratorConfig,
	metrics *observability.Metrics,
	logger *slog.Logger,
	opts ...OrchestratorOption,
) *Orchestrator {
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.LockKey == "" {
		cfg.LockKey = "sync-cycle"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	o := &Orchestrator{
		reader:  reader,
		store:   store,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "orchestrator")),
		now:     func() time.Time { return time.Now().UTC() },
		trigger: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current cycle state.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

func (o *Orchestrator) setState(s State) { o.state.Store(int32(s)) }

// LastReport returns the report of the last committed cycle.
func (o *Orchestrator) LastReport() (domain.CycleReport, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return domain.CycleReport{}, false
	}
	return *o.last, true
}

// Status returns a snapshot of the orchestrator's state.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	st := Status{
		State:               o.State().String(),
		ConsecutiveFailures: o.failures,
		LastBlockHeight:     o.lastBlock.Load(),
	}
	if o.last != nil {
		r := *o.last
		st.LastReport = &r
	}
	if o.lastErr != nil {
		st.LastError = o.lastErr.Error()
		at := o.lastErrAt
		st.LastErrorAt = &at
	}
	return st
}

// Trigger asks for a cycle. It never blocks; it reports false when a cycle
// is already pending and this request was folded into it.
func (o *Orchestrator) Trigger() bool {
	select {
	case o.trigger <- struct{}{}:
		return true
	default:
		o.metrics.TriggersDropped.Inc()
		return false
	}
}

// Run triggers one cycle immediately, then one per block notification
// (after the settle delay) and per poll tick, until ctx is cancelled. Cycle
// failures are logged and alerted, never returned.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("sync orchestrator starting",
		slog.Duration("settle_delay", o.cfg.SettleDelay),
		slog.Duration("poll_interval", o.cfg.PollInterval),
		slog.Bool("block_trigger", o.blocks != nil),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		o.work(ctx)
		return nil
	})
	o.Trigger()

	if o.blocks != nil {
		g.Go(func() error {
			err := o.watchBlocks(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	if o.cfg.PollInterval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(o.cfg.PollInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					o.Trigger()
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("sync orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("sync orchestrator stopped cleanly")
	return nil
}

func (o *Orchestrator) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.trigger:
			cctx, cancel := ctx, context.CancelFunc(func() {})
			if o.cfg.CycleTimeout > 0 {
				cctx, cancel = context.WithTimeout(ctx, o.cfg.CycleTimeout)
			}
			_, _ = o.RunCycle(cctx)
			cancel()
		}
	}
}

func (o *Orchestrator) watchBlocks(ctx context.Context) error {
	events, err := o.blocks.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: subscribe to blocks: %w", err)
	}

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("pipeline: block source closed: %w", domain.ErrWSDisconnect)
			}
			o.metrics.BlockNotifications.Inc()
			o.lastBlock.Store(ev.Height)
			o.logger.Debug("block received",
				slog.Int64("height", ev.Height),
				slog.String("hash", ev.Hash),
			)
			if settle == nil {
				settle = time.After(o.cfg.SettleDelay)
			}
		case <-settle:
			settle = nil
			o.Trigger()
		}
	}
}

// cyclePlan is everything a cycle writes, computed before the transaction
// opens.
type cyclePlan struct {
	tokens   reconcile.TokenPlan
	listings reconcile.ListingPlan
	pricing  map[string]domain.TokenPricing
}

// RunCycle executes one full cycle and returns its report. Concurrent calls
// are serialized. When the distributed lock is held elsewhere the cycle is
// skipped and domain.ErrLockHeld is returned.
func (o *Orchestrator) RunCycle(ctx context.Context) (domain.CycleReport, error) {
	o.cycleMu.Lock()
	defer o.cycleMu.Unlock()

	report := domain.CycleReport{CycleID: uuid.NewString(), StartedAt: o.now()}
	log := o.logger.With(slog.String("cycle_id", report.CycleID))

	if o.locks != nil {
		unlock, err := o.locks.Acquire(ctx, o.cfg.LockKey, o.cfg.LockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			o.metrics.CyclesTotal.WithLabelValues("skipped").Inc()
			log.InfoContext(ctx, "cycle skipped, lock held by another replica")
			return report, err
		}
		if err != nil {
			return report, o.fail(ctx, log, fmt.Errorf("pipeline: acquire cycle lock: %w", err))
		}
		defer unlock()
	}

	o.setState(StateFetching)
	snap, err := o.fetch(ctx, log)
	if err != nil {
		return report, o.fail(ctx, log, err)
	}
	report.TokensFetched = len(snap.Tokens)
	report.ListingsFetched = len(snap.Listings)
	report.Rejected = snap.RejectedTokens + snap.RejectedListings
	report.Prices = snap.Prices
	o.metrics.RecordsRejected.WithLabelValues("token").Add(float64(snap.RejectedTokens))
	o.metrics.RecordsRejected.WithLabelValues("listing").Add(float64(snap.RejectedListings))

	o.setState(StateReconciling)
	plan, err := o.plan(ctx, snap)
	if err != nil {
		return report, o.fail(ctx, log, err)
	}

	o.setState(StateCommitting)
	if err := o.commit(ctx, plan, &report); err != nil {
		return report, o.fail(ctx, log, err)
	}
	report.Duration = o.now().Sub(report.StartedAt)

	o.succeed(ctx, log, report)
	o.afterCommit(ctx, log, report, snap, plan)
	return report, nil
}

// fetch reads the snapshot, retrying remote failures with doubling backoff.
func (o *Orchestrator) fetch(ctx context.Context, log *slog.Logger) (domain.Snapshot, error) {
	retryDelay := o.cfg.RetryBackoff
	for attempt := 0; ; attempt++ {
		snap, err := o.reader.Read(ctx)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, domain.ErrRemoteFetch) || attempt >= o.cfg.FetchRetries || ctx.Err() != nil {
			return domain.Snapshot{}, err
		}
		o.metrics.FetchRetries.Inc()
		log.WarnContext(ctx, "snapshot fetch failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", retryDelay),
			slog.String("error", err.Error()),
		)
		if !backoff.Sleep(ctx, backoff.Jitter(retryDelay)) {
			return domain.Snapshot{}, fmt.Errorf("pipeline: fetch: %w", ctx.Err())
		}
		retryDelay *= 2
	}
}

// plan diffs the snapshot against the store and derives token pricing.
func (o *Orchestrator) plan(ctx context.Context, snap domain.Snapshot) (cyclePlan, error) {
	localTokens, err := o.store.ListTokens(ctx)
	if err != nil {
		return cyclePlan{}, fmt.Errorf("pipeline: load tokens: %w", err)
	}
	localListings, err := o.store.ListListings(ctx)
	if err != nil {
		return cyclePlan{}, fmt.Errorf("pipeline: load listings: %w", err)
	}

	remoteTokens := make(map[string]domain.Token, len(snap.Tokens))
	for _, t := range snap.Tokens {
		remoteTokens[t.Ticker] = t
	}
	storedTokens := make(map[string]domain.Token, len(localTokens))
	for _, t := range localTokens {
		storedTokens[t.Ticker] = t
	}

	var orphans []string
	seen := make(map[string]bool)
	for _, l := range snap.Listings {
		_, remote := remoteTokens[l.Ticker]
		_, stored := storedTokens[l.Ticker]
		if !remote && !stored && !seen[l.Ticker] {
			seen[l.Ticker] = true
			orphans = append(orphans, l.Ticker)
		}
	}
	if len(orphans) > 0 {
		sort.Strings(orphans)
		return cyclePlan{}, fmt.Errorf("pipeline: %w: listings reference unknown tokens %v", domain.ErrInconsistent, orphans)
	}

	conv := pricing.NewConverter(snap.Prices)
	p := cyclePlan{
		tokens:   reconcile.Tokens(snap.Tokens, localTokens),
		listings: reconcile.Listings(snap.Listings, localListings),
		pricing:  make(map[string]domain.TokenPricing),
	}
	for i := range p.listings.Create {
		p.listings.Create[i] = conv.PriceListing(p.listings.Create[i])
	}
	for i := range p.listings.Update {
		p.listings.Update[i] = conv.PriceListing(p.listings.Update[i])
	}

	now := o.now()
	for ticker, listings := range pricing.GroupByTicker(snap.Listings) {
		tok, ok := remoteTokens[ticker]
		if !ok {
			tok = storedTokens[ticker]
		}
		floor, ok := pricing.DeriveFloor(listings, tok.TotalSupply, conv)
		if !ok {
			continue
		}
		// History lives only in the store; remote tokens carry none.
		history := storedTokens[ticker].History
		p.pricing[ticker] = domain.TokenPricing{
			Floor:          floor,
			ActiveListings: len(listings),
			History:        pricing.Track(history, floor.Usd, now),
		}
	}
	return p, nil
}

// commit applies the plan in one transaction.
func (o *Orchestrator) commit(ctx context.Context, p cyclePlan, report *domain.CycleReport) error {
	var stats domain.CycleReport
	err := o.store.WithTx(ctx, func(tx domain.SyncTx) error {
		n, err := tx.CreateTokens(ctx, p.tokens.Create)
		if err != nil {
			return fmt.Errorf("pipeline: create tokens: %w: %w", domain.ErrCommit, err)
		}
		stats.TokensCreated = int(n)

		for _, t := range p.tokens.Update {
			if err := tx.UpdateTokenSupply(ctx, t); err != nil {
				return fmt.Errorf("pipeline: update token %s: %w: %w", t.Ticker, domain.ErrCommit, err)
			}
		}
		stats.TokensUpdated = len(p.tokens.Update)

		if len(p.listings.Delete) > 0 {
			n, err := tx.DeleteListings(ctx, p.listings.Delete)
			if err != nil {
				return fmt.Errorf("pipeline: delete listings: %w: %w", domain.ErrCommit, err)
			}
			if int(n) != len(p.listings.Delete) {
				return fmt.Errorf("pipeline: %w: deleted %d of %d listings", domain.ErrInconsistent, n, len(p.listings.Delete))
			}
			stats.ListingsDeleted = int(n)
		}

		n, err = tx.CreateListings(ctx, p.listings.Create)
		if err != nil {
			return fmt.Errorf("pipeline: create listings: %w: %w", domain.ErrCommit, err)
		}
		stats.ListingsCreated = int(n)

		for _, l := range p.listings.Update {
			if err := tx.UpdateListing(ctx, l); err != nil {
				return fmt.Errorf("pipeline: update listing %s: %w: %w", l.ID, domain.ErrCommit, err)
			}
		}
		stats.ListingsUpdated = len(p.listings.Update)

		tickers := make([]string, 0, len(p.pricing))
		for t := range p.pricing {
			tickers = append(tickers, t)
		}
		sort.Strings(tickers)
		for _, t := range tickers {
			if err := tx.UpdateTokenPricing(ctx, t, p.pricing[t]); err != nil {
				return fmt.Errorf("pipeline: price token %s: %w: %w", t, domain.ErrCommit, err)
			}
		}
		stats.TokensPriced = len(tickers)
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrCommit) || errors.Is(err, domain.ErrInconsistent) {
			return err
		}
		return fmt.Errorf("pipeline: commit: %w: %w", domain.ErrCommit, err)
	}

	report.TokensCreated = stats.TokensCreated
	report.TokensUpdated = stats.TokensUpdated
	report.ListingsCreated = stats.ListingsCreated
	report.ListingsUpdated = stats.ListingsUpdated
	report.ListingsDeleted = stats.ListingsDeleted
	report.TokensPriced = stats.TokensPriced
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, log *slog.Logger, err error) error {
	o.setState(StateFailed)
	o.metrics.CyclesTotal.WithLabelValues("failed").Inc()
	log.ErrorContext(ctx, "sync cycle failed", slog.String("error", err.Error()))

	o.mu.Lock()
	o.lastErr = err
	o.lastErrAt = o.now()
	o.failures++
	failures := o.failures
	alert := o.alertedFail != err.Error()
	if alert {
		o.alertedFail = err.Error()
	}
	o.mu.Unlock()

	if o.alerter == nil {
		return err
	}
	actx := context.WithoutCancel(ctx)
	msg := fmt.Sprintf("%v (consecutive failures: %d)", err, failures)
	switch {
	case errors.Is(err, domain.ErrInconsistent):
		_ = o.alerter.Notify(actx, notify.EventInconsistency, notify.TitleInconsistency, msg)
	case alert:
		_ = o.alerter.Notify(actx, notify.EventSyncFailed, notify.TitleSyncFailed, msg)
	}
	return err
}

func (o *Orchestrator) succeed(ctx context.Context, log *slog.Logger, report domain.CycleReport) {
	o.setState(StateIdle)
	o.metrics.CyclesTotal.WithLabelValues("success").Inc()
	o.metrics.CycleDuration.Observe(report.Duration.Seconds())
	o.metrics.LastSuccess.Set(float64(report.StartedAt.Add(report.Duration).Unix()))
	o.metrics.Changes.WithLabelValues("token", "create").Add(float64(report.TokensCreated))
	o.metrics.Changes.WithLabelValues("token", "update").Add(float64(report.TokensUpdated))
	o.metrics.Changes.WithLabelValues("listing", "create").Add(float64(report.ListingsCreated))
	o.metrics.Changes.WithLabelValues("listing", "update").Add(float64(report.ListingsUpdated))
	o.metrics.Changes.WithLabelValues("listing", "delete").Add(float64(report.ListingsDeleted))

	o.mu.Lock()
	recovered := o.failures
	o.last = &report
	o.lastErr = nil
	o.failures = 0
	o.alertedFail = ""
	o.mu.Unlock()

	log.InfoContext(ctx, "sync cycle committed",
		slog.Duration("duration", report.Duration),
		slog.Int("tokens_created", report.TokensCreated),
		slog.Int("tokens_updated", report.TokensUpdated),
		slog.Int("listings_created", report.ListingsCreated),
		slog.Int("listings_updated", report.ListingsUpdated),
		slog.Int("listings_deleted", report.ListingsDeleted),
		slog.Int("tokens_priced", report.TokensPriced),
		slog.Int("rejected", report.Rejected),
	)

	if recovered > 0 && o.alerter != nil {
		_ = o.alerter.Notify(context.WithoutCancel(ctx), notify.EventSyncRecovered,
			notify.TitleSyncRecovered, fmt.Sprintf("cycle %s committed after %d failed cycle(s)", report.CycleID, recovered))
	}
}

// afterCommit publishes the report and runs best-effort follow-ups. None of
// these can fail the committed cycle.
func (o *Orchestrator) afterCommit(ctx context.Context, log *slog.Logger, report domain.CycleReport, snap domain.Snapshot, p cyclePlan) {
	if o.bus != nil {
		payload, err := json.Marshal(report)
		if err == nil {
			if err := o.bus.StreamAppend(ctx, CycleStream, payload); err != nil {
				log.WarnContext(ctx, "cycle report stream append failed", slog.String("error", err.Error()))
			}
			if err := o.bus.Publish(ctx, CycleChannel, payload); err != nil {
				log.WarnContext(ctx, "cycle report publish failed", slog.String("error", err.Error()))
			}
		}
	}

	if o.archiver != nil {
		tokens := make([]domain.Token, 0, len(p.pricing))
		for ticker, tp := range p.pricing {
			floor := tp.Floor
			tokens = append(tokens, domain.Token{
				Ticker:         ticker,
				Floor:          &floor,
				ActiveListings: tp.ActiveListings,
				History:        tp.History,
				UpdatedAt:      report.StartedAt,
			})
		}
		sort.Slice(tokens, func(i, j int) bool { return tokens[i].Ticker < tokens[j].Ticker })
		if err := o.archiver.ArchiveCycle(ctx, report, tokens); err != nil {
			log.WarnContext(ctx, "cycle archive failed", slog.String("error", err.Error()))
		}
	}

	for _, h := range o.hooks {
		if err := h.AfterCommit(ctx, snap); err != nil {
			log.WarnContext(ctx, "post-commit hook failed",
				slog.String("hook", h.Name()),
				slog.String("error", err.Error()),
			)
		}
	}
}

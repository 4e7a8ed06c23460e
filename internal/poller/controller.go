package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jpalmerr/itemcollector/internal/drops"
	"github.com/jpalmerr/itemcollector/internal/metrics"
	"github.com/jpalmerr/itemcollector/internal/session"
)

// ControllerConfig holds the dependencies of a [Controller].
type ControllerConfig struct {
	// Session is the connection the controller idles on.
	Session session.Session

	// Capabilities gates Start.
	Capabilities session.Capabilities

	// Apps are the applications checked each cycle, in priority order.
	Apps []App

	// Interval is the time between cycles. Must be positive.
	Interval time.Duration

	// PacingDelay is the pause between checks. Zero disables pacing.
	PacingDelay time.Duration

	Checker   drops.Checker
	Announcer Announcer
	Clock     clockwork.Clock
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	OnDrop    func(Detection)
}

// CycleSummary is the externally visible digest of a [Report].
type CycleSummary struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Checks     int       `json:"checks"`
	Drops      int       `json:"drops"`
	Outcome    string    `json:"outcome"`
}

// Status is a point-in-time snapshot of a [Controller].
type Status struct {
	Name         string        `json:"name"`
	Active       bool          `json:"active"`
	CycleRunning bool          `json:"cycle_running"`
	LastCycle    *CycleSummary `json:"last_cycle,omitempty"`
}

// Controller is the Idle/Active state machine for one session.
//
// While Active, a ticker fires every interval and each tick runs one poll
// cycle on its own goroutine. A tick that finds the previous cycle still
// running is skipped.
//
// Start, Stop and Close are serialised by an internal mutex and are safe
// for concurrent use. IsActive and Status never block behind them.
type Controller struct {
	name      string
	session   session.Session
	caps      session.Capabilities
	interval  time.Duration
	runner    *Runner
	announcer Announcer
	clock     clockwork.Clock
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu     sync.Mutex
	ticker clockwork.Ticker
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool

	active  atomic.Bool
	running atomic.Bool

	lastMu    sync.Mutex
	lastCycle *CycleSummary
}

// NewController creates a [Controller] in the Idle state.
//
// Returns an error if the interval is not positive or a required
// dependency is missing.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Session == nil {
		return nil, errors.New("session is required")
	}
	if cfg.Capabilities == nil {
		return nil, errors.New("capabilities are required")
	}
	if cfg.Checker == nil {
		return nil, errors.New("drop checker is required")
	}
	if cfg.Announcer == nil {
		return nil, errors.New("announcer is required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("drop check interval must be positive")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	name := cfg.Session.Name()
	logger := cfg.Logger.With("session", name)

	runner := NewRunner(RunnerConfig{
		Session:     name,
		Apps:        cfg.Apps,
		Checker:     cfg.Checker,
		Announcer:   cfg.Announcer,
		Clock:       cfg.Clock,
		PacingDelay: cfg.PacingDelay,
		Metrics:     cfg.Metrics,
		Logger:      logger,
		OnDrop:      cfg.OnDrop,
	})

	return &Controller{
		name:      name,
		session:   cfg.Session,
		caps:      cfg.Capabilities,
		interval:  cfg.Interval,
		runner:    runner,
		announcer: cfg.Announcer,
		clock:     cfg.Clock,
		metrics:   cfg.Metrics,
		logger:    logger,
	}, nil
}

// Name returns the name of the session the controller idles on.
func (c *Controller) Name() string {
	return c.name
}

// IsActive reports whether the ticker is running.
func (c *Controller) IsActive() bool {
	return c.active.Load()
}

// Start transitions the controller to Active.
//
// Start fails with [ErrAlreadyActive] if already Active, with a
// [*PreconditionError] if the session cannot idle or is farming, and with
// [ErrClosed] after [Controller.Close]. On success the applications are
// declared active immediately; a failed declaration is logged and does not
// fail Start.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.active.Load() {
		return ErrAlreadyActive
	}
	if !c.caps.CanIdle() {
		return &PreconditionError{Reason: "playing is not possible"}
	}
	if c.caps.NowFarming() {
		return &PreconditionError{Reason: "another farming activity is running"}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.ticker = c.clock.NewTicker(c.interval)
	c.cancel = cancel
	c.active.Store(true)
	c.metrics.SessionStarted()

	c.wg.Add(1)
	go c.loop(runCtx, c.ticker)

	if err := c.announcer.DeclareActive(ctx, c.runner.AppIDs()); err != nil {
		c.logger.Warn("failed to update playing status", "error", err)
	}

	c.logger.Info("dropped item collection started", "interval", c.interval.String())
	return nil
}

// Stop transitions the controller to Idle.
//
// Stop fails with [ErrNotActive] if already Idle. Otherwise it stops the
// ticker, cancels a running cycle and waits for it to return, then clears
// the declared applications if the session is still connected.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active.Load() {
		return ErrNotActive
	}

	c.halt()

	if c.session.IsConnected() {
		if err := c.announcer.ClearActive(ctx); err != nil {
			c.logger.Warn("failed to clear playing status", "error", err)
		}
	}

	c.logger.Info("dropped item collection stopped")
	return nil
}

// Close releases the ticker and makes the controller unusable.
//
// No presence traffic is sent. Close is safe to call multiple times.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	if c.active.Load() {
		c.halt()
	}
}

// Status returns a snapshot of the controller state.
func (c *Controller) Status() Status {
	c.lastMu.Lock()
	var last *CycleSummary
	if c.lastCycle != nil {
		cp := *c.lastCycle
		last = &cp
	}
	c.lastMu.Unlock()

	return Status{
		Name:         c.name,
		Active:       c.active.Load(),
		CycleRunning: c.running.Load(),
		LastCycle:    last,
	}
}

// halt stops the ticker and waits for the loop and any cycle to exit.
// Caller must hold c.mu.
func (c *Controller) halt() {
	c.ticker.Stop()
	c.cancel()
	c.wg.Wait()

	c.ticker = nil
	c.cancel = nil
	c.active.Store(false)
	c.metrics.SessionStopped()
}

// loop dispatches ticks until ctx is cancelled.
func (c *Controller) loop(ctx context.Context, ticker clockwork.Ticker) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			c.tick(ctx)
		}
	}
}

// tick starts a cycle unless one is still running.
func (c *Controller) tick(ctx context.Context) {
	if !c.running.CompareAndSwap(false, true) {
		c.logger.Debug("previous item drop check still running, skipping tick")
		c.metrics.TickSkipped()
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.running.Store(false)

		report := c.runner.Run(ctx)
		c.recordCycle(report)
	}()
}

func (c *Controller) recordCycle(report Report) {
	summary := &CycleSummary{
		ID:         report.ID,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Checks:     len(report.Checks),
		Drops:      len(report.Drops),
		Outcome:    report.Outcome(),
	}

	c.lastMu.Lock()
	c.lastCycle = summary
	c.lastMu.Unlock()
}

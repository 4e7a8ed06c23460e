package poller

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/jpalmerr/itemcollector/internal/drops"
	"github.com/jpalmerr/itemcollector/internal/metrics"
)

// DefaultPacingDelay is the pause between two checks when the first found
// nothing.
const DefaultPacingDelay = 5 * time.Second

// Cycle outcomes reported by [Report.Outcome].
const (
	OutcomeCompleted = "completed"
	OutcomeCancelled = "cancelled"
	OutcomePanicked  = "panicked"
)

// App is the poller-internal representation of a configured application.
//
// Items are checked in order; the first drop ends the scan of this app for
// the current cycle.
type App struct {
	AppID uint32
	Name  string
	Items []uint32
}

// Announcer declares and clears the applications a session is playing.
type Announcer interface {
	DeclareActive(ctx context.Context, appIDs []uint32) error
	ClearActive(ctx context.Context) error
}

// Detection is emitted for every drop a cycle finds.
type Detection struct {
	Session    string
	CycleID    string
	AppID      uint32
	AppName    string
	Drop       drops.Drop
	DetectedAt time.Time
}

// Check records a single drop check made during a cycle.
type Check struct {
	AppID   uint32 `json:"app_id"`
	ItemID  uint32 `json:"item_id"`
	Dropped bool   `json:"dropped"`
}

// Report describes one poll cycle.
type Report struct {
	ID         string
	Session    string
	StartedAt  time.Time
	FinishedAt time.Time
	Checks     []Check
	Drops      []drops.Drop

	// Skipped maps an application to the items left unchecked after a drop.
	Skipped map[uint32][]uint32

	PacingDelays int
	Cancelled    bool

	// Panic holds a user-facing description if the cycle panicked.
	Panic string
}

// Outcome classifies the report as completed, cancelled or panicked.
func (r Report) Outcome() string {
	switch {
	case r.Panic != "":
		return OutcomePanicked
	case r.Cancelled:
		return OutcomeCancelled
	default:
		return OutcomeCompleted
	}
}

// Duration returns how long the cycle ran.
func (r Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Runner executes poll cycles for one session.
//
// A Runner holds no mutable state and may be reused across cycles, but the
// [Controller] guarantees it never runs twice concurrently.
type Runner struct {
	session   string
	apps      []App
	appIDs    []uint32
	checker   drops.Checker
	announcer Announcer
	clock     clockwork.Clock
	pacing    time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
	onDrop    func(Detection)
}

// RunnerConfig holds the dependencies of a [Runner].
type RunnerConfig struct {
	Session     string
	Apps        []App
	Checker     drops.Checker
	Announcer   Announcer
	Clock       clockwork.Clock
	PacingDelay time.Duration
	Metrics     *metrics.Metrics
	Logger      *slog.Logger

	// OnDrop is invoked synchronously for every detected drop. May be nil.
	OnDrop func(Detection)
}

// NewRunner creates a [Runner]. Apps are copied so later changes to the
// caller's slices do not affect the runner.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	apps := copyApps(cfg.Apps)
	appIDs := make([]uint32, len(apps))
	for i, app := range apps {
		appIDs[i] = app.AppID
	}

	return &Runner{
		session:   cfg.Session,
		apps:      apps,
		appIDs:    appIDs,
		checker:   cfg.Checker,
		announcer: cfg.Announcer,
		clock:     cfg.Clock,
		pacing:    cfg.PacingDelay,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		onDrop:    cfg.OnDrop,
	}
}

// AppIDs returns the configured application ids in check order.
func (r *Runner) AppIDs() []uint32 {
	return append([]uint32(nil), r.appIDs...)
}

// Run performs one poll cycle.
//
// Run never panics: a panic in a collaborator is recovered, logged with a
// correlation id and recorded in the report. Cancelling ctx ends the cycle
// at the next pacing delay or check.
func (r *Runner) Run(ctx context.Context) (report Report) {
	report = Report{
		ID:        uuid.NewString(),
		Session:   r.session,
		StartedAt: r.clock.Now(),
		Skipped:   make(map[uint32][]uint32),
	}
	logger := r.logger.With("cycle_id", report.ID)
	logger.Debug("item drop check started")

	defer func() {
		if rec := recover(); rec != nil {
			correlationID := uuid.NewString()
			logger.Error("item drop check panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", rec),
				"stack", string(debug.Stack()),
			)
			report.Panic = fmt.Sprintf("drop check panic (correlation_id: %s)", correlationID)
		}

		report.FinishedAt = r.clock.Now()
		r.metrics.CycleCompleted(report.Outcome(), report.Duration())
		logger.Debug("item drop check complete",
			"outcome", report.Outcome(),
			"checks", len(report.Checks),
			"drops", len(report.Drops),
		)
	}()

	if err := r.announcer.DeclareActive(ctx, r.appIDs); err != nil {
		logger.Warn("failed to update playing status", "error", err)
	}

	// pace is set after a check that found nothing; the next check waits first
	pace := false
	for _, app := range r.apps {
		for i, itemID := range app.Items {
			if pace {
				logger.Debug("waiting before next request", "delay", r.pacing.String())
				if !r.wait(ctx) {
					report.Cancelled = true
					return report
				}
				report.PacingDelays++
			}
			if ctx.Err() != nil {
				report.Cancelled = true
				return report
			}

			drop := r.checker.CheckDrop(ctx, app.AppID, itemID)
			report.Checks = append(report.Checks, Check{AppID: app.AppID, ItemID: itemID, Dropped: drop != nil})

			if drop == nil {
				logger.Debug("received empty drop", "app_id", app.AppID, "item_def_id", itemID)
				pace = true
				continue
			}

			logger.Info("received item",
				"app_id", app.AppID,
				"app_name", app.Name,
				"item_def_id", drop.ItemDefID,
				"item_id", drop.ItemID,
			)
			report.Drops = append(report.Drops, *drop)
			r.metrics.DropDetected(strconv.FormatUint(uint64(app.AppID), 10))
			r.emit(report.ID, app, *drop)

			if rest := app.Items[i+1:]; len(rest) > 0 {
				report.Skipped[app.AppID] = append([]uint32(nil), rest...)
				logger.Debug("skipped item definitions", "app_id", app.AppID, "item_def_ids", rest)
			}
			pace = false
			break
		}
	}

	return report
}

// wait blocks for the pacing delay. It returns false if ctx ended first.
func (r *Runner) wait(ctx context.Context) bool {
	if r.pacing <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-r.clock.After(r.pacing):
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *Runner) emit(cycleID string, app App, drop drops.Drop) {
	if r.onDrop == nil {
		return
	}
	r.onDrop(Detection{
		Session:    r.session,
		CycleID:    cycleID,
		AppID:      app.AppID,
		AppName:    app.Name,
		Drop:       drop,
		DetectedAt: r.clock.Now(),
	})
}

// copyApps returns a deep copy of apps.
func copyApps(apps []App) []App {
	cp := make([]App, len(apps))
	for i, app := range apps {
		cp[i] = App{
			AppID: app.AppID,
			Name:  app.Name,
			Items: append([]uint32(nil), app.Items...),
		}
	}
	return cp
}

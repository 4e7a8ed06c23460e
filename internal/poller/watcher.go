package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/jpalmerr/itemcollector/internal/session"
)

// Idler is the part of a [Controller] the [Watcher] drives.
type Idler interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsActive() bool
}

// Watcher starts and stops an [Idler] in reaction to session events.
//
// Handlers only read state and spawn a task; they never block the caller.
// Task failures are logged. After [Watcher.Close] handlers do nothing.
type Watcher struct {
	ctx     context.Context
	idler   Idler
	caps    session.Capabilities
	enabled bool
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewWatcher creates a [Watcher]. Tasks run with ctx; enabled mirrors the
// configured auto-start switch.
func NewWatcher(ctx context.Context, idler Idler, caps session.Capabilities, enabled bool, logger *slog.Logger) *Watcher {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		ctx:     ctx,
		idler:   idler,
		caps:    caps,
		enabled: enabled,
		logger:  logger,
	}
}

// Attach subscribes the watcher to playing state notifications and returns
// the function that unsubscribes it.
func (w *Watcher) Attach(n session.Notifier) func() {
	return n.SubscribePlayingState(w.OnPlayingSessionState)
}

// OnPlayingSessionState applies the auto start/stop rule. The notification
// only signals that something changed; the rule reads the capabilities.
func (w *Watcher) OnPlayingSessionState(_ session.PlayingState) {
	switch {
	case w.enabled && !w.idler.IsActive() && w.caps.IsPaused() && w.caps.CanIdle():
		w.spawn("start", w.idler.Start)
	case w.idler.IsActive() && !w.caps.CanIdle():
		w.spawn("stop", w.idler.Stop)
	}
}

// OnFarmingStarted stops idling so it does not compete with farming.
func (w *Watcher) OnFarmingStarted() {
	if w.idler.IsActive() {
		w.spawn("stop", w.idler.Stop)
	}
}

// OnFarmingStopped resumes idling when enabled and possible.
func (w *Watcher) OnFarmingStopped() {
	if w.enabled && w.caps.CanIdle() {
		w.spawn("start", w.idler.Start)
	}
}

// OnDisconnected stops idling when the session drops.
func (w *Watcher) OnDisconnected() {
	if w.idler.IsActive() {
		w.spawn("stop", w.idler.Stop)
	}
}

// Wait blocks until every spawned task has returned.
func (w *Watcher) Wait() {
	w.wg.Wait()
}

// Close stops spawning new tasks and waits for the running ones.
// Safe to call multiple times.
func (w *Watcher) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	w.wg.Wait()
}

func (w *Watcher) spawn(action string, task func(context.Context) error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.logger.Debug("watcher closed, ignoring transition", "action", action)
		return
	}
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()

		err := task(w.ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrAlreadyActive), errors.Is(err, ErrNotActive):
			// lost a race with another transition
			w.logger.Debug("idling transition already applied", "action", action, "error", err)
		default:
			w.logger.Warn("automatic idling transition failed", "action", action, "error", err)
		}
	}()
}

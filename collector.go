package itemcollector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jpalmerr/itemcollector/internal/drops"
	"github.com/jpalmerr/itemcollector/internal/metrics"
	"github.com/jpalmerr/itemcollector/internal/poller"
	"github.com/jpalmerr/itemcollector/internal/presence"
	"github.com/jpalmerr/itemcollector/internal/server"
	"github.com/jpalmerr/itemcollector/internal/store"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultDropCheckInterval = 10 * time.Minute
	defaultPort              = 8080

	// dropEventBuffer bounds the drop events waiting for callbacks.
	dropEventBuffer = 100
)

var (
	// ErrClosed is returned by [Collector.Register] after [Collector.Close].
	ErrClosed = errors.New("collector closed")

	// ErrUnknownSession is returned when a name matches no registered session.
	ErrUnknownSession = errors.New("unknown session")
)

// Collector keeps one idle session controller per registered session and
// serves the HTTP API.
//
// A Collector is created with [New] and functional options. Sessions are
// added with [Collector.Register] as the host brings them up; each gets its
// own controller, drop checker, presence announcer and state watcher. The
// typical lifecycle is:
//
//	c, err := itemcollector.New(itemcollector.WithApps(app), itemcollector.WithEnabled(true))
//	if err != nil {
//	    slog.Error("failed to create collector", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	_ = c.Register(sess, nil, nil)
//	c.Start(ctx) // blocks until context cancelled
//
// All methods are safe for concurrent use.
type Collector struct {
	apps              []poller.App
	enabled           bool
	dropCheckInterval time.Duration
	pacingDelay       time.Duration
	announceDelay     time.Duration
	port              int
	logger            *slog.Logger
	clock             clockwork.Clock
	registry          *prometheus.Registry
	metrics           *metrics.Metrics
	store             *store.MemoryStore
	dropCallbacks     []func(DropEvent)

	// events feeds the callback dispatcher; nil without callbacks
	events         chan DropEvent
	eventsMu       sync.RWMutex
	eventsShutdown bool

	mu       sync.RWMutex
	sessions map[string]*registration
	closed   bool
}

// registration is everything owned on behalf of one session.
type registration struct {
	controller  *poller.Controller
	watcher     *poller.Watcher
	cancel      context.CancelFunc
	unsubscribe func()
}

// New creates a [Collector] with the given options.
//
// Defaults:
//   - Drop check interval: 10 minutes
//   - Pacing delay: 5 seconds
//   - Announce delay: 1 second
//   - Port: 8080
//   - Automatic start: disabled
//
// An empty app list is valid; cycles then only declare an empty activity.
// Returns an error if any option is invalid or an app id is configured twice.
func New(opts ...Option) (*Collector, error) {
	cfg := &collectorConfig{
		dropCheckInterval: defaultDropCheckInterval,
		pacingDelay:       poller.DefaultPacingDelay,
		announceDelay:     presence.DefaultSendDelay,
		port:              defaultPort,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	seen := make(map[uint32]bool, len(cfg.apps))
	for _, app := range cfg.apps {
		if app.appID == 0 {
			return nil, errors.New("apps must be created with NewApp")
		}
		if seen[app.appID] {
			return nil, fmt.Errorf("duplicate app id: %d", app.appID)
		}
		seen[app.appID] = true
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	registry := cfg.registry
	if registry == nil {
		registry = metrics.NewRegistry()
	}

	c := &Collector{
		apps:              toPollerApps(cfg.apps),
		enabled:           cfg.enabled,
		dropCheckInterval: cfg.dropCheckInterval,
		pacingDelay:       cfg.pacingDelay,
		announceDelay:     cfg.announceDelay,
		port:              cfg.port,
		logger:            logger,
		clock:             clock,
		registry:          registry,
		metrics:           metrics.New(registry),
		store:             store.NewMemoryStore(),
		dropCallbacks:     cfg.dropCallbacks,
		sessions:          make(map[string]*registration),
	}

	if len(c.dropCallbacks) > 0 {
		c.events = make(chan DropEvent, dropEventBuffer)
		go c.dispatch()
	}

	return c, nil
}

// Register starts managing a session.
//
// caps and notifier may be nil when sess itself implements [Capabilities]
// or [Notifier]. Without a notifier the session is only driven by commands
// and the host hooks ([Collector.OnFarmingStarted] and friends).
//
// Returns an error if the session name is already registered, capabilities
// cannot be resolved, or the collector is closed.
func (c *Collector) Register(sess Session, caps Capabilities, notifier Notifier) error {
	if sess == nil {
		return errors.New("session cannot be nil")
	}
	if caps == nil {
		var ok bool
		if caps, ok = sess.(Capabilities); !ok {
			return fmt.Errorf("session %q: capabilities are required", sess.Name())
		}
	}
	if notifier == nil {
		notifier, _ = sess.(Notifier)
	}

	name := sess.Name()
	logger := c.logger.With("session", name)

	controller, err := poller.NewController(poller.ControllerConfig{
		Session:      sess,
		Capabilities: caps,
		Apps:         c.apps,
		Interval:     c.dropCheckInterval,
		PacingDelay:  c.pacingDelay,
		Checker:      drops.NewInventoryChecker(sess, c.metrics, logger),
		Announcer:    presence.NewAnnouncer(sess, c.clock, c.announceDelay, logger),
		Clock:        c.clock,
		Metrics:      c.metrics,
		Logger:       c.logger,
		OnDrop:       c.handleDetection,
	})
	if err != nil {
		return fmt.Errorf("session %q: %w", name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		controller.Close()
		return ErrClosed
	}
	if _, exists := c.sessions[name]; exists {
		controller.Close()
		return fmt.Errorf("session %q is already registered", name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	reg := &registration{
		controller: controller,
		watcher:    poller.NewWatcher(ctx, controller, caps, c.enabled, logger),
		cancel:     cancel,
	}
	if notifier != nil {
		reg.unsubscribe = reg.watcher.Attach(notifier)
	}
	c.sessions[name] = reg

	logger.Info("session registered", "auto_start", c.enabled)
	return nil
}

// Unregister stops managing a session and releases its controller.
//
// No presence traffic is sent; the host is assumed to be tearing the
// session down. Returns [ErrUnknownSession] for an unknown name.
func (c *Collector) Unregister(name string) error {
	c.mu.Lock()
	reg, ok := c.sessions[name]
	delete(c.sessions, name)
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSession, name)
	}

	reg.release()
	c.logger.Info("session unregistered", "session", name)
	return nil
}

func (r *registration) release() {
	if r.unsubscribe != nil {
		r.unsubscribe()
	}
	r.cancel()
	r.watcher.Close()
	r.controller.Close()
}

// OnFarmingStarted stops idling of the named session so it does not
// compete with the host's own farming. Unknown names are ignored.
func (c *Collector) OnFarmingStarted(name string) {
	if reg, ok := c.lookup(name); ok {
		reg.watcher.OnFarmingStarted()
	}
}

// OnFarmingStopped resumes idling of the named session when automatic
// start is enabled and the session can idle.
func (c *Collector) OnFarmingStopped(name string) {
	if reg, ok := c.lookup(name); ok {
		reg.watcher.OnFarmingStopped()
	}
}

// OnDisconnected stops idling of the named session.
func (c *Collector) OnDisconnected(name string) {
	if reg, ok := c.lookup(name); ok {
		reg.watcher.OnDisconnected()
	}
}

// Sessions returns a snapshot of every registered session, ordered by name.
func (c *Collector) Sessions() []SessionStatus {
	statuses := c.statuses()
	result := make([]SessionStatus, len(statuses))
	for i, s := range statuses {
		result[i] = statusToPublic(s)
	}
	return result
}

// Apps returns a copy of the configured apps.
func (c *Collector) Apps() []App {
	apps := make([]App, len(c.apps))
	for i, a := range c.apps {
		apps[i] = App{appID: a.AppID, name: a.Name, items: append([]uint32(nil), a.Items...)}
	}
	return apps
}

// DropCheckInterval returns the configured time between poll cycles.
func (c *Collector) DropCheckInterval() time.Duration {
	return c.dropCheckInterval
}

// Port returns the configured HTTP port.
func (c *Collector) Port() int {
	return c.port
}

// Start serves the HTTP API until ctx is cancelled, then closes the
// collector.
//
// Start is a blocking call. Sessions may be registered before or while it
// runs. Returns nil on graceful shutdown and an error if the HTTP server
// fails to start.
func (c *Collector) Start(ctx context.Context) error {
	c.logger.Info("item collector starting",
		"app_count", len(c.apps),
		"auto_start", c.enabled,
		"interval", c.dropCheckInterval.String(),
	)

	// check if context already cancelled
	if ctx.Err() != nil {
		c.Close()
		return nil
	}

	httpServer := server.NewServer(c.store, apiBackend{c}, metrics.Handler(c.registry), c.port, c.logger)
	if err := httpServer.Start(ctx); err != nil {
		c.Close()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	c.logger.Info("api available", "url", fmt.Sprintf("http://localhost:%d", c.port))

	<-ctx.Done()
	c.Close()
	c.logger.Info("item collector stopped")
	return nil
}

// Close releases every controller without presence traffic. Further
// registrations fail with [ErrClosed]. Safe to call multiple times.
func (c *Collector) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	regs := c.sessions
	c.sessions = make(map[string]*registration)
	c.mu.Unlock()

	for _, reg := range regs {
		reg.release()
	}

	// pending events are still delivered; Close does not wait for them
	c.eventsMu.Lock()
	if c.events != nil && !c.eventsShutdown {
		c.eventsShutdown = true
		close(c.events)
	}
	c.eventsMu.Unlock()
}

func (c *Collector) lookup(name string) (*registration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	reg, ok := c.sessions[name]
	return reg, ok
}

// names returns the registered session names in sorted order.
func (c *Collector) names() []string {
	c.mu.RLock()
	names := make([]string, 0, len(c.sessions))
	for name := range c.sessions {
		names = append(names, name)
	}
	c.mu.RUnlock()

	sort.Strings(names)
	return names
}

func (c *Collector) statuses() []poller.Status {
	names := c.names()
	statuses := make([]poller.Status, 0, len(names))
	for _, name := range names {
		if reg, ok := c.lookup(name); ok {
			statuses = append(statuses, reg.controller.Status())
		}
	}
	return statuses
}

// handleDetection stores a detected drop and queues it for the drop
// callbacks. It runs on the cycle goroutine and never blocks, so callbacks
// may call back into the collector.
func (c *Collector) handleDetection(d poller.Detection) {
	// store update first (callbacks fire after data is persisted)
	c.store.Update(detectionToRecord(d))

	if c.events == nil {
		return
	}

	c.eventsMu.RLock()
	defer c.eventsMu.RUnlock()
	if c.eventsShutdown {
		return
	}

	event := detectionToEvent(d)
	select {
	case c.events <- event:
	default:
		c.logger.Warn("drop callbacks falling behind, event dropped",
			"session", event.Session,
			"app_id", event.AppID,
		)
	}
}

// dispatch runs the drop callbacks in detection order until the event
// queue is closed.
func (c *Collector) dispatch() {
	for event := range c.events {
		for _, cb := range c.dropCallbacks {
			invokeCallbackSafe(cb, event, c.logger)
		}
	}
}

// invokeCallbackSafe calls a drop callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(DropEvent), event DropEvent, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("drop callback panicked",
				"panic", r,
				"session", event.Session,
				"app_id", event.AppID,
			)
		}
	}()
	cb(event)
}

// apiBackend adapts a Collector to [server.Backend].
type apiBackend struct {
	c *Collector
}

func (b apiBackend) Statuses() []poller.Status {
	return b.c.statuses()
}

func (b apiBackend) StartIdling(ctx context.Context, targets string) string {
	return b.c.StartIdling(ctx, targets)
}

func (b apiBackend) StopIdling(ctx context.Context, targets string) string {
	return b.c.StopIdling(ctx, targets)
}

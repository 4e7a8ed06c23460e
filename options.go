package itemcollector

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
)

// collectorConfig holds mutable state during Collector construction.
type collectorConfig struct {
	apps              []App
	enabled           bool
	dropCheckInterval time.Duration
	pacingDelay       time.Duration
	announceDelay     time.Duration
	port              int
	logger            *slog.Logger
	clock             clockwork.Clock
	registry          *prometheus.Registry
	dropCallbacks     []func(DropEvent)
}

// Option is a function that configures a [Collector] during construction.
//
// Options return an error if validation fails.
type Option func(*collectorConfig) error

// WithApp adds a single [App] to the check list.
//
// Apps are checked in the order they are added.
func WithApp(a App) Option {
	return func(cfg *collectorConfig) error {
		cfg.apps = append(cfg.apps, a)
		return nil
	}
}

// WithApps adds multiple [App] values to the check list.
//
// Equivalent to calling [WithApp] for each app in order.
func WithApps(apps ...App) Option {
	return func(cfg *collectorConfig) error {
		cfg.apps = append(cfg.apps, apps...)
		return nil
	}
}

// WithEnabled permits automatic start of idling when a session becomes
// able to idle. Manual commands work regardless. Defaults to false.
func WithEnabled(enabled bool) Option {
	return func(cfg *collectorConfig) error {
		cfg.enabled = enabled
		return nil
	}
}

// WithDropCheckInterval sets the time between poll cycles of an active
// session. Defaults to 10 minutes.
//
// Returns an error if the duration is zero or negative.
func WithDropCheckInterval(d time.Duration) Option {
	return func(cfg *collectorConfig) error {
		if d <= 0 {
			return errors.New("drop check interval must be positive")
		}
		cfg.dropCheckInterval = d
		return nil
	}
}

// WithPacingDelay sets the pause before a check that follows a check which
// found nothing. Defaults to 5 seconds; zero disables pacing.
//
// Returns an error if the duration is negative.
func WithPacingDelay(d time.Duration) Option {
	return func(cfg *collectorConfig) error {
		if d < 0 {
			return errors.New("pacing delay cannot be negative")
		}
		cfg.pacingDelay = d
		return nil
	}
}

// WithAnnounceDelay sets the pause before every playing status update.
// Defaults to 1 second; zero sends immediately.
//
// Returns an error if the duration is negative.
func WithAnnounceDelay(d time.Duration) Option {
	return func(cfg *collectorConfig) error {
		if d < 0 {
			return errors.New("announce delay cannot be negative")
		}
		cfg.announceDelay = d
		return nil
	}
}

// WithPort sets the HTTP port of the API served by [Collector.Start].
// Defaults to 8080.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *collectorConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the collector.
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *collectorConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithClock replaces the clock driving tickers and delays. Intended for
// tests, which pass a [clockwork.FakeClock].
//
// Returns an error if the clock is nil.
func WithClock(clock clockwork.Clock) Option {
	return func(cfg *collectorConfig) error {
		if clock == nil {
			return errors.New("clock cannot be nil")
		}
		cfg.clock = clock
		return nil
	}
}

// WithMetricsRegistry registers the collector's metrics on reg and serves
// reg at /metrics. By default a private registry with Go runtime and
// process collectors is used.
//
// Returns an error if the registry is nil.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(cfg *collectorConfig) error {
		if reg == nil {
			return errors.New("metrics registry cannot be nil")
		}
		cfg.registry = reg
		return nil
	}
}

// WithDropCallback registers a function to be called for every detected drop.
//
// Multiple callbacks may be registered; they execute in registration order
// on a single dispatcher goroutine, one drop after another. The cycle that
// found the drop does not wait for them, so a callback may call
// [Collector.StopIdling] or any other collector method, including for its
// own session. A slow callback delays later callbacks; once 100 drops are
// waiting, further drops skip the callbacks and are only stored.
// Panics within callbacks are recovered and logged.
//
// Nil callbacks are silently ignored.
func WithDropCallback(cb func(DropEvent)) Option {
	return func(cfg *collectorConfig) error {
		if cb == nil {
			return nil
		}
		cfg.dropCallbacks = append(cfg.dropCallbacks, cb)
		return nil
	}
}

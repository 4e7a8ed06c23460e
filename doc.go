// Package itemcollector idles client sessions on configured applications
// and periodically exchanges the accrued playtime for item drops.
//
// The host runtime owns the real sessions; the collector borrows them
// through the [Session], [Capabilities] and [Notifier] contracts. For every
// registered session the collector keeps one idle session controller.
// While a controller is active a ticker fires every drop check interval
// and each tick runs one poll cycle: the configured applications are
// declared as running, then every item of every application is checked in
// order. The first item that drops ends the scan of its application for
// that cycle.
//
// # Quick Start
//
//	app, _ := itemcollector.NewApp(2923300, "Banana", 1, 2, 3)
//	c, _ := itemcollector.New(
//	    itemcollector.WithApp(app),
//	    itemcollector.WithEnabled(true),
//	    itemcollector.WithDropCheckInterval(10 * time.Minute),
//	)
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	_ = c.Register(sess, nil, nil)
//	c.Start(ctx) // blocks until context is cancelled
//
// # Control
//
// Idling starts automatically when enabled and a session reports that it
// is paused and able to play, and stops when the session can no longer
// play, starts farming or disconnects. It can also be driven manually with
// the ISTART and ISTOP commands via [Collector.HandleCommand], or with
// [Collector.StartIdling] and [Collector.StopIdling].
//
// # Architecture
//
// The collector consists of several internal packages (under internal/):
//
//   - internal/poller: Idle session controller, poll cycle runner and state watcher
//   - internal/drops: Drop checker and drop payload parsing
//   - internal/presence: Activity declarations
//   - internal/session: Contracts with the host runtime
//   - internal/gateway: HTTP bridge to a host runtime exposing sessions remotely
//   - internal/metrics: Prometheus instrumentation
//   - internal/store: In-memory drop storage with pub/sub for real-time updates
//   - internal/server: HTTP API with Server-Sent Events
//
// The internal packages are not part of the public API and may change
// without notice.
package itemcollector

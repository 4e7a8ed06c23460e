// Package server provides the HTTP API of the item collector.
//
// This package is internal and handles all HTTP concerns:
//
//   - Sessions: controller snapshots at "/api/sessions"
//   - Commands: start and stop idling at "/api/sessions/start" and "/api/sessions/stop"
//   - Drops: latest detected drop per session and app at "/api/drops"
//   - Server-Sent Events: newly detected drops at "/api/sse"
//   - Operations: Prometheus metrics at "/metrics" and liveness at "/healthz"
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
//
// Users of the itemcollector library should not need to interact with this
// package directly. The server is started by [itemcollector.Collector.Start].
package server

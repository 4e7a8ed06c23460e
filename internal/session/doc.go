// Package session defines the narrow contracts item collection consumes
// from the host runtime.
//
// The host owns every client connection. Item collection only observes
// connectivity and capability flags and issues requests through the
// interfaces declared here:
//
//   - [Session]: one authenticated client connection
//   - [InventoryService]: the inventory sub-service reached through a session
//   - [Capabilities]: whether a session may idle right now
//   - [Notifier]: playing-session-state change notifications
//
// Implementations must be safe for concurrent use.
package session

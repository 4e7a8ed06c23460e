// Package poller runs timed drop checks for one session at a time.
//
// This package is internal to item collection and owns the idling state
// machine. The main components are:
//
//   - [Controller]: the Idle/Active state machine owning the ticker
//   - [Runner]: one poll cycle over the configured applications and items
//   - [Watcher]: starts and stops a controller from session notifications
//   - [Report]: what one cycle checked, found and skipped
//
// A controller never runs two cycles at once. Ticks that arrive while a
// cycle is still running are skipped, and everything that goes wrong inside
// a cycle is logged rather than returned, so one bad cycle never stops the
// ones scheduled after it.
package poller

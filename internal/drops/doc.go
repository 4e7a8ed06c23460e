// Package drops checks the remote inventory service for item drops.
//
// The main components are:
//
//   - [Checker]: the single-method capability the poll cycle depends on
//   - [InventoryChecker]: a [Checker] backed by a session's inventory service
//   - [Drop]: one granted item parsed from a response payload
//   - [Parse]: selects the first genuine drop from a response payload
//
// Checks fail soft. Disconnected sessions, empty payloads, malformed
// payloads and transport failures are logged and reported as "no drop".
package drops

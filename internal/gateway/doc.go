// Package gateway connects the item collector to the host runtime that owns
// the real client sessions.
//
// The host exposes its sessions through a small JSON-over-HTTP bridge:
//
//   - GET {base}/sessions lists every session and its idling state
//   - POST {base}/sessions/{name}/games-played declares running applications
//   - POST {base}/sessions/{name}/inventory/consume-playtime checks for drops
//
// [Client] speaks the protocol. [Gateway] polls the session list, keeps a
// cached [Session] per remote session and reports state changes through
// [Hooks] and playing state notifications.
package gateway

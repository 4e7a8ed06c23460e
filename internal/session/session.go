package session

import "context"

// GamesPlayed is the activity declaration sent to the remote service.
//
// An empty AppIDs slice declares that no application is in use.
type GamesPlayed struct {
	// SteamID identifies the account the declaration is made for.
	SteamID uint64 `json:"steam_id"`

	// AppIDs lists the applications declared as running, in order.
	AppIDs []uint32 `json:"app_ids"`
}

// ConsumePlaytimeResponse is the raw reply of a playtime consumption request.
type ConsumePlaytimeResponse struct {
	// ItemJSON is a JSON-encoded array of candidate drop records.
	// It may be empty when nothing was granted.
	ItemJSON string `json:"item_json"`
}

// PlayingState is delivered whenever the playing session state of an
// account changes. It only names the session; receivers read the current
// state through [Capabilities].
type PlayingState struct {
	// Session is the name of the session the notification belongs to.
	Session string
}

// Session is one authenticated connection owned by the host.
type Session interface {
	// Name returns the unique name the host knows this session by.
	Name() string

	// IsConnected reports whether requests can currently be issued.
	IsConnected() bool

	// SteamID returns the identity of the logged on account.
	SteamID() uint64

	// Send delivers an activity declaration without awaiting a reply.
	Send(ctx context.Context, msg GamesPlayed) error

	// Inventory resolves the inventory sub-service of this connection.
	Inventory() (InventoryService, error)
}

// InventoryService is the inventory sub-service of a [Session].
type InventoryService interface {
	// ConsumePlaytime spends accrued playtime for the given application and
	// item definition and returns whatever the service granted.
	ConsumePlaytime(ctx context.Context, appID, itemDefID uint32) (ConsumePlaytimeResponse, error)
}

// Capabilities answers whether a session may idle.
type Capabilities interface {
	// CanIdle reports whether playing is currently possible on the account.
	CanIdle() bool

	// IsPaused reports whether the host's own farming is paused.
	IsPaused() bool

	// NowFarming reports whether the host is farming something else.
	NowFarming() bool
}

// Notifier delivers playing-session-state changes.
//
// Delivery is at-least-once and unordered relative to other session events.
type Notifier interface {
	// SubscribePlayingState registers fn and returns a function that removes it.
	SubscribePlayingState(fn func(PlayingState)) (unsubscribe func())
}

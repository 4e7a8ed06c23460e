// Package sessiontest provides an in-memory session for tests. Test use only.
package sessiontest

import (
	"context"
	"errors"
	"sync"

	"github.com/jpalmerr/itemcollector/internal/session"
)

// ErrNoInventory is returned by [Fake.Inventory] when InventoryErr is set
// without a more specific error.
var ErrNoInventory = errors.New("inventory service not registered")

// Call records one ConsumePlaytime request.
type Call struct {
	AppID     uint32
	ItemDefID uint32
}

// Fake implements [session.Session], [session.Capabilities],
// [session.Notifier] and [session.InventoryService].
//
// Responses maps item definition ids to the payload returned for them;
// unknown ids return an empty payload. Errors maps item definition ids to
// transport errors.
type Fake struct {
	mu sync.Mutex

	name       string
	steamID    uint64
	connected  bool
	canIdle    bool
	paused     bool
	nowFarming bool

	inventoryErr   error
	inventoryCalls int
	responses      map[uint32]string
	errors         map[uint32]error
	calls          []Call
	sent           []session.GamesPlayed
	sendErr        error
	subscribers    map[int]func(session.PlayingState)
	nextSubscriber int
	consumeHook    func(ctx context.Context, call Call)
}

// New creates a connected session that may idle.
func New(name string, steamID uint64) *Fake {
	return &Fake{
		name:        name,
		steamID:     steamID,
		connected:   true,
		canIdle:     true,
		paused:      true,
		responses:   make(map[uint32]string),
		errors:      make(map[uint32]error),
		subscribers: make(map[int]func(session.PlayingState)),
	}
}

func (f *Fake) Name() string    { return f.name }
func (f *Fake) SteamID() uint64 { return f.steamID }

func (f *Fake) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *Fake) CanIdle() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canIdle
}

func (f *Fake) IsPaused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

func (f *Fake) NowFarming() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nowFarming
}

// SetConnected changes the connectivity flag.
func (f *Fake) SetConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

// SetCanIdle changes the idle capability flag.
func (f *Fake) SetCanIdle(v bool) {
	f.mu.Lock()
	f.canIdle = v
	f.mu.Unlock()
}

// SetPaused changes the paused flag.
func (f *Fake) SetPaused(v bool) {
	f.mu.Lock()
	f.paused = v
	f.mu.Unlock()
}

// SetNowFarming changes the farming flag.
func (f *Fake) SetNowFarming(v bool) {
	f.mu.Lock()
	f.nowFarming = v
	f.mu.Unlock()
}

// SetInventoryErr makes Inventory fail with err until cleared with nil.
func (f *Fake) SetInventoryErr(err error) {
	f.mu.Lock()
	f.inventoryErr = err
	f.mu.Unlock()
}

// SetSendErr makes Send fail with err until cleared with nil.
func (f *Fake) SetSendErr(err error) {
	f.mu.Lock()
	f.sendErr = err
	f.mu.Unlock()
}

// SetResponse sets the payload returned for an item definition.
func (f *Fake) SetResponse(itemDefID uint32, payload string) {
	f.mu.Lock()
	f.responses[itemDefID] = payload
	f.mu.Unlock()
}

// SetError sets the transport error returned for an item definition.
func (f *Fake) SetError(itemDefID uint32, err error) {
	f.mu.Lock()
	f.errors[itemDefID] = err
	f.mu.Unlock()
}

// OnConsume installs a hook invoked at the start of every ConsumePlaytime
// call, outside the fake's lock. Hooks may block.
func (f *Fake) OnConsume(hook func(ctx context.Context, call Call)) {
	f.mu.Lock()
	f.consumeHook = hook
	f.mu.Unlock()
}

func (f *Fake) Send(_ context.Context, msg session.GamesPlayed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *Fake) Inventory() (session.InventoryService, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inventoryCalls++
	if f.inventoryErr != nil {
		return nil, f.inventoryErr
	}
	return f, nil
}

func (f *Fake) ConsumePlaytime(ctx context.Context, appID, itemDefID uint32) (session.ConsumePlaytimeResponse, error) {
	call := Call{AppID: appID, ItemDefID: itemDefID}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	hook := f.consumeHook
	f.mu.Unlock()

	if hook != nil {
		hook(ctx, call)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errors[itemDefID]; err != nil {
		return session.ConsumePlaytimeResponse{}, err
	}
	return session.ConsumePlaytimeResponse{ItemJSON: f.responses[itemDefID]}, nil
}

func (f *Fake) SubscribePlayingState(fn func(session.PlayingState)) func() {
	f.mu.Lock()
	id := f.nextSubscriber
	f.nextSubscriber++
	f.subscribers[id] = fn
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.subscribers, id)
		f.mu.Unlock()
	}
}

// Notify delivers a playing state notification to every subscriber.
func (f *Fake) Notify(state session.PlayingState) {
	f.mu.Lock()
	subs := make([]func(session.PlayingState), 0, len(f.subscribers))
	for _, fn := range f.subscribers {
		subs = append(subs, fn)
	}
	f.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

// Calls returns a copy of the recorded ConsumePlaytime requests.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Sent returns a copy of the recorded activity declarations.
func (f *Fake) Sent() []session.GamesPlayed {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]session.GamesPlayed(nil), f.sent...)
}

// InventoryCalls returns how often Inventory was resolved.
func (f *Fake) InventoryCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inventoryCalls
}

// Subscribers returns the number of registered notification handlers.
func (f *Fake) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}

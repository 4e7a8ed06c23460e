package gateway

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultPollInterval is the time between session list refreshes.
const DefaultPollInterval = 5 * time.Second

// Hooks receive session lifecycle events detected by a [Gateway].
// Any field may be nil. Hooks run on the polling goroutine.
type Hooks struct {
	// Added is called once for every newly listed session, before its
	// first playing state notification.
	Added func(*Session)

	// Removed is called when a session disappears from the list.
	Removed func(name string)

	// FarmingStarted and FarmingStopped report changes of the farming flag.
	FarmingStarted func(name string)
	FarmingStopped func(name string)

	// Disconnected reports a connected session going offline.
	Disconnected func(name string)
}

// Gateway polls the gateway session list and keeps one [Session] per
// remote session.
type Gateway struct {
	client   *Client
	clock    clockwork.Clock
	interval time.Duration
	hooks    Hooks
	logger   *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// New creates a [Gateway]. A non-positive interval uses
// [DefaultPollInterval]; a nil clock uses the real clock.
func New(client *Client, interval time.Duration, clock clockwork.Clock, hooks Hooks, logger *slog.Logger) *Gateway {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		client:   client,
		clock:    clock,
		interval: interval,
		hooks:    hooks,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Sessions returns the known sessions ordered by name.
func (g *Gateway) Sessions() []*Session {
	g.mu.RLock()
	sessions := make([]*Session, 0, len(g.sessions))
	for _, s := range g.sessions {
		sessions = append(sessions, s)
	}
	g.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Name() < sessions[j].Name()
	})
	return sessions
}

// Session returns the session with the given name.
func (g *Gateway) Session(name string) (*Session, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.sessions[name]
	return s, ok
}

// Run refreshes immediately and then every poll interval until ctx is
// cancelled. Refresh failures are logged and retried on the next tick.
func (g *Gateway) Run(ctx context.Context) error {
	ticker := g.clock.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		if err := g.Refresh(ctx); err != nil && ctx.Err() == nil {
			g.logger.Warn("failed to refresh sessions", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
		}
	}
}

// Refresh fetches the session list once and applies it.
//
// New sessions are reported through Hooks.Added and then notified.
// Existing sessions whose state changed are notified. Sessions that are no
// longer listed are marked disconnected and reported through Hooks.Removed.
func (g *Gateway) Refresh(ctx context.Context) error {
	states, err := g.client.ListSessions(ctx)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(states))
	for _, state := range states {
		if state.Name == "" {
			g.logger.Warn("ignoring gateway session without a name")
			continue
		}
		if _, dup := seen[state.Name]; dup {
			g.logger.Warn("ignoring duplicate gateway session", "session", state.Name)
			continue
		}
		seen[state.Name] = struct{}{}
		g.apply(state)
	}

	g.mu.Lock()
	var removed []*Session
	for name, s := range g.sessions {
		if _, ok := seen[name]; !ok {
			removed = append(removed, s)
			delete(g.sessions, name)
		}
	}
	g.mu.Unlock()

	for _, s := range removed {
		prev := s.update(SessionState{Name: s.Name(), SteamID: s.SteamID()})
		g.logger.Info("session removed", "session", s.Name())
		if prev.Connected {
			g.fire(g.hooks.Disconnected, s.Name())
		}
		g.fire(g.hooks.Removed, s.Name())
	}

	return nil
}

func (g *Gateway) apply(state SessionState) {
	g.mu.Lock()
	s, ok := g.sessions[state.Name]
	if !ok {
		s = newSession(g.client, state)
		g.sessions[state.Name] = s
	}
	g.mu.Unlock()

	if !ok {
		g.logger.Info("session added", "session", state.Name, "connected", state.Connected)
		if g.hooks.Added != nil {
			g.hooks.Added(s)
		}
		s.notify()
		return
	}

	prev := s.update(state)
	if prev == state {
		return
	}

	g.logger.Debug("session state changed", "session", state.Name,
		"connected", state.Connected, "can_idle", state.CanIdle,
		"paused", state.Paused, "farming", state.Farming)

	switch {
	case !prev.Farming && state.Farming:
		g.fire(g.hooks.FarmingStarted, state.Name)
	case prev.Farming && !state.Farming:
		g.fire(g.hooks.FarmingStopped, state.Name)
	}
	if prev.Connected && !state.Connected {
		g.fire(g.hooks.Disconnected, state.Name)
	}

	s.notify()
}

func (g *Gateway) fire(hook func(string), name string) {
	if hook != nil {
		hook(name)
	}
}

// Close releases idle connections of the underlying client.
func (g *Gateway) Close() {
	g.client.Close()
}

package gateway

import (
	"context"
	"errors"
	"sync"

	"github.com/jpalmerr/itemcollector/internal/session"
)

// ErrNotConnected is returned by requests made through a session the
// gateway last reported as disconnected.
var ErrNotConnected = errors.New("session not connected")

// Session is the local view of one remote session.
//
// Session implements [session.Session], [session.Capabilities] and
// [session.Notifier]. State queries answer from the last polled
// [SessionState] without I/O.
type Session struct {
	client *Client
	name   string

	mu     sync.RWMutex
	state  SessionState
	subs   map[int]func(session.PlayingState)
	nextID int
}

var (
	_ session.Session      = (*Session)(nil)
	_ session.Capabilities = (*Session)(nil)
	_ session.Notifier     = (*Session)(nil)
)

func newSession(client *Client, state SessionState) *Session {
	return &Session{
		client: client,
		name:   state.Name,
		state:  state,
		subs:   make(map[int]func(session.PlayingState)),
	}
}

// Name implements [session.Session].
func (s *Session) Name() string {
	return s.name
}

// IsConnected implements [session.Session].
func (s *Session) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Connected
}

// SteamID implements [session.Session].
func (s *Session) SteamID() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.SteamID
}

// Send implements [session.Session].
func (s *Session) Send(ctx context.Context, msg session.GamesPlayed) error {
	if !s.IsConnected() {
		return ErrNotConnected
	}
	err := s.client.SendGamesPlayed(ctx, s.name, msg)
	if IsNotFound(err) {
		s.markDisconnected()
	}
	return err
}

// Inventory implements [session.Session].
func (s *Session) Inventory() (session.InventoryService, error) {
	return inventory{session: s}, nil
}

// CanIdle implements [session.Capabilities].
func (s *Session) CanIdle() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Connected && s.state.CanIdle
}

// IsPaused implements [session.Capabilities].
func (s *Session) IsPaused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Paused
}

// NowFarming implements [session.Capabilities].
func (s *Session) NowFarming() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Farming
}

// SubscribePlayingState implements [session.Notifier].
func (s *Session) SubscribePlayingState(fn func(session.PlayingState)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// State returns the last polled state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// update replaces the cached state and returns the previous one.
func (s *Session) update(state SessionState) SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	s.state = state
	return prev
}

func (s *Session) markDisconnected() {
	s.mu.Lock()
	s.state.Connected = false
	s.mu.Unlock()
}

// notify delivers a playing state to every subscriber outside the lock.
func (s *Session) notify() {
	s.mu.RLock()
	state := session.PlayingState{Session: s.name}
	subs := make([]func(session.PlayingState), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.RUnlock()

	for _, fn := range subs {
		fn(state)
	}
}

// inventory is the inventory sub-service of a gateway [Session].
type inventory struct {
	session *Session
}

func (i inventory) ConsumePlaytime(ctx context.Context, appID, itemDefID uint32) (session.ConsumePlaytimeResponse, error) {
	if !i.session.IsConnected() {
		return session.ConsumePlaytimeResponse{}, ErrNotConnected
	}
	resp, err := i.session.client.ConsumePlaytime(ctx, i.session.name, appID, itemDefID)
	if IsNotFound(err) {
		i.session.markDisconnected()
	}
	return resp, err
}

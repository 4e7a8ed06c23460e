package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jpalmerr/itemcollector/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGateway is an in-memory gateway server.
type fakeGateway struct {
	mu       sync.Mutex
	states   []SessionState
	played   map[string][]session.GamesPlayed
	consumed []consumePlaytimeRequest
	itemJSON string
	lists    int
	auth     []string
	status   int
}

func newFakeGateway(t *testing.T, states ...SessionState) (*fakeGateway, *httptest.Server) {
	t.Helper()
	fg := &fakeGateway{states: states, played: make(map[string][]session.GamesPlayed)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /sessions", func(w http.ResponseWriter, r *http.Request) {
		fg.mu.Lock()
		defer fg.mu.Unlock()
		fg.lists++
		fg.auth = append(fg.auth, r.Header.Get("Authorization"))
		if fg.status != 0 {
			http.Error(w, "unavailable", fg.status)
			return
		}
		_ = json.NewEncoder(w).Encode(fg.states)
	})
	mux.HandleFunc("POST /sessions/{name}/games-played", func(w http.ResponseWriter, r *http.Request) {
		var msg session.GamesPlayed
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fg.mu.Lock()
		defer fg.mu.Unlock()
		name := r.PathValue("name")
		if !fg.known(name) {
			http.NotFound(w, r)
			return
		}
		fg.played[name] = append(fg.played[name], msg)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /sessions/{name}/inventory/consume-playtime", func(w http.ResponseWriter, r *http.Request) {
		var req consumePlaytimeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fg.mu.Lock()
		defer fg.mu.Unlock()
		fg.consumed = append(fg.consumed, req)
		_ = json.NewEncoder(w).Encode(session.ConsumePlaytimeResponse{ItemJSON: fg.itemJSON})
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return fg, ts
}

// known must be called with fg.mu held.
func (fg *fakeGateway) known(name string) bool {
	for _, s := range fg.states {
		if s.Name == name {
			return true
		}
	}
	return false
}

func (fg *fakeGateway) setStates(states ...SessionState) {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	fg.states = states
}

func (fg *fakeGateway) authHeaders() []string {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	return append([]string(nil), fg.auth...)
}

func (fg *fakeGateway) playedBy(name string) []session.GamesPlayed {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	return append([]session.GamesPlayed(nil), fg.played[name]...)
}

func (fg *fakeGateway) consumeRequests() []consumePlaytimeRequest {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	return append([]consumePlaytimeRequest(nil), fg.consumed...)
}

func (fg *fakeGateway) listCount() int {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	return fg.lists
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{URL: url, APIKey: "secret", Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func idleState(name string) SessionState {
	return SessionState{Name: name, SteamID: 76561198000000001, Connected: true, CanIdle: true, Paused: true}
}

// --- Client ---

func TestNewClient_InvalidURL(t *testing.T) {
	tests := []string{"", "localhost:9000", "ftp://host", "http://"}
	for _, u := range tests {
		t.Run(u, func(t *testing.T) {
			_, err := NewClient(ClientConfig{URL: u})
			assert.Error(t, err)
		})
	}
}

func TestClient_ListSessions(t *testing.T) {
	fg, ts := newFakeGateway(t, idleState("bot1"), SessionState{Name: "bot2"})
	c := newTestClient(t, ts.URL+"/")

	states, err := c.ListSessions(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []SessionState{idleState("bot1"), {Name: "bot2"}}, states)
	assert.Equal(t, []string{"Bearer secret"}, fg.authHeaders())
}

func TestClient_StatusError(t *testing.T) {
	fg, ts := newFakeGateway(t)
	fg.mu.Lock()
	fg.status = http.StatusServiceUnavailable
	fg.mu.Unlock()
	c := newTestClient(t, ts.URL)

	_, err := c.ListSessions(context.Background())

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, "unavailable", statusErr.Body)
}

func TestClient_SendGamesPlayed(t *testing.T) {
	fg, ts := newFakeGateway(t, idleState("bot 1"))
	c := newTestClient(t, ts.URL)

	err := c.SendGamesPlayed(context.Background(), "bot 1", session.GamesPlayed{SteamID: 7, AppIDs: []uint32{440, 570}})
	require.NoError(t, err)
	err = c.SendGamesPlayed(context.Background(), "bot 1", session.GamesPlayed{SteamID: 7})
	require.NoError(t, err)

	played := fg.playedBy("bot 1")
	require.Len(t, played, 2)
	assert.Equal(t, []uint32{440, 570}, played[0].AppIDs)
	// a clear is sent as an empty list, never null
	assert.Equal(t, []uint32{}, played[1].AppIDs)
}

func TestClient_ConsumePlaytime(t *testing.T) {
	fg, ts := newFakeGateway(t, idleState("bot1"))
	fg.itemJSON = `[{"itemdefid":"20"}]`
	c := newTestClient(t, ts.URL)

	resp, err := c.ConsumePlaytime(context.Background(), "bot1", 440, 20)

	require.NoError(t, err)
	assert.Equal(t, `[{"itemdefid":"20"}]`, resp.ItemJSON)
	assert.Equal(t, []consumePlaytimeRequest{{AppID: 440, ItemDefID: 20}}, fg.consumeRequests())
}

func TestClient_BodySizeLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"item_json":"` + strings.Repeat("a", maxResponseBodySize) + `"}`))
	}))
	defer ts.Close()
	c := newTestClient(t, ts.URL)

	_, err := c.ConsumePlaytime(context.Background(), "bot1", 1, 1)

	// the truncated body is not valid JSON
	assert.ErrorContains(t, err, "failed to decode response")
}

func TestClient_RateLimitHonoursContext(t *testing.T) {
	_, ts := newFakeGateway(t)
	c, err := NewClient(ClientConfig{URL: ts.URL, RequestsPerSecond: 0.001})
	require.NoError(t, err)

	_, err = c.ListSessions(context.Background())
	require.NoError(t, err)

	// the single token is spent; the next wait exceeds the deadline
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.ListSessions(ctx)
	assert.ErrorContains(t, err, "rate limit wait")
}

// --- Session ---

func TestSession_Capabilities(t *testing.T) {
	s := newSession(nil, SessionState{Name: "bot", Connected: false, CanIdle: true, Paused: true, Farming: true})

	assert.Equal(t, "bot", s.Name())
	assert.False(t, s.IsConnected())
	assert.False(t, s.CanIdle(), "disconnected sessions cannot idle")
	assert.True(t, s.IsPaused())
	assert.True(t, s.NowFarming())
}

func TestSession_SendWhileDisconnected(t *testing.T) {
	s := newSession(nil, SessionState{Name: "bot"})

	err := s.Send(context.Background(), session.GamesPlayed{})
	assert.ErrorIs(t, err, ErrNotConnected)

	inv, err := s.Inventory()
	require.NoError(t, err)
	_, err = inv.ConsumePlaytime(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSession_NotFoundMarksDisconnected(t *testing.T) {
	_, ts := newFakeGateway(t)
	s := newSession(newTestClient(t, ts.URL), idleState("gone"))

	err := s.Send(context.Background(), session.GamesPlayed{AppIDs: []uint32{1}})

	assert.True(t, IsNotFound(err))
	assert.False(t, s.IsConnected())
}

func TestSession_Subscribe(t *testing.T) {
	s := newSession(nil, idleState("bot"))

	var got []session.PlayingState
	unsubscribe := s.SubscribePlayingState(func(ps session.PlayingState) { got = append(got, ps) })

	s.notify()
	unsubscribe()
	unsubscribe() // idempotent
	s.notify()

	assert.Equal(t, []session.PlayingState{{Session: "bot"}}, got)
}

// --- Gateway ---

type hookRecorder struct {
	mu     sync.Mutex
	events []string
}

func (h *hookRecorder) record(event string) func(string) {
	return func(name string) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.events = append(h.events, event+":"+name)
	}
}

func (h *hookRecorder) hooks() Hooks {
	return Hooks{
		Added:          func(s *Session) { h.record("added")(s.Name()) },
		Removed:        h.record("removed"),
		FarmingStarted: h.record("farming_started"),
		FarmingStopped: h.record("farming_stopped"),
		Disconnected:   h.record("disconnected"),
	}
}

func (h *hookRecorder) take() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	events := h.events
	h.events = nil
	return events
}

func TestGateway_RefreshAddsSessions(t *testing.T) {
	_, ts := newFakeGateway(t, idleState("b"), idleState("a"))
	rec := &hookRecorder{}
	g := New(newTestClient(t, ts.URL), time.Second, clockwork.NewFakeClock(), rec.hooks(), testLogger())

	require.NoError(t, g.Refresh(context.Background()))

	sessions := g.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, "a", sessions[0].Name())
	assert.Equal(t, "b", sessions[1].Name())
	assert.ElementsMatch(t, []string{"added:a", "added:b"}, rec.take())

	s, ok := g.Session("a")
	require.True(t, ok)
	assert.True(t, s.CanIdle())
}

func TestGateway_NotifiesOnlyChangedSessions(t *testing.T) {
	fg, ts := newFakeGateway(t, idleState("a"), idleState("b"))
	g := New(newTestClient(t, ts.URL), time.Second, clockwork.NewFakeClock(), Hooks{}, testLogger())
	require.NoError(t, g.Refresh(context.Background()))

	counts := map[string]int{}
	var mu sync.Mutex
	for _, s := range g.Sessions() {
		s.SubscribePlayingState(func(ps session.PlayingState) {
			mu.Lock()
			counts[ps.Session]++
			mu.Unlock()
		})
	}

	// unchanged list: no notifications
	require.NoError(t, g.Refresh(context.Background()))
	assert.Empty(t, counts)

	changed := idleState("b")
	changed.CanIdle = false
	fg.setStates(idleState("a"), changed)
	require.NoError(t, g.Refresh(context.Background()))

	assert.Equal(t, map[string]int{"b": 1}, counts)
}

func TestGateway_LifecycleHooks(t *testing.T) {
	fg, ts := newFakeGateway(t, idleState("bot"))
	rec := &hookRecorder{}
	g := New(newTestClient(t, ts.URL), time.Second, clockwork.NewFakeClock(), rec.hooks(), testLogger())
	require.NoError(t, g.Refresh(context.Background()))
	rec.take()

	farming := idleState("bot")
	farming.Farming = true
	fg.setStates(farming)
	require.NoError(t, g.Refresh(context.Background()))
	assert.Equal(t, []string{"farming_started:bot"}, rec.take())

	fg.setStates(idleState("bot"))
	require.NoError(t, g.Refresh(context.Background()))
	assert.Equal(t, []string{"farming_stopped:bot"}, rec.take())

	offline := idleState("bot")
	offline.Connected = false
	fg.setStates(offline)
	require.NoError(t, g.Refresh(context.Background()))
	assert.Equal(t, []string{"disconnected:bot"}, rec.take())

	fg.setStates(idleState("bot"))
	require.NoError(t, g.Refresh(context.Background()))
	rec.take()

	fg.setStates()
	require.NoError(t, g.Refresh(context.Background()))
	assert.Equal(t, []string{"disconnected:bot", "removed:bot"}, rec.take())
	assert.Empty(t, g.Sessions())
}

func TestGateway_RemovedSessionIsDisconnected(t *testing.T) {
	fg, ts := newFakeGateway(t, idleState("bot"))
	g := New(newTestClient(t, ts.URL), time.Second, clockwork.NewFakeClock(), Hooks{}, testLogger())
	require.NoError(t, g.Refresh(context.Background()))
	s, _ := g.Session("bot")

	fg.setStates()
	require.NoError(t, g.Refresh(context.Background()))

	assert.False(t, s.IsConnected())
	assert.ErrorIs(t, s.Send(context.Background(), session.GamesPlayed{}), ErrNotConnected)
}

func TestGateway_RefreshError(t *testing.T) {
	fg, ts := newFakeGateway(t)
	fg.mu.Lock()
	fg.status = http.StatusBadGateway
	fg.mu.Unlock()
	g := New(newTestClient(t, ts.URL), time.Second, clockwork.NewFakeClock(), Hooks{}, testLogger())

	assert.Error(t, g.Refresh(context.Background()))
}

func TestGateway_RunPollsEveryInterval(t *testing.T) {
	fg, ts := newFakeGateway(t, idleState("bot"))
	clock := clockwork.NewFakeClock()
	g := New(newTestClient(t, ts.URL), time.Second, clock, Hooks{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	assert.Eventually(t, func() bool { return fg.listCount() == 1 }, time.Second, 5*time.Millisecond)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	clock.Advance(time.Second)

	assert.Eventually(t, func() bool { return fg.listCount() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

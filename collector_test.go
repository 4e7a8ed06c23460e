package itemcollector

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jpalmerr/itemcollector/internal/session/sessiontest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testInterval = time.Minute

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestCollector builds a collector on a fake clock with no delays.
func newTestCollector(t *testing.T, opts ...Option) (*Collector, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClock()
	app := mustApp(t, 440, "TF2", 1, 2)
	base := []Option{
		WithApp(app),
		WithDropCheckInterval(testInterval),
		WithPacingDelay(0),
		WithAnnounceDelay(0),
		WithClock(clock),
		WithLogger(testLogger()),
		WithMetricsRegistry(prometheus.NewRegistry()),
	}

	c, err := New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, clock
}

func register(t *testing.T, c *Collector, name string) *sessiontest.Fake {
	t.Helper()
	sess := sessiontest.New(name, 7)
	require.NoError(t, c.Register(sess, nil, nil))
	return sess
}

func isActive(c *Collector, name string) bool {
	for _, s := range c.Sessions() {
		if s.Name == name {
			return s.Active
		}
	}
	return false
}

func TestCollector_Register(t *testing.T) {
	c, _ := newTestCollector(t)
	sess := register(t, c, "bot1")

	assert.Equal(t, 1, sess.Subscribers())
	sessions := c.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "bot1", sessions[0].Name)
	assert.False(t, sessions[0].Active)
	assert.Nil(t, sessions[0].LastCycle)
}

func TestCollector_RegisterErrors(t *testing.T) {
	c, _ := newTestCollector(t)
	register(t, c, "bot1")

	assert.Error(t, c.Register(nil, nil, nil))
	assert.Error(t, c.Register(sessiontest.New("bot1", 1), nil, nil), "duplicate name")

	c.Close()
	assert.ErrorIs(t, c.Register(sessiontest.New("bot2", 1), nil, nil), ErrClosed)
}

// plainSession implements Session only.
type plainSession struct {
	*sessiontest.Fake
}

func (p plainSession) CanIdle() {}

func TestCollector_RegisterExplicitCapabilities(t *testing.T) {
	c, _ := newTestCollector(t)
	fake := sessiontest.New("bot1", 1)

	// Capabilities and Notifier given explicitly; the session itself is only
	// used for identity and requests.
	require.NoError(t, c.Register(plainSession{fake}, fake, fake))

	assert.Equal(t, 1, fake.Subscribers())
}

func TestCollector_RegisterWithoutCapabilities(t *testing.T) {
	c, _ := newTestCollector(t)

	// CanIdle has the wrong signature, so the session does not satisfy
	// Capabilities on its own
	err := c.Register(plainSession{sessiontest.New("bot1", 1)}, nil, nil)

	assert.Error(t, err)
}

func TestCollector_Unregister(t *testing.T) {
	c, _ := newTestCollector(t)
	sess := register(t, c, "bot1")
	c.StartIdling(context.Background(), "bot1")
	sent := len(sess.Sent())

	require.NoError(t, c.Unregister("bot1"))

	assert.Equal(t, 0, sess.Subscribers())
	assert.Empty(t, c.Sessions())
	assert.Len(t, sess.Sent(), sent, "unregister sends no presence traffic")
	assert.ErrorIs(t, c.Unregister("bot1"), ErrUnknownSession)
}

func TestCollector_AutoStartOnPlayingState(t *testing.T) {
	c, _ := newTestCollector(t, WithEnabled(true))
	sess := register(t, c, "bot1")

	sess.Notify(PlayingState{Session: "bot1"})

	assert.Eventually(t, func() bool { return isActive(c, "bot1") }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return len(sess.Sent()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []uint32{440}, sess.Sent()[0].AppIDs)
	assert.Equal(t, uint64(7), sess.Sent()[0].SteamID)
}

func TestCollector_NoAutoStartWhenDisabled(t *testing.T) {
	c, _ := newTestCollector(t)
	sess := register(t, c, "bot1")

	sess.Notify(PlayingState{Session: "bot1"})

	assert.Never(t, func() bool { return isActive(c, "bot1") }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestCollector_AutoStopWhenIdlingImpossible(t *testing.T) {
	c, _ := newTestCollector(t)
	sess := register(t, c, "bot1")
	c.StartIdling(context.Background(), "bot1")
	require.True(t, isActive(c, "bot1"))

	sess.SetCanIdle(false)
	sess.Notify(PlayingState{Session: "bot1"})

	assert.Eventually(t, func() bool { return !isActive(c, "bot1") }, time.Second, 5*time.Millisecond)
}

func TestCollector_HostHooks(t *testing.T) {
	c, _ := newTestCollector(t, WithEnabled(true))
	register(t, c, "bot1")

	c.OnFarmingStopped("bot1")
	assert.Eventually(t, func() bool { return isActive(c, "bot1") }, time.Second, 5*time.Millisecond)

	c.OnFarmingStarted("bot1")
	assert.Eventually(t, func() bool { return !isActive(c, "bot1") }, time.Second, 5*time.Millisecond)

	c.StartIdling(context.Background(), "bot1")
	c.OnDisconnected("bot1")
	assert.Eventually(t, func() bool { return !isActive(c, "bot1") }, time.Second, 5*time.Millisecond)

	// unknown names are ignored
	c.OnFarmingStarted("ghost")
	c.OnFarmingStopped("ghost")
	c.OnDisconnected("ghost")
}

func TestCollector_DetectsDrops(t *testing.T) {
	var mu sync.Mutex
	var events []DropEvent
	c, clock := newTestCollector(t, WithDropCallback(func(e DropEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}))
	sess := register(t, c, "bot1")
	sess.SetResponse(1, `[{"appid":440,"itemid":"9001","quantity":1,"itemdefid":"1","acquired":"20240102T030405Z"}]`)

	require.Equal(t, "bot1: Successfully started item idling", c.StartIdling(context.Background(), "bot1"))
	clock.Advance(testInterval)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	event := events[0]
	mu.Unlock()
	assert.Equal(t, "bot1", event.Session)
	assert.Equal(t, uint32(440), event.AppID)
	assert.Equal(t, "TF2", event.AppName)
	assert.Equal(t, "1", event.ItemDefID)
	assert.Equal(t, "9001", event.ItemID)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), event.Acquired)
	assert.NotEmpty(t, event.CycleID)

	// item 2 was skipped after the drop on item 1
	calls := sess.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, uint32(1), calls[0].ItemDefID)

	records := c.store.GetAll()
	require.Len(t, records, 1)
	assert.Equal(t, event.CycleID, records[0].CycleID)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.DropsDetected.WithLabelValues("440")))

	assert.Eventually(t, func() bool {
		s := c.Sessions()[0]
		return s.LastCycle != nil && s.LastCycle.Drops == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCollector_DropCallbackPanicRecovered(t *testing.T) {
	c, clock := newTestCollector(t, WithDropCallback(func(DropEvent) { panic("boom") }))
	sess := register(t, c, "bot1")
	sess.SetResponse(1, `[{"itemdefid":"1"}]`)

	c.StartIdling(context.Background(), "bot1")
	clock.Advance(testInterval)

	// the cycle completes normally and the drop is stored before callbacks run
	assert.Eventually(t, func() bool {
		s := c.Sessions()[0]
		return s.LastCycle != nil && s.LastCycle.Outcome == "completed"
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, c.store.GetAll(), 1)
}

func TestCollector_DropCallbackStopsOwnSession(t *testing.T) {
	var c *Collector
	results := make(chan string, 1)
	c, clock := newTestCollector(t, WithDropCallback(func(e DropEvent) {
		results <- c.StopIdling(context.Background(), e.Session)
	}))
	sess := register(t, c, "bot1")
	sess.SetResponse(1, `[{"itemdefid":"1"}]`)

	require.Equal(t, "bot1: Successfully started item idling", c.StartIdling(context.Background(), "bot1"))
	clock.Advance(testInterval)

	select {
	case got := <-results:
		assert.Equal(t, "bot1: Successfully stopped item idling", got)
	case <-time.After(2 * time.Second):
		t.Fatal("StopIdling from a drop callback did not return")
	}
	assert.False(t, isActive(c, "bot1"))

	// the controller is still usable afterwards
	assert.Equal(t, "bot1: Successfully started item idling", c.StartIdling(context.Background(), "bot1"))

	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
}

func TestCollector_DropCallbackMayClose(t *testing.T) {
	var c *Collector
	done := make(chan struct{})
	c, clock := newTestCollector(t, WithDropCallback(func(DropEvent) {
		c.Close()
		close(done)
	}))
	sess := register(t, c, "bot1")
	sess.SetResponse(1, `[{"itemdefid":"1"}]`)

	c.StartIdling(context.Background(), "bot1")
	clock.Advance(testInterval)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close from a drop callback did not return")
	}
	assert.Empty(t, c.Sessions())
}

func TestCollector_Close(t *testing.T) {
	c, _ := newTestCollector(t)
	sess := register(t, c, "bot1")
	c.StartIdling(context.Background(), "bot1")
	sent := len(sess.Sent())

	c.Close()
	c.Close() // idempotent

	assert.Empty(t, c.Sessions())
	assert.Equal(t, 0, sess.Subscribers())
	assert.Len(t, sess.Sent(), sent, "close sends no presence traffic")
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

// TestStart_BlocksUntilContextCancelled verifies that Start serves the API
// until the provided context is cancelled.
func TestStart_BlocksUntilContextCancelled(t *testing.T) {
	port := freePort(t)
	c, _ := newTestCollector(t, WithPort(port))
	register(t, c, "bot1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	url := "http://127.0.0.1:" + strconv.Itoa(port) + "/api/sessions"
	var statuses []map[string]any
	assert.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		return json.NewDecoder(resp.Body).Decode(&statuses) == nil
	}, 2*time.Second, 20*time.Millisecond)
	require.Len(t, statuses, 1)
	assert.Equal(t, "bot1", statuses[0]["name"])

	select {
	case err := <-done:
		t.Fatalf("Start() returned early with error: %v", err)
	default:
	}

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
	assert.Empty(t, c.Sessions(), "Start closes the collector on shutdown")
}

// TestStart_ReturnsImmediatelyIfContextAlreadyCancelled verifies that Start
// returns immediately if the context is already cancelled.
func TestStart_ReturnsImmediatelyIfContextAlreadyCancelled(t *testing.T) {
	c, _ := newTestCollector(t, WithPort(freePort(t)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start() did not return for cancelled context")
	}
}

func TestStart_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	c, _ := newTestCollector(t, WithPort(ln.Addr().(*net.TCPAddr).Port))

	err = c.Start(context.Background())

	assert.ErrorContains(t, err, "failed to start HTTP server")
}

// Package presence declares which applications a session is playing.
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jpalmerr/itemcollector/internal/session"
)

// DefaultSendDelay is the pause observed before every declaration.
const DefaultSendDelay = time.Second

// Announcer sends activity declarations through a [session.Session].
//
// Declarations are fire-and-forget: no reply is awaited once the message is
// handed to the session. A disconnected session turns both operations into
// logged no-ops.
type Announcer struct {
	session session.Session
	clock   clockwork.Clock
	delay   time.Duration
	logger  *slog.Logger
}

// NewAnnouncer creates an [Announcer] that waits delay before each send.
// A nil clock uses the real clock and a nil logger uses slog.Default().
func NewAnnouncer(sess session.Session, clock clockwork.Clock, delay time.Duration, logger *slog.Logger) *Announcer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Announcer{
		session: sess,
		clock:   clock,
		delay:   delay,
		logger:  logger,
	}
}

// DeclareActive declares every application in appIDs as running.
//
// Returns an error only when ctx is cancelled during the delay or the
// session rejects the message.
func (a *Announcer) DeclareActive(ctx context.Context, appIDs []uint32) error {
	ids := append([]uint32(nil), appIDs...)
	return a.announce(ctx, ids, "declare")
}

// ClearActive declares that no application is running.
func (a *Announcer) ClearActive(ctx context.Context) error {
	return a.announce(ctx, []uint32{}, "clear")
}

func (a *Announcer) announce(ctx context.Context, appIDs []uint32, action string) error {
	if !a.session.IsConnected() {
		a.logger.Warn("cannot update playing status, session not connected", "action", action)
		return nil
	}

	if a.delay > 0 {
		select {
		case <-a.clock.After(a.delay):
		case <-ctx.Done():
			return fmt.Errorf("playing status %s cancelled: %w", action, ctx.Err())
		}
	}

	msg := session.GamesPlayed{
		SteamID: a.session.SteamID(),
		AppIDs:  appIDs,
	}
	if err := a.session.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send playing status: %w", err)
	}

	a.logger.Debug("playing status updated", "action", action, "app_ids", appIDs)
	return nil
}

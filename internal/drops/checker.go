package drops

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/jpalmerr/itemcollector/internal/metrics"
	"github.com/jpalmerr/itemcollector/internal/session"
)

var errInventoryUnavailable = errors.New("inventory service not available")

// Checker checks one application/item definition pair for a drop.
//
// CheckDrop returns nil when nothing dropped or the check could not be
// performed. It never panics on remote failures and never returns an error;
// failures are logged by the implementation.
type Checker interface {
	CheckDrop(ctx context.Context, appID, itemDefID uint32) *Drop
}

// InventoryChecker is a [Checker] that consumes playtime through the
// inventory service of a [session.Session].
//
// The inventory service handle is resolved on first use and cached for the
// lifetime of the checker. A failed resolution is not cached.
type InventoryChecker struct {
	session session.Session
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu        sync.Mutex
	inventory session.InventoryService
}

// NewInventoryChecker creates an [InventoryChecker] for a session.
// The metrics argument may be nil.
func NewInventoryChecker(sess session.Session, m *metrics.Metrics, logger *slog.Logger) *InventoryChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &InventoryChecker{
		session: sess,
		metrics: m,
		logger:  logger,
	}
}

// CheckDrop implements [Checker].
func (c *InventoryChecker) CheckDrop(ctx context.Context, appID, itemDefID uint32) *Drop {
	logAttrs := []any{"app_id", appID, "item_def_id", itemDefID}

	if !c.session.IsConnected() {
		c.logger.Debug("skipping drop check, session not connected", logAttrs...)
		c.metrics.CheckCompleted(metrics.ResultNotConnected)
		return nil
	}

	inventory, err := c.resolveInventory()
	if err != nil {
		c.logger.Error("inventory service unavailable", append(logAttrs, "error", err)...)
		c.metrics.CheckCompleted(metrics.ResultUnavailable)
		return nil
	}

	resp, err := inventory.ConsumePlaytime(ctx, appID, itemDefID)
	if err != nil {
		c.logger.Error("failed to check item drop", append(logAttrs, "error", err)...)
		c.metrics.CheckCompleted(metrics.ResultError)
		return nil
	}

	if strings.TrimSpace(resp.ItemJSON) == "" {
		c.logger.Debug("received empty response", logAttrs...)
		c.metrics.CheckCompleted(metrics.ResultEmpty)
		return nil
	}

	c.logger.Debug("response received", append(logAttrs, "payload", resp.ItemJSON)...)

	drop, err := Parse(resp.ItemJSON)
	if err != nil {
		c.logger.Error("failed to check item drop", append(logAttrs, "error", err)...)
		c.metrics.CheckCompleted(metrics.ResultError)
		return nil
	}
	if drop == nil {
		c.metrics.CheckCompleted(metrics.ResultEmpty)
		return nil
	}

	c.metrics.CheckCompleted(metrics.ResultDrop)
	return drop
}

// resolveInventory returns the cached inventory service, resolving it on
// first use.
func (c *InventoryChecker) resolveInventory() (session.InventoryService, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inventory != nil {
		return c.inventory, nil
	}

	inventory, err := c.session.Inventory()
	if err != nil {
		return nil, err
	}
	if inventory == nil {
		return nil, errInventoryUnavailable
	}
	c.inventory = inventory
	return inventory, nil
}

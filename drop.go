package itemcollector

import (
	"time"

	"github.com/jpalmerr/itemcollector/internal/poller"
	"github.com/jpalmerr/itemcollector/internal/store"
)

// DropEvent describes an item drop detected during a poll cycle.
//
// DropEvent is a value copy; modifying it does not affect the collector.
type DropEvent struct {
	// Session is the name of the session the drop was granted to.
	Session string

	// AppID and AppName identify the configured application.
	AppID   uint32
	AppName string

	// CycleID correlates the drop with the cycle's log lines.
	CycleID string

	// ItemDefID is the item definition that dropped.
	ItemDefID string

	// ItemID is the id of the new inventory item.
	ItemID         string
	OriginalItemID string
	Quantity       int

	// Acquired is the grant time reported by the service; zero if unknown.
	Acquired time.Time

	DetectedAt time.Time
}

// SessionStatus is a point-in-time view of one registered session.
type SessionStatus struct {
	Name         string
	Active       bool
	CycleRunning bool

	// LastCycle is nil until the first cycle has finished.
	LastCycle *CycleSummary
}

// CycleSummary describes the most recent poll cycle of a session.
type CycleSummary struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Checks     int
	Drops      int

	// Outcome is "completed", "cancelled" or "panicked".
	Outcome string
}

func detectionToEvent(d poller.Detection) DropEvent {
	return DropEvent{
		Session:        d.Session,
		AppID:          d.AppID,
		AppName:        d.AppName,
		CycleID:        d.CycleID,
		ItemDefID:      d.Drop.ItemDefID,
		ItemID:         d.Drop.ItemID,
		OriginalItemID: d.Drop.OriginalItemID,
		Quantity:       d.Drop.Quantity,
		Acquired:       d.Drop.Acquired,
		DetectedAt:     d.DetectedAt,
	}
}

func detectionToRecord(d poller.Detection) store.DropRecord {
	return store.DropRecord{
		Session:    d.Session,
		AppID:      d.AppID,
		AppName:    d.AppName,
		ItemDefID:  d.Drop.ItemDefID,
		ItemID:     d.Drop.ItemID,
		Quantity:   d.Drop.Quantity,
		Acquired:   d.Drop.Acquired,
		CycleID:    d.CycleID,
		DetectedAt: d.DetectedAt,
	}
}

func statusToPublic(s poller.Status) SessionStatus {
	status := SessionStatus{
		Name:         s.Name,
		Active:       s.Active,
		CycleRunning: s.CycleRunning,
	}
	if s.LastCycle != nil {
		status.LastCycle = &CycleSummary{
			ID:         s.LastCycle.ID,
			StartedAt:  s.LastCycle.StartedAt,
			FinishedAt: s.LastCycle.FinishedAt,
			Checks:     s.LastCycle.Checks,
			Drops:      s.LastCycle.Drops,
			Outcome:    s.LastCycle.Outcome,
		}
	}
	return status
}

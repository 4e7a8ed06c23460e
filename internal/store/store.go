package store

import (
	"strconv"
	"time"
)

// DropRecord is the storage representation of a detected drop, shaped for
// JSON serialisation by the HTTP API and SSE stream.
type DropRecord struct {
	Session    string    `json:"session"`
	AppID      uint32    `json:"app_id"`
	AppName    string    `json:"app_name"`
	ItemDefID  string    `json:"item_def_id"`
	ItemID     string    `json:"item_id"`
	Quantity   int       `json:"quantity"`
	Acquired   time.Time `json:"acquired"`
	CycleID    string    `json:"cycle_id"`
	DetectedAt time.Time `json:"detected_at"`
}

// Key identifies the session/application pair a record belongs to.
func (r DropRecord) Key() string {
	return r.Session + "/" + strconv.FormatUint(uint64(r.AppID), 10)
}

// Store defines the interface for storing and subscribing to detected drops.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Update stores a record and notifies all subscribers.
	// Records are keyed by [DropRecord.Key]; later records replace earlier ones.
	Update(record DropRecord)

	// GetAll returns all stored records ordered by key.
	// The returned slice is a snapshot; modifications do not affect the store.
	GetAll() []DropRecord

	// Subscribe returns a channel that receives new records.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan DropRecord

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan DropRecord)
}

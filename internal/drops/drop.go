package drops

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the layout of the acquired and state change timestamps.
const TimestampLayout = "20060102T150405Z"

// Drop is one item granted by the inventory service.
//
// Drop is immutable after parsing. Timestamps that cannot be parsed are left
// as the zero time.
type Drop struct {
	AccountID      string    `json:"account_id"`
	AppID          uint32    `json:"app_id"`
	ItemID         string    `json:"item_id"`
	OriginalItemID string    `json:"original_item_id"`
	Quantity       int       `json:"quantity"`
	ItemDefID      string    `json:"item_def_id"`
	Acquired       time.Time `json:"acquired"`
	State          string    `json:"state"`
	Origin         string    `json:"origin"`
	StateChanged   time.Time `json:"state_changed"`
}

// record mirrors the wire shape of a candidate drop.
type record struct {
	AccountID             flexString `json:"accountid"`
	AppID                 flexInt    `json:"appid"`
	ItemID                flexString `json:"itemid"`
	OriginalItemID        flexString `json:"originalitemid"`
	Quantity              flexInt    `json:"quantity"`
	ItemDefID             flexString `json:"itemdefid"`
	Acquired              string     `json:"acquired"`
	State                 flexString `json:"state"`
	Origin                string     `json:"origin"`
	StateChangedTimestamp string     `json:"state_changed_timestamp"`
}

// Parse decodes a payload holding a JSON array of candidate drop records and
// returns the first record with a non-empty item definition id.
//
// A nil Drop with a nil error means the payload held no genuine drop.
// Records are inspected in source order.
func Parse(payload string) (*Drop, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, nil
	}

	var records []record
	if err := json.Unmarshal([]byte(payload), &records); err != nil {
		return nil, fmt.Errorf("failed to parse drop payload: %w", err)
	}

	for _, r := range records {
		if r.ItemDefID == "" {
			continue
		}
		return r.toDrop(), nil
	}
	return nil, nil
}

func (r record) toDrop() *Drop {
	return &Drop{
		AccountID:      string(r.AccountID),
		AppID:          uint32(r.AppID),
		ItemID:         string(r.ItemID),
		OriginalItemID: string(r.OriginalItemID),
		Quantity:       int(r.Quantity),
		ItemDefID:      string(r.ItemDefID),
		Acquired:       parseTimestamp(r.Acquired),
		State:          string(r.State),
		Origin:         r.Origin,
		StateChanged:   parseTimestamp(r.StateChangedTimestamp),
	}
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(TimestampLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexInt accepts a JSON number or a numeric string.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	s := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid integer %q: %w", s, err)
	}
	*f = flexInt(n)
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/jpalmerr/itemcollector"
)

// demoSession is an always-connected session that grants a drop with a
// fixed probability.
type demoSession struct {
	name       string
	dropChance float64
	nextItemID atomic.Uint64
}

func newDemoSession(name string, dropChance float64) *demoSession {
	s := &demoSession{name: name, dropChance: dropChance}
	s.nextItemID.Store(1000)
	return s
}

func (s *demoSession) Name() string      { return s.name }
func (s *demoSession) IsConnected() bool { return true }
func (s *demoSession) SteamID() uint64   { return 76561197960265728 }
func (s *demoSession) CanIdle() bool     { return true }
func (s *demoSession) IsPaused() bool    { return true }
func (s *demoSession) NowFarming() bool  { return false }

func (s *demoSession) Send(_ context.Context, _ itemcollector.GamesPlayed) error {
	return nil
}

func (s *demoSession) Inventory() (itemcollector.InventoryService, error) {
	return s, nil
}

func (s *demoSession) ConsumePlaytime(_ context.Context, appID, itemDefID uint32) (itemcollector.ConsumePlaytimeResponse, error) {
	if rand.Float64() >= s.dropChance {
		return itemcollector.ConsumePlaytimeResponse{ItemJSON: "[]"}, nil
	}

	id := strconv.FormatUint(s.nextItemID.Add(1), 10)
	records, err := json.Marshal([]map[string]any{{
		"itemid":    id,
		"appid":     appID,
		"itemdefid": strconv.FormatUint(uint64(itemDefID), 10),
		"quantity":  1,
		"acquired":  time.Now().UTC().Format("20060102T150405Z"),
	}})
	if err != nil {
		return itemcollector.ConsumePlaytimeResponse{}, err
	}
	return itemcollector.ConsumePlaytimeResponse{ItemJSON: string(records)}, nil
}

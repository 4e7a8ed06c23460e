// Standalone mock session gateway for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockgateway --sessions bot1,bot2
//
// Then in another terminal:
//
//	go run ./cmd/itemcollector serve -c example/config.yaml
//	go run ./cmd/itemcollector start all
//
// Every session starts connected, paused and able to idle. Flip a flag with:
//
//	curl -X POST 'localhost:9000/admin/sessions/bot1?farming=true'
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const acquiredLayout = "20060102T150405Z"

type sessionState struct {
	Name      string `json:"name"`
	SteamID   uint64 `json:"steam_id"`
	Connected bool   `json:"connected"`
	CanIdle   bool   `json:"can_idle"`
	Paused    bool   `json:"paused"`
	Farming   bool   `json:"farming"`

	playing []uint32
}

type mockGateway struct {
	apiKey     string
	dropChance float64
	logger     *slog.Logger

	mu       sync.Mutex
	sessions map[string]*sessionState
}

func newMockGateway(names []string, apiKey string, dropChance float64, logger *slog.Logger) *mockGateway {
	g := &mockGateway{
		apiKey:     apiKey,
		dropChance: dropChance,
		logger:     logger,
		sessions:   make(map[string]*sessionState, len(names)),
	}
	for i, name := range names {
		g.sessions[name] = &sessionState{
			Name:      name,
			SteamID:   76561197960265728 + uint64(i) + 1,
			Connected: true,
			CanIdle:   true,
			Paused:    true,
		}
	}
	return g
}

func (g *mockGateway) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sessions", g.handleList)
	mux.HandleFunc("POST /sessions/{name}/games-played", g.handleGamesPlayed)
	mux.HandleFunc("POST /sessions/{name}/inventory/consume-playtime", g.handleConsumePlaytime)
	mux.HandleFunc("POST /admin/sessions/{name}", g.handleAdmin)
	return g.auth(mux)
}

func (g *mockGateway) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.apiKey != "" && !strings.HasPrefix(r.URL.Path, "/admin/") &&
			r.Header.Get("Authorization") != "Bearer "+g.apiKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *mockGateway) handleList(w http.ResponseWriter, _ *http.Request) {
	g.mu.Lock()
	list := make([]sessionState, 0, len(g.sessions))
	for _, s := range g.sessions {
		list = append(list, *s)
	}
	g.mu.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	writeJSON(w, list)
}

func (g *mockGateway) handleGamesPlayed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SteamID uint64   `json:"steam_id"`
		AppIDs  []uint32 `json:"app_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	g.mu.Lock()
	s, ok := g.sessions[r.PathValue("name")]
	if ok {
		s.playing = req.AppIDs
	}
	g.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	g.logger.Info("games played", "session", s.Name, "app_ids", req.AppIDs)
	w.WriteHeader(http.StatusNoContent)
}

func (g *mockGateway) handleConsumePlaytime(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AppID     uint32 `json:"appid"`
		ItemDefID uint32 `json:"itemdefid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	g.mu.Lock()
	s, ok := g.sessions[r.PathValue("name")]
	connected := ok && s.Connected
	g.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	if !connected {
		http.Error(w, "session offline", http.StatusServiceUnavailable)
		return
	}

	if rand.Float64() >= g.dropChance {
		writeJSON(w, map[string]string{"item_json": "[]"})
		return
	}

	now := time.Now().UTC().Format(acquiredLayout)
	itemID := strconv.FormatUint(uint64(uuid.New().ID()), 10)
	records, _ := json.Marshal([]map[string]any{{
		"accountid":               strconv.FormatUint(s.SteamID, 10),
		"itemid":                  itemID,
		"originalitemid":          itemID,
		"quantity":                1,
		"itemdefid":               strconv.FormatUint(uint64(req.ItemDefID), 10),
		"appid":                   req.AppID,
		"acquired":                now,
		"state":                   "",
		"origin":                  "playtime",
		"state_changed_timestamp": now,
	}})

	g.logger.Info("drop granted", "session", s.Name, "app_id", req.AppID, "item_def_id", req.ItemDefID)
	writeJSON(w, map[string]string{"item_json": string(records)})
}

// handleAdmin flips session flags from query parameters, e.g.
// ?farming=true&connected=false.
func (g *mockGateway) handleAdmin(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[r.PathValue("name")]
	if !ok {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	for key, field := range map[string]*bool{
		"connected": &s.Connected,
		"can_idle":  &s.CanIdle,
		"paused":    &s.Paused,
		"farming":   &s.Farming,
	} {
		if v := q.Get(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				http.Error(w, fmt.Sprintf("%s: %v", key, err), http.StatusBadRequest)
				return
			}
			*field = b
		}
	}

	g.logger.Info("session updated", "session", s.Name,
		"connected", s.Connected, "can_idle", s.CanIdle, "paused", s.Paused, "farming", s.Farming)
	writeJSON(w, s)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func main() {
	cmd := &cobra.Command{
		Use:   "mockgateway",
		Short: "Serve a fake session gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			names, _ := cmd.Flags().GetStringSlice("sessions")
			apiKey, _ := cmd.Flags().GetString("api-key")
			chance, _ := cmd.Flags().GetFloat64("drop-chance")

			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			g := newMockGateway(names, apiKey, chance, logger)

			fmt.Printf("Mock gateway starting on %s with sessions %v\n", addr, names)
			fmt.Println("Press Ctrl+C to stop")
			fmt.Println()

			return http.ListenAndServe(addr, g.handler())
		},
	}
	cmd.Flags().String("addr", ":9000", "listen address")
	cmd.Flags().StringSlice("sessions", []string{"bot1", "bot2"}, "session names")
	cmd.Flags().String("api-key", "", "required bearer token (empty disables auth)")
	cmd.Flags().Float64("drop-chance", 0.3, "probability that a check grants a drop")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

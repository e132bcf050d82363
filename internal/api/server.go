// Package api provides the HTTP API over a running session.
// GET endpoints are public and read-only. Player actions need a player JWT
// and only succeed during that player's turn. Issuing tokens and taking
// snapshots need the admin bearer key.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gempireio/conquest/internal/engine"
	"github.com/gempireio/conquest/internal/persistence"
	"github.com/gempireio/conquest/internal/world"
)

// Server serves the session over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Mu       *sync.Mutex       // Shared with the scheduler
	Sched    *engine.Scheduler // Nil disables end-turn
	DB       *persistence.DB   // Nil disables snapshots
	Addr     string
	AdminKey string // Bearer token for admin endpoints. Empty = disabled.
	Tokens   *Tokens
	Limiter  *RateLimiter // Applied to player actions; nil = unlimited

	hub *Hub
	srv *http.Server
}

// New creates a server for sim and subscribes its event stream. Call during
// setup, before the scheduler runs.
func New(sim *engine.Simulation, mu *sync.Mutex) *Server {
	s := &Server{Sim: sim, Mu: mu, hub: NewHub()}
	sim.OnEvent(s.hub.Broadcast)
	return s
}

// Handler builds the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/map", s.handleMap)
	mux.HandleFunc("GET /api/v1/tiles", s.handleTiles)
	mux.HandleFunc("GET /api/v1/tile/{id}", s.handleTile)
	mux.HandleFunc("GET /api/v1/players", s.handlePlayers)
	mux.HandleFunc("GET /api/v1/player/{id}", s.handlePlayer)
	mux.HandleFunc("GET /api/v1/overlay/{kind}", s.handleOverlay)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.HandleFunc("GET /api/v1/stream", s.handleStream)

	mux.HandleFunc("POST /api/v1/token", s.adminOnly(s.handleToken))
	mux.HandleFunc("POST /api/v1/snapshot", s.adminOnly(s.handleSnapshot))

	mux.HandleFunc("POST /api/v1/move", s.action(s.handleMove))
	mux.HandleFunc("POST /api/v1/attack", s.action(s.handleAttack))
	mux.HandleFunc("POST /api/v1/select", s.action(s.handleSelect))
	mux.HandleFunc("POST /api/v1/end-turn", s.action(s.handleEndTurn))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", s.Addr,
		"admin_auth", s.AdminKey != "", "player_tokens", s.Tokens != nil && s.Tokens.Enabled())

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops the listener and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.Limiter != nil {
		s.Limiter.Stop()
	}
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// adminOnly requires the admin bearer key.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no GEMPIRE_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if bearerToken(r) != s.AdminKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

type actionHandler func(w http.ResponseWriter, r *http.Request, claims *Claims)

// action authenticates a player token and applies the rate limit.
func (s *Server) action(next actionHandler) http.HandlerFunc {
	h := func(w http.ResponseWriter, r *http.Request) {
		if s.Tokens == nil {
			http.Error(w, "player actions disabled", http.StatusForbidden)
			return
		}
		claims, err := s.Tokens.Parse(bearerToken(r))
		if err != nil {
			slog.Debug("rejected player token", "error", err, "remote", r.RemoteAddr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r, claims)
	}
	if s.Limiter != nil {
		return RateLimitMiddleware(s.Limiter, h)
	}
	return h
}

// ownTurn returns the open turn if it belongs to the claimed player. Must
// be called with Mu held.
func (s *Server) ownTurn(w http.ResponseWriter, claims *Claims) *engine.Turn {
	turn := s.Sim.ActiveTurn()
	if turn == nil || turn.Player().ID != claims.Player {
		http.Error(w, "not your turn", http.StatusConflict)
		return nil
	}
	return turn
}

// parseTile validates a client-supplied tile id.
func (s *Server) parseTile(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("tile id %q is not a number", raw)
	}
	if !s.Sim.Map.Valid(id) {
		return 0, fmt.Errorf("tile id %d out of range [0, %d]", id, s.Sim.Map.MaxTileID)
	}
	return id, nil
}

func (s *Server) checkTiles(w http.ResponseWriter, ids ...int) bool {
	for _, id := range ids {
		if !s.Sim.Map.Valid(id) {
			http.Error(w, fmt.Sprintf("tile id %d out of range [0, %d]", id, s.Sim.Map.MaxTileID), http.StatusBadRequest)
			return false
		}
	}
	return true
}

// viewer reads the optional viewer query parameter. Must be called with Mu
// held.
func (s *Server) viewer(r *http.Request) (*engine.Player, error) {
	raw := r.URL.Query().Get("viewer")
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > engine.MaxPlayers || s.Sim.Player(engine.PlayerID(n)) == nil {
		return nil, fmt.Errorf("viewer %q: %w", raw, engine.ErrUnknownPlayer)
	}
	return s.Sim.Player(engine.PlayerID(n)), nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	status := map[string]any{
		"name":      "Gempire",
		"session":   s.Sim.ID,
		"round":     s.Sim.Round,
		"turns":     s.Sim.Turns,
		"layers":    s.Sim.Map.Layers,
		"tiles":     s.Sim.Map.TileCount(),
		"players":   len(s.Sim.Players),
		"stats":     s.Sim.RefreshStats(),
		"summary":   s.Sim.Summary(),
		"streaming": s.hub.Len(),
	}
	if turn := s.Sim.ActiveTurn(); turn != nil {
		status["active_player"] = turn.Player().ID
		status["turn_progress"] = turn.Player().TurnProgress()
	}
	if s.Sched != nil {
		status["current_player"] = s.Sched.Current()
	}
	writeJSON(w, status)
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	m := s.Sim.Map
	writeJSON(w, map[string]any{
		"layers":      m.Layers,
		"max_tile_id": m.MaxTileID,
		"sea_level":   m.SeaLevel,
		"seed":        m.Seed,
		"elevations":  ints(m.Elevations),
		"land_cover":  ints(m.LandCover),
		"names":       m.Names,
	})
}

// handleTiles returns the dynamic per-tile state. With ?viewer= owners and
// unit counts under the viewer's fog are zeroed.
func (s *Server) handleTiles(w http.ResponseWriter, r *http.Request) {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	viewer, err := s.viewer(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	owners := s.Sim.TileDisplay(viewer)
	n := len(owners)
	civs := make([]int, n)
	soldiers := make([]int, n)
	for id, owner := range owners {
		if p := s.Sim.Player(owner); p != nil {
			civs[id] = int(p.Civs[id])
			soldiers[id] = int(p.Soldiers[id])
		}
	}

	resp := map[string]any{
		"owners":   ints(owners),
		"civs":     civs,
		"soldiers": soldiers,
	}
	if viewer != nil {
		resp["viewer"] = viewer.ID
		resp["influence"] = ints(viewer.Influence)
		resp["fog"] = ints(viewer.FogOfWar)
	} else {
		resp["influence"] = ints(s.Sim.AllInfluence())
	}
	writeJSON(w, resp)
}

func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	id, err := s.parseTile(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.Mu.Lock()
	defer s.Mu.Unlock()

	viewer, err := s.viewer(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	m := s.Sim.Map
	detail := map[string]any{
		"id":        id,
		"name":      m.Name(id),
		"coord":     m.CoordOf(id),
		"layer":     m.LayerOf(id),
		"corner":    m.IsCorner(id),
		"neighbors": m.NeighborsOf(id),
		"elevation": m.Elevations[id],
		"ocean":     m.IsOcean(id),
		"cover":     world.CoverName(m.LandCover[id]),
		"position":  s.Sim.Layout.CenterOf(id),
	}
	visible := viewer == nil || viewer.FogOfWar[id] < engine.RevealThreshold
	if owner := s.Sim.OwnerOf(id); owner != nil && visible {
		detail["owner"] = owner.ID
		detail["owner_name"] = owner.Name
		detail["civs"] = owner.Civs[id]
		detail["soldiers"] = owner.Soldiers[id]
		detail["buildings"] = owner.Buildings[id]
		detail["influence"] = owner.Influence[id]
	}
	if viewer != nil {
		detail["fog"] = viewer.FogOfWar[id]
	}
	writeJSON(w, detail)
}

func (s *Server) handlePlayers(w http.ResponseWriter, r *http.Request) {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	out := make([]engine.PlayerSummary, 0, len(s.Sim.Players))
	for _, p := range s.Sim.Players {
		out = append(out, p.Summary())
	}
	writeJSON(w, out)
}

// handlePlayer adds the revealed bounds used for camera framing.
func (s *Server) handlePlayer(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || n < 1 || n > engine.MaxPlayers {
		http.Error(w, "invalid player id", http.StatusBadRequest)
		return
	}

	s.Mu.Lock()
	defer s.Mu.Unlock()

	p := s.Sim.Player(engine.PlayerID(n))
	if p == nil {
		http.Error(w, "player not found", http.StatusNotFound)
		return
	}
	resp := map[string]any{
		"player": p.Summary(),
		"groups": p.Groups(),
	}
	if lo, hi, ok := s.Sim.RevealedBounds(p); ok {
		resp["revealed_bounds"] = map[string]world.Point{"min": lo, "max": hi}
	}
	writeJSON(w, resp)
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	kind, err := engine.ParseOverlayKind(r.PathValue("kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var player engine.PlayerID
	if raw := r.URL.Query().Get("player"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > engine.MaxPlayers {
			http.Error(w, "invalid player id", http.StatusBadRequest)
			return
		}
		player = engine.PlayerID(n)
	}

	s.Mu.Lock()
	defer s.Mu.Unlock()

	o, err := s.Sim.Overlay(kind, player)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{
		"kind":   o.Name,
		"player": o.Player,
		"values": ints(o.Values),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	category := r.URL.Query().Get("category")

	s.Mu.Lock()
	events := s.Sim.RecentEvents(0)
	s.Mu.Unlock()

	if category != "" {
		var filtered []engine.Event
		for _, e := range events {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	start := 0
	if len(events) > limit {
		start = len(events) - limit
	}
	writeJSON(w, events[start:])
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Player int `json:"player"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if s.Tokens == nil || !s.Tokens.Enabled() {
		http.Error(w, "player tokens disabled (no GEMPIRE_JWT_SECRET set)", http.StatusForbidden)
		return
	}
	if req.Player < 1 || req.Player > engine.MaxPlayers {
		http.Error(w, "invalid player id", http.StatusBadRequest)
		return
	}

	s.Mu.Lock()
	p := s.Sim.Player(engine.PlayerID(req.Player))
	s.Mu.Unlock()
	if p == nil {
		http.Error(w, "player not found", http.StatusNotFound)
		return
	}

	token, exp, err := s.Tokens.Issue(p)
	if err != nil {
		slog.Error("token issue failed", "player", p.ID, "error", err)
		http.Error(w, "token issue failed", http.StatusInternalServerError)
		return
	}
	slog.Info("player token issued", "player", p.ID, "expires", exp)
	writeJSON(w, map[string]any{
		"player":     p.ID,
		"token":      token,
		"expires_at": exp.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	s.Mu.Lock()
	defer s.Mu.Unlock()
	if s.Sim.ActiveTurn() != nil {
		http.Error(w, "turn in progress, snapshot at the end of the round", http.StatusConflict)
		return
	}
	if err := s.DB.SaveSimulation(s.Sim); err != nil {
		slog.Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"round":   s.Sim.Round,
		"message": "snapshot saved",
	})
}

type unitsRequest struct {
	From     int `json:"from"`
	To       int `json:"to"`
	Civs     int `json:"civs"`
	Soldiers int `json:"soldiers"`
}

func (s *Server) decodeUnits(w http.ResponseWriter, r *http.Request) (unitsRequest, bool) {
	var req unitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return req, false
	}
	if req.Civs < 0 || req.Soldiers < 0 {
		http.Error(w, "unit counts must not be negative", http.StatusBadRequest)
		return req, false
	}
	return req, s.checkTiles(w, req.From, req.To)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request, claims *Claims) {
	req, ok := s.decodeUnits(w, r)
	if !ok {
		return
	}

	s.Mu.Lock()
	defer s.Mu.Unlock()
	turn := s.ownTurn(w, claims)
	if turn == nil {
		return
	}
	g := turn.MoveUnits(req.From, req.To, req.Civs, req.Soldiers)
	if g == nil {
		writeJSON(w, map[string]any{"moved": false})
		return
	}
	writeJSON(w, map[string]any{"moved": true, "group": g})
}

func (s *Server) handleAttack(w http.ResponseWriter, r *http.Request, claims *Claims) {
	req, ok := s.decodeUnits(w, r)
	if !ok {
		return
	}

	s.Mu.Lock()
	defer s.Mu.Unlock()
	turn := s.ownTurn(w, claims)
	if turn == nil {
		return
	}
	writeJSON(w, turn.Attack(req.From, req.To, req.Civs, req.Soldiers))
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request, claims *Claims) {
	var req struct {
		Tile     *int     `json:"tile"`
		X        *float64 `json:"x"`
		Y        *float64 `json:"y"`
		Toggle   bool     `json:"toggle"`
		Deselect bool     `json:"deselect"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Tile != nil && !s.checkTiles(w, *req.Tile) {
		return
	}
	if !req.Deselect && req.Tile == nil && (req.X == nil || req.Y == nil) {
		http.Error(w, "tile or x and y required", http.StatusBadRequest)
		return
	}

	s.Mu.Lock()
	defer s.Mu.Unlock()
	turn := s.ownTurn(w, claims)
	if turn == nil {
		return
	}

	var tile int
	var act engine.SelectAction
	switch {
	case req.Deselect:
		turn.Deselect()
		tile, act = -1, engine.ActionDeselect
	case req.Tile != nil:
		tile, act = *req.Tile, turn.Select(*req.Tile, req.Toggle)
	default:
		tile, act = turn.SelectAt(world.Point{X: *req.X, Y: *req.Y}, req.Toggle)
	}
	writeJSON(w, map[string]any{
		"tile":     tile,
		"action":   act,
		"selected": s.Sim.Selected(),
	})
}

func (s *Server) handleEndTurn(w http.ResponseWriter, r *http.Request, claims *Claims) {
	if s.Sched == nil {
		http.Error(w, "no scheduler running", http.StatusServiceUnavailable)
		return
	}

	s.Mu.Lock()
	turn := s.ownTurn(w, claims)
	if turn != nil {
		s.Sched.Advance(turn.Number())
	}
	s.Mu.Unlock()
	if turn == nil {
		return
	}
	slog.Debug("turn ended early", "player", claims.Player)
	writeJSON(w, map[string]any{"ended": true, "turn": turn.Number()})
}

// ints widens a byte-sized buffer so it encodes as a JSON array.
func ints[T ~uint8 | ~uint16](xs []T) []int {
	out := make([]int, len(xs))
	for i, x := range xs {
		out[i] = int(x)
	}
	return out
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Debug("write response", "error", err)
	}
}

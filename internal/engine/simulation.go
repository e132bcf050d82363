// Package engine runs the territory simulation: players, per-tile unit and
// visibility state, unit movement, combat and growth, driven one player turn
// at a time.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/gempireio/conquest/internal/entropy"
	"github.com/gempireio/conquest/internal/world"
)

// ErrUnknownPlayer is returned when a player id does not name a player.
var ErrUnknownPlayer = errors.New("unknown player")

// maxEvents bounds the in-memory event log.
const maxEvents = 1000

// Rules are the gameplay parameters fixed at session start.
type Rules struct {
	StartCivs     int   // Civs placed on each player's start tile
	StartSoldiers int   // Soldiers placed on each player's start tile
	StartTiles    int   // Tiles each player holds after seeding, start tile included
	FogDarkening  uint8 // Fog added per turn where a player has no influence
}

// DefaultRules returns the standard session rules.
func DefaultRules() Rules {
	return Rules{
		StartCivs:     100,
		StartSoldiers: 20,
		StartTiles:    7,
		FogDarkening:  12,
	}
}

// Simulation holds the complete session state.
type Simulation struct {
	ID      uuid.UUID
	Map     *world.Map
	Layout  *world.Layout // Unit-scale centers for position lookups
	Rules   Rules
	Players []*Player // Index i holds PlayerID i+1

	Round int // Completed rounds
	Turns int // Turns started, across all players

	Events []Event
	Stats  SimStats

	rng       entropy.Source
	owner     []PlayerID
	allOwned  map[int]struct{}
	active    *Turn
	selected  int
	listeners []func(Event)
}

// Event is a notable occurrence in the session.
type Event struct {
	Round       int       `json:"round"`
	Turn        int       `json:"turn"`
	Player      PlayerID  `json:"player"`
	Description string    `json:"description"`
	Category    string    `json:"category"` // "capture", "battle", "move", "growth", "setup", "turn"
	Time        time.Time `json:"time"`
}

// SimStats tracks aggregate session statistics.
type SimStats struct {
	TotalCivs     int `json:"total_civs"`
	TotalSoldiers int `json:"total_soldiers"`
	OwnedTiles    int `json:"owned_tiles"`
	PlayersAlive  int `json:"players_alive"`
	UnitGroups    int `json:"unit_groups"`
	Battles       int `json:"battles"`
	Captures      int `json:"captures"`
}

// NewSimulation creates a session over m with no players. All gameplay
// randomness is drawn from rng.
func NewSimulation(m *world.Map, rules Rules, rng entropy.Source) *Simulation {
	return &Simulation{
		ID:       uuid.New(),
		Map:      m,
		Layout:   world.NewLayout(m.Grid, 1, world.Point{}),
		Rules:    rules,
		rng:      rng,
		owner:    make([]PlayerID, m.TileCount()),
		allOwned: make(map[int]struct{}),
		selected: -1,
	}
}

// AddPlayer registers a new player and returns it.
func (s *Simulation) AddPlayer(name, color string, human bool) *Player {
	if len(s.Players) >= MaxPlayers {
		panic(fmt.Sprintf("engine: cannot add more than %d players", MaxPlayers))
	}
	id := PlayerID(len(s.Players) + 1)
	if color == "" {
		color = ColorFor(id)
	}
	p := newPlayer(id, name, color, human, s.Map.TileCount())
	s.Players = append(s.Players, p)
	return p
}

// Player returns the player with the given id, or nil.
func (s *Simulation) Player(id PlayerID) *Player {
	if id == 0 || int(id) > len(s.Players) {
		return nil
	}
	return s.Players[id-1]
}

// OnEvent registers a listener called synchronously for every new event.
func (s *Simulation) OnEvent(fn func(Event)) {
	s.listeners = append(s.listeners, fn)
}

func (s *Simulation) emit(player PlayerID, category, format string, args ...any) {
	e := Event{
		Round:       s.Round,
		Turn:        s.Turns,
		Player:      player,
		Description: fmt.Sprintf(format, args...),
		Category:    category,
		Time:        time.Now(),
	}
	s.Events = append(s.Events, e)
	if len(s.Events) > maxEvents {
		s.Events = s.Events[len(s.Events)-maxEvents:]
	}
	slog.Debug("event", "category", category, "player", player, "description", e.Description)
	for _, fn := range s.listeners {
		fn(e)
	}
}

// RecentEvents returns up to n of the latest events, oldest first.
func (s *Simulation) RecentEvents(n int) []Event {
	if n <= 0 || n > len(s.Events) {
		n = len(s.Events)
	}
	out := make([]Event, n)
	copy(out, s.Events[len(s.Events)-n:])
	return out
}

// CompleteRound closes a round once every player has taken a turn.
func (s *Simulation) CompleteRound() {
	s.Round++
	s.updateStats()

	eventCounts := make(map[string]int)
	for _, e := range s.Events {
		if e.Round == s.Round-1 {
			eventCounts[e.Category]++
		}
	}

	slog.Info("round complete",
		"round", s.Round,
		"turns", s.Turns,
		"players_alive", s.Stats.PlayersAlive,
		"owned_tiles", humanize.Comma(int64(s.Stats.OwnedTiles)),
		"civs", humanize.Comma(int64(s.Stats.TotalCivs)),
		"soldiers", humanize.Comma(int64(s.Stats.TotalSoldiers)),
		"unit_groups", s.Stats.UnitGroups,
		"events_battle", eventCounts["battle"],
		"events_capture", eventCounts["capture"],
	)
}

// AlivePlayers counts the players still holding tiles or moving units.
func (s *Simulation) AlivePlayers() int {
	n := 0
	for _, p := range s.Players {
		if p.Alive() {
			n++
		}
	}
	return n
}

func (s *Simulation) updateStats() {
	var st SimStats
	st.Battles = s.Stats.Battles
	st.Captures = s.Stats.Captures
	for _, p := range s.Players {
		civs, soldiers := p.Totals()
		st.TotalCivs += civs
		st.TotalSoldiers += soldiers
		st.UnitGroups += len(p.groups)
	}
	st.PlayersAlive = s.AlivePlayers()
	st.OwnedTiles = len(s.allOwned)
	s.Stats = st
}

// RefreshStats recomputes the aggregate statistics.
func (s *Simulation) RefreshStats() SimStats {
	s.updateStats()
	return s.Stats
}

// ActiveTurn returns the open turn, or nil between turns.
func (s *Simulation) ActiveTurn() *Turn {
	return s.active
}

// Selected returns the selected tile, or -1.
func (s *Simulation) Selected() int {
	return s.selected
}

// Summary returns a one-line description of the session.
func (s *Simulation) Summary() string {
	s.updateStats()
	return fmt.Sprintf("round %d, %d/%d players alive, %s tiles owned, %s civs, %s soldiers",
		s.Round, s.Stats.PlayersAlive, len(s.Players),
		humanize.Comma(int64(s.Stats.OwnedTiles)),
		humanize.Comma(int64(s.Stats.TotalCivs)),
		humanize.Comma(int64(s.Stats.TotalSoldiers)))
}

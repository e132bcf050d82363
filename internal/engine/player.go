package engine

import (
	"slices"
)

// PlayerID identifies a player. 0 means "no player" in ownership arrays.
type PlayerID uint8

// MaxPlayers is the most players a session can hold.
const MaxPlayers = 255

// Player owns its per-tile unit arrays, its view of the map and the unit
// groups it has in transit.
type Player struct {
	ID        PlayerID `json:"id"`
	Name      string   `json:"name"`
	Color     string   `json:"color"`
	Human     bool     `json:"human"`
	StartTile int      `json:"start_tile"`

	// Per-tile state, indexed by tile id.
	Civs      []uint16 `json:"-"`
	Soldiers  []uint16 `json:"-"`
	Buildings []uint8  `json:"-"`
	Influence []uint8  `json:"-"`
	FogOfWar  []uint8  `json:"-"`

	// Resources.
	Gems  float64 `json:"gems"`
	Food  float64 `json:"food"`
	Metal float64 `json:"metal"`
	Stone float64 `json:"stone"`
	Wood  float64 `json:"wood"`

	// Metrics, both in [0, 1].
	Morale float64 `json:"morale"`
	Health float64 `json:"health"`

	owned        map[int]struct{}
	groups       []*UnitGroup
	turnProgress float64
}

func newPlayer(id PlayerID, name, color string, human bool, tiles int) *Player {
	fog := make([]uint8, tiles)
	for i := range fog {
		fog[i] = 255
	}
	return &Player{
		ID:        id,
		Name:      name,
		Color:     color,
		Human:     human,
		StartTile: -1,
		Civs:      make([]uint16, tiles),
		Soldiers:  make([]uint16, tiles),
		Buildings: make([]uint8, tiles),
		Influence: make([]uint8, tiles),
		FogOfWar:  fog,
		Morale:    0.5,
		Health:    1,
		owned:     make(map[int]struct{}),
	}
}

// Owns reports whether tile is in the player's owned set.
func (p *Player) Owns(tile int) bool {
	_, ok := p.owned[tile]
	return ok
}

// OwnedCount returns the number of owned tiles.
func (p *Player) OwnedCount() int {
	return len(p.owned)
}

// OwnedTiles returns the owned set in ascending order.
func (p *Player) OwnedTiles() []int {
	ids := make([]int, 0, len(p.owned))
	for id := range p.owned {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Groups returns the player's unit groups in transit.
func (p *Player) Groups() []*UnitGroup {
	return slices.Clone(p.groups)
}

// TurnProgress reports how far through its current turn the player is,
// from 0 at the start of a turn to 1 once the turn has ended.
func (p *Player) TurnProgress() float64 {
	return p.turnProgress
}

// RestoreTurnProgress sets the turn progress read back from a snapshot.
func (p *Player) RestoreTurnProgress(f float64) {
	p.turnProgress = min(max(f, 0), 1)
}

// Units returns civs+soldiers+buildings on tile.
func (p *Player) Units(tile int) int {
	return int(p.Civs[tile]) + int(p.Soldiers[tile]) + int(p.Buildings[tile])
}

// Totals returns the player's civs and soldiers on tiles and in transit.
func (p *Player) Totals() (civs, soldiers int) {
	for id := range p.owned {
		civs += int(p.Civs[id])
		soldiers += int(p.Soldiers[id])
	}
	for _, g := range p.groups {
		civs += g.Civs
		soldiers += g.Soldiers
	}
	return civs, soldiers
}

// Alive reports whether the player still holds tiles or has units moving.
func (p *Player) Alive() bool {
	return len(p.owned) > 0 || len(p.groups) > 0
}

// PlayerSummary is the public view of a player.
type PlayerSummary struct {
	ID         PlayerID `json:"id"`
	Name       string   `json:"name"`
	Color      string   `json:"color"`
	Human      bool     `json:"human"`
	Alive      bool     `json:"alive"`
	StartTile  int      `json:"start_tile"`
	OwnedTiles int      `json:"owned_tiles"`
	Civs       int      `json:"civs"`
	Soldiers   int      `json:"soldiers"`
	UnitGroups int      `json:"unit_groups"`
	Gems       float64  `json:"gems"`
	Food       float64  `json:"food"`
	Metal      float64  `json:"metal"`
	Stone      float64  `json:"stone"`
	Wood       float64  `json:"wood"`
	Morale     float64  `json:"morale"`
	Health     float64  `json:"health"`
}

// Summary returns the player's public metadata and totals.
func (p *Player) Summary() PlayerSummary {
	civs, soldiers := p.Totals()
	return PlayerSummary{
		ID:         p.ID,
		Name:       p.Name,
		Color:      p.Color,
		Human:      p.Human,
		Alive:      p.Alive(),
		StartTile:  p.StartTile,
		OwnedTiles: len(p.owned),
		Civs:       civs,
		Soldiers:   soldiers,
		UnitGroups: len(p.groups),
		Gems:       p.Gems,
		Food:       p.Food,
		Metal:      p.Metal,
		Stone:      p.Stone,
		Wood:       p.Wood,
		Morale:     p.Morale,
		Health:     p.Health,
	}
}

// Palette of player colors, cycled when there are more players than colors.
var playerColors = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8", "#f58231", "#911eb4",
	"#46f0f0", "#f032e6", "#bcf60c", "#fabebe", "#008080", "#e6beff",
	"#9a6324", "#fffac8", "#800000", "#aaffc3", "#808000", "#ffd8b1",
}

// ColorFor returns the palette color of a player id.
func ColorFor(id PlayerID) string {
	return playerColors[(int(id)-1+len(playerColors))%len(playerColors)]
}

package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gempireio/conquest/internal/world"
)

// ErrNoStartTile is returned when no free land tile can host a new player.
var ErrNoStartTile = errors.New("no free land tile for a start position")

// SeedPlayers adds n players, the first humans of them human, and gives
// each a start tile with the starting units plus a ring of garrisoned land
// around it. Start tiles are drawn within three quarters of the grid radius
// and kept apart from one another.
func (s *Simulation) SeedPlayers(n, humans int) error {
	if len(s.Players)+n > MaxPlayers {
		return fmt.Errorf("seed %d players: at most %d allowed", n, MaxPlayers)
	}
	names := world.GenerateNames(s.rng, n)
	radius := max(1, s.Map.Layers*3/4)
	spacing := max(2, radius/max(1, isqrt(n)))

	for i := 0; i < n; i++ {
		name := fmt.Sprintf("Player %d", len(s.Players)+1)
		if i < len(names) {
			name = names[i]
		}
		start, err := s.pickStart(radius, spacing)
		if err != nil {
			return fmt.Errorf("seed player %d: %w", i+1, err)
		}
		p := s.AddPlayer(name, "", i < humans)
		p.StartTile = start
		s.placeStart(p, start)
		slog.Info("player seeded", "player", p.ID, "name", p.Name, "human", p.Human, "start", start, "tiles", p.OwnedCount())
	}
	s.updateStats()
	return nil
}

// pickStart samples free land tiles, relaxing the spacing whenever a batch
// of samples finds nothing.
func (s *Simulation) pickStart(radius, spacing int) (int, error) {
	for ; spacing >= 0; spacing /= 2 {
		for attempt := 0; attempt < 200; attempt++ {
			tile := s.Map.RandomTileWithinRadius(s.rng, 0, radius)
			if s.validStart(tile, spacing) {
				return tile, nil
			}
		}
		if spacing == 0 {
			break
		}
	}
	// Last resort: the first free land tile.
	for _, tile := range s.Map.LandTiles() {
		if s.owner[tile] == 0 {
			return tile, nil
		}
	}
	return 0, ErrNoStartTile
}

func (s *Simulation) validStart(tile, spacing int) bool {
	if s.Map.IsOcean(tile) || s.owner[tile] != 0 {
		return false
	}
	for _, p := range s.Players {
		if p.StartTile >= 0 && s.Map.TileDistance(tile, p.StartTile) < spacing {
			return false
		}
	}
	for _, n := range s.Map.NeighborsOf(tile) {
		if s.owner[n] != 0 {
			return false
		}
	}
	return true
}

// placeStart puts the starting units on start and garrisons free land tiles
// outward from it until the player holds Rules.StartTiles tiles.
func (s *Simulation) placeStart(p *Player, start int) {
	s.credit(p, start, s.Rules.StartCivs, s.Rules.StartSoldiers)
	s.revealTile(p, start)

	garrison := max(1, s.Rules.StartCivs/10)
	visited := map[int]bool{start: true}
	queue := []int{start}
	for len(queue) > 0 && p.OwnedCount() < s.Rules.StartTiles {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range s.Map.NeighborsOf(cur) {
			if visited[n] || p.OwnedCount() >= s.Rules.StartTiles {
				continue
			}
			visited[n] = true
			if s.Map.IsOcean(n) || s.owner[n] != 0 {
				continue
			}
			s.credit(p, n, garrison, 1)
			s.revealTile(p, n)
			queue = append(queue, n)
		}
	}
	s.emit(p.ID, "setup", "%s founded %s", p.Name, s.Map.Name(start))
}

// AddUnits places civs and soldiers for player on tile outside of any turn.
// Used for setup and scenarios; fails on a tile held by another player.
func (s *Simulation) AddUnits(id PlayerID, tile, civs, soldiers int) error {
	p := s.Player(id)
	if p == nil {
		return fmt.Errorf("add units for player %d: %w", id, ErrUnknownPlayer)
	}
	s.Map.MustValid(tile)
	if owner := s.owner[tile]; owner != 0 && owner != id {
		return fmt.Errorf("add units to tile %d: held by player %d", tile, owner)
	}
	s.credit(p, tile, max(civs, 0), max(soldiers, 0))
	s.revealTile(p, tile)
	return nil
}

func isqrt(n int) int {
	r := 0
	for (r+1)*(r+1) <= n {
		r++
	}
	return r
}

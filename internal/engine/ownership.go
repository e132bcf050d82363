package engine

import (
	"fmt"
	"log/slog"
	"slices"
)

// updateOwnership derives whether p owns tile from its units there and keeps
// the player's set, the global set and the owner array in step. A tile held
// by another player is never claimed.
func (s *Simulation) updateOwnership(p *Player, tile int) {
	occupied := p.Units(tile) > 0
	current := s.owner[tile]

	switch {
	case occupied && current == 0:
		s.owner[tile] = p.ID
		p.owned[tile] = struct{}{}
		s.allOwned[tile] = struct{}{}
	case occupied && current != p.ID:
		slog.Error("ownership conflict", "tile", tile, "owner", current, "claimant", p.ID)
	case !occupied && current == p.ID:
		s.owner[tile] = 0
		delete(p.owned, tile)
		delete(s.allOwned, tile)
	}
	s.updateInfluence(p, tile)
}

// updateInfluence recomputes p's influence on tile from its units there.
func (s *Simulation) updateInfluence(p *Player, tile int) {
	v := int(p.Buildings[tile]) + int(p.Civs[tile])*2 + int(p.Soldiers[tile])*3
	p.Influence[tile] = uint8(min(v, 255))
}

// Owner returns the id of the player owning tile, or 0 when unowned.
func (s *Simulation) Owner(tile int) PlayerID {
	s.Map.MustValid(tile)
	return s.owner[tile]
}

// OwnerOf returns the player owning tile, or nil.
func (s *Simulation) OwnerOf(tile int) *Player {
	return s.Player(s.Owner(tile))
}

// Owners returns a copy of the owner array.
func (s *Simulation) Owners() []PlayerID {
	return slices.Clone(s.owner)
}

// AllOwnedTiles returns every owned tile in ascending order.
func (s *Simulation) AllOwnedTiles() []int {
	ids := make([]int, 0, len(s.allOwned))
	for id := range s.allOwned {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// RebuildOwnership re-derives every owned set, the owner array and all
// influence from the players' unit arrays. Used after a restore.
func (s *Simulation) RebuildOwnership() error {
	clear(s.owner)
	clear(s.allOwned)
	for _, p := range s.Players {
		clear(p.owned)
	}
	for _, p := range s.Players {
		for tile := range p.Civs {
			if p.Units(tile) == 0 {
				p.Influence[tile] = 0
				continue
			}
			if other := s.owner[tile]; other != 0 {
				return fmt.Errorf("tile %d held by players %d and %d", tile, other, p.ID)
			}
			s.updateOwnership(p, tile)
		}
	}
	return nil
}

// CheckInvariants verifies that ownership is exclusive and matches the
// unit arrays.
func (s *Simulation) CheckInvariants() error {
	seen := make(map[int]PlayerID)
	for _, p := range s.Players {
		for tile := range p.owned {
			if other, ok := seen[tile]; ok {
				return fmt.Errorf("tile %d owned by players %d and %d", tile, other, p.ID)
			}
			seen[tile] = p.ID
			if p.Units(tile) == 0 {
				return fmt.Errorf("player %d owns empty tile %d", p.ID, tile)
			}
		}
		for tile := range p.Civs {
			if p.Units(tile) > 0 && !p.Owns(tile) {
				return fmt.Errorf("player %d has units on unowned tile %d", p.ID, tile)
			}
		}
	}
	if len(seen) != len(s.allOwned) {
		return fmt.Errorf("global owned set has %d tiles, players own %d", len(s.allOwned), len(seen))
	}
	for tile, owner := range s.owner {
		if seen[tile] != owner {
			return fmt.Errorf("owner[%d]=%d, owned set says %d", tile, owner, seen[tile])
		}
	}
	return nil
}

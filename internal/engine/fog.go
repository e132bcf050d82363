package engine

import (
	"github.com/gempireio/conquest/internal/world"
)

// RevealThreshold is the fog value below which a tile counts as revealed.
const RevealThreshold = 250

// revealPass lightens samples random tiles within radius by factor.
type revealPass struct {
	radius  int
	samples int
	factor  float64
}

// Closer rings are sampled densely and damped hard; the outer ring only
// thins the fog a little.
var revealPasses = []revealPass{
	{radius: 1, samples: 8, factor: 0.2},
	{radius: 2, samples: 14, factor: 0.5},
	{radius: 4, samples: 30, factor: 0.8},
}

// revealTile clears p's fog on tile and partially lightens the tiles around
// it.
func (s *Simulation) revealTile(p *Player, tile int) {
	p.FogOfWar[tile] = 0
	for _, pass := range revealPasses {
		for i := 0; i < pass.samples; i++ {
			id := s.Map.RandomTileWithinRadius(s.rng, tile, pass.radius)
			p.FogOfWar[id] = uint8(float64(p.FogOfWar[id]) * pass.factor)
		}
	}
}

// DarkenFogOfWarEverywhere raises p's fog by intensity wherever p has no
// influence, then clears fog on influenced tiles and halves it once on every
// tile bordering them.
func (s *Simulation) DarkenFogOfWarEverywhere(p *Player, intensity uint8) {
	fog := p.FogOfWar
	for id, inf := range p.Influence {
		if inf == 0 {
			fog[id] = uint8(min(int(fog[id])+int(intensity), 255))
		}
	}
	edge := make([]bool, len(fog))
	for id, inf := range p.Influence {
		if inf == 0 {
			continue
		}
		fog[id] = 0
		for _, n := range s.Map.NeighborsOf(id) {
			edge[n] = true
		}
	}
	for id, ok := range edge {
		if ok {
			fog[id] /= 2
		}
	}
}

// RevealedTiles returns the tiles p currently sees.
func (s *Simulation) RevealedTiles(p *Player) []int {
	var ids []int
	for id, f := range p.FogOfWar {
		if f < RevealThreshold {
			ids = append(ids, id)
		}
	}
	return ids
}

// RevealedBounds returns the unit-scale bounding box of the tiles p sees,
// for camera framing. ok is false when p sees nothing.
func (s *Simulation) RevealedBounds(p *Player) (lo, hi world.Point, ok bool) {
	return s.Map.BoundsOf(s.RevealedTiles(p))
}

// TileDisplay returns, per tile, the owner visible to viewer: the true owner
// where the viewer sees the tile and 0 under fog. A nil viewer sees
// everything.
func (s *Simulation) TileDisplay(viewer *Player) []PlayerID {
	out := make([]PlayerID, len(s.owner))
	for id, owner := range s.owner {
		if viewer == nil || viewer.FogOfWar[id] < RevealThreshold {
			out[id] = owner
		}
	}
	return out
}

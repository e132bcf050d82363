// Population growth and resource collection, both run at the start of each
// of a player's turns.
package engine

import (
	"math"

	"github.com/gempireio/conquest/internal/world"
)

// Growth rates per turn.
const (
	civGrowthRate     = 0.01
	soldierGrowthRate = 0.005
)

// reproduce adds ceil(civs*1% + soldiers*0.5%) civs across p's tiles: half,
// rounded up, on the most populous tile and the rest on random tiles in
// proportion to how populated they are relative to it.
func (s *Simulation) reproduce(p *Player) int {
	tiles := p.OwnedTiles()
	if len(tiles) == 0 {
		return 0
	}

	var civs, soldiers int
	top, topUnits := tiles[0], -1
	for _, id := range tiles {
		civs += int(p.Civs[id])
		soldiers += int(p.Soldiers[id])
		if u := int(p.Civs[id]) + int(p.Soldiers[id]); u > topUnits {
			top, topUnits = id, u
		}
	}
	born := int(math.Ceil(float64(civs)*civGrowthRate + float64(soldiers)*soldierGrowthRate))
	if born == 0 {
		return 0
	}

	first := (born + 1) / 2
	p.Civs[top] = addSaturating(p.Civs[top], first)
	remaining := born - first

	for attempts := 0; remaining > 0 && attempts < born*8; attempts++ {
		id := tiles[s.rng.Intn(len(tiles))]
		units := int(p.Civs[id]) + int(p.Soldiers[id])
		if topUnits > 0 && s.rng.Float64() >= float64(units)/float64(topUnits) {
			continue
		}
		p.Civs[id] = addSaturating(p.Civs[id], 1)
		s.updateInfluence(p, id)
		remaining--
	}
	p.Civs[top] = addSaturating(p.Civs[top], remaining)
	s.updateInfluence(p, top)

	if born >= 10 {
		s.emit(p.ID, "growth", "%s grew by %d civs", p.Name, born)
	}
	return born
}

// Yield is what one civ produces on a tile per turn.
type Yield struct {
	Food, Wood, Stone, Metal, Gems float64
}

var coverYields = [...]Yield{
	world.CoverOcean:     {},
	world.CoverWetland:   {Food: 0.01},
	world.CoverGrassland: {Food: 0.02},
	world.CoverSavanna:   {Food: 0.015},
	world.CoverForest:    {Wood: 0.02, Food: 0.005},
	world.CoverJungle:    {Wood: 0.015, Food: 0.01},
	world.CoverDesert:    {Gems: 0.003},
	world.CoverRocky:     {Stone: 0.02, Metal: 0.005},
	world.CoverMountain:  {Metal: 0.01, Gems: 0.002},
}

// Food eaten per soldier per turn.
const soldierRation = 0.01

// collectResources gathers yields from p's tiles, feeds its soldiers and
// moves health up while fed and down while starving.
func (s *Simulation) collectResources(p *Player) {
	var soldiers int
	for _, id := range p.OwnedTiles() {
		civs := float64(p.Civs[id])
		soldiers += int(p.Soldiers[id])
		cover := s.Map.LandCover[id]
		if int(cover) >= len(coverYields) {
			continue
		}
		y := coverYields[cover]
		p.Food += y.Food * civs
		p.Wood += y.Wood * civs
		p.Stone += y.Stone * civs
		p.Metal += y.Metal * civs
		p.Gems += y.Gems * civs
	}

	p.Food -= float64(soldiers) * soldierRation
	if p.Food < 0 {
		p.Food = 0
		p.Health = math.Max(p.Health-0.05, 0)
	} else {
		p.Health = math.Min(p.Health+0.02, 1)
	}
}

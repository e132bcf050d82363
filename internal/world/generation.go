// World generation: spiral elevation fill, smoothing, ocean connectivity,
// then land cover from elevation bands and a simplex moisture field.
package world

import (
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/gempireio/conquest/internal/entropy"
)

// GenConfig holds world generation parameters.
type GenConfig struct {
	Layers   int   // Grid radius in rings
	SeaLevel uint8 // Elevations at or below this are ocean
	Seed     int64 // Random seed (0 = random)
}

// DefaultGenConfig returns the standard session size.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Layers:   100,
		SeaLevel: 35,
	}
}

// SmallTestConfig returns a tiny world for rapid iteration.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Layers:   12,
		SeaLevel: 35,
		Seed:     42,
	}
}

// Generate creates a complete map from cfg. The same seed always produces the
// same map.
func Generate(cfg GenConfig) *Map {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	cfg.Seed = seed
	return GenerateFrom(cfg, entropy.NewSeeded(seed))
}

// GenerateFrom creates a map drawing every random decision from rng.
// cfg.Seed only seeds the moisture noise.
func GenerateFrom(cfg GenConfig, rng entropy.Source) *Map {
	m := NewMap(cfg.Layers, cfg.SeaLevel)
	m.Seed = cfg.Seed

	m.generateElevations(rng)
	m.assignLandCover(opensimplex.NewNormalized(cfg.Seed))
	m.assignNames(rng)
	return m
}

// randInt returns an integer in [lo, hi].
func randInt(rng entropy.Source, lo, hi int) int {
	return lo + rng.Intn(hi-lo+1)
}

func (m *Map) generateElevations(rng entropy.Source) {
	elev := m.Elevations
	layers := m.Layers

	// Walk outward along the spiral, blending the running value with the
	// lowest-numbered neighbor pair and pulling it toward 0 at the edges.
	cur := float64(randInt(rng, 200, 255))
	elev[0] = uint8(cur)
	if m.MaxTileID >= 1 {
		elev[1] = uint8(cur)
	}
	edge := int(math.Round(float64(layers) * 0.9))
	for id := 2; id <= m.MaxTileID; id++ {
		layer := layerOf(id)
		low := minOf(m.NeighborsOf(id))
		cur = (cur+float64(elev[low])+float64(elev[low+1]))/3 + float64(randInt(rng, -47, 40))
		cur = math.Round(0.99*cur + 0.01*255*(1-float64(layer)/float64(layers)))
		cur = math.Min(math.Max(cur, 0), 255)
		elev[id] = uint8(cur)

		if layer >= edge {
			elev[id] = min(elev[id], belowSea(m.SeaLevel))
		}
	}

	m.SmoothElevations(rng, m.MaxTileID)

	for id := 1; id <= m.MaxTileID; id++ {
		neighbors := m.NeighborsOf(id)

		// Lone ocean tiles become land.
		if elev[id] <= m.SeaLevel {
			lowest := uint8(255)
			for _, n := range neighbors {
				lowest = min(lowest, elev[n])
			}
			if lowest > m.SeaLevel {
				elev[id] = lowest
			}
		}

		// Pull later tiles down so inland seas drain toward the edge.
		if elev[id] <= m.SeaLevel {
			for _, n := range neighbors {
				if n > id {
					elev[n] = uint8(0.45*float64(elev[n]) + 0.45*float64(elev[id]))
				}
			}
		}
	}
}

// SmoothElevations sets a random tile to the rounded mean of itself and its
// neighbors, iterations+1 times.
func (m *Map) SmoothElevations(rng entropy.Source, iterations int) {
	for i := 0; i <= iterations; i++ {
		id := rng.Intn(m.MaxTileID + 1)
		total := float64(m.Elevations[id])
		count := 1.0
		for _, n := range m.NeighborsOf(id) {
			total += float64(m.Elevations[n])
			count++
		}
		m.Elevations[id] = uint8(math.Round(total / count))
	}
}

func (m *Map) assignLandCover(moisture opensimplex.Noise) {
	span := 255 - float64(m.SeaLevel)
	for id := 0; id <= m.MaxTileID; id++ {
		e := m.Elevations[id]
		if e <= m.SeaLevel {
			m.LandCover[id] = CoverOcean
			continue
		}
		p := m.HexPosition(id)
		// One unit per tile step.
		x, y := p.X/(2*sqrt3), p.Y/(2*sqrt3)
		wet := octaveNoise(moisture, x, y, 3, 0.06, 0.5)
		height := (float64(e) - float64(m.SeaLevel)) / span
		m.LandCover[id] = deriveCover(height, wet)
	}
}

// deriveCover determines land cover from normalized height above sea level
// and moisture, both in [0, 1].
func deriveCover(height, wet float64) LandCover {
	switch {
	case height > 0.8:
		return CoverMountain
	case height > 0.6:
		if wet > 0.6 {
			return CoverForest
		}
		return CoverRocky
	case height < 0.15 && wet > 0.65:
		return CoverWetland
	case wet < 0.25:
		return CoverDesert
	case wet < 0.45:
		return CoverSavanna
	case wet < 0.6:
		return CoverGrassland
	case wet < 0.75:
		return CoverForest
	default:
		return CoverJungle
	}
}

var (
	namePrefixes = []string{
		"Iron", "Green", "Ash", "Stone", "Mill", "Cross", "Black",
		"Silver", "Red", "White", "Dark", "Bright", "High", "Low",
		"Old", "New", "Far", "Deep", "Long", "Broad", "Gold", "Frost",
		"Storm", "Thorn", "Elm", "Oak", "Pine", "Copper", "River",
	}
	nameSuffixes = []string{
		"haven", "ford", "hollow", "wick", "bridge", "gate", "keep",
		"stead", "wood", "field", "dale", "crest", "vale", "port",
		"town", "bury", "marsh", "well", "brook", "cliff", "moor",
		"ridge", "watch", "fall", "rest", "point", "reach", "helm",
	}
)

func (m *Map) assignNames(rng entropy.Source) {
	for id := 0; id <= m.MaxTileID; id++ {
		prefix := namePrefixes[rng.Intn(len(namePrefixes))]
		if m.Elevations[id] <= m.SeaLevel {
			m.Names[id] = prefix + " Sea"
			continue
		}
		m.Names[id] = prefix + nameSuffixes[rng.Intn(len(nameSuffixes))]
	}
}

// GenerateNames produces count distinct names by combining syllables.
// count must not exceed the number of combinations.
func GenerateNames(rng entropy.Source, count int) []string {
	if limit := len(namePrefixes) * len(nameSuffixes); count > limit {
		count = limit
	}
	used := make(map[string]bool)
	names := make([]string, 0, count)

	for len(names) < count {
		name := namePrefixes[rng.Intn(len(namePrefixes))] + nameSuffixes[rng.Intn(len(nameSuffixes))]
		if !used[name] {
			used[name] = true
			names = append(names, name)
		}
	}

	return names
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

func belowSea(sea uint8) uint8 {
	if sea == 0 {
		return 0
	}
	return sea - 1
}

func minOf(ids []int) int {
	low := ids[0]
	for _, id := range ids[1:] {
		low = min(low, id)
	}
	return low
}

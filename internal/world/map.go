package world

import (
	"fmt"
)

// LandCover classifies a tile's surface. Derived once at generation.
type LandCover uint8

const (
	CoverOcean LandCover = iota
	CoverWetland
	CoverGrassland
	CoverSavanna
	CoverForest
	CoverJungle
	CoverDesert
	CoverRocky
	CoverMountain
)

// Map holds the immutable terrain of a session: grid, elevations, land cover
// and tile names, all indexed by tile id.
type Map struct {
	*Grid
	SeaLevel   uint8       `json:"sea_level"`
	Seed       int64       `json:"seed"`
	Elevations []uint8     `json:"elevations"`
	LandCover  []LandCover `json:"land_cover"`
	Names      []string    `json:"-"`
}

// NewMap creates a flat, nameless map with every tile at elevation 0.
func NewMap(layers int, seaLevel uint8) *Map {
	g := NewGrid(layers)
	return &Map{
		Grid:       g,
		SeaLevel:   seaLevel,
		Elevations: make([]uint8, g.TileCount()),
		LandCover:  make([]LandCover, g.TileCount()),
		Names:      make([]string, g.TileCount()),
	}
}

// IsOcean reports whether id lies at or below sea level.
func (m *Map) IsOcean(id int) bool {
	m.MustValid(id)
	return m.Elevations[id] <= m.SeaLevel
}

// IsLand reports whether id lies above sea level.
func (m *Map) IsLand(id int) bool {
	return !m.IsOcean(id)
}

// Name returns the generated name of id, or a placeholder when names were not
// generated.
func (m *Map) Name(id int) string {
	m.MustValid(id)
	if id < len(m.Names) && m.Names[id] != "" {
		return m.Names[id]
	}
	return fmt.Sprintf("Tile %d", id)
}

// LandTiles returns every land tile id in ascending order.
func (m *Map) LandTiles() []int {
	var ids []int
	for id := 0; id <= m.MaxTileID; id++ {
		if m.Elevations[id] > m.SeaLevel {
			ids = append(ids, id)
		}
	}
	return ids
}

// CoverCounts returns a summary of land cover distribution.
func (m *Map) CoverCounts() map[LandCover]int {
	counts := make(map[LandCover]int)
	for _, c := range m.LandCover {
		counts[c]++
	}
	return counts
}

// String returns a summary of the map.
func (m *Map) String() string {
	return fmt.Sprintf("Map(layers=%d, tiles=%d, sea=%d)", m.Layers, m.TileCount(), m.SeaLevel)
}

// CoverName returns a human-readable name for a land cover type.
func CoverName(c LandCover) string {
	switch c {
	case CoverOcean:
		return "Ocean"
	case CoverWetland:
		return "Wetland"
	case CoverGrassland:
		return "Grassland"
	case CoverSavanna:
		return "Savanna"
	case CoverForest:
		return "Forest"
	case CoverJungle:
		return "Jungle"
	case CoverDesert:
		return "Desert"
	case CoverRocky:
		return "Rocky"
	case CoverMountain:
		return "Mountain"
	default:
		return "Unknown"
	}
}

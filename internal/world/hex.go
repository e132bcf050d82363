// Package world provides the spiral-numbered hex grid, terrain, and the
// one-time generation that seeds a session.
//
// Tile 0 is the center. Ring r holds ids 3r(r-1)+1 through 3r(r+1); each ring
// is walked as six straight sides starting just after its top-left corner.
// Neighbors are computed in closed form from the id, so no adjacency list is
// stored.
package world

import (
	"fmt"
	"math"

	"github.com/gempireio/conquest/internal/entropy"
)

// HexCoord represents a position on the hex grid using axial coordinates.
// The third cube coordinate s is derived: s = -q - r.
type HexCoord struct {
	Q int `json:"q"`
	R int `json:"r"`
}

// S returns the implicit third cube coordinate.
func (h HexCoord) S() int {
	return -h.Q - h.R
}

// Add returns h+o.
func (h HexCoord) Add(o HexCoord) HexCoord {
	return HexCoord{Q: h.Q + o.Q, R: h.R + o.R}
}

// Scale returns h*k.
func (h HexCoord) Scale(k int) HexCoord {
	return HexCoord{Q: h.Q * k, R: h.R * k}
}

// Direction names one of the six neighbors of a pointy-top hex.
type Direction uint8

const (
	UpLeft Direction = iota
	UpRight
	Right
	DownRight
	DownLeft
	Left
)

// Directions lists every direction in neighbor order.
var Directions = [6]Direction{UpLeft, UpRight, Right, DownRight, DownLeft, Left}

// Opposite returns the direction pointing back.
func (d Direction) Opposite() Direction {
	return (d + 3) % 6
}

func (d Direction) String() string {
	switch d {
	case UpLeft:
		return "up-left"
	case UpRight:
		return "up-right"
	case Right:
		return "right"
	case DownRight:
		return "down-right"
	case DownLeft:
		return "down-left"
	case Left:
		return "left"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// HexNeighborDirections defines the axial offset of each direction.
var HexNeighborDirections = [6]HexCoord{
	UpLeft:    {Q: 0, R: -1},
	UpRight:   {Q: 1, R: -1},
	Right:     {Q: 1, R: 0},
	DownRight: {Q: 0, R: 1},
	DownLeft:  {Q: -1, R: 1},
	Left:      {Q: -1, R: 0},
}

// Corner c of ring l sits at cornerCoords[c]*l; side c runs from corner c
// toward corner c+1 along sideCoords[c].
var (
	cornerCoords = [6]HexCoord{
		HexNeighborDirections[UpLeft],
		HexNeighborDirections[UpRight],
		HexNeighborDirections[Right],
		HexNeighborDirections[DownRight],
		HexNeighborDirections[DownLeft],
		HexNeighborDirections[Left],
	}
	sideCoords = [6]HexCoord{
		HexNeighborDirections[Right],
		HexNeighborDirections[DownRight],
		HexNeighborDirections[DownLeft],
		HexNeighborDirections[Left],
		HexNeighborDirections[UpLeft],
		HexNeighborDirections[UpRight],
	}
)

// Distance returns the hex distance between two coordinates.
func Distance(a, b HexCoord) int {
	dq := abs(a.Q - b.Q)
	dr := abs(a.R - b.R)
	ds := abs(a.S() - b.S())
	return max(dq, dr, ds)
}

// Grid is the address algebra of a spiral-numbered hex grid of fixed radius.
// Every method panics when handed an id outside [0, MaxTileID].
type Grid struct {
	Layers    int `json:"layers"`
	MaxTileID int `json:"max_tile_id"`
}

// NewGrid creates a grid with the given number of rings around the center.
func NewGrid(layers int) *Grid {
	if layers < 0 {
		panic(fmt.Sprintf("world: negative grid radius %d", layers))
	}
	return &Grid{Layers: layers, MaxTileID: MaxTileIDFor(layers)}
}

// MaxTileIDFor returns the id of the last tile of a grid with the given radius.
func MaxTileIDFor(layers int) int {
	return 3 * layers * (layers + 1)
}

// TileCount returns the number of tiles in the grid.
func (g *Grid) TileCount() int {
	return g.MaxTileID + 1
}

// Valid reports whether id addresses a tile of this grid.
func (g *Grid) Valid(id int) bool {
	return id >= 0 && id <= g.MaxTileID
}

// MustValid panics unless id addresses a tile of this grid.
func (g *Grid) MustValid(id int) {
	if id < 0 || id > g.MaxTileID {
		panic(fmt.Sprintf("world: tile id %d out of range [0, %d]", id, g.MaxTileID))
	}
}

func layerOf(id int) int {
	return int(math.Round(math.Sqrt(float64(id) / 3)))
}

func layerStart(layer int) int {
	return 3*layer*(layer-1) + 1
}

// LayerOf returns the ring containing id. The center is ring 0.
func (g *Grid) LayerOf(id int) int {
	g.MustValid(id)
	return layerOf(id)
}

// LayerStart returns the first id of the ring containing id.
func (g *Grid) LayerStart(id int) int {
	g.MustValid(id)
	if id == 0 {
		return 0
	}
	return layerStart(layerOf(id))
}

// PositionInLayer returns the offset of id from the first tile of its ring.
func (g *Grid) PositionInLayer(id int) int {
	return id - g.LayerStart(id)
}

// SectionOf returns which of the six sides of its ring id lies on.
func (g *Grid) SectionOf(id int) int {
	g.MustValid(id)
	if id == 0 {
		return 0
	}
	l := layerOf(id)
	return (id - layerStart(l)) / l
}

// CornerTile returns the id of the given corner (0 top-left, 1 top-right,
// 2 right, 3 bottom-right, 4 bottom-left, 5 left) of a ring.
func CornerTile(layer, corner int) int {
	return (3*layer - (2 - corner)) * layer
}

// IsCorner reports whether id sits on a corner of its ring.
func (g *Grid) IsCorner(id int) bool {
	g.MustValid(id)
	if id == 0 {
		return false
	}
	l := layerOf(id)
	return (id-layerStart(l)+1)%l == 0
}

// step returns the id one tile away in direction d. The result may lie
// beyond the grid boundary.
func step(id int, d Direction) int {
	if id == 0 {
		return int(d) + 1
	}
	l := layerOf(id)
	six := 6 * l
	pos := id - layerStart(l)
	section := pos / l
	corner := func(c int) int { return CornerTile(l, c) }

	switch d {
	case UpLeft:
		switch section {
		case 0, 1:
			return id + six + 1
		case 2:
			return id - 1
		case 3:
			return id - six + 2
		case 4:
			if id != corner(4) {
				return id - six + 2
			}
			return id + 1
		default:
			return id + 1
		}
	case UpRight:
		switch section {
		case 0:
			if id != corner(0) {
				return id + 1
			}
			return id + six + 2
		case 3:
			return id - 1
		case 4, 5:
			return id - six + 1
		default:
			return id + six + 2
		}
	case Right:
		switch section {
		case 0:
			if id == corner(0) {
				return id + 1
			}
			return id - six + 6
		case 1:
			if id == corner(1) {
				return id + six + 3
			}
			return id + 1
		case 2, 3:
			return id + six + 3
		case 4:
			return id - 1
		default:
			return id - six
		}
	case DownRight:
		switch section {
		case 0, 1:
			if pos == 0 {
				return id - 1
			}
			if id == corner(1) {
				return id + 1
			}
			return id - six + 5
		case 2:
			if id == corner(2) {
				return id + six + 4
			}
			return id + 1
		case 3, 4:
			return id + six + 4
		default:
			return id - 1
		}
	case DownLeft:
		switch section {
		case 0:
			if pos == 0 {
				return id + six - 1
			}
			return id - 1
		case 1, 2:
			if id == corner(2) {
				return id + 1
			}
			return id - six + 4
		case 3:
			if id == corner(3) {
				return id + six + 5
			}
			return id + 1
		default:
			return id + six + 5
		}
	case Left:
		switch section {
		case 0:
			return id + six
		case 1:
			return id - 1
		case 2, 3:
			if id == corner(3) {
				return id + 1
			}
			return id - six + 3
		case 4:
			if id == corner(4) {
				return id + six + 6
			}
			return id + 1
		default:
			return id + six + 6
		}
	}
	panic(fmt.Sprintf("world: invalid direction %d", d))
}

// Neighbor returns the tile next to id in direction d, or false when that
// tile would lie beyond the outermost ring.
func (g *Grid) Neighbor(id int, d Direction) (int, bool) {
	g.MustValid(id)
	n := step(id, d)
	if n > g.MaxTileID {
		return 0, false
	}
	return n, true
}

// UpLeftNeighbor returns the neighbor above and to the left of id.
func (g *Grid) UpLeftNeighbor(id int) (int, bool) { return g.Neighbor(id, UpLeft) }

// UpRightNeighbor returns the neighbor above and to the right of id.
func (g *Grid) UpRightNeighbor(id int) (int, bool) { return g.Neighbor(id, UpRight) }

// RightNeighbor returns the neighbor to the right of id.
func (g *Grid) RightNeighbor(id int) (int, bool) { return g.Neighbor(id, Right) }

// DownRightNeighbor returns the neighbor below and to the right of id.
func (g *Grid) DownRightNeighbor(id int) (int, bool) { return g.Neighbor(id, DownRight) }

// DownLeftNeighbor returns the neighbor below and to the left of id.
func (g *Grid) DownLeftNeighbor(id int) (int, bool) { return g.Neighbor(id, DownLeft) }

// LeftNeighbor returns the neighbor to the left of id.
func (g *Grid) LeftNeighbor(id int) (int, bool) { return g.Neighbor(id, Left) }

// NeighborsOf returns the valid neighbors of id in direction order
// (up-left, up-right, right, down-right, down-left, left).
func (g *Grid) NeighborsOf(id int) []int {
	g.MustValid(id)
	result := make([]int, 0, 6)
	for _, d := range Directions {
		if n := step(id, d); n <= g.MaxTileID {
			result = append(result, n)
		}
	}
	return result
}

// IsNeighbor reports whether a and b share an edge.
func (g *Grid) IsNeighbor(a, b int) bool {
	g.MustValid(b)
	for _, n := range g.NeighborsOf(a) {
		if n == b {
			return true
		}
	}
	return false
}

// coordOf maps any non-negative id, including ids past a grid's boundary,
// to its axial coordinate.
func coordOf(id int) HexCoord {
	if id == 0 {
		return HexCoord{}
	}
	l := layerOf(id)
	pos := id - layerStart(l)
	// Re-base so corner 0 (top-left) is offset 0.
	j := (pos - l + 1 + 6*l) % (6 * l)
	side, k := j/l, j%l
	return cornerCoords[side].Scale(l).Add(sideCoords[side].Scale(k))
}

// CoordOf returns the axial coordinate of id (ring, side, offset along side).
func (g *Grid) CoordOf(id int) HexCoord {
	g.MustValid(id)
	return coordOf(id)
}

// IDOf returns the tile at an axial coordinate, or false if it is off-grid.
func (g *Grid) IDOf(c HexCoord) (int, bool) {
	l := Distance(HexCoord{}, c)
	if l > g.Layers {
		return 0, false
	}
	if l == 0 {
		return 0, true
	}
	for side := 0; side < 6; side++ {
		delta := c.Add(cornerCoords[side].Scale(-l))
		dir := sideCoords[side]
		var k int
		if dir.Q != 0 {
			k = delta.Q / dir.Q
		} else {
			k = delta.R / dir.R
		}
		if k < 0 || k >= l || dir.Scale(k) != delta {
			continue
		}
		pos := (side*l + k + l - 1) % (6 * l)
		return layerStart(l) + pos, true
	}
	return 0, false
}

// TileDistance returns the number of ring steps between two tiles.
func (g *Grid) TileDistance(a, b int) int {
	return Distance(g.CoordOf(a), g.CoordOf(b))
}

// RandomTileWithinRadius returns a tile at most radius steps from center.
// Offsets are drawn uniformly from the full disk; draws that fall off the
// grid are redrawn a bounded number of times before settling on center.
func (g *Grid) RandomTileWithinRadius(rng entropy.Source, center, radius int) int {
	g.MustValid(center)
	if radius <= 0 {
		return center
	}
	origin := coordOf(center)
	disk := MaxTileIDFor(radius) + 1
	for attempt := 0; attempt < 16; attempt++ {
		offset := coordOf(rng.Intn(disk))
		if id, ok := g.IDOf(origin.Add(offset)); ok {
			return id
		}
	}
	return center
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

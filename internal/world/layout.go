package world

import (
	"math"
)

const sqrt3 = 1.7320508075688772

// Point is a Cartesian position in layout units. Y grows downward.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p+o.
func (p Point) Add(o Point) Point {
	return Point{X: p.X + o.X, Y: p.Y + o.Y}
}

// Mul returns p scaled by k.
func (p Point) Mul(k float64) Point {
	return Point{X: p.X * k, Y: p.Y * k}
}

// DistSq returns the squared distance between p and o.
func (p Point) DistSq(o Point) float64 {
	dx, dy := p.X-o.X, p.Y-o.Y
	return dx*dx + dy*dy
}

// Unit step vectors between adjacent pointy-top hex centers, in the order the
// spiral walk uses them.
var walkVectors = [6]Point{
	{X: 2 * sqrt3, Y: 0}, // right
	{X: sqrt3, Y: 3},     // down-right
	{X: -sqrt3, Y: 3},    // down-left
	{X: -2 * sqrt3, Y: 0},
	{X: -sqrt3, Y: -3}, // up-left
	{X: sqrt3, Y: -3},  // up-right
}

// HexPosition returns the unscaled center of id relative to the center tile.
// Closed form of the spiral walk: ring, side and offset along side.
func (g *Grid) HexPosition(id int) Point {
	c := g.CoordOf(id)
	return axialToPoint(c)
}

func axialToPoint(c HexCoord) Point {
	return Point{
		X: sqrt3 * float64(2*c.Q+c.R),
		Y: 3 * float64(c.R),
	}
}

// Layout is a table of tile centers for a given scale and origin.
// It is rebuilt whenever either changes.
type Layout struct {
	grid    *Grid
	scale   float64
	origin  Point
	centers []Point
}

// NewLayout builds the center table for g.
func NewLayout(g *Grid, scale float64, origin Point) *Layout {
	l := &Layout{grid: g, scale: scale, origin: origin}
	l.rebuild()
	return l
}

// Scale returns the current scale.
func (l *Layout) Scale() float64 { return l.scale }

// Origin returns the position of the center tile.
func (l *Layout) Origin() Point { return l.origin }

// SetScale changes the scale and rebuilds the table.
func (l *Layout) SetScale(scale float64) {
	if scale == l.scale {
		return
	}
	l.scale = scale
	l.rebuild()
}

// SetOrigin moves the center tile and rebuilds the table.
func (l *Layout) SetOrigin(origin Point) {
	if origin == l.origin {
		return
	}
	l.origin = origin
	l.rebuild()
}

// rebuild walks the spiral: each ring starts one up-left step outside the
// previous ring's first tile, then follows up-right for layer-1 tiles and
// the remaining five directions for layer tiles each.
func (l *Layout) rebuild() {
	g := l.grid
	var dirs [6]Point
	for i, v := range walkVectors {
		dirs[i] = v.Mul(l.scale)
	}
	if cap(l.centers) >= g.TileCount() {
		l.centers = l.centers[:g.TileCount()]
	} else {
		l.centers = make([]Point, g.TileCount())
	}

	cur := l.origin
	id := 0
	for layer := 0; layer <= g.Layers; layer++ {
		l.centers[id] = cur
		for i := 0; i < layer-1; i++ {
			cur = cur.Add(dirs[5])
			id++
			l.centers[id] = cur
		}
		for side := 0; side < 5; side++ {
			for i := 0; i < layer; i++ {
				cur = cur.Add(dirs[side])
				id++
				l.centers[id] = cur
			}
		}
		if layer < g.Layers {
			cur = cur.Add(dirs[4])
			id++
		}
	}
}

// CenterOf returns the center of id.
func (l *Layout) CenterOf(id int) Point {
	l.grid.MustValid(id)
	return l.centers[id]
}

// IDAtPosition returns the tile whose center is nearest p.
func (l *Layout) IDAtPosition(p Point) int {
	best, bestDist := 0, math.Inf(1)
	for id, c := range l.centers {
		if d := c.DistSq(p); d < bestDist {
			best, bestDist = id, d
		}
	}
	return best
}

// Bounds returns the bounding box of every tile center.
func (l *Layout) Bounds() (lo, hi Point) {
	return boundsOf(l.centers)
}

func boundsOf(points []Point) (lo, hi Point) {
	if len(points) == 0 {
		return Point{}, Point{}
	}
	lo, hi = points[0], points[0]
	for _, p := range points[1:] {
		lo.X = math.Min(lo.X, p.X)
		lo.Y = math.Min(lo.Y, p.Y)
		hi.X = math.Max(hi.X, p.X)
		hi.Y = math.Max(hi.Y, p.Y)
	}
	return lo, hi
}

// BoundsOf returns the bounding box of the unscaled positions of ids.
// ok is false when ids is empty.
func (g *Grid) BoundsOf(ids []int) (lo, hi Point, ok bool) {
	if len(ids) == 0 {
		return Point{}, Point{}, false
	}
	points := make([]Point, len(ids))
	for i, id := range ids {
		points[i] = g.HexPosition(id)
	}
	lo, hi = boundsOf(points)
	return lo, hi, true
}

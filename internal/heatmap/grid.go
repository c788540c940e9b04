// Package heatmap accumulates where motion recurs for presentation. It never
// feeds back into tracking.
package heatmap

import (
	"math"
	"sort"

	"github.com/ayusman/dockwatch/internal/vision"
)

// DefaultCellSize is the side of a grid cell in pixels.
const DefaultCellSize = 20

// Cell identifies a grid cell by column and row.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// CellCount is a cell and its visit count.
type CellCount struct {
	Cell
	Count int `json:"count"`
}

// Grid is a sparse visit-count grid. It is not safe for concurrent use.
type Grid struct {
	cellSize int
	counts   map[Cell]int
	max      int
}

// NewGrid creates an empty grid. A non-positive cellSize uses DefaultCellSize.
func NewGrid(cellSize int) *Grid {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}
	return &Grid{
		cellSize: cellSize,
		counts:   make(map[Cell]int),
	}
}

// CellSize returns the cell side in pixels.
func (g *Grid) CellSize() int {
	return g.cellSize
}

// CellAt returns the cell containing pixel coordinate p.
func (g *Grid) CellAt(p vision.Point) Cell {
	size := float64(g.cellSize)
	return Cell{
		X: int(math.Floor(p.X / size)),
		Y: int(math.Floor(p.Y / size)),
	}
}

// Add increments the cell containing the centroid of each box.
func (g *Grid) Add(boxes ...vision.BoundingBox) {
	for _, b := range boxes {
		c := g.CellAt(b.Center())
		n := g.counts[c] + 1
		g.counts[c] = n
		if n > g.max {
			g.max = n
		}
	}
}

// Count returns the visit count of a cell.
func (g *Grid) Count(c Cell) int {
	return g.counts[c]
}

// Max returns the largest visit count.
func (g *Grid) Max() int {
	return g.max
}

// Len returns the number of visited cells.
func (g *Grid) Len() int {
	return len(g.counts)
}

// Cells returns every visited cell ordered by row, then column.
func (g *Grid) Cells() []CellCount {
	out := make([]CellCount, 0, len(g.counts))
	for c, n := range g.counts {
		out = append(out, CellCount{Cell: c, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

// Reset discards every count.
func (g *Grid) Reset() {
	g.counts = make(map[Cell]int)
	g.max = 0
}

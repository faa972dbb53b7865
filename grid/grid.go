// Package grid implements a uniform grid (spatial hash) for radius queries
// over points in the plane.
//
// The grid never grows: coordinates falling outside of it are clamped into the
// nearest border cell, so offsets and extents should leave generous room around
// the area where items actually live.
package grid

import "math"

// Grid is a fixed-size uniform grid of cells holding items of type T.
type Grid[T any] struct {
	cellSize float64
	offsetX  float64
	offsetY  float64
	cols     int
	rows     int
	cells    [][]T // column-major: index = col*rows + row
}

// New returns a grid of square cells of side cellSize covering
// [-offsetX, width-offsetX) × [-offsetY, height-offsetY).
// The grid holds at least one cell whatever the arguments.
func New[T any](cellSize, offsetX, offsetY, width, height float64) *Grid[T] {
	if !(cellSize > 0) || math.IsInf(cellSize, 0) {
		cellSize = 1
	}
	cols := count(width, cellSize)
	rows := count(height, cellSize)
	cells := make([][]T, cols*rows)
	return &Grid[T]{
		cellSize: cellSize,
		offsetX:  offsetX,
		offsetY:  offsetY,
		cols:     cols,
		rows:     rows,
		cells:    cells,
	}
}

// count returns the number of cells of side size needed to cover length.
func count(length, size float64) int {
	n := math.Ceil(length / size)
	if !(n >= 1) || math.IsInf(n, 0) {
		return 1
	}
	return int(n)
}

// CellSize returns the side of a cell.
func (g *Grid[T]) CellSize() float64 { return g.cellSize }

// Dims returns the number of columns and rows.
func (g *Grid[T]) Dims() (cols, rows int) { return g.cols, g.rows }

// cell returns the column and row containing (x, y), clamped into the grid.
func (g *Grid[T]) cell(x, y float64) (col, row int) {
	return clamp((x+g.offsetX)/g.cellSize, g.cols), clamp((y+g.offsetY)/g.cellSize, g.rows)
}

// clamp converts a fractional cell coordinate into an index in [0, n).
func clamp(v float64, n int) int {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v >= float64(n):
		return n - 1
	}
	return int(v)
}

// Insert adds item to the cell containing (x, y).
// Out of range coordinates go to the nearest border cell.
func (g *Grid[T]) Insert(item T, x, y float64) {
	col, row := g.cell(x, y)
	i := col*g.rows + row
	g.cells[i] = append(g.cells[i], item)
}

// Query returns the items of every cell overlapping the square
// [x-r, x+r] × [y-r, y+r]. This is a superset of the items within
// distance r of (x, y): callers filter by exact distance when needed.
func (g *Grid[T]) Query(x, y, r float64) []T {
	return g.AppendQuery(nil, x, y, r)
}

// AppendQuery is like Query but appends the items to buf
// and returns the extended slice, avoiding an allocation per call.
func (g *Grid[T]) AppendQuery(buf []T, x, y, r float64) []T {
	r = math.Abs(r)
	c0, r0 := g.cell(x-r, y-r)
	c1, r1 := g.cell(x+r, y+r)
	for c := c0; c <= c1; c++ {
		for _, cell := range g.cells[c*g.rows+r0 : c*g.rows+r1+1] {
			buf = append(buf, cell...)
		}
	}
	return buf
}

// Clear empties every cell, keeping the allocated capacity.
func (g *Grid[T]) Clear() {
	var zero T
	for i, cell := range g.cells {
		for j := range cell {
			cell[j] = zero // drop references held by the backing array
		}
		g.cells[i] = cell[:0]
	}
}

// Len returns the number of items in the grid.
func (g *Grid[T]) Len() int {
	n := 0
	for _, cell := range g.cells {
		n += len(cell)
	}
	return n
}

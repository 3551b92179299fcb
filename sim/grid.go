// Defines the static restaurant grid: walls, free floor, tables, kitchen and parking cells.
// The grid is built once per run and never mutated afterwards.

package sim

import (
	"fmt"
	"sort"
)

// CellKind classifies a single grid cell.
type CellKind int

const (
	CellFree CellKind = iota
	CellWall
	CellTable
	CellKitchen
	CellParking
)

var cellKindNames = map[CellKind]string{
	CellFree:    "free",
	CellWall:    "wall",
	CellTable:   "table",
	CellKitchen: "kitchen",
	CellParking: "parking",
}

func (k CellKind) String() string {
	if name, ok := cellKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("CellKind(%d)", int(k))
}

// Traversable reports whether robots may stand on a cell of this kind.
// Tables and walls are never traversable.
func (k CellKind) Traversable() bool {
	return k == CellFree || k == CellKitchen || k == CellParking
}

// Cell is a grid coordinate. X is the column, Y is the row; (0,0) is the top-left corner.
type Cell struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// Manhattan returns the 4-connected distance between two cells.
func Manhattan(a, b Cell) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

// Chebyshev returns the king-move distance between two cells.
func Chebyshev(a, b Cell) int {
	return max(abs(a.X-b.X), abs(a.Y-b.Y))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// neighborOffsets fixes the neighbour order: up, right, down, left.
// Path tie-breaking depends on this order, so it must never change.
var neighborOffsets = [4]Cell{{0, -1}, {1, 0}, {0, 1}, {-1, 0}}

// Grid is the immutable spatial model of the restaurant.
type Grid struct {
	name           string
	width, height  int
	kinds          []CellKind // row-major
	tables         map[string]Cell
	tableAt        map[Cell]string
	kitchens       []Cell
	parking        []Cell
	deliveryPoints map[string]Cell
}

// NewGrid builds a Grid from row-major cell kinds and a table label -> cell map.
// Every table label must point at a CellTable cell and every CellTable cell must be labelled.
func NewGrid(name string, width, height int, kinds []CellKind, tables map[string]Cell) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("grid %q: width and height must be positive, got %dx%d", name, width, height)
	}
	if len(kinds) != width*height {
		return nil, fmt.Errorf("grid %q: expected %d cells, got %d", name, width*height, len(kinds))
	}
	g := &Grid{
		name:           name,
		width:          width,
		height:         height,
		kinds:          append([]CellKind(nil), kinds...),
		tables:         make(map[string]Cell, len(tables)),
		tableAt:        make(map[Cell]string, len(tables)),
		deliveryPoints: make(map[string]Cell, len(tables)),
	}
	for label, c := range tables {
		if !g.InBounds(c) {
			return nil, fmt.Errorf("grid %q: table %q at %s is out of bounds", name, label, c)
		}
		if k := g.Kind(c); k != CellTable {
			return nil, fmt.Errorf("grid %q: table %q at %s is a %s cell", name, label, c, k)
		}
		if other, dup := g.tableAt[c]; dup {
			return nil, fmt.Errorf("grid %q: tables %q and %q share cell %s", name, other, label, c)
		}
		g.tables[label] = c
		g.tableAt[c] = label
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := Cell{x, y}
			switch g.Kind(c) {
			case CellTable:
				if _, ok := g.tableAt[c]; !ok {
					return nil, fmt.Errorf("grid %q: table cell %s has no label", name, c)
				}
			case CellKitchen:
				g.kitchens = append(g.kitchens, c)
			case CellParking:
				g.parking = append(g.parking, c)
			case CellFree, CellWall:
			default:
				return nil, fmt.Errorf("grid %q: unknown cell kind %d at %s", name, int(g.Kind(c)), c)
			}
		}
	}
	g.generateDeliveryPoints()
	return g, nil
}

// generateDeliveryPoints picks, per table, the first traversable cell next to it
// (up, right, down, left), then at distance 2 and 3 along the same directions.
func (g *Grid) generateDeliveryPoints() {
	for label, t := range g.tables {
	search:
		for dist := 1; dist <= 3; dist++ {
			for _, d := range neighborOffsets {
				c := Cell{t.X + d.X*dist, t.Y + d.Y*dist}
				if g.IsFree(c) {
					g.deliveryPoints[label] = c
					break search
				}
			}
		}
	}
}

func (g *Grid) Name() string { return g.name }
func (g *Grid) Width() int   { return g.width }
func (g *Grid) Height() int  { return g.height }

// InBounds reports whether c lies inside the grid.
func (g *Grid) InBounds(c Cell) bool {
	return c.X >= 0 && c.X < g.width && c.Y >= 0 && c.Y < g.height
}

// Kind returns the kind of c. Out-of-bounds cells read as walls.
func (g *Grid) Kind(c Cell) CellKind {
	if !g.InBounds(c) {
		return CellWall
	}
	return g.kinds[c.Y*g.width+c.X]
}

// IsFree is true iff c is in bounds and is free floor, kitchen or parking.
func (g *Grid) IsFree(c Cell) bool {
	return g.InBounds(c) && g.Kind(c).Traversable()
}

// Neighbors returns the in-bounds 4-neighbours of c in up, right, down, left order.
// Traversability is left to the caller.
func (g *Grid) Neighbors(c Cell) []Cell {
	if !g.InBounds(c) {
		return nil
	}
	out := make([]Cell, 0, 4)
	for _, d := range neighborOffsets {
		n := Cell{c.X + d.X, c.Y + d.Y}
		if g.InBounds(n) {
			out = append(out, n)
		}
	}
	return out
}

// TableAt returns the label of the table at c, if any.
func (g *Grid) TableAt(c Cell) (string, bool) {
	label, ok := g.tableAt[c]
	return label, ok
}

// TablePosition returns the cell of the labelled table.
func (g *Grid) TablePosition(label string) (Cell, bool) {
	c, ok := g.tables[label]
	return c, ok
}

// Tables returns the table labels in sorted order.
func (g *Grid) Tables() []string {
	labels := make([]string, 0, len(g.tables))
	for label := range g.tables {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// DeliveryPoint returns the cell a robot stops on to serve the labelled table.
func (g *Grid) DeliveryPoint(label string) (Cell, bool) {
	c, ok := g.deliveryPoints[label]
	return c, ok
}

// Kitchens returns kitchen cells in row-major order.
func (g *Grid) Kitchens() []Cell { return append([]Cell(nil), g.kitchens...) }

// ParkingSpots returns parking cells in row-major order.
func (g *Grid) ParkingSpots() []Cell { return append([]Cell(nil), g.parking...) }

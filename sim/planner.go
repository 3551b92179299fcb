// Grid path planning: A* over 4-connected cells with a bounded expanding-radius
// fallback for goals that are blocked or unreachable.

package sim

import (
	"container/heap"
	"sort"

	"github.com/sirupsen/logrus"
)

// Path is an ordered, 4-connected cell sequence. Path[0] is the start and the last
// element is the goal. Paths are values: callers replace them, never edit them.
type Path []Cell

// Steps returns the number of moves needed to walk the path.
func (p Path) Steps() int {
	if len(p) == 0 {
		return 0
	}
	return len(p) - 1
}

// Goal returns the final cell of the path.
func (p Path) Goal() (Cell, bool) {
	if len(p) == 0 {
		return Cell{}, false
	}
	return p[len(p)-1], true
}

// PlanStatus is the outcome class of a planning request.
type PlanStatus int

const (
	PlanNotFound    PlanStatus = iota // no path, even after radius expansion
	PlanFound                         // path reaches the requested goal
	PlanApproximate                   // path reaches a substitute cell near the goal
)

func (s PlanStatus) String() string {
	switch s {
	case PlanFound:
		return "found"
	case PlanApproximate:
		return "approximate"
	default:
		return "not_found"
	}
}

// PlanResult is the first-class result of FindPath. NotFound is a normal outcome.
type PlanResult struct {
	Status PlanStatus
	Path   Path
	Target Cell // cell the path actually ends on
	Radius int  // Chebyshev radius of the substitute goal; 0 for an exact plan
}

// OK reports whether a usable path was produced.
func (r PlanResult) OK() bool { return r.Status != PlanNotFound }

// Planner produces paths between two cells.
type Planner interface {
	FindPath(start, goal Cell) PlanResult
}

// Occupancy reports dynamic blockages layered on top of the static grid.
type Occupancy interface {
	Occupied(c Cell) bool
}

// AStarPlanner plans over a Grid, avoiding cells reported by an optional Occupancy overlay.
type AStarPlanner struct {
	grid      *Grid
	occupancy Occupancy
	maxRadius int
}

// NewAStarPlanner creates a planner. maxRadius bounds the substitute-goal search;
// 0 disables it.
func NewAStarPlanner(grid *Grid, occupancy Occupancy, maxRadius int) *AStarPlanner {
	if maxRadius < 0 {
		maxRadius = 0
	}
	return &AStarPlanner{grid: grid, occupancy: occupancy, maxRadius: maxRadius}
}

// MaxRadius returns the substitute-goal radius cap.
func (p *AStarPlanner) MaxRadius() int { return p.maxRadius }

func (p *AStarPlanner) passable(c Cell) bool {
	if !p.grid.IsFree(c) {
		return false
	}
	return p.occupancy == nil || !p.occupancy.Occupied(c)
}

// FindPath returns a shortest path from start to goal. If goal is blocked or
// unreachable, cells at Chebyshev radius 1..maxRadius around goal are tried
// (closest by Manhattan distance first, then row-major) and the first reachable one
// is returned as an approximate plan.
func (p *AStarPlanner) FindPath(start, goal Cell) PlanResult {
	if !p.grid.IsFree(start) {
		logrus.Warnf("planner: start %s is not traversable", start)
		return PlanResult{Status: PlanNotFound}
	}
	if p.passable(goal) {
		if path := p.search(start, goal); path != nil {
			return PlanResult{Status: PlanFound, Path: path, Target: goal}
		}
	}
	for radius := 1; radius <= p.maxRadius; radius++ {
		for _, c := range ringCells(goal, radius) {
			if !p.passable(c) {
				continue
			}
			if path := p.search(start, c); path != nil {
				logrus.Debugf("planner: substitute goal %s for %s at radius %d", c, goal, radius)
				return PlanResult{Status: PlanApproximate, Path: path, Target: c, Radius: radius}
			}
		}
	}
	logrus.Debugf("planner: no path %s -> %s within radius %d", start, goal, p.maxRadius)
	return PlanResult{Status: PlanNotFound}
}

// ringCells lists the cells at exactly Chebyshev distance radius from center,
// ordered by Manhattan distance, then row, then column.
func ringCells(center Cell, radius int) []Cell {
	cells := make([]Cell, 0, 8*radius)
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if max(abs(dx), abs(dy)) != radius {
				continue
			}
			cells = append(cells, Cell{center.X + dx, center.Y + dy})
		}
	}
	sort.SliceStable(cells, func(i, j int) bool {
		di, dj := Manhattan(center, cells[i]), Manhattan(center, cells[j])
		if di != dj {
			return di < dj
		}
		if cells[i].Y != cells[j].Y {
			return cells[i].Y < cells[j].Y
		}
		return cells[i].X < cells[j].X
	})
	return cells
}

// search runs A* with a Manhattan heuristic and unit step cost. Returns nil when
// goal is unreachable.
func (p *AStarPlanner) search(start, goal Cell) Path {
	if start == goal {
		return Path{start}
	}
	open := &openSet{}
	var seq uint64
	push := func(c Cell, g int) {
		seq++
		heap.Push(open, &openNode{cell: c, g: g, f: g + Manhattan(c, goal), seq: seq})
	}

	gScore := map[Cell]int{start: 0}
	cameFrom := make(map[Cell]Cell)
	closed := make(map[Cell]bool)
	push(start, 0)

	for open.Len() > 0 {
		node := heap.Pop(open).(*openNode)
		if closed[node.cell] {
			continue
		}
		if node.cell == goal {
			return reconstruct(cameFrom, start, goal)
		}
		closed[node.cell] = true

		for _, nb := range p.grid.Neighbors(node.cell) {
			if closed[nb] || !p.passable(nb) {
				continue
			}
			tentative := node.g + 1
			if prev, seen := gScore[nb]; seen && tentative >= prev {
				continue
			}
			gScore[nb] = tentative
			cameFrom[nb] = node.cell
			push(nb, tentative)
		}
	}
	return nil
}

func reconstruct(cameFrom map[Cell]Cell, start, goal Cell) Path {
	path := Path{goal}
	for c := goal; c != start; {
		c = cameFrom[c]
		path = append(path, c)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

type openNode struct {
	cell Cell
	g, f int
	seq  uint64 // enqueue order, breaks f ties
}

// openSet implements heap.Interface ordered by f, then enqueue order.
type openSet []*openNode

func (s openSet) Len() int { return len(s) }
func (s openSet) Less(i, j int) bool {
	if s[i].f != s[j].f {
		return s[i].f < s[j].f
	}
	return s[i].seq < s[j].seq
}
func (s openSet) Swap(i, j int) { s[i], s[j] = s[j], s[i] }

func (s *openSet) Push(x any) {
	*s = append(*s, x.(*openNode))
}

func (s *openSet) Pop() any {
	old := *s
	n := len(old)
	item := old[n-1]
	*s = old[:n-1]
	return item
}

// Dynamic obstacles: a time-ordered schedule of appear/clear events applied to an
// occupancy overlay on top of the static grid.

package sim

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// ObstacleSpec places an obstacle on Cell at Tick for Duration ticks (0 = permanent).
type ObstacleSpec struct {
	Tick     int64 `yaml:"tick" json:"tick"`
	Cell     Cell  `yaml:"cell" json:"cell"`
	Duration int64 `yaml:"duration" json:"duration"`
}

// ObstacleEventType distinguishes appear and clear events.
type ObstacleEventType int

const (
	ObstacleClear ObstacleEventType = iota
	ObstacleAppear
)

func (t ObstacleEventType) String() string {
	if t == ObstacleAppear {
		return "appear"
	}
	return "clear"
}

// obstacleEventPriority orders events sharing a tick: clears run before appears so an
// obstacle that leaves and another that arrives on the same cell net out correctly.
var obstacleEventPriority = map[ObstacleEventType]int{
	ObstacleClear:  0,
	ObstacleAppear: 1,
}

// ObstacleEvent is one scheduled change of the overlay.
type ObstacleEvent struct {
	Tick     int64
	Type     ObstacleEventType
	Cell     Cell
	Duration int64  // appear only
	ID       uint64 // scheduling order, final tie-breaker
}

// ObstacleChange reports an overlay change applied during Advance.
type ObstacleChange struct {
	Tick    int64
	Type    ObstacleEventType
	Cell    Cell
	Skipped bool // appear dropped because a robot stood on the cell
}

// obstacleHeap implements a priority queue with deterministic ordering
// Ordering: tick → type priority → event ID
type obstacleHeap []ObstacleEvent

func (h obstacleHeap) Len() int { return len(h) }

func (h obstacleHeap) Less(i, j int) bool {
	ei, ej := h[i], h[j]
	if ei.Tick != ej.Tick {
		return ei.Tick < ej.Tick
	}
	pi, pj := obstacleEventPriority[ei.Type], obstacleEventPriority[ej.Type]
	if pi != pj {
		return pi < pj
	}
	return ei.ID < ej.ID
}

func (h obstacleHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *obstacleHeap) Push(x any) { *h = append(*h, x.(ObstacleEvent)) }

func (h *obstacleHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// ObstacleField is the dynamic occupancy overlay. Overlapping obstacles on one cell are
// reference counted; the cell frees up when the last one clears.
//
// Thread-safety: NOT thread-safe. Owned by the simulator's tick loop.
type ObstacleField struct {
	grid   *Grid
	counts map[Cell]int
	events obstacleHeap
	nextID uint64
}

// NewObstacleField creates an empty overlay for grid.
func NewObstacleField(grid *Grid) *ObstacleField {
	return &ObstacleField{
		grid:   grid,
		counts: make(map[Cell]int),
	}
}

// Occupied reports whether a dynamic obstacle currently sits on c.
func (f *ObstacleField) Occupied(c Cell) bool {
	return f.counts[c] > 0
}

// Schedule queues an obstacle. Obstacles must land on traversable cells.
func (f *ObstacleField) Schedule(spec ObstacleSpec) error {
	if !f.grid.IsFree(spec.Cell) {
		return fmt.Errorf("obstacle at %s: cell is not traversable", spec.Cell)
	}
	if spec.Tick < 0 || spec.Duration < 0 {
		return fmt.Errorf("obstacle at %s: tick and duration must be non-negative", spec.Cell)
	}
	f.push(ObstacleEvent{Tick: spec.Tick, Type: ObstacleAppear, Cell: spec.Cell, Duration: spec.Duration})
	return nil
}

func (f *ObstacleField) push(e ObstacleEvent) {
	f.nextID++
	e.ID = f.nextID
	heap.Push(&f.events, e)
}

// Place puts an obstacle on c immediately.
func (f *ObstacleField) Place(c Cell) {
	f.counts[c]++
}

// Remove takes one obstacle off c immediately.
func (f *ObstacleField) Remove(c Cell) {
	if f.counts[c] <= 1 {
		delete(f.counts, c)
		return
	}
	f.counts[c]--
}

// Advance applies every event due at or before now. robotAt reports cells a robot
// stands on; appear events on those cells are skipped.
func (f *ObstacleField) Advance(now int64, robotAt func(Cell) bool) []ObstacleChange {
	var changes []ObstacleChange
	for f.events.Len() > 0 && f.events[0].Tick <= now {
		e := heap.Pop(&f.events).(ObstacleEvent)
		switch e.Type {
		case ObstacleAppear:
			if robotAt != nil && robotAt(e.Cell) {
				logrus.Infof("[tick %07d] obstacle at %s skipped: cell occupied by a robot", now, e.Cell)
				changes = append(changes, ObstacleChange{Tick: now, Type: e.Type, Cell: e.Cell, Skipped: true})
				continue
			}
			f.Place(e.Cell)
			if e.Duration > 0 {
				f.push(ObstacleEvent{Tick: e.Tick + e.Duration, Type: ObstacleClear, Cell: e.Cell})
			}
			logrus.Debugf("[tick %07d] obstacle appeared at %s", now, e.Cell)
		case ObstacleClear:
			f.Remove(e.Cell)
			logrus.Debugf("[tick %07d] obstacle cleared at %s", now, e.Cell)
		}
		changes = append(changes, ObstacleChange{Tick: now, Type: e.Type, Cell: e.Cell})
	}
	return changes
}

// Active returns the occupied cells in row-major order.
func (f *ObstacleField) Active() []Cell {
	cells := make([]Cell, 0, len(f.counts))
	for c := range f.counts {
		cells = append(cells, c)
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Y != cells[j].Y {
			return cells[i].Y < cells[j].Y
		}
		return cells[i].X < cells[j].X
	})
	return cells
}

// Pending returns the number of events not yet applied.
func (f *ObstacleField) Pending() int {
	return f.events.Len()
}

// scheduleRandom draws cfg.Count obstacles on traversable cells that are neither
// kitchens nor parking spots.
func (f *ObstacleField) scheduleRandom(cfg RandomObstacleConfig, seed RunSeed) error {
	if cfg.Count <= 0 {
		return nil
	}
	var floor []Cell
	for y := 0; y < f.grid.Height(); y++ {
		for x := 0; x < f.grid.Width(); x++ {
			c := Cell{x, y}
			if f.grid.Kind(c) == CellFree {
				floor = append(floor, c)
			}
		}
	}
	if len(floor) == 0 {
		return fmt.Errorf("random obstacles: grid %q has no free floor", f.grid.Name())
	}
	maxTick := max(cfg.MaxTick, 1)
	maxDuration := max(cfg.MaxDuration, 1)
	for i := 0; i < cfg.Count; i++ {
		r := seed.Stream(StreamObstacles, i)
		spec := ObstacleSpec{
			Cell:     floor[r.IntN(len(floor))],
			Tick:     1 + r.Int64N(maxTick),
			Duration: 1 + r.Int64N(maxDuration),
		}
		if err := f.Schedule(spec); err != nil {
			return err
		}
	}
	return nil
}

package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObstacleField_AppearAndClear(t *testing.T) {
	// GIVEN an obstacle at tick 2 lasting 3 ticks
	g := openGrid5x5(t)
	f := NewObstacleField(g)
	require.NoError(t, f.Schedule(ObstacleSpec{Tick: 2, Cell: Cell{1, 1}, Duration: 3}))

	// THEN it is absent before 2, present on 2-4, gone from 5
	f.Advance(1, nil)
	assert.False(t, f.Occupied(Cell{1, 1}))
	changes := f.Advance(2, nil)
	require.Len(t, changes, 1)
	assert.Equal(t, ObstacleAppear, changes[0].Type)
	assert.True(t, f.Occupied(Cell{1, 1}))
	f.Advance(4, nil)
	assert.True(t, f.Occupied(Cell{1, 1}))
	f.Advance(5, nil)
	assert.False(t, f.Occupied(Cell{1, 1}))
	assert.Equal(t, 0, f.Pending())
}

func TestObstacleField_PermanentObstacle(t *testing.T) {
	f := NewObstacleField(openGrid5x5(t))
	require.NoError(t, f.Schedule(ObstacleSpec{Tick: 0, Cell: Cell{0, 0}}))
	f.Advance(0, nil)
	f.Advance(1000, nil)
	assert.True(t, f.Occupied(Cell{0, 0}))
	assert.Equal(t, []Cell{{0, 0}}, f.Active())
}

func TestObstacleField_SameTick_ClearBeforeAppear(t *testing.T) {
	// GIVEN one obstacle leaving (1,1) at tick 3 and another arriving there at tick 3
	f := NewObstacleField(openGrid5x5(t))
	require.NoError(t, f.Schedule(ObstacleSpec{Tick: 3, Cell: Cell{1, 1}, Duration: 2}))
	require.NoError(t, f.Schedule(ObstacleSpec{Tick: 1, Cell: Cell{1, 1}, Duration: 2}))

	// WHEN tick 3 is applied
	f.Advance(1, nil)
	changes := f.Advance(3, nil)

	// THEN the clear is applied first and the cell stays occupied
	require.Len(t, changes, 2)
	assert.Equal(t, ObstacleClear, changes[0].Type)
	assert.Equal(t, ObstacleAppear, changes[1].Type)
	assert.True(t, f.Occupied(Cell{1, 1}))
}

func TestObstacleField_OverlappingObstacles_RefCounted(t *testing.T) {
	f := NewObstacleField(openGrid5x5(t))
	f.Place(Cell{2, 2})
	f.Place(Cell{2, 2})
	f.Remove(Cell{2, 2})
	assert.True(t, f.Occupied(Cell{2, 2}))
	f.Remove(Cell{2, 2})
	assert.False(t, f.Occupied(Cell{2, 2}))
	assert.Empty(t, f.Active())
}

func TestObstacleField_SkipsCellsWithRobots(t *testing.T) {
	// GIVEN an obstacle due on a cell a robot stands on
	f := NewObstacleField(openGrid5x5(t))
	require.NoError(t, f.Schedule(ObstacleSpec{Tick: 1, Cell: Cell{3, 3}, Duration: 2}))

	// WHEN it is applied
	changes := f.Advance(1, func(c Cell) bool { return c == Cell{3, 3} })

	// THEN it is dropped entirely, including its clear event
	require.Len(t, changes, 1)
	assert.True(t, changes[0].Skipped)
	assert.False(t, f.Occupied(Cell{3, 3}))
	assert.Equal(t, 0, f.Pending())
}

func TestObstacleField_Schedule_RejectsBadSpecs(t *testing.T) {
	f := NewObstacleField(openGrid5x5(t))
	assert.Error(t, f.Schedule(ObstacleSpec{Tick: 1, Cell: Cell{2, 4}}), "table cell")
	assert.Error(t, f.Schedule(ObstacleSpec{Tick: 1, Cell: Cell{7, 7}}), "out of bounds")
	assert.Error(t, f.Schedule(ObstacleSpec{Tick: -1, Cell: Cell{0, 0}}), "negative tick")
	assert.Error(t, f.Schedule(ObstacleSpec{Tick: 1, Cell: Cell{0, 0}, Duration: -2}), "negative duration")
}

func TestObstacleField_ScheduleRandom_ReproducibleOnFloorOnly(t *testing.T) {
	g := gridFromRows(t,
		"K...P",
		".#1#.",
		".....",
	)
	cfg := RandomObstacleConfig{Count: 20, MaxTick: 10, MaxDuration: 4}

	a := NewObstacleField(g)
	require.NoError(t, a.scheduleRandom(cfg, RunSeed(7)))
	b := NewObstacleField(g)
	require.NoError(t, b.scheduleRandom(cfg, RunSeed(7)))

	assert.Equal(t, a.events.Len(), 20)
	var seenA, seenB []ObstacleChange
	for tick := int64(0); tick <= 20; tick++ {
		seenA = append(seenA, a.Advance(tick, nil)...)
		seenB = append(seenB, b.Advance(tick, nil)...)
	}
	assert.Equal(t, seenA, seenB)
	for _, c := range seenA {
		assert.Equal(t, CellFree, g.Kind(c.Cell), "obstacle on %s", c.Cell)
	}
}

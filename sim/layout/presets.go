package layout

import (
	"sort"

	"github.com/dinebot-sim/dinebot-sim/sim"
)

// presets are the built-in floor plans, in the compact dialect.
var presets = map[string]func() *Layout{
	"small": func() *Layout {
		return &Layout{Name: "small", Dialect: DialectCompact, Cells: [][]int{
			{4, 0, 0, 0, 3},
			{0, 0, 0, 0, 0},
			{0, 2, 0, 2, 0},
			{0, 0, 0, 0, 0},
			{1, 1, 0, 1, 1},
		}}
	},
	"bistro": func() *Layout {
		return &Layout{Name: "bistro", Dialect: DialectCompact, Cells: [][]int{
			{1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
			{1, 3, 3, 0, 0, 0, 0, 0, 4, 1},
			{1, 0, 0, 0, 0, 0, 0, 0, 4, 1},
			{1, 0, 2, 0, 0, 2, 0, 0, 0, 1},
			{1, 0, 0, 0, 0, 0, 0, 0, 0, 1},
			{1, 0, 2, 0, 0, 2, 0, 0, 2, 1},
			{1, 0, 0, 0, 0, 0, 0, 0, 0, 1},
			{1, 1, 1, 1, 1, 1, 1, 1, 1, 1},
		}}
	},
}

// Preset returns a fresh copy of the named built-in layout.
func Preset(name string) (*Layout, bool) {
	build, ok := presets[name]
	if !ok {
		return nil, false
	}
	return build(), true
}

// PresetNames returns the built-in layout names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnreachableTables lists, in sorted order, the tables no robot could serve: those
// without a delivery point and those whose delivery point no parking or kitchen cell
// reaches on the static grid.
func UnreachableTables(g *sim.Grid) []string {
	origins := append(g.ParkingSpots(), g.Kitchens()...)
	planner := sim.NewAStarPlanner(g, nil, 0)
	var out []string
	for _, label := range g.Tables() {
		dp, ok := g.DeliveryPoint(label)
		if !ok {
			out = append(out, label)
			continue
		}
		reached := false
		for _, o := range origins {
			if planner.FindPath(o, dp).Status == sim.PlanFound {
				reached = true
				break
			}
		}
		if !reached {
			out = append(out, label)
		}
	}
	return out
}

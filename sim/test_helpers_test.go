package sim

import (
	"context"
	"fmt"
	"testing"
)

// gridFromRows builds a grid from an ASCII picture:
//
//	. free   # wall   K kitchen   P parking   1-9 table labelled T1-T9
func gridFromRows(t *testing.T, rows ...string) *Grid {
	t.Helper()
	height := len(rows)
	width := len(rows[0])
	kinds := make([]CellKind, 0, width*height)
	tables := make(map[string]Cell)
	for y, row := range rows {
		if len(row) != width {
			t.Fatalf("row %d has width %d, want %d", y, len(row), width)
		}
		for x, ch := range row {
			switch {
			case ch == '.':
				kinds = append(kinds, CellFree)
			case ch == '#':
				kinds = append(kinds, CellWall)
			case ch == 'K':
				kinds = append(kinds, CellKitchen)
			case ch == 'P':
				kinds = append(kinds, CellParking)
			case ch >= '1' && ch <= '9':
				kinds = append(kinds, CellTable)
				tables[fmt.Sprintf("T%c", ch)] = Cell{x, y}
			default:
				t.Fatalf("unknown grid symbol %q at (%d,%d)", ch, x, y)
			}
		}
	}
	g, err := NewGrid("test", width, height, kinds, tables)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	return g
}

// openGrid5x5 is a wall-free 5x5 floor with parking at the top centre and table T1 at
// the bottom centre. T1's delivery point is (2,3), three steps straight down from (2,0).
func openGrid5x5(t *testing.T) *Grid {
	return gridFromRows(t,
		"..P..",
		".....",
		".....",
		".....",
		"..1..",
	)
}

// fixedProvider answers every request with the same response and counts calls.
type fixedProvider struct {
	resp  DecisionResponse
	err   error
	calls int
}

func (f *fixedProvider) Decide(_ context.Context, _ DecisionRequest) (DecisionResponse, error) {
	f.calls++
	return f.resp, f.err
}

// newTestSimConfig returns a config with one robot, the given grid and orders, and
// default policy.
func newTestSimConfig(g *Grid, provider DecisionProvider, orders ...OrderSpec) SimConfig {
	cfg := DefaultSimConfig()
	cfg.Name = "test"
	cfg.Grid = g
	cfg.Robots = []RobotSpec{{ID: "r1"}}
	cfg.Orders = orders
	cfg.Provider = provider
	cfg.Horizon = 200
	return cfg
}

// runSim builds and runs a simulator, failing the test on any error.
func runSim(t *testing.T, cfg SimConfig) (*Simulator, *Report) {
	t.Helper()
	s, err := NewSimulator(cfg)
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	rep, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return s, rep
}

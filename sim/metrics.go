// Tracks per-delivery records and run-wide statistics such as success rate,
// average delivery time and path length.

package sim

import (
	"fmt"
	"io"
	"sort"

	"github.com/dinebot-sim/dinebot-sim/sim/trace"
)

// DeliveryRecord is the outcome of one delivery attempt.
type DeliveryRecord struct {
	OrderID        string `json:"order_id"`
	RobotID        string `json:"robot_id"`
	TableID        string `json:"table_id"`
	Success        bool   `json:"success"`
	TicksElapsed   int64  `json:"ticks_elapsed"`
	PathLength     int    `json:"path_length"` // cells actually moved
	TerminalReason string `json:"terminal_reason"`
	StartTick      int64  `json:"start_tick"`
	EndTick        int64  `json:"end_tick"`
	Replans        int    `json:"replans"`
	Waits          int    `json:"waits"`
	Decisions      int    `json:"decisions"`
}

// Metrics aggregates delivery records for final reporting.
type Metrics struct {
	Deliveries      int            `json:"deliveries"`
	Successful      int            `json:"successful"`
	Failed          int            `json:"failed"`
	TotalTicks      int64          `json:"total_ticks"`       // sum of ticks elapsed, successful only
	TotalPath       int            `json:"total_path_length"` // sum of path lengths, successful only
	TotalReplans    int            `json:"total_replans"`
	TotalWaits      int            `json:"total_waits"`
	TotalDecisions  int            `json:"total_decisions"`
	Reasons         map[string]int `json:"terminal_reasons"` // terminal reason -> count
	Cycles          int            `json:"cycles"`           // trips from home back to home
	TotalCycleTicks int64          `json:"total_cycle_ticks"`
}

// NewMetrics creates empty metrics.
func NewMetrics() *Metrics {
	return &Metrics{Reasons: make(map[string]int)}
}

// Add folds one delivery record into the aggregate.
func (m *Metrics) Add(rec DeliveryRecord) {
	m.Deliveries++
	m.Reasons[rec.TerminalReason]++
	m.TotalReplans += rec.Replans
	m.TotalWaits += rec.Waits
	m.TotalDecisions += rec.Decisions
	if !rec.Success {
		m.Failed++
		return
	}
	m.Successful++
	m.TotalTicks += rec.TicksElapsed
	m.TotalPath += rec.PathLength
}

// AddCycle records one delivery cycle: from leaving home until parking again.
func (m *Metrics) AddCycle(ticks int64) {
	m.Cycles++
	m.TotalCycleTicks += ticks
}

// AvgCycleTicks returns the mean length of a delivery cycle.
func (m *Metrics) AvgCycleTicks() float64 {
	if m.Cycles == 0 {
		return 0
	}
	return float64(m.TotalCycleTicks) / float64(m.Cycles)
}

// SuccessRate returns the percentage of delivery attempts that succeeded.
func (m *Metrics) SuccessRate() float64 {
	if m.Deliveries == 0 {
		return 0
	}
	return float64(m.Successful) / float64(m.Deliveries) * 100
}

// AvgTicks returns the mean ticks per successful delivery.
func (m *Metrics) AvgTicks() float64 {
	if m.Successful == 0 {
		return 0
	}
	return float64(m.TotalTicks) / float64(m.Successful)
}

// AvgPathLength returns the mean path length per successful delivery.
func (m *Metrics) AvgPathLength() float64 {
	if m.Successful == 0 {
		return 0
	}
	return float64(m.TotalPath) / float64(m.Successful)
}

// Print displays aggregated metrics at the end of the simulation.
func (m *Metrics) Print(w io.Writer, ticks int64) {
	fmt.Fprintln(w, "=== Simulation Metrics ===")
	fmt.Fprintf(w, "Simulated Ticks      : %d\n", ticks)
	fmt.Fprintf(w, "Delivery Attempts    : %d\n", m.Deliveries)
	fmt.Fprintf(w, "Successful           : %d\n", m.Successful)
	fmt.Fprintf(w, "Failed               : %d\n", m.Failed)
	fmt.Fprintf(w, "Success Rate         : %.2f%%\n", m.SuccessRate())
	if m.Successful > 0 {
		fmt.Fprintf(w, "Average Ticks        : %.2f ticks\n", m.AvgTicks())
		fmt.Fprintf(w, "Average Path Length  : %.2f cells\n", m.AvgPathLength())
	}
	if m.Cycles > 0 {
		fmt.Fprintf(w, "Delivery Cycles      : %d\n", m.Cycles)
		fmt.Fprintf(w, "Average Cycle Ticks  : %.2f ticks\n", m.AvgCycleTicks())
	}
	fmt.Fprintf(w, "Replans              : %d\n", m.TotalReplans)
	fmt.Fprintf(w, "Waits                : %d\n", m.TotalWaits)
	fmt.Fprintf(w, "Decisions            : %d\n", m.TotalDecisions)
	if len(m.Reasons) > 0 {
		reasons := make([]string, 0, len(m.Reasons))
		for r := range m.Reasons {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		fmt.Fprintln(w, "Terminal Reasons     :")
		for _, r := range reasons {
			fmt.Fprintf(w, "  %-22s: %d\n", r, m.Reasons[r])
		}
	}
}

// Report is the externally consumed result of one run.
type Report struct {
	RunID        string                 `json:"run_id"`
	Scenario     string                 `json:"scenario"`
	Provider     string                 `json:"provider"`
	Seed         int64                  `json:"seed"`
	Ticks        int64                  `json:"ticks"`
	Cancelled    bool                   `json:"cancelled"`
	Truncated    bool                   `json:"truncated"` // horizon reached with work outstanding
	Deliveries   []DeliveryRecord       `json:"deliveries"`
	Metrics      *Metrics               `json:"metrics"`
	Orders       OrderStats             `json:"orders"`
	Trajectories []*trace.RobotTrace    `json:"trajectories"`
	Decisions    []trace.DecisionRecord `json:"decisions,omitempty"`
	Summary      *trace.TraceSummary    `json:"summary"`
}

// Print writes the metrics block followed by order statistics.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "Run %s (%s, provider %s)\n", r.RunID, r.Scenario, r.Provider)
	r.Metrics.Print(w, r.Ticks)
	fmt.Fprintln(w, "=== Order Statistics ===")
	fmt.Fprintf(w, "Total Orders         : %d\n", r.Orders.TotalOrders)
	fmt.Fprintf(w, "Delivered            : %d\n", r.Orders.Delivered)
	fmt.Fprintf(w, "Failed               : %d\n", r.Orders.Failed)
	fmt.Fprintf(w, "Outstanding          : %d\n", r.Orders.Outstanding)
	if r.Orders.Delivered > 0 {
		fmt.Fprintf(w, "Avg Delivery Ticks   : %.2f\n", r.Orders.AvgDeliveryTicks)
		fmt.Fprintf(w, "Avg Total Ticks      : %.2f\n", r.Orders.AvgTotalTicks)
	}
	if r.Cancelled {
		fmt.Fprintln(w, "Run was cancelled before completion.")
	}
	if r.Truncated {
		fmt.Fprintln(w, "Run reached its horizon with work outstanding.")
	}
}

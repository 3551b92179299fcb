package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalDecisions   int            `json:"total_decisions"`
	ActionCounts     map[string]int `json:"action_counts"`  // action -> count
	OutcomeCounts    map[string]int `json:"outcome_counts"` // outcome -> count
	Escalations      int            `json:"escalations"`
	TotalTransitions int            `json:"total_transitions"`
	Replans          int            `json:"replans"`
	CellsMoved       int            `json:"cells_moved"`
	UniqueCells      int            `json:"unique_cells"`
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		ActionCounts:  make(map[string]int),
		OutcomeCounts: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalDecisions = len(st.Decisions)
	for _, d := range st.Decisions {
		summary.ActionCounts[d.Action]++
		summary.OutcomeCounts[d.Outcome]++
		if d.Escalated {
			summary.Escalations++
		}
	}

	visited := make(map[Position]bool)
	for _, rt := range st.Robots {
		summary.TotalTransitions += len(rt.Transitions)
		for _, tr := range rt.Transitions {
			if tr.To == "replanning" {
				summary.Replans++
			}
		}
		summary.CellsMoved += rt.CellsMoved()
		for _, p := range rt.Points {
			visited[p.Position] = true
		}
	}
	summary.UniqueCells = len(visited)

	return summary
}

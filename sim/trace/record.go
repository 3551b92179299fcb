// Package trace records what each robot did during a run: the cells it stood on per
// tick, its state transitions, and every decision exchange with the decision provider.
// This package has no dependencies on sim/: it stores pure data types.
package trace

// Position is a grid coordinate (X = column, Y = row).
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// TrajectoryPoint captures where a robot was at the end of a tick.
type TrajectoryPoint struct {
	Tick     int64    `json:"tick"`
	Position Position `json:"position"`
	State    string   `json:"state"`
}

// TransitionRecord captures a single robot state change.
type TransitionRecord struct {
	Tick    int64  `json:"tick"`
	From    string `json:"from"`
	To      string `json:"to"`
	OrderID string `json:"order_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// DecisionRecord captures one exchange with the decision provider.
type DecisionRecord struct {
	RobotID   string   `json:"robot_id"`
	Tick      int64    `json:"tick"`
	Position  Position `json:"position"`
	Obstacle  Position `json:"obstacle"`
	Action    string   `json:"action"`
	WaitTicks int64    `json:"wait_ticks,omitempty"`
	Outcome   string   `json:"outcome"`
	Escalated bool     `json:"escalated,omitempty"` // wait cap exceeded, forced to report_unreachable
}

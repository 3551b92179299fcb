package trace

// TraceLevel controls the verbosity of decision tracing. Trajectories and transitions
// are always recorded.
type TraceLevel string

const (
	// TraceLevelNone skips decision records.
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures every decision exchange.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to decisions
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// RobotTrace is the append-only log of a single robot.
type RobotTrace struct {
	RobotID     string             `json:"robot_id"`
	Points      []TrajectoryPoint  `json:"points"`
	Transitions []TransitionRecord `json:"transitions"`
}

// RecordPosition appends a trajectory point.
func (rt *RobotTrace) RecordPosition(tick int64, x, y int, state string) {
	rt.Points = append(rt.Points, TrajectoryPoint{Tick: tick, Position: Position{X: x, Y: y}, State: state})
}

// RecordTransition appends a state transition.
func (rt *RobotTrace) RecordTransition(record TransitionRecord) {
	rt.Transitions = append(rt.Transitions, record)
}

// CellsMoved counts the points where the robot changed cell.
func (rt *RobotTrace) CellsMoved() int {
	moved := 0
	for i := 1; i < len(rt.Points); i++ {
		if rt.Points[i].Position != rt.Points[i-1].Position {
			moved++
		}
	}
	return moved
}

// SimulationTrace collects per-robot logs and decision records during a run.
type SimulationTrace struct {
	Config    TraceConfig
	Robots    []*RobotTrace    // creation order
	Decisions []DecisionRecord // in tick order

	byID map[string]*RobotTrace
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:    config,
		Robots:    make([]*RobotTrace, 0),
		Decisions: make([]DecisionRecord, 0),
		byID:      make(map[string]*RobotTrace),
	}
}

// Robot returns the log for robotID, creating it on first use.
func (st *SimulationTrace) Robot(robotID string) *RobotTrace {
	if rt, ok := st.byID[robotID]; ok {
		return rt
	}
	rt := &RobotTrace{RobotID: robotID}
	st.byID[robotID] = rt
	st.Robots = append(st.Robots, rt)
	return rt
}

// RecordDecision appends a decision record unless decision tracing is off.
func (st *SimulationTrace) RecordDecision(record DecisionRecord) {
	if st.Config.Level == TraceLevelNone {
		return
	}
	st.Decisions = append(st.Decisions, record)
}

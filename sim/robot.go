// Defines the Robot struct and its state machine. A robot is reused across orders,
// returning to Idle after each terminal delivery.

package sim

import (
	"fmt"

	"github.com/dinebot-sim/dinebot-sim/sim/trace"
)

// RobotState is the top-level state of a robot.
type RobotState string

const (
	RobotIdle       RobotState = "idle"
	RobotPlanning   RobotState = "planning"
	RobotMoving     RobotState = "moving"
	RobotBlocked    RobotState = "blocked"
	RobotReplanning RobotState = "replanning"
	RobotWaiting    RobotState = "waiting"
	RobotAborted    RobotState = "aborted"
	RobotDelivered  RobotState = "delivered"
)

// validRobotTransitions lists the allowed next states. Every active state may abort,
// which is how cancellation and the horizon end a delivery.
var validRobotTransitions = map[RobotState][]RobotState{
	RobotIdle:       {RobotPlanning},
	RobotPlanning:   {RobotMoving, RobotIdle},
	RobotMoving:     {RobotBlocked, RobotDelivered, RobotAborted},
	RobotBlocked:    {RobotReplanning, RobotWaiting, RobotAborted},
	RobotReplanning: {RobotMoving, RobotAborted},
	RobotWaiting:    {RobotMoving, RobotAborted},
	RobotAborted:    {RobotIdle},
	RobotDelivered:  {RobotIdle},
}

// IsValidRobotTransition checks if a state transition is allowed.
func IsValidRobotTransition(from, to RobotState) bool {
	for _, s := range validRobotTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true for Delivered and Aborted.
func (s RobotState) IsTerminal() bool {
	return s == RobotDelivered || s == RobotAborted
}

// IsActive returns true while the robot is bound to an order.
func (s RobotState) IsActive() bool {
	switch s {
	case RobotPlanning, RobotMoving, RobotBlocked, RobotReplanning, RobotWaiting:
		return true
	}
	return false
}

// Terminal reasons carried by delivery records.
const (
	ReasonDelivered          = "delivered"
	ReasonApproximateArrival = "approximate_arrival"
	ReasonPlanningFailure    = "planning_failure"
	ReasonReportUnreachable  = "report_unreachable"
	ReasonBlockedLivelock    = "blocked_livelock"
	ReasonRerouteFailed      = "reroute_failed"
	ReasonCancelled          = "cancelled"
	ReasonHorizon            = "horizon_reached"
)

// Robot is one delivery robot. Path is non-nil only while Moving or Replanning; while
// Blocked or Waiting the leg's path is parked in held so the robot can resume it.
type Robot struct {
	ID       string
	Position Cell
	State    RobotState
	Order    *Order // bound order, nil while Idle
	Path     Path
	cursor   int // index of Position in Path

	held       Path
	heldCursor int

	goal        Cell // requested destination of the current leg
	approximate bool // current path ends on a substitute goal

	waitRemaining    int64
	consecutiveWaits int

	leg legStats
	log *trace.RobotTrace

	home       Cell // start cell; the robot returns here between deliveries
	homing     Path // way home while Idle, nil when not returning
	homeCursor int
	parked     bool // at home, or home could not be planned
	cycleStart int64
}

// legStats accumulates counters for the delivery in progress.
type legStats struct {
	startTick int64
	steps     int
	replans   int
	waits     int
	decisions int
}

// NewRobot creates an Idle robot at start.
func NewRobot(id string, start Cell, log *trace.RobotTrace) *Robot {
	if log == nil {
		log = &trace.RobotTrace{RobotID: id}
	}
	return &Robot{ID: id, Position: start, State: RobotIdle, log: log, home: start, parked: true}
}

// Home returns the cell the robot returns to between deliveries.
func (r *Robot) Home() Cell { return r.home }

// Parked reports whether an Idle robot has nothing left to do: it stands at home, or
// its way home could not be planned.
func (r *Robot) Parked() bool { return r.parked }

// Cursor returns the index of the robot's position along its current path.
func (r *Robot) Cursor() int { return r.cursor }

// Goal returns the requested destination of the current leg.
func (r *Robot) Goal() Cell { return r.goal }

// ConsecutiveWaits returns the number of Wait decisions since the last step.
func (r *Robot) ConsecutiveWaits() int { return r.consecutiveWaits }

// Trace returns the robot's trajectory log.
func (r *Robot) Trace() *trace.RobotTrace { return r.log }

// setState moves the robot to next and appends the transition to its log.
func (r *Robot) setState(now int64, next RobotState, reason string) error {
	if !IsValidRobotTransition(r.State, next) {
		return newInvariantViolation("robot %s: illegal transition %s -> %s", r.ID, r.State, next)
	}
	rec := trace.TransitionRecord{Tick: now, From: string(r.State), To: string(next), Reason: reason}
	if r.Order != nil {
		rec.OrderID = r.Order.ID
	}
	r.log.RecordTransition(rec)
	r.State = next
	return nil
}

// setPath installs a fresh path for a leg. The robot must stand on its first cell.
func (r *Robot) setPath(p Path, approximate bool) error {
	if len(p) == 0 || p[0] != r.Position {
		return newInvariantViolation("robot %s: path does not start at %s", r.ID, r.Position)
	}
	r.Path = p
	r.cursor = 0
	r.approximate = approximate
	return nil
}

// suspendPath parks the current path while the robot is Blocked or Waiting.
func (r *Robot) suspendPath() {
	r.held, r.heldCursor = r.Path, r.cursor
	r.Path, r.cursor = nil, 0
}

// resumePath restores a parked path.
func (r *Robot) resumePath() {
	r.Path, r.cursor = r.held, r.heldCursor
	r.held, r.heldCursor = nil, 0
}

// clearPath drops both current and parked paths.
func (r *Robot) clearPath() {
	r.Path, r.cursor = nil, 0
	r.held, r.heldCursor = nil, 0
	r.approximate = false
}

// nextCell returns the cell after the cursor, if any.
func (r *Robot) nextCell() (Cell, bool) {
	if r.cursor+1 >= len(r.Path) {
		return Cell{}, false
	}
	return r.Path[r.cursor+1], true
}

// atPathEnd reports whether the robot stands on the last cell of its path.
func (r *Robot) atPathEnd() bool {
	return len(r.Path) > 0 && r.cursor == len(r.Path)-1
}

// record appends the robot's end-of-tick position to its log.
func (r *Robot) record(now int64) {
	state := string(r.State)
	if r.homing != nil {
		state = "returning"
	}
	r.log.RecordPosition(now, r.Position.X, r.Position.Y, state)
}

// This method returns a human-readable string representation of a Robot.
func (r *Robot) String() string {
	order := "-"
	if r.Order != nil {
		order = r.Order.ID
	}
	return fmt.Sprintf("Robot: (ID: %s, Pos: %s, State: %s, Order: %s)", r.ID, r.Position, r.State, order)
}

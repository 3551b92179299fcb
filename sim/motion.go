// Motion Controller: walks a robot along its plan one cell per tick and runs the
// obstacle protocol (decision exchange, reroute, wait, abort) when the next cell is blocked.

package sim

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dinebot-sim/dinebot-sim/sim/trace"
)

// MotionController is stateless with respect to robots: all per-robot state lives on
// the Robot, so one controller serves every scheduler of a run.
type MotionController struct {
	grid      *Grid
	planner   Planner
	obstacles Occupancy
	provider  DecisionProvider
	config    MotionConfig
	trace     *trace.SimulationTrace
}

// NewMotionController wires a controller. obstacles may be nil (static grid only).
// A nil provider makes every obstacle encounter fail safe.
func NewMotionController(grid *Grid, planner Planner, obstacles Occupancy, provider DecisionProvider, config MotionConfig, st *trace.SimulationTrace) *MotionController {
	if config.DefaultWaitTicks <= 0 {
		config.DefaultWaitTicks = 1
	}
	if config.DecisionTimeout <= 0 {
		config.DecisionTimeout = DefaultDecisionTimeout
	}
	if config.MaxConsecutiveWaits < 0 {
		config.MaxConsecutiveWaits = 0
	}
	if st == nil {
		st = trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelNone})
	}
	return &MotionController{
		grid:      grid,
		planner:   planner,
		obstacles: obstacles,
		provider:  provider,
		config:    config,
		trace:     st,
	}
}

// Config returns the controller's motion parameters.
func (m *MotionController) Config() MotionConfig { return m.config }

// Advance performs one tick of work for a Moving or Waiting robot. It returns the
// terminal reason once the robot reaches Delivered or Aborted, or "" while the delivery
// is still in progress.
func (m *MotionController) Advance(ctx context.Context, r *Robot, now int64) (string, error) {
	switch r.State {
	case RobotWaiting:
		if r.waitRemaining > 0 {
			r.waitRemaining--
			return "", nil
		}
		r.resumePath()
		if err := r.setState(now, RobotMoving, "wait_elapsed"); err != nil {
			return "", err
		}
		return m.step(ctx, r, now)
	case RobotMoving:
		return m.step(ctx, r, now)
	default:
		return "", newInvariantViolation("robot %s: motion controller cannot advance state %s", r.ID, r.State)
	}
}

// step moves the robot to the next cell of its path, or hands the encounter to the
// decision protocol when a dynamic obstacle holds that cell.
func (m *MotionController) step(ctx context.Context, r *Robot, now int64) (string, error) {
	if r.cursor >= len(r.Path) || r.Path[r.cursor] != r.Position {
		return "", newInvariantViolation("robot %s: position %s off path at cursor %d", r.ID, r.Position, r.cursor)
	}
	if r.atPathEnd() {
		return m.arrive(r, now)
	}

	next, _ := r.nextCell()
	if !m.grid.IsFree(next) {
		return "", newInvariantViolation("robot %s: path crosses non-traversable cell %s", r.ID, next)
	}
	if m.obstacles != nil && m.obstacles.Occupied(next) {
		if err := r.setState(now, RobotBlocked, fmt.Sprintf("obstacle at %s", next)); err != nil {
			return "", err
		}
		r.suspendPath()
		return m.resolveBlocked(ctx, r, now, next)
	}

	r.Position = next
	r.cursor++
	r.leg.steps++
	r.consecutiveWaits = 0
	if r.atPathEnd() {
		return m.arrive(r, now)
	}
	return "", nil
}

func (m *MotionController) arrive(r *Robot, now int64) (string, error) {
	reason := ReasonDelivered
	if r.approximate {
		reason = ReasonApproximateArrival
	}
	if err := r.setState(now, RobotDelivered, reason); err != nil {
		return "", err
	}
	r.clearPath()
	logrus.Infof("[tick %07d] robot %s arrived at %s (%s)", now, r.ID, r.Position, reason)
	return reason, nil
}

// abort ends the delivery from any active state.
func (m *MotionController) abort(r *Robot, now int64, reason string) (string, error) {
	if err := r.setState(now, RobotAborted, reason); err != nil {
		return "", err
	}
	r.clearPath()
	r.waitRemaining = 0
	logrus.Infof("[tick %07d] robot %s aborted at %s (%s)", now, r.ID, r.Position, reason)
	return reason, nil
}

// resolveBlocked runs one decision exchange for a Blocked robot and applies the answer.
func (m *MotionController) resolveBlocked(ctx context.Context, r *Robot, now int64, obstacle Cell) (string, error) {
	req := DecisionRequest{
		RobotID:  r.ID,
		Tick:     now,
		Position: r.Position,
		Goal:     r.goal,
		Obstacle: obstacle,
	}
	if r.Order != nil {
		req.Context = fmt.Sprintf("delivering order %s to table %s; %d of %d waits used",
			r.Order.ID, r.Order.TableID, r.consecutiveWaits, m.config.MaxConsecutiveWaits)
	}
	resp, outcome := resolveDecision(ctx, m.provider, req, m.config.DecisionTimeout)
	r.leg.decisions++

	escalated := outcome == DecisionAccepted && resp.Action == ActionWait &&
		r.consecutiveWaits >= m.config.MaxConsecutiveWaits
	m.trace.RecordDecision(trace.DecisionRecord{
		RobotID:   r.ID,
		Tick:      now,
		Position:  trace.Position{X: r.Position.X, Y: r.Position.Y},
		Obstacle:  trace.Position{X: obstacle.X, Y: obstacle.Y},
		Action:    string(resp.Action),
		WaitTicks: resp.WaitTicks,
		Outcome:   string(outcome),
		Escalated: escalated,
	})

	// A fail-safe answer already carries ActionReportUnreachable; the outcome stays on
	// the decision record only.
	switch {
	case escalated:
		logrus.Warnf("[tick %07d] robot %s: %d consecutive waits without progress, reporting unreachable",
			now, r.ID, r.consecutiveWaits)
		return m.abort(r, now, ReasonBlockedLivelock)
	case resp.Action == ActionReroute:
		return m.reroute(r, now)
	case resp.Action == ActionWait:
		ticks := resp.WaitTicks
		if ticks == 0 {
			ticks = m.config.DefaultWaitTicks
		}
		r.consecutiveWaits++
		r.leg.waits++
		r.waitRemaining = ticks
		if err := r.setState(now, RobotWaiting, fmt.Sprintf("wait %d", ticks)); err != nil {
			return "", err
		}
		return "", nil
	default:
		return m.abort(r, now, ReasonReportUnreachable)
	}
}

// reroute replans from the robot's position to the leg's original goal. The planner
// sees the obstacle overlay, so the new path avoids the blocking cell.
func (m *MotionController) reroute(r *Robot, now int64) (string, error) {
	if err := r.setState(now, RobotReplanning, "reroute"); err != nil {
		return "", err
	}
	r.clearPath()
	r.leg.replans++
	r.consecutiveWaits = 0

	res := m.planner.FindPath(r.Position, r.goal)
	if !res.OK() {
		return m.abort(r, now, ReasonRerouteFailed)
	}
	if err := r.setPath(res.Path, res.Status == PlanApproximate); err != nil {
		return "", err
	}
	if err := r.setState(now, RobotMoving, "replanned"); err != nil {
		return "", err
	}
	logrus.Debugf("[tick %07d] robot %s replanned: %d steps to %s", now, r.ID, res.Path.Steps(), res.Target)
	return "", nil
}

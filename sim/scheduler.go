package sim

import (
	"context"

	"github.com/sirupsen/logrus"
)

// RobotScheduler drives one robot through Idle -> Planning -> Moving -> terminal -> Idle.
// Schedulers of one run share the Grid, the OrderManager and the MotionController but
// own disjoint Robot, Path and trajectory state.
type RobotScheduler struct {
	robot   *Robot
	grid    *Grid
	orders  *OrderManager
	planner Planner
	motion  *MotionController

	cycle    int64 // ticks of the last completed delivery cycle
	hasCycle bool
}

// NewRobotScheduler binds a robot to the shared run collaborators.
func NewRobotScheduler(robot *Robot, grid *Grid, orders *OrderManager, planner Planner, motion *MotionController) *RobotScheduler {
	return &RobotScheduler{
		robot:   robot,
		grid:    grid,
		orders:  orders,
		planner: planner,
		motion:  motion,
	}
}

// Robot returns the scheduled robot.
func (s *RobotScheduler) Robot() *Robot { return s.robot }

// Tick performs this tick's single unit of work for the robot and records its position.
// A non-nil record is returned when a delivery attempt ended during the tick.
func (s *RobotScheduler) Tick(ctx context.Context, now int64) (*DeliveryRecord, error) {
	r := s.robot
	var (
		rec *DeliveryRecord
		err error
	)
	switch r.State {
	case RobotIdle:
		rec, err = s.dispatch(now)
		if err == nil && rec == nil && r.State == RobotIdle {
			s.returnHome(now)
		}
	case RobotDelivered, RobotAborted:
		err = r.setState(now, RobotIdle, "ready")
	case RobotMoving, RobotWaiting:
		var reason string
		reason, err = s.motion.Advance(ctx, r, now)
		if err == nil && reason != "" {
			rec, err = s.finish(now, reason)
		}
	default:
		err = newInvariantViolation("robot %s: state %s must not persist across ticks", r.ID, r.State)
	}
	if err != nil {
		return nil, err
	}
	if !s.grid.IsFree(r.Position) {
		return nil, newInvariantViolation("robot %s at %s is not on a traversable cell", r.ID, r.Position)
	}
	r.record(now)
	return rec, nil
}

// dispatch claims the next ready order and plans the first leg. A planning failure fails
// the order immediately; the robot returns to Idle without leaving its cell.
func (s *RobotScheduler) dispatch(now int64) (*DeliveryRecord, error) {
	r := s.robot
	o, err := s.orders.NextReady(r.ID, now)
	if err != nil || o == nil {
		return nil, err
	}
	r.Order = o
	r.homing = nil
	r.leg = legStats{startTick: now}
	r.consecutiveWaits = 0
	if err := r.setState(now, RobotPlanning, "claimed"); err != nil {
		return nil, err
	}

	goal, ok := s.grid.DeliveryPoint(o.TableID)
	var res PlanResult
	if ok {
		res = s.planner.FindPath(r.Position, goal)
	}
	if !res.OK() {
		logrus.Infof("[tick %07d] robot %s: no path to table %s for order %s", now, r.ID, o.TableID, o.ID)
		rec, err := s.finish(now, ReasonPlanningFailure)
		if err != nil {
			return nil, err
		}
		return rec, r.setState(now, RobotIdle, ReasonPlanningFailure)
	}

	r.goal = goal
	if err := r.setPath(res.Path, res.Status == PlanApproximate); err != nil {
		return nil, err
	}
	if r.parked {
		r.cycleStart = now
		r.parked = false
	}
	if err := r.setState(now, RobotMoving, "planned"); err != nil {
		return nil, err
	}
	logrus.Debugf("[tick %07d] robot %s planned %d steps to %s for order %s", now, r.ID, res.Path.Steps(), res.Target, o.ID)
	return nil, nil
}

// AtRest reports whether the robot is Idle with no way home left to drive.
func (s *RobotScheduler) AtRest() bool {
	r := s.robot
	return r.State == RobotIdle && (r.parked || !s.motion.Config().ReturnToParking)
}

// TakeCycle returns the length of a delivery cycle (leaving home until parking again)
// completed since the last call.
func (s *RobotScheduler) TakeCycle() (int64, bool) {
	c, ok := s.cycle, s.hasCycle
	s.cycle, s.hasCycle = 0, false
	return c, ok
}

// returnHome drives an Idle robot one step toward its start cell. The leg is planned on
// one tick and walked on the following ones; a cell taken by an obstacle drops the path
// so the next tick replans around it. Homing is not a delivery: it never consults the
// decision provider and is abandoned as soon as an order is claimed.
func (s *RobotScheduler) returnHome(now int64) {
	r := s.robot
	if r.parked || !s.motion.Config().ReturnToParking {
		return
	}
	if r.Position == r.home {
		s.park(now)
		return
	}
	if r.homing == nil {
		res := s.planner.FindPath(r.Position, r.home)
		if !res.OK() || res.Path.Steps() == 0 {
			logrus.Warnf("[tick %07d] robot %s: no way back to %s, resting at %s", now, r.ID, r.home, r.Position)
			s.park(now)
			return
		}
		r.homing, r.homeCursor = res.Path, 0
		logrus.Debugf("[tick %07d] robot %s returning to %s: %d steps", now, r.ID, res.Target, res.Path.Steps())
		return
	}
	next := r.homing[r.homeCursor+1]
	if s.motion.obstacles != nil && s.motion.obstacles.Occupied(next) {
		logrus.Debugf("[tick %07d] robot %s: obstacle at %s on the way back", now, r.ID, next)
		r.homing = nil
		return
	}
	r.Position = next
	r.homeCursor++
	if r.homeCursor == len(r.homing)-1 {
		s.park(now)
	}
}

func (s *RobotScheduler) park(now int64) {
	r := s.robot
	r.homing = nil
	r.parked = true
	s.cycle, s.hasCycle = now-r.cycleStart, true
	logrus.Infof("[tick %07d] robot %s parked at %s after a %d-tick cycle", now, r.ID, r.Position, s.cycle)
}

// Abort ends an in-progress delivery with reason, e.g. on cancellation or at the horizon.
// Idle and terminal robots are left untouched.
func (s *RobotScheduler) Abort(now int64, reason string) (*DeliveryRecord, error) {
	r := s.robot
	if !r.State.IsActive() {
		return nil, nil
	}
	if _, err := s.motion.abort(r, now, reason); err != nil {
		return nil, err
	}
	return s.finish(now, reason)
}

// finish reports the terminal status to the OrderManager and builds the delivery record.
func (s *RobotScheduler) finish(now int64, reason string) (*DeliveryRecord, error) {
	r := s.robot
	o := r.Order
	if o == nil {
		return nil, newInvariantViolation("robot %s finished a delivery without an order", r.ID)
	}
	success := r.State == RobotDelivered
	var err error
	if success {
		err = s.orders.Complete(o.ID, now)
	} else {
		err = s.orders.Fail(o.ID, now, reason)
	}
	if err != nil {
		return nil, err
	}
	rec := &DeliveryRecord{
		OrderID:        o.ID,
		RobotID:        r.ID,
		TableID:        o.TableID,
		Success:        success,
		TicksElapsed:   now - r.leg.startTick,
		PathLength:     r.leg.steps,
		TerminalReason: reason,
		StartTick:      r.leg.startTick,
		EndTick:        now,
		Replans:        r.leg.replans,
		Waits:          r.leg.waits,
		Decisions:      r.leg.decisions,
	}
	r.Order = nil
	r.leg = legStats{}
	return rec, nil
}

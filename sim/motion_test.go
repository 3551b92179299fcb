package sim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dinebot-sim/dinebot-sim/sim/trace"
)

// blockedAheadConfig returns the 5x5 scenario with an obstacle appearing on (2,2) at
// tick 2, directly ahead of the robot which stands on (2,1) after its first step.
func blockedAheadConfig(t *testing.T, provider DecisionProvider, duration int64) SimConfig {
	cfg := newTestSimConfig(openGrid5x5(t), provider, OrderSpec{ID: "o1", Table: "T1"})
	cfg.Obstacles = []ObstacleSpec{{Tick: 2, Cell: Cell{2, 2}, Duration: duration}}
	return cfg
}

func TestMotion_AlwaysWait_EscalatesAtCap(t *testing.T) {
	// GIVEN a permanent obstacle ahead and a provider that always answers Wait
	p := &fixedProvider{resp: DecisionResponse{Action: ActionWait}}
	cfg := blockedAheadConfig(t, p, 0)

	// WHEN the run completes
	s, rep := runSim(t, cfg)

	// THEN the robot gave up after the configured number of waits instead of looping
	require.Len(t, rep.Deliveries, 1)
	rec := rep.Deliveries[0]
	assert.False(t, rec.Success)
	assert.Equal(t, ReasonBlockedLivelock, rec.TerminalReason)
	assert.Equal(t, cfg.Motion.MaxConsecutiveWaits, rec.Waits)
	assert.Equal(t, cfg.Motion.MaxConsecutiveWaits+1, rec.Decisions)
	assert.Equal(t, cfg.Motion.MaxConsecutiveWaits+1, p.calls)

	o, _ := s.Orders.Get("o1")
	assert.Equal(t, OrderFailed, o.Status)
	assert.Equal(t, RobotIdle, s.Robots()[0].State)

	// The last decision record is flagged as escalated
	require.NotEmpty(t, rep.Decisions)
	assert.True(t, rep.Decisions[len(rep.Decisions)-1].Escalated)
}

func TestMotion_WaitCap_Configurable(t *testing.T) {
	for _, limit := range []int{0, 1, 3} {
		p := &fixedProvider{resp: DecisionResponse{Action: ActionWait, WaitTicks: 2}}
		cfg := blockedAheadConfig(t, p, 0)
		cfg.Motion.MaxConsecutiveWaits = limit

		_, rep := runSim(t, cfg)

		require.Len(t, rep.Deliveries, 1)
		assert.Equal(t, ReasonBlockedLivelock, rep.Deliveries[0].TerminalReason, "cap %d", limit)
		assert.Equal(t, limit+1, p.calls, "cap %d", limit)
	}
}

func TestMotion_InvalidDecision_SameAsReportUnreachable(t *testing.T) {
	// GIVEN two identical runs, one with an invalid answer and one with ReportUnreachable
	invalid := &fixedProvider{resp: DecisionResponse{Action: "teleport"}}
	unreachable := &fixedProvider{resp: DecisionResponse{Action: ActionReportUnreachable}}

	sInvalid, repInvalid := runSim(t, blockedAheadConfig(t, invalid, 0))
	sUnreach, repUnreach := runSim(t, blockedAheadConfig(t, unreachable, 0))

	// THEN both robots abort at the same tick and place, and both orders fail
	rInvalid, rUnreach := sInvalid.Robots()[0], sUnreach.Robots()[0]
	assert.Equal(t, rUnreach.Position, rInvalid.Position)
	assert.Equal(t, transitionsOf(rUnreach.Trace()), transitionsOf(rInvalid.Trace()))

	require.Len(t, repInvalid.Deliveries, 1)
	require.Len(t, repUnreach.Deliveries, 1)
	assert.Equal(t, repUnreach.Deliveries[0].EndTick, repInvalid.Deliveries[0].EndTick)
	assert.False(t, repInvalid.Deliveries[0].Success)
	assert.Equal(t, repUnreach.Deliveries[0], repInvalid.Deliveries[0])
	assert.Equal(t, ReasonReportUnreachable, repInvalid.Deliveries[0].TerminalReason)

	// AND only the decision record tells them apart
	assert.Equal(t, string(DecisionInvalid), repInvalid.Decisions[0].Outcome)
	assert.Equal(t, string(DecisionAccepted), repUnreach.Decisions[0].Outcome)
}

// transitionsOf returns the from->to pairs of a robot log, ignoring reasons.
func transitionsOf(rt *trace.RobotTrace) []string {
	out := make([]string, 0, len(rt.Transitions))
	for _, tr := range rt.Transitions {
		out = append(out, tr.From+"->"+tr.To)
	}
	return out
}

func TestMotion_WaitThenObstacleClears_Resumes(t *testing.T) {
	// GIVEN an obstacle that clears two ticks after appearing and a Wait(1) answer
	p := &fixedProvider{resp: DecisionResponse{Action: ActionWait, WaitTicks: 1}}
	cfg := blockedAheadConfig(t, p, 2)

	_, rep := runSim(t, cfg)

	// THEN the robot holds, re-attempts the same step, and delivers on the original path
	require.Len(t, rep.Deliveries, 1)
	rec := rep.Deliveries[0]
	assert.True(t, rec.Success)
	assert.Equal(t, ReasonDelivered, rec.TerminalReason)
	assert.Equal(t, 3, rec.PathLength)
	assert.Equal(t, 1, rec.Waits)
	assert.Equal(t, 1, rec.Decisions)
	// blocked at 2, held at 3, stepped at 4 and 5
	assert.Equal(t, int64(5), rec.TicksElapsed)
}

func TestMotion_RerouteWithoutAlternative_Aborts(t *testing.T) {
	// GIVEN a one-lane corridor and a reroute answer with substitute goals disabled
	g := gridFromRows(t,
		"P...",
		"###1",
	)
	cfg := newTestSimConfig(g, &fixedProvider{resp: DecisionResponse{Action: ActionReroute}}, OrderSpec{ID: "o1", Table: "T1"})
	cfg.Planner.MaxRadius = 0
	cfg.Obstacles = []ObstacleSpec{{Tick: 2, Cell: Cell{2, 0}}}

	_, rep := runSim(t, cfg)

	require.Len(t, rep.Deliveries, 1)
	assert.False(t, rep.Deliveries[0].Success)
	assert.Equal(t, ReasonRerouteFailed, rep.Deliveries[0].TerminalReason)
	assert.Equal(t, 1, rep.Deliveries[0].Replans)
}

func TestMotion_PathHeldOnlyWhileMovingOrReplanning(t *testing.T) {
	// GIVEN a robot blocked and told to wait
	p := &fixedProvider{resp: DecisionResponse{Action: ActionWait, WaitTicks: 3}}
	s, err := NewSimulator(blockedAheadConfig(t, p, 0))
	require.NoError(t, err)
	r := s.Robots()[0]

	// WHEN ticks advance
	for i := 0; i < 6; i++ {
		require.NoError(t, s.Step(context.Background()))

		// THEN Path is set exactly in Moving (Replanning never outlives a tick)
		if r.State == RobotMoving {
			assert.NotEmpty(t, r.Path, "tick %d", i)
			assert.Equal(t, r.Position, r.Path[r.Cursor()], "tick %d", i)
		} else {
			assert.Nil(t, r.Path, "tick %d state %s", i, r.State)
		}
	}
	assert.Equal(t, RobotWaiting, r.State)
}

func TestMotion_OffPathPosition_IsInvariantViolation(t *testing.T) {
	g := openGrid5x5(t)
	planner := NewAStarPlanner(g, nil, 0)
	m := NewMotionController(g, planner, nil, nil, DefaultMotionConfig(), nil)
	r := NewRobot("r1", Cell{0, 0}, nil)
	r.State = RobotMoving
	r.Path = Path{{1, 1}, {1, 2}}

	_, err := m.Advance(context.Background(), r, 0)
	assert.True(t, IsInvariantViolation(err))
}

func TestMotion_AdvanceFromIdle_IsInvariantViolation(t *testing.T) {
	g := openGrid5x5(t)
	m := NewMotionController(g, NewAStarPlanner(g, nil, 0), nil, nil, DefaultMotionConfig(), nil)
	_, err := m.Advance(context.Background(), NewRobot("r1", Cell{0, 0}, nil), 0)
	assert.True(t, IsInvariantViolation(err))
}

func TestIsValidRobotTransition(t *testing.T) {
	assert.True(t, IsValidRobotTransition(RobotIdle, RobotPlanning))
	assert.True(t, IsValidRobotTransition(RobotPlanning, RobotIdle))
	assert.True(t, IsValidRobotTransition(RobotBlocked, RobotWaiting))
	assert.True(t, IsValidRobotTransition(RobotDelivered, RobotIdle))
	assert.False(t, IsValidRobotTransition(RobotIdle, RobotMoving))
	assert.False(t, IsValidRobotTransition(RobotDelivered, RobotMoving))
	assert.False(t, IsValidRobotTransition(RobotWaiting, RobotDelivered))
}

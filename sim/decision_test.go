package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		text string
		want Action
		ok   bool
	}{
		{"reroute", ActionReroute, true},
		{"  REROUTE ", ActionReroute, true},
		{"I suggest planning a new path around it", ActionReroute, true},
		{"replan now", ActionReroute, true},
		{"wait", ActionWait, true},
		{"Please WAIT for 2 ticks", ActionWait, true},
		{"report_unreachable", ActionReportUnreachable, true},
		{"destination unreachable", ActionReportUnreachable, true},
		{"unreachable, do not reroute", ActionReportUnreachable, true},
		{"do not reroute, wait 2 ticks", ActionWait, true},
		{"don't wait; reroute around it", ActionReroute, true},
		{"never wait", "", false},
		{"", "", false},
		{"dance", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := ParseAction(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecisionRequest_Query_MentionsEverything(t *testing.T) {
	req := DecisionRequest{RobotID: "r7", Position: Cell{1, 2}, Goal: Cell{4, 4}, Obstacle: Cell{1, 3}, Context: "busy floor"}
	q := req.Query()
	for _, want := range []string{"r7", "(1,3)", "(1,2)", "(4,4)", "reroute", "wait", "report_unreachable", "busy floor"} {
		assert.Contains(t, q, want)
	}
}

func TestResolveDecision_Accepted(t *testing.T) {
	p := &fixedProvider{resp: DecisionResponse{Action: ActionWait, WaitTicks: 3}}
	resp, outcome := resolveDecision(context.Background(), p, DecisionRequest{RobotID: "r1"}, time.Second)
	assert.Equal(t, DecisionAccepted, outcome)
	assert.Equal(t, DecisionResponse{Action: ActionWait, WaitTicks: 3}, resp)
}

func TestResolveDecision_FailSafe(t *testing.T) {
	tests := []struct {
		name     string
		provider DecisionProvider
		timeout  time.Duration
		want     DecisionOutcome
	}{
		{"nil provider", nil, time.Second, DecisionMissing},
		{"unknown action", &fixedProvider{resp: DecisionResponse{Action: "dance"}}, time.Second, DecisionInvalid},
		{"empty action", &fixedProvider{resp: DecisionResponse{}}, time.Second, DecisionInvalid},
		{"negative wait", &fixedProvider{resp: DecisionResponse{Action: ActionWait, WaitTicks: -1}}, time.Second, DecisionInvalid},
		{"provider error", &fixedProvider{resp: DecisionResponse{Action: ActionReroute}, err: errors.New("boom")}, time.Second, DecisionError},
		{"timeout", ProviderFunc(func(ctx context.Context, _ DecisionRequest) (DecisionResponse, error) {
			time.Sleep(200 * time.Millisecond)
			return DecisionResponse{Action: ActionReroute}, nil
		}), 10 * time.Millisecond, DecisionTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, outcome := resolveDecision(context.Background(), tt.provider, DecisionRequest{RobotID: "r1"}, tt.timeout)

			// THEN every malformed, failed or missing answer becomes ReportUnreachable
			assert.Equal(t, tt.want, outcome)
			assert.Equal(t, ActionReportUnreachable, resp.Action)
		})
	}
}

func TestResolveDecision_ProviderHonouringContextTimesOut(t *testing.T) {
	p := ProviderFunc(func(ctx context.Context, _ DecisionRequest) (DecisionResponse, error) {
		<-ctx.Done()
		return DecisionResponse{}, ctx.Err()
	})
	start := time.Now()
	resp, outcome := resolveDecision(context.Background(), p, DecisionRequest{RobotID: "r1"}, 20*time.Millisecond)
	assert.Less(t, time.Since(start), time.Second, "caller must not block past the timeout")
	assert.Contains(t, []DecisionOutcome{DecisionTimeout, DecisionError}, outcome)
	assert.Equal(t, ActionReportUnreachable, resp.Action)
}

func TestResolveDecision_ZeroTimeoutStillBounded(t *testing.T) {
	// GIVEN a provider that never answers on its own
	p := ProviderFunc(func(ctx context.Context, _ DecisionRequest) (DecisionResponse, error) {
		<-ctx.Done()
		return DecisionResponse{}, ctx.Err()
	})

	// WHEN the exchange is configured without a timeout
	start := time.Now()
	resp, outcome := resolveDecision(context.Background(), p, DecisionRequest{RobotID: "r1"}, 0)

	// THEN the default deadline applies and the answer fails safe
	assert.Less(t, time.Since(start), DefaultDecisionTimeout+time.Second)
	assert.Contains(t, []DecisionOutcome{DecisionTimeout, DecisionError}, outcome)
	assert.Equal(t, ActionReportUnreachable, resp.Action)
}

func TestNewMotionController_ZeroTimeoutGetsDefault(t *testing.T) {
	m := NewMotionController(nil, nil, nil, nil, MotionConfig{}, nil)
	assert.Equal(t, DefaultDecisionTimeout, m.Config().DecisionTimeout)
}

func TestBaselineProvider_DefaultsToReportUnreachable(t *testing.T) {
	resp, err := NewBaselineProvider().Decide(context.Background(), DecisionRequest{})
	assert.NoError(t, err)
	assert.Equal(t, ActionReportUnreachable, resp.Action)
}

package sim

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Action is the decision a provider returns for an obstructed robot.
type Action string

const (
	ActionReroute           Action = "reroute"
	ActionWait              Action = "wait"
	ActionReportUnreachable Action = "report_unreachable"
)

// ValidActions is the set of recognised actions.
var ValidActions = map[Action]bool{
	ActionReroute:           true,
	ActionWait:              true,
	ActionReportUnreachable: true,
}

// ParseAction maps free text to an Action. Matching is by keyword, so replies such as
// "I suggest a new path" or "WAIT for 2 ticks" are understood. Unreachable is checked
// first, and a keyword directly after a negation ("do not reroute") does not count.
func ParseAction(text string) (Action, bool) {
	d := strings.ToLower(strings.TrimSpace(text))
	switch {
	case d == "":
		return "", false
	case mentions(d, "unreachable"):
		return ActionReportUnreachable, true
	case mentions(d, "reroute"), mentions(d, "new path"), mentions(d, "replan"):
		return ActionReroute, true
	case mentions(d, "wait"):
		return ActionWait, true
	}
	return "", false
}

var negations = []string{"not", "don't", "dont", "no", "never", "without"}

// mentions reports whether keyword occurs in d at least once without a negation as the
// preceding word.
func mentions(d, keyword string) bool {
	for rest, offset := d, 0; ; {
		i := strings.Index(rest, keyword)
		if i < 0 {
			return false
		}
		prev := strings.Fields(d[:offset+i])
		if len(prev) == 0 || !isNegation(prev[len(prev)-1]) {
			return true
		}
		offset += i + len(keyword)
		rest = d[offset:]
	}
}

func isNegation(word string) bool {
	word = strings.Trim(word, ",.;:!")
	for _, n := range negations {
		if word == n {
			return true
		}
	}
	return false
}

// DecisionRequest describes an obstacle encounter.
type DecisionRequest struct {
	RobotID  string `json:"robot_id"`
	Tick     int64  `json:"tick"`
	Position Cell   `json:"position"`
	Goal     Cell   `json:"goal"`
	Obstacle Cell   `json:"obstacle"`
	Context  string `json:"context,omitempty"`
}

// Query renders the request as a natural-language question, the form retrieval-based
// providers search with.
func (r DecisionRequest) Query() string {
	q := fmt.Sprintf("Robot#%s encounters an obstacle at %s while heading from %s to %s. "+
		"Suggest the best action (options: reroute, wait, report_unreachable).",
		r.RobotID, r.Obstacle, r.Position, r.Goal)
	if r.Context != "" {
		q += " Context: " + r.Context
	}
	return q
}

// DecisionResponse is a provider's answer. WaitTicks is a hint for ActionWait;
// zero means "use the default".
type DecisionResponse struct {
	Action    Action `json:"action"`
	WaitTicks int64  `json:"wait_ticks,omitempty"`
}

// DecisionProvider answers obstacle encounters. Implementations should honour ctx;
// the caller applies a timeout regardless.
type DecisionProvider interface {
	Decide(ctx context.Context, req DecisionRequest) (DecisionResponse, error)
}

// ProviderFunc adapts a function to DecisionProvider.
type ProviderFunc func(ctx context.Context, req DecisionRequest) (DecisionResponse, error)

func (f ProviderFunc) Decide(ctx context.Context, req DecisionRequest) (DecisionResponse, error) {
	return f(ctx, req)
}

// BaselineProvider answers every request with a fixed action without consulting anything.
type BaselineProvider struct {
	Action    Action
	WaitTicks int64
}

// NewBaselineProvider returns a provider that always reports the destination unreachable.
func NewBaselineProvider() *BaselineProvider {
	return &BaselineProvider{Action: ActionReportUnreachable}
}

func (b *BaselineProvider) Decide(_ context.Context, _ DecisionRequest) (DecisionResponse, error) {
	return DecisionResponse{Action: b.Action, WaitTicks: b.WaitTicks}, nil
}

// DecisionOutcome classifies how a decision exchange ended.
type DecisionOutcome string

const (
	DecisionAccepted DecisionOutcome = "accepted"
	DecisionInvalid  DecisionOutcome = "invalid" // unknown action or bad hint
	DecisionError    DecisionOutcome = "error"   // provider returned an error
	DecisionTimeout  DecisionOutcome = "timeout" // no answer within the timeout
	DecisionMissing  DecisionOutcome = "missing" // no provider configured
)

// resolveDecision asks provider for a decision, bounded by timeout. Anything other than
// a well-formed answer degrades to ActionReportUnreachable.
func resolveDecision(ctx context.Context, provider DecisionProvider, req DecisionRequest, timeout time.Duration) (DecisionResponse, DecisionOutcome) {
	failSafe := DecisionResponse{Action: ActionReportUnreachable}
	if provider == nil {
		logrus.Warnf("[tick %07d] robot %s: no decision provider, failing safe", req.Tick, req.RobotID)
		return failSafe, DecisionMissing
	}

	if timeout <= 0 {
		timeout = DefaultDecisionTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type answer struct {
		resp DecisionResponse
		err  error
	}
	done := make(chan answer, 1)
	go func() {
		resp, err := provider.Decide(callCtx, req)
		done <- answer{resp, err}
	}()

	var ans answer
	select {
	case ans = <-done:
	case <-callCtx.Done():
		// An answer that raced the deadline still wins.
		select {
		case ans = <-done:
		default:
			logrus.Warnf("[tick %07d] robot %s: decision timed out: %v", req.Tick, req.RobotID, callCtx.Err())
			return failSafe, DecisionTimeout
		}
	}

	if ans.err != nil {
		logrus.Warnf("[tick %07d] robot %s: decision provider error: %v", req.Tick, req.RobotID, ans.err)
		return failSafe, DecisionError
	}
	if !ValidActions[ans.resp.Action] || ans.resp.WaitTicks < 0 {
		logrus.Warnf("[tick %07d] robot %s: invalid decision %+v", req.Tick, req.RobotID, ans.resp)
		return failSafe, DecisionInvalid
	}
	return ans.resp, DecisionAccepted
}

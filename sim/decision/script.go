package decision

import (
	"context"
	"sync"

	"github.com/dinebot-sim/dinebot-sim/sim"
)

// ScriptProvider replays a fixed action sequence, one action per request. When the
// script runs out it either starts over (cycle) or repeats its last action.
type ScriptProvider struct {
	mu        sync.Mutex
	actions   []sim.Action
	waitTicks int64
	cycle     bool
	next      int
}

// NewScriptProvider creates a script provider. Panics on an empty script.
func NewScriptProvider(actions []sim.Action, waitTicks int64, cycle bool) *ScriptProvider {
	if len(actions) == 0 {
		panic("script provider needs at least one action")
	}
	return &ScriptProvider{actions: append([]sim.Action(nil), actions...), waitTicks: waitTicks, cycle: cycle}
}

func (p *ScriptProvider) Decide(_ context.Context, _ sim.DecisionRequest) (sim.DecisionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := p.actions[p.next]
	switch {
	case p.next+1 < len(p.actions):
		p.next++
	case p.cycle:
		p.next = 0
	}
	resp := sim.DecisionResponse{Action: a}
	if a == sim.ActionWait {
		resp.WaitTicks = p.waitTicks
	}
	return resp, nil
}

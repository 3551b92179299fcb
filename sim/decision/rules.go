package decision

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/dinebot-sim/dinebot-sim/sim"
)

// DefaultTopK is the number of documents a rules provider retrieves per request.
const DefaultTopK = 3

// RulesProvider answers with the action of the best-ranked knowledge document for the
// request's query. With no matching document it answers Fallback.
type RulesProvider struct {
	kb        *KnowledgeBase
	topK      int
	fallback  sim.Action
	waitTicks int64 // hint used when the winning document carries none
}

// NewRulesProvider creates a retrieval provider over kb. A zero topK means DefaultTopK;
// an empty fallback means report_unreachable.
func NewRulesProvider(kb *KnowledgeBase, topK int, fallback sim.Action, waitTicks int64) *RulesProvider {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if fallback == "" {
		fallback = sim.ActionReportUnreachable
	}
	return &RulesProvider{kb: kb, topK: topK, fallback: fallback, waitTicks: waitTicks}
}

func (p *RulesProvider) Decide(ctx context.Context, req sim.DecisionRequest) (sim.DecisionResponse, error) {
	if err := ctx.Err(); err != nil {
		return sim.DecisionResponse{}, err
	}
	matches := p.Retrieve(req)
	if len(matches) == 0 {
		logrus.Debugf("[tick %07d] robot %s: no knowledge matched, answering %s", req.Tick, req.RobotID, p.fallback)
		return sim.DecisionResponse{Action: p.fallback, WaitTicks: p.hint(p.fallback, 0)}, nil
	}
	best := matches[0].Document
	action := sim.Action(best.Action)
	logrus.Debugf("[tick %07d] robot %s: rule %s (score %d) -> %s", req.Tick, req.RobotID, best.ID, matches[0].Score, action)
	return sim.DecisionResponse{Action: action, WaitTicks: p.hint(action, best.WaitTicks)}, nil
}

// Retrieve returns the ranked documents for req.
func (p *RulesProvider) Retrieve(req sim.DecisionRequest) []Match {
	return p.kb.Search(req.Query(), p.topK)
}

func (p *RulesProvider) hint(action sim.Action, docTicks int64) int64 {
	if action != sim.ActionWait {
		return 0
	}
	if docTicks > 0 {
		return docTicks
	}
	return p.waitTicks
}

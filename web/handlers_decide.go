package web

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/dinebot-sim/dinebot-sim/sim"
	"github.com/dinebot-sim/dinebot-sim/sim/decision"
)

// apiDecide answers an obstacle encounter with the rules provider. The reply is the
// document an HTTPProvider on the other end parses.
func (h *Handlers) apiDecide(w http.ResponseWriter, r *http.Request) {
	var req sim.DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.RobotID == "" {
		h.jsonError(w, "robot_id is required", http.StatusBadRequest)
		return
	}

	_, rules := h.knowledge()
	resp, err := rules.Decide(r.Context(), req)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	reply := decision.Reply{Action: string(resp.Action), WaitTicks: resp.WaitTicks}
	if matches := rules.Retrieve(req); len(matches) > 0 {
		reply.RuleID = matches[0].Document.ID
		reply.Text = matches[0].Document.Content
	}
	logrus.Debugf("[tick %07d] decide robot %s: %s (rule %q)", req.Tick, req.RobotID, reply.Action, reply.RuleID)
	h.jsonOK(w, reply)
}

func (h *Handlers) apiListKnowledge(w http.ResponseWriter, r *http.Request) {
	kb, _ := h.knowledge()
	h.jsonOK(w, kb.Documents())
}

// apiReplaceKnowledge swaps the served knowledge base. With Redis configured the new
// documents are written through so other runs share them.
func (h *Handlers) apiReplaceKnowledge(w http.ResponseWriter, r *http.Request) {
	var docs []decision.Document
	if err := json.NewDecoder(r.Body).Decode(&docs); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	kb, err := decision.NewKnowledgeBase(docs)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if h.redis != nil && h.redisKey != "" {
		src := decision.RedisKnowledgeSource{Client: h.redis, Key: h.redisKey}
		if err := src.Store(r.Context(), kb.Documents()); err != nil {
			h.jsonError(w, err.Error(), http.StatusBadGateway)
			return
		}
	}
	h.setKnowledge(kb)
	logrus.Infof("knowledge replaced: %d documents", kb.Len())
	h.jsonOK(w, map[string]int{"documents": kb.Len()})
}

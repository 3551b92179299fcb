package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dinebot-sim/dinebot-sim/sim"
)

// maxReplyBytes bounds how much of a decision service reply is read.
const maxReplyBytes = 64 << 10

// Reply is the JSON body a decision service answers with. Text carries a free-form
// answer when Action is empty; both are interpreted with sim.ParseAction.
type Reply struct {
	Action    string `json:"action,omitempty"`
	WaitTicks int64  `json:"wait_ticks,omitempty"`
	Text      string `json:"text,omitempty"`
	RuleID    string `json:"rule_id,omitempty"`
}

// HTTPProvider asks a remote decision service. The request is POSTed as JSON; the reply
// may be a Reply document or plain text.
type HTTPProvider struct {
	url    string
	client *http.Client
}

// NewHTTPProvider creates a remote provider. A nil client gets a 5s timeout client.
func NewHTTPProvider(url string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPProvider{url: url, client: client}
}

func (p *HTTPProvider) Decide(ctx context.Context, req sim.DecisionRequest) (sim.DecisionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return sim.DecisionResponse{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return sim.DecisionResponse{}, fmt.Errorf("decision request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return sim.DecisionResponse{}, fmt.Errorf("decision request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return sim.DecisionResponse{}, fmt.Errorf("decision reply: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return sim.DecisionResponse{}, fmt.Errorf("decision service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return parseReply(raw), nil
}

// parseReply turns a reply body into a response. An answer no keyword matches is
// passed through verbatim so the caller classifies it as invalid.
func parseReply(raw []byte) sim.DecisionResponse {
	text := strings.TrimSpace(string(raw))
	var reply Reply
	if strings.HasPrefix(text, "{") && json.Unmarshal(raw, &reply) == nil {
		text = reply.Action
		if text == "" {
			text = reply.Text
		}
	}
	action, ok := sim.ParseAction(text)
	if !ok {
		logrus.Debugf("decision reply %q matched no action", text)
		return sim.DecisionResponse{Action: sim.Action(text)}
	}
	resp := sim.DecisionResponse{Action: action}
	if action == sim.ActionWait {
		resp.WaitTicks = reply.WaitTicks
	}
	return resp
}

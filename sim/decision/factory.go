// Package decision implements the decision providers consulted when a robot's path is
// obstructed, and a name-based factory over them.
package decision

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/dinebot-sim/dinebot-sim/sim"
)

// Options carries what NewProvider needs beyond the policy itself.
type Options struct {
	Policy     sim.DecisionPolicy
	Knowledge  *KnowledgeBase        // rules: takes precedence over the policy's sources
	Redis      redis.UniversalClient // rules: required for knowledge_redis
	HTTPClient *http.Client          // http: nil uses a default client
}

// NewProvider builds the provider named by opts.Policy.Provider ("" means baseline).
// Panics on an unknown name; callers validate the policy first.
func NewProvider(ctx context.Context, opts Options) (sim.DecisionProvider, error) {
	p := opts.Policy
	if !sim.ValidProviderNames[p.Provider] {
		panic(fmt.Sprintf("unknown decision provider %q", p.Provider))
	}
	switch p.Provider {
	case "", "baseline":
		b := sim.NewBaselineProvider()
		if p.Action != "" {
			b.Action = sim.Action(p.Action)
		}
		if p.WaitTicks != nil {
			b.WaitTicks = *p.WaitTicks
		}
		return b, nil
	case "script":
		if len(p.Script) == 0 {
			return nil, fmt.Errorf("script provider needs a non-empty script")
		}
		actions := make([]sim.Action, len(p.Script))
		for i, a := range p.Script {
			actions[i] = sim.Action(a)
		}
		return NewScriptProvider(actions, derefInt64(p.WaitTicks), p.Cycle), nil
	case "rules":
		kb, err := knowledgeFor(ctx, opts)
		if err != nil {
			return nil, err
		}
		topK := 0
		if p.TopK != nil {
			topK = *p.TopK
		}
		return NewRulesProvider(kb, topK, sim.Action(p.Fallback), derefInt64(p.WaitTicks)), nil
	case "http":
		if p.URL == "" {
			return nil, fmt.Errorf("http provider needs a url")
		}
		return NewHTTPProvider(p.URL, opts.HTTPClient), nil
	default:
		panic(fmt.Sprintf("unhandled decision provider %q", p.Provider))
	}
}

// knowledgeFor resolves the rules provider's knowledge: an injected base, then a file,
// then a Redis list, then the built-in documents.
func knowledgeFor(ctx context.Context, opts Options) (*KnowledgeBase, error) {
	p := opts.Policy
	switch {
	case opts.Knowledge != nil:
		return opts.Knowledge, nil
	case p.KnowledgeFile != "":
		return LoadKnowledgeBase(ctx, FileSource{Path: p.KnowledgeFile})
	case p.KnowledgeRedis != "":
		if opts.Redis == nil {
			return nil, fmt.Errorf("knowledge_redis %q set but no redis client configured", p.KnowledgeRedis)
		}
		return LoadKnowledgeBase(ctx, RedisKnowledgeSource{Client: opts.Redis, Key: p.KnowledgeRedis})
	default:
		return NewKnowledgeBase(DefaultDocuments())
	}
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

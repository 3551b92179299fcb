// Package scenario loads simulation scenarios from YAML and turns them into a ready
// sim.SimConfig, resolving the layout and the decision provider.
package scenario

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/dinebot-sim/dinebot-sim/sim"
	"github.com/dinebot-sim/dinebot-sim/sim/decision"
	"github.com/dinebot-sim/dinebot-sim/sim/layout"
	"github.com/dinebot-sim/dinebot-sim/sim/trace"
)

// Scenario is the top-level run description.
type Scenario struct {
	Name            string                   `yaml:"name"`
	Layout          LayoutRef                `yaml:"layout"`
	Robots          []sim.RobotSpec          `yaml:"robots"`
	Orders          []sim.OrderSpec          `yaml:"orders"`
	Obstacles       []sim.ObstacleSpec       `yaml:"obstacles"`
	RandomOrders    sim.RandomOrderConfig    `yaml:"random_orders"`
	RandomObstacles sim.RandomObstacleConfig `yaml:"random_obstacles"`
	Seed            int64                    `yaml:"seed"`
	TraceLevel      string                   `yaml:"trace_level"`
	Policy          sim.PolicyBundle         `yaml:"policy"`

	dir string // resolves relative file references; empty for in-memory scenarios
}

// LayoutRef names the floor plan: exactly one of a built-in preset, a layout file, or an
// inline layout.
type LayoutRef struct {
	Preset string         `yaml:"preset,omitempty"`
	File   string         `yaml:"file,omitempty"`
	Inline *layout.Layout `yaml:"inline,omitempty"`
}

// Load reads and strictly parses a scenario file. Relative layout and knowledge paths
// are resolved against the file's directory.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	sc.dir = filepath.Dir(path)
	return sc, nil
}

// Parse strictly decodes a scenario document. A parsed scenario has no directory, so
// Validate rejects layout files, knowledge sources and decision service URLs in it.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	return &sc, nil
}

// Validate checks the parts of the scenario that do not need the grid.
func (s *Scenario) Validate() error {
	refs := 0
	for _, set := range []bool{s.Layout.Preset != "", s.Layout.File != "", s.Layout.Inline != nil} {
		if set {
			refs++
		}
	}
	if refs != 1 {
		return fmt.Errorf("scenario %q: layout needs exactly one of preset, file or inline", s.Name)
	}
	if s.dir == "" {
		if field := s.externalRef(); field != "" {
			return fmt.Errorf("scenario %q: %s is only allowed in scenario files", s.Name, field)
		}
	}
	if s.Layout.Preset != "" {
		if _, ok := layout.Preset(s.Layout.Preset); !ok {
			return fmt.Errorf("scenario %q: unknown layout preset %q; valid: %v", s.Name, s.Layout.Preset, layout.PresetNames())
		}
	}
	if len(s.Robots) == 0 {
		return fmt.Errorf("scenario %q: at least one robot is required", s.Name)
	}
	if s.TraceLevel != "" && !trace.IsValidTraceLevel(s.TraceLevel) {
		return fmt.Errorf("scenario %q: unknown trace_level %q", s.Name, s.TraceLevel)
	}
	if s.RandomOrders.Count < 0 || s.RandomOrders.MaxPrepTicks < 0 || s.RandomOrders.ArrivalSpread < 0 {
		return fmt.Errorf("scenario %q: random_orders values must be non-negative", s.Name)
	}
	if s.RandomObstacles.Count < 0 || s.RandomObstacles.MaxTick < 0 || s.RandomObstacles.MaxDuration < 0 {
		return fmt.Errorf("scenario %q: random_obstacles values must be non-negative", s.Name)
	}
	if err := s.Policy.Validate(); err != nil {
		return fmt.Errorf("scenario %q: policy: %w", s.Name, err)
	}
	return nil
}

// externalRef names the first field that reaches outside the scenario document: a
// file on disk, a Redis key or a decision service address.
func (s *Scenario) externalRef() string {
	switch {
	case s.Layout.File != "":
		return "layout.file"
	case s.Policy.Decision.KnowledgeFile != "":
		return "policy.decision.knowledge_file"
	case s.Policy.Decision.KnowledgeRedis != "":
		return "policy.decision.knowledge_redis"
	case s.Policy.Decision.URL != "":
		return "policy.decision.url"
	}
	return ""
}

// Grid resolves and decodes the scenario's layout.
func (s *Scenario) Grid() (*sim.Grid, error) {
	var (
		l   *layout.Layout
		err error
	)
	switch {
	case s.Layout.Inline != nil:
		l = s.Layout.Inline
	case s.Layout.File != "":
		l, err = layout.Load(s.resolve(s.Layout.File))
	default:
		var ok bool
		if l, ok = layout.Preset(s.Layout.Preset); !ok {
			err = fmt.Errorf("unknown layout preset %q", s.Layout.Preset)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
	}
	if l.Name == "" {
		l.Name = s.Name
	}
	g, err := l.Grid()
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
	}
	if unreachable := layout.UnreachableTables(g); len(unreachable) > 0 {
		logrus.Warnf("scenario %q: tables %v cannot be reached from parking or kitchen", s.Name, unreachable)
	}
	return g, nil
}

// Deps are the shared handles a scenario's decision provider may need.
type Deps struct {
	Knowledge  *decision.KnowledgeBase
	Redis      redis.UniversalClient
	HTTPClient *http.Client
}

// Config validates the scenario and builds a simulator configuration: defaults, then the
// policy bundle, then the scenario's own entities.
func (s *Scenario) Config(ctx context.Context, deps Deps) (sim.SimConfig, error) {
	if err := s.Validate(); err != nil {
		return sim.SimConfig{}, err
	}
	g, err := s.Grid()
	if err != nil {
		return sim.SimConfig{}, err
	}

	policy := s.Policy.Decision
	if policy.KnowledgeFile != "" {
		policy.KnowledgeFile = s.resolve(policy.KnowledgeFile)
	}
	provider, err := decision.NewProvider(ctx, decision.Options{
		Policy:     policy,
		Knowledge:  deps.Knowledge,
		Redis:      deps.Redis,
		HTTPClient: deps.HTTPClient,
	})
	if err != nil {
		return sim.SimConfig{}, fmt.Errorf("scenario %q: decision provider: %w", s.Name, err)
	}
	providerName := policy.Provider
	if providerName == "" {
		providerName = "baseline"
	}

	cfg := sim.DefaultSimConfig()
	s.Policy.Apply(&cfg)
	cfg.Name = s.Name
	cfg.Grid = g
	cfg.Robots = s.Robots
	cfg.Orders = s.Orders
	cfg.Obstacles = s.Obstacles
	cfg.RandomOrders = s.RandomOrders
	cfg.RandomObstacles = s.RandomObstacles
	cfg.Seed = s.Seed
	cfg.TraceLevel = s.TraceLevel
	cfg.Provider = provider
	cfg.ProviderName = providerName
	return cfg, nil
}

// WithDecision returns a copy of the scenario using policy for decisions.
func (s *Scenario) WithDecision(policy sim.DecisionPolicy) *Scenario {
	c := *s
	c.Policy.Decision = policy
	return &c
}

func (s *Scenario) resolve(path string) string {
	if s.dir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.dir, path)
}

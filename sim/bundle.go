package sim

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// PolicyBundle holds the tunable policy of a run, loadable from a YAML file or embedded
// in a scenario under "policy". Nil pointer fields mean "not set in YAML" and keep the
// defaults. String fields use empty string for "not set".
type PolicyBundle struct {
	Planner  PlannerPolicy  `yaml:"planner"`
	Motion   MotionPolicy   `yaml:"motion"`
	Kitchen  KitchenPolicy  `yaml:"kitchen"`
	Decision DecisionPolicy `yaml:"decision"`
	Horizon  *int64         `yaml:"horizon"`
}

// PlannerPolicy holds planner configuration.
type PlannerPolicy struct {
	MaxRadius *int `yaml:"max_radius"`
}

// MotionPolicy holds motion controller configuration.
type MotionPolicy struct {
	MaxConsecutiveWaits *int           `yaml:"max_consecutive_waits"`
	DefaultWaitTicks    *int64         `yaml:"default_wait_ticks"`
	DecisionTimeout     *time.Duration `yaml:"decision_timeout"`
	ReturnToParking     *bool          `yaml:"return_to_parking"`
}

// KitchenPolicy holds order lifecycle configuration.
type KitchenPolicy struct {
	MaxPreparing *int `yaml:"max_preparing"`
}

// DecisionPolicy selects and configures the decision provider.
type DecisionPolicy struct {
	Provider       string   `yaml:"provider"`
	Action         string   `yaml:"action"`          // baseline: fixed answer
	WaitTicks      *int64   `yaml:"wait_ticks"`      // baseline/script: wait hint
	Script         []string `yaml:"script"`          // script: action sequence
	Cycle          bool     `yaml:"cycle"`           // script: restart when exhausted
	KnowledgeFile  string   `yaml:"knowledge_file"`  // rules: YAML/JSON rule documents
	KnowledgeRedis string   `yaml:"knowledge_redis"` // rules: Redis list key
	Fallback       string   `yaml:"fallback"`        // rules: action when nothing matches
	TopK           *int     `yaml:"top_k"`           // rules: documents considered
	URL            string   `yaml:"url"`             // http: decision service endpoint
}

// DefaultHorizon is the tick limit applied when neither the scenario nor a flag sets one.
const DefaultHorizon int64 = 10000

// DefaultMaxRadius is the planner's substitute-goal radius cap.
const DefaultMaxRadius = 3

// DefaultMaxPreparing is the kitchen capacity.
const DefaultMaxPreparing = 3

// LoadPolicyBundle reads and strictly parses a YAML policy configuration file.
func LoadPolicyBundle(path string) (*PolicyBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy config: %w", err)
	}
	var bundle PolicyBundle
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&bundle); err != nil {
		return nil, fmt.Errorf("parsing policy config: %w", err)
	}
	return &bundle, nil
}

// ValidProviderNames is the set of recognized decision provider names.
// Shared by Validate() and decision.NewProvider() to avoid duplication.
var ValidProviderNames = map[string]bool{"": true, "baseline": true, "rules": true, "http": true, "script": true}

// ProviderNames returns the sorted, non-empty decision provider names.
func ProviderNames() []string {
	names := make([]string, 0, len(ValidProviderNames))
	for name := range ValidProviderNames {
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Validate checks that all policy names and parameter ranges in the bundle are valid.
func (b *PolicyBundle) Validate() error {
	if !ValidProviderNames[b.Decision.Provider] {
		return fmt.Errorf("unknown decision provider %q", b.Decision.Provider)
	}
	if b.Decision.Action != "" && !ValidActions[Action(b.Decision.Action)] {
		return fmt.Errorf("unknown baseline action %q", b.Decision.Action)
	}
	if b.Decision.Fallback != "" && !ValidActions[Action(b.Decision.Fallback)] {
		return fmt.Errorf("unknown fallback action %q", b.Decision.Fallback)
	}
	for i, a := range b.Decision.Script {
		if !ValidActions[Action(a)] {
			return fmt.Errorf("script[%d]: unknown action %q", i, a)
		}
	}
	if b.Decision.Provider == "script" && len(b.Decision.Script) == 0 {
		return fmt.Errorf("script provider needs a non-empty script")
	}
	if b.Decision.Provider == "http" && b.Decision.URL == "" {
		return fmt.Errorf("http provider needs a url")
	}
	// Parameter range validation
	if b.Planner.MaxRadius != nil && *b.Planner.MaxRadius < 0 {
		return fmt.Errorf("max_radius must be non-negative, got %d", *b.Planner.MaxRadius)
	}
	if b.Motion.MaxConsecutiveWaits != nil && *b.Motion.MaxConsecutiveWaits < 0 {
		return fmt.Errorf("max_consecutive_waits must be non-negative, got %d", *b.Motion.MaxConsecutiveWaits)
	}
	if b.Motion.DefaultWaitTicks != nil && *b.Motion.DefaultWaitTicks <= 0 {
		return fmt.Errorf("default_wait_ticks must be positive, got %d", *b.Motion.DefaultWaitTicks)
	}
	if b.Motion.DecisionTimeout != nil && *b.Motion.DecisionTimeout <= 0 {
		return fmt.Errorf("decision_timeout must be positive, got %s", *b.Motion.DecisionTimeout)
	}
	if b.Kitchen.MaxPreparing != nil && *b.Kitchen.MaxPreparing < 0 {
		return fmt.Errorf("max_preparing must be non-negative, got %d", *b.Kitchen.MaxPreparing)
	}
	if b.Decision.WaitTicks != nil && *b.Decision.WaitTicks < 0 {
		return fmt.Errorf("wait_ticks must be non-negative, got %d", *b.Decision.WaitTicks)
	}
	if b.Decision.TopK != nil && *b.Decision.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", *b.Decision.TopK)
	}
	if b.Horizon != nil && *b.Horizon <= 0 {
		return fmt.Errorf("horizon must be positive, got %d", *b.Horizon)
	}
	return nil
}

// Apply overlays the bundle's set fields onto cfg. Unset fields leave cfg untouched.
func (b *PolicyBundle) Apply(cfg *SimConfig) {
	if b.Planner.MaxRadius != nil {
		cfg.Planner.MaxRadius = *b.Planner.MaxRadius
	}
	if b.Motion.MaxConsecutiveWaits != nil {
		cfg.Motion.MaxConsecutiveWaits = *b.Motion.MaxConsecutiveWaits
	}
	if b.Motion.DefaultWaitTicks != nil {
		cfg.Motion.DefaultWaitTicks = *b.Motion.DefaultWaitTicks
	}
	if b.Motion.DecisionTimeout != nil {
		cfg.Motion.DecisionTimeout = *b.Motion.DecisionTimeout
	}
	if b.Motion.ReturnToParking != nil {
		cfg.Motion.ReturnToParking = *b.Motion.ReturnToParking
	}
	if b.Kitchen.MaxPreparing != nil {
		cfg.Kitchen.MaxPreparing = *b.Kitchen.MaxPreparing
	}
	if b.Horizon != nil {
		cfg.Horizon = *b.Horizon
	}
}

// DefaultSimConfig returns a SimConfig carrying every policy default. Callers fill in
// the grid, robots, orders and provider.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		Horizon: DefaultHorizon,
		Planner: PlannerConfig{MaxRadius: DefaultMaxRadius},
		Kitchen: KitchenConfig{MaxPreparing: DefaultMaxPreparing},
		Motion:  DefaultMotionConfig(),
	}
}

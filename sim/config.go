package sim

import "time"

// DefaultDecisionTimeout bounds a decision exchange when no positive timeout is configured.
const DefaultDecisionTimeout = 2 * time.Second

// MotionConfig groups Motion Controller parameters.
type MotionConfig struct {
	MaxConsecutiveWaits int           // Wait decisions allowed without progress before escalation (must be >= 0)
	DefaultWaitTicks    int64         // hold duration when a Wait carries no hint (must be > 0)
	DecisionTimeout     time.Duration // bound on one decision exchange (<= 0 uses DefaultDecisionTimeout)
	ReturnToParking     bool          // Idle robots with no ready order drive back to their start cell
}

// DefaultMotionConfig returns the motion defaults used when a scenario sets nothing.
func DefaultMotionConfig() MotionConfig {
	return MotionConfig{
		MaxConsecutiveWaits: 5,
		DefaultWaitTicks:    1,
		DecisionTimeout:     DefaultDecisionTimeout,
		ReturnToParking:     true,
	}
}

// PlannerConfig groups Path Planner parameters.
type PlannerConfig struct {
	MaxRadius int // substitute-goal Chebyshev radius cap (0 = exact goals only)
}

// KitchenConfig groups Order Lifecycle Manager parameters.
type KitchenConfig struct {
	MaxPreparing int // orders prepared at once (0 = unlimited)
}

// RobotSpec places one robot. A nil Start means "next parking spot".
type RobotSpec struct {
	ID    string `yaml:"id" json:"id"`
	Start *Cell  `yaml:"start,omitempty" json:"start,omitempty"`
}

// OrderSpec describes one order and the tick it reaches the kitchen.
type OrderSpec struct {
	ID          string   `yaml:"id" json:"id"`
	Table       string   `yaml:"table" json:"table"`
	PrepTicks   int64    `yaml:"prep_ticks" json:"prep_ticks"`
	ArrivalTick int64    `yaml:"arrival_tick" json:"arrival_tick"`
	Items       []string `yaml:"items,omitempty" json:"items,omitempty"`
}

// RandomObstacleConfig asks for Count obstacles at random free cells and ticks.
// Obstacle i draws from stream ("obstacles", i) of the run seed.
type RandomObstacleConfig struct {
	Count       int   `yaml:"count" json:"count"`               // number of obstacles (0 = none)
	MaxTick     int64 `yaml:"max_tick" json:"max_tick"`         // appear ticks are drawn from [1, MaxTick]
	MaxDuration int64 `yaml:"max_duration" json:"max_duration"` // durations are drawn from [1, MaxDuration]
}

// RandomOrderConfig asks for Count orders to tables picked uniformly at random, each with
// 1-5 items. Order gen-NNN draws from stream ("orders", NNN) of the run seed.
type RandomOrderConfig struct {
	Count         int   `yaml:"count" json:"count"`                   // number of orders (0 = none)
	MaxPrepTicks  int64 `yaml:"max_prep_ticks" json:"max_prep_ticks"` // prep durations are drawn from [0, MaxPrepTicks]
	ArrivalSpread int64 `yaml:"arrival_spread" json:"arrival_spread"` // arrival ticks are drawn from [0, ArrivalSpread]
}

// SimConfig groups everything NewSimulator needs.
type SimConfig struct {
	Name            string
	Grid            *Grid
	Robots          []RobotSpec
	Orders          []OrderSpec
	Obstacles       []ObstacleSpec
	RandomOrders    RandomOrderConfig
	RandomObstacles RandomObstacleConfig
	Seed            int64
	Horizon         int64 // last tick to simulate (must be > 0)

	Planner PlannerConfig
	Kitchen KitchenConfig
	Motion  MotionConfig

	Provider     DecisionProvider
	ProviderName string // reported only
	TraceLevel   string // "none" or "decisions" (default)
}

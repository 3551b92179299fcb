// sim/simulator.go
package sim

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dinebot-sim/dinebot-sim/sim/trace"
)

// Simulator is the core object that holds simulation time, the shared run collaborators
// and one RobotScheduler per robot. Each tick it releases arriving orders, applies due
// obstacle events, advances the kitchen, then ticks every robot in robot-id order.
type Simulator struct {
	RunID   string
	Name    string
	Clock   int64 // next tick to simulate
	Horizon int64 // ticks are simulated while Clock < Horizon

	Grid      *Grid
	Orders    *OrderManager
	Obstacles *ObstacleField
	Planner   *AStarPlanner
	Motion    *MotionController
	Trace     *trace.SimulationTrace
	Metrics   *Metrics

	schedulers  []*RobotScheduler // robot-id order
	arrivals    []*Order          // arrival-tick order
	nextArrival int
	records     []DeliveryRecord
	provider    string
	seed        int64
}

// NewSimulator validates cfg and builds a ready-to-run simulator.
func NewSimulator(cfg SimConfig) (*Simulator, error) {
	if cfg.Grid == nil {
		return nil, fmt.Errorf("simulator: grid is required")
	}
	if cfg.Horizon <= 0 {
		return nil, fmt.Errorf("simulator: horizon must be positive, got %d", cfg.Horizon)
	}
	if len(cfg.Robots) == 0 {
		return nil, fmt.Errorf("simulator: at least one robot is required")
	}
	if cfg.TraceLevel != "" && !trace.IsValidTraceLevel(cfg.TraceLevel) {
		return nil, fmt.Errorf("simulator: unknown trace level %q", cfg.TraceLevel)
	}
	level := trace.TraceLevel(cfg.TraceLevel)
	if level == "" {
		level = trace.TraceLevelDecisions
	}
	providerName := cfg.ProviderName
	if providerName == "" {
		providerName = "custom"
	}

	seed := RunSeed(cfg.Seed)
	st := trace.NewSimulationTrace(trace.TraceConfig{Level: level})
	obstacles := NewObstacleField(cfg.Grid)
	planner := NewAStarPlanner(cfg.Grid, obstacles, cfg.Planner.MaxRadius)
	motion := NewMotionController(cfg.Grid, planner, obstacles, cfg.Provider, cfg.Motion, st)

	s := &Simulator{
		RunID:     uuid.NewString(),
		Name:      cfg.Name,
		Horizon:   cfg.Horizon,
		Grid:      cfg.Grid,
		Orders:    NewOrderManager(cfg.Kitchen.MaxPreparing),
		Obstacles: obstacles,
		Planner:   planner,
		Motion:    motion,
		Trace:     st,
		Metrics:   NewMetrics(),
		provider:  providerName,
		seed:      cfg.Seed,
	}

	if err := s.placeRobots(cfg.Robots); err != nil {
		return nil, err
	}
	if err := s.loadOrders(cfg.Orders, cfg.RandomOrders, seed); err != nil {
		return nil, err
	}
	for _, spec := range cfg.Obstacles {
		if err := obstacles.Schedule(spec); err != nil {
			return nil, fmt.Errorf("simulator: %w", err)
		}
	}
	if err := obstacles.scheduleRandom(cfg.RandomObstacles, seed); err != nil {
		return nil, fmt.Errorf("simulator: %w", err)
	}
	return s, nil
}

// placeRobots creates robots in id order. Robots without an explicit start take parking
// spots round-robin.
func (s *Simulator) placeRobots(specs []RobotSpec) error {
	sorted := append([]RobotSpec(nil), specs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	parking := s.Grid.ParkingSpots()
	seen := make(map[string]bool, len(sorted))
	nextSpot := 0
	for _, spec := range sorted {
		if spec.ID == "" {
			return fmt.Errorf("simulator: robot id must not be empty")
		}
		if seen[spec.ID] {
			return fmt.Errorf("simulator: duplicate robot id %q", spec.ID)
		}
		seen[spec.ID] = true

		var start Cell
		switch {
		case spec.Start != nil:
			start = *spec.Start
			if !s.Grid.IsFree(start) {
				return fmt.Errorf("simulator: robot %s start %s is not traversable", spec.ID, start)
			}
		case len(parking) > 0:
			start = parking[nextSpot%len(parking)]
			nextSpot++
		default:
			return fmt.Errorf("simulator: robot %s has no start and grid %q has no parking", spec.ID, s.Grid.Name())
		}
		robot := NewRobot(spec.ID, start, s.Trace.Robot(spec.ID))
		s.schedulers = append(s.schedulers, NewRobotScheduler(robot, s.Grid, s.Orders, s.Planner, s.Motion))
	}
	return nil
}

// loadOrders validates scripted orders, appends generated ones, and sorts them by
// arrival tick (stable, so ties keep their listed order).
func (s *Simulator) loadOrders(specs []OrderSpec, random RandomOrderConfig, seed RunSeed) error {
	ids := make(map[string]bool, len(specs))
	add := func(spec OrderSpec) error {
		if spec.ID == "" {
			return fmt.Errorf("simulator: order id must not be empty")
		}
		if ids[spec.ID] {
			return fmt.Errorf("simulator: order %q: %w", spec.ID, ErrDuplicateOrder)
		}
		if _, ok := s.Grid.TablePosition(spec.Table); !ok {
			return fmt.Errorf("simulator: order %q table %q: %w", spec.ID, spec.Table, ErrUnknownTable)
		}
		if spec.PrepTicks < 0 || spec.ArrivalTick < 0 {
			return fmt.Errorf("simulator: order %q: prep and arrival ticks must be non-negative", spec.ID)
		}
		ids[spec.ID] = true
		o := NewOrder(spec.ID, spec.Table, spec.PrepTicks)
		o.Items = spec.Items
		o.ArrivalTick = spec.ArrivalTick
		s.arrivals = append(s.arrivals, o)
		return nil
	}
	for _, spec := range specs {
		if err := add(spec); err != nil {
			return err
		}
	}

	if random.Count > 0 {
		tables := s.Grid.Tables()
		if len(tables) == 0 {
			return fmt.Errorf("simulator: random orders: grid %q has no tables", s.Grid.Name())
		}
		for i := 1; i <= random.Count; i++ {
			r := seed.Stream(StreamOrders, i)
			items := make([]string, 1+r.IntN(5))
			for k := range items {
				items[k] = fmt.Sprintf("item-%d", k+1)
			}
			spec := OrderSpec{
				ID:          fmt.Sprintf("gen-%03d", i),
				Table:       tables[r.IntN(len(tables))],
				PrepTicks:   r.Int64N(random.MaxPrepTicks + 1),
				ArrivalTick: r.Int64N(random.ArrivalSpread + 1),
				Items:       items,
			}
			if err := add(spec); err != nil {
				return err
			}
		}
	}

	sort.SliceStable(s.arrivals, func(i, j int) bool {
		return s.arrivals[i].ArrivalTick < s.arrivals[j].ArrivalTick
	})
	return nil
}

// Robots returns the robots in robot-id order.
func (s *Simulator) Robots() []*Robot {
	robots := make([]*Robot, len(s.schedulers))
	for i, sc := range s.schedulers {
		robots[i] = sc.Robot()
	}
	return robots
}

// Records returns the delivery records produced so far, in completion order.
func (s *Simulator) Records() []DeliveryRecord {
	return append([]DeliveryRecord(nil), s.records...)
}

// Finished reports whether every order has arrived and reached a terminal state and
// every robot is back to Idle.
func (s *Simulator) Finished() bool {
	if s.nextArrival < len(s.arrivals) || s.Orders.Outstanding() > 0 {
		return false
	}
	for _, sc := range s.schedulers {
		if !sc.AtRest() {
			return false
		}
	}
	return true
}

// Step simulates the tick at Clock and advances the clock.
func (s *Simulator) Step(ctx context.Context) error {
	now := s.Clock

	for s.nextArrival < len(s.arrivals) && s.arrivals[s.nextArrival].ArrivalTick <= now {
		if err := s.Orders.Submit(s.arrivals[s.nextArrival], now); err != nil {
			return err
		}
		s.nextArrival++
	}

	s.Obstacles.Advance(now, s.robotAt)

	if err := s.Orders.Tick(now); err != nil {
		return err
	}

	for _, sc := range s.schedulers {
		rec, err := sc.Tick(ctx, now)
		if err != nil {
			return err
		}
		s.addRecord(rec)
		if ticks, ok := sc.TakeCycle(); ok {
			s.Metrics.AddCycle(ticks)
		}
	}

	s.Clock++
	return nil
}

func (s *Simulator) robotAt(c Cell) bool {
	for _, sc := range s.schedulers {
		if sc.Robot().Position == c {
			return true
		}
	}
	return false
}

func (s *Simulator) addRecord(rec *DeliveryRecord) {
	if rec == nil {
		return
	}
	s.records = append(s.records, *rec)
	s.Metrics.Add(*rec)
}

// Run simulates ticks until the work is done, the horizon is reached, or ctx is
// cancelled. Cancellation is checked between ticks; robots mid-delivery are aborted so
// every robot ends Idle or terminal. A cancelled run returns its partial report together
// with an error wrapping ErrRunCancelled. An InvariantViolation aborts the run.
func (s *Simulator) Run(ctx context.Context) (*Report, error) {
	logrus.Infof("run %s: scenario %q, %d robots, %d orders, provider %s",
		s.RunID, s.Name, len(s.schedulers), len(s.arrivals), s.provider)

	for !s.Finished() {
		if err := ctx.Err(); err != nil {
			if abortErr := s.abortActive(ReasonCancelled); abortErr != nil {
				return nil, abortErr
			}
			rep := s.Report()
			rep.Cancelled = true
			return rep, fmt.Errorf("run %s at tick %d: %w", s.RunID, s.Clock, errors.Join(ErrRunCancelled, err))
		}
		if s.Clock >= s.Horizon {
			logrus.Warnf("[tick %07d] horizon reached with %d orders outstanding", s.Clock, s.Orders.Outstanding())
			if err := s.abortActive(ReasonHorizon); err != nil {
				return nil, err
			}
			rep := s.Report()
			rep.Truncated = true
			return rep, nil
		}
		if err := s.Step(ctx); err != nil {
			if IsInvariantViolation(err) {
				logrus.Errorf("[tick %07d] run %s aborted: %v", s.Clock, s.RunID, err)
			}
			return nil, err
		}
	}

	logrus.Infof("[tick %07d] run %s finished", s.Clock, s.RunID)
	return s.Report(), nil
}

// abortActive ends every in-progress delivery with reason.
func (s *Simulator) abortActive(reason string) error {
	for _, sc := range s.schedulers {
		rec, err := sc.Abort(s.Clock, reason)
		if err != nil {
			return err
		}
		s.addRecord(rec)
	}
	return nil
}

// Report snapshots the run's outputs.
func (s *Simulator) Report() *Report {
	return &Report{
		RunID:        s.RunID,
		Scenario:     s.Name,
		Provider:     s.provider,
		Seed:         s.seed,
		Ticks:        s.Clock,
		Deliveries:   s.Records(),
		Metrics:      s.Metrics,
		Orders:       s.Orders.Stats(),
		Trajectories: s.Trace.Robots,
		Decisions:    s.Trace.Decisions,
		Summary:      trace.Summarize(s.Trace),
	}
}

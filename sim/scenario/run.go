package scenario

import (
	"context"
	"fmt"
	"io"

	"github.com/dinebot-sim/dinebot-sim/sim"
)

// Run builds a simulator for the scenario and runs it. A cancelled run returns its
// partial report together with an error wrapping sim.ErrRunCancelled.
func (s *Scenario) Run(ctx context.Context, deps Deps) (*sim.Report, error) {
	cfg, err := s.Config(ctx, deps)
	if err != nil {
		return nil, err
	}
	simulator, err := sim.NewSimulator(cfg)
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
	}
	return simulator.Run(ctx)
}

// Comparison holds a baseline run and a run under the scenario's own provider, both
// with the same seed.
type Comparison struct {
	Baseline  *sim.Report `json:"baseline"`
	Candidate *sim.Report `json:"candidate"`
}

// Compare runs the scenario twice: once with the baseline provider, once as configured.
func (s *Scenario) Compare(ctx context.Context, deps Deps) (*Comparison, error) {
	base, err := s.WithDecision(sim.DecisionPolicy{Provider: "baseline"}).Run(ctx, deps)
	if err != nil {
		return nil, fmt.Errorf("baseline run: %w", err)
	}
	candidate, err := s.Run(ctx, deps)
	if err != nil {
		return nil, fmt.Errorf("%s run: %w", s.providerName(), err)
	}
	return &Comparison{Baseline: base, Candidate: candidate}, nil
}

func (s *Scenario) providerName() string {
	if s.Policy.Decision.Provider == "" {
		return "baseline"
	}
	return s.Policy.Decision.Provider
}

// Print writes both metric blocks and a one-line delta.
func (c *Comparison) Print(w io.Writer) {
	fmt.Fprintln(w, "--- baseline ---")
	c.Baseline.Print(w)
	fmt.Fprintf(w, "--- %s ---\n", c.Candidate.Provider)
	c.Candidate.Print(w)
	fmt.Fprintln(w, "=== Comparison ===")
	fmt.Fprintf(w, "Success Rate Delta   : %+.2f%%\n", c.Candidate.Metrics.SuccessRate()-c.Baseline.Metrics.SuccessRate())
	fmt.Fprintf(w, "Delivered Delta      : %+d\n", c.Candidate.Metrics.Successful-c.Baseline.Metrics.Successful)
}

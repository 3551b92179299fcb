package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dinebot-sim/dinebot-sim/sim"
	"github.com/dinebot-sim/dinebot-sim/sim/scenario"
)

// runFlags are the overrides shared by run and compare. A zero value leaves the
// scenario untouched.
type runFlags struct {
	seed       *int64
	horizon    *int64
	provider   string
	decideURL  string
	traceLevel string
	output     string
}

var (
	runOpts runFlags
	seed    int64 // Seed override for random orders and obstacles
	horizon int64 // Horizon override (in ticks)
	save    bool  // Store the report when a database is configured
	notify  bool  // Publish the report when a broker is configured
)

// runCmd simulates one scenario file and prints its metrics
var runCmd = &cobra.Command{
	Use:   "run <scenario.yaml>",
	Short: "Run a delivery scenario",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		captureOverrides(cmd)
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		startTime := time.Now()
		rep, err := runScenario(ctx, args[0], runOpts, env)
		if rep != nil {
			rep.Print(os.Stdout)
			logrus.Infof("Simulation wall time: %s", time.Since(startTime))
		}
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if save || notify {
			if err := deliverReport(ctx, rep, save, notify, env); err != nil {
				logrus.Fatalf("%v", err)
			}
		}
		logrus.Info("Simulation complete.")
	},
}

// captureOverrides records only the flags the user actually set.
func captureOverrides(cmd *cobra.Command) {
	if cmd.Flags().Changed("seed") {
		runOpts.seed = &seed
	}
	if cmd.Flags().Changed("horizon") {
		runOpts.horizon = &horizon
	}
}

// loadScenario reads a scenario file and applies flag and environment overrides.
func loadScenario(path string, opts runFlags, env Env) (*scenario.Scenario, error) {
	sc, err := scenario.Load(path)
	if err != nil {
		return nil, err
	}
	if opts.seed != nil {
		sc.Seed = *opts.seed
	}
	if opts.horizon != nil {
		h := *opts.horizon
		sc.Policy.Horizon = &h
	}
	if opts.traceLevel != "" {
		sc.TraceLevel = opts.traceLevel
	}
	if opts.provider != "" {
		sc.Policy.Decision.Provider = opts.provider
	}
	if opts.decideURL != "" {
		sc.Policy.Decision.URL = opts.decideURL
	}
	if sc.Policy.Decision.Provider == "http" && sc.Policy.Decision.URL == "" {
		sc.Policy.Decision.URL = env.DecisionURL
	}
	return sc, sc.Validate()
}

// runScenario loads and runs a scenario. The report is returned even when the run was
// cancelled, and written to opts.output when set.
func runScenario(ctx context.Context, path string, opts runFlags, env Env) (*sim.Report, error) {
	sc, err := loadScenario(path, opts, env)
	if err != nil {
		return nil, err
	}
	deps := scenario.Deps{}
	if sc.Policy.Decision.KnowledgeRedis != "" {
		if deps.Redis = env.redisClient(); deps.Redis == nil {
			return nil, fmt.Errorf("scenario %q reads knowledge from redis but DINEBOT_REDIS_ADDR is unusable", sc.Name)
		}
		defer deps.Redis.Close()
	}

	rep, runErr := sc.Run(ctx, deps)
	if rep != nil && opts.output != "" {
		if err := writeJSON(opts.output, rep); err != nil {
			return rep, errors.Join(runErr, err)
		}
		logrus.Infof("report written to %s", opts.output)
	}
	return rep, runErr
}

// deliverReport stores and/or publishes a finished report.
func deliverReport(ctx context.Context, rep *sim.Report, save, notify bool, env Env) error {
	if save {
		db, err := env.openStore()
		if err != nil {
			return err
		}
		if db == nil {
			logrus.Warn("--save given but DINEBOT_DB_DSN is empty; report not stored")
		} else {
			defer db.Close()
			if err := db.SaveReport(ctx, rep); err != nil {
				return err
			}
			logrus.Infof("run %s stored", rep.RunID)
		}
	}
	if notify {
		pub, err := env.openPublisher()
		if err != nil {
			return err
		}
		if pub == nil {
			logrus.Warn("--publish given but no broker is configured; report not published")
			return nil
		}
		defer pub.Close()
		return pub.PublishReport(ctx, rep)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&seed, "seed", 0, "Seed for random orders and obstacles (overrides the scenario)")
	cmd.Flags().Int64Var(&horizon, "horizon", sim.DefaultHorizon, "Simulation horizon in ticks (overrides the scenario)")
	cmd.Flags().StringVar(&runOpts.provider, "provider", "", fmt.Sprintf("Decision provider (overrides the scenario); one of %v", sim.ProviderNames()))
	cmd.Flags().StringVar(&runOpts.decideURL, "decision-url", "", "Decision service endpoint for the http provider")
	cmd.Flags().StringVar(&runOpts.traceLevel, "trace-level", "", "Decision trace level (none, decisions)")
	cmd.Flags().StringVar(&runOpts.output, "output", "", "Write the report as JSON to this file")
}

func init() {
	addRunFlags(runCmd)
	runCmd.Flags().BoolVar(&save, "save", false, "Store the report (needs DINEBOT_DB_DSN)")
	runCmd.Flags().BoolVar(&notify, "publish", false, "Publish the report (needs DINEBOT_MQTT_BROKER or DINEBOT_KAFKA_BROKERS)")
	rootCmd.AddCommand(runCmd)
}

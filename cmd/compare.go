package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dinebot-sim/dinebot-sim/sim/scenario"
)

// compareCmd runs a scenario with the baseline provider and with its configured one
var compareCmd = &cobra.Command{
	Use:   "compare <scenario.yaml>",
	Short: "Compare the baseline provider with the scenario's decision provider",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		captureOverrides(cmd)
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cmp, err := compareScenario(ctx, args[0], runOpts, env)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		cmp.Print(os.Stdout)
	},
}

func compareScenario(ctx context.Context, path string, opts runFlags, env Env) (*scenario.Comparison, error) {
	sc, err := loadScenario(path, opts, env)
	if err != nil {
		return nil, err
	}
	deps := scenario.Deps{}
	if sc.Policy.Decision.KnowledgeRedis != "" {
		if deps.Redis = env.redisClient(); deps.Redis != nil {
			defer deps.Redis.Close()
		}
	}
	cmp, err := sc.Compare(ctx, deps)
	if err != nil {
		return nil, err
	}
	if opts.output != "" {
		if err := writeJSON(opts.output, cmp); err != nil {
			return nil, err
		}
	}
	return cmp, nil
}

func init() {
	addRunFlags(compareCmd)
	rootCmd.AddCommand(compareCmd)
}

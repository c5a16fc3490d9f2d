// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/bassosimone/conduit"
	"github.com/bassosimone/conduit/dpi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay <scenario.yaml>",
	Short: "Replay a scenario through the pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := loggerFromFlags(cmd)
		if err != nil {
			return err
		}
		sc, err := LoadScenario(args[0])
		if err != nil {
			return err
		}
		opts := replayOptions{}
		opts.Trace, _ = cmd.Flags().GetBool("trace")
		opts.Metrics, _ = cmd.Flags().GetBool("metrics")
		opts.MaxHops, _ = cmd.Flags().GetInt("max-hops")
		return runReplay(cmd.OutOrStdout(), logger, sc, opts)
	},
}

func init() {
	replayCmd.Flags().Bool("trace", false, "Print the stages visited by each delivered message")
	replayCmd.Flags().Bool("metrics", false, "Print the engine metrics after the replay")
	replayCmd.Flags().Int("max-hops", conduit.DefaultMaxHops, "Maximum number of hops per message")
	rootCmd.AddCommand(replayCmd)
}

// replayOptions contains the replay command options.
type replayOptions struct {
	MaxHops int
	Metrics bool
	Trace   bool
}

// runReplay feeds sc through a fresh pipeline and writes one line per
// delivered message to w.
func runReplay(w io.Writer, logger *slog.Logger, sc *Scenario, opts replayOptions) error {
	messages, err := sc.Messages(time.Now())
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	cfg := conduit.NewConfig()
	cfg.Metrics = conduit.NewPrometheusMetrics(registry)
	if opts.MaxHops > 0 {
		cfg.MaxHops = opts.MaxHops
	}

	deliver := func(where string) func(env *dpi.Envelope) {
		return func(env *dpi.Envelope) {
			msg := env.Payload()
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", msg.ID, where, env.Phase(), msg.Application)
			if opts.Trace {
				fmt.Fprintf(w, "\t%s\n", strings.Join(msg.Trace, " > "))
			}
		}
	}
	pipeline, err := dpi.NewPipeline(cfg, logger, &dpi.PipelineConfig{
		LowerScript:   sc.Script,
		ToApplication: deliver("application"),
		ToNetwork:     deliver("network"),
	})
	if err != nil {
		return err
	}

	logger.Info(
		"replayStart",
		slog.String("graphID", pipeline.Graph.ID()),
		slog.Int("packets", len(messages)),
		slog.String("scenario", sc.Name),
	)
	for _, msg := range messages {
		pipeline.Inject(msg)
	}
	lower, upper := pipeline.Flows()
	stats := pipeline.Graph.Stats()
	logger.Info(
		"replayDone",
		slog.Int("lowerFlows", lower),
		slog.String("graphID", pipeline.Graph.ID()),
		slog.Int("nodesInUse", stats.Nodes.InUse),
		slog.Int("upperFlows", upper),
	)

	if !opts.Metrics {
		return nil
	}
	families, err := registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

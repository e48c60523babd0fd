package main

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/okian/boardcheck/internal/boardsim"
)

const defaultSimEvents = 1000

func newSimulateCmd(opts *rootOptions) *cobra.Command {
	cfg := &boardsim.Config{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive synthetic boarding traffic against the service",
		Example: `  boardctl simulate --events 5000 --workers 32
  boardctl simulate --mode async --duplicates 0.1 --output events.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg.BaseURL = opts.baseURL
			cfg.Timeout = opts.timeout
			stats, err := boardsim.Run(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
	cmd.Flags().IntVar(&cfg.NumEvents, "events", defaultSimEvents, "number of boarding events to submit")
	cmd.Flags().IntVar(&cfg.Buses, "buses", 0, "number of buses the events are spread across")
	cmd.Flags().IntVar(&cfg.Workers, "workers", runtime.NumCPU()*2, "number of concurrent submitters")
	cmd.Flags().StringVar(&cfg.Mode, "mode", boardsim.ModeSync, "submission mode: sync or async")
	cmd.Flags().Float64Var(&cfg.DuplicateRatio, "duplicates", 0, "share of events re-sent with an existing event_id")
	cmd.Flags().StringVar(&cfg.OutputFile, "output", "", "write the generated events to this JSON file")
	cmd.Flags().BoolVar(&cfg.Verbose, "verbose", false, "log every decision that is not VERIFIED")
	return cmd
}

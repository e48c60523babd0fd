package main

import (
	"encoding/json"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/boardcheck/internal/boardsim"
)

const defaultTimeout = 30 * time.Second

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	baseURL string
	timeout time.Duration
}

func (o *rootOptions) client() *boardsim.Client {
	return boardsim.NewClient(o.baseURL, o.timeout)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "boardctl",
		Short:        "Operate a boardcheck verification service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&opts.baseURL, "url", "http://localhost:9080", "base URL of the service")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaultTimeout, "HTTP request timeout")

	root.AddCommand(
		newConfigsCmd(opts),
		newVerifyCmd(opts),
		newDecisionCmd(opts),
		newSimulateCmd(opts),
	)
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

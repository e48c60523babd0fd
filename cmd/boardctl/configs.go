package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newConfigsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configs",
		Short: "Inspect and manage model configuration versions",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List every configuration version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configs, err := opts.client().Configs(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, c := range configs {
				marker := " "
				if c.IsActive {
					marker = "*"
				}
				fmt.Fprintf(out, "%s v%d\t%s\t%v\n", marker, c.Version, c.CreatedAt.Format(time.RFC3339), c.EnabledModels())
			}
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show [version|active]",
		Short: "Print a configuration version as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := opts.client()
			if len(args) == 0 || args[0] == "active" {
				cfg, err := client.ActiveConfig(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), cfg)
			}
			version, err := parseVersion(args[0])
			if err != nil {
				return err
			}
			cfg, err := client.Config(cmd.Context(), version)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), cfg)
		},
	}

	activate := &cobra.Command{
		Use:   "activate <version>",
		Short: "Make a configuration version active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseVersion(args[0])
			if err != nil {
				return err
			}
			if err := opts.client().ActivateConfig(cmd.Context(), version); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "activated v%d\n", version)
			return nil
		},
	}

	var description string
	duplicate := &cobra.Command{
		Use:   "duplicate <version>",
		Short: "Copy a configuration version into a new inactive version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseVersion(args[0])
			if err != nil {
				return err
			}
			cfg, err := opts.client().DuplicateConfig(cmd.Context(), version, description)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), cfg)
		},
	}
	duplicate.Flags().StringVar(&description, "description", "", "description of the new version")

	var file string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a configuration version from a JSON document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				data []byte
				err  error
			)
			if file == "" || file == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(file)
			}
			if err != nil {
				return fmt.Errorf("read config document: %w", err)
			}
			if !json.Valid(data) {
				return fmt.Errorf("config document is not valid JSON")
			}
			cfg, err := opts.client().CreateConfig(cmd.Context(), data)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), cfg)
		},
	}
	create.Flags().StringVarP(&file, "file", "f", "", "JSON document to create (default stdin)")

	cmd.AddCommand(list, show, activate, duplicate, create)
	return cmd
}

func parseVersion(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid version %q", s)
	}
	return v, nil
}

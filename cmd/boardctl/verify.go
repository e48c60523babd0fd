package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/okian/boardcheck/internal/boardsim"
)

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	var (
		image   string
		eventID string
		busID   string
		kioskID string
		async   bool
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Submit one boarding capture for verification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(image)
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}
			if eventID == "" {
				eventID = uuid.NewString()
			}
			event := boardsim.Event{
				EventID:    eventID,
				BusID:      busID,
				KioskID:    kioskID,
				Image:      data,
				CapturedAt: time.Now().UTC().Format(time.RFC3339),
			}

			client := opts.client()
			if async {
				ack, err := client.Enqueue(cmd.Context(), event)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), ack)
			}
			rec, err := client.Verify(cmd.Context(), event)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
	cmd.Flags().StringVar(&image, "image", "", "path to the captured image")
	cmd.Flags().StringVar(&eventID, "event-id", "", "event id (default random)")
	cmd.Flags().StringVar(&busID, "bus", "", "bus id")
	cmd.Flags().StringVar(&kioskID, "kiosk", "", "kiosk id")
	cmd.Flags().BoolVar(&async, "async", false, "enqueue instead of deciding inline")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

func newDecisionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "decision <record-id>",
		Short: "Fetch a persisted audit record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := opts.client().Decision(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
}

package main

import (
	"fmt"
	"time"

	"github.com/meetprep/backend/internal/infrastructure/event"
	"github.com/spf13/cobra"
)

var drainIdle time.Duration

var drainCmd = &cobra.Command{
	Use:   "drain <group>",
	Short: "Move a consumer group past every retained envelope",
	Long: `Joins the consumer group as a member that handles nothing and commits its
checkpoints forward. Stops once no envelope arrived for the idle period.
Envelopes skipped this way are never handled by the group.`,
	Args: cobra.ExactArgs(1),
	RunE: runDrain,
}

func init() {
	drainCmd.Flags().DurationVar(&drainIdle, "idle", 5*time.Second, "Stop after this long without deliveries")
	rootCmd.AddCommand(drainCmd)
}

func runDrain(cmd *cobra.Command, args []string) error {
	group := args[0]
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	transport, checkpoints, err := rt.bus(ctx)
	if err != nil {
		return err
	}

	w := event.NewDrainWorker(transport, checkpoints, group, rt.log,
		event.WithMember("busctl-drain"),
		event.WithIdleTimeout(drainIdle),
	)
	cmd.Printf("Draining group %s...\n", group)
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("drain %s: %w", group, err)
	}
	cmd.Printf("Group %s drained: %d envelopes skipped.\n", group, w.Delivered())
	return nil
}

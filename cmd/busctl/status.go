package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/meetprep/backend/internal/infrastructure/persistence"
	"github.com/spf13/cobra"
)

var statusFlags struct {
	tenant string
	reset  bool
}

var statusCmd = &cobra.Command{
	Use:   "status <object-id>",
	Short: "Show the saga status records of an object",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusFlags.tenant, "tenant", "", "Tenant of the object (required)")
	statusCmd.Flags().BoolVar(&statusFlags.reset, "reset", false, "Delete the records so the sagas can run again")
	_ = statusCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	objectID := args[0]
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	db, err := rt.database()
	if err != nil {
		return err
	}
	ledger := persistence.NewGormStatusLedger(db.DB, rt.log)
	ctx := cmd.Context()

	if statusFlags.reset {
		n, err := ledger.DeleteByObject(ctx, objectID, statusFlags.tenant)
		if err != nil {
			return fmt.Errorf("reset %s: %w", objectID, err)
		}
		cmd.Printf("Deleted %d records of %s.\n", n, objectID)
		return nil
	}

	records, err := ledger.ListByObject(ctx, objectID, statusFlags.tenant)
	if err != nil {
		return fmt.Errorf("list %s: %w", objectID, err)
	}
	if len(records) == 0 {
		cmd.Printf("No records for %s.\n", objectID)
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOPIC\tSTATE\tPREVIOUS\tUPDATED\tERROR")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.Topic, r.State, r.PreviousTopic, r.UpdatedAt.UTC().Format(time.RFC3339), r.ErrorMessage)
	}
	return tw.Flush()
}

package main

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/meetprep/backend/internal/domain/shared"
	"github.com/meetprep/backend/internal/domain/topic"
	"github.com/meetprep/backend/internal/infrastructure/event"
	"github.com/meetprep/backend/internal/infrastructure/persistence"
	"github.com/spf13/cobra"
)

var publishFlags struct {
	tenant        string
	scope         string
	correlationID string
}

var publishCmd = &cobra.Command{
	Use:   "publish <topic> <payload-json>",
	Short: "Publish an envelope onto the bus",
	Long: `Publishes one envelope with the given topic and JSON object payload.
The status ledger records the publish like any other.`,
	Args: cobra.ExactArgs(2),
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishFlags.tenant, "tenant", "", "Tenant the envelope belongs to (required)")
	publishCmd.Flags().StringVar(&publishFlags.scope, "scope", string(shared.ScopePublic), "Envelope scope: public or private")
	publishCmd.Flags().StringVar(&publishFlags.correlationID, "correlation-id", "", "Correlation id (generated when empty)")
	_ = publishCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(publishCmd)
}

// parsePublishArgs validates everything that does not need the bus
func parsePublishArgs(args []string) (topic.Topic, shared.Payload, shared.Scope, error) {
	t, err := topic.Parse(args[0])
	if err != nil {
		return "", nil, "", err
	}
	var payload shared.Payload
	if err := json.Unmarshal([]byte(args[1]), &payload); err != nil {
		return "", nil, "", fmt.Errorf("payload must be a JSON object: %w", err)
	}
	if payload == nil {
		return "", nil, "", fmt.Errorf("payload must be a JSON object")
	}
	scope := shared.Scope(publishFlags.scope)
	if !scope.IsValid() {
		return "", nil, "", fmt.Errorf("invalid scope %q", publishFlags.scope)
	}
	return t, payload, scope, nil
}

func runPublish(cmd *cobra.Command, args []string) error {
	t, payload, scope, err := parsePublishArgs(args)
	if err != nil {
		return err
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	transport, _, err := rt.bus(ctx)
	if err != nil {
		return err
	}
	ledger := persistence.NewGormStatusLedger(rt.db.DB, rt.log)
	publisher := event.NewPublisher(transport, ledger, rt.log)

	correlationID := publishFlags.correlationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	if err := publisher.Publish(ctx, t, payload,
		shared.WithTenant(publishFlags.tenant),
		shared.WithScope(scope),
		shared.WithCorrelationID(correlationID),
	); err != nil {
		return fmt.Errorf("publish %s: %w", t, err)
	}

	cmd.Printf("Published %s for %s (correlation %s)\n", t, shared.ExtractObjectID(payload), correlationID)
	return nil
}

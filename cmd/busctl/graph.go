package main

import (
	"errors"
	"strings"

	"github.com/meetprep/backend/internal/application/orchestration"
	"github.com/meetprep/backend/internal/domain/topic"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var graphStrict bool

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print and validate the saga graph",
	Args:  cobra.NoArgs,
	RunE:  runGraph,
}

func init() {
	graphCmd.Flags().BoolVar(&graphStrict, "strict", false, "Fail when an emitted topic has no subscriber")
	rootCmd.AddCommand(graphCmd)
}

func runGraph(cmd *cobra.Command, _ []string) error {
	// only the declared topology is read, so no collaborator is wired
	handlers := orchestration.Handlers(orchestration.Dependencies{Logger: zap.NewNop()})
	g := orchestration.Graph(handlers)

	cmd.Printf("Vocabulary %s, %d handlers\n\n", topic.Version, len(handlers))
	cmd.Print(g.Describe())

	triggers := orchestration.Triggers(handlers)
	names := make([]string, len(triggers))
	for i, t := range triggers {
		names[i] = t.String()
	}
	cmd.Printf("\nTriggers: %s\n", strings.Join(names, ", "))

	if err := g.Validate(); err != nil {
		var dead *topic.DeadEndError
		if errors.As(err, &dead) {
			cmd.Printf("Dead ends: %d\n", len(dead.Topics))
		}
		if graphStrict {
			return err
		}
		cmd.Printf("Warning: %v\n", err)
		return nil
	}
	cmd.Println("Graph OK")
	return nil
}

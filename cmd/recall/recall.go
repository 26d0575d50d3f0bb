// Package recallcmder wires the recall root command and its subcommands.
package recallcmder

import (
	"github.com/spf13/cobra"

	askcmder "github.com/papercomputeco/recall/cmd/recall/ask"
	authcmder "github.com/papercomputeco/recall/cmd/recall/auth"
	configcmder "github.com/papercomputeco/recall/cmd/recall/config"
	initcmder "github.com/papercomputeco/recall/cmd/recall/init"
	memoriescmder "github.com/papercomputeco/recall/cmd/recall/memories"
	metricscmder "github.com/papercomputeco/recall/cmd/recall/metrics"
	servecmder "github.com/papercomputeco/recall/cmd/recall/serve"
	sessioncmder "github.com/papercomputeco/recall/cmd/recall/session"
	versioncmder "github.com/papercomputeco/recall/cmd/version"
)

const recallLongDesc string = `Recall is a memory-augmented message processing pipeline.

Inbound chat messages are answered by an LLM with long-term memories
for the sender, falling back across generation backends on failure.

Run the server using:
  recall serve          Run the API server and background workers

Talk to a running server using:
  recall ask            Ask through the web-chat endpoint
  recall metrics        Show processing metrics
  recall memories       List stored memories for a user
  recall session        Show or clear the local ask session

Manage local state using:
  recall init           Create a project-local .recall/ directory
  recall config         Get and set configuration values
  recall auth           Store backend API keys`

const recallShortDesc string = "Recall - Memory-augmented message processing"

func NewRecallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "recall",
		Short:         recallShortDesc,
		Long:          recallLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .recall/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(askcmder.NewAskCmd())
	cmd.AddCommand(sessioncmder.NewSessionCmd())
	cmd.AddCommand(metricscmder.NewMetricsCmd())
	cmd.AddCommand(memoriescmder.NewMemoriesCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}

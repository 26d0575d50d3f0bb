// Package memoriescmder provides the memories command for listing what a
// running recall server remembers about a user.
package memoriescmder

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/recall/pkg/apiclient"
	"github.com/papercomputeco/recall/pkg/cliui"
	"github.com/papercomputeco/recall/pkg/config"
	"github.com/papercomputeco/recall/pkg/dotdir"
	"github.com/papercomputeco/recall/pkg/memory"
	"github.com/papercomputeco/recall/pkg/utils"
)

type memoriesCommander struct {
	apiTarget string
	configDir string
	userID    string
	groupID   string
	limit     int

	client *apiclient.Client
	out    io.Writer
}

const memoriesLongDesc string = `List memories stored for a user.

Memories are scoped to a user and group. Without --user, the scope of
the current ask session is used.

Examples:
  recall memories
  recall memories --user alice --group team --limit 20`

const memoriesShortDesc string = "List stored memories for a user"

func NewMemoriesCmd() *cobra.Command {
	cmder := &memoriesCommander{}

	cmd := &cobra.Command{
		Use:   "memories",
		Short: memoriesShortDesc,
		Long:  memoriesLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			cfger, err := config.NewConfiger(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg, err := cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if !cmd.Flags().Changed("api-target") {
				cmder.apiTarget = cfg.Client.APITarget
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.client = apiclient.New(cmder.apiTarget, nil)
			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd.Context())
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVarP(&cmder.apiTarget, "api-target", "a", defaults.Client.APITarget, "Recall API server URL")
	cmd.Flags().StringVarP(&cmder.userID, "user", "u", "", "User ID (default: session user)")
	cmd.Flags().StringVarP(&cmder.groupID, "group", "g", "", "Group ID (default: session group)")
	cmd.Flags().IntVarP(&cmder.limit, "limit", "n", 0, "Maximum memories to list (default: all)")

	return cmd
}

func (c *memoriesCommander) run(ctx context.Context) error {
	scope, err := c.scope()
	if err != nil {
		return err
	}

	items, err := c.client.Memories(ctx, scope, c.limit)
	if err != nil {
		return fmt.Errorf("listing memories: %w", err)
	}

	fmt.Fprintf(c.out, "\n  %s %s\n\n",
		cliui.KeyStyle.Render("Memories for"),
		cliui.ValueStyle.Render(scope.Key()),
	)
	if len(items) == 0 {
		fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render(memory.NoRelevantMemory))
		return nil
	}

	for i, item := range items {
		fmt.Fprintf(c.out, "  %s %s %s\n",
			cliui.DimStyle.Render(fmt.Sprintf("%2d", i+1)),
			utils.Truncate(item.Text, 96),
			cliui.DimStyle.Render(item.CreatedAt.Local().Format("2006-01-02 15:04")),
		)
	}
	fmt.Fprintln(c.out)
	return nil
}

// scope resolves flags over the ask session.
func (c *memoriesCommander) scope() (memory.Scope, error) {
	scope := memory.Scope{UserID: c.userID, GroupID: c.groupID}
	if scope.UserID != "" {
		return scope, nil
	}

	session, err := dotdir.NewManager().LoadSessionState(c.configDir)
	if err != nil {
		return scope, fmt.Errorf("loading session: %w", err)
	}
	if session == nil {
		return scope, errors.New("no user given and no ask session to take one from; use --user")
	}

	scope.UserID = session.UserID
	if scope.GroupID == "" {
		scope.GroupID = session.GroupID
	}
	return scope, nil
}

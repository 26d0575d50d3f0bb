// Package sessioncmder provides the session command for inspecting and
// clearing the conversation "recall ask" continues from.
package sessioncmder

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/recall/pkg/cliui"
	"github.com/papercomputeco/recall/pkg/dotdir"
	"github.com/papercomputeco/recall/pkg/utils"
)

const sessionLongDesc string = `Show the current ask session.

Reads session.json from the local .recall/ directory (or ~/.recall/) and
displays the user, group and message history that the next "recall ask"
continues from.

Examples:
  recall session
  recall session --clear`

const sessionShortDesc string = "Show or clear the current ask session"

func NewSessionCmd() *cobra.Command {
	var clearFlag bool

	cmd := &cobra.Command{
		Use:   "session",
		Short: sessionShortDesc,
		Long:  sessionLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			if clearFlag {
				return runClear(cmd.OutOrStdout(), configDir)
			}
			return runShow(cmd.OutOrStdout(), configDir)
		},
	}

	cmd.Flags().BoolVar(&clearFlag, "clear", false, "Clear the session so the next ask starts fresh")

	return cmd
}

func runShow(w io.Writer, configDir string) error {
	state, err := dotdir.NewManager().LoadSessionState(configDir)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}

	if state == nil {
		fmt.Fprintf(w, "  %s No session. Next ask will start a new conversation.\n", cliui.DimStyle.Render("●"))
		return nil
	}

	fmt.Fprintf(w, "\n  %s  %s\n", cliui.KeyStyle.Render("User:    "), cliui.ValueStyle.Render(state.UserID))
	fmt.Fprintf(w, "  %s  %s\n", cliui.KeyStyle.Render("Group:   "), cliui.ValueStyle.Render(state.GroupID))
	fmt.Fprintf(w, "  %s  %s\n\n", cliui.KeyStyle.Render("Messages:"), cliui.ValueStyle.Render(strconv.Itoa(len(state.Messages))))

	for i, msg := range state.Messages {
		preview := utils.Truncate(msg.Content, 72)
		fmt.Fprintf(w, "  %s %s %s\n",
			cliui.DimStyle.Render(fmt.Sprintf("%2d", i+1)),
			cliui.KeyStyle.Render(fmt.Sprintf("%-9s", msg.Role)),
			preview,
		)
	}
	fmt.Fprintln(w)
	return nil
}

func runClear(w io.Writer, configDir string) error {
	if err := dotdir.NewManager().ClearSession(configDir); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	fmt.Fprintf(w, "  %s Session cleared.\n", cliui.SuccessMark)
	return nil
}

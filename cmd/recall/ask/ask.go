// Package askcmder provides the ask command for putting questions to a
// running recall server through its web-chat endpoint.
package askcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/recall/pkg/apiclient"
	"github.com/papercomputeco/recall/pkg/cliui"
	"github.com/papercomputeco/recall/pkg/config"
	"github.com/papercomputeco/recall/pkg/dotdir"
	"github.com/papercomputeco/recall/pkg/llm"
	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/processor"
)

const defaultGroupID = "cli"

var assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("assistant> ")

type askCommander struct {
	apiTarget string
	configDir string
	userID    string
	groupID   string
	system    string
	stream    bool
	newChat   bool
	noSession bool
	raw       bool
	debug     bool

	client *apiclient.Client
	out    io.Writer
}

const askLongDesc string = `Ask a running recall server a question.

The question is sent to the web-chat endpoint together with the
conversation so far, which is kept in session.json in the .recall/
directory. Memories stored for the user are retrieved server-side.

Use --new to start a fresh conversation, and "recall session" to
inspect or clear the current one.

Examples:
  recall ask "What did I say the deadline was?"
  recall ask --stream "Summarize our plan"
  recall ask --system "Answer in one sentence" "What is recall?"
  recall ask --new --user alice "Hello"`

const askShortDesc string = "Ask a running recall server a question"

func NewAskCmd() *cobra.Command {
	cmder := &askCommander{}

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: askShortDesc,
		Long:  askLongDesc,
		Args:  cobra.MinimumNArgs(1),
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
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			cmder.client = apiclient.New(cmder.apiTarget, nil)
			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd.Context(), strings.Join(args, " "))
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVarP(&cmder.apiTarget, "api-target", "a", defaults.Client.APITarget, "Recall API server URL")
	cmd.Flags().StringVarP(&cmder.userID, "user", "u", "", "User ID memories are scoped to (default: session user or $USER)")
	cmd.Flags().StringVarP(&cmder.groupID, "group", "g", "", "Group ID memories are scoped to (default: session group or \"cli\")")
	cmd.Flags().StringVar(&cmder.system, "system", "", "System prompt override for this question")
	cmd.Flags().BoolVarP(&cmder.stream, "stream", "s", false, "Stream the answer as it is generated")
	cmd.Flags().BoolVar(&cmder.newChat, "new", false, "Start a new conversation")
	cmd.Flags().BoolVar(&cmder.noSession, "no-session", false, "Do not read or update session.json")
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print the answer without markdown rendering")

	return cmd
}

func (c *askCommander) run(ctx context.Context, question string) error {
	// Logs go to stderr so they never interleave with the answer.
	log := logger.New(logger.WithDebug(c.debug), logger.WithPretty(true), logger.WithWriter(os.Stderr))

	question = strings.TrimSpace(question)
	if question == "" {
		return errors.New("question cannot be empty")
	}

	manager := dotdir.NewManager()
	session, err := c.loadSession(manager)
	if err != nil {
		return err
	}

	session.Messages = append(session.Messages, dotdir.SessionMessage{Role: llm.RoleUser, Content: question})
	req := c.chatRequest(session)

	log.Debug("sending chat request",
		"api_target", c.apiTarget,
		"user_id", req.UserID,
		"group_id", req.GroupID,
		"message_count", len(req.Messages),
		"stream", c.stream,
	)

	var answer, model string
	if c.stream {
		answer, model, err = c.askStream(ctx, req)
	} else {
		answer, model, err = c.ask(ctx, req)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("answered by "+model))

	if c.noSession {
		return nil
	}
	session.Messages = append(session.Messages, dotdir.SessionMessage{Role: llm.RoleAssistant, Content: answer})
	if err := manager.SaveSession(session, c.configDir); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

func (c *askCommander) ask(ctx context.Context, req processor.ChatRequest) (string, string, error) {
	var res *processor.ChatResult
	err := cliui.Step(c.out, "Thinking", func() error {
		var err error
		res, err = c.client.Chat(ctx, req)
		return err
	})
	if err != nil {
		return "", "", err
	}

	fmt.Fprintln(c.out)
	if c.raw {
		fmt.Fprintf(c.out, "%s\n\n", res.Text)
	} else {
		// The raw text is returned on render failure.
		rendered, _ := cliui.RenderMarkdown(res.Text)
		fmt.Fprint(c.out, rendered)
	}
	return res.Text, res.Model, nil
}

func (c *askCommander) askStream(ctx context.Context, req processor.ChatRequest) (string, string, error) {
	var answer strings.Builder

	fmt.Fprint(c.out, assistantPrompt)
	model, err := c.client.ChatStream(ctx, req, func(fragment string) {
		fmt.Fprint(c.out, fragment)
		answer.WriteString(fragment)
	})
	fmt.Fprint(c.out, "\n\n")
	if err != nil {
		fmt.Fprintf(c.out, "  %s %v\n", cliui.FailMark, err)
		return "", "", err
	}
	return answer.String(), model, nil
}

// loadSession returns the conversation to continue, applying --user and
// --group over what the session recorded.
func (c *askCommander) loadSession(manager *dotdir.Manager) (*dotdir.SessionState, error) {
	var session *dotdir.SessionState
	if !c.newChat && !c.noSession {
		var err error
		session, err = manager.LoadSessionState(c.configDir)
		if err != nil {
			return nil, fmt.Errorf("loading session: %w", err)
		}
	}
	if session == nil {
		session = &dotdir.SessionState{}
	}

	if c.userID != "" {
		session.UserID = c.userID
	}
	if session.UserID == "" {
		session.UserID = defaultUserID()
	}
	if c.groupID != "" {
		session.GroupID = c.groupID
	}
	if session.GroupID == "" {
		session.GroupID = defaultGroupID
	}
	return session, nil
}

// chatRequest builds the request for the session. A --system override is
// sent as the last system message so the server applies it.
func (c *askCommander) chatRequest(session *dotdir.SessionState) processor.ChatRequest {
	messages := make([]llm.Message, 0, len(session.Messages)+1)
	if c.system != "" {
		messages = append(messages, llm.NewTextMessage(llm.RoleSystem, c.system))
	}
	for _, m := range session.Messages {
		messages = append(messages, llm.NewTextMessage(m.Role, m.Content))
	}

	return processor.ChatRequest{
		UserID:   session.UserID,
		GroupID:  session.GroupID,
		Messages: messages,
	}
}

func defaultUserID() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}

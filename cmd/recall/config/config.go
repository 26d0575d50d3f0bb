// Package configcmder provides the config command for managing persistent
// recall configuration stored in the .recall/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent recall configuration.

Configuration is stored as config.toml in the .recall/ directory and
provides default values for "recall serve" and the client commands.
CLI flags and RECALL_* environment variables take precedence over
config file values.

Keys use dotted notation matching the TOML section structure, e.g.:
  api.listen, api.request_timeout, client.api_target,
  pipeline.max_retries, pipeline.memory_limit, pipeline.system_prompt,
  router.query, router.extract,
  backends.openai.model, backends.anthropic.enabled,
  storage.driver, storage.sqlite_path,
  memory.provider, vector_store.provider, embedding.model,
  events.provider, events.brokers, metrics.report_schedule

List values (router chains, kafka brokers) are comma-separated.

Use subcommands to get, set, or list configuration values:
  recall config set <key> <value>    Set a configuration value
  recall config get <key>            Get a configuration value
  recall config list                 List all configuration values

Examples:
  recall config set router.query anthropic,openai
  recall config set pipeline.max_retries 1
  recall config get backends.openai.model
  recall config list`

const configShortDesc string = "Manage persistent recall configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// validKeysCompletion completes the first argument with config keys.
func validKeysCompletion(keys []string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return keys, cobra.ShellCompDirectiveNoFileComp
		}
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
}

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vaultsandbox/vsb-agent/internal/cliutil"
	"github.com/vaultsandbox/vsb-agent/internal/config"
	"github.com/vaultsandbox/vsb-agent/internal/output"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change configuration",
	Long: `Manage vsb-agent configuration.

Values resolve as flag > environment (VSB_AGENT_*) > config file > default.

Examples:
  vsb-agent config show                      # Effective configuration
  vsb-agent config set auth.outlook allow    # Let outlook sign in
  vsb-agent config set timing.instant true   # No pauses between steps
  vsb-agent config path                      # Where the file lives`,
	// Subcommands load the file themselves so that a broken file can be fixed.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.LoadEnvFiles()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)

	configSetCmd.Long = `Set a configuration value in the config file.

Available keys:
  ` + strings.Join(config.Keys(), "\n  ") + `

Examples:
  vsb-agent config set providers gmail,outlook
  vsb-agent config set timing.max_delay 1s
  vsb-agent config set accounts.gmail.username me@gmail.com`
}

func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.Path()
}

// maskSecret hides all but the last two characters of a password.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-2:]
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	path, err := configPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	shown := *c
	shown.Accounts = make(map[string]config.AccountConfig, len(c.Accounts))
	for name, acct := range c.Accounts {
		acct.Password = maskSecret(acct.Password)
		shown.Accounts[name] = acct
	}

	data, err := yaml.Marshal(&shown)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if cliutil.GetOutput(cmd, c.Output) == "json" {
		var values map[string]any
		if err := yaml.Unmarshal(data, &values); err != nil {
			return err
		}
		return cliutil.OutputJSON(w, map[string]any{
			"configFile": path,
			"config":     values,
		})
	}

	fmt.Fprintf(w, "# Config file: %s\n", path)
	_, err = w.Write(data)
	return err
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	path, err := configPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	previous, err := config.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := config.Set(path, key, value); err != nil {
		return err
	}
	if _, err := config.Load(path); err != nil {
		if restoreErr := config.WriteFile(path, previous); restoreErr != nil {
			return fmt.Errorf("%w (restoring previous config also failed: %v)", err, restoreErr)
		}
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), output.PrintSuccess(fmt.Sprintf("Set %s successfully", key)))
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vaultsandbox/vsb-agent/internal/agent"
	"github.com/vaultsandbox/vsb-agent/internal/cliutil"
	"github.com/vaultsandbox/vsb-agent/internal/config"
	"github.com/vaultsandbox/vsb-agent/internal/logger"
)

// Version is set at build time.
var Version = "dev"

var (
	cfgFile  string
	logLevel string

	cfg       *config.Config
	appLog    = logger.Nop()
	logCloser io.Closer
)

var (
	rootProviders   string
	rootWatch       bool
	rootInstant     bool
	rootScreenshots string
)

var rootCmd = &cobra.Command{
	Use:   `vsb-agent "<instruction>"`,
	Short: "Send an email through several webmail providers from one instruction",
	Long: `vsb-agent turns a plain-language instruction into an email and walks a
simulated browser through each provider's compose flow.

The instruction is interpreted once. Every provider then runs in turn on a
fresh page, and the run ends with one outcome per provider. A provider that
fails never stops the others.

Examples:
  vsb-agent "send email to test@example.com saying 'Hello'"
  vsb-agent "email bob@corp.io with subject 'Lunch' saying 'Noon?'" --providers gmail
  vsb-agent "send email to a@b.com saying hi" --watch
  vsb-agent "send email to a@b.com saying hi" -o json`,
	Args:              cobra.MaximumNArgs(1),
	Version:           Version,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
	PersistentPostRun: closeLog,
	RunE:              runRoot,
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is $HOME/.config/vsb-agent/config.yaml)")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format: pretty, json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn, error (overrides log.level)")

	rootCmd.Flags().StringVar(&rootProviders, "providers", "",
		"Comma-separated providers to run (default from config: gmail,outlook)")
	rootCmd.Flags().BoolVarP(&rootWatch, "watch", "w", false,
		"Show live progress while the task runs")
	rootCmd.Flags().BoolVar(&rootInstant, "instant", false,
		"Skip human-like pauses between steps")
	rootCmd.Flags().StringVar(&rootScreenshots, "screenshots", "",
		"Directory for failure screenshots (overrides screenshots.dir)")
}

// initConfig loads .env files, the config file and environment, then builds
// the logger every command shares.
func initConfig(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnvFiles(); err != nil {
		return err
	}
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}

	l, closer, err := logger.Open(logger.Options{
		Level:  c.Log.Level,
		Format: c.Log.Format,
		Out:    cmd.ErrOrStderr(),
		File:   c.Log.File,
	})
	if err != nil {
		return err
	}

	cfg, appLog, logCloser = c, l, closer
	return nil
}

func closeLog(cmd *cobra.Command, args []string) {
	if logCloser != nil {
		_ = logCloser.Close()
		logCloser = nil
	}
}

func runRoot(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("missing instruction\nUsage: %s", cmd.UseLine())
	}
	instruction := args[0]

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := runConfig(cmd)
	providers := c.Providers
	if cmd.Flags().Changed("providers") {
		providers = cliutil.SplitList(rootProviders)
	}

	var (
		report *agent.Report
		err    error
	)
	if rootWatch {
		report, err = runWatch(ctx, c, instruction, providers)
	} else {
		report, err = runPlain(ctx, c, instruction, providers)
	}
	if err != nil {
		return err
	}

	if c.History.Enabled {
		if err := recordHistory(c, report); err != nil {
			appLog.Warn().Err(err).Msg("Could not record run history")
		}
	}

	if cliutil.GetOutput(cmd, c.Output) == "json" {
		return cliutil.OutputJSON(cmd.OutOrStdout(), report)
	}
	printReport(cmd.OutOrStdout(), report)
	return nil
}

// runConfig applies root flags to a copy of the loaded config.
func runConfig(cmd *cobra.Command) *config.Config {
	c := *cfg
	if rootInstant {
		c.Timing.Instant = true
	}
	if cmd.Flags().Changed("screenshots") {
		c.Screenshots.Enabled = rootScreenshots != ""
		c.Screenshots.Dir = rootScreenshots
	}
	return &c
}

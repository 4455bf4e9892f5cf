package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"

	"github.com/vaultsandbox/vsb-agent/internal/agent"
	"github.com/vaultsandbox/vsb-agent/internal/cliutil"
	"github.com/vaultsandbox/vsb-agent/internal/config"
	"github.com/vaultsandbox/vsb-agent/internal/output"
	"github.com/vaultsandbox/vsb-agent/internal/styles"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past runs",
	Long: `List recorded runs, newest first.

Examples:
  vsb-agent history              # All stored runs
  vsb-agent history --limit 5    # Five most recent
  vsb-agent history show <id>    # One run in detail
  vsb-agent history clear        # Forget every run`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one recorded run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every recorded run",
	Args:  cobra.NoArgs,
	RunE:  runHistoryClear,
}

var historyLimit int

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyClearCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0,
		"Show at most N runs (default: all)")
}

func loadHistory() (*config.History, error) {
	path, err := config.HistoryPath()
	if err != nil {
		return nil, err
	}
	h, err := config.LoadHistory(path, cfg.History.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return h, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	h, err := loadHistory()
	if err != nil {
		return err
	}
	entries := h.List(historyLimit)
	w := cmd.OutOrStdout()

	if cliutil.GetOutput(cmd, cfg.Output) == "json" {
		return cliutil.OutputJSON(w, entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return nil
	}

	table := cliutil.NewTable(w,
		cliutil.Column{Header: "ID", Width: 36, Style: styles.MutedStyle},
		cliutil.Column{Header: "WHEN", Width: 16},
		cliutil.Column{Header: "TO", Width: 28},
		cliutil.Column{Header: "RESULT"},
	)
	table.PrintHeader()
	for _, e := range entries {
		table.PrintRow(e.ID, cliutil.FormatRelativeTime(e.StartedAt), e.To, resultSummary(e))
	}
	fmt.Fprintf(w, "\n%s\n", styles.MutedStyle.Render(fmt.Sprintf("%s of %s runs",
		humanize.Comma(int64(len(entries))), humanize.Comma(int64(len(h.List(0)))))))
	return nil
}

// resultSummary renders "gmail ✓ outlook ✗" style results.
func resultSummary(e config.HistoryEntry) string {
	parts := make([]string, 0, len(e.Outcomes))
	for _, o := range e.Outcomes {
		icon := "✗"
		switch o.Status {
		case string(agent.StatusSuccess):
			icon = "✓"
		case string(agent.StatusCancelled):
			icon = "○"
		}
		parts = append(parts, o.Provider+" "+icon)
	}
	return strings.Join(parts, "  ")
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	h, err := loadHistory()
	if err != nil {
		return err
	}
	entry, err := h.Get(args[0])
	if errors.Is(err, config.ErrRunNotFound) {
		return fmt.Errorf("run not found: %s", args[0])
	}
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if cliutil.GetOutput(cmd, cfg.Output) == "json" {
		return cliutil.OutputJSON(w, entry)
	}

	label := styles.LabelStyle
	fmt.Fprintf(w, "%s%s\n", label.Render("Run:"), entry.ID)
	fmt.Fprintf(w, "%s%s (%s)\n", label.Render("Started:"),
		entry.StartedAt.Local().Format("2006-01-02 15:04:05"), cliutil.FormatRelativeTime(entry.StartedAt))
	fmt.Fprintf(w, "%s%s\n", label.Render("Duration:"), cliutil.FormatDuration(entry.Duration))
	fmt.Fprintf(w, "%s%s\n", label.Render("To:"), entry.To)
	if entry.Subject != "" {
		fmt.Fprintf(w, "%s%s\n", label.Render("Subject:"), entry.Subject)
	}
	fmt.Fprintln(w)
	for _, o := range entry.Outcomes {
		line := o.Provider + ": " + o.Summary
		switch o.Status {
		case string(agent.StatusSuccess):
			fmt.Fprintln(w, output.PrintSuccess(line))
		case string(agent.StatusCancelled):
			fmt.Fprintln(w, output.PrintWarning(line))
		default:
			fmt.Fprintln(w, output.PrintError(line))
		}
	}
	return nil
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	h, err := loadHistory()
	if err != nil {
		return err
	}
	n, err := h.Clear()
	if err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), output.PrintSuccess("Removed "+english.Plural(n, "run", "")))
	return nil
}

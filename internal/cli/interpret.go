package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vaultsandbox/vsb-agent/internal/cliutil"
	"github.com/vaultsandbox/vsb-agent/internal/interpret"
	"github.com/vaultsandbox/vsb-agent/internal/styles"
)

var interpretCmd = &cobra.Command{
	Use:   `interpret "<instruction>"`,
	Short: "Show how an instruction is understood, without sending",
	Long: `Parse an instruction into recipient, subject and body and print the result.
No provider is contacted.

Examples:
  vsb-agent interpret "send email to test@example.com saying 'Hello'"
  vsb-agent interpret "email a@b.com about 'Lunch'" -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runInterpret,
}

func init() {
	rootCmd.AddCommand(interpretCmd)
}

func runInterpret(cmd *cobra.Command, args []string) error {
	fields, err := interpret.Interpret(args[0])
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if cliutil.GetOutput(cmd, cfg.Output) == "json" {
		return cliutil.OutputJSON(w, fields)
	}

	fmt.Fprintf(w, "%s%s\n", styles.LabelStyle.Render("To:"), fields.To)
	fmt.Fprintf(w, "%s%s\n", styles.LabelStyle.Render("Subject:"), orNone(fields.Subject))
	fmt.Fprintf(w, "%s%s\n", styles.LabelStyle.Render("Body:"), orNone(fields.Body))
	return nil
}

func orNone(s string) string {
	if s == "" {
		return styles.MutedStyle.Render("(none)")
	}
	return s
}

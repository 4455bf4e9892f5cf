package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vaultsandbox/vsb-agent/internal/cliutil"
	"github.com/vaultsandbox/vsb-agent/internal/provider"
	"github.com/vaultsandbox/vsb-agent/internal/styles"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the providers a task can run against",
	Long: `List registered providers with their compose URL, the auth policy in
effect and how many selectors back each UI target.

Examples:
  vsb-agent providers
  vsb-agent providers -o json`,
	Args: cobra.NoArgs,
	RunE: runProviders,
}

func init() {
	rootCmd.AddCommand(providersCmd)
}

// ProviderJSON is the JSON form of a registered provider.
type ProviderJSON struct {
	Kind      string              `json:"kind"`
	Name      string              `json:"name"`
	URL       string              `json:"url"`
	Auth      string              `json:"auth"`
	Selectors map[string][]string `json:"selectors"`
}

func runProviders(cmd *cobra.Command, args []string) error {
	registry, err := newRegistry(cfg)
	if err != nil {
		return err
	}
	defs := registry.Definitions()
	w := cmd.OutOrStdout()

	if cliutil.GetOutput(cmd, cfg.Output) == "json" {
		result := make([]ProviderJSON, 0, len(defs))
		for _, def := range defs {
			result = append(result, providerJSON(def))
		}
		return cliutil.OutputJSON(w, result)
	}

	table := cliutil.NewTable(w,
		cliutil.Column{Header: "PROVIDER", Width: 10, Style: styles.ProviderStyle},
		cliutil.Column{Header: "AUTH", Width: 20},
		cliutil.Column{Header: "URL"},
	)
	table.PrintHeader()
	for _, def := range defs {
		table.PrintRow(string(def.Kind), def.Auth.Name(), def.URL)
	}

	selectors := cliutil.NewTable(w,
		cliutil.Column{Header: "PROVIDER", Width: 10},
		cliutil.Column{Header: "TARGET", Width: 16},
		cliutil.Column{Header: "COUNT", Width: 5},
		cliutil.Column{Header: "PRIMARY", Style: styles.MutedStyle},
	)
	selectors.PrintHeader()
	for _, def := range defs {
		for _, target := range def.Targets() {
			set := def.Selectors[target]
			selectors.PrintRow(string(def.Kind), string(target), fmt.Sprint(len(set)), string(set[0]))
		}
	}
	fmt.Fprintln(w)
	return nil
}

func providerJSON(def provider.Definition) ProviderJSON {
	out := ProviderJSON{
		Kind:      string(def.Kind),
		Name:      def.Name,
		URL:       def.URL,
		Auth:      def.Auth.Name(),
		Selectors: make(map[string][]string, len(def.Selectors)),
	}
	for target, set := range def.Selectors {
		sels := make([]string, len(set))
		for i, s := range set {
			sels[i] = string(s)
		}
		out.Selectors[string(target)] = sels
	}
	return out
}


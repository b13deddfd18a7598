package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/config"
	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/provider"
)

var configFormat string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved connection profile",
	Long: `Resolve config.toml and auth.json from the settings home and print the
connection profile. The credential is masked.`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().StringVar(&configFormat, "format", "json", "Output format (json|yaml)")
}

// configView is the printed profile plus the effective endpoint.
type configView struct {
	Profile  config.Profile `json:"profile" yaml:"profile"`
	Endpoint string         `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

func runConfig(cmd *cobra.Command, args []string) error {
	profile, err := provider.New(providerOptions()).Profile()
	if err != nil {
		return err
	}

	view := configView{Profile: profile.Redacted()}
	if profile.BaseURL != "" {
		endpoint, err := profile.Endpoint()
		if err != nil {
			return err
		}
		view.Endpoint = endpoint
	}

	out := cmd.OutOrStdout()
	switch configFormat {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(view)
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", configFormat)
	}
}

// Package commands provides the CLI commands for codex-provider.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/logging"
	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/provider"
	"github.com/JakkuSakura/opencode-codex-exec-provider/pkg/types"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs bool
	logLevel  string
	envFile   string

	homeDir              string
	inlineInstructions   string
	instructionsFile     string
	userInstructionsFile string
	noUserInstructions   bool
	noValidate           bool
	useConfigModel       bool
	inputPrice           float64
	outputPrice          float64
)

var rootCmd = &cobra.Command{
	Use:   "codex-provider",
	Short: "Language models configured from a codex settings home",
	Long: `codex-provider builds language model handles from the codex settings
home (config.toml, auth.json and AGENTS.md) and talks to the configured
OpenAI compatible endpoint over the chat or responses wire API.

Run 'codex-provider config' to inspect the resolved profile, or
'codex-provider run "hello"' to send a prompt.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setupEnvironment,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	flags.StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	flags.StringVar(&envFile, "env-file", "", "Load environment variables from this file (default .env when present)")

	flags.StringVar(&homeDir, "home", "", "Settings home (default $CODEX_HOME or ~/.codex)")
	flags.StringVar(&inlineInstructions, "instructions", "", "Base instructions for responses calls (an instructions file wins)")
	flags.StringVar(&instructionsFile, "instructions-file", "", "File with base instructions, relative to the settings home")
	flags.StringVar(&userInstructionsFile, "user-instructions-file", "", "File with user instructions, relative to the settings home")
	flags.BoolVar(&noUserInstructions, "no-user-instructions", false, "Do not inject AGENTS.md")
	flags.BoolVar(&useConfigModel, "use-config-model", true, "Use the model in config.toml; set to false to honor --model")
	flags.BoolVar(&noValidate, "no-validate", false, "Accept instructions without length and control character checks")
	flags.Float64Var(&inputPrice, "input-price", 0, "Input price per million tokens, used for cost reporting")
	flags.Float64Var(&outputPrice, "output-price", 0, "Output price per million tokens, used for cost reporting")

	rootCmd.SetVersionTemplate(fmt.Sprintf("codex-provider %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(instructionsCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func setupEnvironment(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(logLevel)
	if printLogs {
		cfg.Output = os.Stderr
		cfg.Pretty = true
	} else {
		cfg.Output = io.Discard
	}
	logging.Init(cfg)
	return nil
}

// providerOptions builds provider options from the global flags.
func providerOptions() provider.Options {
	opts := provider.Options{
		Home:                 homeDir,
		Instructions:         inlineInstructions,
		InstructionsFile:     instructionsFile,
		UserInstructionsFile: userInstructionsFile,
	}
	if !useConfigModel {
		off := false
		opts.UseCodexConfigModel = &off
	}
	if noUserInstructions {
		off := false
		opts.IncludeUserInstructions = &off
	}
	if noValidate {
		off := false
		opts.ValidateContent = &off
	}
	pricing := &types.Pricing{InputPerMToken: inputPrice, OutputPerMToken: outputPrice}
	if pricing.Enabled() {
		opts.Pricing = pricing
	}
	return opts
}

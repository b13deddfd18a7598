package commands

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/config"
	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/instructions"
	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/provider"
)

var (
	instructionsModel string
	instructionsWatch bool
)

var instructionsCmd = &cobra.Command{
	Use:   "instructions",
	Short: "Print the instructions a responses call would send",
	Long: `Resolve the base instructions and the user instructions (AGENTS.md) for a
model and print them.

With --watch the instructions are printed again whenever config.toml,
auth.json, AGENTS.md or an instructions file changes.`,
	RunE: runInstructions,
}

func init() {
	instructionsCmd.Flags().StringVarP(&instructionsModel, "model", "m", "", "Model id (ignored unless --use-config-model=false)")
	instructionsCmd.Flags().BoolVarP(&instructionsWatch, "watch", "w", false, "Print again when settings change")
}

func runInstructions(cmd *cobra.Command, args []string) error {
	p := provider.New(providerOptions())
	out := cmd.OutOrStdout()

	if err := printInstructions(out, p); err != nil {
		return err
	}
	if !instructionsWatch {
		return nil
	}

	home := config.HomeDir(homeDir, config.OSEnv)
	watcher, err := config.NewWatcher(home, func(path string) {
		fmt.Fprintf(out, "\n--- %s changed ---\n", path)
		if err := printInstructions(out, p); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
		}
	}, instructionsFile, userInstructionsFile)
	if err != nil {
		return fmt.Errorf("watch %s: %w", home, err)
	}
	watcher.Start()
	defer watcher.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-cmd.Context().Done():
	}
	return nil
}

func printInstructions(out io.Writer, p *provider.Provider) error {
	resolved, err := p.Instructions(instructionsModel)
	if err != nil {
		return err
	}
	writeInstructions(out, resolved)
	return nil
}

func writeInstructions(out io.Writer, resolved instructions.Resolved) {
	fmt.Fprintln(out, "# Base instructions")
	fmt.Fprintln(out)
	fmt.Fprintln(out, resolved.Base)
	if resolved.User != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "# User instructions")
		fmt.Fprintln(out)
		fmt.Fprintln(out, resolved.User)
	}
}

package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/config"
	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/provider"
	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/stream"
	"github.com/JakkuSakura/opencode-codex-exec-provider/pkg/types"
)

var (
	runModel   string
	runWireAPI string
	runSystem  string
	runStream  bool
	runFormat  string
)

var runCmd = &cobra.Command{
	Use:   "run [message...]",
	Short: "Send a prompt to the configured model",
	Long: `Send a single prompt to the model configured in the settings home and print
the answer.

Examples:
  codex-provider run "Explain this stack trace"
  codex-provider run --stream "Write a haiku about Go"
  codex-provider run --wire-api chat --format json "hello"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPrompt,
}

func init() {
	runCmd.Flags().StringVarP(&runModel, "model", "m", "", "Model id (ignored unless --use-config-model=false)")
	runCmd.Flags().StringVar(&runWireAPI, "wire-api", "", "Force the wire API (chat|responses)")
	runCmd.Flags().StringVar(&runSystem, "system", "", "System message to send before the prompt")
	runCmd.Flags().BoolVarP(&runStream, "stream", "s", false, "Print text as it arrives")
	runCmd.Flags().StringVar(&runFormat, "format", "text", "Output format (text|json)")
}

func runPrompt(cmd *cobra.Command, args []string) error {
	if runFormat != "text" && runFormat != "json" {
		return fmt.Errorf("unknown format %q (want text or json)", runFormat)
	}

	model, err := languageModel(cmd, provider.New(providerOptions()))
	if err != nil {
		return err
	}

	var prompt []types.Message
	if runSystem != "" {
		prompt = append(prompt, types.TextMessage(types.RoleSystem, runSystem))
	}
	prompt = append(prompt, types.TextMessage(types.RoleUser, strings.Join(args, " ")))
	opts := &types.CallOptions{Prompt: prompt}

	out := cmd.OutOrStdout()
	if runStream && runFormat == "text" {
		return streamText(cmd, model, opts, out)
	}

	result, err := model.Generate(cmd.Context(), opts)
	if err != nil {
		return err
	}
	if runFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	fmt.Fprintln(out, result.Text())
	return nil
}

func languageModel(cmd *cobra.Command, p *provider.Provider) (provider.LanguageModel, error) {
	if runWireAPI == "" {
		return p.LanguageModel(cmd.Context(), runModel)
	}
	wire, err := config.ParseWireAPI(runWireAPI)
	if err != nil {
		return nil, err
	}
	if wire == config.WireAPIChat {
		return p.Chat(cmd.Context(), runModel)
	}
	return p.Responses(cmd.Context(), runModel)
}

// streamText prints text deltas as they arrive and warnings to stderr.
func streamText(cmd *cobra.Command, model provider.LanguageModel, opts *types.CallOptions, out io.Writer) error {
	s, err := model.Stream(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer s.Close()

	for {
		ev, err := s.Recv()
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			return err
		}

		switch e := ev.(type) {
		case stream.StreamStart:
			for _, w := range e.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s %s\n", w.Type, w.Setting)
			}
		case stream.TextDelta:
			fmt.Fprint(out, e.Delta)
		case stream.Error:
			return e.Err
		}
	}
}

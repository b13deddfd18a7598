// Package main provides the entry point for the codex-provider CLI.
package main

import (
	"fmt"
	"os"

	"github.com/JakkuSakura/opencode-codex-exec-provider/cmd/codex-provider/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

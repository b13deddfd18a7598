package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/config"
	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/event"
	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/logging"
	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/provider"
	"github.com/JakkuSakura/opencode-codex-exec-provider/internal/server"
)

var (
	servePort     int
	serveHostname string
	serveNoCORS   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local debug server",
	Long: `Start an HTTP server that exposes the provider: the resolved profile,
instructions, one-shot and streaming generation, and an SSE feed of
generation and settings events.`,
	RunE: runServe,
}

func init() {
	defaults := server.DefaultConfig()
	serveCmd.Flags().IntVarP(&servePort, "port", "p", defaults.Port, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", defaults.Host, "Hostname to listen on")
	serveCmd.Flags().BoolVar(&serveNoCORS, "no-cors", false, "Disable CORS headers")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logging.Component("serve")

	bus := event.NewBus()
	defer bus.Close()

	home := config.HomeDir(homeDir, config.OSEnv)
	watcher, err := config.NewWatcher(home, func(path string) {
		bus.Publish(event.Event{Type: event.SettingsChanged, Data: event.SettingsChangedData{Path: path}})
	}, instructionsFile, userInstructionsFile)
	if err != nil {
		// A missing settings home is not fatal; the server reports it per request
		log.Warn().Err(err).Str("home", home).Msg("settings watcher disabled")
	} else {
		watcher.Start()
		defer watcher.Stop()
	}

	cfg := server.DefaultConfig()
	cfg.Host = serveHostname
	cfg.Port = servePort
	cfg.EnableCORS = !serveNoCORS

	srv := server.New(cfg, provider.New(providerOptions()), bus)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr()).Str("version", Version).Msg("server listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	return nil
}

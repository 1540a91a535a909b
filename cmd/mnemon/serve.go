package mnemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mnemon-dev/mnemon"
	"github.com/mnemon-dev/mnemon/pkg/config"
	"github.com/mnemon-dev/mnemon/pkg/logger"
	"github.com/mnemon-dev/mnemon/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Mnemon HTTP server",
	Long: `Start the Mnemon HTTP server to expose the memory engine over REST.

The server provides endpoints for:
- Committing conversation turns
- Recalling memory context for new input
- Ingesting raw facts
- Merging duplicate entities
- Schema and store inspection

Configuration can be provided through config files, environment variables, or command-line flags.`,
	RunE: runServe,
}

var (
	serveHost string
	servePort int
	serveMode string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "localhost", "Server host")
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Server port")
	serveCmd.Flags().StringVar(&serveMode, "mode", "debug", "Server mode (debug, release, test)")

	serveCmd.Flags().String("graph-uri", "", "Graph database URI")
	serveCmd.Flags().String("graph-username", "", "Graph database username")
	serveCmd.Flags().String("graph-password", "", "Graph database password")
	serveCmd.Flags().String("graph-database", "", "Graph base database name")

	serveCmd.Flags().String("journal-path", "", "Turn journal directory (empty for in-memory)")
	serveCmd.Flags().String("persona-file", "", "Persona YAML file (user_name, ai_name)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	overrideConfigWithFlags(cmd, cfg)

	if path, _ := cmd.Flags().GetString("persona-file"); path != "" {
		persona, err := config.LoadPersona(path)
		if err != nil {
			return fmt.Errorf("failed to load persona: %w", err)
		}
		cfg.Persona = *persona
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	engine, err := mnemon.NewEngine(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	srv := server.New(cfg, engine)
	srv.Setup()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		logger.Get().Info("received signal", zap.String("signal", sig.String()))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		if err := engine.Close(shutdownCtx); err != nil {
			return fmt.Errorf("engine shutdown error: %w", err)
		}
		logger.Get().Info("stopped gracefully")
		return nil
	}
}

func overrideConfigWithFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("mode") {
		cfg.Server.Mode = serveMode
	}

	if cmd.Flags().Changed("graph-uri") {
		cfg.Graph.URI, _ = cmd.Flags().GetString("graph-uri")
	}
	if cmd.Flags().Changed("graph-username") {
		cfg.Graph.Username, _ = cmd.Flags().GetString("graph-username")
	}
	if cmd.Flags().Changed("graph-password") {
		cfg.Graph.Password, _ = cmd.Flags().GetString("graph-password")
	}
	if cmd.Flags().Changed("graph-database") {
		cfg.Graph.Database, _ = cmd.Flags().GetString("graph-database")
	}

	if cmd.Flags().Changed("journal-path") {
		cfg.Journal.Path, _ = cmd.Flags().GetString("journal-path")
	}
}

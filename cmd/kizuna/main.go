// Kizuna backend entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/BegoniaHe/kizuna/internal/domain/chat"
	"github.com/BegoniaHe/kizuna/internal/infra/config"
	"github.com/BegoniaHe/kizuna/internal/infra/eventbus"
	"github.com/BegoniaHe/kizuna/internal/infra/llm"
	"github.com/BegoniaHe/kizuna/internal/infra/sqlite"
	"github.com/BegoniaHe/kizuna/internal/server"
	"github.com/BegoniaHe/kizuna/internal/version"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("kizuna", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	showVersion := fs.Bool("version", false, "Show version information")
	showHelp := fs.Bool("help", false, "Show help")
	configPath := fs.String("config", "", "Path to a YAML config file")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Fprintln(out, version.String()) //nolint:errcheck
		return 0
	}

	if *showHelp {
		printHelp(out)
		return 0
	}

	if err := serve(*configPath); err != nil {
		fmt.Fprintf(out, "kizuna: %v\n", err) //nolint:errcheck
		return 1
	}
	return 0
}

func serve(configPath string) error {
	// .env is optional; real env vars win over file entries.
	_ = godotenv.Load()

	cfg := config.Load()
	if configPath == "" {
		configPath = os.Getenv("KIZUNA_CONFIG")
	}
	if configPath != "" {
		if err := cfg.ApplyFile(configPath); err != nil {
			return err
		}
	}

	var (
		sessions chat.SessionRepository
		messages chat.MessageRepository
		store    io.Closer
	)
	if cfg.InMemory() {
		sessions, messages = chat.NewMemoryRepositories()
	} else {
		db, err := sqlite.NewDB(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		if err := sqlite.MigrateUp(db); err != nil {
			db.Close() //nolint:errcheck
			return fmt.Errorf("run migrations: %w", err)
		}
		sessions = sqlite.NewSessionRepository(db)
		messages = sqlite.NewMessageRepository(db)
		store = db
	}

	registry := llm.NewRegistry()
	provider := cfg.ProviderConfig()
	registry.Register(provider)

	builder := chat.ContextBuilder{
		SystemPrompt: cfg.SystemPrompt,
		MaxMessages:  cfg.MaxContextMessages,
	}
	bus := eventbus.New()
	svc := chat.NewService(sessions, messages, registry, builder, bus)

	serverCfg := server.DefaultConfig()
	serverCfg.Addr = cfg.HTTPAddr
	srv := server.NewServer(svc, registry, provider, bus, store, serverCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func printHelp(out io.Writer) {
	helpText := `Kizuna - local backend for the desktop chat companion

Usage:
  kizuna [options]

Options:
  --version        Show version information
  --help           Show this help message
  --config <path>  Load a YAML config file (or set KIZUNA_CONFIG)

Configuration is read from KIZUNA_* environment variables (a .env file is
honored), then overlaid with the YAML file when one is given.

Examples:
  kizuna --version
  kizuna --config kizuna.yaml
  KIZUNA_PROVIDER=ollama KIZUNA_BASE_URL=http://localhost:11434 kizuna`
	fmt.Fprintln(out, helpText) //nolint:errcheck
}

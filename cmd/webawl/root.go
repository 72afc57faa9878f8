package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/caffeineduck/webawl/internal/config"
	"github.com/caffeineduck/webawl/interp"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "webawl",
	Short: "REPL host for the awl interpreter compiled to WebAssembly",
	Long: `webawl - Drive the awl interpreter from a terminal or over HTTP.

The interpreter is a WebAssembly module (see --module). It can run on the
calling goroutine (direct) or inside a background worker that queues requests
until the interpreter has loaded (--worker). Without a subcommand webawl
starts the interactive REPL.`,
	Args:          cobra.NoArgs,
	RunE:          runRepl,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	defaults := config.Default()

	rootCmd.PersistentFlags().StringP("module", "m", defaults.Module, "Path to the awl WebAssembly module")
	rootCmd.PersistentFlags().String("config", "", "YAML config file")
	rootCmd.PersistentFlags().Bool("no-cache", false, "Disable compilation cache")
	rootCmd.PersistentFlags().String("memory", defaults.Runtime.MemoryLimit, "Memory limit: 16mb, 64mb, 256mb, 1gb")
	rootCmd.PersistentFlags().String("log-level", defaults.LogLevel, "Log level: debug, info, warn, error")

	addReplFlags(rootCmd)
}

// loadSettings reads --config and applies explicitly set flags on top.
func loadSettings(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()

	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	if flags.Changed("module") {
		cfg.Module, _ = flags.GetString("module")
	}
	if flags.Changed("no-cache") {
		noCache, _ := flags.GetBool("no-cache")
		cfg.Runtime.DiskCache = !noCache
	}
	if flags.Changed("memory") {
		cfg.Runtime.MemoryLimit, _ = flags.GetString("memory")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if f := flags.Lookup("worker"); f != nil && f.Changed {
		cfg.Worker, _ = flags.GetBool("worker")
	}
	if f := flags.Lookup("prompt"); f != nil && f.Changed {
		cfg.Terminal.Prompt = f.Value.String()
	}
	if f := flags.Lookup("history"); f != nil && f.Changed {
		cfg.Terminal.HistoryFile = f.Value.String()
	}
	if f := flags.Lookup("start-timeout"); f != nil && f.Changed {
		cfg.StartTimeout, _ = flags.GetDuration("start-timeout")
	}

	return cfg, cfg.Validate()
}

func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// openRuntime compiles the configured module.
func openRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger) (*interp.Runtime, error) {
	wasm, err := os.ReadFile(cfg.Module)
	if err != nil {
		return nil, fmt.Errorf("read module: %w", err)
	}

	opts := []interp.RuntimeOption{interp.WithRuntimeLogger(logger)}
	if cfg.Runtime.DiskCache {
		opts = append(opts, interp.WithDiskCache(cfg.Runtime.CacheDir))
	}
	pages, err := config.MemoryLimitPages(cfg.Runtime.MemoryLimit)
	if err != nil {
		return nil, err
	}
	if pages > 0 {
		opts = append(opts, interp.WithMemoryLimit(pages))
	}

	rt, err := interp.NewRuntime(ctx, wasm, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Module, err)
	}
	return rt, nil
}

// setup is what every interpreter-backed command starts with.
func setup(cmd *cobra.Command) (config.Config, *slog.Logger, *interp.Runtime, error) {
	cfg, err := loadSettings(cmd)
	if err != nil {
		return cfg, nil, nil, err
	}

	logger, err := newLogger(cfg.LogLevel, cmd.ErrOrStderr())
	if err != nil {
		return cfg, nil, nil, err
	}

	rt, err := openRuntime(cmd.Context(), cfg, logger)
	if err != nil {
		return cfg, logger, nil, err
	}
	return cfg, logger, rt, nil
}

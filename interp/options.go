package interp

import (
	"io"
	"log/slog"
)

// RuntimeOption configures a Runtime at creation time.
type RuntimeOption func(*runtimeConfig)

type runtimeConfig struct {
	diskCache        bool
	cacheDir         string
	memoryLimitPages uint32 // Max memory pages (each page = 64KB), 0 = default (4GB)
	logger           *slog.Logger
}

func defaultRuntimeConfig() runtimeConfig {
	return runtimeConfig{
		logger: slog.Default(),
	}
}

// WithDiskCache enables a persistent compilation cache for faster startup.
// Optionally provide a custom directory; otherwise uses ~/.cache/webawl or
// XDG_CACHE_HOME/webawl.
//
//	interp.NewRuntime(ctx, wasm, interp.WithDiskCache())            // default dir
//	interp.NewRuntime(ctx, wasm, interp.WithDiskCache("/tmp/cache")) // custom dir
func WithDiskCache(dir ...string) RuntimeOption {
	return func(c *runtimeConfig) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithMemoryLimit caps the linear memory of every interpreter instance.
// Each page is 64KB. Default is 0 (no limit, up to 4GB).
func WithMemoryLimit(pages uint32) RuntimeOption {
	return func(c *runtimeConfig) {
		c.memoryLimitPages = pages
	}
}

// WithRuntimeLogger sets the logger for runtime diagnostics.
func WithRuntimeLogger(l *slog.Logger) RuntimeOption {
	return func(c *runtimeConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Memory limit constants for convenience.
const (
	MemoryLimit16MB  uint32 = 256   // 16 MB
	MemoryLimit64MB  uint32 = 1024  // 64 MB
	MemoryLimit256MB uint32 = 4096  // 256 MB
	MemoryLimit1GB   uint32 = 16384 // 1 GB
)

// Option configures a single Interpreter.
type Option func(*config)

type config struct {
	stdout io.Writer
	stderr io.Writer
}

func defaultConfig() config {
	return config{
		stdout: io.Discard,
		stderr: io.Discard,
	}
}

// WithStdout captures anything the module writes to WASI stdout. awl output
// normally goes through the print function instead.
func WithStdout(w io.Writer) Option {
	return func(c *config) {
		c.stdout = w
	}
}

// WithStderr captures anything the module writes to WASI stderr.
func WithStderr(w io.Writer) Option {
	return func(c *config) {
		c.stderr = w
	}
}

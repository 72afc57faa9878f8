package interp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// ErrClosed is returned by calls on a closed Runtime or Interpreter.
var ErrClosed = errors.New("interpreter closed")

// Host import the module calls to print.
const (
	hostModuleName = "env"
	hostPrintFunc  = "awl_print"
)

// Runtime holds the compiled interpreter module and instantiates
// interpreters from it.
type Runtime struct {
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	compiled wazero.CompiledModule
	logger   *slog.Logger

	instances sync.Map // module name -> *Interpreter
	seq       atomic.Uint64

	mu     sync.Mutex
	closed bool
}

// NewRuntime compiles wasm and prepares the host imports it needs.
func NewRuntime(ctx context.Context, wasm []byte, opts ...RuntimeOption) (*Runtime, error) {
	cfg := defaultRuntimeConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	var cache wazero.CompilationCache
	var err error

	if cfg.diskCache {
		cacheDir := cfg.cacheDir
		if cacheDir == "" {
			cacheDir = defaultCacheDir()
		}
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig()
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	r := &Runtime{
		runtime: wazero.NewRuntimeWithConfig(ctx, rtConfig),
		cache:   cache,
		logger:  cfg.logger,
	}

	if err := r.init(ctx, wasm); err != nil {
		r.Close(ctx)
		return nil, err
	}
	return r, nil
}

func (r *Runtime) init(ctx context.Context, wasm []byte) error {
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r.runtime); err != nil {
		return fmt.Errorf("instantiate WASI: %w", err)
	}

	_, err := r.runtime.NewHostModuleBuilder(hostModuleName).
		NewFunctionBuilder().
		WithFunc(r.hostPrint).
		Export(hostPrintFunc).
		Instantiate(ctx)
	if err != nil {
		return fmt.Errorf("instantiate host module: %w", err)
	}

	compiled, err := r.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return fmt.Errorf("compile awl: %w", err)
	}
	r.compiled = compiled

	return nil
}

// hostPrint is env.awl_print. Calls from unknown instances or with an
// unregistered callback index are dropped.
func (r *Runtime) hostPrint(ctx context.Context, m api.Module, fn, ptr uint32) {
	v, ok := r.instances.Load(m.Name())
	if !ok {
		r.logger.Debug("print from unregistered module", "module", m.Name())
		return
	}

	s, err := readCString(m.Memory(), ptr)
	if err != nil {
		r.logger.Warn("awl_print", "module", m.Name(), "error", err)
		return
	}
	v.(*Interpreter).print(fn, s)
}

// NewInterpreter instantiates a fresh interpreter, runs setup_awl, reads the
// version and creates the top-level environment.
func (r *Runtime) NewInterpreter(ctx context.Context, opts ...Option) (*Interpreter, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	name := fmt.Sprintf("awl-%d", r.seq.Add(1))

	moduleConfig := wazero.NewModuleConfig().
		WithName(name).
		WithStdout(cfg.stdout).
		WithStderr(cfg.stderr).
		WithStartFunctions("_initialize")

	mod, err := r.runtime.InstantiateModule(ctx, r.compiled, moduleConfig)
	if err != nil {
		return nil, fmt.Errorf("instantiate awl: %w", err)
	}

	fns, err := lookupExports(mod)
	if err != nil {
		mod.Close(ctx)
		return nil, err
	}

	i := &Interpreter{
		rt:        r,
		mod:       mod,
		fns:       fns,
		callbacks: make(map[uint32]func(string)),
	}
	r.instances.Store(name, i)

	if err := i.setup(ctx); err != nil {
		r.instances.Delete(name)
		mod.Close(ctx)
		return nil, err
	}

	r.logger.Debug("interpreter ready", "module", name, "version", i.version)
	return i, nil
}

// Close releases the compiled module and every interpreter created from it.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	if err := r.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if r.cache != nil {
		if err := r.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "webawl")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "webawl")
	}
	return filepath.Join(os.TempDir(), "webawl-cache")
}

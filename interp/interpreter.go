package interp

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero/api"
)

// Exported function names.
const (
	ExportSetup           = "setup_awl"
	ExportTeardown        = "teardown_awl"
	ExportVersion         = "get_awl_version"
	ExportRegisterPrintFn = "register_print_fn"
	ExportNewTopLevel     = "awlenv_new_top_level"
	ExportEvalReplStr     = "eval_repl_str"
	ExportMalloc          = "malloc"
	ExportFree            = "free"
)

// Env is an opaque environment handle owned by the interpreter.
type Env uint32

type exports struct {
	setup         api.Function
	teardown      api.Function
	version       api.Function
	registerPrint api.Function
	newTopLevel   api.Function
	evalReplStr   api.Function
	malloc        api.Function
	free          api.Function
}

func lookupExports(mod api.Module) (exports, error) {
	var e exports
	for _, f := range []struct {
		name string
		dst  *api.Function
	}{
		{ExportSetup, &e.setup},
		{ExportTeardown, &e.teardown},
		{ExportVersion, &e.version},
		{ExportRegisterPrintFn, &e.registerPrint},
		{ExportNewTopLevel, &e.newTopLevel},
		{ExportEvalReplStr, &e.evalReplStr},
		{ExportMalloc, &e.malloc},
		{ExportFree, &e.free},
	} {
		fn := mod.ExportedFunction(f.name)
		if fn == nil {
			return exports{}, fmt.Errorf("awl module missing export %q", f.name)
		}
		*f.dst = fn
	}
	return e, nil
}

// Interpreter is one instance of the awl interpreter with a single top-level
// environment.
//
// Calls into the module are serialized. Print functions run synchronously on
// the goroutine that called Eval and must not call back into the
// Interpreter.
type Interpreter struct {
	rt      *Runtime
	mod     api.Module
	fns     exports
	env     Env
	version string

	callMu sync.Mutex
	closed bool

	cbMu      sync.RWMutex
	callbacks map[uint32]func(string)
	nextCB    uint32
}

func (i *Interpreter) setup(ctx context.Context) error {
	if _, err := i.fns.setup.Call(ctx); err != nil {
		return fmt.Errorf("%s: %w", ExportSetup, err)
	}

	res, err := i.fns.version.Call(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", ExportVersion, err)
	}
	version, err := readCString(i.mod.Memory(), uint32(res[0]))
	if err != nil {
		return fmt.Errorf("%s: %w", ExportVersion, err)
	}
	i.version = version

	res, err = i.fns.newTopLevel.Call(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", ExportNewTopLevel, err)
	}
	i.env = Env(res[0])

	return nil
}

// Version returns the version string reported by get_awl_version.
func (i *Interpreter) Version() string {
	return i.version
}

// Env returns the top-level environment handle.
func (i *Interpreter) Env() Env {
	return i.env
}

// RegisterPrintFn installs fn as the interpreter's print function. fn may be
// called with any substring of the output, not necessarily whole lines.
func (i *Interpreter) RegisterPrintFn(ctx context.Context, fn func(string)) error {
	i.callMu.Lock()
	defer i.callMu.Unlock()

	if i.closed {
		return ErrClosed
	}

	i.cbMu.Lock()
	i.nextCB++
	idx := i.nextCB
	i.callbacks[idx] = fn
	i.cbMu.Unlock()

	if _, err := i.fns.registerPrint.Call(ctx, uint64(idx)); err != nil {
		i.cbMu.Lock()
		delete(i.callbacks, idx)
		i.cbMu.Unlock()
		return fmt.Errorf("%s: %w", ExportRegisterPrintFn, err)
	}
	return nil
}

// Eval evaluates source against the top-level environment. It returns only
// host-level failures; awl errors are printed like any other output.
func (i *Interpreter) Eval(ctx context.Context, source string) error {
	i.callMu.Lock()
	defer i.callMu.Unlock()

	if i.closed {
		return ErrClosed
	}

	res, err := i.fns.malloc.Call(ctx, uint64(len(source)+1))
	if err != nil {
		return fmt.Errorf("%s: %w", ExportMalloc, err)
	}
	ptr := uint32(res[0])
	if ptr == 0 {
		return fmt.Errorf("%s: out of memory for %d bytes", ExportMalloc, len(source)+1)
	}
	defer i.fns.free.Call(ctx, uint64(ptr))

	if err := writeCString(i.mod.Memory(), ptr, source); err != nil {
		return err
	}

	if _, err := i.fns.evalReplStr.Call(ctx, uint64(i.env), uint64(ptr)); err != nil {
		return fmt.Errorf("%s: %w", ExportEvalReplStr, err)
	}
	return nil
}

// Close runs teardown_awl and releases the instance.
func (i *Interpreter) Close(ctx context.Context) error {
	i.callMu.Lock()
	defer i.callMu.Unlock()

	if i.closed {
		return nil
	}
	i.closed = true

	var errs []error
	if _, err := i.fns.teardown.Call(ctx); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", ExportTeardown, err))
	}
	if err := i.mod.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	i.rt.instances.Delete(i.mod.Name())

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (i *Interpreter) print(fn uint32, s string) {
	i.cbMu.RLock()
	cb, ok := i.callbacks[fn]
	i.cbMu.RUnlock()

	if !ok {
		return
	}
	cb(s)
}

// Package interp binds the awl interpreter, compiled to a WebAssembly
// reactor module, to Go.
//
// # Overview
//
// A [Runtime] compiles the module once. Each [Interpreter] is an independent
// instance with its own linear memory and exactly one top-level environment,
// created at startup and reused for every evaluation.
//
//	rt, err := interp.NewRuntime(ctx, wasm, interp.WithDiskCache())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	awl, err := rt.NewInterpreter(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer awl.Close(ctx)
//
//	awl.RegisterPrintFn(ctx, func(s string) { fmt.Print(s) })
//	awl.Eval(ctx, `(+ 1 2)`)
//
// Eval returns no value. All output, including evaluation errors, arrives
// through the print function while Eval runs.
//
// # Module ABI
//
// The module must export:
//
//	setup_awl()
//	teardown_awl()
//	get_awl_version() -> i32          pointer to a NUL-terminated string
//	register_print_fn(fn i32)
//	awlenv_new_top_level() -> i32     environment handle
//	eval_repl_str(env i32, src i32)
//	malloc(size i32) -> i32
//	free(ptr i32)
//
// and may import:
//
//	env.awl_print(fn i32, str i32)
//
// register_print_fn receives a non-zero callback index chosen by the host.
// The module hands the index back with every awl_print call so the host can
// find the Go function it stands for.
package interp

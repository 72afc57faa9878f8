// Package webawl hosts the awl interpreter, compiled to WebAssembly, behind a
// REPL.
//
// # Overview
//
// The interpreter is an opaque module reached through a narrow set of exports.
// webawl instantiates it with wazero, re-assembles its print callbacks into
// lines, and wires both to a terminal.
//
// Two shapes exist:
//
//   - direct: the terminal calls Eval and print callbacks arrive during the
//     call.
//   - worker: the interpreter runs on a background goroutine and exchanges
//     version, eval and print messages with the host, queueing requests until
//     it has loaded.
//
// # Basic Usage
//
//	rt, _ := interp.NewRuntime(ctx, wasm)
//	defer rt.Close(ctx)
//
//	awl, _ := rt.NewInterpreter(ctx)
//	defer awl.Close(ctx)
//
//	out := relay.New(func(line string) { fmt.Println(line) })
//	awl.RegisterPrintFn(ctx, out.Print)
//	awl.Eval(ctx, `(+ 1 2)`)
//
// See the interp, relay, worker and terminal packages for details.
package webawl

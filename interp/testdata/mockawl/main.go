//go:build wasip1

// Mock awl interpreter for testing the bindings without the real one.
// Build with: GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o ../mockawl.wasm .
//
// Evaluating a string prints "=> " followed by the string and a newline, as
// two separate print calls. The string "(error)" prints an awl-style error.
package main

import (
	"runtime"
	"unsafe"
)

//go:wasmimport env awl_print
func awlPrint(fn, ptr uint32)

var (
	printFn  uint32
	allocs   = map[uint32][]byte{}
	version  = []byte("v0.2.0\x00")
	envCount uint32
	setup    bool
)

func main() {}

func cstring(ptr uint32) string {
	var n uint32
	for *(*byte)(unsafe.Pointer(uintptr(ptr + n))) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(unsafe.Pointer(uintptr(ptr))), n))
}

func emit(s string) {
	if printFn == 0 {
		return
	}
	buf := append([]byte(s), 0)
	awlPrint(printFn, uint32(uintptr(unsafe.Pointer(&buf[0]))))
	runtime.KeepAlive(buf)
}

//go:wasmexport malloc
func malloc(size uint32) uint32 {
	buf := make([]byte, size)
	ptr := uint32(uintptr(unsafe.Pointer(&buf[0])))
	allocs[ptr] = buf
	return ptr
}

//go:wasmexport free
func free(ptr uint32) {
	delete(allocs, ptr)
}

//go:wasmexport setup_awl
func setupAwl() {
	setup = true
}

//go:wasmexport teardown_awl
func teardownAwl() {
	setup = false
}

//go:wasmexport get_awl_version
func getAwlVersion() uint32 {
	return uint32(uintptr(unsafe.Pointer(&version[0])))
}

//go:wasmexport register_print_fn
func registerPrintFn(fn uint32) {
	printFn = fn
}

//go:wasmexport awlenv_new_top_level
func awlenvNewTopLevel() uint32 {
	envCount++
	return envCount
}

//go:wasmexport eval_repl_str
func evalReplStr(env, ptr uint32) {
	src := cstring(ptr)
	if !setup || env != 1 {
		emit("Error: bad environment\n")
		return
	}
	if src == "(error)" {
		emit("Error: too many expressions in REPL; only one is allowed\n")
		return
	}
	emit("=> ")
	emit(src + "\n")
}

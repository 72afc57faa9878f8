package interp

import (
	"bytes"
	"fmt"
)

// memory is the subset of api.Memory used for string marshalling.
type memory interface {
	Size() uint32
	Read(offset, byteCount uint32) ([]byte, bool)
	Write(offset uint32, v []byte) bool
}

// readCString returns the NUL-terminated string at ptr. The bytes are copied
// out of guest memory.
func readCString(mem memory, ptr uint32) (string, error) {
	size := mem.Size()
	if ptr >= size {
		return "", fmt.Errorf("string pointer %#x out of range (memory size %d)", ptr, size)
	}

	view, ok := mem.Read(ptr, size-ptr)
	if !ok {
		return "", fmt.Errorf("read memory at %#x", ptr)
	}

	n := bytes.IndexByte(view, 0)
	if n < 0 {
		return "", fmt.Errorf("unterminated string at %#x", ptr)
	}
	return string(view[:n]), nil
}

// writeCString writes s followed by a NUL byte at ptr. The caller allocates
// len(s)+1 bytes.
func writeCString(mem memory, ptr uint32, s string) error {
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	if !mem.Write(ptr, buf) {
		return fmt.Errorf("write %d bytes at %#x: out of range", len(buf), ptr)
	}
	return nil
}

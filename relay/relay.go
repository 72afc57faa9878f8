// Package relay re-assembles interpreter print callbacks into complete lines.
//
// The interpreter may call its print function with arbitrary substrings that
// are not aligned to line boundaries, while terminal widgets echo whole lines
// and append their own newline. A [Relay] sits between the two: fragments are
// buffered until a newline is seen, then complete lines are handed to the
// echo function.
//
//	r := relay.New(term.Echo)
//	r.Print("ab")       // buffered
//	r.Print("cd\nef")   // echoes "abcd", "ef" stays pending
package relay

import "strings"

// Relay buffers output fragments and echoes complete lines.
//
// A Relay is owned by a single goroutine; it performs no locking.
type Relay struct {
	echo    func(line string)
	pending []string
}

// New returns a Relay that hands every flushed line to echo.
func New(echo func(line string)) *Relay {
	return &Relay{echo: echo}
}

// Print accepts one output chunk from the interpreter.
func (r *Relay) Print(chunk string) {
	parts := strings.Split(chunk, "\n")

	// strings.Split always yields at least one part
	r.pending = append(r.pending, parts[0])
	if len(parts) == 1 {
		return
	}

	r.echo(strings.Join(r.pending, ""))
	r.pending = r.pending[:0]

	for _, part := range parts[1 : len(parts)-1] {
		r.echo(part)
	}

	if last := parts[len(parts)-1]; last != "" {
		r.pending = append(r.pending, last)
	}
}

// Write implements io.Writer so a Relay can stand in for a stream.
func (r *Relay) Write(p []byte) (int, error) {
	r.Print(string(p))
	return len(p), nil
}

// Pending returns the buffered, not yet newline-terminated text.
func (r *Relay) Pending() string {
	return strings.Join(r.pending, "")
}

// Flush echoes the pending remainder, if any, as a final line. It is meant for
// end of stream; the print path never calls it.
func (r *Relay) Flush() {
	if line := r.Pending(); line != "" {
		r.echo(line)
	}
	r.pending = r.pending[:0]
}

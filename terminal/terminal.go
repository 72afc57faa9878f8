// Package terminal is the line-oriented front end of the REPL: it hands
// submitted commands to an evaluation function and echoes output lines.
package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/chzyer/readline"
)

// Config describes the terminal widget.
type Config struct {
	Prompt      string
	Greetings   string
	HistoryFile string

	// Interactive selects readline line editing. Otherwise Stdin is read
	// line by line without a prompt, which suits pipes and tests.
	Interactive bool

	Stdin  io.Reader
	Stdout io.Writer
}

const continuationPrompt = "... "

// Terminal binds command submission and line echo.
type Terminal struct {
	cfg    Config
	submit func(command string)

	mu  sync.Mutex
	out io.Writer
	rl  *readline.Instance
}

// New returns a Terminal that calls submit for every command entered.
func New(cfg Config, submit func(command string)) (*Terminal, error) {
	if cfg.Stdin == nil {
		cfg.Stdin = os.Stdin
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Prompt == "" {
		cfg.Prompt = "awl> "
	}

	t := &Terminal{
		cfg:    cfg,
		submit: submit,
		out:    cfg.Stdout,
	}

	if cfg.Interactive {
		rlCfg := &readline.Config{
			Prompt:            cfg.Prompt,
			HistoryFile:       cfg.HistoryFile,
			HistoryLimit:      1000,
			InterruptPrompt:   "^C",
			EOFPrompt:         "exit",
			HistorySearchFold: true,
			Stdout:            cfg.Stdout,
		}
		if rc, ok := cfg.Stdin.(io.ReadCloser); ok {
			rlCfg.Stdin = rc
		}

		rl, err := readline.NewEx(rlCfg)
		if err != nil {
			return nil, fmt.Errorf("initialize readline: %w", err)
		}
		t.rl = rl
		t.out = rl.Stdout()
	}

	return t, nil
}

// Greeting formats the banner shown when the terminal starts.
func Greeting(name, version string) string {
	return name + " " + version + "\nCtrl+D to exit\n"
}

// Echo writes one line of output followed by a newline. It is safe to call
// from any goroutine.
func (t *Terminal) Echo(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, line)
}

// Run shows the greeting and reads commands until EOF, exit, quit, or ctx is
// done.
func (t *Terminal) Run(ctx context.Context) error {
	if t.cfg.Greetings != "" {
		for _, line := range strings.Split(strings.TrimSuffix(t.cfg.Greetings, "\n"), "\n") {
			t.Echo(line)
		}
	}

	if t.rl != nil {
		stop := context.AfterFunc(ctx, func() { t.rl.Close() })
		defer stop()
		return t.runInteractive(ctx)
	}
	return t.runBasic(ctx)
}

// Close releases the line editor.
func (t *Terminal) Close() error {
	if t.rl != nil {
		return t.rl.Close()
	}
	return nil
}

func (t *Terminal) runInteractive(ctx context.Context) error {
	var multiLine strings.Builder
	inMultiLine := false

	for ctx.Err() == nil {
		line, err := t.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if inMultiLine {
					multiLine.Reset()
					inMultiLine = false
					t.rl.SetPrompt(t.cfg.Prompt)
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				if inMultiLine {
					t.handle(multiLine.String())
				}
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		if strings.HasSuffix(line, "\\") {
			multiLine.WriteString(strings.TrimSuffix(line, "\\"))
			multiLine.WriteString("\n")
			inMultiLine = true
			t.rl.SetPrompt(continuationPrompt)
			continue
		}

		if inMultiLine {
			multiLine.WriteString(line)
			line = multiLine.String()
			multiLine.Reset()
			inMultiLine = false
			t.rl.SetPrompt(t.cfg.Prompt)
		}

		if !t.handle(line) {
			return nil
		}
	}
	return nil
}

func (t *Terminal) runBasic(ctx context.Context) error {
	scanner := bufio.NewScanner(t.cfg.Stdin)
	var multiLine strings.Builder

	for ctx.Err() == nil && scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		if strings.HasSuffix(line, "\\") {
			multiLine.WriteString(strings.TrimSuffix(line, "\\"))
			multiLine.WriteString("\n")
			continue
		}
		if multiLine.Len() > 0 {
			multiLine.WriteString(line)
			line = multiLine.String()
			multiLine.Reset()
		}

		if !t.handle(line) {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	// input ended inside a \ continuation
	if multiLine.Len() > 0 && ctx.Err() == nil {
		t.handle(multiLine.String())
	}
	return nil
}

// handle submits one command and reports whether to keep reading.
func (t *Terminal) handle(line string) bool {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return true
	case "exit", "quit":
		return false
	}
	t.submit(line)
	return true
}

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/caffeineduck/webawl/terminal"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCommand(root *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// mockModule is the test interpreter built from interp/testdata/mockawl.
var mockModule = filepath.Join("..", "..", "interp", "testdata", "mockawl.wasm")

func requireMockModule(t *testing.T) string {
	t.Helper()
	if _, err := os.Stat(mockModule); err != nil {
		t.Skipf("mock interpreter not built: %v", err)
	}
	return mockModule
}

func TestCLIHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "--help")
	require.NoError(t, err)

	for _, phrase := range []string{
		"webawl",
		"WebAssembly",
		"--module",
		"--worker",
		"repl",
		"run",
		"serve",
		"version",
	} {
		assert.Contains(t, output, phrase)
	}
}

func TestCLIReplHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "repl", "--help")
	require.NoError(t, err)

	for _, phrase := range []string{
		"--worker",
		"--history",
		"--prompt",
		"--start-timeout",
		"Command history",
		"Multi-line input",
	} {
		assert.Contains(t, output, phrase)
	}
}

func TestCLIRunMissingModule(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.wasm")
	_, err := executeCommand(rootCmd, "run", "--module", missing, "-c", "(+ 1 2)")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read module")
}

func TestCLIRun(t *testing.T) {
	module := requireMockModule(t)

	output, err := executeCommand(rootCmd, "run", "--module", module, "--no-cache", "-c", "(+ 1 2)")
	require.NoError(t, err)
	assert.Equal(t, "=> (+ 1 2)\n", output)
}

func TestCLIRunEachLine(t *testing.T) {
	module := requireMockModule(t)

	src := filepath.Join(t.TempDir(), "prog.awl")
	require.NoError(t, os.WriteFile(src, []byte("(def {x} 1)\n\n(+ x 1)\n"), 0o644))

	output, err := executeCommand(rootCmd, "run", "--module", module, "--no-cache", "--code=", "--each-line", src)
	require.NoError(t, err)
	assert.Equal(t, "=> (def {x} 1)\n=> (+ x 1)\n", output)
}

func TestCLIVersion(t *testing.T) {
	module := requireMockModule(t)

	output, err := executeCommand(rootCmd, "version", "--module", module, "--no-cache")
	require.NoError(t, err)
	assert.Equal(t, "awl v0.2.0\n", output)
}

// newSettingsCmd mirrors the root command's flags on a fresh command.
func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	cmd.PersistentFlags().StringP("module", "m", "awl.wasm", "")
	cmd.PersistentFlags().String("config", "", "")
	cmd.PersistentFlags().Bool("no-cache", false, "")
	cmd.PersistentFlags().String("memory", "256mb", "")
	cmd.PersistentFlags().String("log-level", "warn", "")
	addReplFlags(cmd)
	return cmd
}

func TestLoadSettingsFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webawl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("module: from-file.wasm\nworker: true\nterminal:\n  prompt: \"file> \"\n"), 0o644))

	cmd := newSettingsCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", path, "--prompt", "flag> ", "--no-cache"}))

	cfg, err := loadSettings(cmd)
	require.NoError(t, err)
	assert.Equal(t, "from-file.wasm", cfg.Module)
	assert.True(t, cfg.Worker)
	assert.Equal(t, "flag> ", cfg.Terminal.Prompt)
	assert.False(t, cfg.Runtime.DiskCache)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger("INFO", &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	_, err = newLogger("loud", &buf)
	assert.Error(t, err)
}

func TestAwaitVersion(t *testing.T) {
	versions := make(chan string, 1)
	versions <- "v0.2.0"

	v, err := awaitVersion(context.Background(), versions, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "v0.2.0", v)

	_, err = awaitVersion(context.Background(), versions, 20*time.Millisecond)
	assert.ErrorContains(t, err, "did not start")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = awaitVersion(ctx, versions, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTerminalConfigGreeting(t *testing.T) {
	cmd := newSettingsCmd()
	require.NoError(t, cmd.ParseFlags(nil))
	cfg, err := loadSettings(cmd)
	require.NoError(t, err)

	tc := terminalConfig(cmd, cfg, "v0.2.0", false)
	assert.True(t, strings.HasPrefix(tc.Greetings, "awl v0.2.0\n"))
	assert.Equal(t, "awl> ", tc.Prompt)

	cfg.Terminal.Greetings = "custom"
	assert.Equal(t, "custom", terminalConfig(cmd, cfg, "v0.2.0", false).Greetings)
}

func executeRepl(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	rootCmd.SetIn(strings.NewReader(input))
	t.Cleanup(func() { rootCmd.SetIn(nil) })

	history := filepath.Join(t.TempDir(), "history")
	args = append([]string{"--module", requireMockModule(t), "--no-cache", "--history", history}, args...)
	return executeCommand(rootCmd, args...)
}

func TestCLIRepl(t *testing.T) {
	output, err := executeRepl(t, "(+ 1 2)\n(head {1})\n", "--worker=false")
	require.NoError(t, err)
	assert.Equal(t, "awl v0.2.0\nCtrl+D to exit\n=> (+ 1 2)\n=> (head {1})\n", output)
}

// The greeting waits for the version reply, and every print from queued
// evals is echoed before the REPL returns.
func TestCLIReplWorker(t *testing.T) {
	output, err := executeRepl(t, "(+ 1 2)\n(head {1})\n", "--worker")
	require.NoError(t, err)
	assert.Equal(t, "awl v0.2.0\nCtrl+D to exit\n=> (+ 1 2)\n=> (head {1})\n", output)
}

func TestCLIReplWorkerMultiLineAtEOF(t *testing.T) {
	output, err := executeRepl(t, "(+ 1 \\\n2)\n(head \\", "--worker")
	require.NoError(t, err)
	assert.Equal(t, "awl v0.2.0\nCtrl+D to exit\n=> (+ 1 \n2)\n=> (head\n", output)
}

func TestLateEcho(t *testing.T) {
	var early, late bytes.Buffer
	echo := &lateEcho{w: &early}

	echo.Echo("before")

	term, err := terminal.New(terminal.Config{Stdin: strings.NewReader(""), Stdout: &late}, func(string) {})
	require.NoError(t, err)
	echo.attach(term)
	echo.Echo("after")

	assert.Equal(t, "before\n", early.String())
	assert.Equal(t, "after\n", late.String())
}

// Help tests run last: cobra keeps --help set on a command between runs.
func TestCLIRunHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "run", "--help")
	require.NoError(t, err)

	for _, phrase := range []string{"--code", "--each-line", "--module", "--memory"} {
		assert.Contains(t, output, phrase)
	}
}

func TestCLIServeHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "serve", "--help")
	require.NoError(t, err)

	for _, phrase := range []string{"--port", "--session-ttl", "/sessions/{id}/events"} {
		assert.Contains(t, output, phrase)
	}
}


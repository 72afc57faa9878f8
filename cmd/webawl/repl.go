package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/caffeineduck/webawl/internal/config"
	"github.com/caffeineduck/webawl/interp"
	"github.com/caffeineduck/webawl/relay"
	"github.com/caffeineduck/webawl/terminal"
	"github.com/caffeineduck/webawl/worker"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive REPL with a persistent environment",
	Long: `Start an interactive awl REPL. Every command is evaluated against the same
top-level environment.

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)
  - Multi-line input (end line with \)

With --worker the interpreter loads in a background worker; commands typed
while it loads are queued and evaluated in order.

Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
	Args: cobra.NoArgs,
	RunE: runRepl,
}

func init() {
	addReplFlags(replCmd)
	rootCmd.AddCommand(replCmd)
}

func addReplFlags(cmd *cobra.Command) {
	defaults := config.Default()
	cmd.Flags().Bool("worker", false, "Run the interpreter in a background worker")
	cmd.Flags().String("prompt", defaults.Terminal.Prompt, "Prompt string")
	cmd.Flags().String("history", "", "History file path (default: ~/.webawl_history)")
	cmd.Flags().Duration("start-timeout", defaults.StartTimeout, "How long to wait for the worker to load")
}

func runRepl(cmd *cobra.Command, args []string) error {
	cfg, logger, rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	if cfg.Terminal.HistoryFile == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Terminal.HistoryFile = filepath.Join(home, ".webawl_history")
		}
	}

	interactive := isTerminal(cmd.InOrStdin())

	if cfg.Worker {
		return runWorkerRepl(cmd.Context(), cmd, cfg, logger, rt, interactive)
	}
	return runDirectRepl(cmd.Context(), cmd, cfg, logger, rt, interactive)
}

// isTerminal reports whether in is a TTY; readers that are not files never
// are.
func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func terminalConfig(cmd *cobra.Command, cfg config.Config, version string, interactive bool) terminal.Config {
	greetings := cfg.Terminal.Greetings
	if greetings == "" {
		greetings = terminal.Greeting(cfg.Terminal.Name, version)
	}
	return terminal.Config{
		Prompt:      cfg.Terminal.Prompt,
		Greetings:   greetings,
		HistoryFile: cfg.Terminal.HistoryFile,
		Interactive: interactive,
		Stdin:       cmd.InOrStdin(),
		Stdout:      cmd.OutOrStdout(),
	}
}

// runDirectRepl evaluates on the terminal goroutine; print callbacks arrive
// while Eval runs and are relayed to the terminal immediately.
func runDirectRepl(ctx context.Context, cmd *cobra.Command, cfg config.Config, logger *slog.Logger, rt *interp.Runtime, interactive bool) error {
	awl, err := rt.NewInterpreter(ctx)
	if err != nil {
		return err
	}
	defer awl.Close(context.Background())

	t, err := terminal.New(terminalConfig(cmd, cfg, awl.Version(), interactive), func(command string) {
		if err := awl.Eval(ctx, command); err != nil {
			logger.Error("eval failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	defer t.Close()

	out := relay.New(t.Echo)
	if err := awl.RegisterPrintFn(ctx, out.Print); err != nil {
		return err
	}

	err = t.Run(ctx)
	out.Flush()
	return err
}

// runWorkerRepl sets the terminal up once the worker answers the version
// request, then posts every command as an eval message.
func runWorkerRepl(ctx context.Context, cmd *cobra.Command, cfg config.Config, logger *slog.Logger, rt *interp.Runtime, interactive bool) error {
	w := worker.Start(ctx, interpreterLoader(rt), worker.WithLogger(logger), worker.WithName(cfg.Module))
	defer w.Terminate()

	c := worker.NewClient(w)

	versions := make(chan string, 1)

	echo := &lateEcho{w: cmd.OutOrStdout()}
	out := relay.New(echo.Echo)

	c.AddHandler(worker.KindVersion, func(v string) {
		select {
		case versions <- v:
		default:
		}
	})
	c.AddHandler(worker.KindPrint, func(s string) {
		out.Print(s)
	})

	clientCtx, cancelClient := context.WithCancel(ctx)
	defer cancelClient()
	clientDone := make(chan error, 1)
	go func() { clientDone <- c.Run(clientCtx) }()

	c.PostMessage(worker.Message{Kind: worker.KindVersion})
	version, err := awaitVersion(ctx, versions, cfg.StartTimeout)
	if err != nil {
		return err
	}

	t, err := terminal.New(terminalConfig(cmd, cfg, version, interactive), func(command string) {
		c.PostMessage(worker.Message{Kind: worker.KindEval, Value: command})
	})
	if err != nil {
		return err
	}
	defer t.Close()
	echo.attach(t)

	runErr := t.Run(ctx)

	// The channel is FIFO: a version reply means every eval posted before
	// it has finished printing.
	c.PostMessage(worker.Message{Kind: worker.KindVersion})
	if _, err := awaitVersion(ctx, versions, 0); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("drain worker", "error", err)
	}

	w.Terminate()
	<-clientDone
	out.Flush()
	return runErr
}

// lateEcho echoes to a terminal that is attached after the relay starts.
// Lines arriving before that go to w.
type lateEcho struct {
	term atomic.Pointer[terminal.Terminal]
	w    io.Writer
}

func (e *lateEcho) attach(t *terminal.Terminal) {
	e.term.Store(t)
}

func (e *lateEcho) Echo(line string) {
	if t := e.term.Load(); t != nil {
		t.Echo(line)
		return
	}
	fmt.Fprintln(e.w, line)
}

func interpreterLoader(rt *interp.Runtime) worker.Loader {
	return func(ctx context.Context) (worker.Engine, error) {
		awl, err := rt.NewInterpreter(ctx)
		if err != nil {
			return nil, err
		}
		return awl, nil
	}
}

// awaitVersion waits for a version reply. A zero timeout waits until ctx is
// done.
func awaitVersion(ctx context.Context, versions <-chan string, timeout time.Duration) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case v := <-versions:
		return v, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("interpreter did not start within %v", timeout)
		}
		return "", ctx.Err()
	}
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/caffeineduck/webawl/relay"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Evaluate awl source once and print its output",
	Long: `Evaluate awl source in a fresh top-level environment.

Source can be provided via:
  - File argument: webawl run prelude.awl
  - Inline flag: webawl run -c '(+ 1 2)'
  - Stdin: echo '(+ 1 2)' | webawl run

The REPL entry point accepts one expression per evaluation; use --each-line
to evaluate every non-blank line on its own.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringP("code", "c", "", "Source to evaluate")
	runCmd.Flags().Bool("each-line", false, "Evaluate each non-blank line separately")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	code, _ := cmd.Flags().GetString("code")
	eachLine, _ := cmd.Flags().GetBool("each-line")

	var source string
	switch {
	case code != "":
		source = code
	case len(args) > 0:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		source = string(data)
	default:
		in := cmd.InOrStdin()
		if f, ok := in.(*os.File); ok {
			if stat, err := f.Stat(); err == nil && stat.Mode()&os.ModeCharDevice != 0 {
				return cmd.Help()
			}
		}
		data, err := io.ReadAll(in)
		if err != nil {
			return err
		}
		source = string(data)
	}

	if strings.TrimSpace(source) == "" {
		return cmd.Help()
	}

	_, logger, rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	ctx := cmd.Context()
	awl, err := rt.NewInterpreter(ctx)
	if err != nil {
		return err
	}
	defer awl.Close(context.Background())

	stdout := cmd.OutOrStdout()
	out := relay.New(func(line string) {
		fmt.Fprintln(stdout, line)
	})
	if err := awl.RegisterPrintFn(ctx, out.Print); err != nil {
		return err
	}
	defer out.Flush()

	units := []string{source}
	if eachLine {
		units = units[:0]
		for _, line := range strings.Split(source, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				units = append(units, line)
			}
		}
	}

	for _, src := range units {
		if err := awl.Eval(ctx, src); err != nil {
			logger.Error("eval failed", "error", err)
			return err
		}
	}
	return nil
}

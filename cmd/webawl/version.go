package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version reported by the awl module",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, rt, err := setup(cmd)
		if err != nil {
			return err
		}
		defer rt.Close(context.Background())

		awl, err := rt.NewInterpreter(cmd.Context())
		if err != nil {
			return err
		}
		defer awl.Close(context.Background())

		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", cfg.Terminal.Name, awl.Version())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

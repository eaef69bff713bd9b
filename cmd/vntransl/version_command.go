package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// version is set by the release build via -ldflags.
var version = ""

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the vntransl version",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved := version
			if resolved == "" {
				if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
					resolved = info.Main.Version
				}
			}
			if resolved == "" {
				resolved = "dev"
			}
			fmt.Fprintln(cmd.OutOrStdout(), "vntransl "+resolved)
			return nil
		},
	}
}

package cmd

import (
	"fmt"
	goruntime "runtime"

	"github.com/spf13/cobra"
)

// Version and Commit can be overridden at build time via -ldflags
var (
	Version = "dev"
	Commit  = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the qvmstate version",
	Run: func(cmd *cobra.Command, args []string) {
		v := Version
		if Commit != "" {
			v += " (" + Commit + ")"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "qvmstate %s %s/%s\n", v, goruntime.GOOS, goruntime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

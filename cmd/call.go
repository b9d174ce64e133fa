package cmd

import (
	"github.com/spf13/cobra"

	"github.com/melih-ucgun/qvmstate/internal/config"
	"github.com/melih-ucgun/qvmstate/internal/core"
)

var callCmd = &cobra.Command{
	Use:   "call FUNCTION VM [key=value|arg ...]",
	Short: "Run a single function against one VM",
	Example: `  qvmstate call qvm.prefs work memory=400 maxmem=4000
  qvmstate call tags work add managed
  qvmstate call qvm.run work cmd="dnf -y update" flags=[auto] --test`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		item, err := config.NewItem(args[1], args[0], config.ParseCallArgs(args[2:]))
		if err != nil {
			return err
		}
		// tek bir çağrıda requisite anlamsız
		item.DependsOn = nil
		if !core.IsRegistered(item.Type) {
			return core.DeclarationError("unknown function: %s", item.Type)
		}

		rt, err := newRuntime(cmd, true)
		if err != nil {
			return err
		}
		defer rt.Close()

		return runItems(rt, []core.ConfigItem{item})
	},
}

func init() {
	rootCmd.AddCommand(callCmd)
}

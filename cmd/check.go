package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/melih-ucgun/qvmstate/internal/adapters/ui"
	"github.com/melih-ucgun/qvmstate/internal/core"
)

var checkCmd = &cobra.Command{
	Use:   "check [STATE_FILE...]",
	Short: "Read-only drift audit of the declarations",
	Long: `Checks every declaration against the live system in parallel without
changing anything and reports which ones have drifted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := loadItems(args)
		if err != nil {
			return err
		}

		rt, err := newRuntime(cmd, false)
		if err != nil {
			return err
		}
		defer rt.Close()

		results := core.CheckDrift(items, core.CreateResource, rt.Ctx)
		if err := rt.emit(results, func(u core.UI) error { return ui.RenderDrift(u, results) }); err != nil {
			return err
		}

		drifted, failed := 0, 0
		for _, r := range results {
			switch r.Status {
			case core.StatusDrifted:
				drifted++
			case core.StatusError:
				failed++
			}
		}
		if drifted > 0 || failed > 0 {
			return fmt.Errorf("%d drifted, %d failed of %d declarations", drifted, failed, len(results))
		}
		rt.UI.Success(fmt.Sprintf("All %d declarations in sync", len(results)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

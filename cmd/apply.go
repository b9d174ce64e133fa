package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/melih-ucgun/qvmstate/internal/adapters/ui"
	"github.com/melih-ucgun/qvmstate/internal/config"
	"github.com/melih-ucgun/qvmstate/internal/consts"
	"github.com/melih-ucgun/qvmstate/internal/core"
)

// applyCmd represents the apply command
var applyCmd = &cobra.Command{
	Use:   "apply [STATE_FILE...]",
	Short: "Durum dosyalarını uygular (Apply state files)",
	Long: `Reads the given state files (default /etc/qvmstate/top.yaml) and
reconciles every declaration. With --test nothing is changed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := loadItems(args)
		if err != nil {
			return err
		}

		rt, err := newRuntime(cmd, true)
		if err != nil {
			return err
		}
		defer rt.Close()

		return runItems(rt, items)
	},
}

// loadItems reads and concatenates state files in order.
func loadItems(files []string) ([]core.ConfigItem, error) {
	if len(files) == 0 {
		files = []string{consts.DefaultTopFile}
	}
	var items []core.ConfigItem
	for _, f := range files {
		got, err := config.LoadStateFile(f)
		if err != nil {
			return nil, err
		}
		items = append(items, got...)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no declarations found in %v", files)
	}
	return items, nil
}

// runItems runs the engine and prints the report. A run with failed
// declarations returns an error so the process exits non-zero.
func runItems(rt *runtime, items []core.ConfigItem) error {
	report, runErr := rt.engine().Run(items, core.CreateResource)
	if report == nil {
		return runErr
	}

	if err := rt.emit(report, func(u core.UI) error { return ui.RenderReport(u, report) }); err != nil {
		return err
	}

	if errors.Is(rt.Ctx.Err(), context.Canceled) {
		return fmt.Errorf("işlem kullanıcı tarafından iptal edildi")
	}
	return runErr
}

func init() {
	rootCmd.AddCommand(applyCmd)
}

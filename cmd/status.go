package cmd

import (
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/melih-ucgun/qvmstate/internal/core"
	"github.com/melih-ucgun/qvmstate/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last recorded outcome of every declaration",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd, true)
		if err != nil {
			return err
		}
		defer rt.Close()

		resources := rt.State.Resources()
		return rt.emit(resources, func(u core.UI) error {
			if len(resources) == 0 {
				u.Info("No declarations recorded yet.")
				return nil
			}
			u.Section("qvmstate status (last run: " + rt.State.Current.LastRun.Format(time.RFC822) + ")")
			return u.Table(statusRows(resources))
		})
	},
}

func statusRows(resources []types.ResourceEntry) [][]string {
	rows := [][]string{{"FUNCTION", "ID", "VM", "STATUS", "LAST APPLIED"}}
	for _, res := range resources {
		status := pterm.Green(res.Status)
		if res.Status != types.TxSuccess {
			status = pterm.Red(res.Status)
		}
		rows = append(rows, []string{
			res.Function,
			res.Declaration,
			res.VM,
			status,
			res.LastApplied.Format("2006-01-02 15:04:05"),
		})
	}
	return rows
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

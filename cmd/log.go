package cmd

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/melih-ucgun/qvmstate/internal/core"
	"github.com/melih-ucgun/qvmstate/internal/types"
)

var logLimit int

var logCmd = &cobra.Command{
	Use:   "log [TX_ID]",
	Short: "View the transaction log",
	Long:  `Lists recorded runs, newest first. With a transaction ID (or unique prefix) shows its changes.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd, true)
		if err != nil {
			return err
		}
		defer rt.Close()

		if len(args) == 1 {
			tx, err := rt.State.GetTransaction(args[0])
			if err != nil {
				return err
			}
			return rt.emit(tx, func(u core.UI) error { return renderTransaction(u, tx) })
		}

		history := rt.State.GetTransactions()
		// Show latest first
		latest := make([]types.Transaction, 0, len(history))
		for i := len(history) - 1; i >= 0 && (logLimit <= 0 || len(latest) < logLimit); i-- {
			latest = append(latest, history[i])
		}
		return rt.emit(latest, func(u core.UI) error {
			if len(latest) == 0 {
				u.Info("No transaction log found.")
				return nil
			}
			u.Section("Transaction Log")
			return u.Table(logRows(latest))
		})
	},
}

func txStatus(status string) string {
	switch status {
	case types.TxFailed:
		return pterm.Red(status)
	case types.TxTest:
		return pterm.Yellow(status)
	}
	return pterm.Green(status)
}

func logRows(txs []types.Transaction) [][]string {
	rows := [][]string{{"ID", "Date", "Status", "Changes"}}
	for _, tx := range txs {
		rows = append(rows, []string{
			tx.ID,
			tx.Timestamp.Format("2006-01-02 15:04:05"),
			txStatus(tx.Status),
			fmt.Sprintf("%d", len(tx.Changes)),
		})
	}
	return rows
}

func renderTransaction(u core.UI, tx types.Transaction) error {
	u.Section(fmt.Sprintf("%s  %s  %s", tx.ID, tx.Timestamp.Format("2006-01-02 15:04:05"), txStatus(tx.Status)))
	if len(tx.Changes) == 0 {
		u.Info("No changes.")
		return nil
	}
	rows := [][]string{{"ID", "FUNCTION", "VM", "ACTION", "KEY", "OLD", "NEW"}}
	for _, c := range tx.Changes {
		if len(c.Changes) == 0 {
			rows = append(rows, []string{c.ID, c.Type, c.Name, c.Action, "", "", ""})
			continue
		}
		for _, a := range c.Changes {
			rows = append(rows, []string{c.ID, c.Type, c.Name, c.Action, a.Key, a.Old, a.New})
		}
	}
	if err := u.Table(rows); err != nil {
		return err
	}
	for _, c := range tx.Changes {
		if c.Diff != "" {
			u.Println("")
			u.Printf("--- %s (%s)\n%s\n", c.ID, c.Type, c.Diff)
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(logCmd)
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 20, "number of transactions to list (0 = all)")
}

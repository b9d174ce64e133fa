package cmd

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	// qvm.* fonksiyonlarını kaydeder
	_ "github.com/melih-ucgun/qvmstate/internal/adapters/qvm"
)

var rootCmd = &cobra.Command{
	Use:   "qvmstate",
	Short: "Declarative state for Qubes OS qubes.",
	Long: `qvmstate reads YAML state declarations (qvm.present, qvm.prefs, qvm.vm, ...)
and reconciles the Qubes OS admin domain by driving the qvm-* tools.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Global flags
var (
	settingsPath string
	envFile      string
	hostFlag     string
	outputFlag   string
	testMode     bool
	verboseCount int
)

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		pterm.Error.Println(err)
	}
	return err
}

func init() {
	// PTerm output to Stderr (to keep Stdout clean for piping)
	pterm.SetDefaultOutput(os.Stderr)
	pterm.Success.Writer = os.Stderr
	pterm.Info.Writer = os.Stderr
	pterm.Error.Writer = os.Stderr
	pterm.Warning.Writer = os.Stderr
	pterm.Debug.Writer = os.Stderr
	pterm.DefaultHeader.Writer = os.Stderr

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&settingsPath, "settings", "", "settings file (default /etc/qvmstate/qvmstate.toml)")
	pf.StringVar(&envFile, "env-file", "", "dotenv file with QVMSTATE_* overrides and template vars")
	pf.StringVar(&hostFlag, "host", "", "admin host to reach over SSH (overrides [ssh] host)")
	pf.StringVarP(&outputFlag, "output", "o", "text", "output format: text, json, yaml")
	pf.BoolVar(&testMode, "test", false, "dry run: report what would change, change nothing")
	pf.CountVarP(&verboseCount, "verbose", "v", "Increase verbosity level (-v, -vv, -vvv)")
}

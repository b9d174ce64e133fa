package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/pterm/pterm"

	"github.com/melih-ucgun/qvmstate/internal/core"
)

// PtermUI is an implementation of core.UI using pterm. Reports go to its
// writer (stdout by default); log lines are the logger's business.
type PtermUI struct {
	writer io.Writer
}

// NewPtermUI creates a PtermUI writing to w (nil means stdout).
func NewPtermUI(w io.Writer) *PtermUI {
	if w == nil {
		w = os.Stdout
	}
	return &PtermUI{writer: w}
}

// Ensure PtermUI implements core.UI
var _ core.UI = (*PtermUI)(nil)

func (p *PtermUI) prefixed(printer pterm.PrefixPrinter, msg string) {
	printer.WithWriter(p.writer).Println(msg)
}

func (p *PtermUI) Section(title string) {
	pterm.DefaultSection.WithWriter(p.writer).Println(title)
}

func (p *PtermUI) Title(title string) {
	pterm.DefaultHeader.WithFullWidth().WithWriter(p.writer).Println(title)
}

func (p *PtermUI) Success(msg string) { p.prefixed(pterm.Success, msg) }
func (p *PtermUI) Info(msg string)    { p.prefixed(pterm.Info, msg) }
func (p *PtermUI) Debug(msg string)   { p.prefixed(pterm.Debug, msg) }
func (p *PtermUI) Warning(msg string) { p.prefixed(pterm.Warning, msg) }
func (p *PtermUI) Error(msg string)   { p.prefixed(pterm.Error, msg) }

// Table renders rows with the first one as header. Cells may carry pterm
// colors.
func (p *PtermUI) Table(rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).WithWriter(p.writer).Render()
}

func (p *PtermUI) Printf(format string, args ...interface{}) {
	fmt.Fprintf(p.writer, format, args...)
}

func (p *PtermUI) Println(args ...interface{}) {
	fmt.Fprintln(p.writer, args...)
}

func (p *PtermUI) WithWriter(w io.Writer) core.UI {
	return NewPtermUI(w)
}

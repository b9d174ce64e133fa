package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/melih-ucgun/qvmstate/internal/adapters/ui"
	"github.com/melih-ucgun/qvmstate/internal/config"
	"github.com/melih-ucgun/qvmstate/internal/core"
	"github.com/melih-ucgun/qvmstate/internal/metrics"
	"github.com/melih-ucgun/qvmstate/internal/state"
	"github.com/melih-ucgun/qvmstate/internal/system"
	"github.com/melih-ucgun/qvmstate/internal/transport"
)

// runtime bundles everything a command needs once settings are loaded.
type runtime struct {
	Settings *config.Settings
	Ctx      *core.SystemContext
	UI       core.UI
	Format   string
	State    *state.Manager
	Metrics  *metrics.Collector

	cancel  context.CancelFunc
	closers []func() error
}

// newRuntime loads settings, opens the transport and detects the target.
// withState opens the history file as well.
func newRuntime(cmd *cobra.Command, withState bool) (*runtime, error) {
	format, err := ui.ParseFormat(outputFlag)
	if err != nil {
		return nil, err
	}

	settings, err := config.LoadSettings(settingsPath, envFile)
	if err != nil {
		return nil, err
	}
	if hostFlag != "" {
		settings.SSH.Host = hostFlag
	}

	// Sinyalleri (Ctrl+C) yakala
	sigCtx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	rt := &runtime{Settings: settings, Format: format, cancel: cancel}

	logger := core.NewDefaultLogger(os.Stderr, core.LevelFromVerbosity(verboseCount))
	if settings.Log.File != "" {
		f, err := os.OpenFile(settings.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("log dosyası açılamadı: %w", err)
		}
		rt.closers = append(rt.closers, f.Close)
		logger.WithStructuredOutput(f)
	}

	var tr core.Transport
	if settings.SSH.Host != "" {
		sshTr, err := transport.NewSSHTransport(sigCtx, settings.SSH)
		if err != nil {
			rt.Close()
			return nil, err
		}
		logger.Debug("connected", "host", sshTr.Address())
		tr = sshTr
	} else {
		tr = transport.NewLocalTransport()
	}
	rt.closers = append(rt.closers, tr.Close)

	ctx := core.NewSystemContext(testMode, tr, logger).WithContext(sigCtx)
	ctx.ToolBinDir = settings.Tool.BinDir
	ctx.ToolTimeout = settings.Tool.RunTimeout.Duration
	for k, v := range settings.Vars {
		ctx.Vars[k] = v
	}
	rt.Ctx = ctx

	info := system.Detect(ctx)
	if !info.IsDom0 {
		logger.Warn("target does not look like a Qubes admin domain", "host", info.Hostname)
	}

	rt.UI = ui.NewPtermUI(nil)
	if format != ui.FormatText {
		rt.UI = &core.NoOpUI{}
	}

	if withState {
		mgr, err := state.NewManager(settings.State.Path, ctx.FS)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.State = mgr
	}

	if settings.Metrics.Textfile != "" {
		rt.Metrics = metrics.NewCollector()
	}
	return rt, nil
}

// engine returns an engine wired to history and metrics.
func (rt *runtime) engine() *core.Engine {
	var updater core.StateUpdater
	if rt.State != nil {
		updater = rt.State
	}
	e := core.NewEngine(rt.Ctx, updater)
	if rt.Metrics != nil {
		e.Observer = rt.Metrics
	}
	return e
}

// emit writes v in the selected data format, or calls text otherwise.
func (rt *runtime) emit(v interface{}, text func(core.UI) error) error {
	if rt.Format == ui.FormatText {
		return text(rt.UI)
	}
	return ui.Encode(os.Stdout, rt.Format, v)
}

// Close flushes metrics and releases the transport.
func (rt *runtime) Close() {
	if rt.Metrics != nil {
		if err := rt.Metrics.WriteTextfile(rt.Settings.Metrics.Textfile); err != nil && rt.Ctx != nil {
			rt.Ctx.Logger.Warn(err.Error())
		}
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i]()
	}
	if rt.cancel != nil {
		rt.cancel()
	}
}

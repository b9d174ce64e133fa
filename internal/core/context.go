package core

import (
	"context"
	"io"
	"os"
	"time"
)

// SystemContext, uygulamanın çalışma anındaki bağlamını (context) tutar.
// Standart Go "context" paketini sarmalar ve qvmstate'e özel alanlar ekler.
type SystemContext struct {
	context.Context

	// Hostname of the admin domain (dom0) the run targets.
	Hostname string
	// Release is the Qubes release string, e.g. "4.2" (empty if unknown).
	Release string
	// IsDom0 reports whether the target looks like a Qubes admin domain.
	IsDom0 bool

	// Vars are user supplied template variables (settings [vars] + env file).
	Vars map[string]string

	// Çalışma Modu
	DryRun bool // Eğer true ise, hiçbir değişiklik yapılmaz, sadece simüle edilir.

	// TxID is the transaction ID of the current run.
	TxID string

	// ToolBinDir overrides where the qvm-* tools are looked up.
	ToolBinDir string
	// ToolTimeout bounds a single tool invocation (0 = none).
	ToolTimeout time.Duration

	Logger    Logger
	Transport Transport
	FS        FileSystem

	Stdout io.Writer
	Stderr io.Writer
}

// NewSystemContext, temel bir context oluşturur.
func NewSystemContext(dryRun bool, transport Transport, logger Logger) *SystemContext {
	if logger == nil {
		logger = NewDefaultLogger(os.Stderr, LevelInfo)
	}
	var fs FileSystem = &RealFS{}
	if transport != nil {
		fs = transport.GetFileSystem()
	}
	return &SystemContext{
		Context:   context.Background(),
		DryRun:    dryRun,
		Vars:      make(map[string]string),
		Logger:    logger,
		Transport: transport,
		FS:        fs,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
	}
}

// WithDryRun returns a shallow copy of the context with DryRun forced on.
// Used by read-only checks that reuse Apply logic.
func (c *SystemContext) WithDryRun() *SystemContext {
	cp := *c
	cp.DryRun = true
	return &cp
}

// WithContext returns a shallow copy bound to the given context.Context.
func (c *SystemContext) WithContext(ctx context.Context) *SystemContext {
	cp := *c
	cp.Context = ctx
	return &cp
}

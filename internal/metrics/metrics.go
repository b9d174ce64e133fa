package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/melih-ucgun/qvmstate/internal/core"
)

const namespace = "qvmstate"

// Item outcome labels.
const (
	OutcomeChanged   = "changed"
	OutcomeUnchanged = "unchanged"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Collector implements core.Observer and keeps its own registry, so a run
// can be written to a node_exporter textfile.
type Collector struct {
	reg *prometheus.Registry

	items        *prometheus.CounterVec
	itemDuration *prometheus.HistogramVec
	runs         *prometheus.CounterVec
	runDuration  prometheus.Gauge
	lastRun      prometheus.Gauge
	lastFailed   prometheus.Gauge
}

func NewCollector() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		items: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "declarations_total",
				Help:      "Declarations processed, by function and outcome.",
			},
			[]string{"function", "outcome"},
		),
		itemDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "declaration_duration_seconds",
				Help:      "Time spent on a single declaration.",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"function"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Runs, by mode and result.",
			},
			[]string{"test", "result"},
		),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Duration of the last run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		lastFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_failed_declarations",
			Help:      "Failed declarations in the last run.",
		}),
	}
	c.reg.MustRegister(c.items, c.itemDuration, c.runs, c.runDuration, c.lastRun, c.lastFailed)
	return c
}

// Registry exposes the underlying registry (tests, custom exporters).
func (c *Collector) Registry() *prometheus.Registry {
	return c.reg
}

// Outcome classifies an item report.
func Outcome(it core.ItemReport) string {
	switch {
	case it.Skipped:
		return OutcomeSkipped
	case !it.Result:
		return OutcomeFailed
	case it.Changed:
		return OutcomeChanged
	}
	return OutcomeUnchanged
}

func (c *Collector) ObserveItem(it core.ItemReport) {
	c.items.WithLabelValues(it.Function, Outcome(it)).Inc()
	if !it.Skipped {
		c.itemDuration.WithLabelValues(it.Function).Observe(it.Duration / 1000)
	}
}

func (c *Collector) ObserveRun(r *core.Report) {
	failed := 0
	for _, it := range r.Items {
		if Outcome(it) == OutcomeFailed {
			failed++
		}
	}
	result := "success"
	if failed > 0 {
		result = "failed"
	}
	c.runs.WithLabelValues(strconv.FormatBool(r.DryRun), result).Inc()
	c.runDuration.Set(r.Duration / 1000)
	c.lastFailed.Set(float64(failed))
	c.lastRun.Set(float64(r.Started.Add(time.Duration(r.Duration * float64(time.Millisecond))).Unix()))
}

// WriteTextfile writes the registry in text exposition format. The write
// is atomic, as node_exporter may read the file at any time.
func (c *Collector) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("metrics dizini oluşturulamadı: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.reg); err != nil {
		return fmt.Errorf("metrics yazılamadı: %w", err)
	}
	return nil
}

// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

// Package metrics exposes per-epoch solver statistics as Prometheus metrics.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/mkhts/goraim"
)

// Collector bundles the solver metrics.
type Collector struct {
	gatherer prometheus.Gatherer

	Epochs   *prometheus.CounterVec // Epochs by outcome
	Excluded *prometheus.CounterVec // Excluded satellites by system
	RMS      prometheus.Histogram
	Iter     prometheus.Histogram
	Sats     prometheus.Gauge
	Gdop     prometheus.Gauge
}

// New registers the metrics against reg, or the default registry when nil.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	epochs, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "goraim_epochs_total",
		Help: "Processed epochs, labeled by outcome.",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}
	excluded, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "goraim_excluded_satellites_total",
		Help: "Satellites removed by fault exclusion, labeled by satellite system.",
	}, []string{"sys"}))
	if err != nil {
		return nil, err
	}
	rms, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "goraim_residual_rms_meters",
		Help:    "Post-fit RMS residual of the solutions.",
		Buckets: []float64{0.5, 1, 2, 4, 6.5, 10, 20, 50, 100, 1000},
	}))
	if err != nil {
		return nil, err
	}
	iter, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "goraim_iterations",
		Help:    "Iterations of the final least squares fit.",
		Buckets: prometheus.LinearBuckets(1, 1, 10),
	}))
	if err != nil {
		return nil, err
	}
	sats, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "goraim_satellites_used",
		Help: "Satellites used in the last solution.",
	}))
	if err != nil {
		return nil, err
	}
	gdop, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "goraim_gdop",
		Help: "GDOP of the last solution.",
	}))
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer: gatherer,
		Epochs:   epochs,
		Excluded: excluded,
		RMS:      rms,
		Iter:     iter,
		Sats:     sats,
		Gdop:     gdop,
	}, nil
}

// Outcome labels an epoch result.
func Outcome(res *goraim.EpochResult) string {
	switch {
	case res.Sol == nil && errors.Is(res.Err, goraim.ErrInsufficientSatellites):
		return "insufficient"
	case res.Sol == nil && errors.Is(res.Err, goraim.ErrDidNotConverge):
		return "diverged"
	case res.Sol == nil:
		return "error"
	default:
		return res.Sol.State.String()
	}
}

// Observe records one epoch result.
func (c *Collector) Observe(res *goraim.EpochResult) {
	if c == nil || res == nil {
		return
	}
	c.Epochs.WithLabelValues(Outcome(res)).Inc()
	sol := res.Sol
	if sol == nil {
		return
	}
	for _, sat := range sol.Excluded {
		c.Excluded.WithLabelValues(string(sat.Sys())).Inc()
	}
	c.RMS.Observe(sol.RMS)
	c.Iter.Observe(float64(sol.Iter))
	c.Sats.Set(float64(len(sol.Sats)))
	if g, ok := sol.Dop["gdop"]; ok {
		c.Gdop.Set(g)
	}
}

// Push sends the gathered metrics to a Pushgateway, grouped by run id.
func (c *Collector) Push(url, job, runID string) error {
	p := push.New(url, job).Gatherer(c.gatherer)
	if runID != "" {
		p = p.Grouping("run", runID)
	}
	if err := p.Push(); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			return c, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}
		return c, err
	}
	return c, nil
}

// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package goraim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/mkhts/goraim"

// Solution quality flags written to the pos file
const (
	QualityNone      = 0
	QualityConverged = 1
	QualityExcluded  = 2
	QualityInvalid   = 5
)

// EpochResult is the outcome of processing one observation epoch.
type EpochResult struct {
	Time   GTime
	Ranges []CorrectedRange
	Sol    *RaimSol   // nil when no position could be computed
	LLH    *PosLLH    // nil when Sol is nil or the position has no geodetic form
	Track  []SatState // Satellite samples when tracking is enabled
	Err    error      // Epoch-level failure. Processing continues
}

// Quality returns the pos file quality flag of the result.
func (r *EpochResult) Quality() int {
	switch {
	case r.Sol == nil:
		return QualityNone
	case !r.Sol.Valid:
		return QualityInvalid
	case r.Sol.State == StateExcluded:
		return QualityExcluded
	default:
		return QualityConverged
	}
}

// Processor drives epochs from an EpochSource through the assembler and the
// RAIM solver.
type Processor struct {
	Assembler *Assembler
	Solver    *RaimSolver
	Ellipsoid Ellipsoid
	Track     int     // Satellite samples per epoch. 0 disables tracking
	TrackStep float64 // Interval between samples [s]
	Tracer    trace.Tracer
	Logger    *slog.Logger

	sats SatelliteSource
	src  EpochSource
}

// NewProcessor builds a processor reading epochs from src and satellite
// states from sats. src may be nil when only ProcessEpoch is used.
func NewProcessor(src EpochSource, sats SatelliteSource, opt *RaimOpt) *Processor {
	p := &Processor{
		Assembler: NewAssembler(),
		Solver:    NewRaimSolver(sats, opt),
		Ellipsoid: WGS84,
		TrackStep: 1,
		sats:      sats,
		src:       src,
	}
	p.Logger = p.Solver.Opt().Logger
	p.Assembler.Logger = p.Logger
	return p
}

func (p *Processor) tracer() trace.Tracer {
	if p.Tracer != nil {
		return p.Tracer
	}
	return otel.Tracer(tracerName)
}

// ProcessEpoch assembles and solves one epoch. Failures are reported in the
// result and never stop the caller.
func (p *Processor) ProcessEpoch(ctx context.Context, obse *ObsE) *EpochResult {
	log := orDiscard(p.Logger)
	_, span := p.tracer().Start(ctx, "epoch",
		trace.WithAttributes(attribute.String("gpst", obse.Time.String())))
	defer span.End()

	res := &EpochResult{Time: obse.Time}
	res.Ranges = p.Assembler.Assemble(obse)
	span.SetAttributes(attribute.Int("ranges", len(res.Ranges)))

	sol, err := p.Solver.Solve(obse.Time, res.Ranges)
	res.Sol = sol
	res.Err = err
	if sol != nil {
		llh, err := p.Ellipsoid.ToGeodetic(sol.Pos)
		if err == nil {
			res.LLH = &llh
		} else if res.Err == nil {
			res.Err = err
		}
		span.SetAttributes(
			attribute.String("state", sol.State.String()),
			attribute.Int("sats", len(sol.Sats)),
			attribute.Int("excluded", len(sol.Excluded)),
			attribute.Float64("rms", sol.RMS),
		)
	}

	if p.Track > 0 {
		sats := make([]SatType, len(res.Ranges))
		for i, r := range res.Ranges {
			sats[i] = r.Sat
		}
		track, err := TrackSatStates(p.sats, sats, obse.Time, p.Track, p.TrackStep, p.Logger)
		if err != nil {
			log.Warn("satellite tracking failed", "err", err)
		}
		res.Track = track
	}

	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
		log.Info("epoch failed", "time", obse.Time, "err", res.Err)
	} else {
		log.Debug("epoch solved", "time", obse.Time, "state", sol.State, "rms", sol.RMS)
	}
	return res
}

// Next processes the next epoch of the source. It returns ErrEndOfData when
// the source is exhausted and any other source error as is.
func (p *Processor) Next(ctx context.Context) (*EpochResult, error) {
	if p.src == nil {
		return nil, ErrEndOfData
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	obse, err := p.src.NextEpoch()
	if err != nil {
		return nil, err
	}
	return p.ProcessEpoch(ctx, obse), nil
}

// Run calls fn for every epoch of the source until it is exhausted.
func (p *Processor) Run(ctx context.Context, fn func(*EpochResult) error) error {
	for {
		res, err := p.Next(ctx)
		if errors.Is(err, ErrEndOfData) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(res); err != nil {
			return err
		}
	}
}

// ProcessAll solves a list of epochs with up to workers goroutines. The list
// is split into contiguous chunks, each handled by its own processor so that
// a solution still seeds the next epoch of the chunk. Results keep the order
// of epochs.
func ProcessAll(ctx context.Context, epochs []*ObsE, newProcessor func() *Processor, workers int) ([]*EpochResult, error) {
	if workers <= 0 {
		workers = 1
	}
	if workers > len(epochs) {
		workers = len(epochs)
	}
	out := make([]*EpochResult, len(epochs))
	if len(epochs) == 0 {
		return out, nil
	}
	size := (len(epochs) + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < len(epochs); lo += size {
		lo := lo
		hi := min(lo+size, len(epochs))
		g.Go(func() error {
			p := newProcessor()
			for i := lo; i < hi; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				out[i] = p.ProcessEpoch(ctx, epochs[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("process epochs: %w", err)
	}
	return out, nil
}

// WindowSource passes through the epochs of Src that fall in [Start, End]
// and on multiples of Interval seconds. Zero values disable each check.
type WindowSource struct {
	Src      EpochSource
	Start    time.Time
	End      time.Time
	Interval int
}

func (w *WindowSource) NextEpoch() (*ObsE, error) {
	for {
		obse, err := w.Src.NextEpoch()
		if err != nil {
			return nil, err
		}
		if !w.Start.IsZero() && obse.Time.Before(w.Start, true) {
			continue
		}
		if !w.End.IsZero() && obse.Time.After(w.End, true) {
			return nil, ErrEndOfData
		}
		if w.Interval > 0 && !obse.Time.Divisible(w.Interval) {
			continue
		}
		return obse, nil
	}
}

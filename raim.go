// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

// Receiver Autonomous Integrity Monitoring (RAIM) point positioning.

package goraim

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrInsufficientSatellites = errors.New("insufficient satellites")
	ErrDidNotConverge         = errors.New("did not converge")
	ErrInvalidSolution        = errors.New("invalid solution")
)

// Calculation constants for RAIM processing
const (
	MAX_LOOP_COUNT           = 10    // Maximum number of iteration loops
	EARLY_LOOP_SKIP          = 3     // Loops without elevation mask when starting from the Earth centre
	CONVERGENCE_THRESHOLD    = 0.001 // Convergence threshold of the position update [m]
	MIN_WEIGHT               = 0.001 // Minimum weight value
	MIN_ELEVATION_FOR_WEIGHT = 5.0   // Minimum elevation angle for weight calculation [deg]
	MIN_SATS                 = 4     // Satellites needed for a solution
	MIN_SATS_FDE             = 5     // Satellites needed before one can be excluded
)

// RMS residual limits [m]. The permissive default leaves the integrity test
// effectively disabled; StrictRMSLimit is the conventional RAIM setting.
const (
	DefaultRMSLimit = 3.0e6
	StrictRMSLimit  = 6.5
)

// SolverState is the state of a RaimSolver.
type SolverState int

const (
	StateIdle SolverState = iota
	StateConverging
	StateConverged
	StateExcluded
	StateFailed
)

func (s SolverState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConverging:
		return "converging"
	case StateConverged:
		return "converged"
	case StateExcluded:
		return "excluded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FdeMode selects how a faulty satellite is picked for exclusion.
type FdeMode int

const (
	FdeLargestResidual FdeMode = iota // Drop the satellite with the largest residual
	FdeBestSubset                     // Try every one-out subset, keep the smallest RMS
)

func (m FdeMode) String() string {
	switch m {
	case FdeLargestResidual:
		return "largest"
	case FdeBestSubset:
		return "subset"
	default:
		return "unknown"
	}
}

func ParseFdeMode(s string) (FdeMode, error) {
	switch strings.ToLower(s) {
	case "", "largest", "residual":
		return FdeLargestResidual, nil
	case "subset", "best":
		return FdeBestSubset, nil
	default:
		return 0, fmt.Errorf("unknown exclusion mode %q", s)
	}
}

// RaimOpt contains options for the RAIM solver.
type RaimOpt struct {
	RMSLimit  float64      // Post-fit RMS residual acceptance limit [m]
	MaxIter   int          // Maximum number of Gauss-Newton iterations
	ConvThres float64      // Convergence threshold of the position update [m]
	Exclusion bool         // Attempt fault exclusion when the RMS test fails
	FdeMode   FdeMode      // Exclusion strategy
	WghMode   int          // Weighting scheme: 0(OFF), 1(RTKLIB), 2(RTK Core), 3(GPS Programming)
	ElMask    float64      // Elevation mask [deg]. 0 means no mask
	Trop      TropModel    // Tropospheric model. nil means NoTrop
	Bancroft  bool         // Seed the first epoch with the Bancroft solution instead of the Earth centre
	MaxGdop   float64      // Mark the solution invalid above this GDOP. 0 means no check
	ChiTest   bool         // Mark the solution invalid when the chi-square test fails
	Logger    *slog.Logger // Debug output. nil discards
}

// NewRaimOpt creates a new RaimOpt with default values
func NewRaimOpt() *RaimOpt {
	return &RaimOpt{
		RMSLimit:  DefaultRMSLimit,
		MaxIter:   MAX_LOOP_COUNT,
		ConvThres: CONVERGENCE_THRESHOLD,
		Exclusion: true,
		FdeMode:   FdeLargestResidual,
		WghMode:   0,
		ElMask:    0,
		Trop:      NoTrop{},
	}
}

// RaimSol is the receiver solution of one epoch.
type RaimSol struct {
	Time     GTime               // Reception time
	Pos      PosXYZ              // Receiver position (ECEF)
	ClkBias  float64             // Receiver clock bias [m]
	Valid    bool                // Passed the RMS test (after exclusion, if any)
	State    SolverState         // Final solver state
	Iter     int                 // Iterations of the final fit
	RMS      float64             // Post-fit RMS residual [m]
	Sats     []SatType           // Satellites used in the final fit
	Excluded []SatType           // Satellites removed by fault exclusion
	Dropped  []SatType           // Satellites without usable ephemeris
	Masked   []SatType           // Satellites below the elevation mask
	Res      map[SatType]float64 // Post-fit residuals
	SatPos   map[SatType]PosXYZ  // Satellite positions (rotated to reception time)
	Elev     map[SatType]float64 // Satellite elevation angles [rad]
	Dop      map[string]float64  // 'gdop', 'pdop', 'hdop', 'vdop'
	Cov      [4][4]float64       // Estimation error covariance ((G^T W G)^-1)
}

// ClkSec returns the receiver clock bias in seconds.
func (s *RaimSol) ClkSec() float64 {
	return s.ClkBias / C
}

// One satellite prepared for the fit
type raimObs struct {
	sat SatType
	pr  float64  // Corrected pseudorange [m]
	st  SatState // Satellite state at transmit time
}

// Result of one least squares fit
type lsFit struct {
	obs    []raimObs
	masked []SatType
	pos    PosXYZ
	clk    float64
	iter   int
	res    []float64
	w      []float64
	rs     []PosXYZ
	elev   []float64
	rms    float64
	cov    *mat.Dense
	dop    map[string]float64
}

// RaimSolver estimates the receiver position and clock bias epoch by epoch.
// A solver is not safe for concurrent use; give each goroutine its own.
type RaimSolver struct {
	src     SatelliteSource
	opt     *RaimOpt
	state   SolverState
	hasSeed bool
	seedPos PosXYZ
	seedClk float64
}

func NewRaimSolver(src SatelliteSource, opt *RaimOpt) *RaimSolver {
	if opt == nil {
		opt = NewRaimOpt()
	}
	if opt.Trop == nil {
		opt.Trop = NoTrop{}
	}
	if opt.MaxIter <= 0 {
		opt.MaxIter = MAX_LOOP_COUNT
	}
	if opt.ConvThres <= 0 {
		opt.ConvThres = CONVERGENCE_THRESHOLD
	}
	return &RaimSolver{src: src, opt: opt, state: StateIdle}
}

func (s *RaimSolver) State() SolverState {
	return s.state
}

func (s *RaimSolver) Opt() *RaimOpt {
	return s.opt
}

// SetSeed sets the linearisation point of the next solve.
func (s *RaimSolver) SetSeed(pos PosXYZ, clk float64) {
	s.seedPos = pos
	s.seedClk = clk
	s.hasSeed = true
}

// Reset forgets the prior solution and returns to the idle state.
func (s *RaimSolver) Reset() {
	s.hasSeed = false
	s.seedPos = PosXYZ{}
	s.seedClk = 0
	s.state = StateIdle
}

// Solve computes the receiver solution at reception time t.
//
// Parameters:
//   - t: Reception time of the epoch
//   - ranges: Corrected pseudoranges of the epoch
//
// Returns:
//   - *RaimSol: nil for ErrInsufficientSatellites and ErrDidNotConverge.
//     With ErrInvalidSolution the solution is returned with Valid=false.
//   - error: Epoch-level failure, matched with errors.Is
func (s *RaimSolver) Solve(t GTime, ranges []CorrectedRange) (*RaimSol, error) {
	log := orDiscard(s.opt.Logger)
	s.state = StateConverging

	// Satellite positions at transmit time
	obs := make([]raimObs, 0, len(ranges))
	var dropped []SatType
	for _, r := range ranges {
		st, err := TransmitState(s.src, r.Sat, t, r.Range)
		if err != nil {
			log.Debug("satellite dropped", "sat", r.Sat, "err", err)
			dropped = append(dropped, r.Sat)
			continue
		}
		if st.Ephe != nil && !st.Ephe.Healthy() {
			log.Debug("satellite not healthy", "sat", r.Sat, "svh", st.Ephe.Svh)
			dropped = append(dropped, r.Sat)
			continue
		}
		obs = append(obs, raimObs{sat: r.Sat, pr: r.Range, st: st})
	}
	log.Debug("satellites", "usable", len(obs), "given", len(ranges))

	if len(obs) < MIN_SATS {
		s.state = StateFailed
		return nil, fmt.Errorf("%w: %d < %d", ErrInsufficientSatellites, len(obs), MIN_SATS)
	}

	pos, clk := s.seed(obs)
	fit, err := s.estimate(t, obs, pos, clk)
	if err != nil {
		s.state = StateFailed
		return nil, err
	}

	// Fault detection and exclusion
	var excluded []SatType
	if fit.rms > s.opt.RMSLimit && s.opt.Exclusion {
		fit, excluded = s.exclude(t, fit)
	}

	sol := newRaimSol(t, fit, excluded, dropped)
	var reason error
	switch {
	case fit.rms > s.opt.RMSLimit:
		reason = fmt.Errorf("%w: rms=%.3f > %.3f", ErrInvalidSolution, fit.rms, s.opt.RMSLimit)
	case s.opt.ChiTest && !chiTest(fit):
		reason = fmt.Errorf("%w: chi-square test failed", ErrInvalidSolution)
	case s.opt.MaxGdop > 0 && fit.dop["gdop"] > s.opt.MaxGdop:
		reason = fmt.Errorf("%w: GDOP=%.3f > %.3f", ErrInvalidSolution, fit.dop["gdop"], s.opt.MaxGdop)
	}
	if reason != nil {
		s.state = StateFailed
		sol.State = s.state
		sol.Valid = false
		log.Debug("solution rejected", "err", reason)
		return sol, reason
	}

	if len(excluded) > 0 {
		s.state = StateExcluded
	} else {
		s.state = StateConverged
	}
	sol.State = s.state
	sol.Valid = true
	s.SetSeed(sol.Pos, sol.ClkBias)
	return sol, nil
}

// seed returns the initial receiver position and clock bias
func (s *RaimSolver) seed(obs []raimObs) (PosXYZ, float64) {
	if s.hasSeed {
		return s.seedPos, s.seedClk
	}
	if s.opt.Bancroft {
		sats := make([]PosXYZ, len(obs))
		pr := make([]float64, len(obs))
		for i, o := range obs {
			pr[i] = o.pr + o.st.ClkBias*C
			sats[i] = sagnac(o.st.Pos, o.pr/C)
		}
		pos, clk, err := Bancroft(sats, pr)
		if err == nil {
			return pos, clk
		}
		orDiscard(s.opt.Logger).Debug("bancroft seed failed", "err", err)
	}
	return PosXYZ{}, 0
}

// estimate solves the pseudorange equations by Gauss-Newton iteration.
// From the Earth centre the elevations are meaningless, so the mask is held
// off for the first EARLY_LOOP_SKIP loops. From any other start point it
// applies from the first loop.
func (s *RaimSolver) estimate(t GTime, obs []raimObs, pos PosXYZ, clk float64) (*lsFit, error) {
	log := orDiscard(s.opt.Logger)
	upos := pos
	useMask := pos.Norm() > Re/2
	for loop := 0; loop < s.opt.MaxIter; loop++ {
		fit := s.linearize(t, obs, upos, clk, useMask || loop >= EARLY_LOOP_SKIP)
		n := len(fit.obs)
		if n < MIN_SATS {
			return nil, fmt.Errorf("%w: %d above elevation mask", ErrInsufficientSatellites, n)
		}
		G := mat.NewDense(n, 4, nil)
		dr := mat.NewVecDense(n, fit.res)
		for i := range fit.obs {
			G.Set(i, 0, DistDx(&fit.rs[i], &upos))
			G.Set(i, 1, DistDy(&fit.rs[i], &upos))
			G.Set(i, 2, DistDz(&fit.rs[i], &upos))
			G.Set(i, 3, 1)
		}
		W := mat.NewDiagDense(n, fit.w)
		logMat(log, "G", G)
		logMat(log, "dr", dr)

		dx, _, err := SolveLS(G, dr, W)
		if err != nil {
			return nil, fmt.Errorf("least squares failed: %w", err)
		}
		upos.X += dx.AtVec(0)
		upos.Y += dx.AtVec(1)
		upos.Z += dx.AtVec(2)
		clk += dx.AtVec(3)
		dpos := math.Sqrt(SQ(dx.AtVec(0)) + SQ(dx.AtVec(1)) + SQ(dx.AtVec(2)))
		log.Debug("iteration", "loop", loop+1, "xyz", upos.String(), "clk", clk, "dpos", dpos)

		if dpos < s.opt.ConvThres {
			final := s.linearize(t, obs, upos, clk, true)
			if !sameSats(fit.obs, final.obs) {
				// The position was shaped by satellites the mask now drops
				log.Debug("satellite set changed by the elevation mask", "used", n, "above_mask", len(final.obs))
				useMask = true
				continue
			}
			return s.finish(final, upos, clk, loop+1)
		}
	}
	return nil, fmt.Errorf("%w: %d iterations", ErrDidNotConverge, s.opt.MaxIter)
}

func sameSats(a, b []raimObs) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].sat != b[i].sat {
			return false
		}
	}
	return true
}

// finish evaluates the post-fit residuals, covariance and DOP at the solution
func (s *RaimSolver) finish(fit *lsFit, upos PosXYZ, clk float64, iter int) (*lsFit, error) {
	n := len(fit.obs)
	if n < MIN_SATS {
		return nil, fmt.Errorf("%w: %d above elevation mask", ErrInsufficientSatellites, n)
	}
	fit.pos = upos
	fit.clk = clk
	fit.iter = iter

	// Design matrix in ENU for covariance and DOP
	G := mat.NewDense(n, 4, nil)
	ss := 0.0
	for i := range fit.obs {
		enu := fit.rs[i].ToENU(upos)
		ri := EucDist(&fit.rs[i], &upos)
		G.Set(i, 0, -enu.E/ri)
		G.Set(i, 1, -enu.N/ri)
		G.Set(i, 2, -enu.U/ri)
		G.Set(i, 3, 1)
		ss += SQ(fit.res[i])
	}
	fit.rms = math.Sqrt(ss / float64(n))

	_, cov, err := SolveLS(G, mat.NewVecDense(n, fit.res), mat.NewDiagDense(n, fit.w))
	if err != nil {
		return nil, fmt.Errorf("least squares failed: %w", err)
	}
	fit.cov = cov
	fit.dop, err = Dops(G)
	if err != nil {
		return nil, err
	}
	return fit, nil
}

// linearize computes the pre-fit residuals, weights, rotated satellite
// positions and elevations around (upos, clk)
func (s *RaimSolver) linearize(t GTime, obs []raimObs, upos PosXYZ, clk float64, useMask bool) *lsFit {
	fit := &lsFit{
		obs:  make([]raimObs, 0, len(obs)),
		res:  make([]float64, 0, len(obs)),
		w:    make([]float64, 0, len(obs)),
		rs:   make([]PosXYZ, 0, len(obs)),
		elev: make([]float64, 0, len(obs)),
	}
	for _, o := range obs {
		ri, rs := geoDist(o.st.Pos, upos)
		elv := upos.Elevation(rs)
		if useMask && s.opt.ElMask > 0 && ToDeg(elv) < s.opt.ElMask {
			fit.masked = append(fit.masked, o.sat)
			continue
		}
		trop := s.opt.Trop.Delay(upos, rs, t)
		fit.obs = append(fit.obs, o)
		fit.res = append(fit.res, o.pr+o.st.ClkBias*C-(ri+clk+trop))
		fit.w = append(fit.w, getWeight(s.opt.WghMode, o.sat, elv, o.st.Ephe))
		fit.rs = append(fit.rs, rs)
		fit.elev = append(fit.elev, elv)
	}
	return fit
}

// exclude removes satellites one at a time until the RMS test passes or fewer
// than MIN_SATS_FDE satellites are left. The last fit is returned either way.
func (s *RaimSolver) exclude(t GTime, fit *lsFit) (*lsFit, []SatType) {
	log := orDiscard(s.opt.Logger)
	excluded := []SatType{}
	cur := fit
	for cur.rms > s.opt.RMSLimit && len(cur.obs) >= MIN_SATS_FDE {
		var next *lsFit
		var xsat SatType
		switch s.opt.FdeMode {
		case FdeBestSubset:
			for i := range cur.obs {
				f, err := s.estimate(t, without(cur.obs, i), cur.pos, cur.clk)
				if err != nil {
					continue
				}
				if next == nil || f.rms < next.rms {
					next = f
					xsat = cur.obs[i].sat
				}
			}
		default:
			k := 0
			for i := range cur.res {
				if math.Abs(cur.res[i]) > math.Abs(cur.res[k]) {
					k = i
				}
			}
			xsat = cur.obs[k].sat
			f, err := s.estimate(t, without(cur.obs, k), cur.pos, cur.clk)
			if err == nil {
				next = f
			}
		}
		if next == nil {
			log.Debug("exclusion failed", "sats", len(cur.obs))
			break
		}
		log.Debug("satellite excluded", "sat", xsat, "rms_before", cur.rms, "rms_after", next.rms)
		excluded = append(excluded, xsat)
		cur = next
	}
	return cur, excluded
}

func without(obs []raimObs, k int) []raimObs {
	a := make([]raimObs, 0, len(obs)-1)
	a = append(a, obs[:k]...)
	return append(a, obs[k+1:]...)
}

// chiTest checks the weighted residuals against the chi-square table
func chiTest(fit *lsFit) bool {
	nM := len(fit.obs)
	if nM <= MIN_SATS {
		return true
	}
	vv := 0.0
	for i := range fit.res {
		vv += fit.w[i] * SQ(fit.res[i])
	}
	return vv <= ChiSqr(nM-MIN_SATS-1)
}

func newRaimSol(t GTime, fit *lsFit, excluded, dropped []SatType) *RaimSol {
	sol := &RaimSol{
		Time:     t,
		Pos:      fit.pos,
		ClkBias:  fit.clk,
		Iter:     fit.iter,
		RMS:      fit.rms,
		Sats:     make([]SatType, 0, len(fit.obs)),
		Excluded: excluded,
		Dropped:  dropped,
		Masked:   fit.masked,
		Res:      make(map[SatType]float64, len(fit.obs)),
		SatPos:   make(map[SatType]PosXYZ, len(fit.obs)),
		Elev:     make(map[SatType]float64, len(fit.obs)),
		Dop:      fit.dop,
	}
	for i, o := range fit.obs {
		sol.Sats = append(sol.Sats, o.sat)
		sol.Res[o.sat] = fit.res[i]
		sol.SatPos[o.sat] = fit.rs[i]
		sol.Elev[o.sat] = fit.elev[i]
	}
	for j := 0; j < 4; j++ {
		for k := 0; k < 4; k++ {
			sol.Cov[j][k] = fit.cov.At(j, k)
		}
	}
	return sol
}

// getWeight calculates observation weight based on elevation angle and system type
func getWeight(mode int, sat SatType, elv float64, eph *Ephe) (wg float64) {
	if elv <= 0 {
		return 1.0
	}
	switch mode {
	case 1: // RTKLIB weighting
		fact := 1.0
		freq := L1
		sva := -1
		switch sat.Sys() {
		case 'R':
			fact = 1.5
			freq = G1
			if eph != nil {
				freq += G1d * float64(eph.FreqN)
			}
		case 'E':
			freq = E1
		case 'C':
			freq = B1
		}
		if eph != nil {
			sva = eph.Sva
		}
		el := math.Max(elv, ToRad(MIN_ELEVATION_FOR_WEIGHT))
		varr := SQ(100) * (SQ(0.003) + SQ(0.003)/math.Sin(el))
		wg = SQ(fact) * varr
		if sva >= 0 {
			wg += uraEphe(sat, sva) // SISA
		}
		wg += SQ(0.3)               // code bias error std
		wg += SQ(5.0) * SQ(L1/freq) // ionospheric delay (L1) variance
		wg += SQ(3.0)               // tropospheric delay variance
		wg = 1.0 / wg
	case 2: // RTK Core weighting
		wg = ToDeg(elv) / 90.0
	case 3: // GPS Programming book weighting
		const VER_ZNH = 0.8 * 0.8
		wg = math.Sin(elv) * math.Sin(elv) / VER_ZNH
	default: // No weighting (equal weights)
		return 1.0
	}
	if wg < MIN_WEIGHT {
		wg = MIN_WEIGHT
	}
	return
}

// uraEphe calculates User Range Accuracy (URA) variance for ephemeris
func uraEphe(sat SatType, ura int) float64 {
	uraVal := [...]float64{2.4, 3.4, 4.85, 6.85, 9.65, 13.65, 24.0, 48.0, 96.0, 192.0, 384.0, 768.0, 1536.0, 3072.0, 6144.0}
	switch sat.Sys() {
	case 'E': // Galileo SIS ICD v2.1
		if ura <= 49 {
			return SQ(float64(ura) * 0.01)
		} else if ura <= 74 {
			return SQ(0.5 + (float64(ura)-50)*0.02)
		} else if ura <= 99 {
			return SQ(1.0 + (float64(ura)-75)*0.04)
		} else if ura <= 125 {
			return SQ(2.0 + (float64(ura)-100)*0.16)
		}
		return SQ(500.0)
	case 'R':
		return SQ(5.0)
	default:
		if ura < 0 || ura > 14 {
			return SQ(6144.0)
		}
		return SQ(uraVal[ura])
	}
}

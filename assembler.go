// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package goraim

import (
	"log/slog"

	"golang.org/x/exp/slices"
)

// CorrectedRange is the ionosphere-corrected pseudorange of one satellite.
type CorrectedRange struct {
	Sat      SatType
	Range    float64 // Corrected pseudorange [m]
	Iono     float64 // Correction subtracted from the primary pseudorange [m]
	DualFreq bool    // False when only the primary frequency was available
}

// IonoCorrection returns the first-order ionospheric correction
// 1/(1-γ)·(p1-p2) with γ=(f1/f2)².
func IonoCorrection(p1, p2, f1, f2 float64) float64 {
	g := SQ(f1 / f2)
	return (p1 - p2) / (1 - g)
}

// Assembler turns an observation epoch into corrected pseudoranges.
type Assembler struct {
	Sys             []SysType // Systems to use. Empty means all
	ExSats          []SatType // Satellites to skip
	RequireDualFreq bool      // Skip satellites that lack the secondary pseudorange
	Logger          *slog.Logger
}

func NewAssembler() *Assembler {
	return &Assembler{
		Sys:    []SysType{'G'},
		ExSats: []SatType{},
	}
}

// Assemble returns one CorrectedRange per usable satellite, in the order in
// which the satellites appear in the epoch. Satellites without a primary
// pseudorange are skipped.
func (a *Assembler) Assemble(obse *ObsE) []CorrectedRange {
	log := orDiscard(a.Logger)
	out := make([]CorrectedRange, 0, len(obse.Sats))
	for _, sat := range obse.Sats {
		obss, ok := obse.DatS[sat]
		if !ok || obss == nil {
			continue
		}
		if len(a.Sys) > 0 && !slices.Contains(a.Sys, sat.Sys()) {
			continue
		}
		if slices.Contains(a.ExSats, sat) {
			log.Debug("exclude satellite", "sat", sat)
			continue
		}
		p1 := obss.Pr[0]
		if p1 == 0 {
			log.Debug("no primary pseudorange", "sat", sat)
			continue
		}
		p2 := obss.Pr[1]
		if p2 == 0 {
			if a.RequireDualFreq {
				log.Debug("no secondary pseudorange", "sat", sat)
				continue
			}
			out = append(out, CorrectedRange{Sat: sat, Range: p1})
			continue
		}
		f1, f2 := obss.Freq[0], obss.Freq[1]
		if f1 == 0 || f2 == 0 {
			f := DualFreqs[sat.Sys()]
			f1, f2 = f[0], f[1]
		}
		if f1 == 0 || f2 == 0 || f1 == f2 {
			out = append(out, CorrectedRange{Sat: sat, Range: p1})
			continue
		}
		corr := IonoCorrection(p1, p2, f1, f2)
		out = append(out, CorrectedRange{Sat: sat, Range: p1 - corr, Iono: corr, DualFreq: true})
	}
	return out
}

// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package goraim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIonoCorrection(t *testing.T) {
	assert.Equal(t, 0.0, IonoCorrection(10, 10, L1, L2))

	g := SQ(L1 / L2)
	assert.InDelta(t, 3.0, IonoCorrection(3, 3*g, L1, L2), 1e-12)
	assert.InDelta(t, 7.5, IonoCorrection(20e6+7.5, 20e6+7.5*g, L1, L2), 1e-6)
}

func TestAssemble(t *testing.T) {
	g := SQ(L1 / L2)
	obse := NewObsE(testTime)
	obse.Set("G07", NewObsS('G', 20e6+4, 20e6+4*g))
	obse.Set("G03", NewObsS('G', 0, 21e6))
	obse.Set("G12", NewObsS('G', 22e6))
	obse.Set("E05", NewObsS('E', 23e6))
	obse.Set("G01", NewObsS('G', 24e6, 24e6))

	a := NewAssembler()
	got := a.Assemble(obse)
	assert.Len(t, got, 3)

	assert.Equal(t, SatType("G07"), got[0].Sat)
	assert.InDelta(t, 20e6, got[0].Range, 1e-6)
	assert.InDelta(t, 4, got[0].Iono, 1e-6)
	assert.True(t, got[0].DualFreq)

	// Secondary pseudorange missing: primary used uncorrected
	assert.Equal(t, CorrectedRange{Sat: "G12", Range: 22e6}, got[1])

	assert.Equal(t, CorrectedRange{Sat: "G01", Range: 24e6, DualFreq: true}, got[2])
}

func TestAssembleOptions(t *testing.T) {
	obse := NewObsE(testTime)
	obse.Set("G07", NewObsS('G', 20e6, 20e6))
	obse.Set("E05", NewObsS('E', 23e6))
	obse.Set("G12", NewObsS('G', 22e6))
	obse.Set("R10", NewObsS('R', 19e6, 19e6))

	a := NewAssembler()
	a.Sys = nil
	a.ExSats = []SatType{"G07"}
	got := a.Assemble(obse)
	var sats []SatType
	for _, r := range got {
		sats = append(sats, r.Sat)
	}
	assert.Equal(t, []SatType{"E05", "G12", "R10"}, sats)

	a.RequireDualFreq = true
	got = a.Assemble(obse)
	assert.Len(t, got, 1)
	assert.Equal(t, SatType("R10"), got[0].Sat)
}

func TestAssembleFrequencyFallback(t *testing.T) {
	obss := &ObsS{}
	obss.Pr[0], obss.Pr[1] = 20e6+2, 20e6+2*SQ(E1/E5b)
	obse := NewObsE(testTime)
	obse.Set("E02", obss)

	a := NewAssembler()
	a.Sys = []SysType{'E'}
	got := a.Assemble(obse)
	assert.Len(t, got, 1)
	assert.InDelta(t, 20e6, got[0].Range, 1e-6)
}

func TestAssembleKeepsFirstSeenOrder(t *testing.T) {
	obse := NewObsE(testTime)
	for _, prn := range []int{9, 2, 30, 14} {
		obse.Set(NewSatType('G', prn), NewObsS('G', 2e7))
	}
	// Replacing an observation keeps the position
	obse.Set("G02", NewObsS('G', 2.1e7))

	got := NewAssembler().Assemble(obse)
	var sats []SatType
	for _, r := range got {
		sats = append(sats, r.Sat)
	}
	assert.Equal(t, []SatType{"G09", "G02", "G30", "G14"}, sats)
	assert.Equal(t, 2.1e7, got[1].Range)
}

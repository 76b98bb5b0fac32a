// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package goraim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoTrop(t *testing.T) {
	up := PosENU{U: 2e7}
	assert.Equal(t, 0.0, NoTrop{}.Delay(testRcv, up.ToXYZ(testRcv), testTime))
}

func TestSaastamoinen(t *testing.T) {
	m := Saastamoinen{}
	up := PosENU{U: 2e7}
	zenith := m.Delay(testRcv, up.ToXYZ(testRcv), testTime)
	assert.InDelta(t, 2.3, zenith, 0.1)

	low := PosENU{N: 2e7, U: 2e7 * 0.1763} // about 10 deg
	slant := m.Delay(testRcv, low.ToXYZ(testRcv), testTime)
	assert.Greater(t, slant, 4*zenith)
	assert.Less(t, slant, 7*zenith)

	below := PosENU{N: 2e7, U: -1e6}
	assert.Equal(t, 0.0, m.Delay(testRcv, below.ToXYZ(testRcv), testTime))

	assert.Equal(t, 0.0, m.Delay(PosXYZ{}, up.ToXYZ(testRcv), testTime))

	wet := Saastamoinen{Humidity: 0.7}.Delay(testRcv, up.ToXYZ(testRcv), testTime)
	assert.Greater(t, wet, zenith)
}

func TestNewTropModel(t *testing.T) {
	for name, want := range map[string]TropModel{
		"":             NoTrop{},
		"none":         NoTrop{},
		"Saastamoinen": Saastamoinen{},
		"saas":         Saastamoinen{},
	} {
		m, err := NewTropModel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, m, name)
	}
	_, err := NewTropModel("hopfield")
	assert.Error(t, err)
}

func TestSolveWithTroposphere(t *testing.T) {
	src, sats := skySource(testRcv, dirs5())
	trop := Saastamoinen{}
	ranges := exactRanges(src, sats, testRcv, testClk, nil)
	for i, sat := range sats {
		_, rs := geoDist(src[sat].Pos, testRcv)
		ranges[i].Range += trop.Delay(testRcv, rs, testTime)
	}

	opt := NewRaimOpt()
	opt.Trop = trop
	opt.RMSLimit = StrictRMSLimit
	sol, err := NewRaimSolver(src, opt).Solve(testTime, ranges)
	require.NoError(t, err)
	assertPos(t, testRcv, sol.Pos, 1e-2)
	assert.Less(t, sol.RMS, 1e-3)

	// Ignoring the delay moves the position and clock
	sol, err = NewRaimSolver(src, nil).Solve(testTime, ranges)
	require.NoError(t, err)
	assert.Greater(t, EucDist(&sol.Pos, &testRcv)+math.Abs(sol.ClkBias-testClk), 1.0)
}

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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestGTime(t *testing.T) {
	dt := time.Date(2024, 3, 2, 23, 59, 59, 500000000, time.UTC)
	gt := NewGTime(dt)
	assert.Equal(t, 2303, gt.Week)
	assert.Equal(t, 6*86400+86399.5, gt.Sec)
	assert.True(t, gt.ToTime().Equal(dt))

	next := gt.Add(1)
	assert.Equal(t, 2304, next.Week)
	assert.InDelta(t, 0.5, next.Sec, 1e-9)
	assert.InDelta(t, 1.0, next.Sub(*gt), 1e-9)

	prev := next.Add(-1)
	assert.Equal(t, gt.Week, prev.Week)
	assert.InDelta(t, gt.Sec, prev.Sec, 1e-9)

	assert.True(t, gt.Less(next, false))
	assert.False(t, next.Less(*gt, false))
	assert.True(t, gt.Before(dt.Add(time.Second), true))
	assert.True(t, next.After(dt, false))
	assert.True(t, NewGTime(time.Date(2024, 3, 1, 0, 0, 30, 0, time.UTC)).Divisible(30))
	assert.Equal(t, "2024/03/02 23:59:59.500 (week2303 604799.500s)", gt.String())
}

func TestSolveLS(t *testing.T) {
	G := mat.NewDense(3, 2, []float64{1, 0, 0, 1, 1, 1})
	dr := mat.NewVecDense(3, []float64{1, 2, 3})
	W := mat.NewDiagDense(3, []float64{1, 1, 1})
	dx, cov, err := SolveLS(G, dr, W)
	require.NoError(t, err)
	assert.InDelta(t, 1, dx.AtVec(0), 1e-12)
	assert.InDelta(t, 2, dx.AtVec(1), 1e-12)
	assert.InDelta(t, 2.0/3, cov.At(0, 0), 1e-12)

	_, _, err = SolveLS(G, mat.NewVecDense(2, nil), W)
	assert.Error(t, err)
	_, _, err = SolveLS(mat.NewDense(1, 2, []float64{1, 1}), mat.NewVecDense(1, nil), mat.NewDiagDense(1, []float64{1}))
	assert.Error(t, err)
}

func TestDops(t *testing.T) {
	s := math.Sqrt(0.5)
	G := mat.NewDense(5, 4, []float64{
		0, 0, 1, 1,
		s, 0, s, 1,
		-s, 0, s, 1,
		0, s, s, 1,
		0, -s, s, 1,
	})
	d, err := Dops(G)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt2, d["hdop"], 1e-12)
	assert.Greater(t, d["gdop"], d["pdop"])
	assert.Greater(t, d["pdop"], d["vdop"])
	assert.InDelta(t, d["pdop"]*d["pdop"], d["hdop"]*d["hdop"]+d["vdop"]*d["vdop"], 1e-12)

	_, err = Dops(mat.NewDense(4, 4, nil))
	assert.Error(t, err)
}

func TestVars(t *testing.T) {
	var sys SysVar
	require.NoError(t, sys.Set("G, E,C"))
	assert.Equal(t, SysVar{'G', 'E', 'C'}, sys)
	assert.True(t, sys.Contains('E'))
	assert.False(t, sys.Contains('R'))
	assert.Equal(t, "G,E,C", sys.String())
	assert.Error(t, sys.Set("G,X"))

	var sats SatVar
	require.NoError(t, sats.Set("G01,,E11"))
	assert.Equal(t, SatVar{"G01", "E11"}, sats)

	var ts TimeStr
	require.NoError(t, ts.Set("2024/03/01 12:00:00"))
	assert.Equal(t, "2024/03/01 12:00:00", ts.String())
	assert.Error(t, ts.Set("2024-03-01"))
	assert.Equal(t, "", NewTimeStr(time.Time{}).String())
}

func TestSortedAndChiSqr(t *testing.T) {
	assert.Equal(t, []SatType{"G02", "G10", "E01", "R05", "C03"},
		Sorted([]SatType{"C03", "E01", "G10", "R05", "G02"}))
	assert.Equal(t, 10.8, ChiSqr(0))
	assert.Equal(t, 0.0, ChiSqr(-1))
	assert.Equal(t, 0.0, ChiSqr(1000))
}

func TestSatType(t *testing.T) {
	sat := NewSatType('E', 7)
	assert.Equal(t, SatType("E07"), sat)
	assert.Equal(t, SysType('E'), sat.Sys())
	assert.Equal(t, 7, sat.Num())
	assert.False(t, SysType('X').IsValid())
}

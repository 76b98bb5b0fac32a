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

func TestSatPosCircularOrbit(t *testing.T) {
	e := circular("G05", testTime)
	a := e.SqrtA * e.SqrtA
	prev := SatPos(e, testTime)
	for _, dt := range []float64{0, 300, 3600, 7200} {
		pos := SatPos(e, testTime.Add(dt))
		assert.InDelta(t, a, pos.Norm(), 1e-6)
		if dt > 0 {
			assert.Greater(t, EucDist(&pos, &prev), 0.0)
		}
	}

	// Orbital speed in the inertial frame is about 3.9 km/s; the Earth-fixed
	// frame adds the rotation of the frame
	p0 := SatPos(e, testTime)
	p1 := SatPos(e, testTime.Add(1))
	v := EucDist(&p0, &p1)
	assert.InDelta(t, math.Sqrt(MUGPS/a), v, 2000)
}

func TestSatClk(t *testing.T) {
	e := circular("G05", testTime)
	e.Af1 = 1e-12
	e.Tgd = 5e-9
	assert.InDelta(t, 1e-4+100*1e-12-5e-9, SatClk(e, testTime.Add(100)), 1e-18)

	gal := circular("E05", testTime)
	gal.Tgd = 1e-8
	gal.Tgd2 = 2e-8
	assert.InDelta(t, 1e-4-2e-8, SatClk(gal, testTime), 1e-18)

	// Relativistic term with an eccentric orbit
	ecc := circular("G05", testTime)
	ecc.Ecc = 0.01
	ecc.M0 = math.Pi / 2
	assert.Less(t, SatClk(ecc, testTime), 1e-4)
}

func TestGlonassOrbit(t *testing.T) {
	e := &Ephe{
		Sat:  "R03",
		Toe:  testTime,
		PosX: 1.0e7, PosY: 1.5e7, PosZ: 1.8e7,
		VecX: -1000, VecY: 2000, VecZ: 1500,
		TauN: -1e-5, GammaN: 1e-12,
	}
	p0 := SatPos(e, testTime)
	assert.Equal(t, PosXYZ{X: 1.0e7, Y: 1.5e7, Z: 1.8e7}, p0)

	p1 := SatPos(e, testTime.Add(30))
	speed := math.Sqrt(1000*1000 + 2000*2000 + 1500*1500)
	assert.InDelta(t, speed*30, EucDist(&p0, &p1), 500)

	// Backward propagation returns to the start
	back := *e
	back.Toe = testTime.Add(300)
	pb := SatPos(e, back.Toe)
	back.PosX, back.PosY, back.PosZ = pb.X, pb.Y, pb.Z
	vel := func(t GTime) PosXYZ {
		a, b := SatPos(e, t.Add(-0.5)), SatPos(e, t.Add(0.5))
		return b.Sub(a)
	}
	v := vel(back.Toe)
	back.VecX, back.VecY, back.VecZ = v.X, v.Y, v.Z
	p := SatPos(&back, testTime)
	assert.InDelta(t, 0, EucDist(&p, &p0), 10)

	assert.InDelta(t, 1e-5+30*1e-12, SatClk(e, testTime.Add(30)), 1e-18)
}

func TestNewSatState(t *testing.T) {
	st, err := NewSatState(circular("G05", testTime), testTime)
	require.NoError(t, err)
	assert.Equal(t, SatType("G05"), st.Sat)
	assert.Equal(t, testTime, st.Time)
	assert.NotNil(t, st.Ephe)

	bad := circular("G05", testTime)
	bad.SqrtA = 0
	_, err = NewSatState(bad, testTime)
	assert.Error(t, err)

	_, err = NewSatState(&Ephe{Sat: "S20"}, testTime)
	assert.Error(t, err)
}

func TestGeoDist(t *testing.T) {
	sat := PosXYZ{X: 2.6e7}
	rcv := PosXYZ{X: Re}
	r, rs := geoDist(sat, rcv)
	assert.InDelta(t, 2.6e7-Re, r, 1)
	assert.Less(t, rs.Y, 0.0)
	assert.InDelta(t, sat.Norm(), rs.Norm(), 1e-6)

	// Sagnac rotation vanishes for a polar line of sight
	r, _ = geoDist(PosXYZ{Z: 2.6e7}, PosXYZ{Z: Re})
	assert.InDelta(t, 2.6e7-Re, r, 1e-6)
}

// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package goraim

import (
	"fmt"
	"math"
)

// SatState is the position and clock bias of a satellite at a given time.
type SatState struct {
	Sat     SatType
	Time    GTime   // Time the state refers to (GPS time)
	Pos     PosXYZ  // ECEF position at Time [m]
	ClkBias float64 // Satellite clock bias [s]
	Ephe    *Ephe   // Record used, nil for synthetic sources
}

// SatelliteSource answers "where is this satellite and what is its clock
// bias at time t".
type SatelliteSource interface {
	SatState(sat SatType, t GTime) (SatState, error)
}

// NewSatState evaluates a broadcast record at time t.
func NewSatState(e *Ephe, t GTime) (SatState, error) {
	switch e.Sat.Sys() {
	case 'G', 'J', 'E', 'C':
		if e.SqrtA <= 0 {
			return SatState{}, fmt.Errorf("invalid ephemeris for %s: sqrtA=%g", e.Sat, e.SqrtA)
		}
	case 'R':
	default:
		return SatState{}, fmt.Errorf("unsupported satellite system %c (%s)", e.Sat.Sys(), e.Sat)
	}
	return SatState{
		Sat:     e.Sat,
		Time:    t,
		Pos:     SatPos(e, t),
		ClkBias: SatClk(e, t),
		Ephe:    e,
	}, nil
}

// Gravitational constant and Earth rotation rate used by each system
func orbitConsts(sys SysType) (mu, omge float64) {
	switch sys {
	case 'E':
		return MUGAL, OMGE
	case 'C':
		return MUGAL, 7.292115e-5
	default:
		return MUGPS, OMGE
	}
}

// Solve Kepler's equation for the eccentric anomaly
func eccAnomaly(e *Ephe, tk float64) float64 {
	mu, _ := orbitConsts(e.Sat.Sys())
	n := math.Sqrt(mu)/e.SqrtA/e.SqrtA/e.SqrtA + e.DeltaN
	mk := e.M0 + n*tk
	ek := mk
	for i := 0; i < 30; i++ {
		ek2 := mk + e.Ecc*math.Sin(ek)
		if math.Abs(ek2-ek) < 1e-14 {
			ek = ek2
			break
		}
		ek = ek2
	}
	return ek
}

// SatPos calculates the satellite position at transmit time t, expressed in
// the Earth-fixed frame of that same instant (no Earth rotation during the
// signal flight).
func SatPos(e *Ephe, t GTime) (xyz PosXYZ) {
	_, dOMGe := orbitConsts(e.Sat.Sys())
	switch e.Sat.Sys() {
	case 'G', 'J', 'E', 'C':
		tk := t.Sub(e.Toe)
		ek := eccAnomaly(e, tk)
		rk := e.SqrtA * e.SqrtA * (1 - e.Ecc*math.Cos(ek))
		vk := math.Atan2(math.Sqrt(1-e.Ecc*e.Ecc)*math.Sin(ek), math.Cos(ek)-e.Ecc)
		pk := vk + e.Omega
		d_uk := e.Cus*math.Sin(2*pk) + e.Cuc*math.Cos(2*pk)
		d_rk := e.Crs*math.Sin(2*pk) + e.Crc*math.Cos(2*pk)
		d_ik := e.Cis*math.Sin(2*pk) + e.Cic*math.Cos(2*pk)
		uk := pk + d_uk
		rk = rk + d_rk
		ik := e.I0 + d_ik + e.Idot*tk
		xk := rk * math.Cos(uk)
		yk := rk * math.Sin(uk)
		toes := e.Toe.Sec
		if e.Sat.Sys() == 'C' {
			toes -= 14 // Toe is stored in GPS time, the element refers to BDT
		}
		if e.Sat.Sys() == 'C' && (e.Sat.Num() <= 5 || e.Sat.Num() >= 59) { // Beidou geostationary
			omk := e.Omega0 + e.OmegaD*tk - dOMGe*toes
			xg := xk*math.Cos(omk) - yk*math.Sin(omk)*math.Cos(ik)
			yg := xk*math.Sin(omk) + yk*math.Cos(omk)*math.Cos(ik)
			zg := yk * math.Sin(ik)
			sino := math.Sin(dOMGe * tk)
			coso := math.Cos(dOMGe * tk)
			cos5 := math.Cos(-5 * math.Pi / 180.0)
			sin5 := math.Sin(-5 * math.Pi / 180.0)
			xyz.X = xg*coso + yg*sino*cos5 + zg*sino*sin5
			xyz.Y = -xg*sino + yg*coso*cos5 + zg*coso*sin5
			xyz.Z = -yg*sin5 + zg*cos5
			return
		}
		omk := e.Omega0 + (e.OmegaD-dOMGe)*tk - dOMGe*toes
		xyz.X = xk*math.Cos(omk) - yk*math.Sin(omk)*math.Cos(ik)
		xyz.Y = xk*math.Sin(omk) + yk*math.Cos(omk)*math.Cos(ik)
		xyz.Z = yk * math.Sin(ik)
	case 'R':
		tk := t.Sub(e.Toe)
		var x [6]float64
		x[0], x[1], x[2] = e.PosX, e.PosY, e.PosZ
		x[3], x[4], x[5] = e.VecX, e.VecY, e.VecZ
		var acc [3]float64
		acc[0], acc[1], acc[2] = e.AccX, e.AccY, e.AccZ
		const TSTEP = 60.0
		tt := TSTEP
		if tk < 0 {
			tt = -TSTEP
		}
		for math.Abs(tk) > 1e-9 {
			if math.Abs(tk) < TSTEP {
				tt = tk
			}
			glorbit(tt, &x, acc)
			tk -= tt
		}
		xyz.X, xyz.Y, xyz.Z = x[0], x[1], x[2]
	}
	return
}

// SatClk calculates the satellite clock bias [s] at transmit time t
// (polynomial, relativistic correction and group delay).
func SatClk(e *Ephe, t GTime) (dts float64) {
	mu, _ := orbitConsts(e.Sat.Sys())
	switch e.Sat.Sys() {
	case 'G', 'J', 'E', 'C':
		// Relativistic correction
		ek := eccAnomaly(e, t.Sub(e.Toe))
		tr := -2 * math.Sqrt(mu) / C / C * e.Ecc * e.SqrtA * math.Sin(ek)
		// Clock correction coefficients
		tk := t.Sub(e.Toc)
		dt := e.Af0 + e.Af1*tk + e.Af2*tk*tk
		// Group delay
		tg := e.Tgd
		if e.Sat.Sys() == 'E' {
			tg = e.Tgd2 // E1/E5b
		}
		dts = tr + dt - tg
	case 'R':
		tk := t.Sub(e.Toe) // GLONASS uses Toe
		dts = -e.TauN + e.GammaN*tk
	}
	return
}

// Function used when calculating GLONASS satellite position (1)
func deq(x [6]float64, xdot *[6]float64, acc [3]float64) {
	const dOMGeR = 7.292115e-5 // Earth rotation angular velocity [rad/s] for GLONASS
	const OMG2 = dOMGeR * dOMGeR
	const J2_GLO = 1.0826257e-3
	const MU_GLO = 3.9860044e14
	const RE_GLO = 6378136.0

	r2 := x[0]*x[0] + x[1]*x[1] + x[2]*x[2]
	r3 := r2 * math.Sqrt(r2)
	if r2 <= 0 {
		xdot[0], xdot[1], xdot[2], xdot[3], xdot[4], xdot[5] = 0, 0, 0, 0, 0, 0
		return
	}
	a := 1.5 * J2_GLO * MU_GLO * (RE_GLO * RE_GLO) / r2 / r3
	b := 5.0 * x[2] * x[2] / r2
	c := -MU_GLO/r3 - a*(1.0-b)
	xdot[0] = x[3]
	xdot[1] = x[4]
	xdot[2] = x[5]
	xdot[3] = (c+OMG2)*x[0] + 2.0*dOMGeR*x[4] + acc[0]
	xdot[4] = (c+OMG2)*x[1] - 2.0*dOMGeR*x[3] + acc[1]
	xdot[5] = (c-2.0*a)*x[2] + acc[2]
}

// Function used when calculating GLONASS satellite position (2)
func glorbit(t float64, x *[6]float64, acc [3]float64) {
	var k1, k2, k3, k4, w [6]float64
	deq(*x, &k1, acc)
	for i := 0; i < 6; i++ {
		w[i] = x[i] + k1[i]*t/2.0
	}
	deq(w, &k2, acc)
	for i := 0; i < 6; i++ {
		w[i] = x[i] + k2[i]*t/2.0
	}
	deq(w, &k3, acc)
	for i := 0; i < 6; i++ {
		w[i] = x[i] + k3[i]*t
	}
	deq(w, &k4, acc)
	for i := 0; i < 6; i++ {
		x[i] += (k1[i] + 2.0*k2[i] + 2.0*k3[i] + k4[i]) * t / 6.0
	}
}

// sagnac rotates a satellite position by the Earth rotation during the
// signal flight time tau [s].
func sagnac(pos PosXYZ, tau float64) PosXYZ {
	a := OMGE * tau
	sina, cosa := math.Sin(a), math.Cos(a)
	return PosXYZ{
		X: cosa*pos.X + sina*pos.Y,
		Y: -sina*pos.X + cosa*pos.Y,
		Z: pos.Z,
	}
}

// geoDist returns the geometric range from rcv to sat including the Earth
// rotation correction, and the rotated satellite position.
func geoDist(sat, rcv PosXYZ) (float64, PosXYZ) {
	tau := EucDist(&sat, &rcv) / C
	for i := 0; i < 3; i++ {
		rs := sagnac(sat, tau)
		tau = EucDist(&rs, &rcv) / C
	}
	rs := sagnac(sat, tau)
	return EucDist(&rs, &rcv), rs
}

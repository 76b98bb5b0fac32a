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
	"time"
)

// Static satellite states for tests
type staticSource map[SatType]SatState

func (s staticSource) SatState(sat SatType, t GTime) (SatState, error) {
	st, ok := s[sat]
	if !ok {
		return SatState{}, fmt.Errorf("%w: %s", ErrEphemerisNotFound, sat)
	}
	st.Time = t
	return st, nil
}

const (
	testRange = 2.0e7  // Receiver to satellite distance [m]
	testClk   = 1234.5 // Receiver clock bias [m]
)

var (
	testTime = *NewGTime(time.Date(2024, 3, 1, 0, 0, 30, 0, time.UTC))
	testRcv  = WGS84.ToECEF(PosLLH{Lat: ToRad(35.7), Lon: ToRad(139.7), Hei: 50})
)

// Satellite directions (azimuth, elevation) [deg] of the 4 satellite case
var dirs4 = [][2]float64{{0, 80}, {45, 30}, {165, 35}, {285, 25}}

// Five satellites whose single redundancy makes a bias b on the first one
// leave residuals b/2, b/4, -b/4, -b/4, -b/4.
func dirs5() [][2]float64 {
	c70 := math.Cos(ToRad(70))
	el1 := ToDeg(math.Acos(2 * c70))
	se := (2*math.Sin(ToRad(70)) + math.Sin(ToRad(el1))) / 3
	elr := ToDeg(math.Asin(se))
	return [][2]float64{{90, 70}, {270, el1}, {0, elr}, {120, elr}, {240, elr}}
}

// skySource places one satellite per direction at testRange from rcv.
func skySource(rcv PosXYZ, dirs [][2]float64) (staticSource, []SatType) {
	src := staticSource{}
	sats := make([]SatType, len(dirs))
	for i, d := range dirs {
		az, el := ToRad(d[0]), ToRad(d[1])
		enu := PosENU{
			E: testRange * math.Cos(el) * math.Sin(az),
			N: testRange * math.Cos(el) * math.Cos(az),
			U: testRange * math.Sin(el),
		}
		sat := NewSatType('G', i+1)
		src[sat] = SatState{Sat: sat, Pos: enu.ToXYZ(rcv)}
		sats[i] = sat
	}
	return src, sats
}

// exactRanges returns error-free pseudoranges; bias[i] is added to satellite i.
func exactRanges(src staticSource, sats []SatType, rcv PosXYZ, clk float64, bias map[int]float64) []CorrectedRange {
	out := make([]CorrectedRange, len(sats))
	for i, sat := range sats {
		r, _ := geoDist(src[sat].Pos, rcv)
		out[i] = CorrectedRange{Sat: sat, Range: r + clk + bias[i]}
	}
	return out
}

// epochOf builds an observation epoch with dual-frequency pseudoranges that
// carry an ionospheric delay of iono metres on the first frequency.
func epochOf(t GTime, ranges []CorrectedRange, iono float64) *ObsE {
	obse := NewObsE(t)
	g := SQ(L1 / L2)
	for _, r := range ranges {
		obse.Set(r.Sat, NewObsS('G', r.Range+iono, r.Range+g*iono))
	}
	return obse
}

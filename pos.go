// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package goraim

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidCoordinate is returned for positions that have no geodetic
// representation (the centre of the Earth).
var ErrInvalidCoordinate = errors.New("invalid coordinate")

//-------------------------------------------------------------------
// Geodetic transform
//-------------------------------------------------------------------

// ToGeodetic converts ECEF coordinates to latitude, longitude [rad] and
// ellipsoidal height [m] with Bowring's method, iterated until the latitude
// settles.
func (el Ellipsoid) ToGeodetic(pos PosXYZ) (PosLLH, error) {
	if pos.X == 0 && pos.Y == 0 && pos.Z == 0 {
		return PosLLH{}, fmt.Errorf("%w: zero vector", ErrInvalidCoordinate)
	}
	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) {
		return PosLLH{}, fmt.Errorf("%w: NaN", ErrInvalidCoordinate)
	}

	a := el.A
	b := el.B()
	ep2 := el.E2 / (1 - el.E2) // Second eccentricity squared

	p := math.Hypot(pos.X, pos.Y)
	lon := math.Atan2(pos.Y, pos.X)

	// Parametric latitude
	t := math.Atan2(pos.Z*a, p*b)
	lat := 0.0
	for i := 0; i < 5; i++ {
		sint := math.Sin(t)
		cost := math.Cos(t)
		lat2 := math.Atan2(pos.Z+ep2*b*sint*sint*sint, p-el.E2*a*cost*cost*cost)
		t2 := math.Atan2(b*math.Sin(lat2), a*math.Cos(lat2))
		done := i > 0 && math.Abs(lat2-lat) < 1e-14
		lat, t = lat2, t2
		if done {
			break
		}
	}

	// Height that stays well-conditioned at the poles
	sinl := math.Sin(lat)
	hei := p*math.Cos(lat) + pos.Z*sinl - a*math.Sqrt(1-el.E2*sinl*sinl)
	return PosLLH{Lat: lat, Lon: lon, Hei: hei}, nil
}

// ToECEF converts latitude, longitude [rad] and ellipsoidal height [m] to
// ECEF coordinates.
func (el Ellipsoid) ToECEF(llh PosLLH) PosXYZ {
	sinl := math.Sin(llh.Lat)
	n := el.A / math.Sqrt(1-el.E2*sinl*sinl) // Radius of curvature in the prime vertical
	return PosXYZ{
		X: (n + llh.Hei) * math.Cos(llh.Lat) * math.Cos(llh.Lon),
		Y: (n + llh.Hei) * math.Cos(llh.Lat) * math.Sin(llh.Lon),
		Z: (n*(1-el.E2) + llh.Hei) * sinl,
	}
}

//-------------------------------------------------------------------
// PosLLH
//-------------------------------------------------------------------

type PosLLH struct {
	Lat float64
	Lon float64
	Hei float64
}

func NewPosLLH(lat, lon, hei float64) *PosLLH {
	return &PosLLH{
		Lat: lat,
		Lon: lon,
		Hei: hei,
	}
}

// ToXYZ converts to ECEF on WGS84.
func (llh *PosLLH) ToXYZ() PosXYZ {
	return WGS84.ToECEF(*llh)
}

// Read from string "lat lon hei" (degrees, metres)
func (llh *PosLLH) Set(s string) error {
	var err error
	f := strings.Fields(s)
	if len(f) != 3 {
		return fmt.Errorf("expected \"lat lon hei\", got %q", s)
	}
	llh.Lat, err = strconv.ParseFloat(f[0], 64)
	if err != nil {
		return err
	}
	llh.Lon, err = strconv.ParseFloat(f[1], 64)
	if err != nil {
		return err
	}
	llh.Hei, err = strconv.ParseFloat(f[2], 64)
	if err != nil {
		return err
	}
	llh.Lat = ToRad(llh.Lat)
	llh.Lon = ToRad(llh.Lon)
	return nil
}

// Convert to string (degrees)
func (llh *PosLLH) String() string {
	return fmt.Sprintf("%.8f %.8f %.4f", ToDeg(llh.Lat), ToDeg(llh.Lon), llh.Hei)
}

func (llh *PosLLH) Type() string {
	return "llh"
}

//-------------------------------------------------------------------
// PosXYZ
//-------------------------------------------------------------------

type PosXYZ struct {
	X float64
	Y float64
	Z float64
}

// ToLLH converts to geodetic coordinates on WGS84. The origin maps to
// latitude and longitude 0 with height -Re.
func (pos *PosXYZ) ToLLH() PosLLH {
	llh, err := WGS84.ToGeodetic(*pos)
	if err != nil {
		return PosLLH{Lat: 0, Lon: 0, Hei: -Re}
	}
	return llh
}

func (pos PosXYZ) Norm() float64 {
	return math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
}

func (pos PosXYZ) Sub(b PosXYZ) PosXYZ {
	return PosXYZ{X: pos.X - b.X, Y: pos.Y - b.Y, Z: pos.Z - b.Z}
}

func (pos *PosXYZ) ToENU(base PosXYZ) PosENU {
	// Relative position from the reference location
	x := pos.X - base.X
	y := pos.Y - base.Y
	z := pos.Z - base.Z

	// Latitude and longitude of the reference location
	llh := base.ToLLH()
	s1 := math.Sin(llh.Lon)
	c1 := math.Cos(llh.Lon)
	s2 := math.Sin(llh.Lat)
	c2 := math.Cos(llh.Lat)

	// Rotate the relative position to convert to ENU coordinates
	return PosENU{
		E: -x*s1 + y*c1,
		N: -x*c1*s2 - y*s1*s2 + z*c2,
		U: x*c1*c2 + y*s1*c2 + z*s2,
	}
}

func (usr *PosXYZ) Elevation(sat PosXYZ) float64 {
	enu := sat.ToENU(*usr)
	return enu.Elevation()
}

func (usr *PosXYZ) Azimuth(sat PosXYZ) float64 {
	enu := sat.ToENU(*usr)
	return enu.Azimuth()
}

func (pos *PosXYZ) String() string {
	return fmt.Sprintf("%.4f %.4f %.4f", pos.X, pos.Y, pos.Z)
}

//-------------------------------------------------------------------
// PosENU
//-------------------------------------------------------------------

type PosENU struct {
	E float64
	N float64
	U float64
}

func (enu *PosENU) ToXYZ(base PosXYZ) PosXYZ {
	// Latitude and longitude of the reference location
	llh := base.ToLLH()
	s1 := math.Sin(llh.Lon)
	c1 := math.Cos(llh.Lon)
	s2 := math.Sin(llh.Lat)
	c2 := math.Cos(llh.Lat)

	// Rotate the ENU coordinates to convert to relative position
	x := -enu.E*s1 - enu.N*c1*s2 + enu.U*c1*c2
	y := enu.E*c1 - enu.N*s1*s2 + enu.U*s1*c2
	z := enu.N*c2 + enu.U*s2

	return PosXYZ{
		X: x + base.X,
		Y: y + base.Y,
		Z: z + base.Z,
	}
}

func (enu *PosENU) Elevation() float64 {
	return math.Atan2(enu.U, math.Sqrt(enu.E*enu.E+enu.N*enu.N))
}

func (enu *PosENU) Azimuth() float64 {
	return math.Atan2(enu.E, enu.N)
}

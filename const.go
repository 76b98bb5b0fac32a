// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package goraim

import "math"

const (
	PI    = 3.1415926535897932  // Pi
	C     = 2.99792458e8        // Speed of light [m/s]
	Re    = 6378137.0           // Earth's radius [m]
	Fe    = 1.0 / 298.257223563 // Earth's flattening
	OMGE  = 7.2921151467e-5     // Earth rotation angular velocity [rad/s]
	MUGPS = 3.986005e14         // Earth gravitational constant (GPS) [m^3/s^2]
	MUGAL = 3.986004418e14      // Earth gravitational constant (Galileo, Beidou) [m^3/s^2]
	LS    = 18                  // Leap seconds
	L1    = 1575420000.0        // L1 frequency of G/J [Hz]
	L2    = 1227600000.0        // L2 frequency of G/J [Hz]
	L5    = 1176450000.0        // L5 frequency of G/J [Hz]
	B1    = 1561098000.0        // B1 frequency of Beidou [Hz]
	B2b   = 1207140000.0        // B2b frequency of Beidou [Hz]
	E1    = 1575420000.0        // E1 frequency of Galileo [Hz]
	E5b   = 1207140000.0        // E5b frequency of Galileo [Hz]
	G1    = 1602000000.0        // G1 frequency of Glonass
	G1d   = 562500.0            // Frequency division step of Glonass G1 [Hz]
	G2    = 1246000000.0        // G2 frequency of Glonass
	G2d   = 437500.0            // Frequency division step of Glonass G2 [Hz]
)

// Ellipsoid is a reference ellipsoid given by its semi-major axis [m] and
// squared first eccentricity.
type Ellipsoid struct {
	A  float64
	E2 float64
}

// WGS84 reference ellipsoid
var WGS84 = Ellipsoid{A: Re, E2: Fe * (2 - Fe)}

// NewEllipsoid builds an ellipsoid from semi-major axis and flattening.
func NewEllipsoid(a, f float64) Ellipsoid {
	return Ellipsoid{A: a, E2: f * (2 - f)}
}

// B returns the semi-minor axis.
func (e Ellipsoid) B() float64 {
	return e.A * math.Sqrt(1-e.E2)
}

// Carrier frequencies of the primary and secondary pseudorange used for the
// ionosphere-free correction, per satellite system.
var DualFreqs = map[SysType][2]float64{
	'G': {L1, L2},
	'J': {L1, L2},
	'E': {E1, E5b},
	'C': {B1, B2b},
	'R': {G1, G2},
}

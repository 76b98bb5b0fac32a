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
	"sort"
	"strings"
	"sync"
)

var (
	// ErrEphemerisNotFound means the store holds no record for the satellite.
	ErrEphemerisNotFound = errors.New("ephemeris not found")
	// ErrOutOfValidityRange means records exist but none applies at the time.
	ErrOutOfValidityRange = errors.New("ephemeris out of validity range")
)

// Structure to store ephemeris (navigation data for one satellite, one issue)
type Ephe struct {

	// Common for G,J,E,C,R
	Sat  SatType
	Toc  GTime // Reference time for satellite clock error correction
	Toe  GTime // Reference time for satellite orbit calculation
	Tot  GTime // Transmission time
	Iode int

	// for GPS, QZSS, GALILEO, BEIDOU
	Af0    float64
	Af1    float64
	Af2    float64
	Crs    float64
	DeltaN float64
	M0     float64
	Cuc    float64
	Ecc    float64
	Cus    float64
	SqrtA  float64
	Cic    float64
	Omega0 float64
	Cis    float64
	I0     float64
	Crc    float64
	Omega  float64
	OmegaD float64
	Idot   float64
	Code   int
	Week   int
	Flag   int
	Sva    int
	Svh    int
	Tgd    float64 // GPS, QZS, GAL(E5a/E1), BDS(B1/B3)
	Tgd2   float64 // GAL(E5b/E1), BDS(B2/B3)
	Iodc   int     // GPS, QZS, BDS
	Fit    float64 // GPS, QZS

	// for GLONASS
	TauN   float64
	GammaN float64
	PosX   float64
	VecX   float64
	AccX   float64
	PosY   float64
	VecY   float64
	AccY   float64
	FreqN  int
	PosZ   float64
	VecZ   float64
	AccZ   float64
	Age    int
}

func (e *Ephe) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("### Nav. for %s (%c, %d)\n", e.Sat, e.Sat.Sys(), e.Sat.Num()))
	sb.WriteString(fmt.Sprintf("    Toc: %v\n", e.Toc))
	sb.WriteString(fmt.Sprintf("    Toe: %v\n", e.Toe))
	sb.WriteString(fmt.Sprintf("    Tot: %v\n", e.Tot))
	sb.WriteString(fmt.Sprintf("   Iode: %v\n", e.Iode))
	if e.Sat.Sys() == 'R' {
		sb.WriteString(fmt.Sprintf("   TauN: %v\n", e.TauN))
		sb.WriteString(fmt.Sprintf(" GammaN: %v\n", e.GammaN))
		sb.WriteString(fmt.Sprintf("    Pos: %v %v %v\n", e.PosX, e.PosY, e.PosZ))
		sb.WriteString(fmt.Sprintf("    Vec: %v %v %v\n", e.VecX, e.VecY, e.VecZ))
		sb.WriteString(fmt.Sprintf("    Acc: %v %v %v\n", e.AccX, e.AccY, e.AccZ))
		sb.WriteString(fmt.Sprintf("  FreqN: %v\n", e.FreqN))
		return sb.String()
	}
	sb.WriteString(fmt.Sprintf("    Af0: %v\n", e.Af0))
	sb.WriteString(fmt.Sprintf("    Af1: %v\n", e.Af1))
	sb.WriteString(fmt.Sprintf("    Af2: %v\n", e.Af2))
	sb.WriteString(fmt.Sprintf("  SqrtA: %v\n", e.SqrtA))
	sb.WriteString(fmt.Sprintf("    Ecc: %v\n", e.Ecc))
	sb.WriteString(fmt.Sprintf("     I0: %v\n", e.I0))
	sb.WriteString(fmt.Sprintf(" Omega0: %v\n", e.Omega0))
	sb.WriteString(fmt.Sprintf("  Omega: %v\n", e.Omega))
	sb.WriteString(fmt.Sprintf("     M0: %v\n", e.M0))
	sb.WriteString(fmt.Sprintf("    Svh: %v\n", e.Svh))
	sb.WriteString(fmt.Sprintf("    Tgd: %v\n", e.Tgd))
	return sb.String()
}

// Window returns the interval in which the record may be used, given the
// maximum distance from Toe. Galileo records are never used before Toe.
func (e *Ephe) Window(maxAge float64) (start, end GTime) {
	if e.Sat.Sys() == 'E' {
		return e.Toe, e.Toe.Add(maxAge)
	}
	return e.Toe.Add(-maxAge), e.Toe.Add(maxAge)
}

// Contains reports whether t lies in the record's validity window.
func (e *Ephe) Contains(t GTime, maxAge float64) bool {
	start, end := e.Window(maxAge)
	return t.Sub(start) >= 0 && end.Sub(t) >= 0
}

// Healthy reports whether the satellite may be used. The QZSS L1C/A flag
// (LSB) is ignored.
func (e *Ephe) Healthy() bool {
	svh := e.Svh
	if e.Sat.Sys() == 'J' {
		svh &= 0xfffffffe
	}
	return svh == 0
}

// Maximum age of an ephemeris relative to Toe [s], per satellite system
var DefaultMaxAge = map[SysType]float64{
	'G': 7200,
	'J': 7200,
	'E': 14400, // Following RTKLIB's MAXDTOE_GAL
	'C': 21600, // Following RTKLIB's MAXDTOE_CMP
	'R': 1800,  // Following RTKLIB's MAXDTOE_GLO
}

// EphemerisStore holds broadcast records per satellite, sorted by Toe.
// It is safe for concurrent use; lookups only take a read lock.
type EphemerisStore struct {
	mu     sync.RWMutex
	recs   map[SatType][]*Ephe
	maxAge map[SysType]float64
}

// NewEphemerisStore creates a store. maxAge overrides DefaultMaxAge per
// system; pass nil for the defaults.
func NewEphemerisStore(maxAge map[SysType]float64) *EphemerisStore {
	m := make(map[SysType]float64, len(DefaultMaxAge))
	for k, v := range DefaultMaxAge {
		m[k] = v
	}
	for k, v := range maxAge {
		m[k] = v
	}
	return &EphemerisStore{
		recs:   map[SatType][]*Ephe{},
		maxAge: m,
	}
}

// MaxAge returns the validity half-width used for a satellite system.
func (s *EphemerisStore) MaxAge(sys SysType) float64 {
	if v, ok := s.maxAge[sys]; ok {
		return v
	}
	return 7200
}

// Add inserts a record. A record of the same satellite with the same Toe is
// replaced.
func (s *EphemerisStore) Add(e *Ephe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.recs[e.Sat]
	i := sort.Search(len(a), func(i int) bool { return a[i].Toe.Sub(e.Toe) >= 0 })
	if i < len(a) && a[i].Toe.Sub(e.Toe) == 0 {
		a[i] = e
		return
	}
	a = append(a, nil)
	copy(a[i+1:], a[i:])
	a[i] = e
	s.recs[e.Sat] = a
}

// Find selects the record for sat closest in time to t.
//
// A satellite with a single record always gets that record. With several
// records, only those whose validity window contains t are candidates; among
// them the one with Toe closest to t wins, ties going to the newer record.
func (s *EphemerisStore) Find(sat SatType, t GTime) (*Ephe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.recs[sat]
	if !ok || len(a) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEphemerisNotFound, sat)
	}
	if len(a) == 1 {
		return a[0], nil
	}
	maxAge := s.MaxAge(sat.Sys())
	var best *Ephe
	bestDiff := math.Inf(1)
	for _, e := range a {
		if !e.Contains(t, maxAge) {
			continue
		}
		diff := math.Abs(e.Toe.Sub(t))
		if diff <= bestDiff {
			best = e
			bestDiff = diff
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %s at %s", ErrOutOfValidityRange, sat, t)
	}
	return best, nil
}

// SatState evaluates the broadcast orbit and clock of sat at transmit time t.
func (s *EphemerisStore) SatState(sat SatType, t GTime) (SatState, error) {
	e, err := s.Find(sat, t)
	if err != nil {
		return SatState{}, err
	}
	return NewSatState(e, t)
}

// Sats returns the satellites that have at least one record.
func (s *EphemerisStore) Sats() []SatType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]SatType, 0, len(s.recs))
	for k := range s.recs {
		keys = append(keys, k)
	}
	return Sorted(keys)
}

// Len returns the number of stored records.
func (s *EphemerisStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.recs {
		n += len(a)
	}
	return n
}

// Display navigation data overview
func (s *EphemerisStore) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]SatType, 0, len(s.recs))
	for k := range s.recs {
		keys = append(keys, k)
	}
	var sb strings.Builder
	sb.WriteString("toe:\n")
	for _, sat := range Sorted(keys) {
		a := s.recs[sat]
		st := a[0].Toe
		et := a[len(a)-1].Toe
		sb.WriteString(fmt.Sprintf("\t%s: %s - %s (%d)\n", sat,
			st.ToTime().UTC().Format("2006/01/02 15:04:05.000"), et.ToTime().UTC().Format("2006/01/02 15:04:05.000"), len(a)))
	}
	return sb.String()
}

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
	"sort"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
)

// Type representing satellite name like "G10"
type SatType string

// Type representing satellite system like 'G'
type SysType byte

// NewSatType builds a satellite name from system and PRN.
func NewSatType(sys SysType, prn int) SatType {
	return SatType(fmt.Sprintf("%c%02d", sys, prn))
}

// Extract satellite system from satellite name
func (p SatType) Sys() SysType {
	if len(p) == 0 {
		return 0
	}
	return SysType(p[0])
}

// Check validity of satellite system
func (p SysType) IsValid() bool {
	return p == 'G' || p == 'J' || p == 'E' || p == 'R' || p == 'C' || p == 'S'
}

// Extract satellite number from satellite name
func (p SatType) Num() int {
	if len(p) < 3 {
		return 0
	}
	i, err := strconv.Atoi(string(p[1:3]))
	if err != nil {
		return 0
	}
	return i
}

// Number of carrier frequencies
const NFREQ = 4

// Structure to store observation data for one satellite for one epoch
type ObsS struct {
	Pr   [NFREQ]float64  // Pseudorange
	Cp   [NFREQ]float64  // Carrier phase
	Dp   [NFREQ]float64  // Doppler frequency
	Sn   [NFREQ]float64  // Signal strength
	LLI  [NFREQ]byte     // LLI (Loss-of-Lock Indicator)
	Freq [NFREQ]float64  // Carrier frequency
	Code [NFREQ]CodeType // Observation code (1C,2X,5I etc.)
}

// NewObsS returns observation data holding the given pseudoranges on the
// first frequencies of the satellite's system.
func NewObsS(sys SysType, pr ...float64) *ObsS {
	o := &ObsS{}
	f := DualFreqs[sys]
	for i, v := range pr {
		if i >= NFREQ {
			break
		}
		o.Pr[i] = v
		if i < len(f) && v != 0 {
			o.Freq[i] = f[i]
		}
	}
	return o
}

// Structure to store observation data for all satellites in one epoch.
// Sats keeps the order in which satellites were first seen.
type ObsE struct {
	Time GTime             // Epoch time
	Sats []SatType         // Satellites in first-seen order
	DatS map[SatType]*ObsS // Observation data for each satellite
}

func NewObsE(t GTime) *ObsE {
	return &ObsE{Time: t, DatS: map[SatType]*ObsS{}}
}

// Set stores the observation of a satellite. A satellite already present
// keeps its position in Sats.
func (p *ObsE) Set(sat SatType, obss *ObsS) {
	if p.DatS == nil {
		p.DatS = map[SatType]*ObsS{}
	}
	if _, ok := p.DatS[sat]; !ok {
		p.Sats = append(p.Sats, sat)
	}
	p.DatS[sat] = obss
}

// ErrEndOfData is returned by an EpochSource when no epoch is left.
var ErrEndOfData = errors.New("end of data")

// EpochSource supplies observation epochs one at a time.
type EpochSource interface {
	NextEpoch() (*ObsE, error)
}

// EpochList is an in-memory EpochSource (sorted by time in ascending order).
type EpochList struct {
	DatE  []*ObsE
	Codes map[SysType][]CodeType // List of observation codes contained in file
	next  int
}

func NewEpochList(epochs ...*ObsE) *EpochList {
	return &EpochList{DatE: epochs}
}

func (p *EpochList) NextEpoch() (*ObsE, error) {
	if p.next >= len(p.DatE) {
		return nil, ErrEndOfData
	}
	e := p.DatE[p.next]
	p.next++
	return e, nil
}

// ReadAll drains an EpochSource into a list.
func ReadAll(src EpochSource) (*EpochList, error) {
	l := &EpochList{}
	for {
		e, err := src.NextEpoch()
		if errors.Is(err, ErrEndOfData) {
			break
		}
		if err != nil {
			return nil, err
		}
		l.DatE = append(l.DatE, e)
	}
	if r, ok := src.(*ObsReader); ok {
		l.Codes = r.Codes()
	}
	return l, nil
}

// Display observation data overview
func (p *EpochList) String() string {
	if len(p.DatE) == 0 {
		return "NO DATA"
	}
	// Satellite list
	sl := map[SysType][]SatType{}
	for _, obse := range p.DatE {
		for _, sat := range obse.Sats {
			if !slices.Contains(sl[sat.Sys()], sat) {
				sl[sat.Sys()] = append(sl[sat.Sys()], sat)
			}
		}
	}
	var sb, sb2 strings.Builder
	for _, sys := range []SysType{'G', 'J', 'E', 'R', 'C', 'S'} {
		if a := sl[sys]; len(a) > 0 {
			sb.WriteString(fmt.Sprintf("\t%c (%2d):", sys, len(a)))
			sort.Slice(a, func(i, j int) bool {
				return a[i] < a[j]
			})
			for _, b := range a {
				sb.WriteString(fmt.Sprintf(" %s", b[1:]))
			}
			sb.WriteString("\n")
		}
		if a := p.Codes[sys]; len(a) > 0 {
			sb2.WriteString(fmt.Sprintf("\t%c (%2d):", sys, len(a)))
			for _, b := range a {
				sb2.WriteString(fmt.Sprintf(" %s", b))
			}
			sb2.WriteString("\n")
		}
	}
	a := `
datetime:
	%s - %s (%d)

sats:
%s
codes:
%s`
	return fmt.Sprintf(a, p.DatE[0].Time.ToTime().UTC().Format("2006/01/02 15:04:05.000"), p.DatE[len(p.DatE)-1].Time.ToTime().UTC().Format("2006/01/02 15:04:05.000"), len(p.DatE), sb.String(), sb2.String())
}

// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package goraim

import (
	"fmt"
	"log/slog"
)

// TransmitState returns the state of sat at the time the signal received at
// t with pseudorange pr left the satellite. The transmit time is first taken
// as t - pr/c and then corrected by the satellite clock bias.
func TransmitState(src SatelliteSource, sat SatType, t GTime, pr float64) (SatState, error) {
	tx := t.Add(-pr / C)
	st, err := src.SatState(sat, tx)
	if err != nil {
		return SatState{}, err
	}
	for i := 0; i < 2; i++ {
		st, err = src.SatState(sat, tx.Add(-st.ClkBias))
		if err != nil {
			return SatState{}, err
		}
	}
	return st, nil
}

// QuerySatStates evaluates every satellite in sats at time t. Satellites the
// source cannot answer for are left out of the result.
func QuerySatStates(src SatelliteSource, sats []SatType, t GTime, log *slog.Logger) []SatState {
	log = orDiscard(log)
	out := make([]SatState, 0, len(sats))
	for _, sat := range sats {
		st, err := src.SatState(sat, t)
		if err != nil {
			log.Debug("satellite omitted", "sat", sat, "time", t, "err", err)
			continue
		}
		out = append(out, st)
	}
	return out
}

// TrackSatStates samples n states of each satellite starting at t, step
// seconds apart. The result is ordered by time, then by the order of sats.
func TrackSatStates(src SatelliteSource, sats []SatType, t GTime, n int, step float64, log *slog.Logger) ([]SatState, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid sample count: %d", n)
	}
	if step <= 0 && n > 1 {
		return nil, fmt.Errorf("invalid sample interval: %g", step)
	}
	out := make([]SatState, 0, n*len(sats))
	for i := 0; i < n; i++ {
		out = append(out, QuerySatStates(src, sats, t.Add(float64(i)*step), log)...)
	}
	return out, nil
}

// TransmitSatStates evaluates the satellites of a set of corrected ranges at
// their signal transmit times. Satellites that fail are left out.
func TransmitSatStates(src SatelliteSource, t GTime, ranges []CorrectedRange, log *slog.Logger) []SatState {
	log = orDiscard(log)
	out := make([]SatState, 0, len(ranges))
	for _, r := range ranges {
		st, err := TransmitState(src, r.Sat, t, r.Range)
		if err != nil {
			log.Debug("satellite omitted", "sat", r.Sat, "time", t, "err", err)
			continue
		}
		out = append(out, st)
	}
	return out
}

// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package goraim

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func circular(sat SatType, toe GTime) *Ephe {
	return &Ephe{Sat: sat, Toc: toe, Toe: toe, SqrtA: 5153.7, I0: 0.96, Omega0: 1, Af0: 1e-4}
}

func TestFindSingleRecord(t *testing.T) {
	s := NewEphemerisStore(nil)
	e := circular("G05", testTime)
	s.Add(e)

	for _, dt := range []float64{0, -1e6, 3e5, 86400 * 30} {
		got, err := s.Find("G05", testTime.Add(dt))
		require.NoError(t, err)
		assert.Same(t, e, got)
	}
}

func TestFindNotFound(t *testing.T) {
	s := NewEphemerisStore(nil)
	s.Add(circular("G05", testTime))
	_, err := s.Find("G06", testTime)
	assert.ErrorIs(t, err, ErrEphemerisNotFound)
	_, err = s.SatState("G06", testTime)
	assert.ErrorIs(t, err, ErrEphemerisNotFound)
}

func TestFindNearest(t *testing.T) {
	s := NewEphemerisStore(nil)
	a := circular("G05", testTime)
	b := circular("G05", testTime.Add(7200))
	c := circular("G05", testTime.Add(14400))
	s.Add(c)
	s.Add(a)
	s.Add(b)
	assert.Equal(t, 3, s.Len())

	for dt, want := range map[float64]*Ephe{
		-7200: a,
		1000:  a,
		5000:  b,
		11000: c,
		21600: c,
	} {
		got, err := s.Find("G05", testTime.Add(dt))
		require.NoError(t, err, dt)
		assert.Same(t, want, got, dt)
	}

	_, err := s.Find("G05", testTime.Add(-7201))
	assert.ErrorIs(t, err, ErrOutOfValidityRange)
	_, err = s.Find("G05", testTime.Add(21601))
	assert.ErrorIs(t, err, ErrOutOfValidityRange)
}

func TestFindTieGoesToNewer(t *testing.T) {
	s := NewEphemerisStore(nil)
	a := circular("G05", testTime)
	b := circular("G05", testTime.Add(7200))
	s.Add(a)
	s.Add(b)
	got, err := s.Find("G05", testTime.Add(3600))
	require.NoError(t, err)
	assert.Same(t, b, got)
}

func TestFindGalileoWindow(t *testing.T) {
	s := NewEphemerisStore(nil)
	a := circular("E11", testTime)
	b := circular("E11", testTime.Add(600))
	s.Add(a)
	s.Add(b)

	// The later record is closer but not valid yet
	got, err := s.Find("E11", testTime.Add(500))
	require.NoError(t, err)
	assert.Same(t, a, got)

	_, err = s.Find("E11", testTime.Add(-1))
	assert.ErrorIs(t, err, ErrOutOfValidityRange)
}

func TestAddReplacesSameToe(t *testing.T) {
	s := NewEphemerisStore(nil)
	a := circular("G05", testTime)
	b := circular("G05", testTime)
	b.Iode = 99
	s.Add(a)
	s.Add(circular("G05", testTime.Add(7200)))
	s.Add(b)
	assert.Equal(t, 2, s.Len())
	got, err := s.Find("G05", testTime)
	require.NoError(t, err)
	assert.Equal(t, 99, got.Iode)
}

func TestMaxAgeOverride(t *testing.T) {
	s := NewEphemerisStore(map[SysType]float64{'G': 600})
	assert.Equal(t, 600.0, s.MaxAge('G'))
	assert.Equal(t, 1800.0, s.MaxAge('R'))
	assert.Equal(t, 7200.0, s.MaxAge('S'))

	s.Add(circular("G05", testTime))
	s.Add(circular("G05", testTime.Add(7200)))
	_, err := s.Find("G05", testTime.Add(3600))
	assert.ErrorIs(t, err, ErrOutOfValidityRange)
}

func TestHealthy(t *testing.T) {
	assert.True(t, (&Ephe{Sat: "G01"}).Healthy())
	assert.False(t, (&Ephe{Sat: "G01", Svh: 1}).Healthy())
	assert.True(t, (&Ephe{Sat: "J02", Svh: 1}).Healthy())
	assert.False(t, (&Ephe{Sat: "J02", Svh: 3}).Healthy())
}

func TestStoreConcurrentFind(t *testing.T) {
	s := NewEphemerisStore(nil)
	for i := 0; i < 12; i++ {
		s.Add(circular("G05", testTime.Add(float64(i)*7200)))
	}
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, err := s.SatState("G05", testTime.Add(float64(w*1000+i)))
				assert.NoError(t, err)
			}
		}(w)
	}
	s.Add(circular("G06", testTime))
	wg.Wait()
	assert.Equal(t, []SatType{"G05", "G06"}, s.Sats())
}

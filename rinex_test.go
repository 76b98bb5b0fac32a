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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hdr(content, label string) string {
	return fmt.Sprintf("%-60s%s\n", content, label)
}

func epochLine(t time.Time, flag, ns int) string {
	return fmt.Sprintf("> %4d %02d %02d %02d %02d %10.7f  %d %2d\n",
		t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), float64(t.Second()), flag, ns)
}

// obsLine formats one satellite record. A zero value leaves the field blank.
func obsLine(sat string, vals ...float64) string {
	var sb strings.Builder
	sb.WriteString(sat)
	for _, v := range vals {
		if v == 0 {
			sb.WriteString(strings.Repeat(" ", 16))
			continue
		}
		sb.WriteString(fmt.Sprintf("%14.3f  ", v))
	}
	return sb.String() + "\n"
}

var obsT0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func sampleObs() string {
	var sb strings.Builder
	sb.WriteString(hdr(fmt.Sprintf("%9.2f%11s%-20s%-20s", 3.04, "", "OBSERVATION DATA", "M: MIXED"), "RINEX VERSION / TYPE"))
	sb.WriteString(hdr("goraim test", "COMMENT"))
	sb.WriteString(hdr("G   11 C1C L1C D1C S1C C2W L2W D2W S2W C5Q L5Q", "SYS / # / OBS TYPES"))
	sb.WriteString(hdr("       D5Q", "SYS / # / OBS TYPES"))
	sb.WriteString(hdr("E    2 C1C C7Q", "SYS / # / OBS TYPES"))
	sb.WriteString(hdr("", "END OF HEADER"))

	sb.WriteString(epochLine(obsT0, 0, 3))
	sb.WriteString(obsLine("G05", 21000000.125, 110000000.5, 0, 45, 21000003.5, 0, 0, 0, 0, 0, 0))
	sb.WriteString(obsLine("E11", 23000000.25, 23000001.75))
	sb.WriteString(obsLine("G02", 22000000.5))

	// Event record with one header line
	sb.WriteString(epochLine(obsT0.Add(15*time.Second), 4, 1))
	sb.WriteString(hdr("receiver moved", "COMMENT"))

	sb.WriteString(epochLine(obsT0.Add(30*time.Second), 0, 1))
	sb.WriteString(obsLine("G05", 21000030.125))

	// Duplicate epoch
	sb.WriteString(epochLine(obsT0.Add(30*time.Second), 0, 1))
	sb.WriteString(obsLine("G05", 21000099.0))

	sb.WriteString(epochLine(obsT0.Add(60*time.Second), 0, 1))
	sb.WriteString(obsLine("X05", 1))
	return sb.String()
}

func TestObsReader(t *testing.T) {
	r, err := NewObsReader(strings.NewReader(sampleObs()))
	require.NoError(t, err)
	assert.Equal(t, "3.04", r.Version())
	assert.Len(t, r.Codes()['G'], 11)
	assert.Equal(t, CodeType("D5Q"), r.Codes()['G'][10])
	assert.Equal(t, []CodeType{"C1C", "C7Q"}, r.Codes()['E'])

	e, err := r.NextEpoch()
	require.NoError(t, err)
	assert.Equal(t, *NewGTime(obsT0), e.Time)
	assert.Equal(t, []SatType{"G05", "E11", "G02"}, e.Sats)

	g05 := e.DatS["G05"]
	assert.Equal(t, 21000000.125, g05.Pr[0])
	assert.Equal(t, 21000003.5, g05.Pr[1])
	assert.Equal(t, 110000000.5, g05.Cp[0])
	assert.Equal(t, 45.0, g05.Sn[0])
	assert.Equal(t, L1, g05.Freq[0])
	assert.Equal(t, L2, g05.Freq[1])
	assert.Equal(t, CodeType("2W"), g05.Code[1])

	e11 := e.DatS["E11"]
	assert.Equal(t, 23000001.75, e11.Pr[1])
	assert.Equal(t, E5b, e11.Freq[1])

	assert.Zero(t, e.DatS["G02"].Pr[1])

	e, err = r.NextEpoch()
	require.NoError(t, err)
	assert.Equal(t, NewGTime(obsT0).Add(30), e.Time)
	assert.Equal(t, 21000030.125, e.DatS["G05"].Pr[0])

	_, err = r.NextEpoch()
	assert.ErrorIs(t, err, ErrEndOfData)
}

func TestObsReaderReadAll(t *testing.T) {
	r, err := NewObsReader(strings.NewReader(sampleObs()))
	require.NoError(t, err)
	list, err := ReadAll(r)
	require.NoError(t, err)
	assert.Len(t, list.DatE, 2)
	assert.Equal(t, r.Codes(), list.Codes)
}

func TestObsReaderHeaderErrors(t *testing.T) {
	for name, text := range map[string]string{
		"rinex2":    hdr(fmt.Sprintf("%9.2f%11s%-20s", 2.11, "", "OBSERVATION DATA"), "RINEX VERSION / TYPE") + hdr("", "END OF HEADER"),
		"nav":       hdr(fmt.Sprintf("%9.2f%11s%-20s", 3.04, "", "NAVIGATION DATA"), "RINEX VERSION / TYPE") + hdr("", "END OF HEADER"),
		"noversion": hdr("", "END OF HEADER"),
		"noend":     hdr(fmt.Sprintf("%9.2f%11s%-20s", 3.04, "", "OBSERVATION DATA"), "RINEX VERSION / TYPE"),
	} {
		_, err := NewObsReader(strings.NewReader(text))
		assert.True(t, errors.Is(err, ErrMalformedHeader), name)
	}
}

func TestFixRnx302BeidouCode(t *testing.T) {
	assert.Equal(t, []string{"C2I", "L2I", "C7I", "D2X"}, fixRnx302BeidouCode([]string{"C1I", "L1I", "C7I", "D1X"}))
}

func TestGetURAIndex(t *testing.T) {
	assert.Equal(t, 0, getURAIndex(2.0))
	assert.Equal(t, 1, getURAIndex(2.8))
	assert.Equal(t, 14, getURAIndex(6144))
	assert.Equal(t, 15, getURAIndex(10000))
	assert.Equal(t, 15, getURAIndex(0))
	assert.Equal(t, 107, getSISAIndex(3.2))
	assert.Equal(t, 255, getSISAIndex(-1))
}

func TestParseFloat(t *testing.T) {
	assert.Equal(t, 1.5e-3, parseFloat(" 1.500000000000D-03"))
	assert.Equal(t, -2.0, parseFloat("-2.000000000000e+00"))
	assert.Equal(t, 0.0, parseFloat("   "))
}

// navRecord formats a broadcast record: the epoch line followed by
// continuation lines of four values each.
func navRecord(head string, vals ...float64) string {
	var sb strings.Builder
	sb.WriteString(head)
	for i, v := range vals {
		if i >= 3 && (i-3)%4 == 0 {
			sb.WriteString("\n    ")
		}
		sb.WriteString(fmt.Sprintf("%19.12E", v))
	}
	return sb.String() + "\n"
}

// Circular GPS orbit with the given Toe [s of week] and clock offset
func gpsRecord(prn int, toc time.Time, af0 float64, toe float64, week int) string {
	head := fmt.Sprintf("G%02d %04d %02d %02d %02d %02d %02d", prn,
		toc.Year(), toc.Month(), toc.Day(), toc.Hour(), toc.Minute(), toc.Second())
	return navRecord(head,
		af0, 1e-12, 0, // clock
		10, 0, 0, 0.5, // IODE, Crs, DeltaN, M0
		0, 0, 0, 5153.7, // Cuc, Ecc, Cus, sqrtA
		toe, 0, 1.0, 0, // Toe, Cic, Omega0, Cis
		0.96, 0, 0.3, 0, // i0, Crc, omega, OmegaDot
		0, 1, float64(week), 0, // Idot, codes, week, L2P flag
		2.0, 0, 5e-9, 10, // SV accuracy, health, TGD, IODC
		toe-3600, 4, 0, 0) // Tot, fit interval
}

func sampleNav() (string, GTime) {
	toc := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	gt := *NewGTime(toc)
	var sb strings.Builder
	sb.WriteString(hdr(fmt.Sprintf("%9.2f%11s%-20s%-20s", 3.04, "", "N: GNSS NAV DATA", "M: MIXED"), "RINEX VERSION / TYPE"))
	sb.WriteString(hdr("", "END OF HEADER"))
	sb.WriteString(gpsRecord(1, toc, 1e-4, gt.Sec, gt.Week))
	sb.WriteString(gpsRecord(1, toc.Add(2*time.Hour), 2e-4, gt.Sec+7200, gt.Week))
	sb.WriteString(navRecord("S20 2024 03 01 02 00 00", 0, 0, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12))
	sb.WriteString(navRecord("R03 2024 03 01 01 45 00",
		1e-5, 0, 6300,
		10000, -1, 0, 0,
		15000, 2, 0, 1,
		18000, 1.5, 0, 0))
	return sb.String(), gt
}

func TestLoadNav(t *testing.T) {
	text, toe := sampleNav()
	s := NewEphemerisStore(nil)
	require.NoError(t, s.LoadNav(strings.NewReader(text)))

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []SatType{"G01", "R03"}, s.Sats())

	e, err := s.Find("G01", toe.Add(600))
	require.NoError(t, err)
	assert.Equal(t, toe, e.Toe)
	assert.Equal(t, 1e-4, e.Af0)
	assert.Equal(t, 5153.7, e.SqrtA)
	assert.Equal(t, 0, e.Sva)
	assert.Equal(t, 5e-9, e.Tgd)
	assert.Equal(t, 10, e.Iodc)
	assert.Equal(t, 4.0, e.Fit)
	assert.True(t, e.Healthy())

	e, err = s.Find("G01", toe.Add(6000))
	require.NoError(t, err)
	assert.Equal(t, 2e-4, e.Af0)

	r, err := s.Find("R03", toe)
	require.NoError(t, err)
	assert.Equal(t, 1e7, r.PosX)
	assert.Equal(t, 2000.0, r.VecY)
	assert.Equal(t, 1, r.FreqN)
	assert.Equal(t, -1e-5, r.TauN)
}

func TestLoadNavRejectsObsFile(t *testing.T) {
	s := NewEphemerisStore(nil)
	err := s.LoadNav(strings.NewReader(sampleObs()))
	assert.ErrorIs(t, err, ErrMalformedHeader)
}

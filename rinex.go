// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package goraim

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// RINEX 3.04 specification
// https://files.igs.org/pub/data/format/rinex304.pdf
//

// ErrMalformedHeader is returned when a RINEX header cannot be used.
var ErrMalformedHeader = errors.New("malformed RINEX header")

// Type representing observation codes like C1C (3 or 2 characters)
type CodeType string

// Returns observation type (C,L,D,S)
func (p *CodeType) T() byte {
	return (*p)[0]
}

// Returns frequency band and attributes of observation (1C,2P,5I etc.)
func (p *CodeType) NA() CodeType {
	return CodeType(*p)[1:]
}

// Priority and corresponding frequency settings for observation codes used in calculation
var CODE_ASSIGNS = map[SysType]map[CodeType]struct {
	priority int
	freqIdx  int
	freq     float64
}{
	'G': {
		"1C": {0, 0, 1.57542e9}, // L1
		"1P": {1, 0, 1.57542e9},
		"1Y": {2, 0, 1.57542e9},
		"1W": {3, 0, 1.57542e9},
		"1M": {4, 0, 1.57542e9},
		"1N": {5, 0, 1.57542e9},
		"1S": {6, 0, 1.57542e9},
		"1L": {7, 0, 1.57542e9},
		"1X": {8, 0, 1.57542e9},
		"2C": {0, 1, 1.22760e9}, // L2
		"2P": {1, 1, 1.22760e9},
		"2Y": {2, 1, 1.22760e9},
		"2W": {3, 1, 1.22760e9},
		"2M": {4, 1, 1.22760e9},
		"2N": {5, 1, 1.22760e9},
		"2D": {6, 1, 1.22760e9},
		"2L": {7, 1, 1.22760e9},
		"2S": {8, 1, 1.22760e9},
		"2X": {9, 1, 1.22760e9},
		"5I": {0, 2, 1.17645e9}, // L5
		"5Q": {1, 2, 1.17645e9},
		"5X": {2, 2, 1.17645e9},
	},
	'J': {
		"1C": {0, 0, 1.57542e9}, // L1
		"1L": {1, 0, 1.57542e9},
		"1S": {2, 0, 1.57542e9},
		"1X": {3, 0, 1.57542e9},
		"1Z": {4, 0, 1.57542e9},
		"2L": {5, 1, 1.22760e9}, // L2
		"2S": {6, 1, 1.22760e9},
		"2X": {7, 1, 1.22760e9},
		"5I": {8, 2, 1.17645e9}, // L5
		"5Q": {9, 2, 1.17645e9},
		"5X": {10, 2, 1.17645e9},
		"5D": {11, 2, 1.17645e9},
		"5P": {12, 2, 1.17645e9},
		"5Z": {13, 2, 1.17645e9},
	},
	'E': {
		"1C": {0, 0, 1.57542e9}, // E1
		"1A": {1, 0, 1.57542e9},
		"1B": {2, 0, 1.57542e9},
		"1X": {3, 0, 1.57542e9},
		"1Z": {4, 0, 1.57542e9},
		"7X": {5, 1, 1.20714e9}, // E5b
		"7I": {6, 1, 1.20714e9},
		"7Q": {7, 1, 1.20714e9},
		"5X": {8, 2, 1.17645e9}, // E5a
		"5I": {9, 2, 1.17645e9},
		"5Q": {10, 2, 1.17645e9},
		"8I": {11, 3, 1.191795e9}, // E5a+E5b
		"8Q": {12, 3, 1.191795e9},
		"8X": {13, 3, 1.191795e9},
		"6A": {14, 4, 1.27875e9}, // E6
		"6B": {15, 4, 1.27875e9},
		"6C": {16, 4, 1.27875e9},
		"6X": {17, 4, 1.27875e9},
		"6Z": {18, 4, 1.27875e9},
	},
	'R': {
		"1C": {0, 0, 1.60200e9}, // G1 FDMA
		"1P": {1, 0, 1.60200e9},
		"4A": {2, 0, 1.600995e9}, // G1a
		"4B": {3, 0, 1.600995e9},
		"4X": {4, 0, 1.600995e9},
		"2C": {5, 1, 1.24600e9}, // G2 FDMA
		"2P": {6, 1, 1.24600e9},
		"6A": {7, 1, 1.248060e9}, // G2a
		"6B": {8, 1, 1.248060e9},
		"6X": {9, 1, 1.248060e9},
		"3I": {10, 2, 1.202025e9}, // G3
		"3Q": {11, 2, 1.202025e9},
		"3X": {12, 2, 1.202025e9},
	},
	'C': {
		"2I": {0, 0, 1.561098e9}, // B1-2
		"2Q": {1, 0, 1.561098e9},
		"2X": {2, 0, 1.561098e9},
		"1D": {3, 0, 1.57542e9}, // B1
		"1P": {4, 0, 1.57542e9},
		"1X": {5, 0, 1.57542e9},
		"1A": {6, 0, 1.57542e9},
		"1N": {7, 0, 1.57542e9},
		"7I": {8, 1, 1.20714e9}, // B2b
		"7Q": {9, 1, 1.20714e9},
		"7X": {10, 1, 1.20714e9},
		"7D": {11, 1, 1.20714e9},
		"7P": {12, 1, 1.20714e9},
		"7Z": {13, 1, 1.20714e9},
		"6I": {14, 2, 1.26852e9}, // B3
		"6Q": {15, 2, 1.26852e9},
		"6X": {16, 2, 1.26852e9},
		"6A": {17, 2, 1.26852e9},
		"5D": {18, 3, 1.17645e9}, // B2a
		"5P": {19, 3, 1.17645e9},
		"5X": {20, 3, 1.17645e9},
		"8D": {21, 4, 1.191795e9}, // B2a+B2b
		"8P": {22, 4, 1.191795e9},
		"8X": {23, 4, 1.191795e9},
	},
	'S': {
		"1C": {0, 0, 1.57542e9}, // L1
		"5I": {1, 1, 1.17645e9}, // L5
		"5Q": {2, 1, 1.17645e9},
		"5X": {3, 1, 1.17645e9},
	},
}

var (
	reNavEpoch = regexp.MustCompile(`^([GJERCS])([0-9 ][0-9]) (\d{4}) ([ \d]{2}) ([ \d]{2}) ([ \d]{2}) ([ \d]{2}) ([ \d]{2})`)
	reNavValue = regexp.MustCompile(`[- +\d]{2}\.\d{12}[DE][-+]\d{2}`)
)

// Extract HEADER LABEL string from a header line
func getHeaderLabel(l string) string {
	if len(l) < 60 {
		return ""
	}
	return strings.TrimSpace(l[60:])
}

// checkVersion validates the "RINEX VERSION / TYPE" line
func checkVersion(line string, typ byte) (string, error) {
	if len(line) < 21 {
		return "", fmt.Errorf("%w: short version line", ErrMalformedHeader)
	}
	ver := strings.TrimSpace(line[:9])
	if !strings.HasPrefix(ver, "3.") {
		return "", fmt.Errorf("%w: unsupported RINEX version %s, 3.xx is required", ErrMalformedHeader, ver)
	}
	if line[20] != typ {
		return "", fmt.Errorf("%w: file type %c, %c expected", ErrMalformedHeader, line[20], typ)
	}
	return ver, nil
}

// Fix Beidou B1 observation codes in RINEX 3.02
func fixRnx302BeidouCode(la []string) []string {
	la2 := []string{}
	for _, a := range la {
		if a[1:3] == "1I" || a[1:3] == "1Q" || a[1:3] == "1X" {
			// In RINEX 3.04, B1(1561.098 MHz) observation codes {C|L|D|S}1{I|Q|X} have been changed to {C|L|D|S}2{I|Q|X}. Match 3.04.
			la2 = append(la2, a[:1]+"2"+a[2:3])
		} else {
			la2 = append(la2, a)
		}
	}
	return la2
}

// Read time, epoch flag and number of satellites from an epoch line
func getObsTime(l string) (gt GTime, flag int, ns int, err error) {
	la := strings.Fields(l)
	if len(la) < 9 {
		return gt, 0, 0, fmt.Errorf("not enough fields in epoch line: %s (%d)", l, len(la))
	}
	var v [5]int
	for i := range v {
		if v[i], err = strconv.Atoi(la[i+1]); err != nil {
			return gt, 0, 0, fmt.Errorf("invalid epoch line: %s: %w", l, err)
		}
	}
	sec, err := strconv.ParseFloat(la[6], 64)
	if err != nil {
		return gt, 0, 0, fmt.Errorf("invalid seconds in epoch line: %s: %w", l, err)
	}
	if flag, err = strconv.Atoi(la[7]); err != nil {
		return gt, 0, 0, fmt.Errorf("invalid epoch flag: %s: %w", l, err)
	}
	if ns, err = strconv.Atoi(la[8]); err != nil {
		return gt, 0, 0, fmt.Errorf("invalid number of satellites: %s: %w", l, err)
	}
	isec := math.Floor(sec)
	nsec := int(math.Round((sec - isec) * 1e9))
	t := time.Date(v[0], time.Month(v[1]), v[2], v[3], v[4], int(isec), nsec, time.UTC)
	return *NewGTime(t), flag, ns, nil
}

// Set values according to observation code
func setValObsS(val float64, lli byte, sys SysType, code CodeType, out *ObsS) {
	a, ok := CODE_ASSIGNS[sys][code.NA()]
	if !ok || a.freqIdx >= NFREQ {
		return
	}
	if out.Freq[a.freqIdx] != 0 && out.Code[a.freqIdx] != code.NA() {
		// Keep the value of a higher priority code already written
		if b := CODE_ASSIGNS[sys][out.Code[a.freqIdx]]; a.priority > b.priority {
			return
		}
	}
	out.Freq[a.freqIdx] = a.freq
	if lli > 0 {
		out.LLI[a.freqIdx] = lli
	}
	out.Code[a.freqIdx] = code.NA()
	switch code.T() {
	case 'C':
		out.Pr[a.freqIdx] = val
	case 'L':
		out.Cp[a.freqIdx] = val
	case 'D':
		out.Dp[a.freqIdx] = val
	case 'S':
		out.Sn[a.freqIdx] = val
	}
}

// Read each observation value from an observation data line
func getObsData(l string, oc map[SysType][]CodeType) (SatType, *ObsS, error) {
	if len(l) < 3 {
		return "", nil, fmt.Errorf("short observation line: %q", l)
	}
	sys := SysType(l[0])
	if !sys.IsValid() {
		return "", nil, fmt.Errorf("unknown satellite system, '%c'", sys)
	}
	num, err := strconv.Atoi(strings.TrimSpace(l[1:3]))
	if err != nil {
		return "", nil, fmt.Errorf("invalid satellite number: %q", l[:3])
	}
	sat := NewSatType(sys, num)
	n := len(oc[sys])
	if len(l) < n*16+3 { // Fill in blanks if omitted to end of line
		l = l + strings.Repeat(" ", n*16+3-len(l))
	}
	obss := NewObsS(sys)
	for i, code := range oc[sys] {
		j := 3 + 16*i
		v, err := strconv.ParseFloat(strings.TrimSpace(l[j:j+14]), 64)
		if err != nil {
			continue
		}
		lli, err := strconv.ParseUint(strings.TrimSpace(l[j+14:j+15]), 10, 8)
		if err != nil {
			lli = 0
		}
		setValObsS(v, byte(lli), sys, code, obss)
	}
	return sat, obss, nil
}

// ObsReader streams the epochs of a RINEX 3 observation file. It implements
// EpochSource.
type ObsReader struct {
	Logger *slog.Logger
	s      *bufio.Scanner
	ver    string
	codes  map[SysType][]CodeType
	last   *GTime
}

// NewObsReader reads the header of an observation file. Epochs are read on
// demand by NextEpoch.
func NewObsReader(r io.Reader) (*ObsReader, error) {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	p := &ObsReader{
		s: s,
		codes: map[SysType][]CodeType{
			'G': {}, 'J': {}, 'E': {}, 'R': {}, 'C': {}, 'S': {},
		},
	}
	if err := p.readHeader(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *ObsReader) readHeader() error {
	var cur SysType // System of a continued "SYS / # / OBS TYPES" line
	for p.s.Scan() {
		line := p.s.Text()
		switch getHeaderLabel(line) {
		case "RINEX VERSION / TYPE":
			ver, err := checkVersion(line, 'O')
			if err != nil {
				return err
			}
			p.ver = ver
		case "SYS / # / OBS TYPES":
			if line[0] != ' ' {
				cur = SysType(line[0])
			}
			if _, ok := p.codes[cur]; !ok {
				continue
			}
			la := strings.Fields(line[6:60])
			if p.ver == "3.02" && cur == 'C' {
				la = fixRnx302BeidouCode(la)
			}
			for _, code := range la {
				p.codes[cur] = append(p.codes[cur], CodeType(code))
			}
		case "END OF HEADER":
			if p.ver == "" {
				return fmt.Errorf("%w: no RINEX VERSION / TYPE line", ErrMalformedHeader)
			}
			return nil
		}
	}
	if err := p.s.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w: END OF HEADER not found", ErrMalformedHeader)
}

// Codes returns the observation codes declared in the header per system.
func (p *ObsReader) Codes() map[SysType][]CodeType {
	return p.codes
}

func (p *ObsReader) Version() string {
	return p.ver
}

// NextEpoch returns the next observation epoch, or ErrEndOfData at the end of
// the file. Event records and epochs not later than the previous one are
// skipped.
func (p *ObsReader) NextEpoch() (*ObsE, error) {
	log := orDiscard(p.Logger)
	for p.s.Scan() {
		line := p.s.Text()
		if len(line) == 0 || line[0] != '>' {
			continue
		}
		t, flag, ns, err := getObsTime(line)
		if err != nil {
			log.Warn("epoch line skipped", "err", err)
			continue
		}
		if flag > 1 { // Event records are followed by ns header lines
			for i := 0; i < ns && p.s.Scan(); i++ {
			}
			continue
		}
		obse := NewObsE(t)
		for i := 0; i < ns && p.s.Scan(); i++ {
			sat, obss, err := getObsData(p.s.Text(), p.codes)
			if err != nil {
				log.Warn("observation line skipped", "time", t, "err", err)
				continue
			}
			obse.Set(sat, obss)
		}
		if p.last != nil && !p.last.Less(t, false) {
			log.Warn("epoch out of order or duplicated", "time", t)
			continue
		}
		p.last = &obse.Time
		if len(obse.Sats) == 0 {
			continue
		}
		return obse, nil
	}
	if err := p.s.Err(); err != nil {
		return nil, err
	}
	return nil, ErrEndOfData
}

// Read satellite name and ToC from a navigation data epoch line
func getNavTime(l string) (gt GTime, sat SatType, err error) {
	ms := reNavEpoch.FindStringSubmatch(l)
	if ms == nil {
		return gt, sat, fmt.Errorf("regexp match failed. l=%s", l)
	}
	sys := SysType(ms[1][0])
	var v [7]int
	for i := range v {
		if v[i], err = strconv.Atoi(strings.TrimSpace(ms[i+2])); err != nil {
			return gt, sat, err
		}
	}
	sat = NewSatType(sys, v[0])
	if sys == 'C' {
		v[6] += 14 // BDT -> GPST
	}
	gt = *NewGTime(time.Date(v[1], time.Month(v[2]), v[3], v[4], v[5], v[6], 0, time.UTC))
	return
}

// Keep week-second values within half a week of a reference time
func adjWeek(t, ref GTime) GTime {
	if t.Sec-ref.Sec < -302400 {
		t.Sec += 604800
	} else if t.Sec-ref.Sec > 302400 {
		t.Sec -= 604800
	}
	return t
}

// LoadNav reads a RINEX 3 navigation file into the store. SBAS records are
// skipped.
func (s *EphemerisStore) LoadNav(r io.Reader) error {
	var eph *Ephe
	var sys SysType
	lineCount := 0
	headerDone := false

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()

		if !headerDone {
			switch getHeaderLabel(line) {
			case "RINEX VERSION / TYPE":
				if _, err := checkVersion(line, 'N'); err != nil {
					return err
				}
			case "END OF HEADER":
				headerDone = true
			}
			continue
		}

		if !reNavValue.MatchString(line) {
			continue
		}
		if line[0] != ' ' {
			sys, eph = SysType(line[0]), nil
			if !sys.IsValid() || sys == 'S' || len(line) < 80 {
				continue
			}
			var err error
			eph = &Ephe{}
			if eph.Toc, eph.Sat, err = getNavTime(line); err != nil {
				return fmt.Errorf("failed to read time of clock in navigation message: %w", err)
			}
			setNavClock(eph, line)
			lineCount = 0
			continue
		}
		if eph == nil {
			continue
		}
		if len(line) < 80 {
			line = line + strings.Repeat(" ", 80-len(line))
		}
		v := [4]float64{parseFloat(line[4:23]), parseFloat(line[23:42]), parseFloat(line[42:61]), parseFloat(line[61:80])}
		lineCount++
		var done bool
		if sys == 'R' {
			done = setGloOrbit(eph, lineCount, v)
		} else {
			done = setKeplerOrbit(eph, lineCount, v)
		}
		if done {
			s.Add(eph)
			eph = nil
		}
	}
	return sc.Err()
}

// Fill clock parameters from the first line of a record
func setNavClock(eph *Ephe, line string) {
	switch eph.Sat.Sys() {
	case 'G', 'J', 'E', 'C':
		eph.Af0 = parseFloat(line[23:42])
		eph.Af1 = parseFloat(line[42:61])
		eph.Af2 = parseFloat(line[61:80])
	case 'R':
		eph.TauN = -parseFloat(line[23:42])
		eph.GammaN = parseFloat(line[42:61])
		toc15 := GTime{Week: eph.Toc.Week, Sec: math.Floor((eph.Toc.Sec+450)/900) * 900}
		dow := math.Floor(eph.Toc.Sec / 86400.0)
		tod := math.Mod(parseFloat(line[61:80]), 86400)
		eph.Tot = GTime{Week: eph.Toc.Week, Sec: tod + dow*86400}
		if eph.Tot.Sec-toc15.Sec < -43200 {
			eph.Tot.Sec += 86400
		} else if eph.Tot.Sec-toc15.Sec > 43200 {
			eph.Tot.Sec -= 86400
		}
		// GLONASS time is UTC. Toe is rounded to 15 minutes as RTKLIB does.
		eph.Toe = GTime{Week: toc15.Week, Sec: toc15.Sec + LS}
		eph.Tot = GTime{Week: eph.Tot.Week, Sec: eph.Tot.Sec + LS}
		eph.Iode = int(math.Mod(eph.Toc.Sec+10800.0, 86400.0)/900.0 + 0.5)
	}
}

// Fill broadcast orbit line n of a GPS/QZSS/Galileo/BeiDou record. Reports
// whether the record is complete.
func setKeplerOrbit(eph *Ephe, n int, v [4]float64) bool {
	sys := eph.Sat.Sys()
	switch n {
	case 1:
		eph.Iode = int(v[0])
		eph.Crs = v[1]
		eph.DeltaN = v[2]
		eph.M0 = v[3]
	case 2:
		eph.Cuc = v[0]
		eph.Ecc = v[1]
		eph.Cus = v[2]
		eph.SqrtA = v[3]
	case 3:
		// Week is not read yet
		eph.Toe = GTime{Week: eph.Toc.Week, Sec: v[0]}
		if sys == 'C' {
			eph.Toe.Sec += 14
		}
		eph.Cic = v[1]
		eph.Omega0 = v[2]
		eph.Cis = v[3]
	case 4:
		eph.I0 = v[0]
		eph.Crc = v[1]
		eph.Omega = v[2]
		eph.OmegaD = v[3]
	case 5:
		eph.Idot = v[0]
		eph.Code = int(v[1])
		eph.Week = int(v[2])
		if sys == 'C' {
			eph.Week += 1356 // BDT Week -> GPS Week
		}
		eph.Toe.Week = eph.Week
		eph.Toe = adjWeek(eph.Toe, eph.Toc)
		eph.Flag = int(v[3])
	case 6:
		if sys != 'E' {
			eph.Sva = getURAIndex(v[0])
		} else {
			eph.Sva = getSISAIndex(v[0])
		}
		eph.Svh = int(v[1])
		eph.Tgd = v[2]
		eph.Iodc = int(v[3])
		eph.Tgd2 = v[3]
	case 7:
		eph.Tot = GTime{Week: eph.Week, Sec: v[0]}
		if sys == 'C' {
			eph.Tot.Sec += 14
		}
		eph.Tot = adjWeek(eph.Tot, eph.Toc)
		switch sys {
		case 'G':
			eph.Fit = v[1]
		case 'J':
			if v[1] == 0.0 {
				eph.Fit = 1
			} else {
				eph.Fit = 2
			}
		case 'C':
			eph.Iodc = int(v[1])
		}
		return true
	}
	return false
}

// Fill broadcast orbit line n of a GLONASS record. Reports whether the record
// is complete.
func setGloOrbit(eph *Ephe, n int, v [4]float64) bool {
	switch n {
	case 1:
		eph.PosX, eph.VecX, eph.AccX = v[0]*1000, v[1]*1000, v[2]*1000
		eph.Svh = int(v[3])
	case 2:
		eph.PosY, eph.VecY, eph.AccY = v[0]*1000, v[1]*1000, v[2]*1000
		eph.FreqN = int(v[3])
		if eph.FreqN > 128 {
			eph.FreqN -= 256
		}
	case 3:
		eph.PosZ, eph.VecZ, eph.AccZ = v[0]*1000, v[1]*1000, v[2]*1000
		eph.Age = int(v[3])
		return true
	}
	return false
}

// Read real values by absorbing variations in exponential notation within RINEX files
func parseFloat(str string) float64 {
	s := strings.TrimSpace(str)
	if strings.ContainsAny(s, "Dd") {
		s = strings.Replace(s, "D", "E", 1)
		s = strings.Replace(s, "d", "e", 1)
	}
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// URA index of a user range accuracy [m]
func getURAIndex(x float64) int {
	limits := [...]float64{2.4, 3.4, 4.85, 6.85, 9.65, 13.65, 24.0, 48.0, 96.0, 192.0, 384.0, 768.0, 1536.0, 3072.0, 6144.0}
	if x <= 0 {
		return 15
	}
	for i, l := range limits {
		if x <= l {
			return i
		}
	}
	return 15
}

// Return Galileo SISA index for specified value
func getSISAIndex(x float64) int {
	if x >= 0 && x <= 0.5 {
		return int(x / 0.01)
	} else if x > 0.5 && x <= 1.0 {
		return int((x-0.5)/0.02) + 50
	} else if x > 1.0 && x <= 2.0 {
		return int((x-1.0)/0.04) + 75
	} else if x > 2.0 && x <= 6.0 {
		return int((x-2.0)/0.16) + 100
	} else {
		return 255
	}
}

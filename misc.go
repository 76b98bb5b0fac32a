// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.12
//

package goraim

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"
)

// ------------------------------------
// Mini functions
// ------------------------------------

func SQ(x float64) float64 {
	return x * x
}

func EucDist(a, b *PosXYZ) float64 {
	return math.Sqrt(SQ(a.X-b.X) + SQ(a.Y-b.Y) + SQ(a.Z-b.Z))
}

func DistDx(a, b *PosXYZ) float64 {
	return (b.X - a.X) / EucDist(a, b)
}

func DistDy(a, b *PosXYZ) float64 {
	return (b.Y - a.Y) / EucDist(a, b)
}

func DistDz(a, b *PosXYZ) float64 {
	return (b.Z - a.Z) / EucDist(a, b)
}

func ToDeg(rad float64) float64 {
	return rad / PI * 180.0
}

func ToRad(deg float64) float64 {
	return deg / 180.0 * PI
}

// ------------------------------------
// Debug logging
// ------------------------------------

// LevelTrace is below slog.LevelDebug and carries matrix dumps.
const LevelTrace = slog.LevelDebug - 4

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// orDiscard returns l, or a logger that drops everything when l is nil.
func orDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return discardLogger
	}
	return l
}

// logMat writes a matrix at trace level.
func logMat(l *slog.Logger, name string, X mat.Matrix) {
	if !l.Enabled(context.Background(), LevelTrace) {
		return
	}
	r, c := X.Dims()
	fa := mat.Formatted(X, mat.Prefix(""), mat.Squeeze())
	l.Log(context.Background(), LevelTrace, name, slog.String("dims", fmt.Sprintf("%d x %d", r, c)), slog.String("value", fmt.Sprintf("%v", fa)))
}

// ------------------------------------
// For command argument parsing
// ------------------------------------

type SysVar []SysType

func (p *SysVar) Set(s string) error {
	*p = []SysType{}
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if len(a) == 0 {
			continue
		}
		sys := SysType(a[0])
		if !sys.IsValid() {
			return fmt.Errorf("unknown satellite system %q", a)
		}
		*p = append(*p, sys)
	}
	return nil
}

func (p *SysVar) String() string {
	a := make([]string, 0, len(*p))
	for _, s := range *p {
		a = append(a, string(s))
	}
	return strings.Join(a, ",")
}

func (p *SysVar) Type() string {
	return "systems"
}

func (p *SysVar) Contains(s SysType) bool {
	for _, v := range *p {
		if s == v {
			return true
		}
	}
	return false
}

type SatVar []SatType

func (p *SatVar) Set(s string) error {
	*p = []SatType{}
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if len(a) == 0 {
			continue
		}
		*p = append(*p, SatType(a))
	}
	return nil
}

func (p *SatVar) String() string {
	a := make([]string, 0, len(*p))
	for _, s := range *p {
		a = append(a, string(s))
	}
	return strings.Join(a, ",")
}

func (p *SatVar) Type() string {
	return "sats"
}

// Date and Time Parser (for command arguments)
type TimeStr time.Time

const timeStrLayout = "2006/01/02 15:04:05"

func (p *TimeStr) MarshalText() (text []byte, err error) {
	return []byte(time.Time(*p).Format(timeStrLayout)), nil
}

func (p *TimeStr) UnmarshalText(text []byte) error {
	t, err := time.Parse(timeStrLayout, string(text))
	if err != nil {
		return err
	}
	*p = TimeStr(t)
	return nil
}

func (p *TimeStr) Set(s string) error {
	return p.UnmarshalText([]byte(s))
}

func (p *TimeStr) String() string {
	if time.Time(*p).IsZero() {
		return ""
	}
	return time.Time(*p).Format(timeStrLayout)
}

func (p *TimeStr) Type() string {
	return "time"
}

func NewTimeStr(t time.Time) *TimeStr {
	m := new(TimeStr)
	*m = TimeStr(t)
	return m
}

// ------------------------------------
// Others
// ------------------------------------

// Sort the list of satellite names
func Sorted(s []SatType) []SatType {
	s2 := make([]SatType, len(s))
	copy(s2, s)
	m := map[SysType]int{'G': 0, 'J': 1, 'E': 2, 'R': 3, 'C': 4, 'S': 5}
	sort.Slice(s2, func(i, j int) bool {
		if m[s2[i].Sys()] == m[s2[j].Sys()] {
			return s2[i] < s2[j]
		}
		return m[s2[i].Sys()] < m[s2[j].Sys()]
	})
	return s2
}

// Chi-squared test (α=0.001)
func ChiSqr(i int) float64 {
	v := [...]float64{
		10.8, 13.8, 16.3, 18.5, 20.5, 22.5, 24.3, 26.1, 27.9, 29.6,
		31.3, 32.9, 34.5, 36.1, 37.7, 39.3, 40.8, 42.3, 43.8, 45.3,
		46.8, 48.3, 49.7, 51.2, 52.6, 54.1, 55.5, 56.9, 58.3, 59.7,
		61.1, 62.5, 63.9, 65.2, 66.6, 68.0, 69.3, 70.7, 72.1, 73.4,
		74.7, 76.0, 77.3, 78.6, 80.0, 81.3, 82.6, 84.0, 85.4, 86.7,
		88.0, 89.3, 90.6, 91.9, 93.3, 94.7, 96.0, 97.4, 98.7, 100,
		101, 102, 103, 104, 105, 107, 108, 109, 110, 112,
		113, 114, 115, 116, 118, 119, 120, 122, 123, 125,
		126, 127, 128, 129, 131, 132, 133, 134, 135, 137,
		138, 139, 140, 142, 143, 144, 145, 147, 148, 149}
	if i >= 0 && i < len(v) {
		return v[i]
	}
	return 0
}

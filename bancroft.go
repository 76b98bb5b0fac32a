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

	"gonum.org/v1/gonum/mat"
)

// Bancroft solves the pseudorange equations in closed form (Bancroft, 1985).
// sats are satellite positions already rotated for the signal flight time and
// pr the pseudoranges corrected for known biases. Of the two algebraic
// solutions, the one closer to the Earth's surface is returned together with
// the receiver clock bias [m].
func Bancroft(sats []PosXYZ, pr []float64) (PosXYZ, float64, error) {
	n := len(sats)
	if n < 4 || len(pr) != n {
		return PosXYZ{}, 0, fmt.Errorf("bancroft: need at least 4 satellites, got %d", n)
	}

	// A = (a1, ..., an)', r = (<ai,ai>/2), i0 = (1, ..., 1)'
	A := mat.NewDense(n, 4, nil)
	r := mat.NewVecDense(n, nil)
	i0 := mat.NewVecDense(n, nil)
	for i, s := range sats {
		A.SetRow(i, []float64{s.X, s.Y, s.Z, pr[i]})
		r.SetVec(i, 0.5*lorentz([4]float64{s.X, s.Y, s.Z, pr[i]}, [4]float64{s.X, s.Y, s.Z, pr[i]}))
		i0.SetVec(i, 1)
	}

	// B = (A'A)^-1 A'
	var AtA, AtAi, B mat.Dense
	AtA.Mul(A.T(), A)
	if err := AtAi.Inverse(&AtA); err != nil {
		return PosXYZ{}, 0, fmt.Errorf("bancroft: %w", err)
	}
	B.Mul(&AtAi, A.T())

	var u, v mat.VecDense
	u.MulVec(&B, i0)
	v.MulVec(&B, r)
	uu := [4]float64{u.AtVec(0), u.AtVec(1), u.AtVec(2), u.AtVec(3)}
	vv := [4]float64{v.AtVec(0), v.AtVec(1), v.AtVec(2), v.AtVec(3)}

	// <u,u>lam^2 + 2(<u,v>-1)lam + <v,v> = 0
	a := lorentz(uu, uu)
	b := lorentz(uu, vv) - 1
	c := lorentz(vv, vv)
	disc := b*b - a*c
	if disc < 0 || a == 0 {
		return PosXYZ{}, 0, fmt.Errorf("bancroft: no real solution")
	}
	best := PosXYZ{}
	bestClk := 0.0
	bestRes := math.Inf(1)
	for _, lam := range []float64{(-b + math.Sqrt(disc)) / a, (-b - math.Sqrt(disc)) / a} {
		p := PosXYZ{X: lam*uu[0] + vv[0], Y: lam*uu[1] + vv[1], Z: lam*uu[2] + vv[2]}
		if res := math.Abs(p.Norm() - Re); res < bestRes {
			best = p
			bestClk = -(lam*uu[3] + vv[3])
			bestRes = res
		}
	}
	return best, bestClk, nil
}

// Minkowski product <a,b> = a1*b1 + a2*b2 + a3*b3 - a4*b4
func lorentz(a, b [4]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] - a[3]*b[3]
}

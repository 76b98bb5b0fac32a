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

// Solve the observation equation using weighted least squares
// - dx = (G^t W G)^-1 G^t W dr
// - Return the error covariance matrix (G^t W G)^-1 as cov
func SolveLS(G mat.Matrix, dr mat.Vector, W mat.Matrix) (dx *mat.VecDense, cov *mat.Dense, err error) {

	n1, m1 := G.Dims()
	n2, m2 := W.Dims()
	if n1 != n2 {
		return nil, nil, fmt.Errorf("invalid matrix size. G^T(%d x %d), W(%d x %d)", m1, n1, n2, m2)
	}
	if l1 := dr.Len(); l1 != m2 {
		return nil, nil, fmt.Errorf("invalid matrix size. W(%d x %d), dr(%d x 1)", n2, m2, l1)
	}
	if n1 < m1 {
		return nil, nil, fmt.Errorf("underdetermined system: %d equations < %d unknowns", n1, m1)
	}

	// A = G^t W G
	var WG mat.Dense
	WG.Mul(W, G)
	var A mat.Dense
	A.Mul(G.T(), &WG)

	// b = G^t W dr
	var GtW mat.Dense
	GtW.Mul(G.T(), W)
	var b mat.VecDense
	b.MulVec(&GtW, dr)

	// Covariance (G^T W G)^-1, which also gives x = A^-1 b
	var c mat.Dense
	if err = c.Inverse(&A); err != nil {
		return nil, nil, err
	}
	var x mat.VecDense
	x.MulVec(&c, &b)
	return &x, &c, nil
}

// Dops returns gdop, pdop, hdop and vdop for a design matrix whose first
// three columns are the line-of-sight components in a local ENU frame and
// whose fourth column is the clock term.
func Dops(G mat.Matrix) (map[string]float64, error) {
	var GtG mat.Dense
	GtG.Mul(G.T(), G)
	var Q mat.Dense
	if err := Q.Inverse(&GtG); err != nil {
		return nil, fmt.Errorf("failed to calculate inverse of matrix, G^T G: %w", err)
	}
	return map[string]float64{
		"gdop": math.Sqrt(Q.At(0, 0) + Q.At(1, 1) + Q.At(2, 2) + Q.At(3, 3)),
		"pdop": math.Sqrt(Q.At(0, 0) + Q.At(1, 1) + Q.At(2, 2)),
		"hdop": math.Sqrt(Q.At(0, 0) + Q.At(1, 1)),
		"vdop": math.Sqrt(Q.At(2, 2)),
	}, nil
}

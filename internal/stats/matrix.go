package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// pivotTolerance is the smallest pivot magnitude accepted during inversion.
const pivotTolerance = 1e-10

// invert returns the inverse of a square matrix using Gauss-Jordan elimination with
// partial pivoting. Suitable for the small normal matrices of OLS; no QR/SVD fallback.
func invert(a mat.Matrix) (*mat.Dense, error) {
	n, c := a.Dims()
	if n != c {
		return nil, fmt.Errorf("cannot invert %dx%d matrix: not square", n, c)
	}

	// Augmented [A | I]
	aug := mat.NewDense(n, 2*n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			aug.Set(i, j, a.At(i, j))
		}
		aug.Set(i, n+i, 1)
	}

	for col := 0; col < n; col++ {
		// 1. Partial pivot: largest magnitude in this column among remaining rows
		pivotRow := col
		best := math.Abs(aug.At(col, col))
		for r := col + 1; r < n; r++ {
			if v := math.Abs(aug.At(r, col)); v > best {
				best = v
				pivotRow = r
			}
		}
		if best < pivotTolerance {
			return nil, fmt.Errorf("%w: pivot %.3g in column %d below tolerance", ErrSingularMatrix, best, col)
		}
		if pivotRow != col {
			swapRows(aug, pivotRow, col)
		}

		// 2. Normalize pivot row
		p := aug.At(col, col)
		for j := 0; j < 2*n; j++ {
			aug.Set(col, j, aug.At(col, j)/p)
		}

		// 3. Eliminate the column from every other row
		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			f := aug.At(r, col)
			if f == 0 {
				continue
			}
			for j := 0; j < 2*n; j++ {
				aug.Set(r, j, aug.At(r, j)-f*aug.At(col, j))
			}
		}
	}

	inv := mat.NewDense(n, n, nil)
	inv.Copy(aug.Slice(0, n, n, 2*n))
	return inv, nil
}

func swapRows(m *mat.Dense, i, j int) {
	_, c := m.Dims()
	for k := 0; k < c; k++ {
		vi, vj := m.At(i, k), m.At(j, k)
		m.Set(i, k, vj)
		m.Set(j, k, vi)
	}
}

// Package distance computes the mixed categorical/numeric metric between
// points and the dense pairwise matrix the neighborhood phase scans.
package distance

import (
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/hed1ad/densityguard/pkg/dataset"
)

// Sentinel fills the diagonal of a Matrix. It is larger than any real
// distance so a point never counts as its own nearest neighbor.
const Sentinel = math.MaxFloat64

// ErrDataIntegrity is returned when two points cannot be compared.
var ErrDataIntegrity = errors.New("data integrity violation")

// ErrDimensionMismatch reports points whose attribute vectors differ in length.
// It unwraps to ErrDataIntegrity.
type ErrDimensionMismatch struct {
	Kind     string // "categorical" or "numeric"
	P, Q     int
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("%s attribute mismatch between points %d and %d: expected %d, got %d",
		e.Kind, e.P, e.Q, e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return ErrDataIntegrity }

// Distance returns sqrt(c + s) where c counts positional categorical
// mismatches and s sums squared positional numeric differences.
func Distance(p, q dataset.Point) (float64, error) {
	if len(p.Categorical) != len(q.Categorical) {
		return 0, &ErrDimensionMismatch{
			Kind: "categorical", P: p.ID, Q: q.ID,
			Expected: len(p.Categorical), Actual: len(q.Categorical),
		}
	}
	if len(p.Numeric) != len(q.Numeric) {
		return 0, &ErrDimensionMismatch{
			Kind: "numeric", P: p.ID, Q: q.ID,
			Expected: len(p.Numeric), Actual: len(q.Numeric),
		}
	}

	var sum float64
	for i, v := range p.Categorical {
		if v != q.Categorical[i] {
			sum++
		}
	}
	for i, v := range p.Numeric {
		d := float64(v - q.Numeric[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Matrix is a dense, symmetric n×n distance matrix with Sentinel on the diagonal.
type Matrix struct {
	n   int
	sym *mat.SymDense
}

// NewMatrix computes every pairwise distance of ds. Rows are distributed over
// at most workers goroutines (GOMAXPROCS when workers <= 0); the call returns
// only after every row is complete.
func NewMatrix(ds *dataset.Dataset, workers int) (*Matrix, error) {
	n := ds.Len()
	m := &Matrix{n: n}
	if n == 0 {
		return m, nil
	}
	m.sym = mat.NewSymDense(n, nil)

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var g errgroup.Group
	g.SetLimit(workers)

	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			p := ds.At(i)
			// Each row owns the upper-triangle cells (i, j>=i).
			m.sym.SetSym(i, i, Sentinel)
			for j := i + 1; j < n; j++ {
				d, err := Distance(p, ds.At(j))
				if err != nil {
					return err
				}
				m.sym.SetSym(i, j, d)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("distance matrix: %w", err)
	}
	return m, nil
}

// Len returns n.
func (m *Matrix) Len() int {
	return m.n
}

// At returns the distance between points i and j.
func (m *Matrix) At(i, j int) float64 {
	return m.sym.At(i, j)
}

// Row copies row i into dst, growing it if needed, and returns it.
func (m *Matrix) Row(i int, dst []float64) []float64 {
	if cap(dst) < m.n {
		dst = make([]float64, m.n)
	}
	dst = dst[:m.n]
	for j := range dst {
		dst[j] = m.sym.At(i, j)
	}
	return dst
}

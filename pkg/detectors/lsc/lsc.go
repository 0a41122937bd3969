// Package lsc implements the local sparsity coefficient with candidate pruning.
//
// Every point gets a local sparsity ratio (neighborhood size over total
// neighbor distance) and a pruning factor aggregated from its neighbors'
// neighborhood statistics. Only points whose ratio falls below their pruning
// factor are candidates; the coefficient is computed for candidates alone and
// stays 0 for everyone else.
package lsc

import (
	"math"
	"runtime"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hed1ad/densityguard/pkg/dataset"
	"github.com/hed1ad/densityguard/pkg/detectors"
	"github.com/hed1ad/densityguard/pkg/distance"
	"github.com/hed1ad/densityguard/pkg/neighborhood"
)

// LSC scores points by their local sparsity coefficient.
type LSC struct {
	workers int
}

// Result holds every table produced by one LSC run, indexed by point ID.
type Result struct {
	Graph         *neighborhood.Graph
	SparsityRatio []float64
	PruningFactor []float64
	// Candidates holds the IDs that passed the candidate filter.
	Candidates *roaring.Bitmap
	// RatioSum is the sum of neighbor sparsity ratios over the point's own,
	// populated for candidates only.
	RatioSum []float64
	LSC      []float64
}

// IsCandidate reports whether point id passed the candidate filter.
func (r *Result) IsCandidate(id int) bool {
	return r.Candidates.Contains(uint32(id))
}

// Option configures an LSC detector.
type Option func(*LSC)

// WithWorkers bounds the goroutines used for the distance and neighborhood phases.
func WithWorkers(n int) Option {
	return func(l *LSC) {
		l.workers = n
	}
}

// New creates an LSC detector with the given options.
func New(opts ...Option) *LSC {
	l := &LSC{
		workers: runtime.GOMAXPROCS(0),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Algorithm implements detectors.Detector.
func (l *LSC) Algorithm() detectors.Algorithm {
	return detectors.LSC
}

// Score implements detectors.Detector.
func (l *LSC) Score(ds *dataset.Dataset) ([]float64, error) {
	res, err := l.Compute(ds)
	if err != nil {
		return nil, err
	}
	return res.LSC, nil
}

// Compute runs every LSC phase over ds. Pruning factors read the neighborhood
// statistics of other points, so they are computed only after the
// neighborhood graph is complete for the whole dataset.
func (l *LSC) Compute(ds *dataset.Dataset) (*Result, error) {
	m, err := distance.NewMatrix(ds, l.workers)
	if err != nil {
		return nil, err
	}
	g := neighborhood.Build(m, l.workers)

	res := &Result{Graph: g}
	res.SparsityRatio = SparsityRatios(g)
	res.PruningFactor = PruningFactors(g)
	res.Candidates = Candidates(res.SparsityRatio, res.PruningFactor)
	res.RatioSum, res.LSC = Coefficients(g, res.SparsityRatio, res.Candidates)
	return res, nil
}

// SparsityRatios computes |N(p)| / total neighbor distance, or +Inf when the
// total is zero.
func SparsityRatios(g *neighborhood.Graph) []float64 {
	lsr := make([]float64, g.Len())
	for i := range lsr {
		if g.DistanceTotal[i] == 0 {
			lsr[i] = math.Inf(1)
			continue
		}
		lsr[i] = float64(g.Size[i]) / g.DistanceTotal[i]
	}
	return lsr
}

// PruningFactors computes, for each point, the sum of its neighbors'
// neighborhood sizes over the sum of their neighbor distance totals, or +Inf
// when the distance sum is zero.
func PruningFactors(g *neighborhood.Graph) []float64 {
	pf := make([]float64, g.Len())
	for i, neighbors := range g.Neighbors {
		var sizes, totals float64
		for _, o := range neighbors {
			sizes += float64(g.Size[o.Index])
			totals += g.DistanceTotal[o.Index]
		}
		if totals == 0 {
			pf[i] = math.Inf(1)
			continue
		}
		pf[i] = sizes / totals
	}
	return pf
}

// Candidates returns the IDs p with lsr(p) < pf(p).
func Candidates(lsr, pf []float64) *roaring.Bitmap {
	c := roaring.New()
	for i := range lsr {
		if lsr[i] < pf[i] {
			c.Add(uint32(i))
		}
	}
	return c
}

// Coefficients computes LSC(p) as the mean of lsr(o)/lsr(p) over p's
// neighbors for every candidate p. Non-candidates keep 0 in both tables.
func Coefficients(g *neighborhood.Graph, lsr []float64, candidates *roaring.Bitmap) (ratioSum, lsc []float64) {
	ratioSum = make([]float64, g.Len())
	lsc = make([]float64, g.Len())

	it := candidates.Iterator()
	for it.HasNext() {
		i := int(it.Next())
		neighbors := g.Neighbors[i]
		if len(neighbors) == 0 {
			continue
		}

		var sum float64
		for _, o := range neighbors {
			sum += detectors.Ratio(lsr[o.Index], lsr[i])
		}
		ratioSum[i] = sum
		lsc[i] = sum / float64(len(neighbors))
	}
	return ratioSum, lsc
}

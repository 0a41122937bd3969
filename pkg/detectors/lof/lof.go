// Package lof implements the local outlier factor over k-distance neighborhoods.
package lof

import (
	"math"
	"runtime"

	"github.com/hed1ad/densityguard/pkg/dataset"
	"github.com/hed1ad/densityguard/pkg/detectors"
	"github.com/hed1ad/densityguard/pkg/distance"
	"github.com/hed1ad/densityguard/pkg/neighborhood"
)

// LOF scores points by comparing their local reachability density with
// the density of their neighbors.
type LOF struct {
	workers int
}

// Result holds every table produced by one LOF run, indexed by point ID.
type Result struct {
	Graph *neighborhood.Graph
	// Density is the local reachability density.
	Density []float64
	LOF     []float64
}

// Option configures a LOF detector.
type Option func(*LOF)

// WithWorkers bounds the goroutines used for the distance and neighborhood phases.
func WithWorkers(n int) Option {
	return func(l *LOF) {
		l.workers = n
	}
}

// New creates a LOF detector with the given options.
func New(opts ...Option) *LOF {
	l := &LOF{
		workers: runtime.GOMAXPROCS(0),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Algorithm implements detectors.Detector.
func (l *LOF) Algorithm() detectors.Algorithm {
	return detectors.LOF
}

// Score implements detectors.Detector.
func (l *LOF) Score(ds *dataset.Dataset) ([]float64, error) {
	res, err := l.Compute(ds)
	if err != nil {
		return nil, err
	}
	return res.LOF, nil
}

// Compute runs every LOF phase over ds. Each phase completes for all points
// before the next one starts.
func (l *LOF) Compute(ds *dataset.Dataset) (*Result, error) {
	m, err := distance.NewMatrix(ds, l.workers)
	if err != nil {
		return nil, err
	}
	g := neighborhood.Build(m, l.workers)

	res := &Result{Graph: g}
	res.Density = Densities(g)
	res.LOF = Factors(g, res.Density)
	return res, nil
}

// ReachDistance returns max(kdistance(o), trunc(d)). Only the raw distance is
// truncated toward zero; the neighbor's k-distance keeps full precision.
func ReachDistance(kdistO, d float64) float64 {
	return math.Max(math.Trunc(d), kdistO)
}

// Densities computes the local reachability density of every point:
// 1 / mean reachability distance over its neighborhood, or +Inf when the
// neighborhood is empty or the mean is zero.
func Densities(g *neighborhood.Graph) []float64 {
	density := make([]float64, g.Len())
	for i, neighbors := range g.Neighbors {
		if len(neighbors) == 0 {
			density[i] = math.Inf(1)
			continue
		}

		var sum float64
		for _, o := range neighbors {
			sum += ReachDistance(g.KDistance[o.Index], o.Distance)
		}
		mean := sum / float64(len(neighbors))
		if mean == 0 {
			density[i] = math.Inf(1)
			continue
		}
		density[i] = 1 / mean
	}
	return density
}

// Factors computes LOF(p) as the mean of density(o)/density(p) over p's
// neighbors. Points without neighbors score 1.
func Factors(g *neighborhood.Graph, density []float64) []float64 {
	factors := make([]float64, g.Len())
	for i, neighbors := range g.Neighbors {
		if len(neighbors) == 0 {
			factors[i] = 1
			continue
		}

		var sum float64
		for _, o := range neighbors {
			sum += detectors.Ratio(density[o.Index], density[i])
		}
		factors[i] = sum / float64(len(neighbors))
	}
	return factors
}

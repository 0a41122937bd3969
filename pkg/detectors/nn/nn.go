// Package nn ranks points by their k-distance, the simplest nearest-neighbor
// outlier score.
package nn

import (
	"runtime"

	"github.com/hed1ad/densityguard/pkg/dataset"
	"github.com/hed1ad/densityguard/pkg/detectors"
	"github.com/hed1ad/densityguard/pkg/distance"
	"github.com/hed1ad/densityguard/pkg/neighborhood"
)

// NN scores each point with its k-distance.
type NN struct {
	workers int
}

// Option configures an NN detector.
type Option func(*NN)

// WithWorkers bounds the goroutines used for the distance and neighborhood phases.
func WithWorkers(n int) Option {
	return func(d *NN) {
		d.workers = n
	}
}

// New creates an NN detector with the given options.
func New(opts ...Option) *NN {
	d := &NN{
		workers: runtime.GOMAXPROCS(0),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Algorithm implements detectors.Detector.
func (d *NN) Algorithm() detectors.Algorithm {
	return detectors.NN
}

// Score implements detectors.Detector.
func (d *NN) Score(ds *dataset.Dataset) ([]float64, error) {
	m, err := distance.NewMatrix(ds, d.workers)
	if err != nil {
		return nil, err
	}
	return neighborhood.Build(m, d.workers).KDistance, nil
}

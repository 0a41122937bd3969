// Package detectors provides density-based outlier scoring algorithms.
package detectors

import (
	"fmt"
	"math"
	"runtime"
	"strings"

	"github.com/hed1ad/densityguard/pkg/dataset"
)

// Algorithm identifies a scoring algorithm.
type Algorithm int

const (
	// LOF is the local outlier factor.
	LOF Algorithm = iota
	// LSC is the local sparsity coefficient.
	LSC
	// NN ranks points by their k-distance alone.
	NN
)

func (a Algorithm) String() string {
	switch a {
	case LOF:
		return "LOF"
	case LSC:
		return "LSC"
	case NN:
		return "NN"
	default:
		return fmt.Sprintf("Unknown(%d)", int(a))
	}
}

// ParseAlgorithm parses a case-insensitive algorithm name.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lof":
		return LOF, nil
	case "lsc":
		return LSC, nil
	case "nn":
		return NN, nil
	}
	return 0, fmt.Errorf("unknown algorithm %q", s)
}

// Detector is the common interface for all scoring algorithms.
type Detector interface {
	// Algorithm reports which score the detector produces.
	Algorithm() Algorithm

	// Score returns one score per point, indexed by point ID.
	// Higher scores indicate stronger outliers.
	Score(ds *dataset.Dataset) ([]float64, error)
}

// Config holds common configuration for detectors.
type Config struct {
	// Workers bounds the goroutines used by the per-point phases.
	Workers int
}

// DefaultConfig returns sensible defaults for detector configuration.
func DefaultConfig() Config {
	return Config{
		Workers: runtime.GOMAXPROCS(0),
	}
}

// Ratio divides a by b. It returns 1 when b is zero or both operands are
// infinite, meaning "no relative distinction".
func Ratio(a, b float64) float64 {
	if b == 0 || (math.IsInf(a, 0) && math.IsInf(b, 0)) {
		return 1
	}
	return a / b
}

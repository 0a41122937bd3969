// Package report ranks scored points and renders the threshold report.
package report

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hed1ad/densityguard/pkg/dataset"
	"github.com/hed1ad/densityguard/pkg/detectors"
)

// Banner lines that open the outlier and non-outlier regions of a report.
const (
	OutliersBanner    = "*****OUTLIERS*****"
	NonOutliersBanner = "*****NON-OUTLIERS*****"
)

// Mode selects which regions of the ranking are reported.
type Mode int

const (
	// All reports both regions.
	All Mode = iota
	// Outliers reports points scoring above the threshold.
	Outliers
	// Normal reports points scoring below the threshold.
	Normal
)

func (m Mode) String() string {
	switch m {
	case All:
		return "all"
	case Outliers:
		return "outliers"
	case Normal:
		return "normal"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// ParseMode accepts "o"/"outliers", "n"/"normal" and "a"/"all".
// The empty string selects All.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "a", "all":
		return All, nil
	case "o", "outliers":
		return Outliers, nil
	case "n", "normal":
		return Normal, nil
	}
	return 0, fmt.Errorf("unknown report mode %q", s)
}

// Options control how a ranking is partitioned.
type Options struct {
	Mode      Mode
	Threshold float64
	// HasThreshold is false when no threshold was configured; every point is
	// then reported in rank order without banners.
	HasThreshold bool
}

// Rank returns point indices ordered by score, highest first. The sort is
// stable, so equal scores keep their ID order.
func Rank(scores []float64) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	return order
}

// Report is a rendered report.
type Report struct {
	Lines []string
	// Rows counts every emitted point row; Outliers and Normal count the
	// rows of each region and stay 0 when no threshold is set.
	Rows     int
	Outliers int
	Normal   int
}

// Build ranks scores and renders the report lines: execution time, header,
// then banners and one row per reported point.
//
// A point scoring exactly the threshold belongs to neither region. In Outliers
// mode the walk stops at the first point below the threshold, which relies on
// the ranking being sorted.
func Build(ds *dataset.Dataset, alg detectors.Algorithm, scores []float64, elapsed time.Duration, opts Options) *Report {
	r := &Report{
		Lines: []string{
			fmt.Sprintf("Execution Time: %d", elapsed.Nanoseconds()),
			fmt.Sprintf("%s\tSrc IP\t\t\tTimestamp", alg),
		},
	}

	order := Rank(scores)
	if !opts.HasThreshold {
		for _, id := range order {
			r.Lines = append(r.Lines, Row(ds.At(id), scores[id]))
		}
		r.Rows = len(order)
		return r
	}

	th := opts.Threshold
	wantOutliers := opts.Mode == Outliers || opts.Mode == All
	wantNormal := opts.Mode == Normal || opts.Mode == All

	for _, id := range order {
		s := scores[id]
		if s > th && wantOutliers {
			if r.Outliers == 0 {
				r.Lines = append(r.Lines, OutliersBanner)
			}
			r.Lines = append(r.Lines, Row(ds.At(id), s))
			r.Outliers++
		}
		if s < th && wantNormal {
			if r.Normal == 0 {
				r.Lines = append(r.Lines, NonOutliersBanner)
			}
			r.Lines = append(r.Lines, Row(ds.At(id), s))
			r.Normal++
		}
		if s < th && opts.Mode == Outliers {
			break
		}
	}
	r.Rows = r.Outliers + r.Normal
	return r
}

// WriteTo writes every line to sink, stopping at the first error.
func (r *Report) WriteTo(sink Sink) error {
	for _, line := range r.Lines {
		if err := sink.WriteLine(line); err != nil {
			return err
		}
	}
	return nil
}

// Row formats one reported point as "<score>\t<key>\t<timestamp>".
func Row(p dataset.Point, score float64) string {
	return FormatScore(score) + "\t" + p.Label() + "\t" + p.Timestamp
}

// FormatScore truncates score toward zero. Infinite scores print as +Inf/-Inf.
func FormatScore(score float64) string {
	switch {
	case math.IsInf(score, 1):
		return "+Inf"
	case math.IsInf(score, -1):
		return "-Inf"
	}
	t := math.Trunc(score)
	if t == 0 {
		t = 0 // drop the sign of -0
	}
	return strconv.FormatFloat(t, 'f', 0, 64)
}

// Reporter emits reports to a single sink.
type Reporter struct {
	sink Sink
	opts Options
}

// NewReporter creates a Reporter writing to sink.
func NewReporter(sink Sink, opts Options) *Reporter {
	return &Reporter{sink: sink, opts: opts}
}

// Emit builds the report for scores and writes it to the sink. A sink error
// aborts the emission; scores are left untouched.
func (r *Reporter) Emit(ds *dataset.Dataset, alg detectors.Algorithm, scores []float64, elapsed time.Duration) error {
	rep := Build(ds, alg, scores, elapsed, r.opts)
	if err := rep.WriteTo(r.sink); err != nil {
		return fmt.Errorf("emit %s report: %w", alg, err)
	}
	return nil
}

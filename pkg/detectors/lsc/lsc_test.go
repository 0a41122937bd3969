package lsc

import (
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/densityguard/pkg/dataset"
	"github.com/hed1ad/densityguard/pkg/detectors"
	"github.com/hed1ad/densityguard/pkg/distance"
	"github.com/hed1ad/densityguard/pkg/report"
)

func TestNew(t *testing.T) {
	l := New()
	assert.Greater(t, l.workers, 0)
	assert.Equal(t, detectors.LSC, l.Algorithm())

	l = New(WithWorkers(5))
	assert.Equal(t, 5, l.workers)
}

func TestCompute(t *testing.T) {
	ds := points(0, 3, 1, 7, 2, 12, 4, 5, 40, 9)

	res, err := New(WithWorkers(3)).Compute(ds)
	require.NoError(t, err)

	assert.InDeltaSlice(t,
		[]float64{2.0 / 3, 1, 1, 0.5, 1, 0.2, 1, 0.6, 2.0 / 59, 0.4},
		res.SparsityRatio, 1e-12)
	assert.InDeltaSlice(t,
		[]float64{1, 1, 0.8, 0.5, 1, 0.5, 5.0 / 7, 0.75, 0.25, 5.0 / 19},
		res.PruningFactor, 1e-12)
	assert.Equal(t, []uint32{0, 5, 7, 8}, res.Candidates.ToArray())
	assert.InDeltaSlice(t,
		[]float64{1.5, 0, 0, 0, 0, 2.5, 0, 25.0 / 18, 8.85, 0},
		res.LSC, 1e-12)
	assert.InDelta(t, 3.0, res.RatioSum[0], 1e-12)
	assert.Equal(t, 0.0, res.RatioSum[1])
}

func TestCandidatePruning(t *testing.T) {
	ds := points(0, 3, 1, 7, 2, 12, 4, 5, 40, 9)

	res, err := New().Compute(ds)
	require.NoError(t, err)

	// Point 3 has lsr == pf, which is not strictly below.
	require.Equal(t, res.SparsityRatio[3], res.PruningFactor[3])
	assert.False(t, res.IsCandidate(3))
	assert.Equal(t, 0.0, res.LSC[3])

	for i := 0; i < ds.Len(); i++ {
		if res.SparsityRatio[i] >= res.PruningFactor[i] {
			assert.False(t, res.IsCandidate(i), "point %d", i)
			assert.Equal(t, 0.0, res.LSC[i], "point %d", i)
		}
	}

	sink := &recordingSink{}
	r := report.NewReporter(sink, report.Options{Mode: report.Outliers, Threshold: 1, HasThreshold: true})
	require.NoError(t, r.Emit(ds, detectors.LSC, res.LSC, 0))

	var rows []string
	for _, line := range sink.lines[3:] {
		rows = append(rows, strings.Split(line, "\t")[1])
	}
	// Candidates 8, 5, 0, 7 in score order; pruned points never appear.
	assert.Equal(t, []string{"8", "5", "0", "7"}, rows)
}

func TestIdenticalRecordsAreNotCandidates(t *testing.T) {
	ds := points(5, 5, 5, 5)

	res, err := New().Compute(ds)
	require.NoError(t, err)

	for i := 0; i < ds.Len(); i++ {
		assert.True(t, math.IsInf(res.SparsityRatio[i], 1))
		assert.True(t, math.IsInf(res.PruningFactor[i], 1))
		assert.False(t, res.IsCandidate(i))
		assert.Equal(t, 0.0, res.LSC[i])
	}
}

func TestDegenerate(t *testing.T) {
	res, err := New().Compute(points(5))
	require.NoError(t, err)
	assert.True(t, math.IsInf(res.SparsityRatio[0], 1))
	assert.True(t, res.Candidates.IsEmpty())
	assert.Equal(t, []float64{0}, res.LSC)

	res, err = New().Compute(points(1, 4))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1.0 / 3, 1.0 / 3}, res.SparsityRatio, 1e-12)
	assert.True(t, res.Candidates.IsEmpty())
}

func TestOutlierScoresHighestAmongCandidates(t *testing.T) {
	ds := clusterWithOutlier()

	res, err := New().Compute(ds)
	require.NoError(t, err)

	outlier := ds.Len() - 1
	require.True(t, res.IsCandidate(outlier))
	for i, s := range res.LSC {
		if i != outlier {
			assert.Greater(t, res.LSC[outlier], s, "point %d", i)
		}
	}
	assert.InDelta(t, 12608.255169552085, res.LSC[outlier], 1e-6)
}

func TestScaleInvariantRanking(t *testing.T) {
	values := []int{0, 3, 1, 7, 2, 12, 4, 5, 40, 9}

	base, err := New().Score(points(values...))
	require.NoError(t, err)
	want := report.Rank(base)

	for _, k := range []int{2, 3, 10, 1000} {
		scaled := make([]int, len(values))
		for i, v := range values {
			scaled[i] = v * k
		}
		scores, err := New().Score(points(scaled...))
		require.NoError(t, err)
		assert.Equal(t, want, report.Rank(scores), "k=%d", k)
	}
}

func TestMismatchedPoints(t *testing.T) {
	ds := dataset.FromPoints(
		dataset.Point{Categorical: []string{"a"}},
		dataset.Point{Categorical: []string{"a", "b"}},
	)

	_, err := New().Score(ds)
	assert.ErrorIs(t, err, distance.ErrDataIntegrity)
}

func BenchmarkScore(b *testing.B) {
	rng := rand.New(rand.NewSource(42))
	ds := dataset.New(2000)
	for i := 0; i < 2000; i++ {
		ds.Add(dataset.Point{Numeric: []int{rng.Intn(50), rng.Intn(50)}})
	}
	l := New()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.Score(ds)
	}
}

type recordingSink struct {
	lines []string
}

func (s *recordingSink) WriteLine(line string) error {
	s.lines = append(s.lines, line)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func points(values ...int) *dataset.Dataset {
	ds := dataset.New(len(values))
	for _, v := range values {
		ds.Add(dataset.Point{Categorical: []string{"a"}, Numeric: []int{v}})
	}
	return ds
}

func clusterWithOutlier() *dataset.Dataset {
	cluster := [][2]int{{1, 2}, {2, 1}, {2, 3}, {3, 2}, {1, 1}, {3, 3}, {2, 2}, {1, 3}, {3, 1}, {2, 4}}
	ds := dataset.New(len(cluster) + 1)
	for _, c := range cluster {
		ds.Add(dataset.Point{Categorical: []string{"a"}, Numeric: []int{c[0], c[1]}})
	}
	ds.Add(dataset.Point{Categorical: []string{"a"}, Numeric: []int{10000, 10000}})
	return ds
}

// Package neighborhood derives per-point k-distances and k-distance
// neighborhoods from a distance matrix.
package neighborhood

import (
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/hed1ad/densityguard/pkg/distance"
)

// Unset marks a minimum tracker that never received a value.
const Unset = -1.0

// Neighbor is one member of a point's k-distance neighborhood.
type Neighbor struct {
	Index    int
	Distance float64
}

// Graph holds the neighborhood tables of a run, indexed by point ID.
type Graph struct {
	KDistance     []float64
	Neighbors     [][]Neighbor
	Size          []int
	DistanceTotal []float64
}

// Len returns the number of points in the graph.
func (g *Graph) Len() int {
	return len(g.KDistance)
}

// KDistance scans row left to right, skipping column self, and returns
// max(firstMin, secondMin). secondMin only sees distances that failed to
// lower firstMin, so it can exceed the true second-smallest distance.
// Both trackers start at Unset, which is returned when row has no other columns.
func KDistance(row []float64, self int) float64 {
	firstMin, secondMin := Unset, Unset
	for j, d := range row {
		if j == self {
			continue
		}
		if firstMin == Unset || d < firstMin {
			firstMin = d
		} else if secondMin == Unset || d < secondMin {
			secondMin = d
		}
	}
	return max(firstMin, secondMin)
}

// Build computes k-distance, neighborhood, neighborhood size and neighbor
// distance total for every point of m. Points are processed by at most
// workers goroutines and Build returns once all of them are done.
func Build(m *distance.Matrix, workers int) *Graph {
	n := m.Len()
	g := &Graph{
		KDistance:     make([]float64, n),
		Neighbors:     make([][]Neighbor, n),
		Size:          make([]int, n),
		DistanceTotal: make([]float64, n),
	}

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var eg errgroup.Group
	eg.SetLimit(workers)

	for i := 0; i < n; i++ {
		i := i
		eg.Go(func() error {
			row := m.Row(i, nil)
			kd := KDistance(row, i)

			var (
				neighbors []Neighbor
				total     float64
			)
			for j, d := range row {
				if j != i && d <= kd {
					neighbors = append(neighbors, Neighbor{Index: j, Distance: d})
					total += d
				}
			}

			g.KDistance[i] = kd
			g.Neighbors[i] = neighbors
			g.Size[i] = len(neighbors)
			g.DistanceTotal[i] = total
			return nil
		})
	}
	_ = eg.Wait()

	return g
}

// Package dataset holds the ordered, append-only collection of feature records
// that the density detectors score.
package dataset

import (
	"fmt"
	"strings"
)

// Point is a single feature record.
type Point struct {
	// ID is assigned by Dataset.Add in insertion order, starting at 0.
	ID int
	// Categorical attributes compared by exact, case-sensitive equality.
	Categorical []string
	// Numeric attributes compared by squared difference.
	Numeric []int

	// Key identifies the record in reports (the source IP for flow data).
	Key string
	// Timestamp is carried through to reports unchanged.
	Timestamp string
}

// Label returns the report key of the point, falling back to its ID.
func (p Point) Label() string {
	if p.Key != "" {
		return p.Key
	}
	return fmt.Sprintf("%d", p.ID)
}

func (p Point) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "#%d %s [", p.ID, p.Label())
	sb.WriteString(strings.Join(p.Categorical, " | "))
	sb.WriteString("] [")
	for i, v := range p.Numeric {
		if i != 0 {
			sb.WriteString(" | ")
		}
		fmt.Fprintf(&sb, "%d", v)
	}
	sb.WriteString("]")
	return sb.String()
}

// Dataset is an ordered collection of points. Membership never changes once a
// point is added; detectors keep their scores in separate tables keyed by ID.
type Dataset struct {
	points []Point
}

// New creates an empty dataset with room for n points.
func New(n int) *Dataset {
	return &Dataset{points: make([]Point, 0, n)}
}

// FromPoints builds a dataset by adding each point in order.
func FromPoints(points ...Point) *Dataset {
	ds := New(len(points))
	for _, p := range points {
		ds.Add(p)
	}
	return ds
}

// Add appends p, overwriting its ID with the next sequential identifier,
// and returns that identifier.
func (d *Dataset) Add(p Point) int {
	p.ID = len(d.points)
	d.points = append(d.points, p)
	return p.ID
}

// Len returns the number of points.
func (d *Dataset) Len() int {
	return len(d.points)
}

// At returns the point with identifier id.
func (d *Dataset) At(id int) Point {
	return d.points[id]
}

// Each calls fn for every point in insertion order.
func (d *Dataset) Each(fn func(p Point)) {
	for _, p := range d.points {
		fn(p)
	}
}

// Head returns a dataset holding the first n points. IDs are unchanged.
func (d *Dataset) Head(n int) *Dataset {
	if n < 0 || n >= len(d.points) {
		return d
	}
	return &Dataset{points: d.points[:n:n]}
}

// Package csv provides CSV file reading for tabular flow data.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/hed1ad/densityguard/pkg/dataset"
	pkgio "github.com/hed1ad/densityguard/pkg/io"
	"github.com/hed1ad/densityguard/pkg/logging"
)

// ErrUnknownColumn is returned when an option names a column missing from the header.
var ErrUnknownColumn = errors.New("unknown column")

// Reader reads data from CSV files with a header row.
//
// Columns named by WithCategorical become categorical attributes, in header
// order. The key and timestamp columns are carried as metadata. Every other
// column is parsed as an integer numeric attribute.
type Reader struct {
	src     io.ReadCloser
	reader  *csv.Reader
	headers []string

	categorical []string
	key         string
	timestamp   string
	logger      *logging.Logger

	catIdx  []int
	numIdx  []int
	keyIdx  int
	tsIdx   int
	skipped int
}

// Option configures a CSV reader.
type Option func(*Reader)

// WithCategorical names the categorical columns.
func WithCategorical(cols ...string) Option {
	return func(r *Reader) {
		r.categorical = cols
	}
}

// WithKey names the column used as the report key.
func WithKey(col string) Option {
	return func(r *Reader) {
		r.key = col
	}
}

// WithTimestamp names the column carried into reports as the timestamp.
func WithTimestamp(col string) Option {
	return func(r *Reader) {
		r.timestamp = col
	}
}

// WithLogger sets the logger used to report skipped rows.
func WithLogger(l *logging.Logger) Option {
	return func(r *Reader) {
		r.logger = l
	}
}

// NewReader opens filename, decompressing by extension, and reads its header.
func NewReader(filename string, opts ...Option) (*Reader, error) {
	src, err := pkgio.Open(filename)
	if err != nil {
		return nil, err
	}
	r, err := FromReader(src, opts...)
	if err != nil {
		src.Close()
		return nil, err
	}
	return r, nil
}

// FromReader reads the header from src and resolves the column options.
// On error src is left open.
func FromReader(src io.ReadCloser, opts ...Option) (*Reader, error) {
	r := &Reader{
		src:    src,
		reader: csv.NewReader(src),
		logger: logging.Noop(),
		keyIdx: -1,
		tsIdx:  -1,
	}

	for _, opt := range opts {
		opt(r)
	}

	headers, err := r.reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}
	r.headers = headers

	if err := r.resolve(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) resolve() error {
	index := func(col string) (int, error) {
		i := slices.Index(r.headers, col)
		if i < 0 {
			return -1, fmt.Errorf("%w %q", ErrUnknownColumn, col)
		}
		return i, nil
	}

	for _, col := range r.categorical {
		if _, err := index(col); err != nil {
			return err
		}
	}
	var err error
	if r.key != "" {
		if r.keyIdx, err = index(r.key); err != nil {
			return err
		}
	}
	if r.timestamp != "" {
		if r.tsIdx, err = index(r.timestamp); err != nil {
			return err
		}
	}

	for i, h := range r.headers {
		switch {
		case slices.Contains(r.categorical, h):
			r.catIdx = append(r.catIdx, i)
		case i == r.keyIdx || i == r.tsIdx:
		default:
			r.numIdx = append(r.numIdx, i)
		}
	}
	return nil
}

// Headers returns the column headers.
func (r *Reader) Headers() []string {
	return r.headers
}

// Read returns all well-formed rows as a dataset. Malformed rows are skipped.
func (r *Reader) Read() (*dataset.Dataset, error) {
	ds := dataset.New(0)
	row := 1

	for {
		record, err := r.reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				r.skip(row, err)
				continue
			}
			return nil, err
		}

		p, err := r.parseRow(record)
		if err != nil {
			r.skip(row, err)
			continue
		}
		ds.Add(p)
	}

	return ds, nil
}

// Skipped returns the number of malformed rows dropped by the last Read.
func (r *Reader) Skipped() int {
	return r.skipped
}

func (r *Reader) skip(row int, err error) {
	r.skipped++
	r.logger.WarnContext(context.Background(), "skipping csv row",
		"row", row,
		"error", err,
	)
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.src != nil {
		return r.src.Close()
	}
	return nil
}

// parseRow converts a record into a point.
func (r *Reader) parseRow(record []string) (dataset.Point, error) {
	if len(record) != len(r.headers) {
		return dataset.Point{}, fmt.Errorf("want %d fields, got %d", len(r.headers), len(record))
	}

	p := dataset.Point{
		Categorical: make([]string, len(r.catIdx)),
		Numeric:     make([]int, len(r.numIdx)),
	}
	for i, col := range r.catIdx {
		p.Categorical[i] = record[col]
	}
	for i, col := range r.numIdx {
		v, err := strconv.Atoi(strings.TrimSpace(record[col]))
		if err != nil {
			return dataset.Point{}, fmt.Errorf("column %s: %w", r.headers[col], err)
		}
		p.Numeric[i] = v
	}
	if r.keyIdx >= 0 {
		p.Key = record[r.keyIdx]
	}
	if r.tsIdx >= 0 {
		p.Timestamp = record[r.tsIdx]
	}
	return p, nil
}

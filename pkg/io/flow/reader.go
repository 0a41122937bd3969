// Package flow reads whitespace-separated flow-count records.
//
// Each data line holds five tokens:
//
//	timestamp count-src src-ip count-anyport-src anyport-src-ip
//
// Lines starting with '*' are comments and blank lines are ignored.
package flow

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hed1ad/densityguard/pkg/dataset"
	pkgio "github.com/hed1ad/densityguard/pkg/io"
	"github.com/hed1ad/densityguard/pkg/logging"
)

// CommentMarker starts a comment line.
const CommentMarker = '*'

const fieldCount = 5

// ErrMalformed is returned in strict mode for rows that cannot be parsed.
var ErrMalformed = errors.New("malformed flow record")

// Reader reads flow records into a dataset.
type Reader struct {
	src     io.ReadCloser
	limit   int
	strict  bool
	logger  *logging.Logger
	skipped int
}

// Option configures a flow reader.
type Option func(*Reader)

// WithLimit caps the number of lines consumed. Comment lines count toward
// the limit. Zero means no limit.
func WithLimit(n int) Option {
	return func(r *Reader) {
		r.limit = n
	}
}

// WithStrict makes malformed rows fail the read instead of being skipped.
func WithStrict(strict bool) Option {
	return func(r *Reader) {
		r.strict = strict
	}
}

// WithLogger sets the logger used to report skipped rows.
func WithLogger(l *logging.Logger) Option {
	return func(r *Reader) {
		r.logger = l
	}
}

// NewReader opens filename, decompressing by extension.
func NewReader(filename string, opts ...Option) (*Reader, error) {
	src, err := pkgio.Open(filename)
	if err != nil {
		return nil, err
	}
	return FromReader(src, opts...), nil
}

// FromReader reads records from src. Close closes src.
func FromReader(src io.ReadCloser, opts ...Option) *Reader {
	r := &Reader{
		src:    src,
		logger: logging.Noop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Read returns every well-formed record in file order.
func (r *Reader) Read() (*dataset.Dataset, error) {
	ds := dataset.New(0)
	scanner := bufio.NewScanner(r.src)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		if r.limit > 0 && line >= r.limit {
			break
		}
		line++

		text := strings.TrimSpace(scanner.Text())
		if text == "" || text[0] == CommentMarker {
			continue
		}

		p, err := ParseLine(text)
		if err != nil {
			if r.strict {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			r.skipped++
			r.logger.WarnContext(context.Background(), "skipping flow record",
				"line", line,
				"error", err,
			)
			continue
		}
		ds.Add(p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read flows: %w", err)
	}

	return ds, nil
}

// Skipped returns the number of malformed rows dropped by the last Read.
func (r *Reader) Skipped() int {
	return r.skipped
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.src != nil {
		return r.src.Close()
	}
	return nil
}

// ParseLine converts one data line into a point.
func ParseLine(line string) (dataset.Point, error) {
	fields := strings.Fields(line)
	if len(fields) != fieldCount {
		return dataset.Point{}, fmt.Errorf("%w: want %d fields, got %d", ErrMalformed, fieldCount, len(fields))
	}

	countSrc, err := strconv.Atoi(fields[1])
	if err != nil {
		return dataset.Point{}, fmt.Errorf("%w: count-src %q", ErrMalformed, fields[1])
	}
	countAny, err := strconv.Atoi(fields[3])
	if err != nil {
		return dataset.Point{}, fmt.Errorf("%w: count-anyport-src %q", ErrMalformed, fields[3])
	}

	return dataset.Point{
		Categorical: []string{fields[0], fields[2]},
		Numeric:     []int{countSrc, countAny},
		Key:         fields[2],
		Timestamp:   fields[0],
	}, nil
}

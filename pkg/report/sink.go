package report

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/hed1ad/densityguard/pkg/detectors"
)

// ErrSinkLocked is returned when another writer holds a report file.
var ErrSinkLocked = errors.New("report file is locked by another writer")

// Sink receives report lines in order. Implementations serialize concurrent
// writers so every line lands whole.
type Sink interface {
	WriteLine(line string) error
	Close() error
}

// WriterSink writes lines to an io.Writer it does not own.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a sink over w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// WriteLine implements Sink.
func (s *WriterSink) WriteLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.w, line+"\n")
	return err
}

// Close implements Sink. The underlying writer is left open.
func (s *WriterSink) Close() error {
	return nil
}

// OutputPath returns the report file for alg inside dir, e.g. "LOF_Output".
func OutputPath(dir string, alg detectors.Algorithm) string {
	return filepath.Join(dir, alg.String()+"_Output")
}

// FileSink writes a report file. It holds an advisory lock on "<path>.lock"
// until closed so two runs cannot interleave the same report.
type FileSink struct {
	mu   sync.Mutex
	path string
	f    *os.File
	bw   *bufio.Writer
	lock *flock.Flock
}

// NewFileSink locks and truncates the report file at path. It fails fast
// when the lock is already held.
func NewFileSink(path string) (*FileSink, error) {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrSinkLocked, path)
	}

	f, err := os.Create(path)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	return &FileSink{
		path: path,
		f:    f,
		bw:   bufio.NewWriter(f),
		lock: lock,
	}, nil
}

// Path returns the report file path.
func (s *FileSink) Path() string {
	return s.path
}

// WriteLine implements Sink.
func (s *FileSink) WriteLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return os.ErrClosed
	}
	if _, err := s.bw.WriteString(line); err != nil {
		return err
	}
	return s.bw.WriteByte('\n')
}

// Close flushes the report, closes the file and releases the lock.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return nil
	}
	err := errors.Join(s.bw.Flush(), s.f.Close(), s.lock.Unlock())
	s.f = nil
	return err
}

// TeeSink copies every line to several sinks.
type TeeSink struct {
	sinks []Sink
}

// Tee returns a sink writing each line to every sink in order. A write stops
// at the first failing sink.
func Tee(sinks ...Sink) *TeeSink {
	return &TeeSink{sinks: sinks}
}

// WriteLine implements Sink.
func (t *TeeSink) WriteLine(line string) error {
	for _, s := range t.sinks {
		if err := s.WriteLine(line); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and joins their errors.
func (t *TeeSink) Close() error {
	errs := make([]error, 0, len(t.sinks))
	for _, s := range t.sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

package flow

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/densityguard/pkg/logging"
)

const sample = `* timestamp count-src src-ip count-anyport-src anyport-src-ip
10:00 4 10.0.0.1 7 10.0.0.1

10:00 1 10.0.0.2 1 10.0.0.2
10:01 x 10.0.0.3 1 10.0.0.3
10:01 2 10.0.0.4
10:02 9 10.0.0.5 12 10.0.0.5
`

func read(t *testing.T, input string, opts ...Option) (*Reader, error) {
	t.Helper()
	r := FromReader(io.NopCloser(strings.NewReader(input)), opts...)
	t.Cleanup(func() { r.Close() })
	_, err := r.Read()
	return r, err
}

func TestRead(t *testing.T) {
	var logs bytes.Buffer
	r := FromReader(io.NopCloser(strings.NewReader(sample)),
		WithLogger(logging.NewTextLogger(&logs, slog.LevelWarn)))

	ds, err := r.Read()
	require.NoError(t, err)
	require.Equal(t, 3, ds.Len())
	assert.Equal(t, 2, r.Skipped())
	assert.Contains(t, logs.String(), "skipping flow record")

	p := ds.At(0)
	assert.Equal(t, 0, p.ID)
	assert.Equal(t, []string{"10:00", "10.0.0.1"}, p.Categorical)
	assert.Equal(t, []int{4, 7}, p.Numeric)
	assert.Equal(t, "10.0.0.1", p.Key)
	assert.Equal(t, "10:00", p.Timestamp)

	assert.Equal(t, "10.0.0.5", ds.At(2).Key)
	assert.Equal(t, 2, ds.At(2).ID)
}

func TestReadLimitCountsComments(t *testing.T) {
	r := FromReader(io.NopCloser(strings.NewReader(sample)), WithLimit(2))
	ds, err := r.Read()
	require.NoError(t, err)

	// The comment line and the first record fill the limit.
	require.Equal(t, 1, ds.Len())
	assert.Equal(t, "10.0.0.1", ds.At(0).Key)
}

func TestReadStrict(t *testing.T) {
	_, err := read(t, sample, WithStrict(true))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Contains(t, err.Error(), "line 5")
}

func TestReadEmpty(t *testing.T) {
	r := FromReader(io.NopCloser(strings.NewReader("* only a comment\n")))
	ds, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, 0, ds.Len())
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line    string
		wantErr bool
	}{
		{line: "t 1 a 2 a"},
		{line: "t\t1   a 2\ta"},
		{line: "t 1 a 2", wantErr: true},
		{line: "t 1 a 2 a extra", wantErr: true},
		{line: "t one a 2 a", wantErr: true},
		{line: "t 1 a 2.5 a", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			_, err := ParseLine(tt.line)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformed)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewReaderGzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(sample))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	path := filepath.Join(t.TempDir(), "flows.txt.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	ds, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Len())
}

func TestNewReaderMissing(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

package csv

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `ts,src,proto,packets,ports
10:00,10.0.0.1,tcp,4,7
10:00,10.0.0.2,udp,1,1
10:01,10.0.0.3,tcp,many,1
10:01,10.0.0.4,tcp,2
10:02,10.0.0.5,icmp, 9 ,12
`

func open(t *testing.T, input string, opts ...Option) *Reader {
	t.Helper()
	r, err := FromReader(io.NopCloser(strings.NewReader(input)), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRead(t *testing.T) {
	r := open(t, sample,
		WithCategorical("src", "proto"),
		WithKey("src"),
		WithTimestamp("ts"),
	)
	assert.Equal(t, []string{"ts", "src", "proto", "packets", "ports"}, r.Headers())

	ds, err := r.Read()
	require.NoError(t, err)
	require.Equal(t, 3, ds.Len())
	assert.Equal(t, 2, r.Skipped())

	p := ds.At(2)
	assert.Equal(t, 2, p.ID)
	assert.Equal(t, []string{"10.0.0.5", "icmp"}, p.Categorical)
	assert.Equal(t, []int{9, 12}, p.Numeric)
	assert.Equal(t, "10.0.0.5", p.Key)
	assert.Equal(t, "10:02", p.Timestamp)
}

func TestReadWithoutOptions(t *testing.T) {
	r := open(t, "a,b\n1,2\n3,4\n")

	ds, err := r.Read()
	require.NoError(t, err)
	require.Equal(t, 2, ds.Len())
	assert.Empty(t, ds.At(0).Categorical)
	assert.Equal(t, []int{3, 4}, ds.At(1).Numeric)
	assert.Equal(t, "1", ds.At(1).Label())
}

func TestUnknownColumn(t *testing.T) {
	for _, opt := range []Option{
		WithCategorical("nope"),
		WithKey("nope"),
		WithTimestamp("nope"),
	} {
		_, err := FromReader(io.NopCloser(strings.NewReader(sample)), opt)
		assert.ErrorIs(t, err, ErrUnknownColumn)
	}
}

func TestEmptyInput(t *testing.T) {
	_, err := FromReader(io.NopCloser(strings.NewReader("")))
	assert.ErrorIs(t, err, io.EOF)
}

func TestNewReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flows.csv")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	r, err := NewReader(path, WithCategorical("src"), WithKey("src"), WithTimestamp("ts"))
	require.NoError(t, err)
	defer r.Close()

	ds, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Len())
}

package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/densityguard/pkg/detectors"
)

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf)

	require.NoError(t, sink.WriteLine("one"))
	require.NoError(t, sink.WriteLine("two"))
	require.NoError(t, sink.Close())

	assert.Equal(t, "one\ntwo\n", buf.String())
}

func TestWriterSinkConcurrentLinesStayWhole(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = sink.WriteLine("0123456789")
			}
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 400)
	for _, l := range lines {
		assert.Equal(t, "0123456789", l)
	}
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "LSC_Output"), OutputPath("out", detectors.LSC))
}

func TestFileSink(t *testing.T) {
	path := OutputPath(t.TempDir(), detectors.LOF)
	require.NoError(t, os.WriteFile(path, []byte("stale\n"), 0o644))

	sink, err := NewFileSink(path)
	require.NoError(t, err)
	assert.Equal(t, path, sink.Path())

	require.NoError(t, sink.WriteLine("Execution Time: 1"))
	require.NoError(t, sink.WriteLine("LOF\tSrc IP\t\t\tTimestamp"))
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Execution Time: 1\nLOF\tSrc IP\t\t\tTimestamp\n", string(data))

	assert.ErrorIs(t, sink.WriteLine("late"), os.ErrClosed)
}

func TestFileSinkLocked(t *testing.T) {
	path := OutputPath(t.TempDir(), detectors.LSC)

	first, err := NewFileSink(path)
	require.NoError(t, err)

	_, err = NewFileSink(path)
	assert.ErrorIs(t, err, ErrSinkLocked)

	require.NoError(t, first.Close())

	second, err := NewFileSink(path)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestFileSinkBadDirectory(t *testing.T) {
	_, err := NewFileSink(filepath.Join(t.TempDir(), "missing", "LOF_Output"))
	assert.Error(t, err)
}

func TestTee(t *testing.T) {
	var a, b bytes.Buffer
	tee := Tee(NewWriterSink(&a), NewWriterSink(&b))

	require.NoError(t, tee.WriteLine("row"))
	require.NoError(t, tee.Close())

	assert.Equal(t, "row\n", a.String())
	assert.Equal(t, "row\n", b.String())
}

func TestTeeStopsAtFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "LOF_Output")
	fs, err := NewFileSink(path)
	require.NoError(t, err)
	require.NoError(t, fs.Close())

	var after bytes.Buffer
	tee := Tee(fs, NewWriterSink(&after))

	assert.ErrorIs(t, tee.WriteLine("row"), os.ErrClosed)
	assert.Empty(t, after.String())
	assert.NoError(t, tee.Close())
}

package pipeline

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/densityguard/pkg/detectors"
	"github.com/hed1ad/densityguard/pkg/report"
)

type doneToken struct {
	mqtt.Token
}

func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Error() error                   { return nil }

type topicRecorder struct {
	topics []string
}

func (p *topicRecorder) Publish(topic string, _ byte, _ bool, _ interface{}) mqtt.Token {
	p.topics = append(p.topics, topic)
	return doneToken{}
}

func TestMQTTSinks(t *testing.T) {
	pub := &topicRecorder{}
	sink, err := MQTTSinks(pub, "densityguard", time.Second)(detectors.LOF)
	require.NoError(t, err)

	require.NoError(t, sink.WriteLine("row"))
	assert.Equal(t, []string{"densityguard/lof"}, pub.topics)
	assert.Equal(t, "mqtt:densityguard/lof", describe(sink))
}

func TestFanout(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer

	sink, err := Fanout(FileSinks(dir), WriterSinks(&out))(detectors.LSC)
	require.NoError(t, err)
	require.NoError(t, sink.WriteLine("row"))
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(filepath.Join(dir, "LSC_Output"))
	require.NoError(t, err)
	assert.Equal(t, "row\n", string(data))
	assert.Equal(t, "row\n", out.String())
	assert.Equal(t, "tee", describe(sink))
}

func TestFanoutClosesOpenedSinksOnError(t *testing.T) {
	dir := t.TempDir()
	boom := errors.New("broker down")
	failing := func(detectors.Algorithm) (report.Sink, error) { return nil, boom }

	_, err := Fanout(FileSinks(dir), failing)(detectors.LOF)
	assert.ErrorIs(t, err, boom)

	// The file lock was released, so the report can be reopened.
	sink, err := FileSinks(dir)(detectors.LOF)
	require.NoError(t, err)
	assert.NoError(t, sink.Close())
}

func TestFanoutSingle(t *testing.T) {
	var out bytes.Buffer
	sink, err := Fanout(WriterSinks(&out))(detectors.NN)
	require.NoError(t, err)
	assert.Equal(t, "writer", describe(sink))
}

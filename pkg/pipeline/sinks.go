package pipeline

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hed1ad/densityguard/pkg/detectors"
	"github.com/hed1ad/densityguard/pkg/report"
)

// SinkFactory opens the report sink for one algorithm.
type SinkFactory func(alg detectors.Algorithm) (report.Sink, error)

// FileSinks writes each report to "<ALG>_Output" inside dir.
func FileSinks(dir string) SinkFactory {
	return func(alg detectors.Algorithm) (report.Sink, error) {
		return report.NewFileSink(report.OutputPath(dir, alg))
	}
}

// WriterSinks writes every report to w, one after the other.
func WriterSinks(w io.Writer) SinkFactory {
	sink := report.NewWriterSink(w)
	return func(detectors.Algorithm) (report.Sink, error) {
		return sink, nil
	}
}

// MQTTSinks publishes each report under "<topic>/<alg>".
func MQTTSinks(client report.Publisher, topic string, timeout time.Duration) SinkFactory {
	return func(alg detectors.Algorithm) (report.Sink, error) {
		return report.NewMQTTSink(client, topic+"/"+strings.ToLower(alg.String()), timeout), nil
	}
}

// Fanout opens a sink from every factory and tees lines to all of them.
func Fanout(factories ...SinkFactory) SinkFactory {
	if len(factories) == 1 {
		return factories[0]
	}
	return func(alg detectors.Algorithm) (report.Sink, error) {
		sinks := make([]report.Sink, 0, len(factories))
		for _, f := range factories {
			s, err := f(alg)
			if err != nil {
				for _, opened := range sinks {
					opened.Close()
				}
				return nil, err
			}
			sinks = append(sinks, s)
		}
		return report.Tee(sinks...), nil
	}
}

func describe(s report.Sink) string {
	switch v := s.(type) {
	case *report.FileSink:
		return v.Path()
	case *report.MQTTSink:
		return "mqtt:" + v.Topic()
	case *report.WriterSink:
		return "writer"
	case *report.TeeSink:
		return "tee"
	}
	return fmt.Sprintf("%T", s)
}

// Package tracking records the parameters and metrics of pipeline runs in
// external systems.
package tracking

import (
	"context"

	"go.uber.org/multierr"
)

// Sink receives one record per pipeline run.
type Sink interface {
	Record(ctx context.Context, params map[string]string, metrics map[string]float64) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, params map[string]string, metrics map[string]float64) error

func (f SinkFunc) Record(ctx context.Context, params map[string]string, metrics map[string]float64) error {
	return f(ctx, params, metrics)
}

type multiSink []Sink

// Multi fans a record out to every sink. All sinks are tried; their errors
// are combined.
func Multi(sinks ...Sink) Sink {
	out := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multiSink) Record(ctx context.Context, params map[string]string, metrics map[string]float64) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Record(ctx, params, metrics))
	}
	return err
}

// Nop discards every record.
var Nop Sink = SinkFunc(func(context.Context, map[string]string, map[string]float64) error { return nil })

package service

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"mediagate/internal/core/domain"
	"mediagate/internal/core/ports"
)

// MultiSink fans an event out to several sinks concurrently.
type MultiSink []ports.EventSink

// Record delivers event to every sink and returns the first failure.
func (m MultiSink) Record(ctx context.Context, event domain.Event) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, sink := range m {
		sink := sink
		g.Go(func() error {
			return sink.Record(ctx, event)
		})
	}
	return g.Wait()
}

// Close closes every sink.
func (m MultiSink) Close() error {
	var errs []error
	for _, sink := range m {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

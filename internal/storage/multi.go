package storage

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ensure multiBackend implements Backend and Reader
var (
	_ Backend = (*multiBackend)(nil)
	_ Reader  = (*multiBackend)(nil)
)

type multiBackend struct {
	backends []Backend
}

// Multi fans a run out to every backend. Saves run concurrently and the
// first error is returned once all have finished.
func Multi(backends ...Backend) Backend {
	if len(backends) == 1 {
		return backends[0]
	}
	return &multiBackend{backends: backends}
}

func (m *multiBackend) Save(ctx context.Context, run *Run) error {
	g, gCtx := errgroup.WithContext(ctx)
	for _, b := range m.backends {
		g.Go(func() error {
			if err := b.Save(gCtx, run); err != nil {
				return fmt.Errorf("save %T: %w", b, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Latest reads from the first backend that supports reading.
func (m *multiBackend) Latest(ctx context.Context, query string) (*Run, error) {
	for _, b := range m.backends {
		if r, ok := b.(Reader); ok {
			return r.Latest(ctx, query)
		}
	}
	return nil, ErrNotFound
}

func (m *multiBackend) Close() error {
	var errs []error
	for _, b := range m.backends {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

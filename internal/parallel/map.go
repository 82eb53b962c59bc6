package parallel

import (
	"context"
	"iter"
	"slices"

	"golang.org/x/sync/errgroup"
)

type result[D any] struct {
	d D
	e error
}

// Map runs mapFunc over the input on at most limit goroutines. Input and
// output are iterators, results arrive in completion order:
//
//	for d, err := range parallel.NewMap(ctx, 4, f).Iter(parallel.All(input)) {}
//
// Errors of the input sequence are passed through as results. A canceled
// context or a consumer which stops early ends the processing.
type Map[E, D any] struct {
	ctx     context.Context
	cancel  context.CancelFunc
	g       *errgroup.Group
	gctx    context.Context
	mapped  chan result[D]
	mapFunc func(context.Context, E) (D, error)
}

func NewMap[E, D any](parentCtx context.Context, limit int, mapFunc func(context.Context, E) (D, error)) *Map[E, D] {
	ctx, cancel := context.WithCancel(parentCtx)
	g, gctx := errgroup.WithContext(ctx)
	// one extra slot for the feeding goroutine
	g.SetLimit(max(limit, 1) + 1)

	return &Map[E, D]{
		ctx:     ctx,
		cancel:  cancel,
		g:       g,
		gctx:    gctx,
		mapped:  make(chan result[D], max(limit, 1)),
		mapFunc: mapFunc,
	}
}

func (m *Map[E, D]) send(r result[D]) {
	select {
	case <-m.gctx.Done():
	case m.mapped <- r:
	}
}

func (m *Map[E, D]) feed(seq iter.Seq2[E, error]) {
	m.g.Go(func() error {
		for entry, err := range seq {
			if m.gctx.Err() != nil {
				return nil
			}
			if err != nil {
				var zero D
				m.send(result[D]{d: zero, e: err})
				continue
			}
			m.g.Go(func() error {
				if m.gctx.Err() != nil {
					return nil
				}
				d, err := m.mapFunc(m.gctx, entry)
				m.send(result[D]{d: d, e: err})
				return nil
			})
		}
		return nil
	})
}

func (m *Map[E, D]) Iter(seq iter.Seq2[E, error]) iter.Seq2[D, error] {
	return func(yield func(D, error) bool) {
		defer func() {
			m.cancel()
			// drain so the waiting goroutine below can finish
			for range m.mapped {
			}
		}()
		m.feed(seq)

		go func() {
			_ = m.g.Wait()
			close(m.mapped)
		}()

		for r := range m.mapped {
			if m.ctx.Err() != nil {
				return
			}
			if !yield(r.d, r.e) {
				return
			}
		}
	}
}

// All adapts a slice to the input of Map.Iter.
func All[T any](s []T) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for _, x := range slices.Clone(s) {
			if !yield(x, nil) {
				return
			}
		}
	}
}

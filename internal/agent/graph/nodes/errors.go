package nodes

import (
	"context"
	"sync"
)

type errorSink struct {
	mu  sync.Mutex
	err error
}

type sinkKey struct{}

// WithErrorSink returns a context whose node failures are recorded. The
// returned func reports the first one, carrying its original error kind
// regardless of how the graph wraps it.
func WithErrorSink(ctx context.Context) (context.Context, func() error) {
	s := &errorSink{}
	return context.WithValue(ctx, sinkKey{}, s), func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.err
	}
}

func fail(ctx context.Context, err error) error {
	if s, ok := ctx.Value(sinkKey{}).(*errorSink); ok && err != nil {
		s.mu.Lock()
		if s.err == nil {
			s.err = err
		}
		s.mu.Unlock()
	}
	return err
}

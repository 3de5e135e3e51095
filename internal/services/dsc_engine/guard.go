package dsc_engine

import "context"

type operationKey struct{}

// withOperation marks ctx as belonging to a running operation. Collaborators
// receive the marked context; if they call back into the engine with it the
// call is rejected instead of deadlocking on the engine lock.
func withOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, operationKey{}, operation)
}

// inOperation reports the operation ctx belongs to, if any.
func inOperation(ctx context.Context) (string, bool) {
	op, ok := ctx.Value(operationKey{}).(string)
	return op, ok
}

// view runs fn under the read lock, or directly when ctx belongs to a running
// operation that already holds the write lock.
func (e *Engine) view(ctx context.Context, fn func() error) error {
	if _, ok := inOperation(ctx); !ok {
		e.mu.RLock()
		defer e.mu.RUnlock()
	}
	return fn()
}

// internal/browser/session/context_utils_test.go
package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombineContext(t *testing.T) {
	type ctxKey string
	const key ctxKey = "tab"

	t.Run("values come from the primary", func(t *testing.T) {
		primary := context.WithValue(context.Background(), key, "cdp")
		ctx, cancel := CombineContext(primary, context.Background())
		defer cancel()

		assert.Equal(t, "cdp", ctx.Value(key))
		assert.NoError(t, ctx.Err())
	})

	t.Run("canceled by primary", func(t *testing.T) {
		primary, cancelPrimary := context.WithCancel(context.Background())
		ctx, cancel := CombineContext(primary, context.Background())
		defer cancel()

		cancelPrimary()
		<-ctx.Done()
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
	})

	t.Run("canceled by operation with its cause", func(t *testing.T) {
		errStop := errors.New("operator stop")
		op, cancelOp := context.WithCancelCause(context.Background())
		ctx, cancel := CombineContext(context.Background(), op)
		defer cancel()

		cancelOp(errStop)
		require.Eventually(t, func() bool { return ctx.Err() != nil }, time.Second, 5*time.Millisecond)
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
		assert.ErrorIs(t, context.Cause(ctx), errStop)
	})

	t.Run("operation deadline", func(t *testing.T) {
		primary, cancelPrimary := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelPrimary()
		op, cancelOp := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancelOp()

		ctx, cancel := CombineContext(primary, op)
		defer cancel()

		<-ctx.Done()
		assert.ErrorIs(t, context.Cause(ctx), context.DeadlineExceeded)
		assert.NoError(t, primary.Err(), "the primary outlives the operation")
	})

	t.Run("explicit cancel", func(t *testing.T) {
		ctx, cancel := CombineContext(context.Background(), context.Background())
		cancel()
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
	})
}

func TestDetach(t *testing.T) {
	type ctxKey string
	const key ctxKey = "browser"

	parent, cancel := context.WithTimeout(context.WithValue(context.Background(), key, "cdp"), time.Hour)
	detached := Detach(parent)
	child, cancelChild := context.WithCancel(detached)
	defer cancelChild()

	cancel()

	assert.Equal(t, "cdp", detached.Value(key))
	_, hasDeadline := detached.Deadline()
	assert.False(t, hasDeadline)
	assert.NoError(t, detached.Err())
	assert.NoError(t, child.Err(), "children of a detached context ignore the parent")

	cancelChild()
	assert.ErrorIs(t, child.Err(), context.Canceled)
}

package dom_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/dictafill/internal/browser/dom"
)

func constProbe(name, value string, ok bool, err error, calls *[]string) dom.Probe[string] {
	return dom.Probe[string]{
		Name: name,
		Find: func(ctx context.Context) (string, bool, error) {
			*calls = append(*calls, name)
			return value, ok, err
		},
	}
}

func TestFirstMatch(t *testing.T) {
	ctx := context.Background()

	t.Run("first hit wins and later probes are not run", func(t *testing.T) {
		var calls []string
		m, ok, err := dom.FirstMatch(ctx, []dom.Probe[string]{
			constProbe("a", "", false, nil, &calls),
			constProbe("b", "beta", true, nil, &calls),
			constProbe("c", "gamma", true, nil, &calls),
		})
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "beta", m.Value)
		assert.Equal(t, "b", m.Source)
		assert.Equal(t, []string{"a", "b"}, calls)
	})

	t.Run("failing probe does not stop the chain", func(t *testing.T) {
		var calls []string
		boom := errors.New("boom")
		m, ok, err := dom.FirstMatch(ctx, []dom.Probe[string]{
			constProbe("a", "", false, boom, &calls),
			constProbe("b", "beta", true, nil, &calls),
		})
		require.True(t, ok)
		assert.Equal(t, "beta", m.Value)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "probe a")
	})

	t.Run("no hit", func(t *testing.T) {
		var calls []string
		_, ok, err := dom.FirstMatch(ctx, []dom.Probe[string]{
			constProbe("a", "", false, nil, &calls),
			constProbe("b", "", false, nil, &calls),
		})
		assert.NoError(t, err)
		assert.False(t, ok)
		assert.Len(t, calls, 2)
	})

	t.Run("cancelled context stops before the next probe", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		var calls []string
		_, ok, err := dom.FirstMatch(cctx, []dom.Probe[string]{
			constProbe("a", "x", true, nil, &calls),
		})
		assert.False(t, ok)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, calls)
	})
}

// internal/browser/dom/probe.go
package dom

import (
	"context"
	"errors"
	"fmt"
)

// Probe is one independent step of an ordered lookup chain.
type Probe[T any] struct {
	Name string
	Find func(ctx context.Context) (T, bool, error)
}

// Match is the result of a successful chain, tagged with the winning probe.
type Match[T any] struct {
	Value  T
	Source string
}

// FirstMatch runs probes in order and stops at the first hit. A failing probe
// is recorded and the chain moves on; the collected errors are returned
// alongside the result so callers can log them.
func FirstMatch[T any](ctx context.Context, probes []Probe[T]) (Match[T], bool, error) {
	var errs []error
	for _, p := range probes {
		if err := ctx.Err(); err != nil {
			return Match[T]{}, false, errors.Join(append(errs, err)...)
		}
		v, ok, err := p.Find(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("probe %s: %w", p.Name, err))
			continue
		}
		if ok {
			return Match[T]{Value: v, Source: p.Name}, true, errors.Join(errs...)
		}
	}
	return Match[T]{}, false, errors.Join(errs...)
}

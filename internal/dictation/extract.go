package dictation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dictafill/internal/browser/dom"
)

// FieldOutcome describes one blank that carried an editable field.
type FieldOutcome struct {
	Index  int    `json:"index"`
	Path   string `json:"path"`
	Answer string `json:"answer,omitempty"`
	Source string `json:"source,omitempty"`
	Filled bool   `json:"filled"`
	Error  string `json:"error,omitempty"`
}

// FillResult is the outcome of one fill cycle.
type FillResult struct {
	Blanks  int            `json:"blanks"`
	Filled  int            `json:"filled"`
	Skipped int            `json:"skipped"`
	Fields  []FieldOutcome `json:"fields"`
}

// AttemptFill runs one fill cycle: every blank holding an editable field gets
// its extracted answer written and the input, change, blur notifications.
// It returns ErrContainerMissing, without touching the page, when the
// exercise container is absent.
func (l *Loop) AttemptFill(ctx context.Context) (FillResult, error) {
	return l.fill(ctx, true)
}

func (l *Loop) fill(ctx context.Context, write bool) (FillResult, error) {
	sel := l.opts.Selectors
	var res FillResult

	container, err := l.page.Query(ctx, nil, sel.Container)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		return res, fmt.Errorf("%w: %v", ErrContainerMissing, err)
	}
	if container == nil {
		return res, ErrContainerMissing
	}

	blanks, err := l.page.QueryAll(ctx, container, sel.Blank)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		return res, fmt.Errorf("%w: reading blanks: %v", ErrContainerMissing, err)
	}
	res.Blanks = len(blanks)
	l.logger.Info("Found blank elements.", zap.Int("count", len(blanks)))

	for i, blank := range blanks {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		field, err := l.page.Query(ctx, blank, sel.Field)
		if err != nil {
			res.Skipped++
			res.Fields = append(res.Fields, FieldOutcome{Index: i, Path: dom.Describe(blank), Error: err.Error()})
			l.logger.Warn("Could not inspect blank.", zap.Int("index", i), zap.Error(err))
			continue
		}
		if field == nil {
			continue
		}

		outcome := FieldOutcome{Index: i, Path: dom.Describe(field)}
		match, ok, probeErr := dom.FirstMatch(ctx, l.answerProbes(blank))
		if probeErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			l.logger.Debug("Answer probes reported errors.", zap.Int("index", i), zap.Error(probeErr))
		}
		if !ok {
			res.Skipped++
			res.Fields = append(res.Fields, outcome)
			l.logger.Warn("Could not find answer text for field. The structure might be different.",
				zap.Int("index", i), zap.String("field", outcome.Path))
			continue
		}
		outcome.Answer = match.Value
		outcome.Source = match.Source

		if write {
			l.logger.Info("Filling field.", zap.Int("index", i), zap.String("answer", match.Value), zap.String("source", match.Source))
			if err := l.writeField(ctx, field, match.Value); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					if ctxErr := ctx.Err(); ctxErr != nil {
						return res, ctxErr
					}
				}
				res.Skipped++
				outcome.Error = err.Error()
				res.Fields = append(res.Fields, outcome)
				l.logger.Warn("Failed to write field.", zap.Int("index", i), zap.Error(err))
				continue
			}
			outcome.Filled = true
			res.Filled++
		}
		res.Fields = append(res.Fields, outcome)
	}
	return res, nil
}

// writeField sets the value, then emits each notification exactly once, in
// order. A failed notification leaves the value written; the error names the
// notifications that did go out.
func (l *Loop) writeField(ctx context.Context, field dom.Node, value string) error {
	if err := l.page.SetValue(ctx, field, value); err != nil {
		return fmt.Errorf("set value on %s: %w", dom.Describe(field), err)
	}
	for i, ev := range dom.FieldEvents {
		if err := l.page.Dispatch(ctx, field, ev); err != nil {
			return fmt.Errorf("dispatch %s on %s (value written, sent [%s]): %w",
				ev, dom.Describe(field), strings.Join(dom.FieldEvents[:i], " "), err)
		}
	}
	return nil
}

// answerProbes lists the extraction chain for one blank: residual text,
// then answer attributes, then fallback sub-elements.
func (l *Loop) answerProbes(blank dom.Node) []dom.Probe[string] {
	sel := l.opts.Selectors
	probes := []dom.Probe[string]{{
		Name: "residual-text",
		Find: func(ctx context.Context) (string, bool, error) {
			return present(l.page.TextExcluding(ctx, blank, sel.Field))
		},
	}}

	for _, name := range sel.AnswerAttributes {
		probes = append(probes, dom.Probe[string]{
			Name: "attribute:" + name,
			Find: func(ctx context.Context) (string, bool, error) {
				v, ok, err := l.page.Attribute(ctx, blank, name)
				if err != nil || !ok {
					return "", false, err
				}
				return present(v, nil)
			},
		})
	}

	if fallback := group(sel.AnswerFallbacks); fallback != "" {
		probes = append(probes, dom.Probe[string]{
			Name: "fallback",
			Find: func(ctx context.Context) (string, bool, error) {
				n, err := l.page.Query(ctx, blank, fallback)
				if err != nil || n == nil {
					return "", false, err
				}
				return present(l.page.Text(ctx, n))
			},
		})
	}
	return probes
}

// present trims s and treats an empty result as absent.
func present(s string, err error) (string, bool, error) {
	if err != nil {
		return "", false, err
	}
	s = strings.TrimSpace(s)
	return s, s != "", nil
}

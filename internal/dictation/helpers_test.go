package dictation_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/dictafill/internal/browser/dom"
	"github.com/xkilldash9x/dictafill/internal/browser/snapshot"
	"github.com/xkilldash9x/dictafill/internal/dictation"
)

// fakeClock fires immediately and records every requested delay.
type fakeClock struct {
	waits   []time.Duration
	onAfter func(n int)
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.waits = append(c.waits, d)
	if c.onAfter != nil {
		c.onAfter(len(c.waits))
	}
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func page(body string) string {
	return "<html><body>" + body + "</body></html>"
}

func exercise(blanks string, controls string) string {
	return page(`<div class="listen-container"><div class="listen-sen">` + blanks + `</div></div>` + controls)
}

func loadDoc(t *testing.T, markup string) *snapshot.Document {
	t.Helper()
	doc, err := snapshot.LoadString(markup)
	require.NoError(t, err)
	return doc
}

type harness struct {
	loop  *dictation.Loop
	clock *fakeClock
	logs  *observer.ObservedLogs
	trans []dictation.Transition
}

func newHarness(t *testing.T, p dom.Page, mutate ...func(*dictation.Options)) *harness {
	t.Helper()
	opts := dictation.DefaultOptions()
	for _, m := range mutate {
		m(&opts)
	}
	core, logs := observer.New(zapcore.DebugLevel)
	h := &harness{clock: &fakeClock{}, logs: logs}
	l, err := dictation.New(p, opts, zap.New(core),
		dictation.WithClock(h.clock),
		dictation.WithRunID("test-run"),
		dictation.WithObserver(func(tr dictation.Transition) { h.trans = append(h.trans, tr) }),
	)
	require.NoError(t, err)
	h.loop = l
	return h
}

func (h *harness) warnings(substr string) int {
	n := 0
	for _, e := range h.logs.FilterLevelExact(zapcore.WarnLevel).All() {
		if strings.Contains(e.Message, substr) {
			n++
		}
	}
	return n
}

// eventTypes returns the event types recorded for path, in order.
func eventTypes(doc *snapshot.Document, path string) []string {
	var out []string
	for _, e := range doc.Events() {
		if e.Path == path {
			out = append(out, e.Type)
		}
	}
	return out
}

// flakyPage fails selected operations of an underlying page. Each hook is
// consulted before delegating and fails the call when it returns an error.
type flakyPage struct {
	dom.Page
	textExcludingErr error
	clickErr         error
	queryErr         func(scope dom.Node, selector string) error
	setValueErr      func(n dom.Node) error
	dispatchErr      func(n dom.Node, event string) error
}

func (f *flakyPage) Query(ctx context.Context, scope dom.Node, selector string) (dom.Node, error) {
	if f.queryErr != nil {
		if err := f.queryErr(scope, selector); err != nil {
			return nil, err
		}
	}
	return f.Page.Query(ctx, scope, selector)
}

func (f *flakyPage) TextExcluding(ctx context.Context, n dom.Node, selector string) (string, error) {
	if f.textExcludingErr != nil {
		return "", f.textExcludingErr
	}
	return f.Page.TextExcluding(ctx, n, selector)
}

func (f *flakyPage) SetValue(ctx context.Context, n dom.Node, value string) error {
	if f.setValueErr != nil {
		if err := f.setValueErr(n); err != nil {
			return err
		}
	}
	return f.Page.SetValue(ctx, n, value)
}

func (f *flakyPage) Dispatch(ctx context.Context, n dom.Node, event string) error {
	if f.dispatchErr != nil {
		if err := f.dispatchErr(n, event); err != nil {
			return err
		}
	}
	return f.Page.Dispatch(ctx, n, event)
}

func (f *flakyPage) Click(ctx context.Context, n dom.Node) error {
	if f.clickErr != nil {
		return f.clickErr
	}
	return f.Page.Click(ctx, n)
}

// blankPath is the path of the i-th (1-based) blank inside exercise markup.
func blankPath(i int) string {
	return fmt.Sprintf("/html[1]/body[1]/div[1]/div[1]/span[%d]", i)
}

var errFlaky = errors.New("flaky page")

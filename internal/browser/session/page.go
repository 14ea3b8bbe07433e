// internal/browser/session/page.go
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dictafill/internal/browser/dom"
)

// ErrForeignNode is returned when a node from another dom.Page is passed in.
var ErrForeignNode = errors.New("node does not belong to this browser page")

// handle names an element registered with the in-page helper.
type handle struct {
	ID      int64  `json:"id"`
	TagName string `json:"tag"`
	XPath   string `json:"path"`
}

func (h *handle) Tag() string  { return h.TagName }
func (h *handle) Path() string { return h.XPath }

// Page implements dom.Page against a live browser tab.
type Page struct {
	tab     context.Context // chromedp tab context
	logger  *zap.Logger
	timeout time.Duration
}

var _ dom.Page = (*Page)(nil)

// NewPage wraps a chromedp tab context. timeout bounds each operation.
func NewPage(tab context.Context, timeout time.Duration, logger *zap.Logger) *Page {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Page{tab: tab, logger: logger.Named("page"), timeout: timeout}
}

type envelope[T any] struct {
	V T `json:"v"`
}

// call evaluates helper method op in the tab and decodes its result.
func call[T any](ctx context.Context, p *Page, op string, args ...any) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	opCtx, cancel := CombineContext(p.tab, ctx)
	defer cancel()
	if p.timeout > 0 {
		var cancelTimeout context.CancelFunc
		opCtx, cancelTimeout = context.WithTimeout(opCtx, p.timeout)
		defer cancelTimeout()
	}

	var obj *runtime.RemoteObject
	err := chromedp.Run(opCtx, chromedp.Evaluate(expression(op, args...), &obj,
		func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
			return ep.WithReturnByValue(true).WithSilent(true)
		}))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		if opCtx.Err() == context.DeadlineExceeded {
			p.logger.Debug("Page operation timed out.", zap.String("op", op), zap.Duration("timeout", p.timeout))
			return zero, fmt.Errorf("%s timed out after %v: %w", op, p.timeout, opCtx.Err())
		}
		return zero, fmt.Errorf("%s failed: %w", op, err)
	}
	if obj == nil {
		return zero, fmt.Errorf("%s returned no result", op)
	}

	var res envelope[T]
	if err := json.Unmarshal([]byte(obj.Value), &res); err != nil {
		return zero, fmt.Errorf("failed to decode %s result: %w (payload: %s)", op, err, string(obj.Value))
	}
	return res.V, nil
}

// ref converts a node to the id the helper expects; nil means the document.
func ref(n dom.Node) (any, error) {
	if n == nil {
		return nil, nil
	}
	h, ok := n.(*handle)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrForeignNode, dom.Describe(n))
	}
	return h.ID, nil
}

// asNode avoids returning a typed nil inside the interface.
func asNode(h *handle) dom.Node {
	if h == nil {
		return nil
	}
	return h
}

// Query returns the first match of selector under scope, or nil.
func (p *Page) Query(ctx context.Context, scope dom.Node, selector string) (dom.Node, error) {
	id, err := ref(scope)
	if err != nil {
		return nil, err
	}
	h, err := call[*handle](ctx, p, "query", id, selector)
	return asNode(h), err
}

// QueryAll returns every match of selector under scope in document order.
func (p *Page) QueryAll(ctx context.Context, scope dom.Node, selector string) ([]dom.Node, error) {
	id, err := ref(scope)
	if err != nil {
		return nil, err
	}
	hs, err := call[[]*handle](ctx, p, "queryAll", id, selector)
	if err != nil {
		return nil, err
	}
	nodes := make([]dom.Node, 0, len(hs))
	for _, h := range hs {
		if h != nil {
			nodes = append(nodes, h)
		}
	}
	return nodes, nil
}

// TextExcluding reads the text of a clone of n with every selector match
// removed. The live element is not modified.
func (p *Page) TextExcluding(ctx context.Context, n dom.Node, selector string) (string, error) {
	id, err := ref(n)
	if err != nil {
		return "", err
	}
	return call[string](ctx, p, "textExcluding", id, selector)
}

// Text returns the textContent of n.
func (p *Page) Text(ctx context.Context, n dom.Node) (string, error) {
	id, err := ref(n)
	if err != nil {
		return "", err
	}
	return call[string](ctx, p, "text", id)
}

// Attribute reports the value of name on n and whether it is present.
func (p *Page) Attribute(ctx context.Context, n dom.Node, name string) (string, bool, error) {
	id, err := ref(n)
	if err != nil {
		return "", false, err
	}
	attr, err := call[struct {
		Present bool   `json:"present"`
		Value   string `json:"value"`
	}](ctx, p, "attr", id, name)
	return attr.Value, attr.Present, err
}

// Parent returns the parent element of n, or nil at the document root.
func (p *Page) Parent(ctx context.Context, n dom.Node) (dom.Node, error) {
	id, err := ref(n)
	if err != nil {
		return nil, err
	}
	h, err := call[*handle](ctx, p, "parent", id)
	return asNode(h), err
}

// NextElementSibling returns the element following n, or nil.
func (p *Page) NextElementSibling(ctx context.Context, n dom.Node) (dom.Node, error) {
	id, err := ref(n)
	if err != nil {
		return nil, err
	}
	h, err := call[*handle](ctx, p, "next", id)
	return asNode(h), err
}

// SetValue assigns through the element prototype's native value setter so
// frameworks tracking the property observe the change.
func (p *Page) SetValue(ctx context.Context, n dom.Node, value string) error {
	id, err := ref(n)
	if err != nil {
		return err
	}
	_, err = call[bool](ctx, p, "setValue", id, value)
	return err
}

// Dispatch fires a bubbling event of the given type on n.
func (p *Page) Dispatch(ctx context.Context, n dom.Node, event string) error {
	id, err := ref(n)
	if err != nil {
		return err
	}
	_, err = call[bool](ctx, p, "dispatch", id, event)
	return err
}

// Click activates n the way a user click would, through HTMLElement.click.
func (p *Page) Click(ctx context.Context, n dom.Node) error {
	id, err := ref(n)
	if err != nil {
		return err
	}
	_, err = call[bool](ctx, p, "click", id)
	return err
}

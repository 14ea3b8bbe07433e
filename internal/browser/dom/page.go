// internal/browser/dom/page.go
package dom

import (
	"context"
)

// Event names emitted after a field value is written. The order matters to
// reactive front-ends that bind to their own change events.
const (
	EventInput  = "input"
	EventChange = "change"
	EventBlur   = "blur"
)

// FieldEvents is the exact notification sequence for a written field.
var FieldEvents = []string{EventInput, EventChange, EventBlur}

// Node is an opaque handle to an element owned by the hosting page.
// Handles are only valid for the document they were obtained from.
type Node interface {
	// Tag returns the upper-case tag name (e.g. "BUTTON").
	Tag() string
	// Path returns a human readable XPath used in logs.
	Path() string
}

// Page is the narrow capability the dictation loop needs from the hosting page.
// The page is externally owned: implementations read it, write field values,
// dispatch notifications and activate controls, nothing else.
//
// Selectors are CSS. A nil scope means the whole document. Lookups that find
// nothing return a nil Node and a nil error.
type Page interface {
	Query(ctx context.Context, scope Node, selector string) (Node, error)
	QueryAll(ctx context.Context, scope Node, selector string) ([]Node, error)

	// TextExcluding returns the text of a detached copy of n after removing
	// every descendant matching selector. The live document is not modified.
	TextExcluding(ctx context.Context, n Node, selector string) (string, error)
	Text(ctx context.Context, n Node) (string, error)
	Attribute(ctx context.Context, n Node, name string) (string, bool, error)

	Parent(ctx context.Context, n Node) (Node, error)
	NextElementSibling(ctx context.Context, n Node) (Node, error)

	SetValue(ctx context.Context, n Node, value string) error
	// Dispatch fires a bubbling event of the given type on n.
	Dispatch(ctx context.Context, n Node, event string) error
	Click(ctx context.Context, n Node) error
}

// Describe returns a loggable description of n, tolerating nil.
func Describe(n Node) string {
	if n == nil {
		return "<nil>"
	}
	if p := n.Path(); p != "" {
		return p
	}
	return n.Tag()
}

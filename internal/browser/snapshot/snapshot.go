// internal/browser/snapshot/snapshot.go
//
// Package snapshot implements dom.Page over a parsed HTML document. It backs
// the offline extract command and serves as the page double in tests: writes
// and notifications are recorded instead of reaching any reactive framework.
package snapshot

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/dictafill/internal/browser/dom"
)

// Event is a notification or activation observed on a node.
type Event struct {
	Path  string
	Type  string
	Value string // value of the node at dispatch time
}

// Write is a value assignment observed on a node.
type Write struct {
	Path  string
	Value string
}

// ClickFunc runs after a click is recorded. It may Replace the document to
// simulate the next exercise screen.
type ClickFunc func(d *Document, n dom.Node) error

// Document is a dom.Page over an in-memory HTML tree. It is owned by a
// single goroutine.
type Document struct {
	root    *html.Node
	events  []Event
	writes  []Write
	onClick ClickFunc
}

var _ dom.Page = (*Document)(nil)

// node wraps an element of the current tree.
type node struct {
	n *html.Node
}

func (n *node) Tag() string  { return strings.ToUpper(n.n.Data) }
func (n *node) Path() string { return dom.NodePath(n.n) }

// Load parses an HTML document.
func Load(r io.Reader) (*Document, error) {
	root, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return &Document{root: root}, nil
}

// LoadString is Load for inline markup.
func LoadString(s string) (*Document, error) {
	return Load(strings.NewReader(s))
}

// LoadFile parses the HTML file at path.
func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// OnClick installs a hook run after every click.
func (d *Document) OnClick(fn ClickFunc) { d.onClick = fn }

// Replace swaps the document tree. Handles into the old tree become stale.
func (d *Document) Replace(r io.Reader) error {
	root, err := htmlquery.Parse(r)
	if err != nil {
		return fmt.Errorf("failed to parse replacement html: %w", err)
	}
	d.root = root
	return nil
}

// Root exposes the current tree for assertions.
func (d *Document) Root() *html.Node { return d.root }

// Events returns the recorded notifications and clicks in order.
func (d *Document) Events() []Event { return append([]Event(nil), d.events...) }

// Writes returns the recorded value assignments in order.
func (d *Document) Writes() []Write { return append([]Write(nil), d.writes...) }

// HTML renders the current tree.
func (d *Document) HTML() string { return htmlquery.OutputHTML(d.root, true) }

func (d *Document) resolve(n dom.Node) (*html.Node, error) {
	if n == nil {
		return d.root, nil
	}
	sn, ok := n.(*node)
	if !ok {
		return nil, fmt.Errorf("node %s does not belong to a snapshot document", dom.Describe(n))
	}
	if !d.attached(sn.n) {
		return nil, fmt.Errorf("stale node %s", dom.Describe(n))
	}
	return sn.n, nil
}

func (d *Document) attached(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

func wrap(n *html.Node) dom.Node {
	if n == nil {
		return nil
	}
	return &node{n: n}
}

func compile(selector string) (cascadia.SelectorGroup, error) {
	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	return sel, nil
}

// Query returns the first descendant of scope matching selector, in document order.
func (d *Document) Query(ctx context.Context, scope dom.Node, selector string) (dom.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root, err := d.resolve(scope)
	if err != nil {
		return nil, err
	}
	sel, err := compile(selector)
	if err != nil {
		return nil, err
	}
	return wrap(cascadia.Query(root, sel)), nil
}

// QueryAll returns every descendant of scope matching selector, in document order.
func (d *Document) QueryAll(ctx context.Context, scope dom.Node, selector string) ([]dom.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root, err := d.resolve(scope)
	if err != nil {
		return nil, err
	}
	sel, err := compile(selector)
	if err != nil {
		return nil, err
	}
	matches := cascadia.QueryAll(root, sel)
	out := make([]dom.Node, 0, len(matches))
	for _, m := range matches {
		out = append(out, wrap(m))
	}
	return out, nil
}

// TextExcluding reads the text of a deep copy of n with matches of selector removed.
func (d *Document) TextExcluding(ctx context.Context, n dom.Node, selector string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	src, err := d.resolve(n)
	if err != nil {
		return "", err
	}
	sel, err := compile(selector)
	if err != nil {
		return "", err
	}
	clone := cloneTree(src)
	for _, m := range cascadia.QueryAll(clone, sel) {
		if m.Parent != nil {
			m.Parent.RemoveChild(m)
		}
	}
	return htmlquery.InnerText(clone), nil
}

// Text returns the text content of n.
func (d *Document) Text(ctx context.Context, n dom.Node) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	src, err := d.resolve(n)
	if err != nil {
		return "", err
	}
	return htmlquery.InnerText(src), nil
}

// Attribute reports the value of name on n and whether it is present.
func (d *Document) Attribute(ctx context.Context, n dom.Node, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	src, err := d.resolve(n)
	if err != nil {
		return "", false, err
	}
	for _, a := range src.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			return a.Val, true, nil
		}
	}
	return "", false, nil
}

// Parent returns the parent element of n, or nil at the top of the tree.
func (d *Document) Parent(ctx context.Context, n dom.Node) (dom.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := d.resolve(n)
	if err != nil {
		return nil, err
	}
	if p := src.Parent; p != nil && p.Type == html.ElementNode {
		return wrap(p), nil
	}
	return nil, nil
}

// NextElementSibling skips text and comment siblings.
func (d *Document) NextElementSibling(ctx context.Context, n dom.Node) (dom.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := d.resolve(n)
	if err != nil {
		return nil, err
	}
	for s := src.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == html.ElementNode {
			return wrap(s), nil
		}
	}
	return nil, nil
}

// SetValue stores value in the node's value attribute.
func (d *Document) SetValue(ctx context.Context, n dom.Node, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := d.resolve(n)
	if err != nil {
		return err
	}
	setAttr(src, "value", value)
	d.writes = append(d.writes, Write{Path: dom.NodePath(src), Value: value})
	return nil
}

// Dispatch records a notification on n.
func (d *Document) Dispatch(ctx context.Context, n dom.Node, event string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := d.resolve(n)
	if err != nil {
		return err
	}
	d.events = append(d.events, Event{
		Path:  dom.NodePath(src),
		Type:  event,
		Value: htmlquery.SelectAttr(src, "value"),
	})
	return nil
}

// Click records an activation on n and runs the click hook, if any.
func (d *Document) Click(ctx context.Context, n dom.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := d.resolve(n)
	if err != nil {
		return err
	}
	d.events = append(d.events, Event{Path: dom.NodePath(src), Type: "click"})
	if d.onClick != nil {
		return d.onClick(d, n)
	}
	return nil
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Namespace == "" && n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// cloneTree returns a detached deep copy of n.
func cloneTree(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(cloneTree(child))
	}
	return c
}

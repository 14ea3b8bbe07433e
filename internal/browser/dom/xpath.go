// internal/browser/dom/xpath.go
package dom

import (
	"fmt"
	"slices"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// NodePath names an element with the same XPath the in-page helper reports,
// so offline reports and live logs point at the same element. Steps are
// positional among same-tag siblings, up to the nearest ancestor with an id.
// Anything that is not an element yields "".
func NodePath(n *html.Node) string {
	var steps []string
	for el := n; el != nil && el.Type == html.ElementNode; el = el.Parent {
		if id := htmlquery.SelectAttr(el, "id"); id != "" {
			steps = append(steps, "//*[@id="+xpathLiteral(id)+"]")
			break
		}
		steps = append(steps, fmt.Sprintf("%s[%d]", strings.ToLower(el.Data), sameTagPosition(el)))
	}
	if len(steps) == 0 {
		return ""
	}
	slices.Reverse(steps)
	path := strings.Join(steps, "/")
	if strings.HasPrefix(path, "//") {
		return path
	}
	return "/" + path
}

// sameTagPosition is the 1-based XPath index of el among its siblings.
func sameTagPosition(el *html.Node) int {
	pos := 1
	for prev := el.PrevSibling; prev != nil; prev = prev.PrevSibling {
		if prev.Type == html.ElementNode && strings.EqualFold(prev.Data, el.Data) {
			pos++
		}
	}
	return pos
}

// xpathLiteral quotes s for an XPath expression. XPath 1.0 has no escapes,
// so a value holding both quote kinds is spelled with concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	var args []string
	for i, part := range strings.Split(s, "'") {
		if i > 0 {
			args = append(args, `"'"`)
		}
		if part != "" {
			args = append(args, "'"+part+"'")
		}
	}
	return "concat(" + strings.Join(args, ", ") + ")"
}

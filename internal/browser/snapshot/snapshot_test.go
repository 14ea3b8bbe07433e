// internal/browser/snapshot/snapshot_test.go
package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/dictafill/internal/browser/dom"
)

const fixture = `<html><body>
<div id="sen">
  <span class="sen-wd" data-word="alpha"><input>al<span class="hint">x</span>pha</span>
  <!-- gap -->
  text
  <b>bold</b>
</div>
<button title="Next">go</button>
</body></html>`

func load(t *testing.T) *Document {
	t.Helper()
	doc, err := LoadString(fixture)
	require.NoError(t, err)
	return doc
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	doc := load(t)

	sen, err := doc.Query(ctx, nil, "#sen")
	require.NoError(t, err)
	require.NotNil(t, sen)
	assert.Equal(t, "DIV", sen.Tag())
	assert.Equal(t, "//*[@id='sen']", sen.Path())

	missing, err := doc.Query(ctx, nil, ".nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// Scoped: the button is outside #sen.
	btn, err := doc.Query(ctx, sen, "button")
	require.NoError(t, err)
	assert.Nil(t, btn)

	all, err := doc.QueryAll(ctx, nil, "span, b")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"SPAN", "SPAN", "B"}, []string{all[0].Tag(), all[1].Tag(), all[2].Tag()})

	_, err = doc.Query(ctx, nil, "[[")
	assert.ErrorContains(t, err, "invalid selector")
}

func TestText(t *testing.T) {
	ctx := context.Background()
	doc := load(t)
	blank, err := doc.Query(ctx, nil, ".sen-wd")
	require.NoError(t, err)

	full, err := doc.Text(ctx, blank)
	require.NoError(t, err)
	assert.Equal(t, "alxpha", full)

	residual, err := doc.TextExcluding(ctx, blank, ".hint")
	require.NoError(t, err)
	assert.Equal(t, "alpha", residual)

	// The live tree is untouched by the exclusion.
	hint, err := doc.Query(ctx, blank, ".hint")
	require.NoError(t, err)
	assert.NotNil(t, hint)
}

func TestAttribute(t *testing.T) {
	ctx := context.Background()
	doc := load(t)
	blank, err := doc.Query(ctx, nil, ".sen-wd")
	require.NoError(t, err)

	v, ok, err := doc.Attribute(ctx, blank, "DATA-WORD")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alpha", v)

	_, ok, err = doc.Attribute(ctx, blank, "data-answer")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTraversal(t *testing.T) {
	ctx := context.Background()
	doc := load(t)
	blank, err := doc.Query(ctx, nil, ".sen-wd")
	require.NoError(t, err)

	parent, err := doc.Parent(ctx, blank)
	require.NoError(t, err)
	assert.Equal(t, "//*[@id='sen']", parent.Path())

	// Comment and text siblings are skipped.
	next, err := doc.NextElementSibling(ctx, blank)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "B", next.Tag())

	last, err := doc.NextElementSibling(ctx, next)
	require.NoError(t, err)
	assert.Nil(t, last)

	htmlNode, err := doc.Query(ctx, nil, "html")
	require.NoError(t, err)
	top, err := doc.Parent(ctx, htmlNode)
	require.NoError(t, err)
	assert.Nil(t, top, "the document node is not an element")
}

func TestWritesAndEvents(t *testing.T) {
	ctx := context.Background()
	doc := load(t)
	field, err := doc.Query(ctx, nil, "input")
	require.NoError(t, err)

	require.NoError(t, doc.Dispatch(ctx, field, dom.EventInput))
	require.NoError(t, doc.SetValue(ctx, field, "alpha"))
	require.NoError(t, doc.Dispatch(ctx, field, dom.EventChange))

	path := field.Path()
	assert.Equal(t, []Write{{Path: path, Value: "alpha"}}, doc.Writes())
	assert.Equal(t, []Event{
		{Path: path, Type: dom.EventInput, Value: ""},
		{Path: path, Type: dom.EventChange, Value: "alpha"},
	}, doc.Events())
	assert.Contains(t, doc.HTML(), `value="alpha"`)
}

func TestClick_ReplaceMakesHandlesStale(t *testing.T) {
	ctx := context.Background()
	doc := load(t)
	doc.OnClick(func(d *Document, n dom.Node) error {
		return d.Replace(strings.NewReader(`<html><body><div id="sen">second</div></body></html>`))
	})

	btn, err := doc.Query(ctx, nil, "button")
	require.NoError(t, err)
	sen, err := doc.Query(ctx, nil, "#sen")
	require.NoError(t, err)

	require.NoError(t, doc.Click(ctx, btn))
	assert.Equal(t, "click", doc.Events()[0].Type)

	_, err = doc.Text(ctx, sen)
	assert.ErrorContains(t, err, "stale node")

	fresh, err := doc.Query(ctx, nil, "#sen")
	require.NoError(t, err)
	text, err := doc.Text(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, "second", text)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	doc := load(t)

	_, err := doc.Query(ctx, nil, "div")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, doc.Click(ctx, nil), context.Canceled)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))

	doc, err := LoadFile(path)
	require.NoError(t, err)
	n, err := doc.Query(context.Background(), nil, "button")
	require.NoError(t, err)
	assert.NotNil(t, n)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.html"))
	assert.Error(t, err)
}

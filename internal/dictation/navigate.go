package dictation

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dictafill/internal/browser/dom"
)

// Navigation strategy names, in the order they are tried.
const (
	StrategyDirect            = "direct"
	StrategyPlaySibling       = "play-sibling"
	StrategyPlayParentSibling = "play-parent-sibling"
	StrategyIcon              = "icon"
)

// FindNavigation locates the control that advances to the next exercise.
func (l *Loop) FindNavigation(ctx context.Context) (dom.Match[dom.Node], bool, error) {
	return dom.FirstMatch(ctx, l.navigationProbes())
}

// Advance clicks the navigation control. It reports false when no strategy
// found one. A failed click is returned as an error, and so are page errors
// that kept every strategy from finding a control.
func (l *Loop) Advance(ctx context.Context) (bool, error) {
	match, ok, err := l.FindNavigation(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		if !ok {
			return false, fmt.Errorf("locate navigation control: %w", err)
		}
		l.logger.Debug("Navigation probes reported errors.", zap.Error(err))
	}
	if !ok {
		return false, nil
	}

	l.logger.Info("Found navigation control. Clicking.",
		zap.String("strategy", match.Source), zap.String("control", dom.Describe(match.Value)))
	if err := l.page.Click(ctx, match.Value); err != nil {
		return false, fmt.Errorf("click %s: %w", dom.Describe(match.Value), err)
	}
	return true, nil
}

func (l *Loop) navigationProbes() []dom.Probe[dom.Node] {
	sel := l.opts.Selectors
	next := group(sel.Next)
	play := group(sel.Play)
	icon := group(sel.Icon)

	return []dom.Probe[dom.Node]{
		{Name: StrategyDirect, Find: func(ctx context.Context) (dom.Node, bool, error) {
			return l.queryDocument(ctx, next)
		}},
		{Name: StrategyPlaySibling, Find: func(ctx context.Context) (dom.Node, bool, error) {
			playBtn, ok, err := l.queryDocument(ctx, play)
			if err != nil || !ok {
				return nil, false, err
			}
			parent, err := l.page.Parent(ctx, playBtn)
			if err != nil || parent == nil {
				return nil, false, err
			}
			sib, err := l.page.NextElementSibling(ctx, playBtn)
			for err == nil && sib != nil {
				if l.siblingTag(sib.Tag()) {
					return sib, true, nil
				}
				sib, err = l.page.NextElementSibling(ctx, sib)
			}
			return nil, false, err
		}},
		{Name: StrategyPlayParentSibling, Find: func(ctx context.Context) (dom.Node, bool, error) {
			playBtn, ok, err := l.queryDocument(ctx, play)
			if err != nil || !ok {
				return nil, false, err
			}
			parent, err := l.page.Parent(ctx, playBtn)
			if err != nil || parent == nil {
				return nil, false, err
			}
			sib, err := l.page.NextElementSibling(ctx, parent)
			if err != nil || sib == nil {
				return nil, false, err
			}
			return sib, true, nil
		}},
		{Name: StrategyIcon, Find: func(ctx context.Context) (dom.Node, bool, error) {
			iconNode, ok, err := l.queryDocument(ctx, icon)
			if err != nil || !ok {
				return nil, false, err
			}
			parent, err := l.page.Parent(ctx, iconNode)
			if err != nil {
				return nil, false, err
			}
			if parent != nil && strings.EqualFold(parent.Tag(), sel.IconWrapperTag) {
				return parent, true, nil
			}
			return iconNode, true, nil
		}},
	}
}

func (l *Loop) queryDocument(ctx context.Context, selector string) (dom.Node, bool, error) {
	if selector == "" {
		return nil, false, nil
	}
	n, err := l.page.Query(ctx, nil, selector)
	if err != nil || n == nil {
		return nil, false, err
	}
	return n, true, nil
}

func (l *Loop) siblingTag(tag string) bool {
	return slices.ContainsFunc(l.opts.Selectors.SiblingTags, func(t string) bool {
		return strings.EqualFold(t, tag)
	})
}

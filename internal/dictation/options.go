package dictation

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"

	"github.com/xkilldash9x/dictafill/internal/config"
)

// Selectors locate the exercise structure on the hosting page. They are CSS;
// a list is joined into one selector group so the page's document order
// decides between simultaneous matches.
type Selectors struct {
	Container        string
	Blank            string
	Field            string
	AnswerAttributes []string
	AnswerFallbacks  []string
	Next             []string
	Play             []string
	SiblingTags      []string
	Icon             []string
	IconWrapperTag   string
}

// RetryPolicy governs how long the fill phase waits for a missing container.
// Factor 1 with MaxAttempts 0 polls forever at a fixed interval.
type RetryPolicy struct {
	Delay       time.Duration
	Factor      float64
	MaxDelay    time.Duration
	MaxAttempts int
}

// Options configures a Loop.
type Options struct {
	Selectors Selectors
	Retry     RetryPolicy
	// AdvanceDelay separates the end of a fill cycle from the advance attempt.
	AdvanceDelay time.Duration
	// RenderDelay separates a navigation click from the next fill cycle.
	RenderDelay time.Duration
}

// DefaultSelectors matches the listening exercise player.
func DefaultSelectors() Selectors {
	return Selectors{
		Container:        ".listen-container .listen-sen",
		Blank:            ".sen-wd",
		Field:            "input",
		AnswerAttributes: []string{"data-word", "data-answer", "data-text"},
		AnswerFallbacks:  []string{".answer", ".hidden-text", `span[style*="display: none"]`},
		Next: []string{
			".next", ".next-btn", ".icon-next",
			`[title="下一句"]`, `[title="Next"]`, ".keke-player-next",
		},
		Play:           []string{".play", ".icon-play", ".fa-play", `[title="播放"]`},
		SiblingTags:    []string{"DIV", "I", "SPAN", "A", "BUTTON"},
		Icon:           []string{".fa-chevron-right", ".icon-chevron-right", ".fa-arrow-right"},
		IconWrapperTag: "BUTTON",
	}
}

// DefaultOptions returns the stock timings: 2s container polling without a
// ceiling, 1.5s before advancing, 3s for the next screen to render.
func DefaultOptions() Options {
	return Options{
		Selectors: DefaultSelectors(),
		Retry: RetryPolicy{
			Delay:  2000 * time.Millisecond,
			Factor: 1,
		},
		AdvanceDelay: 1500 * time.Millisecond,
		RenderDelay:  3000 * time.Millisecond,
	}
}

// Validate checks the options for values the loop cannot work with.
func (o Options) Validate() error {
	s := o.Selectors
	if strings.TrimSpace(s.Container) == "" || strings.TrimSpace(s.Blank) == "" || strings.TrimSpace(s.Field) == "" {
		return fmt.Errorf("container, blank and field selectors are required")
	}
	if err := s.validateSyntax(); err != nil {
		return err
	}
	if o.Retry.Delay <= 0 {
		return fmt.Errorf("retry delay must be positive")
	}
	if o.Retry.Factor < 1 {
		return fmt.Errorf("retry factor must be at least 1, got %v", o.Retry.Factor)
	}
	if o.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry max attempts must not be negative")
	}
	if o.AdvanceDelay < 0 || o.RenderDelay < 0 {
		return fmt.Errorf("advance and render delays must not be negative")
	}
	return nil
}

// validateSyntax parses every selector so a typo fails at startup instead of
// reading as a missing container on every poll.
func (s Selectors) validateSyntax() error {
	checks := []struct {
		name     string
		selector string
	}{
		{"container", s.Container},
		{"blank", s.Blank},
		{"field", s.Field},
		{"answer fallback", group(s.AnswerFallbacks)},
		{"next", group(s.Next)},
		{"play", group(s.Play)},
		{"icon", group(s.Icon)},
	}
	for _, c := range checks {
		if c.selector == "" {
			continue
		}
		if _, err := cascadia.ParseGroup(c.selector); err != nil {
			return fmt.Errorf("invalid %s selector %q: %w", c.name, c.selector, err)
		}
	}
	return nil
}

// Next returns the wait before retry number attempt (1-based).
func (p RetryPolicy) Next(attempt int) time.Duration {
	d := p.Delay
	for i := 1; i < attempt && p.Factor > 1; i++ {
		d = time.Duration(float64(d) * p.Factor)
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Exhausted reports whether attempt misses used up the policy.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}

func group(selectors []string) string {
	parts := make([]string, 0, len(selectors))
	for _, s := range selectors {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// OptionsFromConfig converts the dictation section of the application
// configuration.
func OptionsFromConfig(cfg config.DictationConfig) Options {
	s := cfg.Selectors
	return Options{
		Selectors: Selectors{
			Container:        s.Container,
			Blank:            s.Blank,
			Field:            s.Field,
			AnswerAttributes: slices.Clone(s.AnswerAttributes),
			AnswerFallbacks:  slices.Clone(s.AnswerFallbacks),
			Next:             slices.Clone(s.Next),
			Play:             slices.Clone(s.Play),
			SiblingTags:      slices.Clone(s.SiblingTags),
			Icon:             slices.Clone(s.Icon),
			IconWrapperTag:   s.IconWrapperTag,
		},
		Retry: RetryPolicy{
			Delay:       cfg.ContainerRetry.Delay,
			Factor:      cfg.ContainerRetry.Factor,
			MaxDelay:    cfg.ContainerRetry.MaxDelay,
			MaxAttempts: cfg.ContainerRetry.MaxAttempts,
		},
		AdvanceDelay: cfg.AdvanceDelay,
		RenderDelay:  cfg.RenderDelay,
	}
}

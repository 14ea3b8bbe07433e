// internal/browser/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dictafill/internal/config"
)

// ErrNoTarget is returned when the browser has no tab matching the configuration.
var ErrNoTarget = errors.New("no matching page target")

// Session owns the browser connection behind a Page.
type Session struct {
	*Page

	mode     string
	targetID target.ID
	logger   *zap.Logger

	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

// Connect attaches to a running browser or launches one, depending on
// cfg.Mode, and returns a session bound to a single tab. ctx bounds the
// connection phase only; the session lives until Close.
func Connect(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("session")

	switch cfg.Mode {
	case config.ModeAttach:
		return attach(ctx, cfg, logger)
	case config.ModeLaunch:
		return launch(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown browser mode %q", cfg.Mode)
	}
}

// contextOptions routes chromedp diagnostics into the session logger.
func contextOptions(logger *zap.Logger) []chromedp.ContextOption {
	sugar := logger.Named("cdp").Sugar()
	return []chromedp.ContextOption{
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Errorf),
	}
}

// attach connects to a browser the user started with remote debugging
// enabled, lists its tabs (retrying while the endpoint comes up), and binds
// to the exercise tab. The browser and the tab belong to the user.
func attach(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	logger.Info("Attaching to running browser.", zap.String("remote_url", cfg.RemoteURL))

	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
	// No target is attached to the browser context, so ending it never closes a tab.
	browserCtx, _ := chromedp.NewContext(allocCtx, contextOptions(logger)...)

	var infos []*target.Info
	err := retry.Do(
		func() error {
			var err error
			infos, err = chromedp.Targets(browserCtx)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(cfg.ConnectAttempts)),
		retry.Delay(cfg.ConnectDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("Browser endpoint not reachable yet.", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		cancelAlloc()
		return nil, fmt.Errorf("failed to list targets at %s: %w", cfg.RemoteURL, err)
	}

	info, err := selectTarget(infos, cfg.TargetMatch)
	if err != nil {
		cancelAlloc()
		return nil, err
	}

	tabCtx, cancelTab := attachedTabContext(browserCtx, info.TargetID, logger)
	// The first Run attaches to the tab; it must use the tab context itself.
	if err := chromedp.Run(tabCtx); err != nil {
		releaseTab(tabCtx, cancelTab)
		cancelAlloc()
		return nil, fmt.Errorf("failed to attach to target %s: %w", info.TargetID, err)
	}

	logger.Info("Attached to page.", zap.String("target_id", string(info.TargetID)),
		zap.String("url", info.URL), zap.String("title", info.Title))
	return &Session{
		Page:        NewPage(tabCtx, cfg.OperationTimeout, logger),
		mode:        config.ModeAttach,
		targetID:    info.TargetID,
		logger:      logger,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
	}, nil
}

// attachedTabContext builds the context for a tab the user opened. chromedp
// closes a tab it did not create once that tab's context ends, so the tab
// context hangs off a detached parent: tearing down the allocator cannot end
// it. Release it with releaseTab.
func attachedTabContext(browserCtx context.Context, id target.ID, logger *zap.Logger) (context.Context, context.CancelFunc) {
	opts := append(contextOptions(logger), chromedp.WithTargetID(id))
	return chromedp.NewContext(Detach(browserCtx), opts...)
}

// releaseTab ends an attached tab context without closing the tab. With no
// target recorded, chromedp has nothing to detach or close.
func releaseTab(tabCtx context.Context, cancelTab context.CancelFunc) {
	if c := chromedp.FromContext(tabCtx); c != nil {
		c.Target = nil
	}
	cancelTab()
}

// selectTarget picks the first page target whose URL contains match. An
// empty match accepts any page.
func selectTarget(infos []*target.Info, match string) (*target.Info, error) {
	for _, info := range infos {
		if info == nil || info.Type != "page" {
			continue
		}
		if match == "" || strings.Contains(info.URL, match) {
			return info, nil
		}
	}
	if match == "" {
		return nil, ErrNoTarget
	}
	return nil, fmt.Errorf("%w: no tab URL contains %q", ErrNoTarget, match)
}

// launch starts a dedicated browser, opens cfg.URL in its first tab and
// waits for navigation within StartupTimeout. The browser belongs to the
// session and is shut down by Close.
func launch(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	logger.Info("Launching browser.", zap.Bool("headless", cfg.Headless), zap.String("url", cfg.URL))

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, contextOptions(logger)...)

	// Start the browser on the tab context, then bound navigation separately.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("browser failed to start: %w", err)
	}

	navCtx, cancelNav := CombineContext(tabCtx, ctx)
	defer cancelNav()
	if cfg.StartupTimeout > 0 {
		var cancelTimeout context.CancelFunc
		navCtx, cancelTimeout = context.WithTimeout(navCtx, cfg.StartupTimeout)
		defer cancelTimeout()
	}
	if err := chromedp.Run(navCtx, chromedp.Navigate(cfg.URL)); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("failed to open %s: %w", cfg.URL, err)
	}

	var targetID target.ID
	if t := chromedp.FromContext(tabCtx).Target; t != nil {
		targetID = t.TargetID
	}
	logger.Info("Browser ready.", zap.String("target_id", string(targetID)))
	return &Session{
		Page:        NewPage(tabCtx, cfg.OperationTimeout, logger),
		mode:        config.ModeLaunch,
		targetID:    targetID,
		logger:      logger,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
	}, nil
}

// launchFlags collects the command line switches for a launched browser.
// Values are bool or string, as chromedp.Flag expects.
func launchFlags(cfg config.BrowserConfig, goos string) map[string]any {
	flags := map[string]any{
		"headless":               cfg.Headless,
		"disable-gpu":            cfg.Headless,
		"disable-blink-features": "AutomationControlled",
		// The exercise is dictation; the default allocator mutes audio.
		"mute-audio": false,
	}
	if goos == "linux" {
		flags["no-sandbox"] = true
		flags["disable-dev-shm-usage"] = true
	}
	for _, arg := range cfg.Args {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			flags[name] = value
		} else {
			flags[name] = true
		}
	}
	return flags
}

// allocatorOptions starts from the chromedp defaults. Flags appended later
// override earlier ones, which is how enable-automation is turned off.
func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.Flag("enable-automation", false))
	for name, value := range launchFlags(cfg, runtime.GOOS) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	return opts
}

// TargetID identifies the tab the session drives.
func (s *Session) TargetID() string { return string(s.targetID) }

// Close releases the session. An attached browser and its tab are left
// running; a launched browser is shut down.
func (s *Session) Close() error {
	switch s.mode {
	case config.ModeLaunch:
		ctx, cancel := context.WithTimeout(s.tab, 5*time.Second)
		defer cancel()
		if err := chromedp.Cancel(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Debug("Browser did not shut down cleanly.", zap.Error(err))
		}
		s.cancelTab()
	default:
		releaseTab(s.tab, s.cancelTab)
	}
	s.cancelAlloc()
	s.logger.Debug("Session closed.")
	return nil
}

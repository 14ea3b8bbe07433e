// -- cmd/run.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dictafill/internal/browser/dom"
	"github.com/xkilldash9x/dictafill/internal/browser/session"
	"github.com/xkilldash9x/dictafill/internal/config"
	"github.com/xkilldash9x/dictafill/internal/dictation"
	"github.com/xkilldash9x/dictafill/internal/observability"
)

// connector opens the page the loop drives. The returned func releases it.
type connector func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (dom.Page, func() error, error)

// connectBrowser is the production connector: a chromedp session in attach or
// launch mode. Closing it leaves an attached tab open.
func connectBrowser(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (dom.Page, func() error, error) {
	s, err := session.Connect(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

// newRunCmd builds the run command. Its flags are bound into the command
// tree's viper instance, so a flag overrides the environment and the config
// file for that key only.
func newRunCmd(a *app, connect connector) *cobra.Command {
	var once bool

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Fill the exercise in a browser tab and keep advancing until the last one",
		Long: `Run attaches to a browser (or launches one), fills every blank of the
current dictation exercise with its answer, clicks the control leading to the
next exercise and repeats. The loop stops when no navigation control is left.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoop(cmd.Context(), a.cfg, observability.GetLogger(), cmd.OutOrStdout(), connect, once)
		},
	}

	flags := runCmd.Flags()
	flags.String("mode", "", "browser mode: attach or launch")
	flags.String("remote-url", "", "DevTools endpoint of a running browser (attach mode)")
	flags.String("url", "", "exercise URL to open (launch mode)")
	flags.String("target-match", "", "attach to the first tab whose URL contains this text")
	flags.Bool("headless", false, "run the launched browser headless")
	flags.Int("max-container-retries", 0, "give up after this many polls for a missing exercise (0 polls forever)")
	flags.BoolVar(&once, "once", false, "fill the current exercise and exit without advancing")

	mustBind(a.v, "browser.mode", flags.Lookup("mode"))
	mustBind(a.v, "browser.remote_url", flags.Lookup("remote-url"))
	mustBind(a.v, "browser.url", flags.Lookup("url"))
	mustBind(a.v, "browser.target_match", flags.Lookup("target-match"))
	mustBind(a.v, "browser.headless", flags.Lookup("headless"))
	mustBind(a.v, "dictation.container_retry.max_attempts", flags.Lookup("max-container-retries"))
	return runCmd
}

// runLoop drives the page until the loop stops. Running out of navigation
// controls is the normal end of a session and is not an error.
func runLoop(ctx context.Context, cfg *config.Config, logger *zap.Logger, out io.Writer, connect connector, once bool) error {
	page, release, err := connect(ctx, cfg.Browser, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}
	defer func() {
		if err := release(); err != nil {
			logger.Warn("Failed to release browser session.", zap.Error(err))
		}
	}()

	loop, err := dictation.New(page, dictation.OptionsFromConfig(cfg.Dictation), logger)
	if err != nil {
		return err
	}

	if once {
		res, err := loop.AttemptFill(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "filled %d of %d blank(s), skipped %d\n", res.Filled, res.Blanks, res.Skipped)
		return nil
	}

	sum, err := loop.Run(ctx)
	fmt.Fprintf(out, "run %s: %d exercise(s), %d filled, %d skipped, %d advance(s), stopped: %s\n",
		sum.RunID, sum.Cycles, sum.Filled, sum.Skipped, sum.Advances, sum.StopReason)

	switch {
	case errors.Is(err, dictation.ErrNoNavigationControl):
		return nil
	case errors.Is(err, context.Canceled):
		logger.Info("Interrupted. Loop stopped.")
	}
	return err
}

// -- cmd/extract.go --
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/dictafill/internal/browser/snapshot"
	"github.com/xkilldash9x/dictafill/internal/config"
	"github.com/xkilldash9x/dictafill/internal/dictation"
	"github.com/xkilldash9x/dictafill/internal/observability"
)

const (
	formatJSON = "json"
	formatText = "text"

	extractConcurrency = 4
)

// extractReport is the outcome for one saved page.
type extractReport struct {
	File       string                `json:"file"`
	Inspection *dictation.Inspection `json:"inspection,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// newExtractCmd builds the extract command, which reads saved exercise pages
// and reports what a fill cycle would write without touching a browser.
func newExtractCmd(a *app) *cobra.Command {
	var format string

	extractCmd := &cobra.Command{
		Use:   "extract [files...]",
		Short: "Show the answers and navigation control found in saved exercise pages",
		Long: `Extract reads saved HTML pages and reports, for each blank, the answer the
run command would type and where it came from, plus the control it would
click to advance. Pages are never modified.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != formatJSON && format != formatText {
				return fmt.Errorf("unsupported format %q (use %s or %s)", format, formatJSON, formatText)
			}
			reports, err := extractAll(cmd.Context(), a.cfg, observability.GetLogger(), args)
			if err != nil {
				return err
			}
			if format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), reports)
			}
			return writeText(cmd.OutOrStdout(), reports)
		},
	}

	extractCmd.Flags().StringVarP(&format, "format", "f", formatText, "output format (text, json)")
	return extractCmd
}

// extractAll inspects files concurrently. A page that fails to load or
// inspect is reported, not fatal; only cancellation aborts the batch.
func extractAll(ctx context.Context, cfg *config.Config, logger *zap.Logger, files []string) ([]extractReport, error) {
	opts := dictation.OptionsFromConfig(cfg.Dictation)
	reports := make([]extractReport, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(extractConcurrency)
	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			reports[i] = inspectFile(gctx, file, opts, logger)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, ctx.Err()
}

// inspectFile loads one saved page and inspects it. Failures are reported in
// the result so one bad file does not hide the others.
func inspectFile(ctx context.Context, file string, opts dictation.Options, logger *zap.Logger) extractReport {
	report := extractReport{File: file}

	doc, err := snapshot.LoadFile(file)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	loop, err := dictation.New(doc, opts, logger.With(zap.String("file", file)))
	if err != nil {
		report.Error = err.Error()
		return report
	}
	in, err := loop.Inspect(ctx)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	report.Inspection = &in
	return report
}

func writeJSON(w io.Writer, reports []extractReport) error {
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}

func writeText(w io.Writer, reports []extractReport) error {
	var b strings.Builder
	for _, r := range reports {
		fmt.Fprintf(&b, "%s\n", r.File)
		if r.Error != "" {
			fmt.Fprintf(&b, "  error: %s\n", r.Error)
			continue
		}
		fill := r.Inspection.Fill
		answered := 0
		for _, f := range fill.Fields {
			if f.Answer != "" {
				answered++
			}
		}
		fmt.Fprintf(&b, "  blanks: %d, answered: %d, unanswered: %d\n", fill.Blanks, answered, fill.Skipped)
		for _, f := range fill.Fields {
			if f.Answer == "" {
				fmt.Fprintf(&b, "  [%d] %s: (no answer)\n", f.Index, f.Path)
				continue
			}
			fmt.Fprintf(&b, "  [%d] %s: %q via %s\n", f.Index, f.Path, f.Answer, f.Source)
		}
		if r.Inspection.NavigationControl != "" {
			fmt.Fprintf(&b, "  next: %s (%s)\n", r.Inspection.NavigationControl, r.Inspection.NavigationStrategy)
		} else {
			fmt.Fprintf(&b, "  next: none\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

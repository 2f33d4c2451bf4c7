package pretty

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/boostsecurityio/integrity/results"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
)

var glyphs = map[results.Verdict]string{
	results.Unknown:  "?",
	results.Match:    "✓",
	results.Mismatch: "⨉",
}

type Format struct {
	out io.Writer
}

func NewFormat(out io.Writer) *Format {
	if out == nil {
		out = os.Stdout
	}
	return &Format{out: out}
}

func (f *Format) Format(ctx context.Context, report *results.Report) error {
	if len(report.Verdicts) == 0 {
		log.Info().Msg("No packages to display")
	} else if err := printVerdictTable(f.out, report.Verdicts); err != nil {
		return err
	}

	printSummary(f.out, report)
	return nil
}

func Glyph(v results.Verdict) string {
	if glyph, ok := glyphs[v]; ok {
		return glyph
	}
	return "?"
}

func printVerdictTable(out io.Writer, verdicts []results.PackageVerdict) error {
	table := tablewriter.NewWriter(out)
	table.Header("Status", "Package", "Version", "Package ID", "Checksum", "Percentage")

	for _, v := range verdicts {
		err := table.Append([]string{
			Glyph(v.Verdict),
			v.Name,
			v.Version,
			dash(v.ID),
			dash(v.Checksum),
			v.Percentage.String(),
		})
		if err != nil {
			return err
		}
	}

	if err := table.Render(); err != nil {
		return err
	}
	fmt.Fprint(out, "\n")
	return nil
}

func printSummary(out io.Writer, report *results.Report) {
	s := report.Summary
	fmt.Fprintf(out, "Summary: %d packages checked, %d match, %d mismatch, %d unknown\n", s.Total, s.Match, s.Mismatch, s.Unknown)
	if s.Warnings > 0 {
		fmt.Fprintf(out, "%d packages could not be fingerprinted, see the warnings above\n", s.Warnings)
	}
	if report.Status == results.StatusFailure {
		fmt.Fprintln(out, "Integrity check failed: installed packages differ from their published releases")
		return
	}
	fmt.Fprintln(out, "Integrity check passed")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

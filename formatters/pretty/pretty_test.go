package pretty

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/boostsecurityio/integrity/results"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name        string
		verdicts    []results.PackageVerdict
		filter      bool
		expected    []string
		notExpected []string
	}{
		{
			name: "mixed verdicts",
			verdicts: []results.PackageVerdict{
				{Name: "acme/a", Version: "1.0.0", ID: "rel-a", Checksum: "aaa", Verdict: results.Match, Percentage: results.PercentageOf(100)},
				{Name: "acme/b", Version: "2.0.0", ID: "rel-b", Checksum: "bbb", Verdict: results.Mismatch, Percentage: results.PercentageOf(80)},
				{Name: "acme/c", Version: "3.0.0", Verdict: results.Unknown, Percentage: results.NotApplicable},
			},
			expected: []string{
				"✓", "acme/a", "100%",
				"⨉", "acme/b", "80%", "rel-b",
				"?", "acme/c",
				"Summary: 3 packages checked, 1 match, 1 mismatch, 1 unknown",
				"Integrity check failed",
			},
		},
		{
			name: "skip matches",
			verdicts: []results.PackageVerdict{
				{Name: "acme/a", Version: "1.0.0", ID: "rel-a", Checksum: "aaa", Verdict: results.Match, Percentage: results.PercentageOf(100)},
				{Name: "acme/c", Version: "3.0.0", Verdict: results.Unknown, Percentage: results.NotApplicable, Warning: "io_failure: gone"},
			},
			filter:      true,
			expected:    []string{"acme/c", "Summary: 2 packages checked, 1 match, 0 mismatch, 1 unknown", "1 packages could not be fingerprinted", "Integrity check passed"},
			notExpected: []string{"acme/a", "✓"},
		},
		{
			name:        "nothing installed",
			expected:    []string{"Summary: 0 packages checked", "Integrity check passed"},
			notExpected: []string{"PACKAGE"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := NewFormat(&buf).Format(context.Background(), results.NewReport(tt.verdicts, tt.filter))
			require.NoError(t, err)

			output := buf.String()
			for _, s := range tt.expected {
				assert.Contains(t, output, s)
			}
			for _, s := range tt.notExpected {
				assert.NotContains(t, output, s)
			}
		})
	}
}

func TestFormatTableLayout(t *testing.T) {
	var buf bytes.Buffer
	report := results.NewReport([]results.PackageVerdict{
		{Name: "acme/c", Version: "3.0.0", Verdict: results.Unknown, Percentage: results.NotApplicable},
	}, false)
	require.NoError(t, NewFormat(&buf).Format(context.Background(), report))

	output := strings.ToUpper(buf.String())
	for _, header := range []string{"STATUS", "PACKAGE", "VERSION", "PACKAGE ID", "CHECKSUM", "PERCENTAGE"} {
		assert.Contains(t, output, header)
	}

	var row string
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, "acme/c") {
			row = line
		}
	}
	require.NotEmpty(t, row)
	assert.Equal(t, 3, strings.Count(row, " - "), row)
}

func TestGlyph(t *testing.T) {
	assert.Equal(t, "?", Glyph(results.Unknown))
	assert.Equal(t, "✓", Glyph(results.Match))
	assert.Equal(t, "⨉", Glyph(results.Mismatch))
	assert.Equal(t, "?", Glyph(results.Verdict(42)))
}

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	jsonformat "github.com/boostsecurityio/integrity/formatters/json"
	"github.com/boostsecurityio/integrity/formatters/pretty"
	"github.com/boostsecurityio/integrity/formatters/sarif"
	"github.com/boostsecurityio/integrity/models"
	"github.com/boostsecurityio/integrity/providers/authority"
	"github.com/boostsecurityio/integrity/results"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeInstalled(t *testing.T, dir string, names ...string) {
	t.Helper()
	entries := ""
	for i, name := range names {
		if i > 0 {
			entries += ","
		}
		entries += fmt.Sprintf(`{"name": "acme/%s", "version": "1.0.%d", "type": "library", "install-path": "../acme/%s"}`, name, i, name)
		writeFile(t, filepath.Join(dir, "vendor", "acme", name, "src", name+".php"), "<?php // "+name)
	}
	writeFile(t, filepath.Join(dir, "vendor", "composer", "installed.json"), `{"packages": [`+entries+`]}`)
}

// newProject installs acme/a and acme/b and snapshots them into a baseline.
func newProject(t *testing.T) (string, *models.Config) {
	t.Helper()
	dir := t.TempDir()
	writeInstalled(t, dir, "a", "b")

	cfg := models.DefaultConfig()
	cfg.Manager = "composer"
	cfg.Workers = 2

	baseline, err := snapshotProject(context.Background(), cfg, dir)
	require.NoError(t, err)

	cfg.Authority.File = filepath.Join(t.TempDir(), "baseline.yml")
	require.NoError(t, writeBaseline(baseline, cfg.Authority.File))

	return dir, cfg
}

func withFormat(t *testing.T, format string) {
	t.Helper()
	previous := Format
	Format = format
	t.Cleanup(func() { Format = previous })
}

func TestSnapshotProject(t *testing.T) {
	dir := t.TempDir()
	writeInstalled(t, dir, "a", "b")
	cfg := models.DefaultConfig()
	cfg.Manager = "composer"

	baseline, err := snapshotProject(context.Background(), cfg, dir)
	require.NoError(t, err)

	assert.Equal(t, "sha256", baseline.Algorithm)
	require.Len(t, baseline.Packages, 2)
	assert.Equal(t, "pkg:composer/acme/a@1.0.0", baseline.Packages[0].ID)
	assert.Equal(t, "acme/b", baseline.Packages[1].Name)
	assert.NotEmpty(t, baseline.Packages[1].Checksum)
	assert.Len(t, baseline.Packages[1].Files, 1)
}

func TestSnapshotProjectUnsupportedAlgorithm(t *testing.T) {
	cfg := models.DefaultConfig()
	cfg.Algorithm = "md5"

	_, err := snapshotProject(context.Background(), cfg, t.TempDir())
	assert.ErrorContains(t, err, "unsupported fingerprint algorithm")
}

func TestWriteBaseline(t *testing.T) {
	dir := t.TempDir()
	writeInstalled(t, dir, "a", "b")
	cfg := models.DefaultConfig()
	cfg.Manager = "composer"

	baseline, err := snapshotProject(context.Background(), cfg, dir)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "integrity-baseline.yml")
	require.NoError(t, writeBaseline(baseline, path))

	loaded, err := authority.LoadBaseline(path)
	require.NoError(t, err)
	assert.Equal(t, baseline, loaded)
}

func TestWriteBaselineErrors(t *testing.T) {
	baseline := authority.NewBaseline("sha256")

	err := writeBaseline(baseline, t.TempDir())
	assert.ErrorContains(t, err, "failed to create baseline")

	err = writeBaseline(baseline, filepath.Join(t.TempDir(), "missing", "baseline.yml"))
	assert.ErrorContains(t, err, "failed to create baseline")
}

func TestRunCheckPasses(t *testing.T) {
	dir, cfg := newProject(t)
	withFormat(t, "json")

	var out bytes.Buffer
	report, err := runCheck(context.Background(), cfg, &out, io.Discard, dir)
	require.NoError(t, err)
	assert.Equal(t, results.StatusSuccess, report.Status)
	assert.Equal(t, results.Summary{Total: 2, Match: 2}, report.Summary)

	var rendered struct {
		Status   string           `json:"status"`
		Packages []map[string]any `json:"packages"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &rendered))
	assert.Equal(t, "success", rendered.Status)
	assert.Len(t, rendered.Packages, 2)
}

func TestRunCheckDetectsModifiedPackage(t *testing.T) {
	dir, cfg := newProject(t)
	withFormat(t, "pretty")
	writeFile(t, filepath.Join(dir, "vendor", "acme", "b", "src", "b.php"), "<?php system($_GET['c']);")

	var out bytes.Buffer
	report, err := runCheck(context.Background(), cfg, &out, io.Discard, dir)
	require.NoError(t, err)
	assert.Equal(t, results.StatusFailure, report.Status)
	assert.Equal(t, 1, report.Summary.Mismatch)
	assert.Equal(t, 1, report.Summary.Match)
	assert.Contains(t, out.String(), "Integrity check failed")
}

func TestRunCheckUnknownPackage(t *testing.T) {
	dir, cfg := newProject(t)
	withFormat(t, "pretty")
	writeInstalled(t, dir, "a", "b", "c")

	var out bytes.Buffer
	report, err := runCheck(context.Background(), cfg, &out, io.Discard, dir)
	require.NoError(t, err)
	assert.Equal(t, results.StatusSuccess, report.Status)
	assert.Equal(t, results.Summary{Total: 3, Match: 2, Unknown: 1}, report.Summary)
}

func TestRunCheckSkipMatch(t *testing.T) {
	dir, cfg := newProject(t)
	withFormat(t, "noop")
	writeFile(t, filepath.Join(dir, "vendor", "acme", "a", "src", "a.php"), "<?php // tampered")

	skipMatch = true
	t.Cleanup(func() { skipMatch = false })

	report, err := runCheck(context.Background(), cfg, io.Discard, io.Discard, dir)
	require.NoError(t, err)
	require.Len(t, report.Verdicts, 1)
	assert.Equal(t, "acme/a", report.Verdicts[0].Name)
	assert.Equal(t, 2, report.Summary.Total)
}

func TestRunCheckMissingInstalledState(t *testing.T) {
	_, cfg := newProject(t)
	withFormat(t, "noop")

	_, err := runCheck(context.Background(), cfg, io.Discard, io.Discard, t.TempDir())
	assert.ErrorContains(t, err, "failed to list installed packages")
}

func TestGetFormatter(t *testing.T) {
	tests := []struct {
		format   string
		expected interface{}
	}{
		{"pretty", &pretty.Format{}},
		{"", &pretty.Format{}},
		{"sarif", &sarif.Format{}},
		{"json", &jsonformat.Format{}},
		{"github", &jsonformat.Format{}},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			withFormat(t, tt.format)
			formatter, err := GetFormatter(context.Background(), models.DefaultConfig(), io.Discard, ".")
			require.NoError(t, err)
			assert.IsType(t, tt.expected, formatter)
		})
	}
}

func TestGetAuthority(t *testing.T) {
	cfg := models.DefaultConfig()
	cfg.Authority.URL = "integrity.example.com"
	_, _, err := GetAuthority(context.Background(), cfg)
	assert.ErrorContains(t, err, "failed to create verification authority client")

	cfg = models.DefaultConfig()
	cfg.Authority.File = filepath.Join(t.TempDir(), "missing.yml")
	_, _, err = GetAuthority(context.Background(), cfg)
	assert.ErrorContains(t, err, "failed to read baseline")

	cfg = models.DefaultConfig()
	_, algorithm, err := GetAuthority(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "sha256", algorithm)
}

func TestGetAuthorityUsesBaselineAlgorithm(t *testing.T) {
	path := filepath.Join(t.TempDir(), "baseline.yml")
	writeFile(t, path, "version: 1\nalgorithm: blake2b\npackages: []\n")

	cfg := models.DefaultConfig()
	cfg.Authority.File = path
	_, algorithm, err := GetAuthority(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "blake2b", algorithm)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitCodeMismatch, exitCode(ErrIntegrityFailure))
	assert.Equal(t, exitCodeErr, exitCode(models.NewFailure(models.TransportFailure, errors.New("connection refused"))))
	assert.Equal(t, exitCodeErr, exitCode(errors.New("unsupported package manager: pip")))
	assert.Equal(t, exitCodeInterrupt, exitCode(fmt.Errorf("failed to check .: %w", context.Canceled)))
}

func newCallToolRequest(args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Request: mcp.Request{
			Method: "tools/call",
		},
		Params: mcp.CallToolParams{
			Name:      "check_integrity",
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestHandleCheckIntegrity(t *testing.T) {
	dir, cfg := newProject(t)
	writeFile(t, filepath.Join(dir, "vendor", "acme", "b", "src", "b.php"), "<?php // tampered")

	request := newCallToolRequest(map[string]interface{}{
		"project_dir":    dir,
		"manager":        "composer",
		"authority_file": cfg.Authority.File,
		"skip_match":     true,
	})

	result, err := handleCheckIntegrity(context.Background(), request)
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var response struct {
		Status   string                   `json:"status"`
		Passed   bool                     `json:"passed"`
		Summary  results.Summary          `json:"summary"`
		Verdicts []results.PackageVerdict `json:"verdicts"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &response))
	assert.Equal(t, "failure", response.Status)
	assert.False(t, response.Passed)
	assert.Equal(t, results.Summary{Total: 2, Match: 1, Mismatch: 1}, response.Summary)
	require.Len(t, response.Verdicts, 1)
	assert.Equal(t, "acme/b", response.Verdicts[0].Name)
	assert.Equal(t, results.Mismatch, response.Verdicts[0].Verdict)
}

func TestHandleCheckIntegrityErrors(t *testing.T) {
	result, err := handleCheckIntegrity(context.Background(), newCallToolRequest(map[string]interface{}{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "project_dir parameter is required", resultText(t, result))

	result, err = handleCheckIntegrity(context.Background(), newCallToolRequest(map[string]interface{}{
		"project_dir": t.TempDir(),
		"manager":     "pip",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "unsupported package manager: pip")
}

func TestNewMCPServer(t *testing.T) {
	s := newMCPServer()
	tool := s.GetTool("check_integrity")
	require.NotNil(t, tool)
	assert.Contains(t, tool.Tool.InputSchema.Required, "project_dir")
}

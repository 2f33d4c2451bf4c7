package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/boostsecurityio/integrity/formatters/noop"
	"github.com/boostsecurityio/integrity/providers/pkgmanager"
	"github.com/boostsecurityio/integrity/results"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Start the integrity MCP server",
	Long: `Start the integrity MCP server that exposes the package integrity check
through the Model Context Protocol (MCP).

The server communicates via JSON-RPC over stdio and provides this tool:
- check_integrity: Verify the packages installed in a project against their published releases

Parameters of check_integrity:
- project_dir: Directory of the project to check
- skip_match: Leave matching packages out of the verdicts - optional, defaults to false
- manager: Package manager of the project (auto, composer, npm) - optional, defaults to the configured one
- authority_file: Baseline file used as an offline verification authority - optional

The verification authority token should be provided via the --token flag or the INTEGRITY_TOKEN environment variable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return startMCPServer(cmd.Context())
	},
}

func newMCPServer() *server.MCPServer {
	s := server.NewMCPServer(
		"Integrity Package Verifier",
		Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	checkIntegrityTool := mcp.NewTool("check_integrity",
		mcp.WithDescription("Verify that the packages installed in a project match their published releases. Returns the verdict of every package, the overall status and a summary."),
		mcp.WithString("project_dir",
			mcp.Required(),
			mcp.Description("Directory of the project to check"),
		),
		mcp.WithBoolean("skip_match",
			mcp.Description("Leave matching packages out of the verdicts"),
		),
		mcp.WithString("manager",
			mcp.Description("Package manager of the project"),
			mcp.Enum(pkgmanager.Names()...),
		),
		mcp.WithString("authority_file",
			mcp.Description("Baseline file used as an offline verification authority (optional)"),
		),
	)

	s.AddTool(checkIntegrityTool, handleCheckIntegrity)
	return s
}

func startMCPServer(_ context.Context) error {
	s := newMCPServer()

	log.Info().Msg("Starting integrity MCP server on stdio")

	return server.ServeStdio(s)
}

func handleCheckIntegrity(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectDir, err := request.RequireString("project_dir")
	if err != nil {
		return mcp.NewToolResultError("project_dir parameter is required"), nil
	}

	cfg := *config
	cfg.Manager = request.GetString("manager", cfg.Manager)
	cfg.Authority.File = request.GetString("authority_file", cfg.Authority.File)
	filterKnownGood := request.GetBool("skip_match", false)

	analyzer, err := GetAnalyzer(ctx, &cfg, &noop.Format{})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create analyzer: %v", err)), nil
	}

	report, err := analyzer.AnalyzeProject(ctx, projectDir, filterKnownGood)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to check %s: %v", projectDir, err)), nil
	}

	resultData, err := json.Marshal(struct {
		*results.Report
		Passed bool `json:"passed"`
	}{
		Report: report,
		Passed: report.Status == results.StatusSuccess,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}

	return mcp.NewToolResultText(string(resultData)), nil
}

func init() {
	rootCmd.AddCommand(mcpServerCmd)
}

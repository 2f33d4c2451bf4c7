package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/boostsecurityio/integrity/models"
	"github.com/boostsecurityio/integrity/results"
	"github.com/spf13/cobra"
)

var skipMatch bool

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check [project-dir]",
	Short: "Verifies the installed packages of a project against their published releases",
	Long: `Fingerprints every package installed in a project and asks the verification
authority whether it matches the published release.
Exits with 1 when at least one package does not match and with 2 when the check could not complete.
Example: integrity check /path/to/project --format sarif`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectDir := projectDirArg(args)

		report, err := runCheck(cmd.Context(), config, os.Stdout, os.Stderr, projectDir)
		if err != nil {
			return fmt.Errorf("failed to check %s: %w", projectDir, err)
		}
		if report.Status == results.StatusFailure {
			return ErrIntegrityFailure
		}
		return nil
	},
}

func runCheck(ctx context.Context, cfg *models.Config, out io.Writer, progress io.Writer, projectDir string) (*results.Report, error) {
	formatter, err := GetFormatter(ctx, cfg, out, projectDir)
	if err != nil {
		return nil, err
	}

	analyzer, err := GetAnalyzer(ctx, cfg, formatter)
	if err != nil {
		return nil, err
	}
	if !Verbose {
		analyzer.ProgressWriter = progress
	}

	return analyzer.AnalyzeProject(ctx, projectDir, skipMatch)
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().BoolVar(&skipMatch, "skip-match", false, "Only display packages that do not match their release")
}

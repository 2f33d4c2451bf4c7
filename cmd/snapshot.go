package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/boostsecurityio/integrity/analyze"
	"github.com/boostsecurityio/integrity/models"
	"github.com/boostsecurityio/integrity/providers/authority"
	"github.com/boostsecurityio/integrity/providers/pkgmanager"
	"github.com/boostsecurityio/integrity/scanner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var snapshotOutput string

// snapshotCmd represents the snapshot command
var snapshotCmd = &cobra.Command{
	Use:   "snapshot [project-dir]",
	Short: "Records the fingerprints of the installed packages as a baseline",
	Long: `Records the fingerprints of the packages installed in a project.
The baseline can then be used as an offline verification authority with --authority-file.
Example: integrity snapshot /path/to/project -o integrity-baseline.yml`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectDir := projectDirArg(args)

		baseline, err := snapshotProject(cmd.Context(), config, projectDir)
		if err != nil {
			return fmt.Errorf("failed to snapshot %s: %w", projectDir, err)
		}

		if snapshotOutput == "-" {
			return baseline.Write(os.Stdout)
		}

		if err := writeBaseline(baseline, snapshotOutput); err != nil {
			return err
		}

		log.Info().Int("packages", len(baseline.Packages)).Str("file", snapshotOutput).Msg("Baseline written")
		return nil
	},
}

// writeBaseline only reports success once the file is closed.
func writeBaseline(baseline *authority.Baseline, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create baseline: %w", err)
	}

	if err := baseline.Write(file); err != nil {
		file.Close()
		return fmt.Errorf("failed to write baseline: %w", err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close baseline: %w", err)
	}
	return nil
}

func snapshotProject(ctx context.Context, cfg *models.Config, projectDir string) (*authority.Baseline, error) {
	lister, err := pkgmanager.NewLister(cfg.Manager)
	if err != nil {
		return nil, err
	}

	fingerprinter, err := scanner.NewFingerprinter(cfg.Algorithm)
	if err != nil {
		return nil, err
	}

	analyzer := analyze.NewAnalyzer(lister, fingerprinter, nil, nil, cfg)
	if !Verbose {
		analyzer.ProgressWriter = os.Stderr
	}

	packages, fingerprints, err := analyzer.FingerprintProject(ctx, projectDir)
	if err != nil {
		return nil, err
	}

	baseline := authority.NewBaseline(cfg.Algorithm)
	for i, pkg := range packages {
		baseline.Add(pkg, fingerprints[i])
	}
	return baseline, nil
}

func init() {
	rootCmd.AddCommand(snapshotCmd)

	snapshotCmd.Flags().StringVarP(&snapshotOutput, "output", "o", "integrity-baseline.yml", "Baseline file to write, - for stdout")
}

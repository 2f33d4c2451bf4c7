// Package analyze turns an installed package set into integrity verdicts.
package analyze

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/boostsecurityio/integrity/models"
	"github.com/boostsecurityio/integrity/results"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

type Fingerprinter interface {
	Fingerprint(ctx context.Context, installPath string) (models.PackageFingerprint, error)
}

type PackageLister interface {
	ListInstalled(ctx context.Context, projectDir string) ([]models.InstalledPackage, error)
}

type Formatter interface {
	Format(ctx context.Context, report *results.Report) error
}

type Analyzer struct {
	Lister        PackageLister
	Fingerprinter Fingerprinter
	Client        *VerificationClient
	Formatter     Formatter
	Config        *models.Config

	// ProgressWriter receives the fingerprinting progress bar, nil disables it.
	ProgressWriter io.Writer
}

func NewAnalyzer(lister PackageLister, fingerprinter Fingerprinter, client *VerificationClient, formatter Formatter, config *models.Config) *Analyzer {
	if config == nil {
		config = models.DefaultConfig()
	}
	return &Analyzer{
		Lister:        lister,
		Fingerprinter: fingerprinter,
		Client:        client,
		Formatter:     formatter,
		Config:        config,
	}
}

// AnalyzeProject verifies every package installed in projectDir and hands
// the report to the formatter.
func (a *Analyzer) AnalyzeProject(ctx context.Context, projectDir string, filterKnownGood bool) (*results.Report, error) {
	packages, err := a.Lister.ListInstalled(ctx, projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list installed packages: %w", err)
	}
	log.Debug().Msgf("Found %d installed packages in %s", len(packages), projectDir)

	report, err := a.Evaluate(ctx, packages, filterKnownGood)
	if err != nil {
		return nil, err
	}

	if err := a.Formatter.Format(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to format report: %w", err)
	}

	return report, nil
}

// Evaluate fingerprints packages, submits them as one batch and classifies
// the answers. Verdicts keep the order of packages; the status ignores
// filterKnownGood.
func (a *Analyzer) Evaluate(ctx context.Context, packages []models.InstalledPackage, filterKnownGood bool) (*results.Report, error) {
	fingerprints, err := a.fingerprintAll(ctx, packages)
	if err != nil {
		return nil, err
	}

	requests := make([]models.VerificationRequest, 0, len(packages))
	submitted := make([]int, 0, len(packages))
	for i, fp := range fingerprints {
		if fp.err != nil {
			continue
		}
		requests = append(requests, models.NewVerificationRequest(packages[i], fp.fingerprint))
		submitted = append(submitted, i)
	}

	responses, err := a.Client.Submit(ctx, requests)
	if err != nil {
		return nil, err
	}

	verdicts := make([]results.PackageVerdict, len(packages))
	for i, pkg := range packages {
		if fingerprints[i].err == nil {
			continue
		}
		verdict := results.Classify(pkg, nil, models.VerificationResponse{Name: pkg.Name, Version: pkg.Version})
		verdict.Warning = fingerprints[i].err.Error()
		verdicts[i] = verdict
	}
	for j, i := range submitted {
		verdicts[i] = results.Classify(packages[i], &fingerprints[i].fingerprint, responses[j])
	}

	report := results.NewReport(verdicts, filterKnownGood)
	log.Debug().
		Int("total", report.Summary.Total).
		Int("match", report.Summary.Match).
		Int("mismatch", report.Summary.Mismatch).
		Int("unknown", report.Summary.Unknown).
		Msg("Evaluation finished")

	return report, nil
}

// FingerprintProject lists and fingerprints the packages installed in
// projectDir. Packages that could not be read are logged and left out.
func (a *Analyzer) FingerprintProject(ctx context.Context, projectDir string) ([]models.InstalledPackage, []models.PackageFingerprint, error) {
	packages, err := a.Lister.ListInstalled(ctx, projectDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list installed packages: %w", err)
	}

	fingerprints, err := a.fingerprintAll(ctx, packages)
	if err != nil {
		return nil, nil, err
	}

	kept := make([]models.InstalledPackage, 0, len(packages))
	digests := make([]models.PackageFingerprint, 0, len(packages))
	for i, fp := range fingerprints {
		if fp.err != nil {
			continue
		}
		kept = append(kept, packages[i])
		digests = append(digests, fp.fingerprint)
	}
	return kept, digests, nil
}

type fingerprintResult struct {
	fingerprint models.PackageFingerprint
	err         error
}

func (a *Analyzer) fingerprintAll(ctx context.Context, packages []models.InstalledPackage) ([]fingerprintResult, error) {
	out := make([]fingerprintResult, len(packages))
	if len(packages) == 0 {
		return out, nil
	}

	progressWriter := a.ProgressWriter
	if progressWriter == nil {
		progressWriter = io.Discard
	}
	bar := progressbar.NewOptions(
		len(packages),
		progressbar.OptionSetDescription("Fingerprinting packages"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWriter(progressWriter),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers())

	for i, pkg := range packages {
		g.Go(func() error {
			fp, err := a.Fingerprinter.Fingerprint(gctx, pkg.InstallPath)
			if err != nil {
				if models.KindOf(err) != models.IOFailure {
					return fmt.Errorf("failed to fingerprint %s: %w", pkg.Name, err)
				}
				log.Warn().Err(err).Str("package", pkg.Name).Str("version", pkg.Version).Msg("could not fingerprint package, its verdict will be unknown")
			}
			out[i] = fingerprintResult{fingerprint: fp, err: err}
			_ = bar.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	fmt.Fprint(progressWriter, "\n")

	return out, nil
}

func (a *Analyzer) workers() int {
	if a.Config != nil && a.Config.Workers > 0 {
		return a.Config.Workers
	}
	return runtime.NumCPU()
}

package sarif

import (
	"context"
	"fmt"
	"io"

	"github.com/boostsecurityio/integrity/docs"
	"github.com/boostsecurityio/integrity/models"
	"github.com/boostsecurityio/integrity/results"
	"github.com/owenrumney/go-sarif/v2/sarif"
)

const (
	RuleChecksumMismatch = "package_checksum_mismatch"
	RuleUnknownPackage   = "package_unknown"
)

var defaultLevels = map[string]string{
	RuleChecksumMismatch: "error",
	RuleUnknownPackage:   "note",
}

func NewFormat(out io.Writer, version string, projectDir string) *Format {
	return &Format{
		out:        out,
		version:    version,
		projectDir: projectDir,
	}
}

type Format struct {
	out        io.Writer
	version    string
	projectDir string
}

// Format writes one SARIF result per package that did not match.
func (f *Format) Format(ctx context.Context, report *results.Report) error {
	sarifReport, err := sarif.New(sarif.Version210)
	if err != nil {
		return err
	}

	pages := docs.GetPages()

	run := sarif.NewRunWithInformationURI("integrity", "https://github.com/boostsecurityio/integrity")
	run.Tool.Driver.WithVersion(f.version)
	run.AddInvocation(true)

	for _, verdict := range report.Verdicts {
		ruleId, message := ruleFor(verdict)
		if ruleId == "" {
			continue
		}

		level := defaultLevels[ruleId]
		ruleUrl := fmt.Sprintf("https://boostsecurityio.github.io/integrity/rules/%s", ruleId)
		rule := run.AddRule(ruleId).
			WithHelpURI(ruleUrl).
			WithTextHelp(ruleUrl)
		if page, ok := pages[ruleId]; ok {
			if page.Severity != "" {
				level = page.Severity
			}
			rule.WithName(page.Title).
				WithDescription(page.Title).
				WithFullDescription(sarif.NewMultiformatMessageString(page.Description)).
				WithMarkdownHelp(page.Content)
		}

		path := models.InstalledPackage{InstallPath: verdict.InstallPath}.RelativeInstallPath(f.projectDir)
		if path == "" || path == "." {
			path = verdict.Name
		}
		run.AddDistinctArtifact(path)

		properties := sarif.NewPropertyBag()
		properties.AddString("package", verdict.Name)
		properties.AddString("version", verdict.Version)
		if verdict.Purl != "" {
			properties.AddString("purl", verdict.Purl)
		}
		if verdict.Percentage.Applicable {
			properties.AddInteger("similarity", verdict.Percentage.Value)
		}

		result := run.CreateResultForRule(ruleId).
			WithLevel(level).
			WithMessage(sarif.NewTextMessage(message)).
			WithPartialFingerPrints(map[string]interface{}{
				"primaryLocationLineHash": verdict.ResultFingerprint(),
			})
		result.AttachPropertyBag(properties)
		result.AddLocation(
			sarif.NewLocationWithPhysicalLocation(
				sarif.NewPhysicalLocation().
					WithArtifactLocation(
						sarif.NewSimpleArtifactLocation(path),
					),
			),
		)
	}
	sarifReport.AddRun(run)

	return sarifReport.PrettyWrite(f.out)
}

func ruleFor(verdict results.PackageVerdict) (string, string) {
	switch verdict.Verdict {
	case results.Mismatch:
		return RuleChecksumMismatch, fmt.Sprintf("%s %s does not match release %s (%s similar)", verdict.Name, verdict.Version, verdict.ID, verdict.Percentage)
	case results.Unknown:
		msg := fmt.Sprintf("%s %s is not known to the verification authority", verdict.Name, verdict.Version)
		if verdict.Warning != "" {
			msg += fmt.Sprintf(" (%s)", verdict.Warning)
		}
		return RuleUnknownPackage, msg
	}
	return "", ""
}

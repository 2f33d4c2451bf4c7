package results

import (
	"github.com/boostsecurityio/integrity/models"
)

// Classify turns the authority response for one package into its verdict.
// fp is nil when the package could not be fingerprinted.
//
// unknown iff the authority has no record, match iff the similarity is
// 100, mismatch otherwise. A mismatch never reports more than 99%.
func Classify(pkg models.InstalledPackage, fp *models.PackageFingerprint, response models.VerificationResponse) PackageVerdict {
	verdict := PackageVerdict{
		Name:        pkg.Name,
		Version:     pkg.Version,
		Purl:        pkg.Purl(),
		InstallPath: pkg.InstallPath,
		Verdict:     Unknown,
		Percentage:  NotApplicable,
	}
	if fp != nil {
		verdict.Fingerprint = fp.String()
	}

	if !response.Found() {
		return verdict
	}

	verdict.ID = *response.ID
	if response.Checksum != nil {
		verdict.Checksum = *response.Checksum
	}

	similarity := 0
	if response.Similarity != nil {
		similarity = *response.Similarity
	}

	if similarity == 100 {
		verdict.Verdict = Match
		verdict.Percentage = PercentageOf(100)
		return verdict
	}

	verdict.Verdict = Mismatch
	verdict.Percentage = PercentageOf(min(max(similarity, 0), 99))
	return verdict
}

package authority

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/boostsecurityio/integrity/models"
	"gopkg.in/yaml.v3"
)

const BaselineVersion = 1

// Baseline is a recorded installation, used as an offline authority.
type Baseline struct {
	Version   int             `yaml:"version"`
	Algorithm string          `yaml:"algorithm"`
	Packages  []BaselineEntry `yaml:"packages"`
}

type BaselineEntry struct {
	Name     string              `yaml:"name"`
	Version  string              `yaml:"version"`
	ID       string              `yaml:"id"`
	Checksum string              `yaml:"checksum"`
	Files    []models.FileDigest `yaml:"files,omitempty"`
}

func NewBaseline(algorithm string) *Baseline {
	return &Baseline{
		Version:   BaselineVersion,
		Algorithm: algorithm,
		Packages:  []BaselineEntry{},
	}
}

// Add records pkg as known good with the given fingerprint.
func (b *Baseline) Add(pkg models.InstalledPackage, fp models.PackageFingerprint) {
	id := pkg.Purl()
	if id == "" {
		id = pkg.Name + "@" + pkg.Version
	}
	b.Packages = append(b.Packages, BaselineEntry{
		Name:     pkg.Name,
		Version:  pkg.Version,
		ID:       id,
		Checksum: fp.Digest,
		Files:    fp.Files,
	})
}

func (b *Baseline) Write(w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(b); err != nil {
		return fmt.Errorf("failed to encode baseline: %w", err)
	}
	return encoder.Close()
}

func LoadBaseline(path string) (*Baseline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read baseline: %w", err)
	}

	var baseline Baseline
	if err := yaml.Unmarshal(data, &baseline); err != nil {
		return nil, fmt.Errorf("failed to parse baseline %s: %w", path, err)
	}
	if baseline.Version != BaselineVersion {
		return nil, fmt.Errorf("unsupported baseline version %d in %s", baseline.Version, path)
	}
	if baseline.Algorithm == "" {
		baseline.Algorithm = models.DefaultAlgorithm
	}
	return &baseline, nil
}

// FixtureClient answers verification requests from a Baseline. A release
// recorded more than once, such as nested npm copies, keeps every entry.
type FixtureClient struct {
	algorithm string
	entries   map[models.PackageKey][]BaselineEntry
}

func NewFixtureClient(baseline *Baseline) *FixtureClient {
	entries := make(map[models.PackageKey][]BaselineEntry, len(baseline.Packages))
	for _, entry := range baseline.Packages {
		key := models.PackageKey{Name: entry.Name, Version: entry.Version}
		entries[key] = append(entries[key], entry)
	}
	return &FixtureClient{
		algorithm: baseline.Algorithm,
		entries:   entries,
	}
}

func NewFixtureClientFromFile(path string) (*FixtureClient, error) {
	baseline, err := LoadBaseline(path)
	if err != nil {
		return nil, err
	}
	return NewFixtureClient(baseline), nil
}

// Algorithm is the fingerprint algorithm the baseline was recorded with.
func (c *FixtureClient) Algorithm() string {
	return c.algorithm
}

// SubmitBatch omits packages absent from the baseline, like the remote
// authority does. Every other request gets its own record, in request order.
func (c *FixtureClient) SubmitBatch(ctx context.Context, requests []models.VerificationRequest) ([]models.VerificationResponse, error) {
	responses := make([]models.VerificationResponse, 0, len(requests))
	for _, req := range requests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if req.Fingerprint.Algorithm != c.algorithm {
			return nil, &models.Failure{
				Kind: models.ProtocolFailure,
				Err:  fmt.Errorf("baseline uses %s fingerprints, got %s for %s", c.algorithm, req.Fingerprint.Algorithm, req.Name),
			}
		}

		candidates, ok := c.entries[req.Key()]
		if !ok {
			continue
		}

		entry, similarity := closestEntry(candidates, req.Fingerprint)
		id := entry.ID
		checksum := entry.Checksum
		responses = append(responses, models.VerificationResponse{
			Name:       req.Name,
			Version:    req.Version,
			ID:         &id,
			Checksum:   &checksum,
			Similarity: &similarity,
		})
	}
	return responses, nil
}

// closestEntry returns the recorded copy most similar to fp.
func closestEntry(candidates []BaselineEntry, fp models.PackageFingerprint) (BaselineEntry, int) {
	best, bestSimilarity := candidates[0], Similarity(candidates[0], fp)
	for _, entry := range candidates[1:] {
		if bestSimilarity == 100 {
			break
		}
		if similarity := Similarity(entry, fp); similarity > bestSimilarity {
			best, bestSimilarity = entry, similarity
		}
	}
	return best, bestSimilarity
}

// Similarity is 100 when the digests are equal. Otherwise it is the share
// of paths present on both sides with the same file digest, over the union
// of paths, capped at 99.
func Similarity(entry BaselineEntry, fp models.PackageFingerprint) int {
	if entry.Checksum == fp.Digest {
		return 100
	}

	recorded := make(map[string]string, len(entry.Files))
	for _, file := range entry.Files {
		recorded[file.Path] = file.Digest
	}

	union := len(recorded)
	unchanged := 0
	for _, file := range fp.Files {
		digest, ok := recorded[file.Path]
		if !ok {
			union++
			continue
		}
		if digest == file.Digest {
			unchanged++
		}
	}

	if union == 0 {
		return 0
	}
	return min(unchanged*100/union, 99)
}

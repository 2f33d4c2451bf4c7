package scanner

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/boostsecurityio/integrity/models"
	"github.com/gowebpki/jcs"
	"github.com/rs/zerolog/log"
)

var vcsDirs = map[string]bool{
	".git": true,
	".hg":  true,
	".svn": true,
}

type Fingerprinter struct {
	Algorithm string
}

func NewFingerprinter(algorithm string) (*Fingerprinter, error) {
	if algorithm == "" {
		algorithm = models.DefaultAlgorithm
	}
	if _, err := newEngine(algorithm); err != nil {
		return nil, err
	}
	return &Fingerprinter{Algorithm: algorithm}, nil
}

// Fingerprint digests every regular file below installPath. Symlinks are not
// followed; their targets are part of the manifest instead. The result only
// depends on relative paths, file contents and link targets.
func (f *Fingerprinter) Fingerprint(ctx context.Context, installPath string) (models.PackageFingerprint, error) {
	info, err := os.Stat(installPath)
	if err != nil {
		return models.PackageFingerprint{}, models.NewFailure(models.IOFailure, fmt.Errorf("failed to stat install path: %w", err))
	}
	if !info.IsDir() {
		return models.PackageFingerprint{}, models.NewFailure(models.IOFailure, fmt.Errorf("install path %s is not a directory", installPath))
	}

	// linked installs (npm link, pnpm) are walked from their real directory
	root, err := filepath.EvalSymlinks(installPath)
	if err != nil {
		return models.PackageFingerprint{}, models.NewFailure(models.IOFailure, fmt.Errorf("failed to resolve install path: %w", err))
	}

	files, err := f.walk(ctx, root)
	if err != nil {
		if ctx.Err() != nil {
			return models.PackageFingerprint{}, ctx.Err()
		}
		return models.PackageFingerprint{}, models.NewFailure(models.IOFailure, err)
	}

	digest, err := f.manifestDigest(files)
	if err != nil {
		return models.PackageFingerprint{}, err
	}

	return models.PackageFingerprint{
		Algorithm: f.Algorithm,
		Digest:    digest,
		Files:     files,
	}, nil
}

func (f *Fingerprinter) walk(ctx context.Context, root string) ([]models.FileDigest, error) {
	files := []models.FileDigest{}
	err := filepath.WalkDir(root, func(filePath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() && vcsDirs[d.Name()] && filePath != root {
			return filepath.SkipDir
		}
		isLink := d.Type()&fs.ModeSymlink != 0
		if !d.Type().IsRegular() && !isLink {
			return nil
		}

		relativePath, err := filepath.Rel(root, filePath)
		if err != nil {
			log.Error().Err(err).Msg("error getting relative path")
			return err
		}

		var digest string
		if isLink {
			digest, err = f.hashLink(filePath)
		} else {
			digest, err = f.hashFile(filePath)
		}
		if err != nil {
			return err
		}

		files = append(files, models.FileDigest{
			Path:   filepath.ToSlash(relativePath),
			Digest: digest,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	return files, nil
}

func (f *Fingerprinter) hashFile(filePath string) (string, error) {
	h, err := newEngine(f.Algorithm)
	if err != nil {
		return "", err
	}

	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open file %q: %w", filePath, err)
	}
	defer file.Close()

	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("read file %q: %w", filePath, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// hashLink digests the link target as written, without resolving it.
func (f *Fingerprinter) hashLink(linkPath string) (string, error) {
	h, err := newEngine(f.Algorithm)
	if err != nil {
		return "", err
	}

	target, err := os.Readlink(linkPath)
	if err != nil {
		return "", fmt.Errorf("read link %q: %w", linkPath, err)
	}

	h.Write([]byte("symlink:" + filepath.ToSlash(target)))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// manifestDigest hashes the RFC 8785 canonical form of the file manifest.
func (f *Fingerprinter) manifestDigest(files []models.FileDigest) (string, error) {
	manifest := struct {
		Algorithm string              `json:"algorithm"`
		Files     []models.FileDigest `json:"files"`
	}{
		Algorithm: f.Algorithm,
		Files:     files,
	}

	data, err := json.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("failed to marshal manifest: %w", err)
	}

	canonical, err := jcs.Transform(data)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize manifest: %w", err)
	}

	h, err := newEngine(f.Algorithm)
	if err != nil {
		return "", err
	}
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

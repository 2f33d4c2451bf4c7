// Package composer lists the packages installed by Composer.
package composer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/boostsecurityio/integrity/models"
	"github.com/rs/zerolog/log"
)

const (
	defaultVendorDir = "vendor"
	installedFile    = "installed.json"
	metapackageType  = "metapackage"
)

type installedPackage struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Type        string `json:"type"`
	InstallPath string `json:"install-path"`
}

// installedFormatV2 is the Composer 2 layout; Composer 1 stores a bare array.
type installedFormatV2 struct {
	Packages []installedPackage `json:"packages"`
}

type composerJSON struct {
	Config struct {
		VendorDir string `json:"vendor-dir"`
	} `json:"config"`
}

type Lister struct{}

func NewLister() *Lister {
	return &Lister{}
}

// InstalledStatePath is the file Composer keeps its installed package set in.
func InstalledStatePath(projectDir string) string {
	return filepath.Join(vendorDir(projectDir), "composer", installedFile)
}

// ListInstalled returns the installed packages in installed.json order.
func (l *Lister) ListInstalled(ctx context.Context, projectDir string) ([]models.InstalledPackage, error) {
	statePath := InstalledStatePath(projectDir)
	data, err := os.ReadFile(statePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read composer installed state %s: %w", statePath, err)
	}

	entries, composer1, err := parseInstalled(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", statePath, err)
	}

	composerDir := filepath.Dir(statePath)
	vendor := filepath.Dir(composerDir)
	packages := make([]models.InstalledPackage, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.Name == "" {
			log.Debug().Str("file", statePath).Msg("skipping composer entry without a name")
			continue
		}
		if entry.Type == metapackageType {
			continue
		}

		installPath := filepath.Join(vendor, filepath.FromSlash(entry.Name))
		if !composer1 && entry.InstallPath != "" {
			installPath = entry.InstallPath
			if !filepath.IsAbs(installPath) {
				installPath = filepath.Join(composerDir, filepath.FromSlash(installPath))
			}
		}

		packages = append(packages, models.InstalledPackage{
			Name:        entry.Name,
			Version:     entry.Version,
			InstallPath: filepath.Clean(installPath),
			Ecosystem:   models.EcosystemComposer,
		})
	}

	return packages, nil
}

func parseInstalled(data []byte) ([]installedPackage, bool, error) {
	var v2 installedFormatV2
	errV2 := json.Unmarshal(data, &v2)
	if errV2 == nil {
		return v2.Packages, false, nil
	}

	var v1 []installedPackage
	if err := json.Unmarshal(data, &v1); err == nil {
		return v1, true, nil
	}

	return nil, false, errV2
}

func vendorDir(projectDir string) string {
	data, err := os.ReadFile(filepath.Join(projectDir, "composer.json"))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Debug().Err(err).Msg("could not read composer.json, assuming the default vendor dir")
		}
		return filepath.Join(projectDir, defaultVendorDir)
	}

	var manifest composerJSON
	if err := json.Unmarshal(data, &manifest); err != nil || manifest.Config.VendorDir == "" {
		return filepath.Join(projectDir, defaultVendorDir)
	}

	dir := filepath.FromSlash(manifest.Config.VendorDir)
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(projectDir, dir)
}

// Package pkgmanager selects the package-manager collaborator for a project.
package pkgmanager

import (
	"context"
	"fmt"
	"os"

	"github.com/boostsecurityio/integrity/analyze"
	"github.com/boostsecurityio/integrity/models"
	"github.com/boostsecurityio/integrity/providers/composer"
	"github.com/boostsecurityio/integrity/providers/npm"
	"github.com/rs/zerolog/log"
)

const (
	Auto     string = "auto"
	Composer string = models.EcosystemComposer
	Npm      string = models.EcosystemNpm
)

func Names() []string {
	return []string{Auto, Composer, Npm}
}

func NewLister(name string) (analyze.PackageLister, error) {
	switch name {
	case "", Auto:
		return &AutoLister{}, nil
	case Composer:
		return composer.NewLister(), nil
	case Npm:
		return npm.NewLister(), nil
	default:
		return nil, fmt.Errorf("unsupported package manager: %s", name)
	}
}

// AutoLister lists the packages of every package manager whose installed
// state is present in the project, composer first.
type AutoLister struct{}

func (l *AutoLister) ListInstalled(ctx context.Context, projectDir string) ([]models.InstalledPackage, error) {
	detected := Detect(projectDir)
	if len(detected) == 0 {
		return nil, fmt.Errorf("no installed packages found in %s: neither %s nor an npm lockfile exist", projectDir, composer.InstalledStatePath(projectDir))
	}

	packages := []models.InstalledPackage{}
	for _, name := range detected {
		lister, err := NewLister(name)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("manager", name).Msg("Listing installed packages")
		pkgs, err := lister.ListInstalled(ctx, projectDir)
		if err != nil {
			return nil, err
		}
		packages = append(packages, pkgs...)
	}
	return packages, nil
}

// Detect returns the package managers with an installed state in projectDir.
func Detect(projectDir string) []string {
	detected := []string{}
	if exists(composer.InstalledStatePath(projectDir)) {
		detected = append(detected, Composer)
	}
	for _, path := range npm.StatePaths(projectDir) {
		if exists(path) {
			detected = append(detected, Npm)
			break
		}
	}
	return detected
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

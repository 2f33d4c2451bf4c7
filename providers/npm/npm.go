// Package npm lists the packages installed by npm.
package npm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/boostsecurityio/integrity/models"
	"github.com/rs/zerolog/log"
)

const nodeModules = "node_modules/"

type lockfilePackage struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Link    bool   `json:"link"`
}

type lockfile struct {
	LockfileVersion int                        `json:"lockfileVersion"`
	Packages        map[string]lockfilePackage `json:"packages"`
}

type Lister struct{}

func NewLister() *Lister {
	return &Lister{}
}

// StatePaths are the lockfiles describing node_modules, most accurate first.
func StatePaths(projectDir string) []string {
	return []string{
		filepath.Join(projectDir, "node_modules", ".package-lock.json"),
		filepath.Join(projectDir, "package-lock.json"),
	}
}

// ListInstalled returns the packages below node_modules ordered by install path.
func (l *Lister) ListInstalled(ctx context.Context, projectDir string) ([]models.InstalledPackage, error) {
	lock, statePath, err := readLockfile(projectDir)
	if err != nil {
		return nil, err
	}
	if lock.Packages == nil {
		return nil, fmt.Errorf("unsupported lockfile version %d in %s, npm 7 or later is required", lock.LockfileVersion, statePath)
	}

	paths := make([]string, 0, len(lock.Packages))
	for path := range lock.Packages {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	packages := make([]models.InstalledPackage, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry := lock.Packages[path]
		name := packageName(path)
		if name == "" || entry.Link {
			continue
		}
		if entry.Name != "" {
			name = entry.Name
		}
		if entry.Version == "" {
			log.Debug().Str("path", path).Msg("skipping npm entry without a version")
			continue
		}

		packages = append(packages, models.InstalledPackage{
			Name:        name,
			Version:     entry.Version,
			InstallPath: filepath.Join(projectDir, filepath.FromSlash(path)),
			Ecosystem:   models.EcosystemNpm,
		})
	}

	return packages, nil
}

func readLockfile(projectDir string) (*lockfile, string, error) {
	var lastErr error
	for _, statePath := range StatePaths(projectDir) {
		data, err := os.ReadFile(statePath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				lastErr = err
				continue
			}
			return nil, statePath, fmt.Errorf("failed to read npm lockfile %s: %w", statePath, err)
		}

		var lock lockfile
		if err := json.Unmarshal(data, &lock); err != nil {
			return nil, statePath, fmt.Errorf("failed to parse %s: %w", statePath, err)
		}
		log.Debug().Str("file", statePath).Msg("Using npm lockfile")
		return &lock, statePath, nil
	}
	return nil, "", fmt.Errorf("no npm lockfile found in %s: %w", projectDir, lastErr)
}

// packageName derives the package name from its lockfile key, e.g.
// "node_modules/a/node_modules/@scope/b" is "@scope/b". Keys outside
// node_modules (the root and workspaces) yield "".
func packageName(path string) string {
	idx := strings.LastIndex(path, nodeModules)
	if idx < 0 {
		return ""
	}
	return path[idx+len(nodeModules):]
}

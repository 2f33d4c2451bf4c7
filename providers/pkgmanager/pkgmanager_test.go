package pkgmanager

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/boostsecurityio/integrity/models"
	"github.com/boostsecurityio/integrity/providers/composer"
	"github.com/boostsecurityio/integrity/providers/npm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNewLister(t *testing.T) {
	lister, err := NewLister("composer")
	require.NoError(t, err)
	assert.IsType(t, &composer.Lister{}, lister)

	lister, err = NewLister("npm")
	require.NoError(t, err)
	assert.IsType(t, &npm.Lister{}, lister)

	for _, name := range []string{"", "auto"} {
		lister, err = NewLister(name)
		require.NoError(t, err)
		assert.IsType(t, &AutoLister{}, lister)
	}

	_, err = NewLister("pip")
	assert.EqualError(t, err, "unsupported package manager: pip")
}

func TestAutoLister(t *testing.T) {
	dir := t.TempDir()

	_, err := NewLister(Auto)
	require.NoError(t, err)
	_, err = (&AutoLister{}).ListInstalled(context.Background(), dir)
	assert.ErrorContains(t, err, "no installed packages found")
	assert.Empty(t, Detect(dir))

	writeFile(t, filepath.Join(dir, "package-lock.json"), `{"lockfileVersion": 3, "packages": {
		"": {"name": "app"},
		"node_modules/react": {"version": "18.2.0"}
	}}`)
	writeFile(t, filepath.Join(dir, "vendor", "composer", "installed.json"), `{"packages": [
		{"name": "psr/log", "version": "3.0.0", "install-path": "../psr/log"}
	]}`)
	assert.Equal(t, []string{Composer, Npm}, Detect(dir))

	packages, err := (&AutoLister{}).ListInstalled(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, packages, 2)
	assert.Equal(t, models.EcosystemComposer, packages[0].Ecosystem)
	assert.Equal(t, "psr/log", packages[0].Name)
	assert.Equal(t, models.EcosystemNpm, packages[1].Ecosystem)
	assert.Equal(t, "react", packages[1].Name)
}

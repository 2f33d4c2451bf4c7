package models

import (
	"path/filepath"
)

const (
	EcosystemComposer = "composer"
	EcosystemNpm      = "npm"
)

// InstalledPackage is a package as reported by the package manager's own
// installation state.
type InstalledPackage struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	InstallPath string `json:"install_path"`
	Ecosystem   string `json:"ecosystem"`
}

func (p InstalledPackage) Purl() string {
	purl, err := PurlFromPackage(p.Ecosystem, p.Name, p.Version)
	if err != nil {
		return ""
	}
	return purl.String()
}

func (p InstalledPackage) Key() PackageKey {
	return PackageKey{Name: p.Name, Version: p.Version}
}

// RelativeInstallPath returns the install path relative to root when possible.
func (p InstalledPackage) RelativeInstallPath(root string) string {
	rel, err := filepath.Rel(root, p.InstallPath)
	if err != nil {
		return p.InstallPath
	}
	return filepath.ToSlash(rel)
}

// PackageKey identifies a package release within one invocation.
type PackageKey struct {
	Name    string
	Version string
}

type FileDigest struct {
	Path   string `json:"path" yaml:"path"`
	Digest string `json:"digest" yaml:"digest"`
}

// PackageFingerprint is the content digest of an installed package. Files is
// sorted by Path.
type PackageFingerprint struct {
	Algorithm string       `json:"algorithm"`
	Digest    string       `json:"digest"`
	Files     []FileDigest `json:"files,omitempty"`
}

func (f PackageFingerprint) String() string {
	return f.Algorithm + ":" + f.Digest
}

type VerificationRequest struct {
	Name              string             `json:"name"`
	Version           string             `json:"version"`
	NormalizedVersion string             `json:"normalized_version,omitempty"`
	Purl              string             `json:"purl,omitempty"`
	Fingerprint       PackageFingerprint `json:"fingerprint"`
}

func NewVerificationRequest(pkg InstalledPackage, fp PackageFingerprint) VerificationRequest {
	return VerificationRequest{
		Name:              pkg.Name,
		Version:           pkg.Version,
		NormalizedVersion: NormalizeVersion(pkg.Version),
		Purl:              pkg.Purl(),
		Fingerprint:       fp,
	}
}

func (r VerificationRequest) Key() PackageKey {
	return PackageKey{Name: r.Name, Version: r.Version}
}

// VerificationResponse is the authority's answer for one package. ID and
// Checksum are nil when the authority has no record of the release.
type VerificationResponse struct {
	Name       string  `json:"name" yaml:"name"`
	Version    string  `json:"version" yaml:"version"`
	ID         *string `json:"id" yaml:"id,omitempty"`
	Checksum   *string `json:"checksum" yaml:"checksum,omitempty"`
	Similarity *int    `json:"similarity" yaml:"similarity,omitempty"`
}

func (r VerificationResponse) Key() PackageKey {
	return PackageKey{Name: r.Name, Version: r.Version}
}

func (r VerificationResponse) Found() bool {
	return r.ID != nil && *r.ID != ""
}

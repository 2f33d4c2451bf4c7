package models

import (
	"github.com/hashicorp/go-version"
)

// NormalizeVersion returns the canonical semantic form of a package version
// ("v1.2" -> "1.2.0"), or an empty string for branch aliases and other
// versions that do not parse.
func NormalizeVersion(raw string) string {
	v, err := version.NewVersion(raw)
	if err != nil {
		return ""
	}
	return v.String()
}

// Post-install package integrity verification by BoostSecurity.io
package main

import (
	"context"
	"strconv"
)

const image = "ghcr.io/boostsecurityio/integrity"
const currentVersion = "latest"

// Integrity check options
type Integrity struct {
	Config    string
	ConfigSrc *Directory
	Format    string
	Manager   string
	Workers   string
	Version   string
}

// Integrity check options
func New(ctx context.Context,
	// Path to the configuration file
	//+optional
	config string,
	// Directory containing additional configuration files
	// +optional
	configSrc *Directory,
	// Output format (pretty, json, sarif, github)
	//+optional
	format string,
	// Package manager of the project (auto, composer, npm)
	//+optional
	manager string,
	// The number of packages fingerprinted in parallel
	// +optional
	workers string,
	// Version of integrity to use
	//+optional
	version string,

) *Integrity {
	return &Integrity{
		Config:    config,
		ConfigSrc: configSrc,
		Format:    format,
		Manager:   manager,
		Workers:   workers,
		Version:   version,
	}
}

func (m *Integrity) Container() *Container {
	version := m.Version
	if version == "" {
		version = currentVersion
	}

	return dag.Container().
		From(image + ":" + version).
		WithoutEntrypoint().
		With(func(c *Container) *Container {
			if m.ConfigSrc != nil {
				return c.
					WithMountedDirectory("/config", m.ConfigSrc).
					WithWorkdir("/config")
			} else {
				return c.WithWorkdir("/src")
			}
		})
}

// Verify the packages installed in a project directory
func (m *Integrity) Check(ctx context.Context,
	src *Directory,
	// Verification authority access token
	// +optional
	token *Secret,
	// Baseline file, relative to src, used as an offline verification authority
	// +optional
	authorityFile string,
	// Only display packages that do not match their release
	// +optional
	skipMatch bool,
) (string, error) {
	args := []string{"integrity", "check", "/src"}
	args = append(args, m.integrityArgs()...)

	if authorityFile != "" {
		args = append(args, "--authority-file", "/src/"+authorityFile)
	}

	if skipMatch {
		args = append(args, "--skip-match")
	}

	c := m.Container().WithMountedDirectory("/src", src)
	if token != nil {
		c = c.WithSecretVariable("INTEGRITY_TOKEN", token)
	}

	return c.WithExec(args).Stdout(ctx)
}

// Record the fingerprints of the packages installed in a project directory
func (m *Integrity) Snapshot(ctx context.Context, src *Directory) *File {
	args := []string{"integrity", "snapshot", "/src", "-o", "/out/integrity-baseline.yml"}
	args = append(args, m.integrityArgs()...)

	return m.Container().
		WithMountedDirectory("/src", src).
		WithExec([]string{"mkdir", "-p", "/out"}).
		WithExec(args).
		File("/out/integrity-baseline.yml")
}

func (m *Integrity) integrityArgs() []string {
	args := []string{}
	if m.Format != "" {
		args = append(args, "--format", m.Format)
	}

	if m.Config != "" {
		args = append(args, "--config", m.Config)
	}

	if m.Manager != "" {
		args = append(args, "--manager", m.Manager)
	}

	if m.Workers != "" {
		if _, err := strconv.Atoi(m.Workers); err == nil {
			args = append(args, "--workers", m.Workers)
		}
	}

	return args
}

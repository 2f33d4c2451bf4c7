package opa

import (
	"sync"

	"github.com/boostsecurityio/integrity/models"
	"github.com/hashicorp/go-version"
	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/types"
)

var customBuiltins = []string{
	"purl.from_package",
	"purl.link",
	"semver.normalize",
	"semver.constraint_check",
}

var registerOnce sync.Once

func registerBuiltinFunctions() {
	registerOnce.Do(register)
}

func register() {
	rego.RegisterBuiltin3(
		&rego.Function{
			Name: "purl.from_package",
			Decl: types.NewFunction(types.Args(types.S, types.S, types.S), types.S),
		},
		func(_ rego.BuiltinContext, a *ast.Term, b *ast.Term, c *ast.Term) (*ast.Term, error) {
			var ecosystem, name, ver string
			if err := ast.As(a.Value, &ecosystem); err != nil {
				return nil, err
			}
			if err := ast.As(b.Value, &name); err != nil {
				return nil, err
			}
			if err := ast.As(c.Value, &ver); err != nil {
				return nil, err
			}

			purl, err := models.PurlFromPackage(ecosystem, name, ver)
			if err != nil {
				return nil, err
			}

			return ast.StringTerm(purl.String()), nil
		},
	)

	rego.RegisterBuiltin1(
		&rego.Function{
			Name: "purl.link",
			Decl: types.NewFunction(types.Args(types.S), types.S),
		},
		func(_ rego.BuiltinContext, a *ast.Term) (*ast.Term, error) {
			var raw string
			if err := ast.As(a.Value, &raw); err != nil {
				return nil, err
			}

			purl, err := models.NewPurl(raw)
			if err != nil {
				return nil, err
			}

			return ast.StringTerm(purl.Link()), nil
		},
	)

	rego.RegisterBuiltin1(
		&rego.Function{
			Name: "semver.normalize",
			Decl: types.NewFunction(types.Args(types.S), types.S),
		},
		func(_ rego.BuiltinContext, a *ast.Term) (*ast.Term, error) {
			var raw string
			if err := ast.As(a.Value, &raw); err != nil {
				return nil, err
			}

			return ast.StringTerm(models.NormalizeVersion(raw)), nil
		},
	)

	rego.RegisterBuiltin2(
		&rego.Function{
			Name: "semver.constraint_check",
			Decl: types.NewFunction(types.Args(types.S, types.S), types.B),
		},
		func(_ rego.BuiltinContext, a *ast.Term, b *ast.Term) (*ast.Term, error) {
			var constraintsStr string
			if err := ast.As(a.Value, &constraintsStr); err != nil {
				return nil, err
			}

			var versionStr string
			if err := ast.As(b.Value, &versionStr); err != nil {
				return nil, err
			}

			semver, err := version.NewVersion(versionStr)
			if err != nil {
				return nil, err
			}

			constraints, err := version.NewConstraint(constraintsStr)
			if err != nil {
				return nil, err
			}

			return ast.BooleanTerm(constraints.Check(semver)), nil
		},
	)
}

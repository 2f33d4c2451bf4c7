package opa

import (
	"context"
	"testing"

	"github.com/boostsecurityio/integrity/models"
	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noOpaErrors(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		return
	}

	if regoErrors, ok := err.(ast.Errors); ok {
		for _, e := range regoErrors {
			t.Errorf("ast error: %v", e)
		}
	}

	t.Fatal(err)
}

func newTestOpa(t *testing.T) *Opa {
	t.Helper()
	opa, err := NewOpa(context.TODO(), &models.Config{
		Include: []models.ConfigInclude{},
	})
	noOpaErrors(t, err)
	return opa
}

func TestOpaBuiltins(t *testing.T) {
	cases := []struct {
		query    string
		expected interface{}
	}{
		{`purl.from_package("composer", "Acme/Log", "1.0.0")`, "pkg:composer/acme/log@1.0.0"},
		{`purl.from_package("npm", "@babel/core", "7.24.0")`, "pkg:npm/%40babel/core@7.24.0"},
		{`purl.link("pkg:composer/psr/log@3.0.0")`, "https://packagist.org/packages/psr/log"},
		{`purl.link("pkg:npm/left-pad@1.3.0")`, "https://www.npmjs.com/package/left-pad"},
		{`semver.normalize("1.2")`, "1.2.0"},
		{`semver.normalize("dev-main")`, ""},
	}

	opa := newTestOpa(t)
	for _, c := range cases {
		var result interface{}
		err := opa.Eval(context.TODO(), c.query, nil, &result)
		noOpaErrors(t, err)

		assert.Equal(t, c.expected, result, c.query)
	}
}

func TestSemverConstraintCheck(t *testing.T) {
	cases := []struct {
		constraint string
		version    string
		expected   bool
	}{
		{">=1.0.0", "1.0.0", true},
		{"<=3.11.13", "3.11.13", true},
		{"<=3.11.13", "3.11.14", false},
		{">=4.0.0,<4.4.1", "4", true},
		{">=4.0.0,<4.4.1", "3", false},
	}

	opa := newTestOpa(t)
	for _, c := range cases {
		var result interface{}
		err := opa.Eval(context.TODO(), "semver.constraint_check(\""+c.constraint+"\", \""+c.version+"\")", nil, &result)
		noOpaErrors(t, err)

		assert.Equal(t, c.expected, result)
	}
}

func TestUtils(t *testing.T) {
	opa := newTestOpa(t)
	ctx := context.TODO()

	var result []string
	err := opa.Eval(ctx, `[utils.percentage(null), utils.percentage(80), utils.display(""), utils.display(null), utils.display("abc")]`, nil, &result)
	noOpaErrors(t, err)
	assert.Equal(t, []string{"-", "80%", "-", "-", "abc"}, result)

	var link string
	err = opa.Eval(ctx, `utils.registry_link({"purl": "pkg:npm/left-pad@1.3.0"})`, nil, &link)
	noOpaErrors(t, err)
	assert.Equal(t, "https://www.npmjs.com/package/left-pad", link)
}

func TestWithConfig(t *testing.T) {
	o := newTestOpa(t)
	ctx := context.TODO()

	err := o.WithConfig(ctx, &models.Config{
		Manager: "npm",
		Include: []models.ConfigInclude{
			{
				Path: []string{"testdata/config"},
			},
		},
	})
	assert.NoError(t, err)

	var result []string
	err = o.Eval(ctx, "[data.config.manager, data.config.include[_].path[_]]", nil, &result)

	noOpaErrors(t, err)
	assert.Equal(t, "npm", result[0])
	assert.Equal(t, "testdata/config", result[1])
	assert.Equal(t, "testdata/config", o.LoadPaths[0])

	var output string
	err = o.Eval(ctx, "data.integrity.format.csv.result", map[string]interface{}{
		"report": map[string]interface{}{
			"verdicts": []interface{}{
				map[string]interface{}{"name": "left-pad", "version": "1.3.0", "verdict": "mismatch", "percentage": 42},
			},
		},
	}, &output)
	noOpaErrors(t, err)
	assert.Equal(t, "name,version,verdict,percentage\nleft-pad,1.3.0,mismatch,42%", output)
}

func TestDefaultConfigInStore(t *testing.T) {
	o, err := NewOpa(context.TODO(), nil)
	noOpaErrors(t, err)

	var url string
	err = o.Eval(context.TODO(), "data.config.authority.url", nil, &url)
	noOpaErrors(t, err)
	assert.Equal(t, models.DefaultAuthorityURL, url)
}

func TestTokenNotExposed(t *testing.T) {
	config := models.DefaultConfig()
	config.Authority.Token = "s3cret"
	o, err := NewOpa(context.TODO(), config)
	noOpaErrors(t, err)

	var authority map[string]interface{}
	err = o.Eval(context.TODO(), "data.config.authority", nil, &authority)
	noOpaErrors(t, err)
	assert.NotContains(t, authority, "token")
}

func TestCapabilities(t *testing.T) {
	capabilities, err := Capabilities()
	require.NoError(t, err)
	require.NotNil(t, capabilities)

	names := map[string]bool{}
	for _, b := range capabilities.Builtins {
		names[b.Name] = true
		switch b.Name {
		case "http.send",
			"opa.runtime",
			"net.lookup_ip_addr",
			"rego.parse_module",
			"trace":
			t.Errorf("unexpected opa capabilities builtin: %v", b.Name)
		}
	}
	for _, name := range customBuiltins {
		assert.True(t, names[name], name)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	opa := newTestOpa(t)

	var result struct {
		Output string `json:"output"`
		Error  string `json:"error"`
	}
	err := opa.Eval(context.TODO(), "data.integrity.queries.format.result", map[string]interface{}{
		"report":          map[string]interface{}{"verdicts": []interface{}{}},
		"format":          "xml",
		"builtin_formats": []string{"pretty", "sarif"},
	}, &result)
	noOpaErrors(t, err)
	assert.Equal(t, "unsupported format: xml", result.Error)
}

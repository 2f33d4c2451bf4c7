// Package opa evaluates the embedded and user supplied rego policies that
// render reports.
package opa

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/boostsecurityio/integrity/models"
	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/loader"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/storage"
	"github.com/open-policy-agent/opa/v1/storage/inmem"
	"github.com/open-policy-agent/opa/v1/topdown"
	"github.com/open-policy-agent/opa/v1/topdown/print"
	"github.com/rs/zerolog/log"
)

//go:embed rego
var regoFs embed.FS

// builtins that would let a policy reach outside the process
var deniedBuiltins = map[string]bool{
	"http.send":          true,
	"opa.runtime":        true,
	"net.lookup_ip_addr": true,
	"rego.parse_module":  true,
	"trace":              true,
}

type Opa struct {
	Compiler  *ast.Compiler
	Store     storage.Store
	LoadPaths []string
	Trace     bool
}

func NewOpa(ctx context.Context, config *models.Config) (*Opa, error) {
	registerBuiltinFunctions()

	o := &Opa{
		Store: inmem.NewFromObject(map[string]interface{}{
			"config": toValue(models.DefaultConfig()),
		}),
	}
	if config != nil {
		if err := o.WithConfig(ctx, config); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *Opa) Print(ctx print.Context, s string) error {
	log.Debug().Ctx(ctx.Context).Str("location", ctx.Location.String()).Msg(s)
	return nil
}

// WithConfig exposes config as data.config and registers the include paths
// for the next compilation.
func (o *Opa) WithConfig(ctx context.Context, config *models.Config) error {
	o.LoadPaths = make([]string, 0)
	for _, include := range config.Include {
		for _, path := range include.Path {
			if path == "" {
				continue
			}
			o.LoadPaths = append(o.LoadPaths, path)
		}
	}
	o.Compiler = nil

	return storage.WriteOne(ctx,
		o.Store,
		storage.ReplaceOp,
		storage.MustParsePath("/config"),
		toValue(config),
	)
}

func (o *Opa) Compile(ctx context.Context) error {
	modules := make(map[string]string)
	err := fs.WalkDir(regoFs, "rego", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		content, err := regoFs.ReadFile(path)
		if err != nil {
			return err
		}

		modules["integrity/opa/"+path] = string(content)
		return nil
	})
	if err != nil {
		return err
	}

	if len(o.LoadPaths) > 0 {
		result, err := loader.NewFileLoader().
			WithProcessAnnotation(true).
			Filtered(o.LoadPaths, fileLoaderFilter)
		if err != nil {
			return err
		}

		for name, mod := range result.Modules {
			modules["include/"+name] = string(mod.Raw)
		}
	}

	capabilities, err := Capabilities()
	if err != nil {
		return err
	}

	compiler, err := ast.CompileModulesWithOpt(modules, ast.CompileOpts{
		EnablePrintStatements: true,
		ParserOptions: ast.ParserOptions{
			Capabilities: capabilities,
		},
	})
	if err != nil {
		return err
	}

	o.Compiler = compiler
	return nil
}

func (o *Opa) Eval(ctx context.Context, query string, input map[string]interface{}, result interface{}) error {
	if o.Compiler == nil {
		if err := o.Compile(ctx); err != nil {
			log.Debug().Msg(err.Error())
			return err
		}
	}

	traceOpt := func(r *rego.Rego) {}
	bufferTracer := topdown.NewBufferTracer()
	if o.Trace {
		traceOpt = rego.QueryTracer(bufferTracer)
	}

	options := []func(*rego.Rego){
		rego.Query(query),
		rego.Compiler(o.Compiler),
		rego.PrintHook(o),
		rego.Imports([]string{"data.integrity.utils"}),
		rego.Store(o.Store),
		traceOpt,
	}
	if input != nil {
		options = append(options, rego.Input(input))
	}

	rs, err := rego.New(options...).Eval(ctx)

	if o.Trace {
		topdown.PrettyTraceWithOpts(os.Stderr, *bufferTracer, topdown.PrettyTraceOptions{Locations: true, ExprVariables: true, LocalVariables: true})
	}

	if err != nil {
		return err
	}

	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return fmt.Errorf("opa result set is empty")
	}

	val := rs[0].Expressions[0].Value
	data, err := json.Marshal(val)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, result)
}

// Capabilities are the builtins of this OPA version minus the ones that
// reach the network or the runtime, plus the integrity builtins.
func Capabilities() (*ast.Capabilities, error) {
	registerBuiltinFunctions()

	all := ast.CapabilitiesForThisVersion()
	capabilities := &ast.Capabilities{
		Builtins:       make([]*ast.Builtin, 0, len(all.Builtins)),
		FutureKeywords: all.FutureKeywords,
		Features:       all.Features,
		AllowNet:       []string{},
	}

	seen := map[string]bool{}
	for _, b := range all.Builtins {
		if deniedBuiltins[b.Name] {
			continue
		}
		seen[b.Name] = true
		capabilities.Builtins = append(capabilities.Builtins, b)
	}
	for _, name := range customBuiltins {
		if seen[name] {
			continue
		}
		b, ok := ast.BuiltinMap[name]
		if !ok {
			return nil, fmt.Errorf("builtin %s is not registered", name)
		}
		capabilities.Builtins = append(capabilities.Builtins, b)
	}

	if len(capabilities.AllowNet) != 0 {
		return nil, fmt.Errorf("capabilities allow_net not empty")
	}
	return capabilities, nil
}

// toValue converts v to plain JSON values so rego sees the same shape as
// the json encoding.
func toValue(v interface{}) interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

func fileLoaderFilter(abspath string, info os.FileInfo, depth int) bool {
	if !info.IsDir() {
		return !strings.HasSuffix(abspath, ".rego")
	}
	return false
}

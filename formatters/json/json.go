package json

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/boostsecurityio/integrity/opa"
	"github.com/boostsecurityio/integrity/results"
)

// BuiltinFormats are rendered in Go and never looked up in rego.
var BuiltinFormats = []string{"pretty", "sarif"}

func NewFormat(opa *opa.Opa, format string, out io.Writer) *Format {
	return &Format{
		opa:    opa,
		format: format,
		out:    out,
	}
}

type Format struct {
	opa    *opa.Opa
	out    io.Writer
	format string
}

func (f *Format) Format(ctx context.Context, report *results.Report) error {
	var result struct {
		Output string `json:"output"`
		Error  string `json:"error"`
	}

	input, err := reportInput(report)
	if err != nil {
		return err
	}

	err = f.opa.Eval(ctx,
		"data.integrity.queries.format.result",
		map[string]interface{}{
			"report":          input,
			"format":          f.format,
			"builtin_formats": BuiltinFormats,
		},
		&result,
	)
	if err != nil {
		return err
	}

	if result.Error != "" {
		return errors.New(result.Error)
	}

	fmt.Fprint(f.out, result.Output)
	return nil
}

func reportInput(report *results.Report) (interface{}, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	var input interface{}
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, err
	}
	return input, nil
}

// Package extract harvests typed fields from finished output sources.
// Three query dialects are supported, xpath over markup, gjson paths over
// nested structures, and filter expressions over tabular rows, all unified
// by one collapsing contract: a query matching exactly one value sets a
// scalar, anything else sets a list.
package extract

import (
	"fmt"
	"io"
	"os"

	"github.com/wehubfusion/Talaria/pkg/errors"
	"github.com/wehubfusion/Talaria/pkg/pipeline"
)

// binding ties a query expression to a destination field and a conversion.
// Bindings on the same task are evaluated independently; a later binding
// may overwrite a field set by an earlier one.
type binding struct {
	query   string
	field   string
	convert Conversion
}

func newBinding(query, field string, convert Conversion) binding {
	if convert == nil {
		convert = String
	}
	return binding{query: query, field: field, convert: convert}
}

// collapse applies the uniform single-vs-multiple rule: exactly one match
// yields the converted scalar, zero or several matches yield the list of
// converted values. Conversion failures surface as extraction errors naming
// the query and field.
func (b binding) collapse(matches []any) (any, error) {
	if len(matches) == 1 {
		value, err := b.convert(matches[0])
		if err != nil {
			return nil, b.conversionError(err)
		}
		return value, nil
	}

	values := make([]any, 0, len(matches))
	for _, match := range matches {
		value, err := b.convert(match)
		if err != nil {
			return nil, b.conversionError(err)
		}
		values = append(values, value)
	}
	return values, nil
}

func (b binding) conversionError(err error) error {
	return errors.Extraction(
		fmt.Sprintf("converting match of query %q for field %q", b.query, b.field), err)
}

// sourceBytes reads the task's output source: the named file when one is
// configured, otherwise the captured output stream of the last Execute or
// Connect.
func sourceBytes(env *pipeline.Env, file string) ([]byte, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, errors.Extraction(fmt.Sprintf("reading %s", file), err)
		}
		return data, nil
	}

	stdout, err := env.Stdout()
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(stdout)
	if err != nil {
		return nil, errors.Extraction("reading captured output", err)
	}
	return data, nil
}

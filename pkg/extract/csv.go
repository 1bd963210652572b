package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/wehubfusion/Talaria/pkg/errors"
	"github.com/wehubfusion/Talaria/pkg/pipeline"
)

// ParseCSVTask evaluates filter expressions over tabular rows and stores
// the collapsed results in the environment.
//
// Each data row is exposed to the filter as a binding named row, an object
// mapping column headers to whitespace-trimmed string values. A filter is a
// JavaScript expression evaluated once per row in a sandboxed runtime; it
// yields either a result value or null/undefined, in which case the row is
// skipped. A conditional selection reads
//
//	row.b == "yes" ? row.a : null
//
// and a bare column reference, row.a, yields the whole column. Results
// accumulate per binding across the whole file before collapsing.
type ParseCSVTask struct {
	file       string
	comma      rune
	comment    rune
	fieldNames []string
	bindings   []binding
}

// CSVOption configures a ParseCSVTask.
type CSVOption func(*ParseCSVTask)

// WithComma sets the field delimiter. The default is ','.
func WithComma(comma rune) CSVOption {
	return func(t *ParseCSVTask) {
		t.comma = comma
	}
}

// WithComment sets a comment character; lines starting with it are ignored.
func WithComment(comment rune) CSVOption {
	return func(t *ParseCSVTask) {
		t.comment = comment
	}
}

// WithFieldNames supplies the column names for a file that carries no
// header row.
func WithFieldNames(names ...string) CSVOption {
	return func(t *ParseCSVTask) {
		t.fieldNames = names
	}
}

// ParseCSV creates a task that reads the given tabular file. Queries are
// attached with Get.
func ParseCSV(file string, options ...CSVOption) *ParseCSVTask {
	t := &ParseCSVTask{file: file, comma: ','}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// ParseCSVOutput creates a task that reads the captured output of the last
// Execute or Connect instead of a file.
func ParseCSVOutput(options ...CSVOption) *ParseCSVTask {
	t := &ParseCSVTask{comma: ','}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// Get binds a filter expression to a destination field. A nil conversion
// stores matched values unchanged. Get returns the task for chaining.
func (t *ParseCSVTask) Get(query, field string, convert Conversion) *ParseCSVTask {
	t.bindings = append(t.bindings, newBinding(query, field, convert))
	return t
}

// Run implements the pipeline.Task interface.
func (t *ParseCSVTask) Run(ctx context.Context, env *pipeline.Env) error {
	data, err := sourceBytes(env, t.file)
	if err != nil {
		return err
	}

	filters := make([]*rowFilter, len(t.bindings))
	for i, b := range t.bindings {
		filter, err := compileRowFilter(b.query)
		if err != nil {
			return errors.Extraction(fmt.Sprintf("query %q for field %q", b.query, b.field), err)
		}
		filters[i] = filter
	}

	vm, err := newSandboxedVM()
	if err != nil {
		return errors.Extraction("initializing filter runtime", err)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = t.comma
	reader.Comment = t.comment
	reader.TrimLeadingSpace = true

	header := t.fieldNames
	if header == nil {
		record, err := reader.Read()
		if err == io.EOF {
			record = nil
		} else if err != nil {
			return errors.Extraction(fmt.Sprintf("reading header from %s", t.sourceName()), err)
		}
		header = make([]string, len(record))
		for i, name := range record {
			header[i] = strings.TrimSpace(name)
		}
	}

	matches := make([][]any, len(t.bindings))
	for i := range matches {
		matches[i] = []any{}
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Extraction(fmt.Sprintf("reading rows from %s", t.sourceName()), err)
		}

		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(record) {
				row[name] = strings.TrimSpace(record[i])
			}
		}

		for i, filter := range filters {
			result, ok, err := filter.eval(vm, row)
			if err != nil {
				return errors.Extraction(
					fmt.Sprintf("evaluating query %q for field %q", t.bindings[i].query, t.bindings[i].field), err)
			}
			if ok {
				matches[i] = append(matches[i], result)
			}
		}
	}

	logger := env.Logger()
	for i, b := range t.bindings {
		logger.Info("Query matched",
			zap.String("query", b.query),
			zap.Int("matches", len(matches[i])))

		value, err := b.collapse(matches[i])
		if err != nil {
			return err
		}
		env.Set(b.field, value)
	}
	return nil
}

func (t *ParseCSVTask) sourceName() string {
	if t.file == "" {
		return "captured output"
	}
	return t.file
}

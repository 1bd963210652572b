package extract

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/wehubfusion/Talaria/pkg/errors"
	"github.com/wehubfusion/Talaria/pkg/pipeline"
)

// OutputCallback consumes an output source and returns the fields to merge
// into the environment.
type OutputCallback func(r io.Reader) (map[string]any, error)

// ParseOutputTask hands the captured output, or a file, to a caller-supplied
// parser and merges its results into the environment. It is the escape
// hatch for output formats the query dialects do not cover.
type ParseOutputTask struct {
	file     string
	callback OutputCallback
}

// ParseOutput creates a task that parses the captured output of the last
// Execute or Connect.
func ParseOutput(callback OutputCallback) *ParseOutputTask {
	return &ParseOutputTask{callback: callback}
}

// ParseOutputFile creates a task that parses the named file instead.
func ParseOutputFile(file string, callback OutputCallback) *ParseOutputTask {
	return &ParseOutputTask{file: file, callback: callback}
}

// Run implements the pipeline.Task interface.
func (t *ParseOutputTask) Run(ctx context.Context, env *pipeline.Env) error {
	var source io.Reader
	if t.file != "" {
		f, err := os.Open(t.file)
		if err != nil {
			return errors.Extraction(fmt.Sprintf("reading %s", t.file), err)
		}
		defer f.Close()
		source = f
	} else {
		stdout, err := env.Stdout()
		if err != nil {
			return err
		}
		source = stdout
	}

	results, err := t.callback(source)
	if err != nil {
		return errors.Extraction("parsing output", err)
	}
	for name, value := range results {
		env.Set(name, value)
	}
	return nil
}

// ParseLineTask reads a single line from the captured output, splits it
// into tokens and stores the converted values.
type ParseLineTask struct {
	names     []string
	separator string
	convert   Conversion
}

// LineOption configures a ParseLineTask.
type LineOption func(*ParseLineTask)

// WithSeparator splits the line on the given separator instead of
// whitespace.
func WithSeparator(separator string) LineOption {
	return func(t *ParseLineTask) {
		t.separator = separator
	}
}

// WithConversion applies the conversion to every token.
func WithConversion(convert Conversion) LineOption {
	return func(t *ParseLineTask) {
		t.convert = convert
	}
}

// ParseLine creates a task that reads the next output line. With a single
// field name the whole token list is stored under that name; with several
// names the token count must match and each token is stored under the
// corresponding name.
func ParseLine(names []string, options ...LineOption) *ParseLineTask {
	t := &ParseLineTask{names: names, convert: String}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// Run implements the pipeline.Task interface.
func (t *ParseLineTask) Run(ctx context.Context, env *pipeline.Env) error {
	stdout, err := env.Stdout()
	if err != nil {
		return err
	}

	line, err := stdout.ReadString('\n')
	if err != nil && line == "" {
		return errors.Extraction("reading output line", err)
	}
	line = strings.TrimRight(line, "\r\n")
	env.Logger().Info("Parsing line", zap.String("line", line))

	var tokens []string
	if t.separator == "" {
		tokens = strings.Fields(line)
	} else {
		tokens = strings.Split(line, t.separator)
	}

	values := make([]any, len(tokens))
	for i, token := range tokens {
		value, err := t.convert(token)
		if err != nil {
			return errors.Extraction(fmt.Sprintf("converting token %q", token), err)
		}
		values[i] = value
	}

	if len(t.names) == 1 {
		env.Set(t.names[0], values)
		return nil
	}
	if len(t.names) != len(values) {
		return errors.Extraction(
			fmt.Sprintf("parsed %d values for %d names", len(values), len(t.names)), nil)
	}
	for i, name := range t.names {
		env.Set(name, values[i])
	}
	return nil
}

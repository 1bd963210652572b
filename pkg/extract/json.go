package extract

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/wehubfusion/Talaria/pkg/errors"
	"github.com/wehubfusion/Talaria/pkg/pipeline"
)

// ParseJSONTask evaluates gjson path queries over a nested structure and
// stores the collapsed results in the environment.
type ParseJSONTask struct {
	file     string
	bindings []binding
}

// ParseJSON creates a task that reads the given JSON file. Queries are
// attached with Get.
func ParseJSON(file string) *ParseJSONTask {
	return &ParseJSONTask{file: file}
}

// ParseJSONOutput creates a task that reads the captured output of the
// last Execute or Connect instead of a file.
func ParseJSONOutput() *ParseJSONTask {
	return &ParseJSONTask{}
}

// Get binds a gjson path to a destination field. Paths may traverse
// list-valued nodes ("runs.#.score"); such queries collapse element-wise,
// as does a single match whose value is itself an array. A nil conversion
// stores matched values unchanged. Get returns the task for chaining.
func (t *ParseJSONTask) Get(query, field string, convert Conversion) *ParseJSONTask {
	t.bindings = append(t.bindings, newBinding(query, field, convert))
	return t
}

// Run implements the pipeline.Task interface.
func (t *ParseJSONTask) Run(ctx context.Context, env *pipeline.Env) error {
	data, err := sourceBytes(env, t.file)
	if err != nil {
		return err
	}
	if !gjson.ValidBytes(data) {
		return errors.Extraction(fmt.Sprintf("parsing JSON from %s", t.sourceName()), nil)
	}

	logger := env.Logger()
	for _, b := range t.bindings {
		result := gjson.GetBytes(data, b.query)

		var matches []any
		switch {
		case !result.Exists():
			matches = []any{}
		case result.IsArray():
			for _, element := range result.Array() {
				matches = append(matches, element.Value())
			}
		default:
			matches = []any{result.Value()}
		}
		logger.Info("Query matched",
			zap.String("query", b.query),
			zap.Int("matches", len(matches)))

		value, err := b.collapse(matches)
		if err != nil {
			return err
		}
		env.Set(b.field, value)
	}
	return nil
}

func (t *ParseJSONTask) sourceName() string {
	if t.file == "" {
		return "captured output"
	}
	return t.file
}

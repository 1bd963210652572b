package extract

import (
	"bytes"
	"context"
	"fmt"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/wehubfusion/Talaria/pkg/errors"
	"github.com/wehubfusion/Talaria/pkg/pipeline"
)

// ParseXMLTask evaluates xpath queries over a markup document and stores
// the collapsed results in the environment.
type ParseXMLTask struct {
	file     string
	bindings []binding
}

// ParseXML creates a task that reads the given markup file. Queries are
// attached with Get.
func ParseXML(file string) *ParseXMLTask {
	return &ParseXMLTask{file: file}
}

// ParseXMLOutput creates a task that reads the captured output of the last
// Execute or Connect instead of a file.
func ParseXMLOutput() *ParseXMLTask {
	return &ParseXMLTask{}
}

// Get binds an xpath query to a destination field. A nil conversion stores
// the matched text unchanged. Get returns the task for chaining.
func (t *ParseXMLTask) Get(query, field string, convert Conversion) *ParseXMLTask {
	t.bindings = append(t.bindings, newBinding(query, field, convert))
	return t
}

// Run implements the pipeline.Task interface.
func (t *ParseXMLTask) Run(ctx context.Context, env *pipeline.Env) error {
	data, err := sourceBytes(env, t.file)
	if err != nil {
		return err
	}

	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return errors.Extraction(fmt.Sprintf("parsing markup from %s", t.sourceName()), err)
	}

	logger := env.Logger()
	for _, b := range t.bindings {
		nodes, err := xmlquery.QueryAll(doc, b.query)
		if err != nil {
			return errors.Extraction(fmt.Sprintf("evaluating query %q for field %q", b.query, b.field), err)
		}

		matches := make([]any, 0, len(nodes))
		for _, node := range nodes {
			// Attribute and text nodes are already leaf values; element
			// nodes contribute their text content.
			matches = append(matches, node.InnerText())
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

func (t *ParseXMLTask) sourceName() string {
	if t.file == "" {
		return "captured output"
	}
	return t.file
}

package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Talaria/pkg/errors"
	"github.com/wehubfusion/Talaria/pkg/pipeline"
)

const resultsXML = `<results>
  <run id="1"><score>1.5</score></run>
  <run id="2"><score>2.5</score></run>
  <best>0.75</best>
</results>`

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseXMLCollapse(t *testing.T) {
	file := writeFixture(t, "results.xml", resultsXML)
	env := pipeline.NewEnv(nil)

	task := ParseXML(file).
		Get("//best", "best", Float).
		Get("//run/score", "scores", Float).
		Get("//run/@id", "ids", nil).
		Get("//nothing", "empty", Float)
	require.NoError(t, task.Run(context.Background(), env))

	best, _ := env.Lookup("best")
	assert.Equal(t, 0.75, best)

	scores, _ := env.Lookup("scores")
	assert.Equal(t, []any{1.5, 2.5}, scores)

	ids, _ := env.Lookup("ids")
	assert.Equal(t, []any{"1", "2"}, ids)

	empty, _ := env.Lookup("empty")
	assert.Equal(t, []any{}, empty)
}

func TestParseXMLConversionFailure(t *testing.T) {
	file := writeFixture(t, "results.xml", resultsXML)
	env := pipeline.NewEnv(nil)

	err := ParseXML(file).Get("//run/score", "scores", Int).Run(context.Background(), env)
	require.Error(t, err)
	assert.True(t, errors.IsExtraction(err))
	assert.Contains(t, err.Error(), "//run/score")
	assert.Contains(t, err.Error(), "scores")
}

func TestParseXMLMissingFile(t *testing.T) {
	env := pipeline.NewEnv(nil)

	err := ParseXML(filepath.Join(t.TempDir(), "absent.xml")).
		Get("//x", "x", nil).
		Run(context.Background(), env)
	require.Error(t, err)
	assert.True(t, errors.IsExtraction(err))
}

package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Talaria/pkg/errors"
	"github.com/wehubfusion/Talaria/pkg/pipeline"
)

const resultsCSV = `a, b
1, yes
2, no
3, yes
`

func TestParseCSVRowFilter(t *testing.T) {
	file := writeFixture(t, "results.csv", resultsCSV)
	env := pipeline.NewEnv(nil)

	task := ParseCSV(file).
		Get(`row.b == "yes" ? row.a : null`, "matched", nil).
		Get(`row.a == "2" ? row.b : null`, "single", nil).
		Get(`row.a`, "column", nil).
		Get(`row.b == "maybe" ? row.a : null`, "none", nil)
	require.NoError(t, task.Run(context.Background(), env))

	// Two matches collapse to a list, not a scalar.
	matched, _ := env.Lookup("matched")
	assert.Equal(t, []any{"1", "3"}, matched)

	// Exactly one match collapses to a scalar.
	single, _ := env.Lookup("single")
	assert.Equal(t, "no", single)

	column, _ := env.Lookup("column")
	assert.Equal(t, []any{"1", "2", "3"}, column)

	none, _ := env.Lookup("none")
	assert.Equal(t, []any{}, none)
}

func TestParseCSVNumericFilterAndConversion(t *testing.T) {
	file := writeFixture(t, "results.csv", resultsCSV)
	env := pipeline.NewEnv(nil)

	task := ParseCSV(file).
		Get(`parseFloat(row.a) > 1.5 ? row.a : null`, "big", Float)
	require.NoError(t, task.Run(context.Background(), env))

	big, _ := env.Lookup("big")
	assert.Equal(t, []any{2.0, 3.0}, big)
}

func TestParseCSVValuesAreTrimmed(t *testing.T) {
	file := writeFixture(t, "padded.csv", "name , value\n x , 1 \n")
	env := pipeline.NewEnv(nil)

	task := ParseCSV(file).Get(`row.name`, "name", nil)
	require.NoError(t, task.Run(context.Background(), env))

	name, _ := env.Lookup("name")
	assert.Equal(t, "x", name)
}

func TestParseCSVOptions(t *testing.T) {
	file := writeFixture(t, "raw.csv", "# comment\n1;yes\n2;no\n")
	env := pipeline.NewEnv(nil)

	task := ParseCSV(file,
		WithComma(';'),
		WithComment('#'),
		WithFieldNames("a", "b"),
	).Get(`row.b == "yes" ? row.a : null`, "matched", Int)
	require.NoError(t, task.Run(context.Background(), env))

	matched, _ := env.Lookup("matched")
	assert.Equal(t, 1, matched)
}

func TestParseCSVFromCapturedOutput(t *testing.T) {
	env := envWithOutput(t, "a,b\n5,yes\n")

	task := ParseCSVOutput().Get(`row.a`, "a", Int)
	require.NoError(t, task.Run(context.Background(), env))

	a, _ := env.Lookup("a")
	assert.Equal(t, 5, a)
}

func TestParseCSVConversionFailure(t *testing.T) {
	file := writeFixture(t, "results.csv", resultsCSV)
	env := pipeline.NewEnv(nil)

	err := ParseCSV(file).Get(`row.b`, "b", Int).Run(context.Background(), env)
	require.Error(t, err)
	assert.True(t, errors.IsExtraction(err))
	assert.Contains(t, err.Error(), "row.b")
}

func TestParseCSVBadExpression(t *testing.T) {
	file := writeFixture(t, "results.csv", resultsCSV)
	env := pipeline.NewEnv(nil)

	err := ParseCSV(file).Get(`row.a ===`, "x", nil).Run(context.Background(), env)
	require.Error(t, err)
	assert.True(t, errors.IsExtraction(err))
}

func TestRowFilterSandboxBlocksEval(t *testing.T) {
	file := writeFixture(t, "results.csv", resultsCSV)
	env := pipeline.NewEnv(nil)

	err := ParseCSV(file).Get(`eval("row.a")`, "x", nil).Run(context.Background(), env)
	require.Error(t, err)
	assert.True(t, errors.IsExtraction(err))
	assert.Contains(t, err.Error(), "not allowed")
}

package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := Precondition("process", ErrNoProcess)
	assert.Contains(t, err.Error(), CodePrecondition)
	assert.Contains(t, err.Error(), ErrNoProcess.Error())

	plain := Assertion("x must be positive")
	assert.Equal(t, "[ASSERTION] x must be positive", plain.Error())
}

func TestUnwrap(t *testing.T) {
	err := Precondition("channel", ErrNoChannel)
	assert.True(t, errors.Is(err, ErrNoChannel))

	wrapped := fmt.Errorf("task 2 (channel.SendTask): %w", err)
	assert.True(t, errors.Is(wrapped, ErrNoChannel))
	assert.True(t, IsPrecondition(wrapped))
}

func TestCategoryPredicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"precondition", Precondition("exit code", ErrNoExitCode), IsPrecondition, true},
		{"execution", Execution("expected exit code in [0], received 1", nil), IsExecution, true},
		{"extraction", Extraction("query //x", errors.New("bad float")), IsExtraction, true},
		{"assertion", Assertion("failed"), IsAssertion, true},
		{"wrong category", Execution("boom", nil), IsPrecondition, false},
		{"plain error", errors.New("boom"), IsExecution, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(tt.err))
		})
	}
}

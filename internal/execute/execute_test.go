package execute

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunUnsupportedLanguage(t *testing.T) {
	runner := NewRunner()

	_, err := runner.Run(context.Background(), Request{Code: "puts 'hi'", Language: "ruby"})
	require.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestRunPython(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not installed")
	}

	runner := NewRunner()

	resp, err := runner.Run(context.Background(), Request{
		Code:     "print('hello')",
		Language: "python",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello\n", resp.Output)
	assert.Empty(t, resp.Error)
	assert.Greater(t, resp.ExecutionTime, 0.0)
}

func TestRunPythonRuntimeError(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not installed")
	}

	runner := NewRunner()

	resp, err := runner.Run(context.Background(), Request{
		Code:     "raise ValueError('boom')",
		Language: "python",
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Error, "ValueError")
}

func TestRunTimeout(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not installed")
	}

	runner := &Runner{Timeout: 200 * time.Millisecond}

	resp, err := runner.Run(context.Background(), Request{
		Code:     "while True:\n    pass",
		Language: "python",
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Error, "timeout")
}

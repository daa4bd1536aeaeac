// Package execute runs user-submitted code by shelling out to the
// language toolchain. Each run happens in a throwaway temp file under a
// hard timeout; it shares no state with the collaboration core.
package execute

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

var ErrUnsupportedLanguage = errors.New("unsupported language")

type Request struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

type Response struct {
	Output        string  `json:"output"`
	Error         string  `json:"error,omitempty"`
	ExecutionTime float64 `json:"execution_time"`
}

type Runner struct {
	Timeout time.Duration
}

func NewRunner() *Runner {
	return &Runner{Timeout: 10 * time.Second}
}

// Run executes the submitted code and captures its output. Toolchain and
// runtime failures come back inside the Response; only an unsupported
// language is an error to the caller.
func (r *Runner) Run(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	switch req.Language {
	case "python":
		return r.runPython(ctx, req.Code, start)
	case "cpp":
		return r.runCpp(ctx, req.Code, start)
	default:
		return Response{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, req.Language)
	}
}

func (r *Runner) runPython(ctx context.Context, code string, start time.Time) (Response, error) {
	src, err := writeTemp(code, "*.py")
	if err != nil {
		return Response{}, err
	}
	defer os.Remove(src)

	return r.execute(ctx, start, "python3", src)
}

func (r *Runner) runCpp(ctx context.Context, code string, start time.Time) (Response, error) {
	src, err := writeTemp(code, "*.cpp")
	if err != nil {
		return Response{}, err
	}
	defer os.Remove(src)

	bin := strings.TrimSuffix(src, ".cpp")
	defer os.Remove(bin)

	compile, err := r.execute(ctx, start, "g++", "-o", bin, src)
	if err != nil {
		return Response{}, err
	}
	if compile.Error != "" {
		compile.Output = ""
		compile.Error = "Compilation error: " + compile.Error
		return compile, nil
	}

	return r.execute(ctx, start, bin)
}

func (r *Runner) execute(ctx context.Context, start time.Time, name string, args ...string) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	elapsed := time.Since(start).Seconds()

	if ctx.Err() == context.DeadlineExceeded {
		return Response{
			Error:         fmt.Sprintf("Execution timeout (%v)", r.Timeout),
			ExecutionTime: r.Timeout.Seconds(),
		}, nil
	}

	resp := Response{Output: stdout.String(), ExecutionTime: elapsed}
	if err != nil {
		resp.Error = stderr.String()
		if resp.Error == "" {
			resp.Error = err.Error()
		}
	}
	return resp, nil
}

func writeTemp(code, pattern string) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(code); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

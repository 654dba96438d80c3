// Package chunkrunner adapts the external chunk-execution engine to the
// parser's ChunkRenderer interface.
package chunkrunner

import (
	"context"
	"errors"
	"fmt"
	"html"
	"os/exec"
	"strings"
	"time"
)

// Exec runs a configured command per chunk: chunk code on stdin, the
// options string as the final argument, rendered HTML on stdout. The
// command is expected to be a sandboxed interpreter; its failures come
// back as ordinary errors that the parser captures per node.
type Exec struct {
	argv    []string
	timeout time.Duration
}

// NewExec builds an Exec runner from a whitespace-separated command line.
func NewExec(command string, timeout time.Duration) (*Exec, error) {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil, errors.New("chunkrunner: empty command")
	}
	return &Exec{argv: argv, timeout: timeout}, nil
}

func (e *Exec) Render(ctx context.Context, code, options string) (string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	args := append(e.argv[1:], options)
	cmd := exec.CommandContext(ctx, e.argv[0], args...)
	cmd.Stdin = strings.NewReader(code)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return "", fmt.Errorf("chunkrunner: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("chunkrunner: %w", err)
	}
	return string(out), nil
}

// Echo renders a chunk as its escaped source without executing anything.
// It is the fallback when no execution engine is configured, so a
// development instance still produces a complete tree.
type Echo struct{}

func (Echo) Render(_ context.Context, code, _ string) (string, error) {
	return `<pre class="chunk-source">` + html.EscapeString(code) + `</pre>`, nil
}

// Package trial executes one external program invocation per call, bounded by a wall-clock timeout.
package trial

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/G-Research/scalebench/internal/common/benchcontext"
	"github.com/G-Research/scalebench/internal/common/bencherrors"
)

const waitDelay = 2 * time.Second

// Invocation describes a single run of an external program.
type Invocation struct {
	Path string
	Args []string
	// Env entries replace variables of the same name in the child environment only.
	Env map[string]string
	// A zero Timeout means no bound.
	Timeout time.Duration
}

// String renders the invocation as a shell-like command line for logging.
func (inv Invocation) String() string {
	return strings.Join(append([]string{inv.Path}, inv.Args...), " ")
}

// Output is what one invocation produced.
type Output struct {
	// Text is stdout followed by stderr.
	Text    string
	Elapsed time.Duration
	// ExitErr is the error reported by the process on a non-zero exit. The output may still hold a timing.
	ExitErr error
}

// Runner executes invocations. Implementations run exactly one process per call and never retry.
type Runner interface {
	Run(ctx *benchcontext.Context, inv Invocation) (Output, error)
}

// ExecRunner runs invocations as child processes of the harness.
type ExecRunner struct {
	// Dir is the working directory of the child; empty means the harness's own.
	Dir string
	// Environ supplies the base environment. Defaults to os.Environ.
	Environ func() []string
}

func NewExecRunner(dir string) *ExecRunner {
	return &ExecRunner{
		Dir:     dir,
		Environ: os.Environ,
	}
}

// Run starts inv and waits for it to exit or time out. On timeout the process is killed and an
// *bencherrors.ErrTrialTimeout is returned. Failure to start the process is returned as an error too; a process
// that starts and exits non-zero is not an error, its ExitErr is set instead.
func (r *ExecRunner) Run(ctx *benchcontext.Context, inv Invocation) (Output, error) {
	runCtx := ctx
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = benchcontext.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, inv.Path, inv.Args...)
	cmd.Dir = r.Dir
	cmd.Env = MergeEnv(r.environ(), inv.Env)
	// Launchers fork workers that inherit our pipes; stop waiting for them shortly after the kill.
	cmd.WaitDelay = waitDelay
	killProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runCtx.Debugf("Running %s", inv)
	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Output{}, errors.Wrapf(err, "starting %s", inv.Path)
	}
	waitErr := cmd.Wait()
	out := Output{
		Text:    stdout.String() + stderr.String(),
		Elapsed: time.Since(start),
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return out, errors.WithStack(&bencherrors.ErrTrialTimeout{Path: inv.Path, Timeout: inv.Timeout})
	}
	if ctx.Err() != nil {
		return out, errors.WithStack(ctx.Err())
	}
	if waitErr != nil {
		ctx.Debugf("%s exited with error: %s", inv.Path, waitErr)
		out.ExitErr = waitErr
	}
	return out, nil
}

func (r *ExecRunner) environ() []string {
	if r.Environ == nil {
		return os.Environ()
	}
	return r.Environ()
}

// MergeEnv returns a copy of base in which every variable named in overrides is replaced by the override value.
// Overrides not present in base are appended in key order. base itself is not modified.
func MergeEnv(base []string, overrides map[string]string) []string {
	rv := make([]string, 0, len(base)+len(overrides))
	seen := make(map[string]bool, len(overrides))
	for _, kv := range base {
		name := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			name = kv[:i]
		}
		if v, ok := overrides[name]; ok {
			if !seen[name] {
				rv = append(rv, name+"="+v)
				seen[name] = true
			}
			continue
		}
		rv = append(rv, kv)
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		rv = append(rv, k+"="+overrides[k])
	}
	return rv
}

// Package toolchain compiles the serial and parallel benchmark executables before a sweep.
package toolchain

import (
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/G-Research/scalebench/internal/common/benchcontext"
	"github.com/G-Research/scalebench/internal/common/bencherrors"
)

// Target is one executable to compile: <Compiler> <Flags...> <Source> -o <Output>
type Target struct {
	Compiler string `validate:"required"`
	Flags    []string
	Source   string `validate:"required"`
	Output   string `validate:"required"`
}

func (t Target) args() []string {
	args := append([]string{}, t.Flags...)
	return append(args, t.Source, "-o", t.Output)
}

func (t Target) String() string {
	return strings.Join(append([]string{t.Compiler}, t.args()...), " ")
}

// Toolchain builds the two benchmark executables.
type Toolchain struct {
	Serial   Target
	Parallel Target
	// Dir is the working directory of the compilers.
	Dir string
	// LookPath resolves compilers; defaults to exec.LookPath.
	LookPath func(file string) (string, error)
}

func New(serial, parallel Target, dir string) *Toolchain {
	return &Toolchain{
		Serial:   serial,
		Parallel: parallel,
		Dir:      dir,
		LookPath: exec.LookPath,
	}
}

// Check returns an *bencherrors.ErrToolchainMissing for the first compiler that cannot be found.
func (t *Toolchain) Check() error {
	lookPath := t.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	for _, target := range []Target{t.Serial, t.Parallel} {
		if _, err := lookPath(target.Compiler); err != nil {
			return errors.WithStack(&bencherrors.ErrToolchainMissing{Tool: target.Compiler, Message: err.Error()})
		}
	}
	return nil
}

// Build checks the toolchain and then compiles both targets concurrently. Any failure is fatal to the run.
func (t *Toolchain) Build(ctx *benchcontext.Context) error {
	if err := t.Check(); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, target := range []Target{t.Serial, t.Parallel} {
		target := target
		g.Go(func() error {
			ctx.Infof("Compiling %s", target)
			cmd := exec.CommandContext(gctx, target.Compiler, target.args()...)
			cmd.Dir = t.Dir
			if out, err := cmd.CombinedOutput(); err != nil {
				return errors.Wrapf(err, "compiling %s:\n%s", target.Source, out)
			}
			return nil
		})
	}
	return g.Wait()
}

// CheckExecutables returns an error naming the first path that is not an executable regular file. Used when the
// build step is disabled and the executables must already exist.
func CheckExecutables(paths ...string) error {
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return errors.Wrapf(err, "benchmark executable %s", path)
		}
		if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
			return errors.Errorf("benchmark executable %s is not an executable file", path)
		}
	}
	return nil
}

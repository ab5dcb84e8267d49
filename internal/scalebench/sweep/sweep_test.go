package sweep

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/scalebench/internal/common/benchcontext"
	"github.com/G-Research/scalebench/internal/common/bencherrors"
	"github.com/G-Research/scalebench/internal/common/eventstream"
	"github.com/G-Research/scalebench/internal/scalebench/configuration"
	"github.com/G-Research/scalebench/internal/scalebench/topology"
	"github.com/G-Research/scalebench/internal/scalebench/trial"
)

// fakeRunner answers invocations without starting processes.
type fakeRunner struct {
	respond     func(inv trial.Invocation) (trial.Output, error)
	invocations []trial.Invocation
}

func (f *fakeRunner) Run(_ *benchcontext.Context, inv trial.Invocation) (trial.Output, error) {
	f.invocations = append(f.invocations, inv)
	return f.respond(inv)
}

// processCount returns the -np argument of a parallel invocation, or 0 for a serial one.
func processCount(inv trial.Invocation) int {
	for i, arg := range inv.Args {
		if arg == "-np" {
			p, _ := strconv.Atoi(inv.Args[i+1])
			return p
		}
	}
	return 0
}

func rankOutput(times ...float64) string {
	var sb strings.Builder
	for r, t := range times {
		fmt.Fprintf(&sb, "Rank %d | time = %g s\n", r, t)
	}
	return sb.String()
}

// idealScaling: serial takes 8s, p ranks take 8/p s with rank 0 always 10% slower.
func idealScaling(inv trial.Invocation) (trial.Output, error) {
	p := processCount(inv)
	if p == 0 {
		return trial.Output{Text: "Serial runtime: 8 s\n"}, nil
	}
	times := make([]float64, p)
	for r := range times {
		times[r] = 8 / float64(p)
	}
	times[0] *= 1.1
	return trial.Output{Text: rankOutput(times...)}, nil
}

func testContext() (*benchcontext.Context, *test.Hook) {
	logger, hook := test.NewNullLogger()
	return benchcontext.New(context.Background(), logrus.NewEntry(logger)), hook
}

func testConfig(t *testing.T) configuration.Configuration {
	c := configuration.Default()
	c.Groups = []configuration.GroupConfig{
		{Name: "small", Sizes: []int{1024, 2048}, Repeats: 3, Timeout: time.Minute},
	}
	c.Build.Enabled = false
	c.Output.Directory = t.TempDir()
	return c
}

func testSweep(t *testing.T, c configuration.Configuration, respond func(trial.Invocation) (trial.Output, error)) (*Sweep, *fakeRunner) {
	s, err := New(c, topology.Topology{Physical: 4, Logical: 8}, "test-run")
	require.NoError(t, err)
	runner := &fakeRunner{respond: respond}
	s.Runner = runner
	s.Out = &bytes.Buffer{}
	return s, runner
}

func TestSweep_ProcessCounts(t *testing.T) {
	c := testConfig(t)
	s, _ := testSweep(t, c, idealScaling)
	assert.Equal(t, []int{1, 2, 4}, s.ProcessCounts())

	c.Launcher.UseHardwareThreads = true
	s, _ = testSweep(t, c, idealScaling)
	assert.Equal(t, []int{1, 2, 4, 6, 8}, s.ProcessCounts())

	s.Topology = topology.Topology{}
	assert.Equal(t, []int{1}, s.ProcessCounts())
}

func TestSweep_Run(t *testing.T) {
	ctx, _ := testContext()
	c := testConfig(t)
	s, runner := testSweep(t, c, idealScaling)

	reports, err := s.Run(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)

	rows := reports[0].Rows()
	require.Len(t, rows, 6)
	for _, row := range rows {
		assert.Equal(t, 8.0, row.Serial.Median)
		assert.InDelta(t, 8.0/float64(row.P)*1.1, row.Parallel.Median, 1e-9)
		assert.InDelta(t, row.Serial.Median/row.Parallel.Median, row.Speedup, 1e-9)
		assert.Equal(t, 3, row.Parallel.Valid)
		if row.P == 1 {
			assert.Nil(t, row.Fraction)
		} else {
			require.NotNil(t, row.Fraction)
		}
	}

	predictions := reports[0].Predictions()
	require.Len(t, predictions, 2)
	assert.Equal(t, 4, predictions[0].Fit.FromP)
	assert.Len(t, predictions[0].Curve, 3)

	// (1 serial + 3 parallel configurations) * 2 sizes * 3 repeats
	assert.Len(t, runner.invocations, 24)
	assert.FileExists(t, filepath.Join(c.Output.Directory, "runtimes_small.csv"))
	assert.FileExists(t, filepath.Join(c.Output.Directory, "runtime_speedup_small.png"))
	assert.FileExists(t, filepath.Join(c.Output.Directory, "summary_small.yaml"))
	assert.Contains(t, s.Out.(*bytes.Buffer).String(), "fitted f = ")
}

func TestSweep_Invocations(t *testing.T) {
	ctx, _ := testContext()
	c := testConfig(t)
	c.Groups[0].Sizes = []int{1024}
	c.Groups[0].Repeats = 1
	c.Groups[0].Steps = 10000
	s, runner := testSweep(t, c, idealScaling)

	_, err := s.Run(ctx)
	require.NoError(t, err)
	require.Len(t, runner.invocations, 4)

	serial := runner.invocations[0]
	assert.Equal(t, "./h_serial", serial.Path)
	assert.Equal(t, []string{"1024"}, serial.Args)
	assert.Equal(t, time.Minute, serial.Timeout)
	assert.Equal(t, map[string]string{"OMP_NUM_THREADS": "1", "STEPS": "10000"}, serial.Env)

	parallel := runner.invocations[3]
	assert.Equal(t, "mpirun", parallel.Path)
	assert.Equal(t,
		[]string{"--bind-to", "core", "--map-by", "core", "--report-bindings", "-np", "4", "./h_parallel", "1024"},
		parallel.Args)
	assert.Equal(t, "1", parallel.Env["OMP_NUM_THREADS"])
}

func TestSweep_AllRepeatsTimeOut(t *testing.T) {
	ctx, hook := testContext()
	c := testConfig(t)
	c.Metrics.Textfile = filepath.Join(c.Output.Directory, "scalebench.prom")
	s, _ := testSweep(t, c, func(inv trial.Invocation) (trial.Output, error) {
		if processCount(inv) == 2 {
			return trial.Output{}, errors.WithStack(&bencherrors.ErrTrialTimeout{Path: inv.Path, Timeout: inv.Timeout})
		}
		return idealScaling(inv)
	})

	reports, err := s.Run(ctx)
	require.NoError(t, err)
	rows := reports[0].Rows()
	require.Len(t, rows, 4)
	for _, row := range rows {
		assert.NotEqual(t, 2, row.P)
	}
	assert.True(t, hasEntry(hook, logrus.WarnLevel, "No data for p=2 (N=1024)"))
	assert.True(t, hasEntry(hook, logrus.WarnLevel, "No data for p=2 (N=2048)"))

	textfile, err := os.ReadFile(c.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(textfile), `scalebench_configurations_skipped_total{group="small",role="parallel"} 2`)
	assert.Contains(t, string(textfile), `scalebench_trials_total{outcome="timeout",role="parallel"} 6`)
}

func TestSweep_FailureLogLevel(t *testing.T) {
	tests := map[string]struct {
		err         error
		wantLevel   logrus.Level
		wantOutcome string
	}{
		"timeout is a warning": {
			err:         &bencherrors.ErrTrialTimeout{Path: "mpirun", Timeout: time.Minute},
			wantLevel:   logrus.WarnLevel,
			wantOutcome: "timeout",
		},
		"unstartable executable is an error": {
			err:         errors.New("starting mpirun: executable file not found in $PATH"),
			wantLevel:   logrus.ErrorLevel,
			wantOutcome: "error",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			ctx, hook := testContext()
			c := testConfig(t)
			c.Groups[0].Sizes = []int{1024}
			c.Groups[0].Repeats = 1
			c.Metrics.Textfile = filepath.Join(c.Output.Directory, "scalebench.prom")
			s, _ := testSweep(t, c, func(inv trial.Invocation) (trial.Output, error) {
				if processCount(inv) == 4 {
					return trial.Output{}, tc.err
				}
				return idealScaling(inv)
			})

			_, err := s.Run(ctx)
			require.NoError(t, err)
			assert.True(t, hasEntry(hook, tc.wantLevel, "parallel run"))
			assert.True(t, hasEntry(hook, logrus.WarnLevel, "No data for p=4 (N=1024)"))

			textfile, err := os.ReadFile(c.Metrics.Textfile)
			require.NoError(t, err)
			assert.Contains(t, string(textfile), fmt.Sprintf(`scalebench_trials_total{outcome="%s",role="parallel"} 1`, tc.wantOutcome))
		})
	}
}

func TestSweep_SerialParseFailureSkipsSize(t *testing.T) {
	ctx, hook := testContext()
	c := testConfig(t)
	s, runner := testSweep(t, c, func(inv trial.Invocation) (trial.Output, error) {
		if processCount(inv) == 0 && inv.Args[0] == "1024" {
			return trial.Output{Text: "Segmentation fault\n", ExitErr: errors.New("exit status 139")}, nil
		}
		return idealScaling(inv)
	})

	reports, err := s.Run(ctx)
	require.NoError(t, err)
	rows := reports[0].Rows()
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, 2048, row.N)
	}
	assert.True(t, hasEntry(hook, logrus.WarnLevel, "No serial times for N=1024"))
	// 3 serial attempts for 1024, then the full matrix for 2048
	assert.Len(t, runner.invocations, 3+12)
}

func TestSweep_SomeRepeatsFail(t *testing.T) {
	ctx, _ := testContext()
	c := testConfig(t)
	c.Groups[0].Sizes = []int{1024}
	calls := 0
	s, _ := testSweep(t, c, func(inv trial.Invocation) (trial.Output, error) {
		if processCount(inv) == 4 {
			calls++
			switch calls {
			case 1:
				return trial.Output{}, &bencherrors.ErrTrialTimeout{Path: inv.Path}
			case 2:
				return trial.Output{Text: rankOutput(1.0, 3.0)}, nil
			default:
				return trial.Output{Text: rankOutput(2.0, 1.0)}, nil
			}
		}
		return idealScaling(inv)
	})

	reports, err := s.Run(ctx)
	require.NoError(t, err)
	rows := reports[0].Rows()
	require.Len(t, rows, 3)
	last := rows[2]
	assert.Equal(t, 4, last.P)
	assert.Equal(t, 2, last.Parallel.Valid)
	assert.Equal(t, 3, last.Parallel.Attempted)
	assert.Equal(t, 2.5, last.Parallel.Median)
}

func TestSweep_ZeroParallelRuntime(t *testing.T) {
	ctx, _ := testContext()
	c := testConfig(t)
	c.Groups[0].Sizes = []int{1024}
	s, _ := testSweep(t, c, func(inv trial.Invocation) (trial.Output, error) {
		if processCount(inv) == 2 {
			return trial.Output{Text: rankOutput(0, 0)}, nil
		}
		return idealScaling(inv)
	})

	reports, err := s.Run(ctx)
	require.NoError(t, err)
	rows := reports[0].Rows()
	require.Len(t, rows, 3)
	assert.True(t, math.IsNaN(rows[1].Speedup))
	require.NotNil(t, rows[1].Fraction)
	assert.Equal(t, 0.0, *rows[1].Fraction)

	table, err := os.ReadFile(reports[0].TablePath())
	require.NoError(t, err)
	assert.Contains(t, string(table), "1024,2,8,0,NaN,0\n")
	assert.FileExists(t, reports[0].ChartPath())
}

func TestSweep_FitSkipsDegenerateLargestP(t *testing.T) {
	ctx, _ := testContext()
	c := testConfig(t)
	c.Groups[0].Sizes = []int{1024}
	s, _ := testSweep(t, c, func(inv trial.Invocation) (trial.Output, error) {
		if processCount(inv) == 4 {
			return trial.Output{Text: rankOutput(0, 0, 0, 0)}, nil
		}
		return idealScaling(inv)
	})

	reports, err := s.Run(ctx)
	require.NoError(t, err)
	predictions := reports[0].Predictions()
	require.Len(t, predictions, 1)
	assert.Equal(t, 2, predictions[0].Fit.FromP)

	summary, err := os.ReadFile(reports[0].SummaryPath())
	require.NoError(t, err)
	assert.Contains(t, string(summary), "from_p: 2")
	assert.Contains(t, s.Out.(*bytes.Buffer).String(), "fitted f = 0.9000 from p = 2")
}

func TestSweep_FallbackParse(t *testing.T) {
	ctx, hook := testContext()
	c := testConfig(t)
	c.Groups[0].Sizes = []int{1024}
	c.Groups[0].Repeats = 1
	s, _ := testSweep(t, c, func(inv trial.Invocation) (trial.Output, error) {
		if processCount(inv) == 0 {
			return trial.Output{Text: "finished in 6.0 s\n"}, nil
		}
		return idealScaling(inv)
	})

	reports, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6.0, reports[0].Rows()[0].Serial.Median)
	assert.True(t, hasEntry(hook, logrus.WarnLevel, "using fallback value 6 s"))
}

func TestSweep_Cancelled(t *testing.T) {
	ctx, _ := testContext()
	ctx, cancel := benchcontext.WithCancel(ctx)
	defer cancel()
	c := testConfig(t)
	c.Groups = append(c.Groups, configuration.GroupConfig{Name: "large", Sizes: []int{4096}, Repeats: 3, Timeout: time.Minute})
	s, runner := testSweep(t, c, func(inv trial.Invocation) (trial.Output, error) {
		if processCount(inv) == 2 {
			cancel()
			return trial.Output{}, context.Canceled
		}
		return idealScaling(inv)
	})

	reports, err := s.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, reports, 1)
	// the p=1 row measured before the interrupt is kept
	require.Len(t, reports[0].Rows(), 1)
	assert.FileExists(t, reports[0].TablePath())
	assert.NoFileExists(t, filepath.Join(c.Output.Directory, "runtimes_large.csv"))
	// 3 serial, 3 at p=1, then the interrupted p=2 trial
	assert.Len(t, runner.invocations, 7)
}

func TestSweep_ReportWriteFailureDoesNotStopSweep(t *testing.T) {
	ctx, _ := testContext()
	c := testConfig(t)
	c.Groups = append(c.Groups, configuration.GroupConfig{Name: "large", Sizes: []int{4096}, Repeats: 1, Timeout: time.Minute})
	s, _ := testSweep(t, c, idealScaling)
	require.NoError(t, os.Mkdir(filepath.Join(c.Output.Directory, "runtimes_small.csv"), 0o755))

	reports, err := s.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "group small")
	require.Len(t, reports, 2)
	assert.FileExists(t, filepath.Join(c.Output.Directory, "runtimes_large.csv"))
}

type recordingStream struct {
	events []*eventstream.Event
}

func (r *recordingStream) Publish(events []*eventstream.Event) []error {
	r.events = append(r.events, events...)
	return nil
}

func (r *recordingStream) Close() error {
	return nil
}

func TestSweep_PublishesProgress(t *testing.T) {
	ctx, _ := testContext()
	c := testConfig(t)
	c.Groups[0].Sizes = []int{1024}
	c.Groups[0].Repeats = 1
	s, _ := testSweep(t, c, func(inv trial.Invocation) (trial.Output, error) {
		if processCount(inv) == 4 {
			return trial.Output{Text: "no timing"}, nil
		}
		return idealScaling(inv)
	})
	stream := &recordingStream{}
	s.Events = stream

	_, err := s.Run(ctx)
	require.NoError(t, err)

	var types []eventstream.EventType
	for _, e := range stream.events {
		assert.Equal(t, "test-run", e.RunId)
		types = append(types, e.Type)
	}
	assert.Equal(t, []eventstream.EventType{
		eventstream.SweepStarted,
		eventstream.GroupStarted,
		eventstream.ConfigurationMeasured,
		eventstream.ConfigurationMeasured,
		eventstream.TrialFailed,
		eventstream.ConfigurationSkipped,
		eventstream.FractionFitted,
		eventstream.GroupClosed,
		eventstream.SweepFinished,
	}, types)
}

func hasEntry(hook *test.Hook, level logrus.Level, substring string) bool {
	for _, e := range hook.AllEntries() {
		if e.Level == level && strings.Contains(e.Message, substring) {
			return true
		}
	}
	return false
}

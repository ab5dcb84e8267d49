// Package sweep runs the measurement protocol: for every group, problem size and process count it runs repeated
// trials one at a time, reduces them to medians, derives speedup and the Amdahl fraction, and hands the rows to
// the group's report.
package sweep

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/G-Research/scalebench/internal/common/benchcontext"
	"github.com/G-Research/scalebench/internal/common/bencherrors"
	"github.com/G-Research/scalebench/internal/common/eventstream"
	"github.com/G-Research/scalebench/internal/common/logging"
	"github.com/G-Research/scalebench/internal/scalebench/amdahl"
	"github.com/G-Research/scalebench/internal/scalebench/configuration"
	"github.com/G-Research/scalebench/internal/scalebench/metrics"
	"github.com/G-Research/scalebench/internal/scalebench/parser"
	"github.com/G-Research/scalebench/internal/scalebench/report"
	"github.com/G-Research/scalebench/internal/scalebench/stats"
	"github.com/G-Research/scalebench/internal/scalebench/topology"
	"github.com/G-Research/scalebench/internal/scalebench/trial"
)

// Sweep holds one run over every configured group. Trials never overlap.
type Sweep struct {
	Config   configuration.Configuration
	Topology topology.Topology
	RunId    string
	Runner   trial.Runner
	Launcher *trial.Launcher
	Grammar  *parser.Grammar
	Metrics  *metrics.Metrics
	Events   eventstream.EventStream
	// Out receives the per-size summary tables.
	Out io.Writer
}

// New returns a sweep that runs the configured executables as child processes and publishes no events.
func New(config configuration.Configuration, topo topology.Topology, runId string) (*Sweep, error) {
	grammar, err := parser.NewGrammar(config.Patterns)
	if err != nil {
		return nil, err
	}
	return &Sweep{
		Config:   config,
		Topology: topo,
		RunId:    runId,
		Runner:   trial.NewExecRunner(config.Executables.WorkingDirectory),
		Launcher: NewLauncher(config),
		Grammar:  grammar,
		Metrics:  metrics.New(),
		Events:   eventstream.NoopEventStream{},
		Out:      os.Stdout,
	}, nil
}

func NewLauncher(config configuration.Configuration) *trial.Launcher {
	return &trial.Launcher{
		Command:            config.Launcher.Command,
		Flags:              config.Launcher.Flags,
		UseHardwareThreads: config.Launcher.UseHardwareThreads,
		ReportBindings:     config.Launcher.ReportBindings,
		SerialExecutable:   config.Executables.Serial,
		ParallelExecutable: config.Executables.Parallel,
		Env:                config.Env,
	}
}

// ProcessCounts is the configured list clipped to what the host can place.
func (s *Sweep) ProcessCounts() []int {
	capacity := s.Topology.Capacity(s.Config.Launcher.UseHardwareThreads)
	return topology.CandidateProcessCounts(s.Config.ProcessCounts, capacity)
}

// Run measures every group in order and returns their reports, closed. A report that cannot be written does not
// stop the sweep; the failures are returned together at the end. If ctx is cancelled the trial in flight is
// killed, the current group is closed with the rows gathered so far and the remaining groups are not started.
func (s *Sweep) Run(ctx *benchcontext.Context) ([]*report.Report, error) {
	ctx = benchcontext.WithLogField(ctx, "run", s.RunId)
	procs := s.ProcessCounts()
	ctx.Infof("Physical cores: %d, logical cores: %d", s.Topology.Physical, s.Topology.Logical)
	ctx.Infof("Process counts auto-selected: %v", procs)
	s.publish(ctx, eventstream.NewEvent(s.RunId, eventstream.SweepStarted))

	var reports []*report.Report
	var result *multierror.Error
	for _, group := range s.Config.Groups {
		if ctx.Err() != nil {
			break
		}
		r := s.runGroup(ctx, group, procs)
		reports = append(reports, r)
		if err := r.Close(); err != nil {
			logging.WithStacktrace(ctx.Log, err).Errorf("Failed to write results of group %s", group.Name)
			result = multierror.Append(result, errors.Wrapf(err, "group %s", group.Name))
			continue
		}
		ctx.Infof("Saved %s, %s and %s", r.TablePath(), r.ChartPath(), r.SummaryPath())

		closed := eventstream.NewEvent(s.RunId, eventstream.GroupClosed)
		closed.Group = group.Name
		s.publish(ctx, closed)
	}

	if s.Config.Metrics.Textfile != "" {
		if err := s.Metrics.WriteTextfile(s.Config.Metrics.Textfile); err != nil {
			result = multierror.Append(result, err)
		}
	}
	s.publish(ctx, eventstream.NewEvent(s.RunId, eventstream.SweepFinished))
	if ctx.Err() != nil {
		result = multierror.Append(result, errors.WithStack(ctx.Err()))
	} else {
		ctx.Info("All groups done.")
	}
	return reports, result.ErrorOrNil()
}

func (s *Sweep) runGroup(ctx *benchcontext.Context, group configuration.GroupConfig, procs []int) *report.Report {
	ctx = benchcontext.WithLogFields(ctx, logrus.Fields{
		"group":   group.Name,
		"repeats": group.Repeats,
		"timeout": group.Timeout,
	})
	ctx.Infof("=== GROUP: %s ===", group.Name)
	maxP := 0
	for _, p := range procs {
		if p > maxP {
			maxP = p
		}
	}
	if sizes := group.IndivisibleSizes(maxP); len(sizes) > 0 {
		ctx.Warnf("Problem sizes %v are not divisible by %d processes; their partitions will be unbalanced", sizes, maxP)
	}

	started := eventstream.NewEvent(s.RunId, eventstream.GroupStarted)
	started.Group = group.Name
	s.publish(ctx, started)

	r := report.New(group.Name, s.Config.Output.Directory, report.Metadata{
		RunID:    s.RunId,
		Topology: s.Topology,
		Launcher: s.Launcher.Command,
	})
	var extraEnv map[string]string
	if group.Steps > 0 {
		extraEnv = map[string]string{"STEPS": strconv.Itoa(group.Steps)}
	}
	for _, n := range group.Sizes {
		if ctx.Err() != nil {
			break
		}
		s.runSize(benchcontext.WithLogField(ctx, "n", n), r, group, n, procs, extraEnv)
	}
	return r
}

func (s *Sweep) runSize(
	ctx *benchcontext.Context,
	r *report.Report,
	group configuration.GroupConfig,
	n int,
	procs []int,
	extraEnv map[string]string,
) {
	ctx.Infof("--- N = %d ---", n)
	serialSamples := s.measure(ctx, parser.Serial, group, n, 0, extraEnv)
	if ctx.Err() != nil {
		return
	}
	serial, err := stats.Aggregate(serialSamples)
	if err != nil {
		s.skip(ctx, group.Name, n, 0, parser.Serial, err)
		return
	}
	ctx.Infof("Serial median time = %.8f s", serial.Median)

	var rows []report.Row
	var points []amdahl.Point
	for _, p := range procs {
		if ctx.Err() != nil {
			break
		}
		pctx := benchcontext.WithLogField(ctx, "p", p)
		samples := s.measure(pctx, parser.Parallel, group, n, p, extraEnv)
		if ctx.Err() != nil {
			break
		}
		parallel, err := stats.Aggregate(samples)
		if err != nil {
			s.skip(pctx, group.Name, n, p, parser.Parallel, err)
			continue
		}

		row := report.Row{
			N:        n,
			P:        p,
			Serial:   serial,
			Parallel: parallel,
			Speedup:  stats.Speedup(serial.Median, parallel.Median),
		}
		if f, ok := amdahl.ParallelFraction(row.Speedup, p); ok {
			row.Fraction = &f
		}
		r.Add(row)
		rows = append(rows, row)
		points = append(points, amdahl.Point{P: p, Speedup: row.Speedup})
		s.Metrics.RecordSpeedup(group.Name, n, p, row.Speedup)
		pctx.Infof("p=%d: median=%.8fs  speedup=%.3f", p, parallel.Median, row.Speedup)

		measured := eventstream.NewEvent(s.RunId, eventstream.ConfigurationMeasured)
		measured.Group, measured.N, measured.P = group.Name, n, p
		measured.Seconds = eventstream.Float(parallel.Median)
		measured.Speedup = eventstream.Float(row.Speedup)
		if row.Fraction != nil {
			measured.Fraction = eventstream.Float(*row.Fraction)
		}
		s.publish(pctx, measured)
	}

	fit, ok := amdahl.FitLargest(points)
	if ok {
		ps := make([]int, len(points))
		for i, pt := range points {
			ps[i] = pt.P
		}
		r.AddPrediction(n, fit, fit.Curve(ps))
		s.Metrics.RecordFraction(group.Name, n, fit.Fraction)
		ctx.Infof("Fitted parallel fraction f = %.4f (from p=%d)", fit.Fraction, fit.FromP)

		fitted := eventstream.NewEvent(s.RunId, eventstream.FractionFitted)
		fitted.Group, fitted.N, fitted.P = group.Name, n, fit.FromP
		fitted.Fraction = eventstream.Float(fit.Fraction)
		s.publish(ctx, fitted)
	}
	printSummary(s.Out, n, serial, rows, fit, ok)
}

// measure runs group.Repeats trials of one configuration and returns a sample per trial attempted. Failed trials
// are logged and kept as gaps; nothing is retried. p is ignored for the serial role.
func (s *Sweep) measure(
	ctx *benchcontext.Context,
	role parser.Role,
	group configuration.GroupConfig,
	n, p int,
	extraEnv map[string]string,
) []stats.Sample {
	inv := s.Launcher.Serial(n, group.Timeout, extraEnv)
	if role == parser.Parallel {
		inv = s.Launcher.Parallel(n, p, group.Timeout, extraEnv)
	}
	samples := make([]stats.Sample, 0, group.Repeats)
	for i := 1; i <= group.Repeats; i++ {
		out, err := s.Runner.Run(ctx, inv)
		if ctx.Err() != nil {
			break
		}
		if err != nil {
			msg := fmt.Sprintf("%s run failed (repeat %d): %s", role, i, err)
			if bencherrors.IsTimeout(err) {
				msg = fmt.Sprintf("%s run timed out after %s (repeat %d)", role, inv.Timeout, i)
			}
			samples = append(samples, s.dropSample(ctx, role, group.Name, n, p, out, err, msg))
			continue
		}

		extraction, err := s.Grammar.Extract(out.Text, role)
		if err != nil {
			msg := fmt.Sprintf("Couldn't parse %s time (repeat %d). Output head:\n%s", role, i, head(out.Text))
			samples = append(samples, s.dropSample(ctx, role, group.Name, n, p, out, err, msg))
			continue
		}
		outcome := metrics.OutcomeOk
		if extraction.Tier == parser.Fallback {
			outcome = metrics.OutcomeFallback
			ctx.Warnf("No labelled %s time found (repeat %d); using fallback value %g s", role, i, extraction.Seconds)
		}
		s.Metrics.RecordTrial(string(role), outcome, out.Elapsed)
		samples = append(samples, stats.Sample{Seconds: extraction.Seconds})
	}
	return samples
}

// dropSample records a trial that produced no value and returns it as a gap.
func (s *Sweep) dropSample(
	ctx *benchcontext.Context,
	role parser.Role,
	group string,
	n, p int,
	out trial.Output,
	err error,
	msg string,
) stats.Sample {
	logFailure(ctx, err, "%s", msg)
	s.Metrics.RecordTrial(string(role), outcomeOf(err), out.Elapsed)
	s.publishTrialFailure(ctx, role, group, n, p, err)
	return stats.Sample{Err: err}
}

// outcomeOf labels a failed trial for the trials_total metric.
func outcomeOf(err error) metrics.Outcome {
	switch {
	case bencherrors.IsTimeout(err):
		return metrics.OutcomeTimeout
	case bencherrors.SeverityFromError(err) == bencherrors.SeveritySample:
		return metrics.OutcomeParseFailure
	default:
		return metrics.OutcomeError
	}
}

// logFailure logs failures the protocol expects (a dropped sample, an omitted configuration) as warnings and
// anything else, such as an executable that could not be started, as an error with its stack trace.
func logFailure(ctx *benchcontext.Context, err error, format string, args ...interface{}) {
	switch bencherrors.SeverityFromError(err) {
	case bencherrors.SeveritySample, bencherrors.SeverityConfiguration:
		ctx.Warnf(format, args...)
	default:
		logging.WithStacktrace(ctx.Log, err).Errorf(format, args...)
	}
}

func (s *Sweep) skip(ctx *benchcontext.Context, group string, n, p int, role parser.Role, err error) {
	if role == parser.Serial {
		logFailure(ctx, err, "No serial times for N=%d, skipping: %s", n, err)
	} else {
		logFailure(ctx, err, "No data for p=%d (N=%d): %s", p, n, err)
	}
	s.Metrics.RecordSkipped(group, string(role))

	skipped := eventstream.NewEvent(s.RunId, eventstream.ConfigurationSkipped)
	skipped.Group, skipped.N, skipped.P, skipped.Role = group, n, p, string(role)
	skipped.Message = err.Error()
	s.publish(ctx, skipped)
}

func (s *Sweep) publishTrialFailure(ctx *benchcontext.Context, role parser.Role, group string, n, p int, err error) {
	failed := eventstream.NewEvent(s.RunId, eventstream.TrialFailed)
	failed.Group, failed.N, failed.P, failed.Role = group, n, p, string(role)
	failed.Message = err.Error()
	s.publish(ctx, failed)
}

func (s *Sweep) publish(ctx *benchcontext.Context, events ...*eventstream.Event) {
	for _, err := range s.Events.Publish(events) {
		ctx.Warnf("Failed to publish progress event: %s", err)
	}
}

const maxOutputHead = 400

func head(text string) string {
	if len(text) > maxOutputHead {
		return text[:maxOutputHead]
	}
	return text
}

// Package scalebench implements the commands of the scalebench CLI.
package scalebench

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/pkg/errors"

	"github.com/G-Research/scalebench/internal/common"
	"github.com/G-Research/scalebench/internal/common/benchcontext"
	"github.com/G-Research/scalebench/internal/common/bencherrors"
	"github.com/G-Research/scalebench/internal/common/config"
	"github.com/G-Research/scalebench/internal/common/eventstream"
	"github.com/G-Research/scalebench/internal/common/util"
	"github.com/G-Research/scalebench/internal/scalebench/amdahl"
	"github.com/G-Research/scalebench/internal/scalebench/build"
	"github.com/G-Research/scalebench/internal/scalebench/configuration"
	"github.com/G-Research/scalebench/internal/scalebench/parser"
	"github.com/G-Research/scalebench/internal/scalebench/sweep"
	"github.com/G-Research/scalebench/internal/scalebench/toolchain"
	"github.com/G-Research/scalebench/internal/scalebench/topology"
)

type App struct {
	// Parameters passed to the CLI by the user.
	Params *Params
	// Out is used to write the output. Defaults to standard out,
	// but can be overridden in tests to make assertions on the applications's output.
	Out io.Writer
	// Topology probes the host. Tests replace it to pretend to run on a given machine.
	Topology func() topology.Topology
}

// Params holds the command line flags. They override the config file and environment.
type Params struct {
	ConfigPath string
	// Empty means keep the configured value.
	OutputDirectory string
	SkipBuild       bool
	// Set when --hwthreads was given on the command line.
	UseHardwareThreads *bool
	LogLevel           string
}

// New instantiates an App with default parameters, writing to standard output and probing the real host.
func New() *App {
	return &App{
		Params:   &Params{},
		Out:      os.Stdout,
		Topology: topology.Probe,
	}
}

// LoadConfig loads, overrides and validates the configuration, and applies its log level.
func (a *App) LoadConfig() (configuration.Configuration, error) {
	c, err := configuration.Load(a.Params.ConfigPath)
	if err != nil {
		return c, err
	}
	if a.Params.OutputDirectory != "" {
		c.Output.Directory = a.Params.OutputDirectory
	}
	if a.Params.SkipBuild {
		c.Build.Enabled = false
	}
	if a.Params.UseHardwareThreads != nil {
		c.Launcher.UseHardwareThreads = *a.Params.UseHardwareThreads
	}
	if a.Params.LogLevel != "" {
		c.LogLevel = a.Params.LogLevel
	}
	if err := c.Validate(); err != nil {
		config.LogValidationErrors(err)
		return c, errors.Wrap(err, "invalid configuration")
	}
	if err := common.SetLogLevel(c.LogLevel); err != nil {
		return c, err
	}
	return c, nil
}

// Run builds the executables, if enabled, and runs the whole sweep.
func (a *App) Run(ctx *benchcontext.Context) error {
	c, err := a.LoadConfig()
	if err != nil {
		return err
	}
	topo := a.Topology()
	runId := util.NewRunId()
	ctx = benchcontext.WithLogField(ctx, "run", runId)

	if err := a.prepareExecutables(ctx, c); err != nil {
		if bencherrors.SeverityFromError(err) == bencherrors.SeverityFatal {
			ctx.Errorf("Aborting before any measurement: %s", err)
		}
		return err
	}

	events := a.eventStream(ctx, c)
	defer util.CloseResource("event stream", events)

	s, err := sweep.New(c, topo, runId)
	if err != nil {
		return err
	}
	s.Events = events
	s.Out = a.Out
	_, err = s.Run(ctx)
	return err
}

func (a *App) prepareExecutables(ctx *benchcontext.Context, c configuration.Configuration) error {
	dir := c.Executables.WorkingDirectory
	if c.Build.Enabled {
		return toolchain.New(c.Build.Serial, c.Build.Parallel, dir).Build(ctx)
	}
	ctx.Infof("Build disabled; using existing executables")
	return toolchain.CheckExecutables(inDir(dir, c.Executables.Serial), inDir(dir, c.Executables.Parallel))
}

func inDir(dir, path string) string {
	if dir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// eventStream connects to the configured brokers. A broker that cannot be reached is logged and left out; progress
// events are never a reason to abandon a sweep.
func (a *App) eventStream(ctx *benchcontext.Context, c configuration.Configuration) eventstream.EventStream {
	var streams eventstream.MultiEventStream
	if c.Events.Nats.Enabled {
		s, err := eventstream.NewNatsEventStream(c.Events.Nats.Url, c.Events.Nats.Subject)
		if err != nil {
			ctx.Log.WithError(err).Warn("Progress events will not be published to NATS")
		} else {
			streams = append(streams, s)
		}
	}
	if c.Events.Mqtt.Enabled {
		s, err := eventstream.NewMqttEventStream(c.Events.Mqtt.Broker, c.Events.Mqtt.Topic, c.Events.Mqtt.ClientId, c.Events.Mqtt.Qos)
		if err != nil {
			ctx.Log.WithError(err).Warn("Progress events will not be published to MQTT")
		} else {
			streams = append(streams, s)
		}
	}
	if len(streams) == 0 {
		return eventstream.NoopEventStream{}
	}
	return streams
}

// Probe prints the host topology and the process counts a sweep would use on it.
func (a *App) Probe() error {
	c, err := a.LoadConfig()
	if err != nil {
		return err
	}
	topo := a.Topology()
	capacity := topo.Capacity(c.Launcher.UseHardwareThreads)

	w := tabwriter.NewWriter(a.Out, 1, 1, 1, ' ', 0)
	defer w.Flush()
	fmt.Fprintf(w, "Physical cores:\t%d\n", topo.Physical)
	fmt.Fprintf(w, "Logical cores:\t%d\n", topo.Logical)
	fmt.Fprintf(w, "Hardware threads:\t%t\n", c.Launcher.UseHardwareThreads)
	fmt.Fprintf(w, "Process counts:\t%v\n", topology.CandidateProcessCounts(c.ProcessCounts, capacity))
	return nil
}

// Parse runs the timing grammar over a captured output file and prints what it finds.
func (a *App) Parse(ctx *benchcontext.Context, path string, role parser.Role) error {
	c, err := a.LoadConfig()
	if err != nil {
		return err
	}
	grammar, err := parser.NewGrammar(c.Patterns)
	if err != nil {
		return err
	}
	text, err := os.ReadFile(path)
	if err != nil {
		return errors.WithStack(err)
	}

	e, err := grammar.Extract(string(text), role)
	if err != nil {
		return err
	}
	if e.Tier == parser.Fallback {
		ctx.Warnf("No labelled %s time found; fell back to the last bare seconds value", role)
	}
	w := tabwriter.NewWriter(a.Out, 1, 1, 1, ' ', 0)
	defer w.Flush()
	fmt.Fprintf(w, "Seconds:\t%g\n", e.Seconds)
	fmt.Fprintf(w, "Pattern:\t%s\n", e.Tier)
	if len(e.Ranks) > 0 {
		fmt.Fprintf(w, "Ranks:\t%v\n", e.Ranks)
	}
	return nil
}

// Amdahl prints the parallel fraction implied by speedup on p processes and the speedup it predicts at ps.
func (a *App) Amdahl(speedup float64, p int, ps []int) error {
	f, ok := amdahl.ParallelFraction(speedup, p)
	if !ok {
		return errors.WithStack(&bencherrors.ErrInvalidArgument{
			Name:    "p",
			Value:   p,
			Message: "the parallel fraction is only defined for more than one process",
		})
	}
	fit := amdahl.Fit{Fraction: f, FromP: p, FromSpeedup: speedup}

	w := tabwriter.NewWriter(a.Out, 1, 1, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintf(w, "f = %.4f (S = %g at p = %d)\n", f, speedup, p)
	fmt.Fprintf(w, "p\tpredicted S(p)\n")
	for _, pt := range fit.Curve(ps) {
		fmt.Fprintf(w, "%d\t%.3f\n", pt.P, pt.Speedup)
	}
	return nil
}

// Version prints build information (e.g., current git commit) to the app output.
func (a *App) Version() error {
	w := tabwriter.NewWriter(a.Out, 1, 1, 1, ' ', 0)
	defer w.Flush()
	fmt.Fprintf(w, "Version:\t%s\n", build.ReleaseVersion)
	fmt.Fprintf(w, "Commit:\t%s\n", build.GitCommit)
	fmt.Fprintf(w, "Go version:\t%s\n", build.GoVersion)
	fmt.Fprintf(w, "Built:\t%s\n", build.BuildTime)
	return nil
}

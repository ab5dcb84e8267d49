package configuration

import (
	"time"

	"github.com/G-Research/scalebench/internal/scalebench/parser"
	"github.com/G-Research/scalebench/internal/scalebench/toolchain"
)

type Configuration struct {
	// One of logrus' level names, e.g. "info" or "debug"
	LogLevel string `validate:"oneof=trace debug info warn warning error fatal panic"`
	// Experiment groups, measured in order. Each group gets its own table and chart.
	Groups []GroupConfig `validate:"required,min=1,dive"`
	// Process counts to try, before clipping to the cores available on the host
	ProcessCounts []int `validate:"required,min=1,dive,gt=0"`
	// Environment applied to every trial. OMP_NUM_THREADS=1 keeps nested threading from oversubscribing cores.
	Env         map[string]string
	Executables ExecutablesConfig
	Launcher    LauncherConfig
	Build       BuildConfig
	Output      OutputConfig
	// Overrides for the patterns used to find timings in program output. Empty means the built-in pattern.
	Patterns parser.Patterns
	Events   EventsConfig
	Metrics  MetricsConfig
}

// GroupConfig is a named set of problem sizes sharing one table and one chart.
type GroupConfig struct {
	Name string `validate:"required"`
	// Problem sizes N. Each should be divisible by the largest process count used.
	Sizes []int `validate:"required,min=1,dive,gt=0"`
	// Trials per configuration; the median of the valid ones is reported.
	Repeats int `validate:"gt=0"`
	// Wall-clock bound of a single trial
	Timeout time.Duration `validate:"gt=0"`
	// If positive, exported to trials as STEPS
	Steps int `validate:"gte=0"`
}

type ExecutablesConfig struct {
	Serial   string `validate:"required"`
	Parallel string `validate:"required"`
	// Working directory of every trial; empty means the current directory
	WorkingDirectory string
}

type LauncherConfig struct {
	Command string `validate:"required"`
	// If set, replaces the binding flags derived from UseHardwareThreads and ReportBindings
	Flags []string
	// Bind one worker per hardware thread and allow as many workers as logical cores
	UseHardwareThreads bool
	ReportBindings     bool
}

type BuildConfig struct {
	// If false, the executables must already exist
	Enabled bool
	// Only validated when Enabled
	Serial   toolchain.Target `validate:"-"`
	Parallel toolchain.Target `validate:"-"`
}

type OutputConfig struct {
	Directory string `validate:"required"`
}

type EventsConfig struct {
	Nats NatsConfig
	Mqtt MqttConfig
}

type NatsConfig struct {
	Enabled bool
	Url     string `validate:"required_if=Enabled true"`
	Subject string `validate:"required_if=Enabled true"`
}

type MqttConfig struct {
	Enabled  bool
	Broker   string `validate:"required_if=Enabled true"`
	Topic    string `validate:"required_if=Enabled true"`
	ClientId string
	Qos      byte `validate:"lte=2"`
}

type MetricsConfig struct {
	// If set, sweep metrics are written to this file in the Prometheus text format at the end of the run
	Textfile string
}

package trial

import (
	"strconv"
	"time"
)

var (
	// CoreBindingFlags pin one worker to each physical core.
	CoreBindingFlags = []string{"--bind-to", "core", "--map-by", "core"}
	// HardwareThreadBindingFlags pin one worker to each hardware thread.
	HardwareThreadBindingFlags = []string{"--use-hwthread-cpus", "--bind-to", "hwthread", "--map-by", "hwthread"}
)

const reportBindingsFlag = "--report-bindings"

// Launcher builds invocations of the serial executable and of the parallel executable started through a
// multi-process launcher such as mpirun.
type Launcher struct {
	// Launcher command, e.g. "mpirun".
	Command string
	// Flags passed to the launcher before the worker count. When empty, binding flags are chosen from
	// UseHardwareThreads and ReportBindings.
	Flags              []string
	UseHardwareThreads bool
	ReportBindings     bool
	SerialExecutable   string
	ParallelExecutable string
	// Env is applied to every invocation, e.g. OMP_NUM_THREADS=1.
	Env map[string]string
}

// LauncherFlags returns the flags placed between the launcher command and "-np".
func (l *Launcher) LauncherFlags() []string {
	if len(l.Flags) > 0 {
		return append([]string{}, l.Flags...)
	}
	var flags []string
	if l.UseHardwareThreads {
		flags = append(flags, HardwareThreadBindingFlags...)
	} else {
		flags = append(flags, CoreBindingFlags...)
	}
	if l.ReportBindings {
		flags = append(flags, reportBindingsFlag)
	}
	return flags
}

// Serial returns the invocation of the single-process baseline for problem size n.
func (l *Launcher) Serial(n int, timeout time.Duration, extraEnv map[string]string) Invocation {
	return Invocation{
		Path:    l.SerialExecutable,
		Args:    []string{strconv.Itoa(n)},
		Env:     l.env(extraEnv),
		Timeout: timeout,
	}
}

// Parallel returns the launcher invocation running the multi-process variant with p workers on problem size n:
// <command> <flags...> -np <p> <executable> <n>
func (l *Launcher) Parallel(n, p int, timeout time.Duration, extraEnv map[string]string) Invocation {
	args := l.LauncherFlags()
	args = append(args, "-np", strconv.Itoa(p), l.ParallelExecutable, strconv.Itoa(n))
	return Invocation{
		Path:    l.Command,
		Args:    args,
		Env:     l.env(extraEnv),
		Timeout: timeout,
	}
}

func (l *Launcher) env(extra map[string]string) map[string]string {
	rv := make(map[string]string, len(l.Env)+len(extra))
	for k, v := range l.Env {
		rv[k] = v
	}
	for k, v := range extra {
		rv[k] = v
	}
	return rv
}

package configuration

import (
	"time"

	"github.com/G-Research/scalebench/internal/scalebench/toolchain"
	"github.com/G-Research/scalebench/internal/scalebench/topology"
)

// Default returns the canonical sweep: the small and large lattice groups, seven repeats, five minute trial bound.
func Default() Configuration {
	return Configuration{
		LogLevel: "info",
		Groups: []GroupConfig{
			{
				Name:    "small",
				Sizes:   []int{1024, 2048, 4096, 8192},
				Repeats: 7,
				Timeout: 300 * time.Second,
			},
			{
				Name:    "large",
				Sizes:   []int{12288, 24576, 49152},
				Repeats: 7,
				Timeout: 300 * time.Second,
			},
		},
		ProcessCounts: append([]int{}, topology.ReferenceProcessCounts...),
		Env:           map[string]string{"OMP_NUM_THREADS": "1"},
		Executables: ExecutablesConfig{
			Serial:   "./h_serial",
			Parallel: "./h_parallel",
		},
		Launcher: LauncherConfig{
			Command:        "mpirun",
			ReportBindings: true,
		},
		Build: BuildConfig{
			Enabled: true,
			Serial: toolchain.Target{
				Compiler: "g++",
				Flags:    []string{"-O3"},
				Source:   "h_serial.cpp",
				Output:   "h_serial",
			},
			Parallel: toolchain.Target{
				Compiler: "mpic++",
				Flags:    []string{"-O3"},
				Source:   "h_parallel.cpp",
				Output:   "h_parallel",
			},
		},
		Output: OutputConfig{Directory: "."},
		Events: EventsConfig{
			Nats: NatsConfig{Url: "nats://localhost:4222", Subject: "scalebench.progress"},
			Mqtt: MqttConfig{Broker: "tcp://localhost:1883", Topic: "scalebench/progress", ClientId: "scalebench"},
		},
	}
}

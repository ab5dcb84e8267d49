package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/G-Research/scalebench/internal/common"
	"github.com/G-Research/scalebench/internal/common/app"
	"github.com/G-Research/scalebench/internal/common/benchcontext"
	"github.com/G-Research/scalebench/internal/common/bencherrors"
	"github.com/G-Research/scalebench/internal/scalebench"
	"github.com/G-Research/scalebench/internal/scalebench/parser"
	"github.com/G-Research/scalebench/internal/scalebench/topology"
)

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	a := scalebench.New()
	cmd := &cobra.Command{
		Use:   "scalebench",
		Short: "scalebench measures the strong scaling of a serial and an MPI program.",
		Long: `scalebench measures the strong scaling of a serial and an MPI program.

For every problem size and process count it runs repeated, time-bounded trials,
takes the median, and reports runtime, speedup and an Amdahl parallel fraction.

Defaults can be overridden by a YAML file passed with --config, e.g.:

groups:
  - name: small
    sizes: [1024, 2048, 4096, 8192]
    repeats: 7
    timeout: 300s
processCounts: [1, 2, 4, 6, 8, 10, 12, 16]
launcher:
  command: mpirun

or by SCALEBENCH_* environment variables, e.g. SCALEBENCH_OUTPUT_DIRECTORY=results.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a)
		},
	}
	cmd.PersistentFlags().String("config", "", "Path to a YAML config file.")
	cmd.PersistentFlags().String("log-level", "", "Log level, e.g. debug. Overrides the config file.")
	cmd.PersistentFlags().Bool("full-timestamps", false, "Log with full timestamps, for output captured to a file.")

	cmd.AddCommand(
		runCmd(a),
		probeCmd(a),
		parseCmd(a),
		amdahlCmd(a),
		versionCmd(a),
	)
	return cmd
}

func initParams(cmd *cobra.Command, a *scalebench.App) error {
	var err error
	if a.Params.ConfigPath, err = cmd.Flags().GetString("config"); err != nil {
		return err
	}
	if a.Params.LogLevel, err = cmd.Flags().GetString("log-level"); err != nil {
		return err
	}
	fullTimestamps, err := cmd.Flags().GetBool("full-timestamps")
	if err != nil {
		return err
	}
	if fullTimestamps {
		common.ConfigureLogging()
	}
	return nil
}

// Build the executables and run the whole sweep.
func runCmd(a *scalebench.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the benchmark sweep and write tables, charts and summaries.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if a.Params.OutputDirectory, err = cmd.Flags().GetString("output"); err != nil {
				return err
			}
			if a.Params.SkipBuild, err = cmd.Flags().GetBool("no-build"); err != nil {
				return err
			}
			if cmd.Flags().Changed("hwthreads") {
				hwthreads, err := cmd.Flags().GetBool("hwthreads")
				if err != nil {
					return err
				}
				a.Params.UseHardwareThreads = &hwthreads
			}

			// Cancelled on SIGINT/SIGTERM; the running trial is killed and partial results are written.
			ctx, cancel := app.CreateContextWithShutdown()
			defer cancel()
			return a.Run(ctx)
		},
	}
	cmd.Flags().String("output", "", "Directory to write results to. Overrides the config file.")
	cmd.Flags().Bool("no-build", false, "Use existing executables instead of compiling them.")
	cmd.Flags().Bool("hwthreads", false, "Bind workers to hardware threads and allow as many as there are logical cores.")
	return cmd
}

func probeCmd(a *scalebench.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Print the host's core counts and the process counts a sweep would use.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("hwthreads") {
				hwthreads, err := cmd.Flags().GetBool("hwthreads")
				if err != nil {
					return err
				}
				a.Params.UseHardwareThreads = &hwthreads
			}
			return a.Probe()
		},
	}
	cmd.Flags().Bool("hwthreads", false, "Size the process list by logical rather than physical cores.")
	return cmd
}

func parseCmd(a *scalebench.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <output-file>",
		Short: "Extract the timing from captured program output, as a sweep would.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := cmd.Flags().GetString("role")
			if err != nil {
				return err
			}
			if role != string(parser.Serial) && role != string(parser.Parallel) {
				return errors.WithStack(&bencherrors.ErrInvalidArgument{
					Name:    "role",
					Value:   role,
					Message: "must be serial or parallel",
				})
			}
			return a.Parse(benchcontext.Background(), args[0], parser.Role(role))
		},
	}
	cmd.Flags().String("role", string(parser.Parallel), "Which program produced the output: serial or parallel.")
	return cmd
}

func amdahlCmd(a *scalebench.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "amdahl",
		Short: "Compute the parallel fraction from one measured speedup and the speedups it predicts.",
		RunE: func(cmd *cobra.Command, args []string) error {
			speedup, err := cmd.Flags().GetFloat64("speedup")
			if err != nil {
				return err
			}
			p, err := cmd.Flags().GetInt("p")
			if err != nil {
				return err
			}
			ps, err := cmd.Flags().GetIntSlice("predict")
			if err != nil {
				return err
			}
			return a.Amdahl(speedup, p, ps)
		},
	}
	cmd.Flags().Float64("speedup", 0, "Measured speedup S.")
	cmd.Flags().Int("p", 0, "Process count at which the speedup was measured.")
	cmd.Flags().IntSlice("predict", topology.ReferenceProcessCounts, "Process counts to predict the speedup at.")
	_ = cmd.MarkFlagRequired("speedup")
	_ = cmd.MarkFlagRequired("p")
	return cmd
}

// Print version info and exit.
func versionCmd(a *scalebench.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.Version()
		},
	}
	return cmd
}

package sweep

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/G-Research/scalebench/internal/scalebench/amdahl"
	"github.com/G-Research/scalebench/internal/scalebench/report"
	"github.com/G-Research/scalebench/internal/scalebench/stats"
)

// printSummary writes a table of the rows measured for problem size n.
func printSummary(out io.Writer, n int, serial stats.Measurement, rows []report.Row, fit amdahl.Fit, fitted bool) {
	if out == nil {
		return
	}
	w := tabwriter.NewWriter(out, 1, 1, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "N = %d, serial median %.6f s (%d/%d samples)\n", n, serial.Median, serial.Valid, serial.Attempted)
	fmt.Fprintf(w, "p\tmedian (s)\tstddev (s)\tsamples\tspeedup\tf\tAmdahl S(p)\n")
	for _, row := range rows {
		f := "-"
		if row.Fraction != nil {
			f = fmt.Sprintf("%.4f", *row.Fraction)
		}
		predicted := "-"
		if fitted {
			predicted = fmt.Sprintf("%.3f", amdahl.PredictedSpeedup(fit.Fraction, row.P))
		}
		fmt.Fprintf(w, "%d\t%.6f\t%.6f\t%d/%d\t%.3f\t%s\t%s\n",
			row.P, row.Parallel.Median, row.Parallel.StdDev, row.Parallel.Valid, row.Parallel.Attempted,
			row.Speedup, f, predicted)
	}
	if fitted {
		fmt.Fprintf(w, "fitted f = %.4f from p = %d\n", fit.Fraction, fit.FromP)
	}
}

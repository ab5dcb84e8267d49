// Package report accumulates the aggregated rows of one experiment group and writes them out when the group is
// closed: a CSV table, a two-panel runtime/speedup chart and a YAML summary.
package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/G-Research/scalebench/internal/scalebench/amdahl"
	"github.com/G-Research/scalebench/internal/scalebench/stats"
	"github.com/G-Research/scalebench/internal/scalebench/topology"
)

// Row is the aggregated result of one (N, p) configuration.
type Row struct {
	N        int
	P        int
	Serial   stats.Measurement
	Parallel stats.Measurement
	// Speedup is NaN when the parallel median is zero.
	Speedup float64
	// Fraction is the Amdahl parallel fraction at this row's p; nil where it is undefined.
	Fraction *float64
}

// Prediction is the Amdahl curve fitted for one problem size.
type Prediction struct {
	N     int
	Fit   amdahl.Fit
	Curve []amdahl.Point
}

// Metadata describes the sweep a report belongs to.
type Metadata struct {
	RunID    string
	Topology topology.Topology
	Launcher string
}

// Report holds everything measured for one experiment group. Rows are append-only.
type Report struct {
	group       string
	dir         string
	meta        Metadata
	rows        []Row
	predictions []Prediction
	closed      bool
}

func New(group, dir string, meta Metadata) *Report {
	if dir == "" {
		dir = "."
	}
	return &Report{group: group, dir: dir, meta: meta}
}

func (r *Report) Add(row Row) {
	r.rows = append(r.rows, row)
}

// AddPrediction records the fitted curve for problem size n.
func (r *Report) AddPrediction(n int, fit amdahl.Fit, curve []amdahl.Point) {
	r.predictions = append(r.predictions, Prediction{N: n, Fit: fit, Curve: curve})
}

// Rows returns a copy of the rows added so far.
func (r *Report) Rows() []Row {
	return append([]Row(nil), r.rows...)
}

func (r *Report) Predictions() []Prediction {
	return append([]Prediction(nil), r.predictions...)
}

func (r *Report) TablePath() string {
	return filepath.Join(r.dir, fmt.Sprintf("runtimes_%s.csv", r.group))
}

func (r *Report) ChartPath() string {
	return filepath.Join(r.dir, fmt.Sprintf("runtime_speedup_%s.png", r.group))
}

func (r *Report) SummaryPath() string {
	return filepath.Join(r.dir, fmt.Sprintf("summary_%s.yaml", r.group))
}

// Close writes the table, chart and summary, overwriting existing files. Every artefact is attempted; the
// failures are returned together. Calling Close again does nothing.
func (r *Report) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating output directory %s", r.dir)
	}
	var result *multierror.Error
	if err := writeFile(r.TablePath(), r.writeTable); err != nil {
		result = multierror.Append(result, err)
	}
	if err := writeFile(r.ChartPath(), r.writeChart); err != nil {
		result = multierror.Append(result, err)
	}
	if err := writeFile(r.SummaryPath(), r.writeSummary); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

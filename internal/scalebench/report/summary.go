package report

import (
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/G-Research/scalebench/internal/scalebench/amdahl"
	"github.com/G-Research/scalebench/internal/scalebench/stats"
	"github.com/G-Research/scalebench/internal/scalebench/topology"
)

type summary struct {
	RunID    string            `yaml:"run_id,omitempty"`
	Group    string            `yaml:"group"`
	Topology topology.Topology `yaml:"topology"`
	Launcher string            `yaml:"launcher,omitempty"`
	Rows     []summaryRow      `yaml:"rows"`
	Fits     []summaryFit      `yaml:"fits,omitempty"`
}

type summaryRow struct {
	N        int               `yaml:"n"`
	P        int               `yaml:"p"`
	Serial   stats.Measurement `yaml:"serial"`
	Parallel stats.Measurement `yaml:"parallel"`
	// NaN is encoded as .nan
	Speedup  float64  `yaml:"speedup"`
	Fraction *float64 `yaml:"f_estimated,omitempty"`
}

// summaryFit records which p the fraction came from (fit.from_p); it is the largest p with a finite speedup,
// not necessarily the largest p measured.
type summaryFit struct {
	N     int            `yaml:"n"`
	Fit   amdahl.Fit     `yaml:"fit"`
	Curve []amdahl.Point `yaml:"predicted"`
}

func (r *Report) writeSummary(w io.Writer) error {
	s := summary{
		RunID:    r.meta.RunID,
		Group:    r.group,
		Topology: r.meta.Topology,
		Launcher: r.meta.Launcher,
		Rows:     make([]summaryRow, 0, len(r.rows)),
	}
	for _, row := range r.rows {
		s.Rows = append(s.Rows, summaryRow{
			N:        row.N,
			P:        row.P,
			Serial:   row.Serial,
			Parallel: row.Parallel,
			Speedup:  row.Speedup,
			Fraction: row.Fraction,
		})
	}
	for _, p := range r.predictions {
		s.Fits = append(s.Fits, summaryFit{N: p.N, Fit: p.Fit, Curve: p.Curve})
	}

	out, err := yaml.Marshal(s)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = w.Write(out)
	return errors.WithStack(err)
}

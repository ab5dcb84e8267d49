package report

import (
	"fmt"
	"io"
	"math"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const (
	chartWidth  = 14 * vg.Inch
	chartHeight = 5 * vg.Inch
	chartDPI    = 150
)

// series is one line on a panel.
type series struct {
	label  string
	points plotter.XYs
	dashed bool
	index  int
}

func (r *Report) writeChart(w io.Writer) error {
	runtime := plot.New()
	runtime.Title.Text = fmt.Sprintf("Runtime vs Processes (%s)", r.group)
	runtime.X.Label.Text = "Processes"
	runtime.Y.Label.Text = "Time (s)"

	speedup := plot.New()
	speedup.Title.Text = fmt.Sprintf("Speedup vs Processes (%s)", r.group)
	speedup.X.Label.Text = "Processes"
	speedup.Y.Label.Text = "Speedup"

	runtimeSeries, speedupSeries := r.series()
	for _, panel := range []struct {
		p      *plot.Plot
		series []series
	}{{runtime, runtimeSeries}, {speedup, speedupSeries}} {
		panel.p.Add(plotter.NewGrid())
		panel.p.Legend.Top = true
		panel.p.Legend.Left = true
		for _, s := range panel.series {
			if err := addSeries(panel.p, s); err != nil {
				return err
			}
		}
	}

	img := vgimg.NewWith(vgimg.UseWH(chartWidth, chartHeight), vgimg.UseDPI(chartDPI))
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:   1,
		Cols:   2,
		PadX:   vg.Millimeter * 4,
		PadY:   vg.Millimeter * 2,
		PadTop: vg.Millimeter * 2, PadBottom: vg.Millimeter * 2,
		PadLeft: vg.Millimeter * 2, PadRight: vg.Millimeter * 2,
	}
	plots := [][]*plot.Plot{{runtime, speedup}}
	canvases := plot.Align(plots, tiles, dc)
	runtime.Draw(canvases[0][0])
	speedup.Draw(canvases[0][1])

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(w); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func addSeries(p *plot.Plot, s series) error {
	if len(s.points) == 0 {
		return nil
	}
	line, scatter, err := plotter.NewLinePoints(s.points)
	if err != nil {
		return errors.Wrapf(err, "plotting %s", s.label)
	}
	line.Color = plotutil.Color(s.index)
	line.Width = vg.Points(2)
	scatter.Color = plotutil.Color(s.index)
	scatter.Shape = draw.CircleGlyph{}
	if s.dashed {
		line.Dashes = []vg.Length{vg.Points(6), vg.Points(3)}
		scatter.Shape = draw.RingGlyph{}
	}
	p.Add(line, scatter)
	p.Legend.Add(s.label, line, scatter)
	return nil
}

// series builds one runtime and one measured-speedup series per problem size, in the order sizes were first
// added, plus a dashed predicted-speedup series for each fitted size. Non-finite points are left out.
func (r *Report) series() (runtime, speedup []series) {
	var sizes []int
	byN := map[int][]Row{}
	for _, row := range r.rows {
		if _, ok := byN[row.N]; !ok {
			sizes = append(sizes, row.N)
		}
		byN[row.N] = append(byN[row.N], row)
	}
	for _, p := range r.predictions {
		if !slices.Contains(sizes, p.N) {
			sizes = append(sizes, p.N)
		}
	}

	for i, n := range sizes {
		rows := byN[n]
		slices.SortStableFunc(rows, func(a, b Row) bool { return a.P < b.P })
		var rt, sp plotter.XYs
		for _, row := range rows {
			if finite(row.Parallel.Median) {
				rt = append(rt, plotter.XY{X: float64(row.P), Y: row.Parallel.Median})
			}
			if finite(row.Speedup) {
				sp = append(sp, plotter.XY{X: float64(row.P), Y: row.Speedup})
			}
		}
		runtime = append(runtime, series{label: fmt.Sprintf("N=%d", n), points: rt, index: i})
		speedup = append(speedup, series{label: fmt.Sprintf("N=%d", n), points: sp, index: i})

		for _, pred := range r.predictions {
			if pred.N != n {
				continue
			}
			var pts plotter.XYs
			for _, pt := range pred.Curve {
				if finite(pt.Speedup) {
					pts = append(pts, plotter.XY{X: float64(pt.P), Y: pt.Speedup})
				}
			}
			speedup = append(speedup, series{
				label:  fmt.Sprintf("N=%d Amdahl (f=%.3f)", n, pred.Fit.Fraction),
				points: pts,
				dashed: true,
				index:  i,
			})
		}
	}
	return runtime, speedup
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

var tableHeader = []string{"N", "p", "serial_median_s", "parallel_median_s", "speedup", "f_estimated"}

func (r *Report) writeTable(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tableHeader); err != nil {
		return errors.WithStack(err)
	}
	for _, row := range r.rows {
		fraction := ""
		if row.Fraction != nil {
			fraction = formatFloat(*row.Fraction)
		}
		record := []string{
			strconv.Itoa(row.N),
			strconv.Itoa(row.P),
			formatFloat(row.Serial.Median),
			formatFloat(row.Parallel.Median),
			formatFloat(row.Speedup),
			fraction,
		}
		if err := cw.Write(record); err != nil {
			return errors.WithStack(err)
		}
	}
	cw.Flush()
	return errors.WithStack(cw.Error())
}

// formatFloat prints the shortest representation that round-trips; NaN is written as "NaN".
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Package report formats parameter sets for the clipboard and for CSV export.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"

	"spineforge/pkg/implants"
	"spineforge/pkg/measurement"
)

// DefaultPrecision is the number of decimals shown for every value
const DefaultPrecision = 2

const (
	baselineHeader  = "BASELINE MEASUREMENTS:"
	simulatedHeader = "SIMULATED MEASUREMENTS:"
	implantsHeader  = "IMPLANTS:"
)

// Text renders the valid parameters as "Name: value" lines under a baseline
// header, followed by a simulated section when simulated is not nil and an
// implant section when construct holds any implant.
// A failed pelvic incidence cross-check is reported below the values.
func Text(baseline measurement.Results, simulated *measurement.Results, construct *implants.Construct, precision int) string {
	var b strings.Builder
	writeSection(&b, baselineHeader, baseline, precision)
	if simulated != nil {
		b.WriteString("\n")
		writeSection(&b, simulatedHeader, *simulated, precision)
	}
	if !construct.Empty() {
		b.WriteString("\n")
		b.WriteString(implantsHeader)
		b.WriteString("\n")
		for _, line := range construct.Summary() {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func writeSection(b *strings.Builder, header string, rs measurement.Results, precision int) {
	b.WriteString(header)
	b.WriteString("\n")
	for _, r := range rs.Valid() {
		fmt.Fprintf(b, "%s: %s\n", r.Name.DisplayName(), r.Format(precision))
	}
	if cc := rs.CrossCheck; cc.Checked && !cc.Agrees {
		fmt.Fprintf(b, "WARNING: PI (vector) and PI (PT+SS) differ by %.*f°\n", precision, cc.Difference)
	}
}

// Row is one CSV line
type Row struct {
	Set       string `csv:"set"`
	Parameter string `csv:"parameter"`
	Value     string `csv:"value"`
	Unit      string `csv:"unit"`
	Valid     bool   `csv:"valid"`
	Scaled    bool   `csv:"scaled"`
}

// Rows flattens the result sets into CSV rows; invalid values are left empty
func Rows(baseline measurement.Results, simulated *measurement.Results, precision int) []Row {
	rows := appendRows(nil, "baseline", baseline, precision)
	if simulated != nil {
		rows = appendRows(rows, "simulated", *simulated, precision)
	}
	return rows
}

func appendRows(rows []Row, set string, rs measurement.Results, precision int) []Row {
	for _, r := range rs.Params {
		row := Row{
			Set:       set,
			Parameter: r.Name.DisplayName(),
			Unit:      string(r.Unit),
			Valid:     r.Valid,
			Scaled:    r.Scaled,
		}
		if r.Valid {
			row.Value = strconv.FormatFloat(r.Value, 'f', precision, 64)
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteCSV writes every parameter of both sets, valid or not, with a header line
func WriteCSV(w io.Writer, baseline measurement.Results, simulated *measurement.Results, precision int) error {
	b, err := csvutil.Marshal(Rows(baseline, simulated, precision))
	if err != nil {
		return fmt.Errorf("error encoding CSV: %w", err)
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("error writing CSV: %w", err)
	}
	return nil
}

/*
csv.go - Calibration table import and export

FORMAT:
  Two comma-separated columns, dip (mm) and liters, one point per line.
  A header row is optional: the first row is treated as a header when
  either column is not a number. Blank lines are ignored.

    dip,liters
    0,0
    100,500

ATOMICITY:
  An import either yields a full table or fails with *fuel.ParseError
  naming the first bad row by its line number in the file (header and
  blank lines included). Nothing is applied partially.
*/
package tank

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/warp/fuel-engine/fuel"
)

// TemplateCSV is the downloadable example given to operators.
const TemplateCSV = "dip,liters\n0,0\n100,500\n200,1500\n300,3200\n"

// ParseCSVString is ParseCSV over a string.
func ParseCSVString(s string) (Table, error) {
	return ParseCSV(strings.NewReader(s))
}

// ParseCSV reads a calibration table.
func ParseCSV(r io.Reader) (Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var (
		table Table
		first = true
		rows  int
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var line int
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				line = perr.Line
			}
			return Table{}, &fuel.ParseError{Row: line, Reason: "malformed csv", Err: err}
		}
		line, _ := reader.FieldPos(0)
		if len(record) != 2 {
			return Table{}, &fuel.ParseError{Row: line, Reason: fmt.Sprintf("expected 2 columns, got %d", len(record))}
		}

		if first {
			first = false
			if !isNumber(record[0]) || !isNumber(record[1]) {
				continue // header
			}
		}
		dip, dipErr := parseField(record[0])
		liters, litersErr := parseField(record[1])
		if dipErr != nil {
			return Table{}, &fuel.ParseError{Row: line, Reason: fmt.Sprintf("dip %q: %v", record[0], dipErr), Err: dipErr}
		}
		if litersErr != nil {
			return Table{}, &fuel.ParseError{Row: line, Reason: fmt.Sprintf("liters %q: %v", record[1], litersErr), Err: litersErr}
		}

		next, err := AddPoint(table, Point{DipMM: dip, VolumeLiters: liters})
		if err != nil {
			return Table{}, &fuel.ParseError{Row: line, Reason: err.Error(), Err: err}
		}
		table = next
		rows++
	}

	if rows == 0 {
		return Table{}, &fuel.ParseError{Reason: "no calibration rows found"}
	}
	return table, nil
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil
}

func parseField(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fuel.ErrInvalidValue
	}
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fuel.Negative("value", v)
	}
	return v, nil
}

// WriteCSV exports t in the import format, header included.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"dip", "liters"}); err != nil {
		return err
	}
	for _, p := range t.points {
		if err := cw.Write([]string{formatFloat(p.DipMM), formatFloat(p.VolumeLiters)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Package tabular loads CSV and Excel files into gota DataFrames. It is used by
// the workflow to preview files and is pre-bound in the code sandbox so that
// generated analysis code can read the files it was given.
package tabular

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for extensions other than csv/xlsx/xls.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// nanValues deliberately leaves out "NA" so values such as the North America
// region code survive loading as strings.
var nanValues = []string{"", "NaN", "nan", "<nil>", "null", "NULL"}

// Format reports the loader format for a path: "csv", "excel" or "".
func Format(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return "csv"
	case ".xlsx", ".xls", ".xlsm":
		return "excel"
	default:
		return ""
	}
}

// ReadFile loads a CSV or Excel file. Failures are reported through the
// returned DataFrame's Err field, matching gota's own loaders.
func ReadFile(path string) dataframe.DataFrame {
	switch Format(path) {
	case "csv":
		return ReadCSV(path)
	case "excel":
		return ReadExcel(path, "")
	default:
		return dataframe.DataFrame{Err: fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))}
	}
}

// ReadCSV loads a CSV file with a header row and type detection.
func ReadCSV(path string) dataframe.DataFrame {
	f, err := os.Open(path)
	if err != nil {
		return dataframe.DataFrame{Err: err}
	}
	defer f.Close()

	return dataframe.ReadCSV(f,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(true),
		dataframe.NaNValues(nanValues),
	)
}

// ReadExcel loads one sheet of a workbook; an empty sheet name selects the first.
func ReadExcel(path, sheet string) dataframe.DataFrame {
	wb, err := excelize.OpenFile(path)
	if err != nil {
		return dataframe.DataFrame{Err: err}
	}
	defer wb.Close()

	if sheet == "" {
		sheets := wb.GetSheetList()
		if len(sheets) == 0 {
			return dataframe.DataFrame{Err: fmt.Errorf("workbook %s has no sheets", filepath.Base(path))}
		}
		sheet = sheets[0]
	}

	rows, err := wb.GetRows(sheet)
	if err != nil {
		return dataframe.DataFrame{Err: err}
	}
	if len(rows) == 0 {
		return dataframe.DataFrame{Err: fmt.Errorf("sheet %q is empty", sheet)}
	}

	return dataframe.LoadRecords(padRows(rows),
		dataframe.HasHeader(true),
		dataframe.DetectTypes(true),
		dataframe.NaNValues(nanValues),
	)
}

// padRows makes every row as wide as the header; excelize trims trailing
// empty cells.
func padRows(rows [][]string) [][]string {
	width := len(rows[0])
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		switch {
		case len(r) < width:
			padded := make([]string, width)
			copy(padded, r)
			out = append(out, padded)
		case len(r) > width:
			out = append(out, r[:width])
		default:
			out = append(out, r)
		}
	}
	return out
}

// Head returns the first n records of df as maps.
func Head(df dataframe.DataFrame, n int) []map[string]any {
	rows, _ := df.Dims()
	if n > rows {
		n = rows
	}
	if n <= 0 {
		return []map[string]any{}
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return df.Subset(idx).Maps()
}

// DTypes maps column names to gota type names (int, float, string, bool).
func DTypes(df dataframe.DataFrame) map[string]string {
	names := df.Names()
	types := df.Types()
	out := make(map[string]string, len(names))
	for i, name := range names {
		out[name] = string(types[i])
	}
	return out
}

func isNumeric(t series.Type) bool {
	return t == series.Int || t == series.Float
}

package tabular

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-gota/gota/series"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/pushkal/server/internal/analysis/model"
)

const previewRows = 3

// Loader produces file previews and descriptors, memoizing previews by
// path, size and modification time.
type Loader struct {
	previews *expirable.LRU[string, model.FilePreview]
}

// NewLoader creates a loader whose preview cache holds size entries for ttl.
// The cache's expiry goroutine lives as long as the process, so callers share
// one loader.
func NewLoader(size int, ttl time.Duration) *Loader {
	if size <= 0 {
		size = 128
	}
	return &Loader{previews: expirable.NewLRU[string, model.FilePreview](size, nil, ttl)}
}

// Preview loads columns, types, row count and the first rows of a file.
func (l *Loader) Preview(ctx context.Context, path string) (model.FilePreview, error) {
	if err := ctx.Err(); err != nil {
		return model.FilePreview{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return model.FilePreview{}, err
	}
	if info.IsDir() {
		return model.FilePreview{}, fmt.Errorf("%s is a directory", path)
	}
	if Format(path) == "" {
		return model.FilePreview{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	key := fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
	if p, ok := l.previews.Get(key); ok {
		return p, nil
	}

	df := ReadFile(path)
	if df.Err != nil {
		return model.FilePreview{}, df.Err
	}
	rows, _ := df.Dims()
	p := model.FilePreview{
		Columns:  df.Names(),
		DTypes:   DTypes(df),
		RowCount: rows,
		Sample:   Head(df, previewRows),
	}
	l.previews.Add(key, p)
	return p, nil
}

// Len reports how many previews are cached.
func (l *Loader) Len() int {
	return l.previews.Len()
}

// Describe builds the FileInfo descriptor the workflow expects for a file.
// It stands in for the upload service's schema extraction.
func Describe(path, timePeriod string) (model.FileInfo, error) {
	df := ReadFile(path)
	if df.Err != nil {
		return model.FileInfo{}, df.Err
	}
	rows, _ := df.Dims()
	fi := model.FileInfo{
		Filename:           filepath.Base(path),
		Filepath:           path,
		TimePeriod:         timePeriod,
		RowCount:           rows,
		Columns:            df.Names(),
		NumericColumns:     []string{},
		CategoricalColumns: []string{},
		DateColumns:        []string{},
		Schema:             map[string]string{},
		SampleRows:         Head(df, previewRows),
	}
	for _, name := range df.Names() {
		col := df.Col(name)
		switch {
		case isNumeric(col.Type()):
			fi.NumericColumns = append(fi.NumericColumns, name)
			fi.Schema[name] = string(col.Type())
		case looksLikeDates(col):
			fi.DateColumns = append(fi.DateColumns, name)
			fi.Schema[name] = "date"
		default:
			fi.CategoricalColumns = append(fi.CategoricalColumns, name)
			fi.Schema[name] = string(col.Type())
		}
	}
	return fi, nil
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01",
	"Jan 2006",
	"January 2006",
}

// looksLikeDates reports whether most non-empty values of a string column
// parse with one of the known layouts.
func looksLikeDates(s series.Series) bool {
	if s.Type() != series.String {
		return false
	}
	seen, parsed := 0, 0
	for _, v := range s.Records() {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		seen++
		for _, layout := range dateLayouts {
			if _, err := time.Parse(layout, v); err == nil {
				parsed++
				break
			}
		}
		if seen >= 50 {
			break
		}
	}
	return seen > 0 && parsed*5 >= seen*4
}

package sandbox

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/pushkal/server/internal/analysis/model"
)

var ErrNoResult = errors.New("no result variable defined")

// Envelope converts the value bound to result into its serializable form.
func Envelope(v any) (*model.ResultData, error) {
	switch r := v.(type) {
	case nil:
		return nil, ErrNoResult
	case dataframe.DataFrame:
		return frameEnvelope(r)
	case *dataframe.DataFrame:
		if r == nil {
			return nil, ErrNoResult
		}
		return frameEnvelope(*r)
	case series.Series:
		return &model.ResultData{Type: model.ResultList, Data: seriesValues(r)}, nil
	case *series.Series:
		if r == nil {
			return nil, ErrNoResult
		}
		return &model.ResultData{Type: model.ResultList, Data: seriesValues(*r)}, nil
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, ErrNoResult
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		return &model.ResultData{Type: model.ResultDict, Data: normalize(rv.Interface())}, nil
	case reflect.Slice, reflect.Array:
		return &model.ResultData{Type: model.ResultList, Data: normalize(rv.Interface())}, nil
	default:
		return &model.ResultData{Type: model.ResultValue, Data: normalize(rv.Interface())}, nil
	}
}

func frameEnvelope(df dataframe.DataFrame) (*model.ResultData, error) {
	if df.Err != nil {
		return nil, fmt.Errorf("result dataframe: %w", df.Err)
	}
	rows, cols := df.Dims()
	records := df.Maps()
	for _, rec := range records {
		for k, val := range rec {
			rec[k] = normalize(val)
		}
	}
	return &model.ResultData{
		Type:    model.ResultDataFrame,
		Data:    records,
		Columns: df.Names(),
		Shape:   []int{rows, cols},
	}, nil
}

func seriesValues(s series.Series) []any {
	out := make([]any, s.Len())
	for i := range out {
		out[i] = normalize(s.Elem(i).Val())
	}
	return out
}

// normalize maps a value onto JSON-friendly primitives. Unknown types are
// stringified.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case bool, string:
		return x
	case float32:
		return finite(float64(x))
	case float64:
		return finite(x)
	case time.Time:
		return x.Format(time.RFC3339)
	case error:
		return x.Error()
	case dataframe.DataFrame:
		env, err := frameEnvelope(x)
		if err != nil {
			return err.Error()
		}
		return env.Data
	case series.Series:
		return seriesValues(x)
	case fmt.Stringer:
		return x.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return finite(rv.Float())
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.String()
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = normalize(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return []any{}
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	default:
		return fmt.Sprint(v)
	}
}

func finite(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

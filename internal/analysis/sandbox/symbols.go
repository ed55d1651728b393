package sandbox

import (
	"reflect"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/traefik/yaegi/interp"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/stat"

	"github.com/pushkal/server/pkg/tabular"
)

// Symbols is the pre-bound library namespace. Keys follow yaegi's
// "importpath/pkgname" convention.
var Symbols = interp.Exports{
	"github.com/go-gota/gota/dataframe/dataframe": {
		"DataFrame":       reflect.ValueOf((*dataframe.DataFrame)(nil)),
		"F":               reflect.ValueOf((*dataframe.F)(nil)),
		"Order":           reflect.ValueOf((*dataframe.Order)(nil)),
		"LoadOption":      reflect.ValueOf((*dataframe.LoadOption)(nil)),
		"AggregationType": reflect.ValueOf((*dataframe.AggregationType)(nil)),

		"New":           reflect.ValueOf(dataframe.New),
		"LoadRecords":   reflect.ValueOf(dataframe.LoadRecords),
		"LoadMaps":      reflect.ValueOf(dataframe.LoadMaps),
		"Sort":          reflect.ValueOf(dataframe.Sort),
		"RevSort":       reflect.ValueOf(dataframe.RevSort),
		"HasHeader":     reflect.ValueOf(dataframe.HasHeader),
		"DetectTypes":   reflect.ValueOf(dataframe.DetectTypes),
		"DefaultType":   reflect.ValueOf(dataframe.DefaultType),
		"NaNValues":     reflect.ValueOf(dataframe.NaNValues),
		"WithTypes":     reflect.ValueOf(dataframe.WithTypes),
		"WithDelimiter": reflect.ValueOf(dataframe.WithDelimiter),

		"Aggregation_MAX":    reflect.ValueOf(dataframe.Aggregation_MAX),
		"Aggregation_MIN":    reflect.ValueOf(dataframe.Aggregation_MIN),
		"Aggregation_MEAN":   reflect.ValueOf(dataframe.Aggregation_MEAN),
		"Aggregation_MEDIAN": reflect.ValueOf(dataframe.Aggregation_MEDIAN),
		"Aggregation_STD":    reflect.ValueOf(dataframe.Aggregation_STD),
		"Aggregation_SUM":    reflect.ValueOf(dataframe.Aggregation_SUM),
		"Aggregation_COUNT":  reflect.ValueOf(dataframe.Aggregation_COUNT),
	},
	"github.com/go-gota/gota/series/series": {
		"Series":     reflect.ValueOf((*series.Series)(nil)),
		"Type":       reflect.ValueOf((*series.Type)(nil)),
		"Comparator": reflect.ValueOf((*series.Comparator)(nil)),
		"Element":    reflect.ValueOf((*series.Element)(nil)),

		"New":     reflect.ValueOf(series.New),
		"Strings": reflect.ValueOf(series.Strings),
		"Ints":    reflect.ValueOf(series.Ints),
		"Floats":  reflect.ValueOf(series.Floats),
		"Bools":   reflect.ValueOf(series.Bools),

		"String": reflect.ValueOf(series.String),
		"Int":    reflect.ValueOf(series.Int),
		"Float":  reflect.ValueOf(series.Float),
		"Bool":   reflect.ValueOf(series.Bool),

		"Eq":        reflect.ValueOf(series.Eq),
		"Neq":       reflect.ValueOf(series.Neq),
		"Greater":   reflect.ValueOf(series.Greater),
		"GreaterEq": reflect.ValueOf(series.GreaterEq),
		"Less":      reflect.ValueOf(series.Less),
		"LessEq":    reflect.ValueOf(series.LessEq),
		"In":        reflect.ValueOf(series.In),
	},
	"gonum.org/v1/gonum/stat/stat": {
		"CumulantKind": reflect.ValueOf((*stat.CumulantKind)(nil)),
		"Empirical":    reflect.ValueOf(stat.Empirical),
		"LinInterp":    reflect.ValueOf(stat.LinInterp),

		"Mean":             reflect.ValueOf(stat.Mean),
		"MeanStdDev":       reflect.ValueOf(stat.MeanStdDev),
		"StdDev":           reflect.ValueOf(stat.StdDev),
		"Variance":         reflect.ValueOf(stat.Variance),
		"Quantile":         reflect.ValueOf(stat.Quantile),
		"Correlation":      reflect.ValueOf(stat.Correlation),
		"Covariance":       reflect.ValueOf(stat.Covariance),
		"LinearRegression": reflect.ValueOf(stat.LinearRegression),
		"RSquared":         reflect.ValueOf(stat.RSquared),
		"Mode":             reflect.ValueOf(stat.Mode),
		"Skew":             reflect.ValueOf(stat.Skew),
		"GeometricMean":    reflect.ValueOf(stat.GeometricMean),
	},
	"gonum.org/v1/gonum/floats/floats": {
		"Sum":      reflect.ValueOf(floats.Sum),
		"Prod":     reflect.ValueOf(floats.Prod),
		"Max":      reflect.ValueOf(floats.Max),
		"Min":      reflect.ValueOf(floats.Min),
		"MaxIdx":   reflect.ValueOf(floats.MaxIdx),
		"MinIdx":   reflect.ValueOf(floats.MinIdx),
		"CumSum":   reflect.ValueOf(floats.CumSum),
		"Scale":    reflect.ValueOf(floats.Scale),
		"AddConst": reflect.ValueOf(floats.AddConst),
		"Add":      reflect.ValueOf(floats.Add),
		"Sub":      reflect.ValueOf(floats.Sub),
		"Dot":      reflect.ValueOf(floats.Dot),
		"Argsort":  reflect.ValueOf(floats.Argsort),
		"HasNaN":   reflect.ValueOf(floats.HasNaN),
	},
	"gonum.org/v1/gonum/floats/scalar/scalar": {
		"Round":          reflect.ValueOf(scalar.Round),
		"RoundEven":      reflect.ValueOf(scalar.RoundEven),
		"EqualWithinAbs": reflect.ValueOf(scalar.EqualWithinAbs),
	},
	"github.com/pushkal/server/pkg/tabular/tabular": {
		"ReadFile":             reflect.ValueOf(tabular.ReadFile),
		"ReadCSV":              reflect.ValueOf(tabular.ReadCSV),
		"ReadExcel":            reflect.ValueOf(tabular.ReadExcel),
		"Head":                 reflect.ValueOf(tabular.Head),
		"DTypes":               reflect.ValueOf(tabular.DTypes),
		"ErrUnsupportedFormat": reflect.ValueOf(&tabular.ErrUnsupportedFormat).Elem(),
	},
}

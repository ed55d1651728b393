package model

import "strings"

// Intent is the kind of analysis the user asked for.
type Intent string

const (
	IntentQuery       Intent = "query"
	IntentAggregate   Intent = "aggregate"
	IntentCompare     Intent = "compare"
	IntentTrend       Intent = "trend"
	IntentForecast    Intent = "forecast"
	IntentAnomaly     Intent = "anomaly"
	IntentCorrelation Intent = "correlation"
)

var intents = []Intent{
	IntentQuery, IntentAggregate, IntentCompare, IntentTrend,
	IntentForecast, IntentAnomaly, IntentCorrelation,
}

// ParseIntent accepts values such as "trend" or "trend|compare" and returns the
// first recognised intent.
func ParseIntent(v string) (Intent, bool) {
	for _, part := range strings.Split(v, "|") {
		p := Intent(strings.ToLower(strings.TrimSpace(part)))
		for _, known := range intents {
			if p == known {
				return known, true
			}
		}
	}
	return "", false
}

// OperationType describes how many tables an analysis touches.
type OperationType string

const (
	OperationSingleTable OperationType = "single_table"
	OperationCrossTable  OperationType = "cross_table"
	OperationTemporal    OperationType = "temporal"
)

// ParseOperationType works like ParseIntent for operation types.
func ParseOperationType(v string) (OperationType, bool) {
	for _, part := range strings.Split(v, "|") {
		switch p := OperationType(strings.ToLower(strings.TrimSpace(part))); p {
		case OperationSingleTable, OperationCrossTable, OperationTemporal:
			return p, true
		}
	}
	return "", false
}

// MultiTable reports whether the operation spans tables or time periods.
func (o OperationType) MultiTable() bool {
	return o == OperationCrossTable || o == OperationTemporal
}

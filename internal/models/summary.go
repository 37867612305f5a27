package models

// ColumnSummary holds describe() style statistics for one column.
// Numeric columns fill the numeric fields; other columns fill Unique/Top/Freq.
type ColumnSummary struct {
	Name   string   `json:"name" msgpack:"name"`
	Type   string   `json:"type" msgpack:"type"`
	Count  int64    `json:"count" msgpack:"count"`
	Mean   *float64 `json:"mean,omitempty" msgpack:"mean,omitempty"`
	Std    *float64 `json:"std,omitempty" msgpack:"std,omitempty"`
	Min    *string  `json:"min,omitempty" msgpack:"min,omitempty"`
	Q25    *float64 `json:"25%,omitempty" msgpack:"q25,omitempty"`
	Median *float64 `json:"50%,omitempty" msgpack:"q50,omitempty"`
	Q75    *float64 `json:"75%,omitempty" msgpack:"q75,omitempty"`
	Max    *string  `json:"max,omitempty" msgpack:"max,omitempty"`
	Unique *int64   `json:"unique,omitempty" msgpack:"unique,omitempty"`
	Top    *string  `json:"top,omitempty" msgpack:"top,omitempty"`
	Freq   *int64   `json:"freq,omitempty" msgpack:"freq,omitempty"`
}

// DatasetSummary describes the current merged dataset.
type DatasetSummary struct {
	Version  string          `json:"version"`
	RowCount int             `json:"rowCount"`
	Columns  []ColumnSummary `json:"columns"`
}

package models

// ColumnType is the inferred type of a dataset column.
type ColumnType string

const (
	ColumnTypeInteger ColumnType = "integer"
	ColumnTypeFloat   ColumnType = "float"
	ColumnTypeDate    ColumnType = "date"
	ColumnTypeString  ColumnType = "string"
)

// IsNumeric reports whether the column holds integers or floats.
func (t ColumnType) IsNumeric() bool {
	return t == ColumnTypeInteger || t == ColumnTypeFloat
}

package parser

import (
	"math"
	"strconv"
	"strings"

	"github.com/campaign-insights/backend/internal/models"
)

// InferColumnType guesses the type shared by every value of a column.
// Missing values are ignored; a column with no values is a string column.
func InferColumnType(values []string) models.ColumnType {
	seen := 0
	allInt, allFloat := true, true
	for _, raw := range values {
		if models.IsMissing(raw) {
			continue
		}
		seen++
		s := strings.TrimSpace(raw)
		if allInt && !isIntegerFast(s) {
			allInt = false
		}
		if allFloat {
			if _, ok := ParseFloat(s); !ok {
				allFloat = false
			}
		}
		if !allInt && !allFloat {
			break
		}
	}

	switch {
	case seen == 0:
		return models.ColumnTypeString
	case allInt:
		return models.ColumnTypeInteger
	case allFloat:
		return models.ColumnTypeFloat
	}

	if _, ok := DetectDateLayout(values); ok {
		return models.ColumnTypeDate
	}
	return models.ColumnTypeString
}

// isIntegerFast checks for an optionally signed decimal integer that fits in
// an int64, without regex.
func isIntegerFast(s string) bool {
	if len(s) == 0 {
		return false
	}
	i := 0
	if s[0] == '+' || s[0] == '-' {
		i++
		if i >= len(s) {
			return false
		}
	}
	for ; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

// ParseFloat parses a finite decimal number. Textual infinities and NaN are
// rejected.
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+' || c == 'e' || c == 'E') {
			return 0, false
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

package parser

import (
	"strings"
	"time"

	"github.com/campaign-insights/backend/internal/models"
)

// dateLayouts are tried in order. ISO forms come first, then month-first,
// then day-first, so an ambiguous column such as 03/04/2024 resolves to
// March 4th for every row.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"2006/1/2",

	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
	"01-02-2006",
	"1-2-2006",
	"01-02-06",
	"1/2/06 15:04",
	"1/2/06",

	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	"02.01.2006",
	"2.1.2006",
	"02-01-06",
	"2/1/06",

	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"02-Jan-2006",
	"02-Jan-06",
	"2-Jan-06",
}

// DetectDateLayout returns the first layout that parses every non-missing
// value. When no single layout fits but every value parses with some layout
// it returns "" and true, and callers fall back to ParseDate per value.
func DetectDateLayout(values []string) (string, bool) {
	var present []string
	for _, v := range values {
		if !models.IsMissing(v) {
			present = append(present, strings.TrimSpace(v))
		}
	}
	if len(present) == 0 {
		return "", false
	}

	for _, layout := range dateLayouts {
		if allParse(present, layout) {
			return layout, true
		}
	}

	for _, v := range present {
		if _, ok := ParseDate(v, ""); !ok {
			return "", false
		}
	}
	return "", true
}

// ParseDate parses s with layout, or with the first matching known layout
// when layout is empty or does not fit.
func ParseDate(s, layout string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if layout != "" {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func allParse(values []string, layout string) bool {
	for _, v := range values {
		if _, err := time.Parse(layout, v); err != nil {
			return false
		}
	}
	return true
}

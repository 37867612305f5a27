package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/campaign-insights/backend/internal/models"
)

// ErrUnsupportedFormat is returned when no parser handles a file extension.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Parser defines the interface for tabular file parsers.
type Parser interface {
	// Name returns the unique name of the parser.
	Name() string
	// Format is the file format this parser reads.
	Format() models.FileFormat
	// Parse reads the first sheet (or the whole file) into a table whose
	// first non-blank row is the header.
	Parse(filePath string) (*models.Dataset, error)
}

// buildTable turns raw records into a dataset. Blank records are skipped, the
// first remaining record is the header. Short rows are padded with empty
// cells. Long rows are an error when strict, otherwise the header is widened
// with unnamed columns.
func buildTable(records [][]string, strict bool) (*models.Dataset, error) {
	var header []string
	rows := make([][]string, 0, len(records))
	cells := newCellIntern()

	for i, rec := range records {
		if isBlank(rec) {
			continue
		}
		if header == nil {
			header = append([]string(nil), rec...)
			continue
		}
		if len(rec) > len(header) {
			extra := trimTrailingEmpty(rec)
			if len(extra) > len(header) {
				if strict {
					return nil, fmt.Errorf("line %d: expected %d fields, saw %d", i+1, len(header), len(extra))
				}
				for len(header) < len(extra) {
					header = append(header, "")
				}
			}
			rec = extra
		}
		cells.internRow(rec)
		rows = append(rows, rec)
	}

	if header == nil {
		return nil, errors.New("no columns to parse from file")
	}

	for i, row := range rows {
		if len(row) < len(header) {
			padded := make([]string, len(header))
			copy(padded, row)
			rows[i] = padded
		}
	}

	return &models.Dataset{Columns: NormalizeHeader(header), Rows: rows}, nil
}

// NormalizeHeader names empty header cells "Unnamed: <index>" and suffixes
// repeated names with ".1", ".2", ...
func NormalizeHeader(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		out[i] = name
	}
	for _, name := range out {
		seen[name] = 0
	}

	used := make(map[string]struct{}, len(out))
	for i, name := range out {
		if _, dup := used[name]; !dup {
			used[name] = struct{}{}
			continue
		}
		n := seen[name]
		candidate := name
		for {
			n++
			candidate = name + "." + strconv.Itoa(n)
			if _, taken := used[candidate]; !taken {
				break
			}
		}
		seen[name] = n
		used[candidate] = struct{}{}
		out[i] = candidate
	}
	return out
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func trimTrailingEmpty(rec []string) []string {
	n := len(rec)
	for n > 0 && strings.TrimSpace(rec[n-1]) == "" {
		n--
	}
	return rec[:n]
}

package parser

import (
	"fmt"

	"github.com/campaign-insights/backend/internal/models"
)

// Registry maps file formats to parsers.
type Registry struct {
	parsers []Parser
}

// NewRegistry returns a registry with the CSV, XLSX and XLS parsers.
func NewRegistry() *Registry {
	return &Registry{
		parsers: []Parser{
			NewCSVParser(),
			NewXLSXParser(),
			NewXLSParser(),
		},
	}
}

// FindParser returns the parser for the file's extension.
func (r *Registry) FindParser(fileName string) (Parser, error) {
	format := models.FormatFromName(fileName)
	for _, p := range r.parsers {
		if p.Format() == format {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, fileName)
}

package parser

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/campaign-insights/backend/internal/models"
)

// XLSXParser reads the first sheet of an Office Open XML workbook.
type XLSXParser struct{}

func NewXLSXParser() *XLSXParser {
	return &XLSXParser{}
}

func (p *XLSXParser) Name() string {
	return "xlsx"
}

func (p *XLSXParser) Format() models.FileFormat {
	return models.FormatXLSX
}

func (p *XLSXParser) Parse(filePath string) (*models.Dataset, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheets[0], err)
	}

	return buildTable(rows, false)
}

package parser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/campaign-insights/backend/internal/models"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVParser reads comma separated files with a header row.
type CSVParser struct{}

func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

func (p *CSVParser) Name() string {
	return "csv"
}

func (p *CSVParser) Format() models.FileFormat {
	return models.FormatCSV
}

func (p *CSVParser) Parse(filePath string) (*models.Dataset, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	br := bufio.NewReader(file)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	r := csv.NewReader(br)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var records [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv: %w", err)
		}
		records = append(records, rec)
	}

	ds, err := buildTable(records, true)
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	return ds, nil
}

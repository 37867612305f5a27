package parser

// maxInternedCells caps the per-file pool. Columns of free text stop being
// deduplicated once the cap is reached.
const maxInternedCells = 200000

// cellIntern deduplicates repeated cell values (campaign, channel, date)
// within one file. Not safe for concurrent use; each parse owns one.
type cellIntern struct {
	pool map[string]string
}

func newCellIntern() *cellIntern {
	return &cellIntern{pool: make(map[string]string, 1024)}
}

// intern returns the canonical copy of s.
func (ci *cellIntern) intern(s string) string {
	if pooled, ok := ci.pool[s]; ok {
		return pooled
	}
	if len(ci.pool) >= maxInternedCells {
		return s
	}
	ci.pool[s] = s
	return s
}

// internRow replaces every cell of row with its canonical copy.
func (ci *cellIntern) internRow(row []string) {
	for i, v := range row {
		row[i] = ci.intern(v)
	}
}

func (ci *cellIntern) len() int {
	return len(ci.pool)
}

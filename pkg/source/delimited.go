package source

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ekaya-inc/ekaya-etl/pkg/models"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// candidateDelimiters are tried when sniffing a CSV header line.
var candidateDelimiters = []rune{',', ';', '\t', '|'}

// parseDelimited reads a header row followed by data rows. A zero delimiter
// is sniffed from the header line. Short rows are padded with nulls; rows
// with extra fields are rejected.
func parseDelimited(data []byte, delimiter rune) (*models.Dataset, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return &models.Dataset{}, nil
	}
	if delimiter == 0 {
		delimiter = sniffDelimiter(data)
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	headers, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	names := normalizeHeaders(headers)

	columns := make([]models.Column, len(names))
	for i, n := range names {
		columns[i] = models.Column{Name: n, Values: make([]any, 0, 256)}
	}

	line := 1
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" && len(names) > 1 {
			continue
		}
		if len(rec) > len(names) {
			return nil, fmt.Errorf("row %d has %d fields, expected %d", line, len(rec), len(names))
		}
		for i := range columns {
			if i < len(rec) {
				columns[i].Values = append(columns[i].Values, strings.TrimSpace(rec[i]))
			} else {
				columns[i].Values = append(columns[i].Values, nil)
			}
		}
	}

	return &models.Dataset{Columns: columns}, nil
}

// sniffDelimiter picks the candidate that occurs most often on the first line.
func sniffDelimiter(data []byte) rune {
	first := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		first = data[:i]
	}
	best, bestCount := ',', 0
	for _, d := range candidateDelimiters {
		if n := bytes.Count(first, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

// normalizeHeaders trims names, names blank headers by position and
// suffixes duplicates with ".1", ".2" and so on.
func normalizeHeaders(headers []string) []string {
	out := make([]string, len(headers))
	seen := make(map[string]int, len(headers))
	for i, h := range headers {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("unnamed_%d", i)
		}
		if n, dup := seen[name]; dup {
			base := name
			for {
				n++
				name = fmt.Sprintf("%s.%d", base, n)
				if _, taken := seen[name]; !taken {
					break
				}
			}
			seen[base] = n
		}
		seen[name] = 0
		out[i] = name
	}
	return out
}

package source

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ekaya-inc/ekaya-etl/pkg/models"
)

// recordSet accumulates JSON objects into columns, keeping keys in first-seen
// order. Keys missing from a record become nulls.
type recordSet struct {
	order  []string
	index  map[string]int
	values [][]any
	rows   int
}

func newRecordSet() *recordSet {
	return &recordSet{index: make(map[string]int)}
}

func (rs *recordSet) add(keys []string, record map[string]any) {
	for _, k := range keys {
		if _, ok := rs.index[k]; ok {
			continue
		}
		rs.index[k] = len(rs.order)
		rs.order = append(rs.order, k)
		rs.values = append(rs.values, make([]any, rs.rows))
	}
	for k, i := range rs.index {
		v, ok := record[k]
		if !ok {
			v = nil
		}
		rs.values[i] = append(rs.values[i], normalizeJSONValue(v))
	}
	rs.rows++
}

func (rs *recordSet) dataset() *models.Dataset {
	columns := make([]models.Column, len(rs.order))
	for i, name := range rs.order {
		columns[i] = models.Column{Name: name, Values: rs.values[i]}
	}
	return &models.Dataset{Columns: columns}
}

// normalizeJSONValue converts decoded numbers to int64 or float64 and
// flattens nested structures to their JSON text.
func normalizeJSONValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return v
	}
}

// decodeObject reads one JSON object, returning its keys in document order.
func decodeObject(dec *json.Decoder) ([]string, map[string]any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected object, got %v", tok)
	}

	var keys []string
	record := make(map[string]any)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected object key, got %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, nil, fmt.Errorf("decode field %q: %w", key, err)
		}
		if _, dup := record[key]; !dup {
			keys = append(keys, key)
		}
		record[key] = v
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return keys, record, nil
}

// parseJSONArray reads a top-level array of objects.
func parseJSONArray(data []byte) (*models.Dataset, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read array start: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, fmt.Errorf("expected array of objects, got %v", tok)
	}

	rs := newRecordSet()
	for i := 0; dec.More(); i++ {
		keys, record, err := decodeObject(dec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		rs.add(keys, record)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("read array end: %w", err)
	}
	return rs.dataset(), nil
}

// parseNDJSON reads one object per line, skipping blank lines.
func parseNDJSON(data []byte) (*models.Dataset, error) {
	rs := newRecordSet()
	reader := bufio.NewReader(bytes.NewReader(data))
	for line := 1; ; line++ {
		raw, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(raw)) > 0 {
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.UseNumber()
			keys, record, derr := decodeObject(dec)
			if derr != nil {
				return nil, fmt.Errorf("line %d: %w", line, derr)
			}
			rs.add(keys, record)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
	}
	return rs.dataset(), nil
}

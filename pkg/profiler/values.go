package profiler

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-etl/pkg/models"
)

// boolTokens is the fixed token set recognized as boolean text.
var boolTokens = map[string]bool{
	"true":  true,
	"false": false,
	"yes":   true,
	"no":    false,
	"t":     true,
	"f":     false,
	"y":     true,
	"n":     false,
}

// dateLayouts is tried in order; the first layout that parses wins.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"02/01/2006",
	"02.01.2006 15:04:05",
	"02.01.2006",
	"02-Jan-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	time.RFC1123,
	time.RFC1123Z,
}

// cell is a classified non-null value.
type cell struct {
	kind   models.InferredType
	i      int64
	f      float64
	b      bool
	t      time.Time
	s      string
	layout string
}

// classify assigns a single non-null value to a type, trying integer, float,
// boolean and datetime before falling back to text.
func classify(v any) cell {
	switch t := v.(type) {
	case bool:
		return cell{kind: models.TypeBoolean, b: t, s: strconv.FormatBool(t)}
	case int:
		return intCell(int64(t))
	case int8:
		return intCell(int64(t))
	case int16:
		return intCell(int64(t))
	case int32:
		return intCell(int64(t))
	case int64:
		return intCell(t)
	case uint8:
		return intCell(int64(t))
	case uint16:
		return intCell(int64(t))
	case uint32:
		return intCell(int64(t))
	case uint:
		if t > math.MaxInt64 {
			return floatCell(float64(t))
		}
		return intCell(int64(t))
	case uint64:
		if t > math.MaxInt64 {
			return floatCell(float64(t))
		}
		return intCell(int64(t))
	case float32:
		return floatCell(float64(t))
	case float64:
		return floatCell(t)
	case time.Time:
		return cell{kind: models.TypeDatetime, t: t, s: t.Format(time.RFC3339Nano), layout: time.RFC3339Nano}
	case json.Number:
		return classifyString(t.String())
	case string:
		return classifyString(t)
	case *string:
		return classifyString(*t)
	default:
		return classifyString(fmt.Sprint(t))
	}
}

func intCell(i int64) cell {
	return cell{kind: models.TypeInteger, i: i, f: float64(i), s: strconv.FormatInt(i, 10)}
}

func floatCell(f float64) cell {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return cell{kind: models.TypeText, s: strconv.FormatFloat(f, 'g', -1, 64)}
	}
	return cell{kind: models.TypeFloat, f: f, s: strconv.FormatFloat(f, 'g', -1, 64)}
}

func classifyString(raw string) cell {
	s := strings.TrimSpace(raw)

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		c := intCell(i)
		c.s = s
		return c
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) && !strings.HasPrefix(strings.ToLower(strings.TrimLeft(s, "+-")), "0x") {
		c := floatCell(f)
		c.s = s
		return c
	}
	if b, ok := boolTokens[strings.ToLower(s)]; ok {
		return cell{kind: models.TypeBoolean, b: b, s: s}
	}
	if t, layout, ok := parseDate(s); ok {
		return cell{kind: models.TypeDatetime, t: t, s: s, layout: layout}
	}
	return cell{kind: models.TypeText, s: s}
}

// parseDate tries every layout in order. It never fails loudly; ok is false
// when nothing matches.
func parseDate(s string) (time.Time, string, bool) {
	if len(s) < 6 || !strings.ContainsAny(s, "0123456789") {
		return time.Time{}, "", false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, layout, true
		}
	}
	return time.Time{}, "", false
}

// parseDateValue applies parseDate to any raw value.
func parseDateValue(v any) (string, bool) {
	switch t := v.(type) {
	case time.Time:
		return time.RFC3339Nano, true
	case string:
		_, layout, ok := parseDate(strings.TrimSpace(t))
		return layout, ok
	case *string:
		if t == nil {
			return "", false
		}
		return parseDateValue(*t)
	default:
		return "", false
	}
}

// distinctKey returns the identity used for distinct counting. Integers and
// floats share a key space in float columns so 1 and 1.0 collapse.
func (c cell) distinctKey(colType models.InferredType) string {
	switch c.kind {
	case models.TypeInteger:
		if colType == models.TypeFloat {
			return "n:" + strconv.FormatFloat(c.f, 'g', -1, 64)
		}
		return "i:" + strconv.FormatInt(c.i, 10)
	case models.TypeFloat:
		return "n:" + strconv.FormatFloat(c.f, 'g', -1, 64)
	case models.TypeBoolean:
		return "b:" + strconv.FormatBool(c.b)
	case models.TypeDatetime:
		return "t:" + c.t.UTC().Format(time.RFC3339Nano)
	default:
		return "s:" + c.s
	}
}

package processors

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/username/conciliador/src/models"
	"github.com/username/conciliador/src/utils"
)

// fieldSet is a flattened raw record with accent- and case-insensitive lookup.
type fieldSet struct {
	values map[string]any
	folded map[string]string
}

func newFieldSet(raw models.RawRecord) fieldSet {
	values := make(map[string]any, len(raw))
	flattenInto(values, "", raw)
	folded := make(map[string]string, len(values))
	for k := range values {
		fk := utils.FoldText(k)
		if _, taken := folded[fk]; !taken {
			folded[fk] = k
		}
	}
	return fieldSet{values: values, folded: folded}
}

func flattenInto(dst map[string]any, prefix string, src map[string]any) {
	for k, v := range src {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch nested := v.(type) {
		case map[string]any:
			flattenInto(dst, key, nested)
		case models.RawRecord:
			flattenInto(dst, key, nested)
		default:
			dst[key] = v
		}
	}
}

// FlattenRecord exposes the dotted-key form of a nested record.
func FlattenRecord(raw models.RawRecord) models.RawRecord {
	out := make(models.RawRecord, len(raw))
	flattenInto(out, "", raw)
	return out
}

func (f fieldSet) has(name string) bool {
	_, ok := f.lookup(name)
	return ok
}

func (f fieldSet) lookup(name string) (any, bool) {
	if name == "" {
		return nil, false
	}
	if v, ok := f.values[name]; ok {
		return v, true
	}
	if k, ok := f.folded[utils.FoldText(name)]; ok {
		return f.values[k], true
	}
	return nil, false
}

// text returns the trimmed string form of a field, "" when absent or null.
func (f fieldSet) text(name string) string {
	v, ok := f.lookup(name)
	if !ok {
		return ""
	}
	return valueText(v)
}

func (f fieldSet) keys() []string {
	keys := make([]string, 0, len(f.values))
	for k := range f.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func valueText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(time.RFC3339)
	}
	return ""
}

// numberValue coerces a raw value to float64. JSON numbers are taken as-is;
// strings go through locale-aware parsing.
func numberValue(v any) (float64, bool) {
	switch val := v.(type) {
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		return utils.ParseLocaleFloat(val)
	}
	return 0, false
}

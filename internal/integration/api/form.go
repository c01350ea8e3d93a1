package api

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
)

// EncodeForm flattens nested maps and slices into url-encoded form values
// using bracket notation: {"items": [{"price": "p_1"}]} becomes
// items[0][price]=p_1. Nil values are skipped.
func EncodeForm(fields map[string]any) url.Values {
	values := url.Values{}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		encodeFormValue(values, k, fields[k])
	}
	return values
}

func encodeFormValue(values url.Values, key string, v any) {
	switch val := v.(type) {
	case nil:
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			encodeFormValue(values, fmt.Sprintf("%s[%s]", key, k), val[k])
		}
	case map[string]string:
		for k, s := range val {
			values.Add(fmt.Sprintf("%s[%s]", key, k), s)
		}
	case []any:
		for i, item := range val {
			encodeFormValue(values, fmt.Sprintf("%s[%d]", key, i), item)
		}
	case []string:
		for i, item := range val {
			values.Add(fmt.Sprintf("%s[%d]", key, i), item)
		}
	case []map[string]any:
		for i, item := range val {
			encodeFormValue(values, fmt.Sprintf("%s[%d]", key, i), item)
		}
	case string:
		values.Add(key, val)
	case bool:
		values.Add(key, strconv.FormatBool(val))
	case float64:
		values.Add(key, strconv.FormatFloat(val, 'f', -1, 64))
	case int:
		values.Add(key, strconv.Itoa(val))
	case int64:
		values.Add(key, strconv.FormatInt(val, 10))
	default:
		values.Add(key, fmt.Sprint(val))
	}
}

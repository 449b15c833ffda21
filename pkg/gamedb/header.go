package gamedb

import "strings"

// HeaderField is one key:value pair of a message header.
type HeaderField struct {
	Key   string
	Value string
}

// ParseHeader splits a "key:value;key:value" header into a map. Pairs
// without a colon are skipped; only the first colon separates key and value.
func ParseHeader(header string) map[string]string {
	out := make(map[string]string)
	if header == "" {
		return out
	}
	for _, part := range strings.Split(header, ";") {
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(value)
	}
	return out
}

// FormatHeader builds a header string from ordered fields, dropping empty
// values.
func FormatHeader(fields ...HeaderField) string {
	var parts []string
	for _, f := range fields {
		if f.Value == "" {
			continue
		}
		// ';' would split the field on reparse.
		v := strings.ReplaceAll(f.Value, ";", ",")
		parts = append(parts, f.Key+":"+v)
	}
	return strings.Join(parts, ";")
}

// SetHeaderField replaces key's value in header, keeping field order, or
// appends the field if it is missing.
func SetHeaderField(header, key, value string) string {
	var fields []HeaderField
	found := false
	for _, part := range strings.Split(header, ";") {
		k, v, ok := strings.Cut(part, ":")
		if !ok || strings.TrimSpace(k) == "" {
			continue
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == key {
			v, found = value, true
		}
		fields = append(fields, HeaderField{Key: k, Value: v})
	}
	if !found {
		fields = append(fields, HeaderField{Key: key, Value: value})
	}
	return FormatHeader(fields...)
}

// HeaderValue returns one field of a message header.
func (m *Message) HeaderValue(key string) string {
	return ParseHeader(m.Header)[key]
}

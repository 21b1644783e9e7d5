package transform

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ToonResult reports the outcome of re-encoding structured tool-result
// payloads into token-oriented notation. CostSavings stays nil when the
// target model has no price entry.
type ToonResult struct {
	TokensBefore int      `json:"tokens_before"`
	TokensAfter  int      `json:"tokens_after"`
	CostSavings  *float64 `json:"cost_savings,omitempty"`
}

// TokensSaved returns the token delta, never negative.
func (r ToonResult) TokensSaved() int {
	if r.TokensBefore <= r.TokensAfter {
		return 0
	}
	return r.TokensBefore - r.TokensAfter
}

// EncodeToon re-encodes a JSON document into token-oriented object notation:
// unquoted keys, indentation instead of braces, scalar arrays inlined, and
// arrays of uniform flat objects folded into a header row plus CSV-style
// rows. Document key order is preserved.
//
// Returns false when the input is not a JSON object or array.
func EncodeToon(raw []byte) (string, bool) {
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() && !doc.IsArray() {
		return "", false
	}

	var sb strings.Builder
	if doc.IsObject() {
		writeObject(&sb, doc, 0)
	} else {
		writeArrayEntry(&sb, "", doc, 0)
	}
	return strings.TrimRight(sb.String(), "\n"), true
}

func writeObject(sb *strings.Builder, obj gjson.Result, indent int) {
	obj.ForEach(func(key, value gjson.Result) bool {
		writeEntry(sb, key.String(), value, indent)
		return true
	})
}

func writeEntry(sb *strings.Builder, key string, value gjson.Result, indent int) {
	switch {
	case value.IsObject():
		pad(sb, indent)
		sb.WriteString(encodeKey(key))
		sb.WriteString(":\n")
		writeObject(sb, value, indent+1)
	case value.IsArray():
		writeArrayEntry(sb, key, value, indent)
	default:
		pad(sb, indent)
		sb.WriteString(encodeKey(key))
		sb.WriteString(": ")
		sb.WriteString(encodeScalar(value))
		sb.WriteByte('\n')
	}
}

func writeArrayEntry(sb *strings.Builder, key string, arr gjson.Result, indent int) {
	items := arr.Array()
	prefix := ""
	if key != "" {
		prefix = encodeKey(key)
	}

	if fields, ok := tabularFields(items); ok {
		pad(sb, indent)
		fmt.Fprintf(sb, "%s[%d]{%s}:\n", prefix, len(items), strings.Join(fields, ","))
		for _, item := range items {
			pad(sb, indent+1)
			cells := make([]string, 0, len(fields))
			for _, f := range fields {
				cells = append(cells, encodeScalar(item.Get(escapePath(f))))
			}
			sb.WriteString(strings.Join(cells, ","))
			sb.WriteByte('\n')
		}
		return
	}

	if allScalars(items) {
		pad(sb, indent)
		cells := make([]string, 0, len(items))
		for _, item := range items {
			cells = append(cells, encodeScalar(item))
		}
		fmt.Fprintf(sb, "%s[%d]: %s\n", prefix, len(items), strings.Join(cells, ","))
		return
	}

	pad(sb, indent)
	fmt.Fprintf(sb, "%s[%d]:\n", prefix, len(items))
	for _, item := range items {
		switch {
		case item.IsObject():
			pad(sb, indent+1)
			sb.WriteString("-\n")
			writeObject(sb, item, indent+2)
		case item.IsArray():
			writeArrayEntry(sb, "-", item, indent+1)
		default:
			pad(sb, indent+1)
			sb.WriteString("- ")
			sb.WriteString(encodeScalar(item))
			sb.WriteByte('\n')
		}
	}
}

// tabularFields reports whether every item is an object with the same
// scalar-only field set, in which case the array folds into tabular form.
func tabularFields(items []gjson.Result) ([]string, bool) {
	if len(items) == 0 {
		return nil, false
	}
	var fields []string
	for i, item := range items {
		if !item.IsObject() {
			return nil, false
		}
		var keys []string
		scalarOnly := true
		item.ForEach(func(key, value gjson.Result) bool {
			if value.IsObject() || value.IsArray() {
				scalarOnly = false
				return false
			}
			keys = append(keys, key.String())
			return true
		})
		if !scalarOnly {
			return nil, false
		}
		if i == 0 {
			fields = keys
			continue
		}
		if len(keys) != len(fields) {
			return nil, false
		}
		for j := range keys {
			if keys[j] != fields[j] {
				return nil, false
			}
		}
	}
	return fields, true
}

func allScalars(items []gjson.Result) bool {
	for _, item := range items {
		if item.IsObject() || item.IsArray() {
			return false
		}
	}
	return true
}

func pad(sb *strings.Builder, indent int) {
	for i := 0; i < indent; i++ {
		sb.WriteString("  ")
	}
}

// encodeKey leaves plain keys bare and quotes the rest.
func encodeKey(key string) string {
	if key == "" || needsQuoting(key) {
		return strconv.Quote(key)
	}
	return key
}

// encodeScalar renders a scalar value. Strings stay bare unless they would be
// ambiguous in comma/colon-delimited context.
func encodeScalar(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		s := v.String()
		if s == "" || needsQuoting(s) {
			return strconv.Quote(s)
		}
		return s
	case gjson.Null:
		return "null"
	default:
		return v.Raw
	}
}

func needsQuoting(s string) bool {
	if strings.TrimSpace(s) != s {
		return true
	}
	return strings.ContainsAny(s, ",:\"\n\r{}[]")
}

// escapePath quotes gjson path metacharacters in a literal field name.
func escapePath(field string) string {
	var sb strings.Builder
	for _, r := range field {
		switch r {
		case '.', '*', '?', '#', '@', '\\', '|':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

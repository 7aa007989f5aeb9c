package lti

import (
	"strings"
)

// ParseCustom splits a custom parameter setting into name/value pairs.
//
// Entries are separated by an unescaped ';' or by line breaks. "\;", "\""
// and "\\" unescape to the literal character; any other backslash pair is
// kept as written. Each entry is trimmed and split at its first '='. An entry
// without '=' yields an empty value. Empty entries and names are skipped.
func ParseCustom(s string) []Param {
	var (
		out []Param
		cur strings.Builder
	)
	flush := func() {
		entry := strings.TrimSpace(cur.String())
		cur.Reset()
		if entry == "" {
			return
		}
		name, value := entry, ""
		if i := strings.IndexByte(entry, '='); i >= 0 {
			name, value = strings.TrimSpace(entry[:i]), strings.TrimSpace(entry[i+1:])
		}
		if name == "" {
			return
		}
		out = append(out, Param{Name: name, Value: value})
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			next := s[i+1]
			if next == ';' || next == '"' || next == '\\' {
				cur.WriteByte(next)
			} else {
				cur.WriteByte(c)
				cur.WriteByte(next)
			}
			i++
		case c == ';' || c == '\n' || c == '\r':
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return out
}

// CustomParamName is the launch parameter name for a custom entry:
// "custom_" plus the lower-cased name with every character outside
// [a-z0-9] replaced by '_'.
func CustomParamName(name string) string {
	var b strings.Builder
	b.WriteString("custom_")
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// DecodeToolCustom reverses the line-break encoding used when the tool's
// custom setting is persisted.
func DecodeToolCustom(s string) string {
	return strings.ReplaceAll(s, "&#13;&#10;", "\r\n")
}

// addCustom applies pairs to params. For LTI 1.3 the original name is
// also sent when it differs from the normalised one.
func addCustom(params *Params, pairs []Param, v13 bool) {
	for _, kv := range pairs {
		params.Set(CustomParamName(kv.Name), kv.Value)
		if v13 {
			if raw := "custom_" + kv.Name; raw != CustomParamName(kv.Name) {
				params.Set(raw, kv.Value)
			}
		}
	}
}

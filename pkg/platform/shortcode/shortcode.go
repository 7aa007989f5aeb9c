// Package shortcode parses and renders the embedded link tag
//
//	[lti-platform tool=code id=linkid ...]link text[/lti-platform]
//
// that pages use to place tool links.
package shortcode

import (
	"errors"
	"strings"

	"github.com/mind-engage/lti-platform/pkg/platform/lti"
)

// Tag is the shortcode name.
const Tag = "lti-platform"

var (
	ErrNotFound    = errors.New("shortcode: link not found")
	ErrDuplicateID = errors.New("shortcode: duplicate id attribute in link")
)

// Shortcode is one parsed tag. Start and End are byte offsets of the whole
// tag, closing tag included, in the parsed content.
type Shortcode struct {
	Attrs map[string]string
	Text  string
	Start int
	End   int
}

// Attr returns the named attribute or "".
func (s Shortcode) Attr(name string) string { return s.Attrs[name] }

// LinkAttrs converts the tag to launch link attributes.
func (s Shortcode) LinkAttrs() lti.LinkAttrs {
	return lti.LinkAttrs{
		Tool:   s.Attr("tool"),
		ID:     s.Attr("id"),
		Custom: s.Attr("custom"),
		Target: s.Attr("target"),
		Width:  s.Attr("width"),
		Height: s.Attr("height"),
		Title:  s.Attr("title"),
		URL:    s.Attr("url"),
		Class:  s.Attr("class"),
		Style:  s.Attr("style"),
		Text:   s.Text,
	}
}

// Parse returns every tag in content in document order. A tag wrapped in
// doubled brackets, [[lti-platform ...]] or
// [[lti-platform ...]text[/lti-platform]], is escaped and skipped. A tag
// without a closing [/lti-platform] has no text.
func Parse(content string) []Shortcode {
	var (
		out  []Shortcode
		open = "[" + Tag
	)
	for pos := 0; pos < len(content); {
		i := strings.Index(content[pos:], open)
		if i < 0 {
			break
		}
		start := pos + i
		after := start + len(open)
		if after < len(content) && !isTagBoundary(content[after]) {
			pos = after
			continue
		}
		end, selfClosing, ok := attrEnd(content, after)
		if !ok {
			break
		}
		attrText := content[after:end]
		if selfClosing {
			attrText = strings.TrimSuffix(attrText, "/")
		}
		sc := Shortcode{Attrs: ParseAttrs(attrText), Start: start, End: end + 1}
		if !selfClosing {
			if text, closeEnd, found := closing(content, end+1); found {
				sc.Text = text
				sc.End = closeEnd
			}
		}
		if start > 0 && content[start-1] == '[' {
			if end+1 < len(content) && content[end+1] == ']' {
				pos = end + 1
				continue
			}
			if sc.End < len(content) && content[sc.End] == ']' {
				pos = sc.End + 1
				continue
			}
		}
		out = append(out, sc)
		pos = sc.End
	}
	return out
}

func isTagBoundary(c byte) bool {
	return c == ']' || c == '/' || c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// attrEnd finds the ']' closing the opening tag, skipping quoted values.
func attrEnd(s string, from int) (end int, selfClosing, ok bool) {
	var quote byte
	for i := from; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0 && c == '\\' && i+1 < len(s):
			i++
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == ']':
			return i, i > from && s[i-1] == '/', true
		}
	}
	return 0, false, false
}

// closing returns the text up to the matching [/lti-platform]. A new
// opening tag before the close means this tag has no text.
func closing(s string, from int) (text string, end int, ok bool) {
	closeTag := "[/" + Tag + "]"
	j := strings.Index(s[from:], closeTag)
	if j < 0 {
		return "", 0, false
	}
	if k := strings.Index(s[from:], "["+Tag); k >= 0 && k < j {
		return "", 0, false
	}
	return s[from : from+j], from + j + len(closeTag), true
}

// ParseAttrs parses name=value pairs. Values may be bare, single-quoted or
// double-quoted; inside double quotes \" and \\ are unescaped. Names are
// lower-cased. Values without a name are ignored.
func ParseAttrs(s string) map[string]string {
	attrs := map[string]string{}
	i := 0
	for i < len(s) {
		for i < len(s) && isSpace(s[i]) {
			i++
		}
		nameStart := i
		for i < len(s) && !isSpace(s[i]) && s[i] != '=' {
			i++
		}
		name := strings.ToLower(s[nameStart:i])
		if i >= len(s) || s[i] != '=' {
			continue
		}
		i++ // '='
		var value string
		switch {
		case i < len(s) && s[i] == '"':
			var b strings.Builder
			i++
			for i < len(s) && s[i] != '"' {
				if s[i] == '\\' && i+1 < len(s) && (s[i+1] == '"' || s[i+1] == '\\') {
					i++
				}
				b.WriteByte(s[i])
				i++
			}
			i++ // closing quote
			value = b.String()
		case i < len(s) && s[i] == '\'':
			i++
			vStart := i
			for i < len(s) && s[i] != '\'' {
				i++
			}
			value = s[vStart:i]
			i++
		default:
			vStart := i
			for i < len(s) && !isSpace(s[i]) {
				i++
			}
			value = s[vStart:i]
		}
		if name != "" {
			attrs[name] = value
		}
	}
	return attrs
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

// FindLink returns the tag in content whose id is id. Attribute values have
// "&amp;" decoded. When a second tag uses the same id the first tag is still
// returned, together with ErrDuplicateID.
func FindLink(content, id string) (Shortcode, error) {
	var (
		found Shortcode
		seen  bool
		err   error
	)
	for _, sc := range Parse(content) {
		if sc.Attr("id") == "" || sc.Attr("id") != id {
			continue
		}
		if seen {
			err = ErrDuplicateID
			break
		}
		found, seen = sc, true
	}
	if !seen {
		return Shortcode{}, ErrNotFound
	}
	for k, v := range found.Attrs {
		found.Attrs[k] = strings.ReplaceAll(v, "&amp;", "&")
	}
	return found, err
}

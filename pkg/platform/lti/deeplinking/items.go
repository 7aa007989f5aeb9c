// pkg/platform/lti/deeplinking/items.go
package deeplinking

import (
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrNoItems       = errors.New("deeplinking: no items returned")
	ErrMultipleItems = errors.New("deeplinking: more than one item returned")
	ErrWrongItemType = errors.New("deeplinking: item is not an lti link")
	ErrMalformed     = errors.New("deeplinking: malformed content items")
)

// Reason is the user-facing text for a content-item failure.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrNoItems):
		return "No items returned"
	case errors.Is(err, ErrMultipleItems):
		return "More than one item has been returned"
	case errors.Is(err, ErrWrongItemType):
		return "Item must be an LTI link or assignment"
	case errors.Is(err, ErrMalformed):
		return "Content items could not be read"
	case err == nil:
		return ""
	default:
		return "Unable to verify the message"
	}
}

// LinkAttrs is a selected content item in link-attribute form.
type LinkAttrs struct {
	Title  string
	URL    string
	Target string
	Width  string
	Height string
	Custom string // "key=value;key=value"
}

// HandleContentItemResponse extracts the single LTI link item from a
// content-item payload. raw is one of:
//   - a JSON string or []byte,
//   - a JSON-LD object with an "@graph" array (LTI 1.0 content_items),
//   - a []any of LTI 1.3 content items.
func HandleContentItemResponse(raw any) (LinkAttrs, error) {
	items, err := itemList(raw)
	if err != nil {
		return LinkAttrs{}, err
	}
	switch {
	case len(items) == 0:
		return LinkAttrs{}, ErrNoItems
	case len(items) > 1:
		return LinkAttrs{}, ErrMultipleItems
	}
	item, ok := items[0].(map[string]any)
	if !ok {
		return LinkAttrs{}, ErrWrongItemType
	}
	switch itemType(item) {
	case "LtiLinkItem", "LtiAssignmentItem":
		return fromJSONLD(item), nil
	case "ltiResourceLink":
		return fromLTI13(item), nil
	default:
		return LinkAttrs{}, ErrWrongItemType
	}
}

func itemList(raw any) ([]any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return decodeItems([]byte(v))
	case []byte:
		return decodeItems(v)
	case []any:
		return v, nil
	case []map[string]any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out, nil
	case map[string]any:
		g, ok := v["@graph"]
		if !ok {
			// a lone item
			return []any{v}, nil
		}
		list, _ := g.([]any)
		return list, nil
	default:
		return nil, ErrMalformed
	}
}

func decodeItems(b []byte) ([]any, error) {
	if strings.TrimSpace(string(b)) == "" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, ErrMalformed
	}
	return itemList(v)
}

func itemType(item map[string]any) string {
	if t := asString(item["@type"]); t != "" {
		return t
	}
	return asString(item["type"])
}

func fromJSONLD(item map[string]any) LinkAttrs {
	la := LinkAttrs{
		Title:  asString(item["title"]),
		URL:    asString(item["url"]),
		Custom: flattenCustom(item["custom"]),
	}
	if pa, ok := item["placementAdvice"].(map[string]any); ok {
		if t := asString(pa["presentationDocumentTarget"]); t != "" {
			la.Target = strings.TrimSpace(strings.Split(t, ",")[0])
			la.Width = asString(pa["displayWidth"])
			la.Height = asString(pa["displayHeight"])
		}
	}
	return la
}

func fromLTI13(item map[string]any) LinkAttrs {
	la := LinkAttrs{
		Title:  asString(item["title"]),
		URL:    asString(item["url"]),
		Custom: flattenCustom(item["custom"]),
	}
	for _, target := range []string{"iframe", "window"} {
		if m, ok := item[target].(map[string]any); ok {
			la.Target = target
			la.Width = asString(m["width"])
			la.Height = asString(m["height"])
			break
		}
	}
	return la
}

// flattenCustom renders a custom map as sorted "key=value" entries joined by
// ';'. Backslashes and ';' in values are escaped so ParseCustom restores them.
func flattenCustom(v any) string {
	switch m := v.(type) {
	case string:
		return m
	case map[string]any:
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			val := strings.ReplaceAll(asString(m[k]), `\`, `\\`)
			val = strings.ReplaceAll(val, ";", `\;`)
			parts = append(parts, k+"="+val)
		}
		return strings.Join(parts, ";")
	}
	return ""
}

// Attributes renders la as shortcode attributes, each with a leading space.
// Values containing a space, quote or backslash are double-quoted with '"'
// and '\' backslash-escaped.
func (la LinkAttrs) Attributes() string {
	var b strings.Builder
	add := func(name, value string) {
		if value == "" {
			return
		}
		b.WriteByte(' ')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(quoteAttr(value))
	}
	add("title", la.Title)
	add("url", la.URL)
	add("target", la.Target)
	if la.Target != "" {
		add("width", la.Width)
		add("height", la.Height)
	}
	add("custom", la.Custom)
	return b.String()
}

// Shortcode renders the complete embedded link for tool with link id and text.
func (la LinkAttrs) Shortcode(tool, id, text string) string {
	return "[lti-platform tool=" + quoteAttr(tool) + " id=" + quoteAttr(id) + la.Attributes() + "]" + text + "[/lti-platform]"
}

func quoteAttr(v string) string {
	if !strings.ContainsAny(v, " \"\\") {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

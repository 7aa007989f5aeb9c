package tool

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status is the persisted lifecycle of a tool document.
type Status string

const (
	StatusPublish Status = "publish" // enabled
	StatusDraft   Status = "draft"   // disabled
	StatusTrash   Status = "trash"   // deleted
)

// Record is the document a Store persists for one tool: a title (name),
// a slug (code), a status and a flat JSON object of settings.
type Record struct {
	ID       int64
	Scope    Scope
	Title    string
	Slug     string
	Status   Status
	Content  string
	Created  time.Time
	Modified time.Time
}

// Reserved setting keys carrying structured fields inside Record.Content.
const (
	keyKey              = "__key"
	keySecret           = "__secret"
	keyMessageURL       = "__messageUrl"
	keyUseContentItem   = "__useContentItem"
	keyContentItemURL   = "__contentItemUrl"
	keyInitiateLoginURL = "__initiateLoginUrl"
	keyRedirectionURIs  = "__redirectionUris"
	keyJKU              = "__jku"
	keyRSAKey           = "__rsaKey"
	keyLastAccess       = "__lastAccess"
	keyDebugMode        = "__debugMode"
)

const lastAccessLayout = "2006-01-02"

var reservedKeys = []string{
	keyKey, keySecret, keyMessageURL, keyUseContentItem, keyContentItemURL,
	keyInitiateLoginURL, keyRedirectionURIs, keyJKU, keyRSAKey, keyLastAccess, keyDebugMode,
}

// Encode serializes t. Structured fields go under the reserved keys; empty
// values are omitted.
func Encode(t Tool) (Record, error) {
	doc := make(map[string]string, len(t.Settings)+len(reservedKeys))
	for k, v := range t.Settings {
		if v != "" {
			doc[k] = v
		}
	}
	for _, k := range reservedKeys {
		delete(doc, k)
	}
	put := func(k, v string) {
		if v != "" {
			doc[k] = v
		}
	}
	put(keyKey, t.Key)
	put(keySecret, t.Secret)
	put(keyMessageURL, t.MessageURL)
	if t.UseContentItem {
		doc[keyUseContentItem] = "true"
	}
	put(keyContentItemURL, t.ContentItemURL)
	put(keyInitiateLoginURL, t.InitiateLoginURL)
	if len(t.RedirectionURIs) > 0 {
		// json.Marshal writes '&' as \u0026, so "&quot;" never occurs in b.
		b, err := json.Marshal(t.RedirectionURIs)
		if err != nil {
			return Record{}, fmt.Errorf("tool: encode redirection uris: %w", err)
		}
		doc[keyRedirectionURIs] = strings.ReplaceAll(string(b), `"`, "&quot;")
	}
	put(keyJKU, t.JKU)
	put(keyRSAKey, strings.ReplaceAll(t.RSAKey, "\r\n", "&#13;&#10;"))
	if !t.LastAccess.IsZero() {
		doc[keyLastAccess] = t.LastAccess.UTC().Format(lastAccessLayout)
	}
	if t.DebugMode {
		doc[keyDebugMode] = "true"
	}

	content, err := json.Marshal(doc)
	if err != nil {
		return Record{}, fmt.Errorf("tool: encode settings: %w", err)
	}
	return Record{
		ID:       t.ID,
		Scope:    t.Scope,
		Title:    t.Name,
		Slug:     t.Code,
		Status:   statusOf(t),
		Content:  string(content),
		Created:  t.Created,
		Modified: t.Updated,
	}, nil
}

// Decode rebuilds a tool from its document. Content that is not a JSON
// object yields a tool with no settings.
func Decode(r Record) (Tool, error) {
	t := Tool{
		ID:       r.ID,
		Scope:    r.Scope,
		Name:     r.Title,
		Code:     r.Slug,
		Deleted:  r.Status == StatusTrash,
		Enabled:  r.Status == StatusPublish,
		Created:  r.Created,
		Updated:  r.Modified,
		Settings: map[string]string{},
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(r.Content), &raw); err != nil {
		raw = nil
	}
	for k, v := range raw {
		if s, ok := settingString(v); ok && s != "" {
			t.Settings[k] = s
		}
	}

	take := func(k string) string {
		v := t.Settings[k]
		delete(t.Settings, k)
		return v
	}
	t.Key = take(keyKey)
	t.Secret = take(keySecret)
	t.MessageURL = take(keyMessageURL)
	t.UseContentItem = take(keyUseContentItem) == "true"
	t.ContentItemURL = take(keyContentItemURL)
	t.InitiateLoginURL = take(keyInitiateLoginURL)
	if v := take(keyRedirectionURIs); v != "" {
		var uris []string
		if err := json.Unmarshal([]byte(strings.ReplaceAll(v, "&quot;", `"`)), &uris); err == nil && len(uris) > 0 {
			t.RedirectionURIs = uris
		}
	}
	t.JKU = take(keyJKU)
	t.RSAKey = strings.ReplaceAll(take(keyRSAKey), "&#13;&#10;", "\r\n")
	if v := take(keyLastAccess); v != "" {
		if day, err := parseLastAccess(v); err == nil {
			t.LastAccess = day
		}
	}
	t.DebugMode = take(keyDebugMode) == "true"
	return t, nil
}

func statusOf(t Tool) Status {
	switch {
	case t.Deleted:
		return StatusTrash
	case t.Enabled:
		return StatusPublish
	default:
		return StatusDraft
	}
}

// parseLastAccess accepts the date layout and a full timestamp, as older
// documents carried one.
func parseLastAccess(v string) (time.Time, error) {
	if d, err := time.ParseInLocation(lastAccessLayout, v, time.UTC); err == nil {
		return d, nil
	}
	ts, err := time.Parse("2006-01-02 15:04:05", v)
	if err != nil {
		return time.Time{}, err
	}
	return Day(ts), nil
}

// settingString flattens a decoded JSON value into a setting string.
func settingString(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}

// Day truncates ts to UTC midnight.
func Day(ts time.Time) time.Time {
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StampLastAccess sets the last-access day inside a stored document and
// leaves every other key as it was. It reports false with content unchanged
// when the document already carries day or a later one.
func StampLastAccess(content string, day time.Time) (string, bool, error) {
	doc := map[string]json.RawMessage{}
	if strings.TrimSpace(content) != "" {
		if err := json.Unmarshal([]byte(content), &doc); err != nil {
			return content, false, fmt.Errorf("tool: decode document: %w", err)
		}
		if doc == nil {
			doc = map[string]json.RawMessage{}
		}
	}
	day = Day(day)
	if raw, ok := doc[keyLastAccess]; ok {
		var v string
		if json.Unmarshal(raw, &v) == nil {
			if prev, err := parseLastAccess(v); err == nil && !prev.Before(day) {
				return content, false, nil
			}
		}
	}
	stamp, err := json.Marshal(day.Format(lastAccessLayout))
	if err != nil {
		return content, false, err
	}
	doc[keyLastAccess] = stamp
	b, err := json.Marshal(doc)
	if err != nil {
		return content, false, err
	}
	return string(b), true, nil
}

package lti

import (
	"bytes"
	"html/template"
	"net/http"
)

var autoSubmitTpl = template.Must(template.New("autosubmit").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>LTI Launch</title></head>
<body onload="document.forms[0].submit()">
<form method="post" action="{{.Action}}"{{if .Target}} target="{{.Target}}"{{end}} encType="application/x-www-form-urlencoded">
{{- range .Fields}}
  <input type="hidden" name="{{.Name}}" value="{{.Value}}">
{{- end}}
  <noscript><button type="submit">Continue</button></noscript>
</form>
</body></html>`))

// RenderAutoSubmitForm returns an HTML page that POSTs fields to action as
// soon as it loads.
func RenderAutoSubmitForm(action, target string, fields []Param) ([]byte, error) {
	var buf bytes.Buffer
	err := autoSubmitTpl.Execute(&buf, struct {
		Action string
		Target string
		Fields []Param
	}{action, target, fields})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteAutoSubmitForm writes RenderAutoSubmitForm to w.
func WriteAutoSubmitForm(w http.ResponseWriter, action, target string, fields []Param) error {
	page, err := RenderAutoSubmitForm(action, target, fields)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, err = w.Write(page)
	return err
}

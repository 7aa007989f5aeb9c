package lti

import (
	"net/http"
	"text/template"
)

// The platform storage helper answers a tool frame's postMessage requests
// (lti.capabilities, lti.put_data, lti.get_data) using the browser's
// sessionStorage, keyed by the tool's origin.
var storageJSTpl = template.Must(template.New("storagejs").Parse(`(function () {
  var prefix = '{{.Prefix}}';
  function reply(event, body) {
    event.source.postMessage(body, event.origin === 'null' ? '*' : event.origin);
  }
  window.addEventListener('message', function (event) {
    var msg = event.data;
    if (typeof msg !== 'object' || msg === null || typeof msg.subject !== 'string') {
      return;
    }
    var key = prefix + event.origin + '_' + msg.key;
    switch (msg.subject) {
      case 'lti.capabilities':
        reply(event, {
          subject: 'lti.capabilities.response',
          message_id: msg.message_id,
          supported_messages: [
            {subject: 'lti.capabilities'},
            {subject: 'lti.put_data'},
            {subject: 'lti.get_data'}
          ]
        });
        break;
      case 'lti.put_data':
        try {
          window.sessionStorage.setItem(key, msg.value);
          reply(event, {subject: 'lti.put_data.response', message_id: msg.message_id, key: msg.key, value: msg.value});
        } catch (e) {
          reply(event, {subject: 'lti.put_data.response', message_id: msg.message_id, error: {code: 'storage_exhaustion', message: String(e)}});
        }
        break;
      case 'lti.get_data':
        reply(event, {subject: 'lti.get_data.response', message_id: msg.message_id, key: msg.key, value: window.sessionStorage.getItem(key)});
        break;
      default:
        reply(event, {subject: msg.subject + '.response', message_id: msg.message_id, error: {code: 'unsupported_subject', message: 'Unsupported subject'}});
    }
  }, false);
})();
`))

// StorageJSHandler serves the platform storage script.
type StorageJSHandler struct {
	// Prefix namespaces the sessionStorage keys (default "lti_").
	Prefix string
}

func (h StorageJSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	prefix := h.Prefix
	if prefix == "" {
		prefix = "lti_"
	}
	w.Header().Set("Content-Type", "text/javascript; charset=UTF-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_ = storageJSTpl.Execute(w, struct{ Prefix string }{jsString(prefix)})
}

// jsString escapes s for a single-quoted JavaScript literal.
func jsString(s string) string {
	return template.JSEscapeString(s)
}

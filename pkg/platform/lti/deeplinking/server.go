// pkg/platform/lti/deeplinking/server.go
package deeplinking

import (
	"context"
	"html/template"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mind-engage/lti-platform/pkg/platform/lti"
	"github.com/mind-engage/lti-platform/pkg/platform/tool"
)

// Server accepts a tool's content-item response at the content return URL
// and answers with a page that hands the new link to the opener window.
type Server struct {
	Tools    lti.ToolFinder
	Verifier *Verifier
	Logger   *zap.Logger
	// NewID returns a fresh link id; defaults to 8 hex characters of a UUID.
	NewID func() string
}

// Result is the outcome of one content-item response.
type Result struct {
	Tool      *tool.Tool
	Link      LinkAttrs
	ID        string
	Text      string
	Shortcode string
}

func (s *Server) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Server) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Handle verifies r and extracts the selected link for the tool code.
func (s *Server) Handle(ctx context.Context, r *http.Request, code string) (Result, error) {
	t, err := s.Tools.FromCode(ctx, code)
	if err != nil {
		return Result{}, err
	}
	raw, err := s.Verifier.Verify(ctx, r, t)
	if err != nil {
		return Result{}, err
	}
	link, err := HandleContentItemResponse(raw)
	if err != nil {
		return Result{}, err
	}
	text := link.Title
	if text == "" {
		text = t.Name
	}
	id := s.newID()
	return Result{
		Tool:      t,
		Link:      link,
		ID:        id,
		Text:      text,
		Shortcode: link.Shortcode(t.Code, id, text),
	}, nil
}

// ServeHTTP handles POST ?lti-platform&content&tool=code.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("tool")
	res, err := s.Handle(r.Context(), r, code)
	if err != nil {
		s.log().Info("deep link rejected", zap.String("tool", code), zap.String("reason", Reason(err)), zap.Error(err))
		writeContentPage(w, "")
		return
	}
	s.log().Info("deep link accepted", zap.String("tool", res.Tool.Code), zap.String("id", res.ID))
	writeContentPage(w, res.Shortcode)
}

var contentPageTpl = template.Must(template.New("content").Parse(`<html>
  <head>
    <title>Content</title>
    <script>
      var wdw = window.opener;
{{- if .Shortcode}}
      var shortcode = {{.Shortcode}};
      if (wdw && typeof wdw.LtiPlatformInsert === 'function') {
        wdw.LtiPlatformInsert(shortcode);
      } else if (wdw) {
        wdw.postMessage({subject: 'lti-platform.content', shortcode: shortcode}, window.location.origin);
      }
      window.close();
{{- else}}
      window.close();
      if (wdw) {
        wdw.alert('Sorry, unable to verify the selected content');
      }
{{- end}}
    </script>
  </head>
  <body>
  </body>
</html>
`))

func writeContentPage(w http.ResponseWriter, shortcode string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_ = contentPageTpl.Execute(w, struct{ Shortcode string }{shortcode})
}

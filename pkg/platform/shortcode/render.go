package shortcode

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"strconv"
	"strings"

	"github.com/mind-engage/lti-platform/pkg/platform/config"
	"github.com/mind-engage/lti-platform/pkg/platform/lti"
	"github.com/mind-engage/lti-platform/pkg/platform/tool"
)

// Renderer turns tags into HTML for display inside a post.
type Renderer struct {
	Tools    lti.ToolFinder
	Settings *config.Provider
}

// LaunchURL is the platform URL that launches link id of post postID.
func LaunchURL(s config.Settings, postID int64, id string) string {
	return s.Issuer() + "/?" + Tag + "&post=" + strconv.FormatInt(postID, 10) + "&id=" + url.QueryEscape(id)
}

// RenderContent replaces every tag in content with its rendered HTML.
func (r *Renderer) RenderContent(ctx context.Context, postID int64, content string) string {
	tags := Parse(content)
	if len(tags) == 0 {
		return content
	}
	var (
		b    strings.Builder
		last int
	)
	for _, sc := range tags {
		b.WriteString(content[last:sc.Start])
		b.WriteString(r.Render(ctx, postID, sc))
		last = sc.End
	}
	b.WriteString(content[last:])
	return b.String()
}

// Render returns the HTML for one tag. Problems render as a bold message in
// place of the link.
func (r *Renderer) Render(ctx context.Context, postID int64, sc Shortcode) string {
	code, id := sc.Attr("tool"), sc.Attr("id")
	var missing []string
	if code == "" {
		missing = append(missing, "tool")
	}
	if id == "" {
		missing = append(missing, "id")
	}
	if len(missing) > 0 {
		return failure("Missing attribute(s): " + strings.Join(missing, ", "))
	}
	t, err := r.Tools.FromCode(ctx, code)
	if err != nil || t == nil {
		return failure("Tool parameter not recognised: " + code)
	}
	if !t.Enabled {
		return failure("LTI Tool is not available")
	}
	target, ok := lti.ResolveTarget(sc.Attr("target"), t)
	if !ok {
		return failure("Invalid presentation target: " + target)
	}

	text := sc.Text
	if text == "" {
		text = html.EscapeString(code)
	}
	launch := html.EscapeString(LaunchURL(r.Settings.Get(), postID, id))
	title := html.EscapeString(code)
	extra := classStyle(sc.Attr("class"), sc.Attr("style"))

	switch target {
	case lti.TargetPopup:
		w, h := size(sc, t, "800", "500", false)
		features := "width=" + w + ",height=" + h
		return fmt.Sprintf(`<a href="#" title="Launch %s tool"%s onclick="window.open('%s', '', '%s'); return false;">%s</a>`,
			title, extra, launch, features, text)
	case lti.TargetIframe:
		return fmt.Sprintf(`<a href="%s&amp;embed" title="Embed %s tool"%s>%s</a>`, launch, title, extra, text)
	case lti.TargetEmbed:
		w, h := EmbedSize(sc, t)
		class := html.EscapeString(sc.Attr("class"))
		style := "border: none;width: " + w + ";height: " + h + ";"
		if s := sc.Attr("style"); s != "" {
			style += html.EscapeString(s)
		}
		return fmt.Sprintf(`%s</p><div><iframe style="%s" class="%s" src="%s" allowfullscreen></iframe></div><p>`,
			sc.Text, style, class, launch)
	case lti.TargetURLOnly:
		return launch
	default:
		return fmt.Sprintf(`<a href="%s" title="Launch %s tool" target="_blank"%s>%s</a>`, launch, title, extra, text)
	}
}

func failure(msg string) string {
	return "<strong>" + html.EscapeString(msg) + "</strong>"
}

func classStyle(class, style string) string {
	var b strings.Builder
	if class != "" {
		b.WriteString(` class="` + html.EscapeString(class) + `"`)
	}
	if style != "" {
		b.WriteString(` style="` + html.EscapeString(style) + `"`)
	}
	return b.String()
}

// EmbedSize is the CSS width and height of an inline frame for sc.
func EmbedSize(sc Shortcode, t *tool.Tool) (string, string) {
	return size(sc, t, "100%", "400px", true)
}

// size picks the link override, then the tool setting, then the default.
// CSS sizes given as a bare number get a px unit.
func size(sc Shortcode, t *tool.Tool, defW, defH string, css bool) (string, string) {
	pick := func(override, setting, def string) string {
		v := strings.TrimSpace(setting)
		if n := leadingInt(override); n > 0 {
			v = strconv.Itoa(n)
		}
		if v == "" {
			return def
		}
		if css && isDigits(v) {
			v += "px"
		}
		return html.EscapeString(v)
	}
	return pick(sc.Attr("width"), t.Setting(tool.SettingPresentationWidth, ""), defW),
		pick(sc.Attr("height"), t.Setting(tool.SettingPresentationHeight, ""), defH)
}

func leadingInt(s string) int {
	s = strings.TrimSpace(s)
	n := 0
	for i := 0; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		n = n*10 + int(s[i]-'0')
		if n > 1<<30 {
			return 0
		}
	}
	return n
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

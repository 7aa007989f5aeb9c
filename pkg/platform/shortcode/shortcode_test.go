package shortcode_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/lti-platform/pkg/platform/config"
	"github.com/mind-engage/lti-platform/pkg/platform/lti/deeplinking"
	"github.com/mind-engage/lti-platform/pkg/platform/shortcode"
	"github.com/mind-engage/lti-platform/pkg/platform/tool"
)

func TestParse(t *testing.T) {
	content := `<p>Intro [lti-platform tool=quiz id=a1 title="Week one" custom='x=1;y=2']Take the quiz[/lti-platform]</p>` +
		`<p>[lti-platform tool=video id=b2 /] and [[lti-platform tool=quiz id=esc]]</p>` +
		`[lti-platform-other id=z]`

	tags := shortcode.Parse(content)
	require.Len(t, tags, 2)

	assert.Equal(t, "quiz", tags[0].Attr("tool"))
	assert.Equal(t, "Week one", tags[0].Attr("title"))
	assert.Equal(t, "x=1;y=2", tags[0].Attr("custom"))
	assert.Equal(t, "Take the quiz", tags[0].Text)
	assert.Equal(t, `[lti-platform tool=quiz id=a1 title="Week one" custom='x=1;y=2']Take the quiz[/lti-platform]`,
		content[tags[0].Start:tags[0].End])

	assert.Equal(t, "video", tags[1].Attr("tool"))
	assert.Equal(t, "b2", tags[1].Attr("id"))
	assert.Empty(t, tags[1].Text)
}

func TestParseSkipsEscapedTags(t *testing.T) {
	content := `[[lti-platform tool=quiz id=a]Shown as text[/lti-platform]] ` +
		`[[lti-platform tool=quiz id=b]] [[lti-platform tool=quiz id=c /]] ` +
		`[lti-platform tool=quiz id=live]Launch[/lti-platform]`

	tags := shortcode.Parse(content)
	require.Len(t, tags, 1)
	assert.Equal(t, "live", tags[0].Attr("id"))
	assert.Equal(t, "Launch", tags[0].Text)

	_, err := shortcode.FindLink(content, "a")
	assert.ErrorIs(t, err, shortcode.ErrNotFound)
}

func TestParseAttrs(t *testing.T) {
	attrs := shortcode.ParseAttrs(` TOOL=quiz  title="Say \"hi\" \\ bye" flag url=https://t/x?a=1`)
	assert.Equal(t, map[string]string{
		"tool":  "quiz",
		"title": `Say "hi" \ bye`,
		"url":   "https://t/x?a=1",
	}, attrs)
}

func TestDeepLinkShortcodeRoundTrip(t *testing.T) {
	la := deeplinking.LinkAttrs{Title: `A "quoted" title`, URL: "https://t/x", Target: "iframe", Width: "640", Custom: `path=C:\dir;b=x\;y`}
	tags := shortcode.Parse(la.Shortcode("quiz", "ab12", "Go"))
	require.Len(t, tags, 1)
	sc := tags[0]
	assert.Equal(t, `A "quoted" title`, sc.Attr("title"))
	assert.Equal(t, "640", sc.Attr("width"))
	assert.Equal(t, `path=C:\dir;b=x\;y`, sc.Attr("custom"))
	assert.Equal(t, "Go", sc.Text)
}

func TestFindLink(t *testing.T) {
	content := `[lti-platform tool=quiz id=a url="/page?x=1&amp;y=2"]One[/lti-platform]` +
		`[lti-platform tool=quiz id=b]Two[/lti-platform]` +
		`[lti-platform tool=quiz id=b]Three[/lti-platform]`

	sc, err := shortcode.FindLink(content, "a")
	require.NoError(t, err)
	assert.Equal(t, "/page?x=1&y=2", sc.Attr("url"))
	assert.Equal(t, "One", sc.LinkAttrs().Text)

	sc, err = shortcode.FindLink(content, "b")
	assert.ErrorIs(t, err, shortcode.ErrDuplicateID)
	assert.Equal(t, "Two", sc.Text)

	_, err = shortcode.FindLink(content, "c")
	assert.ErrorIs(t, err, shortcode.ErrNotFound)
}

func newRenderer(t *testing.T) *shortcode.Renderer {
	t.Helper()
	settings := config.NewProvider(config.Settings{SiteURL: "https://lms.example.org"})
	reg := tool.NewRegistry(tool.NewMemoryStore(), settings, nil)
	ctx := context.Background()
	_, err := reg.Save(ctx, &tool.Tool{Scope: tool.ScopeSite, Code: "quiz", Name: "Quiz", Enabled: true, MessageURL: "https://t/lti", Key: "k", Secret: "s"})
	require.NoError(t, err)
	_, err = reg.Save(ctx, &tool.Tool{Scope: tool.ScopeSite, Code: "off", Name: "Off", MessageURL: "https://t/lti", Key: "k", Secret: "s"})
	require.NoError(t, err)
	return &shortcode.Renderer{Tools: reg, Settings: settings}
}

func render(t *testing.T, r *shortcode.Renderer, tag string) string {
	t.Helper()
	tags := shortcode.Parse(tag)
	require.Len(t, tags, 1)
	return r.Render(context.Background(), 9, tags[0])
}

func TestRenderTargets(t *testing.T) {
	r := newRenderer(t)
	const launch = "https://lms.example.org/?lti-platform&amp;post=9&amp;id=a"

	assert.Equal(t,
		`<a href="`+launch+`" title="Launch quiz tool" target="_blank">Go</a>`,
		render(t, r, `[lti-platform tool=quiz id=a]Go[/lti-platform]`))

	assert.Equal(t,
		`<a href="#" title="Launch quiz tool" onclick="window.open('`+launch+`', '', 'width=800,height=500'); return false;">quiz</a>`,
		render(t, r, `[lti-platform tool=quiz id=a target=popup]`))

	assert.Equal(t,
		`<a href="`+launch+`&amp;embed" title="Embed quiz tool" class="big">Go</a>`,
		render(t, r, `[lti-platform tool=quiz id=a target=iframe class=big]Go[/lti-platform]`))

	assert.Equal(t,
		`</p><div><iframe style="border: none;width: 600px;height: 400px;" class="" src="`+launch+`" allowfullscreen></iframe></div><p>`,
		render(t, r, `[lti-platform tool=quiz id=a target=embed width=600]`))

	assert.Equal(t, launch, render(t, r, `[lti-platform tool=quiz id=a target=urlonly]`))
}

func TestRenderFailures(t *testing.T) {
	r := newRenderer(t)
	assert.Equal(t, "<strong>Missing attribute(s): tool, id</strong>", render(t, r, `[lti-platform]`))
	assert.Equal(t, "<strong>Missing attribute(s): id</strong>", render(t, r, `[lti-platform tool=quiz]`))
	assert.Equal(t, "<strong>Tool parameter not recognised: nope</strong>", render(t, r, `[lti-platform tool=nope id=a]`))
	assert.Equal(t, "<strong>LTI Tool is not available</strong>", render(t, r, `[lti-platform tool=off id=a]`))
	assert.Equal(t, "<strong>Invalid presentation target: sidebar</strong>", render(t, r, `[lti-platform tool=quiz id=a target=sidebar]`))
}

func TestRenderContent(t *testing.T) {
	r := newRenderer(t)
	out := r.RenderContent(context.Background(), 9, `<p>Before [lti-platform tool=quiz id=a]Go[/lti-platform] after</p>`)
	assert.Equal(t, `<p>Before <a href="https://lms.example.org/?lti-platform&amp;post=9&amp;id=a" title="Launch quiz tool" target="_blank">Go</a> after</p>`, out)
}

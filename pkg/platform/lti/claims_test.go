package lti_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mind-engage/lti-platform/pkg/platform/lti"
)

const claimPrefix = "https://purl.imsglobal.org/spec/lti/claim/"

func TestBuildClaimsResourceLink(t *testing.T) {
	p := &lti.Params{}
	p.Set("user_id", "42")
	p.Set("lis_person_name_full", "Ed Itor")
	p.Set("roles", "a:Instructor, b:Learner")
	p.Set("context_id", "5")
	p.Set("context_type", "CourseSection")
	p.Set("resource_link_id", "5-x1")
	p.Set("launch_presentation_document_target", "iframe")
	p.Set("launch_presentation_width", "640")
	p.Set("custom_mode", "quiz")
	p.Set("ext_username", "ed")

	now := time.Unix(1700000000, 0)
	c := lti.BuildClaims(lti.ClaimsInput{
		Settings: testSettings(), ClientID: "quiz", Nonce: "n", TargetLink: "https://t/lti",
		MessageType: lti.MessageLaunch, Params: p, Now: now, TTL: time.Minute,
	})

	assert.Equal(t, "https://lms.example.org", c["iss"])
	assert.Equal(t, now.Unix()+60, c["exp"])
	assert.Equal(t, "42", c["sub"])
	assert.Equal(t, "1.3.0", c[claimPrefix+"version"])
	assert.Equal(t, "1", c[claimPrefix+"deployment_id"])
	assert.Equal(t, lti.MessageLTI13Launch, c[claimPrefix+"message_type"])
	assert.Equal(t, []string{"a:Instructor", "b:Learner"}, c[claimPrefix+"roles"])
	assert.Equal(t, map[string]any{"id": "5-x1"}, c[claimPrefix+"resource_link"])
	assert.Equal(t, map[string]any{"document_target": "iframe", "width": 640}, c[claimPrefix+"launch_presentation"])
	assert.Equal(t, map[string]any{"mode": "quiz"}, c[claimPrefix+"custom"])
	assert.Equal(t, map[string]any{"username": "ed"}, c[claimPrefix+"ext"])
	ctx, _ := c[claimPrefix+"context"].(map[string]any)
	assert.Equal(t, []string{"http://purl.imsglobal.org/vocab/lis/v2/course#CourseSection"}, ctx["type"])
}

func TestBuildClaimsDeepLinking(t *testing.T) {
	p := &lti.Params{}
	p.Set("content_item_return_url", "https://lms.example.org/?lti-platform&content&tool=quiz")
	p.Set("accept_multiple", "false")
	p.Set("accept_presentation_document_targets", "embed,iframe")

	c := lti.BuildClaims(lti.ClaimsInput{Settings: testSettings(), ClientID: "quiz", MessageType: lti.MessageContentItem, Params: p, Now: time.Now()})

	assert.Equal(t, lti.MessageLTI13DeepLink, c[claimPrefix+"message_type"])
	assert.NotContains(t, c, claimPrefix+"resource_link")
	assert.NotContains(t, c, "sub")
	dl, ok := c["https://purl.imsglobal.org/spec/lti-dl/claim/deep_linking_settings"].(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, "https://lms.example.org/?lti-platform&content&tool=quiz", dl["deep_link_return_url"])
	assert.Equal(t, false, dl["accept_multiple"])
	assert.Equal(t, []string{"embed", "iframe"}, dl["accept_presentation_document_targets"])
	assert.Equal(t, []string{}, c[claimPrefix+"roles"])
}

package lti

import (
	"strings"

	"github.com/mind-engage/lti-platform/pkg/platform/tool"
)

const (
	legacyRolePrefix = "urn:lti:role:ims/lis/"
	membershipPrefix = "http://purl.imsglobal.org/vocab/lis/v2/membership#"
)

var canonicalRoles = map[string]string{
	"instructor":        "Instructor",
	"learner":           "Learner",
	"contentdeveloper":  "ContentDeveloper",
	"teachingassistant": "TeachingAssistant",
	"mentor":            "Mentor",
	"administrator":     "Administrator",
	"manager":           "Manager",
	"member":            "Member",
	"officer":           "Officer",
}

// RoleURI renders a role token in the vocabulary of v. Tokens that already
// look like URIs (contain ':') pass through unchanged.
func RoleURI(token string, v tool.Version) string {
	token = strings.TrimSpace(token)
	if token == "" || strings.Contains(token, ":") {
		return token
	}
	name, ok := canonicalRoles[strings.ToLower(token)]
	if !ok {
		name = token
	}
	if v == tool.V1_3 {
		return membershipPrefix + name
	}
	return legacyRolePrefix + name
}

// MapRoles translates the user's site roles into LTI roles. A tool's
// role_<siteRole> setting overrides platformMap for that role. Results keep
// first-seen order without duplicates. When nothing maps, a user who can
// manage the site is an Instructor and everyone else a Learner.
func MapRoles(siteRoles []string, t *tool.Tool, platformMap map[string][]string, canManage bool, v tool.Version) []string {
	var (
		out  []string
		seen = map[string]bool{}
	)
	add := func(tok string) {
		uri := RoleURI(tok, v)
		if uri == "" || seen[uri] {
			return
		}
		seen[uri] = true
		out = append(out, uri)
	}
	for _, role := range siteRoles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if t != nil {
			if list := t.Setting(tool.SettingRolePrefix+role, ""); list != "" {
				for _, tok := range strings.Split(list, ",") {
					add(tok)
				}
				continue
			}
		}
		for _, tok := range platformMap[role] {
			add(tok)
		}
	}
	if len(out) == 0 {
		if canManage {
			add("Instructor")
		} else {
			add("Learner")
		}
	}
	return out
}

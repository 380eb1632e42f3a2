// Package detector decides, from signals available on a loaded form
// page, that the user has submitted a tracked form. It combines several
// independently fallible heuristics: URL allow-list match, confirmation
// page markers (URL and locale-specific text), explicit submit-intent
// events, and structural DOM mutations. Detection is best-effort by
// design; the page is not ours to instrument.
package detector

import (
	"net/url"
	"regexp"
	"strings"
)

// Form pairs a share URL with the opaque form identity embedded in the
// full viewer path.
type Form struct {
	ShortURL string `yaml:"short_url" json:"short_url"`
	FormID   string `yaml:"form_id" json:"form_id"`
}

var formPathRe = regexp.MustCompile(`/forms/(?:u/\d+/)?d/e/([^/]+)/`)

// FormIDFromURL extracts the form identity from a viewer URL. Empty when
// the URL carries no parseable identity.
func FormIDFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	m := formPathRe.FindStringSubmatch(u.Path)
	if m == nil {
		return ""
	}
	return m[1]
}

// Registry is the fixed allow-list of tracked forms. The detector only
// activates on pages matching it.
type Registry struct {
	forms []Form
}

// NewRegistry builds a Registry from the configured allow-list.
func NewRegistry(forms []Form) *Registry {
	return &Registry{forms: forms}
}

// Allowed reports whether the URL belongs to a tracked form: exact
// identity match when the ID can be parsed from the path, URL-prefix
// match against the share link otherwise.
func (r *Registry) Allowed(raw string) bool {
	if id := FormIDFromURL(raw); id != "" {
		for _, f := range r.forms {
			if f.FormID == id {
				return true
			}
		}
		return false
	}
	for _, f := range r.forms {
		if f.ShortURL != "" && strings.HasPrefix(raw, f.ShortURL) {
			return true
		}
	}
	return false
}

// Identify returns the form identity for an allowed page URL, or
// "unknown" when the identity cannot be parsed (short-link pages before
// the redirect settles).
func (r *Registry) Identify(raw string) string {
	if id := FormIDFromURL(raw); id != "" {
		return id
	}
	return "unknown"
}

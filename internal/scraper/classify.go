package scraper

import (
	"net/url"
	"strings"
)

// ContentType guesses the kind of page from its URL and title.
func ContentType(pageURL, title string) string {
	t := strings.ToLower(title)
	u := strings.ToLower(pageURL)

	switch {
	case strings.Contains(t, "tutorial") || strings.Contains(u, "tutorial"):
		return "tutorial"
	case strings.Contains(t, "guide") || strings.Contains(u, "guide"):
		return "guide"
	case strings.Contains(t, "api") || strings.Contains(u, "api") || strings.Contains(t, "reference"):
		return "api"
	case strings.Contains(t, "how") && strings.Contains(t, "to"):
		return "how-to"
	case strings.Contains(t, "faq") || strings.Contains(u, "faq"):
		return "faq"
	case strings.Contains(t, "example") || strings.Contains(u, "example"):
		return "example"
	default:
		return "documentation"
	}
}

var genericSegments = map[string]bool{"display": true, "projects": true, "opensim": true}

// Section is the first meaningful path segment of pageURL.
func Section(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "General"
	}
	for _, part := range strings.Split(u.EscapedPath(), "/") {
		if part == "" || genericSegments[strings.ToLower(part)] {
			continue
		}
		if unescaped, err := url.PathUnescape(part); err == nil {
			part = unescaped
		}
		return strings.ReplaceAll(part, "+", " ")
	}
	return "General"
}

package scraper

import (
	"net/url"
	"regexp"
	"strings"
)

var skippedExtensions = []string{".zip", ".exe", ".dmg"}

// DiscoverLinks resolves hrefs found on base and keeps the ones worth
// crawling: same host, not excluded, not a download, fragment stripped.
// Returns nil once depth has reached maxDepth.
func DiscoverLinks(base *url.URL, hrefs []string, depth, maxDepth int, exclusions []*regexp.Regexp) []string {
	if depth >= maxDepth {
		return nil
	}

	var out []string
	seen := make(map[string]bool)

	for _, href := range hrefs {
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			continue
		}
		lower := strings.ToLower(href)
		if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") {
			continue
		}

		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		linkU := base.ResolveReference(ref)
		if linkU.Host != base.Host || (linkU.Scheme != "http" && linkU.Scheme != "https") {
			continue
		}

		linkU.Fragment = ""
		normalized := linkU.String()

		if hasSkippedExtension(linkU.Path) || excluded(normalized, exclusions) {
			continue
		}
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, normalized)
	}
	return out
}

func hasSkippedExtension(path string) bool {
	p := strings.ToLower(path)
	for _, ext := range skippedExtensions {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}
	return false
}

func excluded(u string, exclusions []*regexp.Regexp) bool {
	for _, re := range exclusions {
		if re.MatchString(u) {
			return true
		}
	}
	return false
}

// CompileExclusions compiles crawl exclusion patterns.
func CompileExclusions(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

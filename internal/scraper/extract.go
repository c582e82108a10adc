package scraper

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

const unknownTitle = "Unknown Title"

var contentSelectors = []string{
	"div.wiki-content",
	"div.main-content",
	"article",
	"div.content",
	"div.documentation",
	"div#content",
	"div.confluenceContent",
}

const noiseSelector = "nav, header, footer, .sidebar, .navigation, .menu, script, style, .hidden"

var excessNewlines = regexp.MustCompile(`\n{3,}`)

// Page is the text and outgoing links extracted from one fetched resource.
type Page struct {
	Title string
	Text  string
	Links []string
}

// ExtractHTML pulls the title, main content text and hrefs out of an HTML
// page. Noise elements are removed before both text and links are read.
func ExtractHTML(r io.Reader) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Page{}, fmt.Errorf("parse html: %w", err)
	}

	page := Page{Title: extractTitle(doc)}

	content := doc.Find("body").First()
	for _, sel := range contentSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			content = s
			break
		}
	}
	if content.Length() > 0 {
		content.Find(noiseSelector).Remove()
		page.Text = nodeText(content)
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			page.Links = append(page.Links, href)
		}
	})
	return page, nil
}

func extractTitle(doc *goquery.Document) string {
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	for _, h := range []string{"h1", "h2", "h3"} {
		if s := doc.Find(h).First(); s.Length() > 0 {
			if t := strings.TrimSpace(s.Text()); t != "" {
				return t
			}
		}
	}
	return unknownTitle
}

// nodeText joins every non-blank text node under sel with newlines.
func nodeText(sel *goquery.Selection) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return excessNewlines.ReplaceAllString(strings.Join(parts, "\n"), "\n\n")
}

// ExtractPDF returns the plain text of a PDF document.
func ExtractPDF(data []byte) (string, error) {
	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	b, err := rdr.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, b); err != nil {
		return "", fmt.Errorf("read pdf buffer: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

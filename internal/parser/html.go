package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLParser flattens HTML mail bodies into readable plain text
type HTMLParser struct {
	innerSpace *regexp.Regexp
	blankRuns  *regexp.Regexp
	invisible  *regexp.Regexp
}

// NewHTMLParser creates an HTML-to-text parser
func NewHTMLParser() *HTMLParser {
	return &HTMLParser{
		innerSpace: regexp.MustCompile(`[^\S\n]+`),
		blankRuns:  regexp.MustCompile(`\n{3,}`),
		// Zero-width and other invisible Unicode that marketplaces love
		// to pad notification mails with
		invisible: regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00AD}\x{2060}-\x{2064}\x{206A}-\x{206F}]+`),
	}
}

// Parse converts an HTML body to plain text: markup stripped, block
// elements turned into line breaks, whitespace normalized.
func (p *HTMLParser) Parse(html string) (string, error) {
	if html == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, head, meta, link, title").Remove()

	// Block elements become line breaks so the text keeps its shape
	doc.Find("p, div, br, h1, h2, h3, h4, h5, h6, li, tr, blockquote").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})

	text := doc.Text()
	text = p.invisible.ReplaceAllString(text, "")
	text = p.innerSpace.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			kept = append(kept, line)
		}
	}
	text = strings.Join(kept, "\n")
	text = p.blankRuns.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text), nil
}

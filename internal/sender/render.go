package sender

import (
	"regexp"
	"strings"
)

// Fallbacks used when the user has not configured any subjects or
// body templates.
const (
	defaultSubject  = "Ist OFFER noch verfügbar?"
	defaultTemplate = "Hi SELLER, ist OFFER noch verfügbar?"
)

// Matches the OFFER placeholder with or without braces, any case
var offerToken = regexp.MustCompile(`(?i)\{?OFFER\}?`)

// RenderedMessage is the output of template substitution. BodyForLog is
// the copy relayed to the operator: when the template opens with the
// offer line, that line is dropped from the log so the item title is
// not repeated in every confirmation.
type RenderedMessage struct {
	Subject    string
	Body       string
	BodyForLog string
}

// Render substitutes the seller name and item title into a subject and
// body template. SELLER and OFFER are replaced bare or braced; ITEM
// only braced, since the word appears in normal prose too.
func Render(subject, template, sellerName, itemTitle string) RenderedMessage {
	if subject == "" {
		subject = defaultSubject
	}
	if template == "" {
		template = defaultTemplate
	}

	body := substitute(template, sellerName, itemTitle)
	out := RenderedMessage{
		Subject:    strings.TrimSpace(substitute(subject, sellerName, itemTitle)),
		Body:       body,
		BodyForLog: body,
	}
	if offerLeadsTemplate(template) {
		out.BodyForLog = dropFirstLine(body)
	}
	return out
}

func substitute(text, sellerName, itemTitle string) string {
	text = strings.ReplaceAll(text, "{SELLER}", sellerName)
	text = strings.ReplaceAll(text, "SELLER", sellerName)
	text = strings.ReplaceAll(text, "{ITEM}", itemTitle)
	text = strings.ReplaceAll(text, "{OFFER}", itemTitle)
	text = strings.ReplaceAll(text, "OFFER", itemTitle)
	return text
}

// offerLeadsTemplate reports whether the first non-empty line of the raw
// template carries the OFFER placeholder.
func offerLeadsTemplate(template string) bool {
	for _, line := range strings.Split(template, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		return offerToken.MatchString(line)
	}
	return false
}

// dropFirstLine removes the first non-empty line of the rendered body
func dropFirstLine(body string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rest := append(append([]string{}, lines[:i]...), lines[i+1:]...)
		return strings.TrimLeft(strings.Join(rest, "\n"), "\n")
	}
	return body
}

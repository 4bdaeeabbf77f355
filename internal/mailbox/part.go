package mailbox

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"viammo.app/tripscan/internal/model"
)

// Part is a provider-independent MIME tree. Leaves carry decoded Data;
// multipart nodes carry Children.
type Part struct {
	MimeType string
	Data     []byte
	Children []*Part
}

var stripPolicy = func() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return p
}()

// ExtractText flattens p into plain text. text/plain leaves are used as-is,
// text/html leaves are stripped, and the text of every other subtree is
// joined with single spaces.
func ExtractText(p *Part) string {
	if p == nil {
		return ""
	}

	switch strings.ToLower(p.MimeType) {
	case "text/plain":
		if len(p.Data) > 0 {
			return string(p.Data)
		}
	case "text/html":
		if len(p.Data) > 0 {
			return HTMLToText(string(p.Data))
		}
	}

	texts := make([]string, 0, len(p.Children))
	for _, child := range p.Children {
		if text := ExtractText(child); text != "" {
			texts = append(texts, text)
		}
	}
	return strings.Join(texts, " ")
}

// HTMLToText drops tags, decodes entities and collapses whitespace.
func HTMLToText(raw string) string {
	text := html.UnescapeString(stripPolicy.Sanitize(raw))
	return strings.Join(strings.Fields(text), " ")
}

func bodyText(p *Part) string {
	if body := ExtractText(p); strings.TrimSpace(body) != "" {
		return body
	}
	return model.UnknownBody
}

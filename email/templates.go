package email

import (
	"fmt"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"keyword-notifier/keywords"
	"keyword-notifier/pkg/notifier"
)

func (s *Sender) formatContentBody(c *notifier.Content, matched []string) string {
	var b strings.Builder

	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	b.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")
	b.WriteString("<style>\n")
	b.WriteString("body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 800px; margin: 0 auto; padding: 20px; background: #fff; }\n")
	b.WriteString(".header { border-bottom: 2px solid #2e86c1; padding-bottom: 10px; margin-bottom: 20px; }\n")
	b.WriteString(".meta { color: #7f8c8d; font-size: 0.9em; margin: 4px 0; }\n")
	b.WriteString(".matched { color: #2e86c1; font-weight: 600; }\n")
	b.WriteString(".content { border: 1px solid #ddd; border-radius: 8px; padding: 15px; margin: 15px 0; }\n")
	b.WriteString(".content.plain { white-space: pre-wrap; }\n")
	b.WriteString(".content img { max-width: 100%; height: auto; }\n")
	b.WriteString(".keywords { font-size: 0.9em; }\n")
	b.WriteString(".footer { margin-top: 30px; padding-top: 15px; border-top: 1px solid #ddd; font-size: 0.85em; color: #7f8c8d; }\n")
	b.WriteString("a { color: #2e86c1; text-decoration: none; }\n")
	b.WriteString("@media (prefers-color-scheme: dark) {\n")
	b.WriteString("body { background: #1a1a1a; color: #e0e0e0; }\n")
	b.WriteString(".content { border-color: #444; }\n")
	b.WriteString(".meta, .footer { color: #a0a0a0; }\n")
	b.WriteString("}\n")
	b.WriteString("</style>\n</head>\n<body>\n")

	b.WriteString("<div class=\"header\">\n")
	b.WriteString(fmt.Sprintf("<h2>%s</h2>\n", escapeHTML(c.Title)))
	b.WriteString("</div>\n")

	b.WriteString(fmt.Sprintf("<p class=\"meta\">Publisher: %s</p>\n", escapeHTML(c.PublisherID)))
	if !c.CreatedAt.IsZero() {
		b.WriteString(fmt.Sprintf("<p class=\"meta\">Published: %s UTC</p>\n", c.CreatedAt.UTC().Format("Jan 2, 2006 at 3:04 PM")))
	}

	sorted := slices.Clone(matched)
	slices.Sort(sorted)
	b.WriteString(fmt.Sprintf("<p>Matched subscriptions: <span class=\"matched\">%s</span></p>\n", escapeHTML(strings.Join(sorted, ", "))))

	// Bodies are untrusted publisher input.
	if keywords.IsHTML(c.Body) {
		b.WriteString("<div class=\"content\">\n")
		b.WriteString(sanitizeHTML(c.Body))
	} else {
		b.WriteString("<div class=\"content plain\">\n")
		b.WriteString(escapeHTML(c.Body))
	}
	b.WriteString("\n</div>\n")

	if len(c.Keywords) > 0 {
		b.WriteString(fmt.Sprintf("<p class=\"keywords\">Keywords: %s</p>\n", escapeHTML(strings.Join(c.Keywords, ", "))))
	}

	b.WriteString("<div class=\"footer\">\n")
	b.WriteString("This is an automatic notification for your keyword subscriptions.\n")
	if s.baseURL != "" {
		b.WriteString(fmt.Sprintf(" &bull; <a href=\"%s\">Manage subscriptions</a>\n", escapeHTML(s.baseURL+"/subscriptions")))
	}
	b.WriteString("</div>\n")

	b.WriteString("</body>\n</html>")

	return b.String()
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&#39;")
	return s
}

var allowedTags = map[string]bool{
	"p":          true,
	"br":         true,
	"hr":         true,
	"b":          true,
	"strong":     true,
	"i":          true,
	"em":         true,
	"u":          true,
	"blockquote": true,
	"img":        true,
	"a":          true,
	"ul":         true,
	"ol":         true,
	"li":         true,
	"div":        true,
	"span":       true,
	"h3":         true,
	"h4":         true,
}

// Dropped with their contents.
var droppedTags = "script, style, noscript, form, svg, math, template"

// sanitizeHTML rewrites untrusted HTML keeping only whitelisted tags. Links and
// images keep their URL when it is http(s) or relative; every other attribute
// is removed. Embedded media is replaced by a visible placeholder.
func sanitizeHTML(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return escapeHTML(s)
	}

	doc.Find(droppedTags).Remove()

	doc.Find("iframe, video, embed, object").Each(func(_ int, sel *goquery.Selection) {
		name := goquery.NodeName(sel)
		if name == "iframe" {
			if src, ok := sel.Attr("src"); ok && isSafeURL(src) {
				sel.ReplaceWithHtml(fmt.Sprintf("[iframe: <a href=\"%s\">%s</a>]", escapeHTML(src), escapeHTML(src)))
				return
			}
		}
		sel.ReplaceWithHtml("[replaced " + name + "]")
	})

	doc.Find("body *").Each(func(_ int, sel *goquery.Selection) {
		name := goquery.NodeName(sel)
		if !allowedTags[name] {
			if sel.Contents().Length() > 0 {
				sel.Contents().Unwrap()
			} else {
				sel.Remove()
			}
			return
		}

		keep := map[string]string{}
		switch name {
		case "a":
			if href, ok := sel.Attr("href"); ok && isSafeURL(href) {
				keep["href"] = href
			}
		case "img":
			if src, ok := sel.Attr("src"); ok && isSafeURL(src) {
				keep["src"] = src
			}
			if alt, ok := sel.Attr("alt"); ok {
				keep["alt"] = alt
			}
		}
		for _, attr := range slices.Clone(sel.Nodes[0].Attr) {
			sel.RemoveAttr(attr.Key)
		}
		for _, key := range []string{"href", "src", "alt"} {
			if v, ok := keep[key]; ok {
				sel.SetAttr(key, v)
			}
		}
	})

	out, err := doc.Find("body").Html()
	if err != nil {
		return escapeHTML(s)
	}
	return strings.TrimSpace(out)
}

// isSafeURL validates that a URL is safe for use in emails.
// Only allows http, https, and relative URLs. Blocks javascript:, data:, etc.
func isSafeURL(urlStr string) bool {
	urlStr = strings.TrimSpace(strings.ToLower(urlStr))
	if urlStr == "" {
		return false
	}

	if strings.HasPrefix(urlStr, "http://") || strings.HasPrefix(urlStr, "https://") {
		return true
	}

	// Anything else with a scheme (javascript:, data:, vbscript:, file:, ...) is rejected.
	return !strings.Contains(urlStr, ":")
}

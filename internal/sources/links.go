package sources

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Links returns the href of every anchor in html, in document order.
func Links(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			out = append(out, strings.TrimSpace(href))
		}
	})
	return out
}

// LinkMatch is an href matched by a pattern, with its submatches.
type LinkMatch struct {
	Href   string
	Groups []string
}

// MatchLinks returns every href in html that re matches, in document order.
func MatchLinks(html string, re *regexp.Regexp) []LinkMatch {
	var out []LinkMatch
	for _, href := range Links(html) {
		if m := re.FindStringSubmatch(href); m != nil {
			out = append(out, LinkMatch{Href: href, Groups: m})
		}
	}
	return out
}

// Resolve resolves href against base. Directory bases must end in a slash.
func Resolve(base, href string) (string, bool) {
	b, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	h, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	return b.ResolveReference(h).String(), true
}

// namedGroup returns the submatch of the named group, or "".
func namedGroup(re *regexp.Regexp, m []string, name string) string {
	if i := re.SubexpIndex(name); i >= 0 && i < len(m) {
		return m[i]
	}
	return ""
}

// Package legacy renders the exported HTML pages the site was migrated from.
// A page keeps its head assets and body markup verbatim; only the wrapper changes.
package legacy

import (
	"regexp"
	"strings"
)

var (
	headPattern  = regexp.MustCompile(`(?is)<head(?:\s[^>]*)?>(.*?)</head>`)
	bodyPattern  = regexp.MustCompile(`(?is)<body(?:\s[^>]*)?>(.*?)</body>`)
	titlePattern = regexp.MustCompile(`(?is)<title(?:\s[^>]*)?>(.*?)</title>`)
	assetPattern = regexp.MustCompile(`(?is)<style.*?</style>|<script.*?</script>|<link[^>]*?>`)
)

// Page is the renderable part of an exported document
type Page struct {
	Title  string
	Assets string // style, script and link tags of the head, newline separated
	Body   string
}

// HTML returns the markup placed inside the site shell
func (p *Page) HTML() string {
	if p.Assets == "" {
		return p.Body
	}
	return p.Assets + "\n" + p.Body
}

// Extract splits an exported document into its assets and body. A document
// without a body is used whole.
func Extract(html string) *Page {
	head := submatch(headPattern, html)

	page := &Page{
		Assets: strings.Join(assetPattern.FindAllString(head, -1), "\n"),
		Body:   submatch(bodyPattern, html),
		Title:  strings.TrimSpace(submatch(titlePattern, head)),
	}
	if page.Body == "" {
		page.Body = html
	}
	return page
}

func submatch(pattern *regexp.Regexp, s string) string {
	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}

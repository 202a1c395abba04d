package page

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// falsy literals leave a page global unset, matching how the page scripts test it.
var falsy = map[string]bool{
	"":          true,
	"0":         true,
	"null":      true,
	"undefined": true,
	"false":     true,
	"NaN":       true,
}

// ScriptGlobal returns the value a page assigns to a global variable in an
// inline script, e.g. `var CURRENTPRODUCTID = 42;`. The last assignment in
// document order wins. Falsy literals report ok=false.
func (d *HTMLDocument) ScriptGlobal(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	re, err := regexp.Compile(`(?:^|[^\w$.])(?:window\.)?` + regexp.QuoteMeta(name) +
		`\s*=\s*(?:"([^"]*)"|'([^']*)'|([^;,\s=][^;,\s]*))`)
	if err != nil {
		return "", false
	}

	var value string
	var found bool
	walk(d.root, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.DataAtom != atom.Script {
			return true
		}
		if src, ok := getAttr(n, "src"); ok && src != "" {
			return true
		}
		var text strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				text.WriteString(c.Data)
			}
		}
		for _, m := range re.FindAllStringSubmatch(text.String(), -1) {
			value = m[1] + m[2] + m[3]
			found = true
		}
		return true
	})
	if !found || falsy[value] {
		return "", false
	}
	return value, true
}

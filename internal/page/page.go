// Package page models the cached HTML page as a queryable, mutable tree.
//
// The pipeline only talks to the Document and Element interfaces, so it runs
// the same against a parsed page and against hand-built test documents.
package page

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Element is a single element of the page.
type Element interface {
	ID() string
	SetID(id string)
	Attr(name string) (string, bool)
	InnerHTML() string
	SetInnerHTML(fragment string) error
}

// Document is the page tree the pipeline reads and patches.
type Document interface {
	// Placeholders returns the elements carrying class, in document order.
	Placeholders(class string) []Element
	// ElementByID returns the first element with the id, or nil.
	ElementByID(id string) Element
	// AppendScript adds an inline script at the end of the body.
	AppendScript(code string) error
	Render(w io.Writer) error
}

// HTMLDocument is a Document backed by golang.org/x/net/html.
type HTMLDocument struct {
	root *html.Node
}

// Parse reads a full HTML page.
func Parse(r io.Reader) (*HTMLDocument, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &HTMLDocument{root: root}, nil
}

// ParseString is Parse for an in-memory page.
func ParseString(s string) (*HTMLDocument, error) {
	return Parse(strings.NewReader(s))
}

func (d *HTMLDocument) Placeholders(class string) []Element {
	var out []Element
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && hasClass(n, class) {
			out = append(out, &element{n: n})
		}
		return true
	})
	return out
}

func (d *HTMLDocument) ElementByID(id string) Element {
	if id == "" {
		return nil
	}
	var found *html.Node
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			if v, ok := getAttr(n, "id"); ok && v == id {
				found = n
				return false
			}
		}
		return true
	})
	if found == nil {
		return nil
	}
	return &element{n: found}
}

func (d *HTMLDocument) AppendScript(code string) error {
	target := findFirst(d.root, atom.Body)
	if target == nil {
		target = findFirst(d.root, atom.Html)
	}
	if target == nil {
		return fmt.Errorf("page has no body to append a script to")
	}
	script := &html.Node{Type: html.ElementNode, Data: "script", DataAtom: atom.Script}
	script.AppendChild(&html.Node{Type: html.TextNode, Data: escapeScript(code)})
	target.AppendChild(script)
	return nil
}

func (d *HTMLDocument) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// String renders the page, returning "" if rendering fails.
func (d *HTMLDocument) String() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}

type element struct {
	n *html.Node
}

func (e *element) ID() string {
	v, _ := getAttr(e.n, "id")
	return v
}

func (e *element) SetID(id string) {
	for i := range e.n.Attr {
		if e.n.Attr[i].Namespace == "" && e.n.Attr[i].Key == "id" {
			e.n.Attr[i].Val = id
			return
		}
	}
	e.n.Attr = append(e.n.Attr, html.Attribute{Key: "id", Val: id})
}

func (e *element) Attr(name string) (string, bool) {
	return getAttr(e.n, name)
}

func (e *element) InnerHTML() string {
	var buf bytes.Buffer
	for c := e.n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return buf.String()
		}
	}
	return buf.String()
}

func (e *element) SetInnerHTML(fragment string) error {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), e.n)
	if err != nil {
		return fmt.Errorf("parse fragment: %w", err)
	}
	for c := e.n.FirstChild; c != nil; {
		next := c.NextSibling
		e.n.RemoveChild(c)
		c = next
	}
	for _, n := range nodes {
		e.n.AppendChild(n)
	}
	return nil
}

// walk visits nodes depth-first in document order until fn returns false.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

func findFirst(root *html.Node, tag atom.Atom) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == tag {
			found = n
			return false
		}
		return true
	})
	return found
}

func getAttr(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Namespace == "" && attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}

func hasClass(n *html.Node, class string) bool {
	v, ok := getAttr(n, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}

// escapeScript keeps a closing script tag inside code from ending the element early.
func escapeScript(code string) string {
	const closing = "</script"
	var b strings.Builder
	for i := 0; i < len(code); {
		if i+len(closing) <= len(code) && strings.EqualFold(code[i:i+len(closing)], closing) {
			b.WriteString(`<\/`)
			i += 2
			continue
		}
		b.WriteByte(code[i])
		i++
	}
	return b.String()
}

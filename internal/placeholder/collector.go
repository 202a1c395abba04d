// Package placeholder finds the dynamic placeholders of a page and records
// which content block each one needs.
package placeholder

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/patrickwarner/holepunch/internal/blocks"
	"github.com/patrickwarner/holepunch/internal/page"
)

const (
	DefaultClass        = "placeholder"
	DefaultSelectorAttr = "rel"
	// SyntheticIDPrefix prefixes ids assigned to placeholders without one.
	SyntheticIDPrefix = "ph_"
)

// ErrMissingSelector aborts collection for the whole page: every placeholder
// must name its content block.
var ErrMissingSelector = errors.New("found placeholder without content selector")

// Collector scans a document for placeholders.
type Collector struct {
	// Class marks placeholder elements.
	Class string
	// SelectorAttr holds the content selector on a placeholder.
	SelectorAttr string
}

// NewCollector returns a Collector, falling back to the default marker class
// and selector attribute for empty arguments.
func NewCollector(class, selectorAttr string) *Collector {
	if class == "" {
		class = DefaultClass
	}
	if selectorAttr == "" {
		selectorAttr = DefaultSelectorAttr
	}
	return &Collector{Class: class, SelectorAttr: selectorAttr}
}

// Collection is the ordered id -> selector mapping of one page.
type Collection struct {
	blocks blocks.OrderedMap
	count  int
}

// Blocks returns the mapping in document order.
func (c *Collection) Blocks() blocks.OrderedMap {
	return c.blocks
}

// Count is the number of successfully collected placeholders.
func (c *Collection) Count() int {
	return c.count
}

// Collect walks the placeholders in document order. A placeholder without an
// id is given ph_<n>, where n counts the placeholders collected so far. A
// placeholder without a selector stops the scan with ErrMissingSelector, even
// when it has its own id; ids assigned before that point stay on the page.
func (c *Collector) Collect(doc page.Document) (*Collection, error) {
	out := &Collection{}
	counter := 0
	for _, el := range doc.Placeholders(c.Class) {
		id := el.ID()
		if id == "" {
			id = SyntheticIDPrefix + strconv.Itoa(counter)
			el.SetID(id)
		}
		selector, _ := el.Attr(c.SelectorAttr)
		if selector == "" {
			return nil, fmt.Errorf("%w: placeholder %q has no %s attribute", ErrMissingSelector, id, c.SelectorAttr)
		}
		out.blocks.Set(id, selector)
		counter++
	}
	out.count = counter
	return out, nil
}

// Package blocks defines the wire contract with the block endpoint: the
// batched request payload and the blocks/code response.
package blocks

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// Query parameter names understood by the block endpoint.
const (
	ParamBlocks    = "getBlocks"
	ParamURL       = "url"
	ParamProductID = "currentProductId"
)

// Payload is the single request sent per page.
type Payload struct {
	// Blocks maps placeholder id to content selector, in document order.
	Blocks OrderedMap
	// PageURL is the URL of the page being assembled.
	PageURL string
	// CurrentProductID is empty when the page has no current product.
	CurrentProductID string
}

// Encode renders the payload as a query string in the nested-key form the
// endpoint parses: getBlocks[<id>]=<selector> pairs in document order, then
// url, then currentProductId when set. An empty block mapping adds no keys.
func (p *Payload) Encode() string {
	var parts []string
	for _, pair := range p.Blocks.Pairs() {
		key := ParamBlocks + "[" + pair.Key + "]"
		parts = append(parts, url.QueryEscape(key)+"="+url.QueryEscape(pair.Value))
	}
	parts = append(parts, ParamURL+"="+url.QueryEscape(p.PageURL))
	if p.CurrentProductID != "" {
		parts = append(parts, ParamProductID+"="+url.QueryEscape(p.CurrentProductID))
	}
	return strings.Join(parts, "&")
}

// ParsePayload decodes a query string produced by Encode, keeping the order
// of the getBlocks entries. Unknown parameters are ignored.
func ParsePayload(rawQuery string) (*Payload, error) {
	p := &Payload{}
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		rawKey, rawVal, _ := strings.Cut(part, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, fmt.Errorf("decode key %q: %w", rawKey, err)
		}
		val, err := url.QueryUnescape(rawVal)
		if err != nil {
			return nil, fmt.Errorf("decode value for %q: %w", key, err)
		}

		switch {
		case key == ParamURL:
			p.PageURL = val
		case key == ParamProductID:
			p.CurrentProductID = val
		case strings.HasPrefix(key, ParamBlocks+"[") && strings.HasSuffix(key, "]"):
			id := key[len(ParamBlocks)+1 : len(key)-1]
			p.Blocks.Set(id, val)
		}
	}
	return p, nil
}

// Response is what the endpoint returns. Either field may be absent.
type Response struct {
	// Blocks maps placeholder id to the HTML fragment replacing its content.
	Blocks OrderedMap `json:"blocks"`
	// Code maps an arbitrary key to a script the page should run.
	Code OrderedMap `json:"code"`
}

// DecodeResponse reads a JSON response body.
func DecodeResponse(r io.Reader) (*Response, error) {
	var resp Response
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

// Package confluence implements the upstream side of the attachment proxy:
// canonical cache keys and download URLs for (page ID, filename) pairs, the
// authenticated HTTP client that fetches attachments and page documents, and
// the typed error taxonomy shared with the gateway.
package confluence

import (
	"encoding/json"
	"time"
)

// Resource is an immutable fetched attachment. It is created once on a
// successful upstream fetch and never mutated afterwards; the cache hands
// out the same instance to every reader.
type Resource struct {
	Body        []byte
	ContentType string
	// Headers carries the whitelisted subset of upstream response headers
	// (Content-Disposition, Cache-Control, ETag, Last-Modified).
	Headers   map[string]string
	FetchedAt time.Time
}

// Attachment is one entry of a page's attachment listing.
type Attachment struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Page is a Confluence page document fetched through the REST content API
// with body.storage, version, space, and children.attachment expanded.
// Fields the proxy does not interpret are kept as raw JSON and echoed back
// to the client unchanged.
type Page struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Title   string          `json:"title"`
	Space   json.RawMessage `json:"space,omitempty"`
	Version json.RawMessage `json:"version,omitempty"`
	Links   json.RawMessage `json:"_links,omitempty"`

	Body struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`

	Children struct {
		Attachment struct {
			Results []Attachment `json:"results"`
		} `json:"attachment"`
	} `json:"children"`
}

// Content returns the page body in Confluence storage format.
func (p *Page) Content() string {
	return p.Body.Storage.Value
}

// Attachments returns the page's attachment listing.
func (p *Page) Attachments() []Attachment {
	return p.Children.Attachment.Results
}

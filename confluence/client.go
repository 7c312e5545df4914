package confluence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"
)

// Whitelisted upstream response headers carried through to clients.
var passthroughHeaders = []string{
	"Content-Disposition",
	"Cache-Control",
	"ETag",
	"Last-Modified",
}

var dispositionFilename = regexp.MustCompile(`filename="([^"]+)"`)

// Client performs authenticated fetches against a single Confluence
// instance. One Client is shared by the whole process; its http.Client
// reuses pooled connections and enforces a hard per-call deadline.
// The Client never retries — retry policy belongs to the caller.
type Client struct {
	baseURL string
	cred    Credential
	httpc   *http.Client
}

// NewClient creates a Client for the given base URL and credential.
// timeout bounds every individual fetch; exceeding it yields a
// KindUpstreamTransient error.
func NewClient(baseURL string, cred Credential, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		cred:    cred,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the configured Confluence base URL (no trailing slash).
func (c *Client) BaseURL() string { return c.baseURL }

// FetchAttachment downloads one attachment. It issues a single
// authenticated GET and returns the body with its content type and the
// whitelisted response headers, or a typed error.
func (c *Client) FetchAttachment(ctx context.Context, ref AttachmentRef) (*Resource, error) {
	return c.Fetch(ctx, ref.DownloadURL(c.baseURL))
}

// FetchPage retrieves a page document through the REST content API with
// storage body, version, space, and attachment listing expanded.
func (c *Client) FetchPage(ctx context.Context, pageID string) (*Page, error) {
	if pageID == "" {
		return nil, NewValidationError("page ID must not be empty")
	}
	apiURL := fmt.Sprintf("%s/rest/api/content/%s?expand=%s",
		c.baseURL, url.PathEscape(pageID),
		url.QueryEscape("body.storage,version,space,children.attachment"))

	res, err := c.Fetch(ctx, apiURL)
	if err != nil {
		return nil, err
	}
	var page Page
	if err := json.Unmarshal(res.Body, &page); err != nil {
		return nil, fmt.Errorf("decoding page %s: %w", pageID, err)
	}
	return &page, nil
}

// Fetch performs one authenticated GET against rawURL and returns the
// response as a Resource. It has no side effects besides the network call.
// The general passthrough route uses it directly with an absolute URL.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Resource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building upstream request: %w", err)
	}
	if c.cred != nil {
		if err := c.cred.Apply(req); err != nil {
			return nil, err
		}
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		// Timeouts and connection failures are transient; the cache is
		// never populated with a partial result.
		return nil, &Error{Kind: KindUpstreamTransient, Message: "upstream fetch failed: " + redactURLError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errFromStatus(resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindUpstreamTransient, Message: "reading upstream body failed"}
	}

	headers := make(map[string]string, len(passthroughHeaders))
	for _, h := range passthroughHeaders {
		if v := resp.Header.Get(h); v != "" {
			headers[h] = v
		}
	}

	return &Resource{
		Body:        body,
		ContentType: resolveContentType(resp.Header),
		Headers:     headers,
		FetchedAt:   time.Now(),
	}, nil
}

// resolveContentType returns the upstream Content-Type, falling back to a
// guess from the Content-Disposition filename extension, then to
// application/octet-stream.
func resolveContentType(h http.Header) string {
	if ct := h.Get("Content-Type"); ct != "" {
		return ct
	}
	if m := dispositionFilename.FindStringSubmatch(h.Get("Content-Disposition")); m != nil {
		if ct := mime.TypeByExtension(path.Ext(m[1])); ct != "" {
			return ct
		}
	}
	return "application/octet-stream"
}

// redactURLError strips the request URL (which may embed query secrets)
// from a transport error before it can reach logs or clients.
func redactURLError(err error) string {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err.Error()
	}
	return err.Error()
}

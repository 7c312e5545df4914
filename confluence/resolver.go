package confluence

import (
	"net/url"
	"strings"
)

// AttachmentRef is a validated (page ID, filename) pair. Construct one with
// ResolveAttachment; the zero value is not meaningful.
type AttachmentRef struct {
	PageID   string
	Filename string
}

// ResolveAttachment validates the raw inputs of an attachment request.
// Both values must be non-empty. Filenames containing path separators,
// traversal sequences, or control characters are rejected outright rather
// than normalized — a normalized name would build an ambiguous upstream URL.
func ResolveAttachment(pageID, filename string) (AttachmentRef, error) {
	if pageID == "" {
		return AttachmentRef{}, NewValidationError("page ID must not be empty")
	}
	if filename == "" {
		return AttachmentRef{}, NewValidationError("filename must not be empty")
	}
	if strings.ContainsAny(filename, "/\\") {
		return AttachmentRef{}, NewValidationError("filename %q contains a path separator", filename)
	}
	if filename == "." || strings.Contains(filename, "..") {
		return AttachmentRef{}, NewValidationError("filename %q contains a path traversal sequence", filename)
	}
	for _, r := range filename {
		if r < 0x20 || r == 0x7f {
			return AttachmentRef{}, NewValidationError("filename contains control characters")
		}
	}
	return AttachmentRef{PageID: pageID, Filename: filename}, nil
}

// CacheKey returns the canonical cache key for the reference. Both parts
// are path-escaped before joining so that distinct (pageID, filename)
// pairs can never collide.
func (r AttachmentRef) CacheKey() string {
	return "confluence/attachment/" + url.PathEscape(r.PageID) + "/" + url.PathEscape(r.Filename)
}

// DownloadURL builds the upstream download URL for the reference, with the
// filename percent-encoded per path-segment rules.
func (r AttachmentRef) DownloadURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	return base + "/download/attachments/" + url.PathEscape(r.PageID) + "/" + url.PathEscape(r.Filename)
}

// Package preprocessing rewrites Confluence storage-format content so that
// attachment references point at the proxy instead of the credentialed
// upstream. It handles the three macro forms Confluence emits (ac:image,
// bare ri:attachment, ac:link with ri:attachment) plus plain
// /download/attachments links, both relative and absolute. References that
// cannot be parsed are replaced with a visible placeholder rather than left
// silently broken.
package preprocessing

import (
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/mortimer-cra/mcp-atlassian/confluence"
)

// URLBuilder turns an (identifier, filename) pair into a proxy URL. The
// gateway supplies one bound to the request's scheme, host, and base path.
type URLBuilder func(pageID, filename string) string

// Placeholders inserted where an attachment reference cannot be parsed.
const (
	placeholderImage      = "[Image attachment]"
	placeholderAttachment = "[Attachment]"
	placeholderLink       = "[Attachment link]"
)

var (
	acImagePattern = regexp.MustCompile(`(?s)<ac:image\b[^>]*>.*?</ac:image>`)
	acLinkPattern  = regexp.MustCompile(`(?s)<ac:link\b[^>]*>.*?</ac:link>`)

	riAttachmentPattern = regexp.MustCompile(`(?s)<ri:attachment\b[^>]*?(?:/>|>\s*</ri:attachment>)`)
	riFilenamePattern   = regexp.MustCompile(`<ri:attachment\b[^>]*?ri:filename="([^"]*)"`)

	acAltParamPattern  = regexp.MustCompile(`(?s)<ac:parameter\s+ac:name="(?:alt|title|caption)"[^>]*>(.*?)</ac:parameter>`)
	plainLinkBody      = regexp.MustCompile(`(?s)<ac:plain-text-link-body>\s*<!\[CDATA\[(.*?)\]\]>\s*</ac:plain-text-link-body>`)
	richLinkBody       = regexp.MustCompile(`(?s)<ac:link-body>(.*?)</ac:link-body>`)
	stripTagsPattern   = regexp.MustCompile(`<[^>]+>`)
	downloadLinkSuffix = `/download/attachments/(\d+)/([^)\s"'<>]+)`
)

// Confluence rewrites storage-format documents for one upstream instance.
type Confluence struct {
	relativeLink *regexp.Regexp
	absoluteLink *regexp.Regexp
}

// NewConfluence creates a rewriter. baseURL is the upstream origin, used to
// recognize absolute download links.
func NewConfluence(baseURL string) *Confluence {
	base := strings.TrimRight(baseURL, "/")
	return &Confluence{
		relativeLink: regexp.MustCompile(downloadLinkSuffix),
		absoluteLink: regexp.MustCompile(regexp.QuoteMeta(base) + downloadLinkSuffix),
	}
}

// Rewrite replaces every attachment macro, reference, and download link in
// content with the proxy URL produced by build. pageID identifies the page
// the content belongs to; macro references are resolved against it.
func (p *Confluence) Rewrite(content, pageID string, build URLBuilder) string {
	content = p.rewriteImageMacros(content, pageID, build)
	content = p.rewriteLinkMacros(content, pageID, build)
	content = p.rewriteBareRefs(content, pageID, build)
	// Absolute links first: the relative pattern would otherwise match
	// their path component and leave the upstream origin prefixed.
	content = p.rewriteDownloadLinks(content, p.absoluteLink, build)
	content = p.rewriteDownloadLinks(content, p.relativeLink, build)
	return content
}

// rewriteImageMacros turns <ac:image><ri:attachment .../></ac:image> into a
// plain img tag pointing at the proxy.
func (p *Confluence) rewriteImageMacros(content, pageID string, build URLBuilder) string {
	return acImagePattern.ReplaceAllStringFunc(content, func(m string) string {
		fm := riFilenamePattern.FindStringSubmatch(m)
		if fm == nil {
			// Not an attachment image (e.g. ri:url); leave it alone.
			return m
		}
		filename := html.UnescapeString(fm[1])
		if _, err := confluence.ResolveAttachment(pageID, filename); err != nil {
			return placeholderImage
		}
		alt := filename
		if am := acAltParamPattern.FindStringSubmatch(m); am != nil {
			if text := strings.TrimSpace(stripTagsPattern.ReplaceAllString(am[1], "")); text != "" {
				alt = text
			}
		}
		return `<img src="` + html.EscapeString(build(pageID, filename)) + `" alt="` + html.EscapeString(alt) + `">`
	})
}

// rewriteLinkMacros turns <ac:link><ri:attachment .../>...</ac:link> into a
// plain anchor. The link text comes from the link body when present,
// otherwise the filename.
func (p *Confluence) rewriteLinkMacros(content, pageID string, build URLBuilder) string {
	return acLinkPattern.ReplaceAllStringFunc(content, func(m string) string {
		fm := riFilenamePattern.FindStringSubmatch(m)
		if fm == nil {
			// Page or user link, not an attachment link.
			return m
		}
		filename := html.UnescapeString(fm[1])
		if _, err := confluence.ResolveAttachment(pageID, filename); err != nil {
			return placeholderLink
		}
		text := filename
		if bm := plainLinkBody.FindStringSubmatch(m); bm != nil {
			if t := strings.TrimSpace(bm[1]); t != "" {
				text = t
			}
		} else if bm := richLinkBody.FindStringSubmatch(m); bm != nil {
			if t := strings.TrimSpace(stripTagsPattern.ReplaceAllString(bm[1], "")); t != "" {
				text = t
			}
		}
		return `<a href="` + html.EscapeString(build(pageID, filename)) + `">` + html.EscapeString(text) + `</a>`
	})
}

// rewriteBareRefs handles ri:attachment references sitting outside any
// ac:image or ac:link. Those containers were already rewritten by the
// earlier passes, so whatever ri:attachment tags remain are bare.
func (p *Confluence) rewriteBareRefs(content, pageID string, build URLBuilder) string {
	return riAttachmentPattern.ReplaceAllStringFunc(content, func(m string) string {
		fm := riFilenamePattern.FindStringSubmatch(m)
		if fm == nil {
			return placeholderAttachment
		}
		filename := html.UnescapeString(fm[1])
		if _, err := confluence.ResolveAttachment(pageID, filename); err != nil {
			return placeholderAttachment
		}
		return `<a href="` + html.EscapeString(build(pageID, filename)) + `">` + html.EscapeString(filename) + `</a>`
	})
}

// rewriteDownloadLinks replaces /download/attachments/{id}/{filename} URLs
// with proxy URLs. The page ID is taken from the link itself, so links to
// other pages' attachments are proxied too.
func (p *Confluence) rewriteDownloadLinks(content string, pattern *regexp.Regexp, build URLBuilder) string {
	return pattern.ReplaceAllStringFunc(content, func(m string) string {
		sub := pattern.FindStringSubmatch(m)
		linkPageID := sub[1]
		filename, err := url.PathUnescape(sub[2])
		if err != nil {
			return m
		}
		if _, rerr := confluence.ResolveAttachment(linkPageID, filename); rerr != nil {
			return m
		}
		return build(linkPageID, filename)
	})
}

package preprocessing

import (
	"strings"
	"testing"
)

const wikiBase = "https://wiki.example.com"

func proxyURL(pageID, filename string) string {
	return "http://proxy.local/proxy/confluence/attachment/" + pageID + "/" + filename
}

func TestRewrite_ImageMacro(t *testing.T) {
	p := NewConfluence(wikiBase)
	in := `<p>before</p><ac:image ac:width="300"><ri:attachment ri:filename="diagram.png"/></ac:image><p>after</p>`

	out := p.Rewrite(in, "12345", proxyURL)

	want := `<img src="http://proxy.local/proxy/confluence/attachment/12345/diagram.png" alt="diagram.png">`
	if !strings.Contains(out, want) {
		t.Errorf("missing rewritten img tag in %q", out)
	}
	if strings.Contains(out, "ac:image") || strings.Contains(out, "ri:attachment") {
		t.Errorf("macro markup survived rewrite: %q", out)
	}
}

func TestRewrite_ImageMacroWithAltParameter(t *testing.T) {
	p := NewConfluence(wikiBase)
	in := `<ac:image><ri:attachment ri:filename="arch.png"/><ac:parameter ac:name="alt">System architecture</ac:parameter></ac:image>`

	out := p.Rewrite(in, "1", proxyURL)

	if !strings.Contains(out, `alt="System architecture"`) {
		t.Errorf("expected alt parameter as alt text, got %q", out)
	}
}

func TestRewrite_ImageMacroWithExternalURLUntouched(t *testing.T) {
	p := NewConfluence(wikiBase)
	in := `<ac:image><ri:url ri:value="https://cdn.example.com/pic.png"/></ac:image>`

	if out := p.Rewrite(in, "1", proxyURL); out != in {
		t.Errorf("external image macro should be left alone, got %q", out)
	}
}

func TestRewrite_LinkMacroWithPlainTextBody(t *testing.T) {
	p := NewConfluence(wikiBase)
	in := `<ac:link><ri:attachment ri:filename="report.pdf"/><ac:plain-text-link-body><![CDATA[Quarterly report]]></ac:plain-text-link-body></ac:link>`

	out := p.Rewrite(in, "77", proxyURL)

	want := `<a href="http://proxy.local/proxy/confluence/attachment/77/report.pdf">Quarterly report</a>`
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestRewrite_LinkMacroFallsBackToFilename(t *testing.T) {
	p := NewConfluence(wikiBase)
	in := `<ac:link><ri:attachment ri:filename="notes.txt"/></ac:link>`

	out := p.Rewrite(in, "77", proxyURL)

	if !strings.Contains(out, ">notes.txt</a>") {
		t.Errorf("expected filename as link text, got %q", out)
	}
}

func TestRewrite_PageLinkMacroUntouched(t *testing.T) {
	p := NewConfluence(wikiBase)
	in := `<ac:link><ri:page ri:content-title="Other Page"/></ac:link>`

	if out := p.Rewrite(in, "1", proxyURL); out != in {
		t.Errorf("page link should be left alone, got %q", out)
	}
}

func TestRewrite_BareAttachmentRef(t *testing.T) {
	p := NewConfluence(wikiBase)
	in := `<p>see <ri:attachment ri:filename="spec.docx"/> for details</p>`

	out := p.Rewrite(in, "42", proxyURL)

	want := `<a href="http://proxy.local/proxy/confluence/attachment/42/spec.docx">spec.docx</a>`
	if !strings.Contains(out, want) {
		t.Errorf("got %q, want fragment %q", out, want)
	}
}

func TestRewrite_InvalidFilenameBecomesPlaceholder(t *testing.T) {
	p := NewConfluence(wikiBase)
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			"image traversal",
			`<ac:image><ri:attachment ri:filename="../../etc/passwd"/></ac:image>`,
			"[Image attachment]",
		},
		{
			"link traversal",
			`<ac:link><ri:attachment ri:filename="a/b.pdf"/></ac:link>`,
			"[Attachment link]",
		},
		{
			"bare ref without filename",
			`<ri:attachment ri:version-at-save="1"/>`,
			"[Attachment]",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := p.Rewrite(tc.in, "1", proxyURL)
			if out != tc.want {
				t.Errorf("got %q, want %q", out, tc.want)
			}
		})
	}
}

func TestRewrite_RelativeDownloadLink(t *testing.T) {
	p := NewConfluence(wikiBase)
	in := `<a href="/download/attachments/555/manual.pdf">manual</a>`

	out := p.Rewrite(in, "1", proxyURL)

	if !strings.Contains(out, proxyURL("555", "manual.pdf")) {
		t.Errorf("expected proxied link, got %q", out)
	}
	if strings.Contains(out, "/download/attachments/") {
		t.Errorf("download path survived rewrite: %q", out)
	}
}

func TestRewrite_AbsoluteDownloadLink(t *testing.T) {
	p := NewConfluence(wikiBase)
	in := `see https://wiki.example.com/download/attachments/555/manual.pdf here`

	out := p.Rewrite(in, "1", proxyURL)

	if !strings.Contains(out, proxyURL("555", "manual.pdf")) {
		t.Errorf("expected proxied link, got %q", out)
	}
	if strings.Contains(out, wikiBase+"/download") {
		t.Errorf("upstream origin survived rewrite: %q", out)
	}
}

func TestRewrite_DownloadLinkKeepsOwnPageID(t *testing.T) {
	// A link to another page's attachment proxies under that page's ID,
	// not the ID of the page being rewritten.
	p := NewConfluence(wikiBase)
	in := `<a href="/download/attachments/999/other.png">x</a>`

	out := p.Rewrite(in, "12345", proxyURL)

	if !strings.Contains(out, proxyURL("999", "other.png")) {
		t.Errorf("expected link page ID to win, got %q", out)
	}
}

func TestRewrite_PercentEncodedFilenameDecoded(t *testing.T) {
	p := NewConfluence(wikiBase)
	in := `<a href="/download/attachments/1/my%20report.pdf">r</a>`

	out := p.Rewrite(in, "1", proxyURL)

	if !strings.Contains(out, proxyURL("1", "my report.pdf")) {
		t.Errorf("expected decoded filename handed to builder, got %q", out)
	}
}

func TestRewrite_MultipleMacrosInOneDocument(t *testing.T) {
	p := NewConfluence(wikiBase)
	in := `<ac:image><ri:attachment ri:filename="a.png"/></ac:image>` +
		`<p>text</p>` +
		`<ac:image><ri:attachment ri:filename="b.png"/></ac:image>`

	out := p.Rewrite(in, "7", proxyURL)

	if !strings.Contains(out, proxyURL("7", "a.png")) || !strings.Contains(out, proxyURL("7", "b.png")) {
		t.Errorf("expected both images rewritten, got %q", out)
	}
	if !strings.Contains(out, "<p>text</p>") {
		t.Errorf("intervening content damaged: %q", out)
	}
}

func TestRewrite_EmptyContent(t *testing.T) {
	p := NewConfluence(wikiBase)
	if out := p.Rewrite("", "1", proxyURL); out != "" {
		t.Errorf("expected empty output, got %q", out)
	}
}

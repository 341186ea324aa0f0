// Copyright 2026 The Mindroom Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"bytes"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/mindroom-ai/mindroom/messaging"
)

// markdownInstance is initialized once and reused. The configuration
// never changes and goldmark.Markdown is safe to share; per-call
// state lives in Convert.
var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

func markdownRenderer() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		)
	})
	return markdownInstance
}

// htmlFormat is the Matrix content format for HTML formatted bodies.
const htmlFormat = "org.matrix.custom.html"

// renderHTML converts markdown to the HTML carried in formatted_body.
// Returns ok=false when rendering fails or adds nothing over the
// plain body (a bare paragraph), in which case the message goes out
// unformatted.
func renderHTML(body string) (string, bool) {
	var buf bytes.Buffer
	if err := markdownRenderer().Convert([]byte(body), &buf); err != nil {
		return "", false
	}
	html := strings.TrimSpace(buf.String())
	plain := "<p>" + html2escape(body) + "</p>"
	if html == "" || html == plain {
		return "", false
	}
	return html, true
}

func html2escape(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
	)
	return replacer.Replace(s)
}

// formatContent attaches the rendered HTML body to outbound content.
func formatContent(content messaging.MessageContent) messaging.MessageContent {
	if html, ok := renderHTML(content.Body); ok {
		content.Format = htmlFormat
		content.FormattedBody = html
	}
	return content
}

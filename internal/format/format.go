// Package format renders search responses for consumption by a language
// model: a numbered citation block and a markdown reference list.
package format

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/markdown"

	"github.com/JakeFAU/websearch-crawler/internal/crawler"
)

// CitationInstruction tells the reader how to reference results.
const CitationInstruction = "Cite sources inline by their bracket number, for example [1]."

// Output bundles both renderings of a response.
type Output struct {
	Context    string `json:"context"`
	References string `json:"references"`
}

// Format renders resp in both forms.
func Format(resp crawler.Response) Output {
	return Output{
		Context:    Context(resp),
		References: References(resp),
	}
}

// Context renders the numbered citation block.
func Context(resp crawler.Response) string {
	var b strings.Builder
	if len(resp.Results) == 0 {
		fmt.Fprintf(&b, "No web results found for %q.", resp.Query)
		if resp.Diagnostic != "" {
			fmt.Fprintf(&b, " (%s)", resp.Diagnostic)
		}
		b.WriteString("\n")
		return b.String()
	}

	fmt.Fprintf(&b, "Web results for %q", resp.Query)
	if resp.Provider != "" {
		fmt.Fprintf(&b, " via %s", resp.Provider)
	}
	if !resp.Timestamp.IsZero() {
		fmt.Fprintf(&b, " at %s", resp.Timestamp.UTC().Format(time.RFC3339))
	}
	b.WriteString(":\n\n")

	for i, r := range resp.Results {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, oneLine(r.Title))
		fmt.Fprintf(&b, "URL: %s\n", r.URL)
		if r.SiteName != "" {
			fmt.Fprintf(&b, "Site: %s\n", oneLine(r.SiteName))
		}
		if r.PublishedAt != nil {
			fmt.Fprintf(&b, "Published: %s\n", r.PublishedAt.UTC().Format("2006-01-02"))
		}
		if r.Snippet != "" {
			fmt.Fprintf(&b, "Snippet: %s\n", oneLine(r.Snippet))
		}
		if r.Excerpt != "" {
			fmt.Fprintf(&b, "Excerpt: %s\n", oneLine(r.Excerpt))
		}
		b.WriteString("\n")
	}
	b.WriteString(CitationInstruction)
	b.WriteString("\n")
	return b.String()
}

// References renders "[n] [title](url)" lines as markdown.
func References(resp crawler.Response) string {
	if len(resp.Results) == 0 {
		return ""
	}
	md := markdown.NewMarkdown(io.Discard)
	md.H2("Sources")
	md.PlainText("")
	for i, r := range resp.Results {
		title := oneLine(r.Title)
		if title == "" {
			title = r.URL
		}
		md.PlainTextf("[%d] %s  ", i+1, markdown.Link(escapeLinkText(title), r.URL))
	}
	return md.String() + "\n"
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var linkTextEscaper = strings.NewReplacer(`[`, `\[`, `]`, `\]`)

func escapeLinkText(s string) string {
	return linkTextEscaper.Replace(s)
}

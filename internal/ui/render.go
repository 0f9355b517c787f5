package ui

import (
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/charmbracelet/glamour"
)

var htmlTag = regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9]*(\s[^>]*)?/?>`)

// replyRenderer turns assistant replies, which may be HTML, into styled
// terminal text. Falls back to the raw text when rendering fails.
type replyRenderer struct {
	width int
	term  *glamour.TermRenderer
	cache map[string]string
}

// SetWidth rebuilds the renderer when the wrap width changes.
func (r *replyRenderer) SetWidth(width int) {
	if width == r.width && r.term != nil {
		return
	}
	r.width = width
	r.cache = make(map[string]string)
	term, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(max(width, 20)),
	)
	if err != nil {
		r.term = nil
		return
	}
	r.term = term
}

// Render converts reply to terminal text.
func (r *replyRenderer) Render(reply string) string {
	if out, ok := r.cache[reply]; ok {
		return out
	}
	md := ToMarkdown(reply)
	if r.term == nil {
		return md
	}
	out, err := r.term.Render(md)
	if err != nil {
		return md
	}
	out = strings.Trim(out, "\n")
	r.cache[reply] = out
	return out
}

// ToMarkdown converts HTML replies to markdown and passes anything else
// through.
func ToMarkdown(reply string) string {
	if !htmlTag.MatchString(reply) {
		return reply
	}
	md, err := htmltomarkdown.ConvertString(reply)
	if err != nil {
		return reply
	}
	return strings.TrimSpace(md)
}

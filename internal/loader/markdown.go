package loader

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// MarkdownLoader keeps the text of a markdown document and drops its markup:
// inline HTML, heading and quote markers, emphasis, link and image syntax,
// code fences and table rules.
type MarkdownLoader struct{}

var (
	mdImage      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	mdLink       = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	mdRefLink    = regexp.MustCompile(`\[([^\]]+)\]\[[^\]]*\]`)
	mdStrong     = regexp.MustCompile(`(\*\*|__)(\S(?:.*?\S)?)(\*\*|__)`)
	mdEmphasis   = regexp.MustCompile(`\*(\S(?:[^*]*?\S)?)\*`)
	mdInlineCode = regexp.MustCompile("`([^`]+)`")
	mdHeading    = regexp.MustCompile(`^\s{0,3}#{1,6}\s+`)
	mdQuote      = regexp.MustCompile(`^\s*>\s?`)
	mdRule       = regexp.MustCompile(`^\s*([-*_])(\s*[-*_]){2,}\s*$`)
	mdTableRule  = regexp.MustCompile(`^\s*\|?\s*:?-{2,}:?\s*(\|\s*:?-{2,}:?\s*)*\|?\s*$`)
	mdFence      = regexp.MustCompile("^\\s*(```|~~~)")
	mdRefDef     = regexp.MustCompile(`^\s{0,3}\[[^\]]+\]:\s+\S+`)
)

func (MarkdownLoader) Load(data []byte) (string, error) {
	text := stripHTML(decodeText(data))
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if mdFence.MatchString(line) || mdRule.MatchString(line) ||
			mdTableRule.MatchString(line) || mdRefDef.MatchString(line) {
			continue
		}
		line = mdHeading.ReplaceAllString(line, "")
		line = mdQuote.ReplaceAllString(line, "")
		line = mdImage.ReplaceAllString(line, "$1")
		line = mdLink.ReplaceAllString(line, "$1")
		line = mdRefLink.ReplaceAllString(line, "$1")
		line = mdStrong.ReplaceAllString(line, "$2")
		line = mdEmphasis.ReplaceAllString(line, "$1")
		line = mdInlineCode.ReplaceAllString(line, "$1")
		line = tableRow(line)
		out = append(out, strings.TrimRight(line, " \t"))
	}
	return collapseBlankLines(strings.Join(out, "\n")), nil
}

// tableRow turns "| a | b |" into "a | b".
func tableRow(line string) string {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "|") || !strings.HasSuffix(trimmed, "|") || len(trimmed) < 2 {
		return line
	}
	cells := strings.Split(trimmed[1:len(trimmed)-1], "|")
	for i, c := range cells {
		cells[i] = strings.TrimSpace(c)
	}
	return strings.Join(cells, " | ")
}

var htmlBreaks = map[string]bool{
	"br": true, "p": true, "div": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// htmlTag matches a complete tag or comment. A "<" that does not open
// one, as in "tenure <six months", is literal text.
var htmlTag = regexp.MustCompile(`<!--[\s\S]*?-->|</?[A-Za-z][A-Za-z0-9-]*(?:\s[^<>\n]*)?/?>`)

// stripHTML replaces inline HTML with its text content. Script and style
// bodies are dropped; entities are decoded.
func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	var buf strings.Builder
	skip, last := 0, 0
	for _, loc := range htmlTag.FindAllStringIndex(s, -1) {
		if skip == 0 {
			buf.WriteString(html.UnescapeString(s[last:loc[0]]))
		}
		last = loc[1]

		tt, tag := tagOf(s[loc[0]:loc[1]])
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			if tag == "script" || tag == "style" {
				skip++
			}
			if htmlBreaks[tag] && skip == 0 {
				buf.WriteByte('\n')
			}
		case html.EndTagToken:
			if (tag == "script" || tag == "style") && skip > 0 {
				skip--
			}
		}
	}
	if skip == 0 {
		buf.WriteString(html.UnescapeString(s[last:]))
	}
	return buf.String()
}

// tagOf tokenizes a single tag.
func tagOf(raw string) (html.TokenType, string) {
	z := html.NewTokenizer(strings.NewReader(raw))
	tt := z.Next()
	name, _ := z.TagName()
	return tt, string(name)
}

var blankRun = regexp.MustCompile(`\n{3,}`)

func collapseBlankLines(s string) string {
	return blankRun.ReplaceAllString(s, "\n\n")
}

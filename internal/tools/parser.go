package tools

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// DirectivePrefix starts every tool-call line in model output.
const DirectivePrefix = "TOOL_CALL:"

// Call is a tool invocation parsed from model output. Argument values are
// string, int64, float64 or bool.
type Call struct {
	Name string
	Args map[string]any
	Line string
}

// String renders the call back in directive syntax with sorted keys.
func (c Call) String() string {
	keys := make([]string, 0, len(c.Args))
	for k := range c.Args {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var sb strings.Builder
	sb.WriteString(c.Name)
	sb.WriteByte('(')
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(formatValue(c.Args[k]))
	}
	sb.WriteByte(')')
	return sb.String()
}

func formatValue(v any) string {
	switch v := v.(type) {
	case string:
		return strconv.Quote(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// Parse returns every well-formed directive in text, one per line, in
// order. A line that does not match the grammar exactly is not a tool call:
//
//	TOOL_CALL: name(key="value", n=3, x=1.5, flag=true)
func Parse(text string) []Call {
	var calls []Call
	for _, line := range strings.Split(text, "\n") {
		if c, ok := ParseLine(line); ok {
			calls = append(calls, c)
		}
	}
	return calls
}

// ParseLine parses a single directive line. Surrounding whitespace is
// allowed; anything else around the directive is not.
func ParseLine(line string) (Call, bool) {
	s := strings.TrimSpace(line)
	rest, ok := strings.CutPrefix(s, DirectivePrefix)
	if !ok {
		return Call{}, false
	}
	p := &lineParser{src: strings.TrimLeft(rest, " \t")}

	name, ok := p.ident()
	if !ok || !p.consume('(') {
		return Call{}, false
	}
	call := Call{Name: name, Args: map[string]any{}, Line: s}

	p.spaces()
	if p.consume(')') {
		return call, p.done()
	}
	for {
		p.spaces()
		key, ok := p.ident()
		if !ok {
			return Call{}, false
		}
		p.spaces()
		if !p.consume('=') {
			return Call{}, false
		}
		p.spaces()
		val, ok := p.value()
		if !ok {
			return Call{}, false
		}
		if _, dup := call.Args[key]; dup {
			return Call{}, false
		}
		call.Args[key] = val
		p.spaces()
		if p.consume(')') {
			return call, p.done()
		}
		if !p.consume(',') {
			return Call{}, false
		}
	}
}

type lineParser struct {
	src string
	pos int
}

func (p *lineParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *lineParser) consume(b byte) bool {
	if p.peek() == b && p.pos < len(p.src) {
		p.pos++
		return true
	}
	return false
}

func (p *lineParser) spaces() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *lineParser) done() bool {
	return p.pos == len(p.src)
}

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func (p *lineParser) ident() (string, bool) {
	start := p.pos
	if !isIdentStart(p.peek()) {
		return "", false
	}
	for p.pos < len(p.src) && (isIdentStart(p.src[p.pos]) || isDigit(p.src[p.pos])) {
		p.pos++
	}
	return p.src[start:p.pos], true
}

var numberPattern = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?`)

func (p *lineParser) value() (any, bool) {
	rest := p.src[p.pos:]
	switch {
	case p.peek() == '"':
		return p.quoted()
	case strings.HasPrefix(rest, "true"):
		p.pos += len("true")
		return true, p.atValueEnd()
	case strings.HasPrefix(rest, "false"):
		p.pos += len("false")
		return false, p.atValueEnd()
	}

	m := numberPattern.FindString(rest)
	if m == "" {
		return nil, false
	}
	p.pos += len(m)
	if !p.atValueEnd() {
		return nil, false
	}
	if strings.Contains(m, ".") {
		f, err := strconv.ParseFloat(m, 64)
		return f, err == nil
	}
	n, err := strconv.ParseInt(m, 10, 64)
	return n, err == nil
}

// atValueEnd reports whether an unquoted value ends here.
func (p *lineParser) atValueEnd() bool {
	switch p.peek() {
	case ',', ')', ' ', '\t':
		return true
	}
	return false
}

func (p *lineParser) quoted() (any, bool) {
	p.pos++ // opening quote
	var sb strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch c {
		case '"':
			p.pos++
			return sb.String(), true
		case '\\':
			if p.pos+1 >= len(p.src) {
				return nil, false
			}
			switch esc := p.src[p.pos+1]; esc {
			case '"', '\\':
				sb.WriteByte(esc)
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				return nil, false
			}
			p.pos += 2
		default:
			sb.WriteByte(c)
			p.pos++
		}
	}
	return nil, false
}

var inlineDirective = regexp.MustCompile(`TOOL_CALL:\s*\w+\([^)\n]*\)`)

// Strip removes directive lines and inline directive fragments from a final
// answer, then trims the result.
func Strip(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), DirectivePrefix) {
			continue
		}
		kept = append(kept, strings.TrimRight(inlineDirective.ReplaceAllString(line, ""), " \t"))
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

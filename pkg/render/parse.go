package render

import (
	"strings"

	"gitlab.com/golang-commonmark/linkify"
)

// Parse splits a bot message into segments in one forward pass.
//
// Two tags are recognised: <button value="v">label</button> and
// <download url="u" name="n"></download> (or self-closing). Anything that does
// not form one of them is kept as text, where bare URLs become links.
func Parse(message string) []Segment {
	p := &parser{
		src:    message,
		folded: asciiLower(message),
	}
	p.run()
	return p.out
}

type parser struct {
	src    string
	folded string
	out    []Segment

	// Cached forward searches for closing tags. A cached position stays valid
	// while it is not behind the cursor, which keeps parsing linear.
	closeButton   search
	closeDownload search
}

type search struct {
	at   int
	done bool
}

func (p *parser) find(s *search, needle string, from int) int {
	if s.done && (s.at < 0 || s.at >= from) {
		return s.at
	}
	idx := strings.Index(p.folded[from:], needle)
	if idx >= 0 {
		idx += from
	}
	*s = search{at: idx, done: true}
	return idx
}

func (p *parser) run() {
	textStart := 0
	i := 0
	for i < len(p.src) {
		lt := strings.IndexByte(p.src[i:], '<')
		if lt < 0 {
			break
		}
		i += lt
		seg, end, ok := p.tag(i)
		if !ok {
			i++
			continue
		}
		p.text(p.src[textStart:i])
		p.out = append(p.out, seg)
		i = end
		textStart = end
	}
	p.text(p.src[textStart:])
}

// tag tries to read a recognised tag starting at i.
func (p *parser) tag(i int) (Segment, int, bool) {
	switch {
	case hasTagName(p.folded, i, "button"):
		return p.button(i + len("<button"))
	case hasTagName(p.folded, i, "download"):
		return p.download(i + len("<download"))
	default:
		return Segment{}, 0, false
	}
}

func (p *parser) button(i int) (Segment, int, bool) {
	attrs, next, selfClosing, ok := parseAttrs(p.src, i)
	if !ok || selfClosing {
		return Segment{}, 0, false
	}
	closeAt := p.find(&p.closeButton, "</button>", next)
	if closeAt < 0 {
		return Segment{}, 0, false
	}
	label := strings.TrimSpace(p.src[next:closeAt])
	value, hasValue := attrs["value"]
	if !hasValue {
		value = label
	}
	return Segment{Kind: KindButton, Text: label, Value: value}, closeAt + len("</button>"), true
}

func (p *parser) download(i int) (Segment, int, bool) {
	attrs, next, selfClosing, ok := parseAttrs(p.src, i)
	if !ok {
		return Segment{}, 0, false
	}
	url, ok := downloadTarget(strings.TrimSpace(attrs["url"]))
	if !ok {
		return Segment{}, 0, false
	}
	end := next
	inner := ""
	if !selfClosing {
		closeAt := p.find(&p.closeDownload, "</download>", next)
		if closeAt < 0 {
			return Segment{}, 0, false
		}
		inner = strings.TrimSpace(p.src[next:closeAt])
		end = closeAt + len("</download>")
	}
	name := strings.TrimSpace(attrs["name"])
	if name == "" {
		name = inner
	}
	if name == "" {
		name = DefaultDownloadName
	}
	return Segment{Kind: KindDownload, Text: name, URL: url}, end, true
}

// text appends plain text, splitting out bare URLs.
func (p *parser) text(s string) {
	if s == "" {
		return
	}
	last := 0
	for _, l := range linkify.Links(s) {
		href, ok := linkTarget(s[l.Start:l.End])
		if !ok {
			continue
		}
		if l.Start > last {
			p.out = append(p.out, Segment{Kind: KindText, Text: s[last:l.Start]})
		}
		p.out = append(p.out, Segment{Kind: KindLink, Text: s[l.Start:l.End], URL: href})
		last = l.End
	}
	if last < len(s) {
		p.out = append(p.out, Segment{Kind: KindText, Text: s[last:]})
	}
}

// linkTarget returns a safe outbound URL. Only web links are turned into links;
// scheme-less matches such as "www.example.com" get https.
func linkTarget(raw string) (string, bool) {
	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "https://"), strings.HasPrefix(lower, "http://"):
		return raw, true
	case strings.HasPrefix(lower, "//"):
		return "https:" + raw, true
	case strings.Contains(lower, ":"), strings.Contains(lower, "@"):
		return "", false
	default:
		return "https://" + raw, true
	}
}

// downloadTarget accepts web URLs and relative paths. Any other scheme
// (javascript:, data:, ...) is refused so the tag degrades to text.
func downloadTarget(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "https://"), strings.HasPrefix(lower, "http://"):
		return raw, true
	case strings.HasPrefix(lower, "//"):
		return "https:" + raw, true
	}
	end := strings.IndexAny(raw, "/?#")
	if end < 0 {
		end = len(raw)
	}
	if strings.Contains(raw[:end], ":") {
		return "", false
	}
	return raw, true
}

// hasTagName reports whether s[i:] opens the named tag, e.g. "<button " or "<button>".
func hasTagName(folded string, i int, name string) bool {
	open := "<" + name
	if !strings.HasPrefix(folded[i:], open) {
		return false
	}
	j := i + len(open)
	if j >= len(folded) {
		return false
	}
	switch folded[j] {
	case '>', '/', ' ', '\t', '\n', '\r':
		return true
	}
	return false
}

// parseAttrs reads name="value" pairs up to the closing '>' of a start tag.
// Values must be quoted with " or '. Names are case-insensitive.
func parseAttrs(s string, i int) (attrs map[string]string, next int, selfClosing, ok bool) {
	attrs = make(map[string]string)
	for {
		i = skipSpace(s, i)
		if i >= len(s) {
			return nil, 0, false, false
		}
		switch s[i] {
		case '>':
			return attrs, i + 1, false, true
		case '/':
			if i+1 < len(s) && s[i+1] == '>' {
				return attrs, i + 2, true, true
			}
			return nil, 0, false, false
		}

		nameStart := i
		for i < len(s) && isNameByte(s[i]) {
			i++
		}
		if i == nameStart {
			return nil, 0, false, false
		}
		name := asciiLower(s[nameStart:i])

		i = skipSpace(s, i)
		if i >= len(s) || s[i] != '=' {
			return nil, 0, false, false
		}
		i = skipSpace(s, i+1)
		if i >= len(s) || (s[i] != '"' && s[i] != '\'') {
			return nil, 0, false, false
		}
		quote := s[i]
		end := strings.IndexByte(s[i+1:], quote)
		if end < 0 {
			return nil, 0, false, false
		}
		attrs[name] = s[i+1 : i+1+end]
		i += end + 2
	}
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

func isNameByte(c byte) bool {
	return c == '-' || c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// asciiLower folds ASCII letters only, so byte offsets match the input.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

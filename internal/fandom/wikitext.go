package fandom

import (
	"regexp"
	"strconv"
	"strings"
)

// Arg is one template argument. Positional arguments are named by their
// 1-based index.
type Arg struct {
	Name  string
	Value string
}

// Template is a {{...}} transclusion. Raw is its source text.
type Template struct {
	Name string
	Args []Arg
	Raw  string
}

// Arg returns the value of the argument named name.
func (t Template) Arg(name string) (string, bool) {
	for _, a := range t.Args {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Templates returns every template of text, nested ones included, ordered
// by their start offset.
func Templates(text string) []Template {
	var out []Template
	for i := 0; i+1 < len(text); {
		if text[i] != '{' || text[i+1] != '{' {
			i++
			continue
		}
		end := closing(text, i)
		if end < 0 {
			i += 2
			continue
		}
		raw := text[i:end]
		out = append(out, parseTemplate(raw))
		out = append(out, Templates(raw[2:len(raw)-2])...)
		i = end
	}
	return out
}

// closing returns the offset just after the "}}" matching the "{{" at
// start, or -1.
func closing(text string, start int) int {
	depth := 0
	for i := start; i+1 < len(text); {
		switch text[i : i+2] {
		case "{{":
			depth++
			i += 2
		case "}}":
			depth--
			i += 2
			if depth == 0 {
				return i
			}
		default:
			i++
		}
	}
	return -1
}

func parseTemplate(raw string) Template {
	parts := splitTopLevel(raw[2:len(raw)-2], '|')
	t := Template{Name: strings.TrimSpace(parts[0]), Raw: raw}

	pos := 0
	for _, p := range parts[1:] {
		if eq := indexTopLevel(p, '='); eq >= 0 {
			t.Args = append(t.Args, Arg{Name: strings.TrimSpace(p[:eq]), Value: p[eq+1:]})
			continue
		}
		pos++
		t.Args = append(t.Args, Arg{Name: strconv.Itoa(pos), Value: p})
	}
	return t
}

// splitTopLevel splits s at every sep outside nested templates and links.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	last := 0
	scanTopLevel(s, func(i int) bool {
		if s[i] == sep {
			parts = append(parts, s[last:i])
			last = i + 1
		}
		return true
	})
	return append(parts, s[last:])
}

func indexTopLevel(s string, c byte) int {
	at := -1
	scanTopLevel(s, func(i int) bool {
		if s[i] == c {
			at = i
			return false
		}
		return true
	})
	return at
}

// scanTopLevel calls fn with the offset of every byte of s that is not
// inside a {{...}} or [[...]] pair until fn returns false.
func scanTopLevel(s string, fn func(i int) bool) {
	braces, brackets := 0, 0
	for i := 0; i < len(s); i++ {
		if i+1 < len(s) {
			switch s[i : i+2] {
			case "{{":
				braces++
				i++
				continue
			case "}}":
				if braces > 0 {
					braces--
					i++
					continue
				}
			case "[[":
				brackets++
				i++
				continue
			case "]]":
				if brackets > 0 {
					brackets--
					i++
					continue
				}
			}
		}
		if braces == 0 && brackets == 0 && !fn(i) {
			return
		}
	}
}

// Section is a heading and the text below it up to the next heading of the
// same or a higher level. The lead section has level 0 and no title.
type Section struct {
	Level    int
	Title    string
	Contents string
	Children []*Section
}

// Descendants returns the subsections of s at any depth, in order.
func (s *Section) Descendants() []*Section {
	var out []*Section
	for _, c := range s.Children {
		out = append(out, c)
		out = append(out, c.Descendants()...)
	}
	return out
}

var reHeading = regexp.MustCompile(`(?m)^(={1,6})(.+?)(={1,6})[ \t]*$`)

// Sections returns the lead section followed by every headed section in
// document order. Contents include the text of subsections.
func Sections(text string) []*Section {
	type heading struct {
		level      int
		title      string
		start, end int
	}
	var heads []heading
	for _, m := range reHeading.FindAllStringSubmatchIndex(text, -1) {
		level := min(m[3]-m[2], m[7]-m[6])
		heads = append(heads, heading{
			level: level,
			title: strings.TrimSpace(text[m[4]:m[5]]),
			start: m[0],
			end:   m[1],
		})
	}

	leadEnd := len(text)
	if len(heads) > 0 {
		leadEnd = heads[0].start
	}
	lead := &Section{Contents: text[:leadEnd]}
	out := []*Section{lead}

	stack := []*Section{lead}
	for i, h := range heads {
		stop := len(text)
		for _, next := range heads[i+1:] {
			if next.level <= h.level {
				stop = next.start
				break
			}
		}
		sec := &Section{
			Level:    h.level,
			Title:    h.title,
			Contents: strings.TrimPrefix(text[h.end:stop], "\n"),
		}
		out = append(out, sec)

		for len(stack) > 1 && stack[len(stack)-1].Level >= h.level {
			stack = stack[:len(stack)-1]
		}
		if parent := stack[len(stack)-1]; parent != lead {
			parent.Children = append(parent.Children, sec)
		}
		stack = append(stack, sec)
	}
	return out
}

var (
	reTemplate   = regexp.MustCompile(`\{\{[^{}]*}}`)
	reLink       = regexp.MustCompile(`\[\[[^\]]+]]`)
	reComment    = regexp.MustCompile(`<!--[^>]+-->`)
	reApostrophe = regexp.MustCompile(`'''*`)
)

// StripFormat removes templates, links and comments, innermost first, then
// the bold and italic quote runs.
func StripFormat(s string) string {
	for _, re := range []*regexp.Regexp{reTemplate, reLink, reComment} {
		for re.MatchString(s) {
			s = re.ReplaceAllString(s, "")
		}
	}
	s = reApostrophe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

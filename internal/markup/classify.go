package markup

import (
	"slices"
	"strings"

	"golang.org/x/net/html"
)

// Kind is the rendering class of a narrative node.
type Kind int

const (
	Empty Kind = iota
	Ignored
	Heading
	List
	Emphasis
	Message
	MessageHeader
	Tabber
	Fold
	Plot
	Mail
	Text
)

var kindNames = [...]string{
	Empty:         "empty",
	Ignored:       "ignored",
	Heading:       "heading",
	List:          "list",
	Emphasis:      "emphasis",
	Message:       "message",
	MessageHeader: "message-header",
	Tabber:        "tabber",
	Fold:          "fold",
	Plot:          "plot",
	Mail:          "mail",
	Text:          "text",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Classify returns the kind n renders as under d.
func Classify(n *html.Node, d Dialect) Kind {
	return flattener{d: d}.classify(n)
}

func (f flattener) classify(n *html.Node) Kind {
	switch n.Type {
	case html.TextNode:
		if strings.TrimSpace(n.Data) == "" {
			return Empty
		}
		return Text
	case html.ElementNode:
	default:
		return Empty
	}

	classes := classList(n)
	has := func(names ...string) bool {
		for _, c := range classes {
			if slices.Contains(names, c) {
				return true
			}
		}
		return false
	}

	switch {
	case has(f.d.IgnoreClasses...):
		return Ignored
	case f.text(n) == "":
		return Empty
	case slices.Contains(f.d.HeadingTags, n.Data):
		return Heading
	case n.Data == "ul":
		return List
	case has("MessageFromMe", "MessageToMe"):
		return Message
	case has("MessageHeader"):
		return MessageHeader
	case has("tabber"):
		return Tabber
	case has(f.d.FoldClasses...):
		return Fold
	case has(f.d.PlotClasses...):
		return Plot
	case has("mailFrame"):
		return Mail
	case f.isEmphasis(n):
		return Emphasis
	default:
		return Text
	}
}

func (f flattener) isEmphasis(n *html.Node) bool {
	if slices.Contains(f.d.EmphasisTags, n.Data) {
		return true
	}
	if f.d.EmphasisStyle == "" {
		return false
	}
	if len(f.d.EmphasisStyleTags) > 0 && !slices.Contains(f.d.EmphasisStyleTags, n.Data) {
		return false
	}

	want := normalizeStyle(f.d.EmphasisStyle)
	var found bool
	var visit func(*html.Node)
	visit = func(x *html.Node) {
		if found || x.Type != html.ElementNode {
			return
		}
		if strings.Contains(normalizeStyle(attr(x, "style")), want) {
			found = true
			return
		}
		for c := x.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return found
}

func normalizeStyle(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func classList(n *html.Node) []string {
	if n == nil || n.Type != html.ElementNode {
		return nil
	}
	return strings.Fields(attr(n, "class"))
}

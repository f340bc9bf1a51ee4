package scrapers

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

var (
	reSpaces      = regexp.MustCompile(`[\s\p{Z}]+`)
	reLineBreaks  = regexp.MustCompile(`[\s\p{Z}]*\n+[\s\p{Z}]*`)
	reSlashes     = regexp.MustCompile(`[\s\p{Z}]*///[\s\p{Z}]*`)
	reBlankRuns   = regexp.MustCompile(` +`)
	reHeadingTag  = regexp.MustCompile(`^h(\d)$`)
	reLatin       = regexp.MustCompile(`[a-zA-Z]`)
	reLatinOrDot  = regexp.MustCompile(`[a-zA-Z.]+`)
	reMediaMarker = regexp.MustCompile(`Media[:a-zA-Z]+`)
	reFigureSpace = regexp.MustCompile(`图*[\s\p{Z}]+`)
)

// text is the trimmed text content of sel.
func text(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.Text())
}

// wrap returns a selection holding n. A nil n yields an empty selection.
func wrap(n *html.Node) *goquery.Selection {
	if n == nil {
		return &goquery.Selection{}
	}
	return goquery.NewDocumentFromNode(n).Selection
}

// nextNode returns the node after n in document order, descending into
// children first.
func nextNode(n *html.Node) *html.Node {
	if n.FirstChild != nil {
		return n.FirstChild
	}
	for ; n != nil; n = n.Parent {
		if n.NextSibling != nil {
			return n.NextSibling
		}
	}
	return nil
}

// prevNode returns the node before n in document order.
func prevNode(n *html.Node) *html.Node {
	if n.PrevSibling == nil {
		return n.Parent
	}
	n = n.PrevSibling
	for n.LastChild != nil {
		n = n.LastChild
	}
	return n
}

// findNext returns the first element after the start of sel, descendants
// included, that matches selector.
func findNext(sel *goquery.Selection, selector string) *goquery.Selection {
	if sel.Length() == 0 {
		return sel
	}
	m := cascadia.MustCompile(selector)
	for n := nextNode(sel.Get(0)); n != nil; n = nextNode(n) {
		if n.Type == html.ElementNode && m.Match(n) {
			return wrap(n)
		}
	}
	return wrap(nil)
}

// findAllNext returns every element after the start of sel that matches
// selector, in document order.
func findAllNext(sel *goquery.Selection, selector string) []*goquery.Selection {
	if sel.Length() == 0 {
		return nil
	}
	m := cascadia.MustCompile(selector)
	var out []*goquery.Selection
	for n := nextNode(sel.Get(0)); n != nil; n = nextNode(n) {
		if n.Type == html.ElementNode && m.Match(n) {
			out = append(out, wrap(n))
		}
	}
	return out
}

// findPrevious returns the closest element before sel that matches selector.
func findPrevious(sel *goquery.Selection, selector string) *goquery.Selection {
	if sel.Length() == 0 {
		return sel
	}
	m := cascadia.MustCompile(selector)
	for n := prevNode(sel.Get(0)); n != nil; n = prevNode(n) {
		if n.Type == html.ElementNode && m.Match(n) {
			return wrap(n)
		}
	}
	return wrap(nil)
}

// headingLevel returns the level of an h1..h6 selection, or 0.
func headingLevel(sel *goquery.Selection) int {
	m := reHeadingTag.FindStringSubmatch(goquery.NodeName(sel))
	if m == nil {
		return 0
	}
	return int(m[1][0] - '0')
}

// hidden reports whether the inline style of sel contains display:none.
func hidden(sel *goquery.Selection) bool {
	style, ok := sel.Attr("style")
	return ok && strings.Contains(style, "display:none")
}

// rarityOf returns the alt of the first image in sel, cut at the first dot.
func rarityOf(sel *goquery.Selection) (string, bool) {
	alt, ok := sel.Find("img").First().Attr("alt")
	if !ok {
		return "", false
	}
	before, _, _ := strings.Cut(alt, ".")
	return before, true
}

// link returns the title and href of sel.
func link(sel *goquery.Selection) (title, href string, ok bool) {
	title, tok := sel.Attr("title")
	href, hok := sel.Attr("href")
	return title, href, tok && hok
}

// textWithout is the text of sel with the subtrees matching selector left
// out. The document is not modified.
func textWithout(sel *goquery.Selection, selector string) string {
	m := cascadia.MustCompile(selector)
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
		case html.ElementNode:
			if m.Match(n) {
				return
			}
			fallthrough
		default:
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return sb.String()
}

// normalizeBlock squeezes blank lines and turns "///" separators into line
// breaks.
func normalizeBlock(s string, splitSpaces bool) string {
	s = strings.TrimSpace(reLineBreaks.ReplaceAllString(s, "\n"))
	if splitSpaces {
		s = reBlankRuns.ReplaceAllString(s, "\n")
	}
	return reSlashes.ReplaceAllString(s, "\n")
}

// tail returns the elements of sel from index i on.
func tail(sel *goquery.Selection, i int) *goquery.Selection {
	if i >= sel.Length() {
		return sel.Slice(0, 0)
	}
	return sel.Slice(i, sel.Length())
}

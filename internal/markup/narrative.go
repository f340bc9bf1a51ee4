package markup

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	ec "github.com/ChiaYuChang/lorekeeper/pkgs/errors"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Mode selects the nodes a Flatten call walks.
type Mode int

const (
	// ChildrenOf walks every child node, text nodes included.
	ChildrenOf Mode = iota
	// SiblingsAfter walks the element siblings following the node.
	SiblingsAfter
)

var (
	reMultiSpace   = regexp.MustCompile(` {2,}`)
	reMultiNewline = regexp.MustCompile(`\n+`)
)

type flattener struct {
	d Dialect
}

// Flatten linearizes the nodes selected by mode into a transcript.
func Flatten(node *goquery.Selection, mode Mode, d Dialect) (string, error) {
	if node == nil || node.Length() == 0 {
		return "", nil
	}

	var nodes []*html.Node
	switch mode {
	case SiblingsAfter:
		nodes = node.First().NextAll().Nodes
	default:
		for c := node.Get(0).FirstChild; c != nil; c = c.NextSibling {
			nodes = append(nodes, c)
		}
	}
	return flattener{d: d}.walk(nodes)
}

// FlattenSelection linearizes the nodes of sel in their selection order.
func FlattenSelection(sel *goquery.Selection, d Dialect) (string, error) {
	if sel == nil {
		return "", nil
	}
	return flattener{d: d}.walk(sel.Nodes)
}

func (f flattener) walk(nodes []*html.Node) (string, error) {
	var lines []string
	for _, n := range nodes {
		kind := f.classify(n)
		rendered, err := f.render(kind, n)
		if err != nil {
			return "", err
		}
		for _, l := range rendered {
			if l == "" || (!(kind == Heading && f.d.HeadingsKeepDropped) && f.dropped(l)) {
				continue
			}
			lines = append(lines, l)
		}
	}
	return f.assemble(lines), nil
}

func (f flattener) dropped(line string) bool {
	for _, re := range f.d.DropLines {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

func (f flattener) assemble(lines []string) string {
	s := strings.Join(lines, "\n")
	s = reMultiSpace.ReplaceAllString(s, " ")
	if f.d.Spaces == Strip {
		s = strings.NewReplacer(" ", "", "\u00A0", "").Replace(s)
	}
	for _, re := range f.d.StripPatterns {
		s = re.ReplaceAllString(s, "")
	}
	if f.d.CollapseNewlines {
		s = reMultiNewline.ReplaceAllString(s, "\n")
	}
	if f.d.Trim {
		s = strings.TrimSpace(s)
	}
	return s
}

func (f flattener) render(kind Kind, n *html.Node) ([]string, error) {
	sel := goquery.NewDocumentFromNode(n).Selection

	switch kind {
	case Empty, Ignored:
		return nil, nil
	case Heading:
		return []string{f.d.HeadingPrefix + "=" + f.text(n) + "="}, nil
	case List:
		return f.list(n), nil
	case Emphasis:
		return []string{f.emphasis(f.text(n))}, nil
	case Message:
		return f.message(sel)
	case MessageHeader:
		return f.messageHeader(sel)
	case Tabber:
		return f.tabber(sel)
	case Fold:
		return f.fold(sel)
	case Plot:
		if f.d.PlotBoxRecurse && sel.Find("div.plotBox").Length() > 1 {
			return f.children(n)
		}
		return f.pairing(sel, "plotOptions", "content")
	case Mail:
		return f.pairing(sel, "mailOptions", "messageContent")
	default:
		return []string{f.text(n)}, nil
	}
}

func (f flattener) children(n *html.Node) ([]string, error) {
	var kids []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		kids = append(kids, c)
	}
	s, err := f.walk(kids)
	if err != nil {
		return nil, err
	}
	return []string{s}, nil
}

func (f flattener) list(n *html.Node) []string {
	text := f.text(n)
	if f.d.Lists == Block {
		return []string{text}
	}

	var items []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			items = append(items, "- "+l)
		}
	}
	return items
}

func (f flattener) emphasis(text string) string {
	if !f.d.Asterisks {
		return text
	}
	if !f.d.EmphasisPerLine {
		return "*" + text + "*"
	}

	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, "*"+l+"*")
		}
	}
	return strings.Join(lines, "\n")
}

// message renders a chat bubble as "sender：body".
func (f flattener) message(sel *goquery.Selection) ([]string, error) {
	sender := sel.Find("div.SenderName").First()
	if sender.Length() == 0 {
		return nil, ec.ErrMissingNode.Clone().
			WithDetails("message without div.SenderName")
	}

	line, err := f.senderLine(sender)
	if err != nil {
		return nil, err
	}
	return []string{line}, nil
}

// senderLine renders the sender and the first div that follows it in
// document order.
func (f flattener) senderLine(sender *goquery.Selection) (string, error) {
	name := f.text(sender.Get(0))
	body := findNext(sender.Get(0), func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "div"
	})
	if body == nil {
		return "", ec.ErrMissingNode.Clone().
			WithDetails("message without body div")
	}

	if text := f.text(body); text != "" {
		return name + "：" + text, nil
	}

	bodySel := goquery.NewDocumentFromNode(body).Selection
	img := bodySel.Find("img").First()
	if img.Length() == 0 {
		if isImageBody(bodySel) {
			return "", ec.ErrMissingNode.Clone().
				WithDetails("image message without img")
		}
		return "", nil
	}
	alt, _ := img.Attr("alt")
	src, _ := img.Attr("src")
	return fmt.Sprintf("%s：[%s](%s)", name, alt, src), nil
}

func isImageBody(sel *goquery.Selection) bool {
	for _, c := range []string{"EmotionLeft", "EmotionRight", "PictureLeft", "PictureRight"} {
		if sel.HasClass(c) {
			return true
		}
	}
	return false
}

func (f flattener) messageHeader(sel *goquery.Selection) ([]string, error) {
	small := sel.Find("small").First()
	if small.Length() == 0 {
		return nil, ec.ErrMissingNode.Clone().
			WithDetails("message header without small")
	}

	skip := small.Get(0)
	name := strings.TrimSpace(f.textSkipping(sel.Get(0), func(n *html.Node) bool { return n == skip }))
	return []string{fmt.Sprintf("%s[签名：%s]", name, f.text(skip))}, nil
}

func (f flattener) tabber(sel *goquery.Selection) ([]string, error) {
	var lines []string
	var err error
	sel.Find("div.tabbertab").EachWithBreak(func(i int, tab *goquery.Selection) bool {
		var content string
		if content, err = Flatten(tab, ChildrenOf, f.d); err != nil {
			return false
		}
		if content != "" {
			title, _ := tab.Attr("title")
			lines = append(lines, fmt.Sprintf("剧情分支%d：%s\n%s", i+1, title, content))
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (f flattener) fold(sel *goquery.Selection) ([]string, error) {
	title := sel.Find("div.foldTitle").First()
	if title.Length() == 0 {
		return nil, ec.ErrMissingNode.Clone().
			WithDetails("fold without div.foldTitle")
	}
	content := sel.Find("div.foldContent").First()
	if content.Length() == 0 {
		return nil, ec.ErrMissingNode.Clone().
			WithDetails("fold without div.foldContent")
	}

	lines := []string{f.emphasis(f.text(title.Get(0)))}
	if content.Find("div.plotFrame").Length() == 0 {
		return append(lines, f.text(content.Get(0))), nil
	}

	text, err := Flatten(content, ChildrenOf, f.d)
	if err != nil {
		return nil, err
	}
	return append(lines, text), nil
}

// pairing renders a branching block: each option label is paired with the
// content pane at the same index.
func (f flattener) pairing(sel *goquery.Selection, optClass, contentClass string) ([]string, error) {
	options := sel.Find("div." + optClass)
	contents := sel.Find("div." + contentClass)

	option := func(i int) string {
		return fmt.Sprintf("剧情选项%d：%s", i+1, f.text(options.Get(i)))
	}
	pane := func(i int) (string, bool, error) {
		c := contents.Eq(i)
		if c.Find("div.NM-Container").Length() == 0 {
			return f.text(c.Get(0)), false, nil
		}
		sender := c.Find("div.SenderName").First()
		if sender.Length() == 0 {
			return "", true, ec.ErrMissingNode.Clone().
				WithDetails("dialogue pane without div.SenderName")
		}
		line, err := f.senderLine(sender)
		return line, true, err
	}

	var lines []string
	if contents.Length() >= options.Length() {
		for i := range options.Length() {
			text, isMsg, err := pane(i)
			if err != nil {
				return nil, err
			}
			if isMsg {
				lines = append(lines, fmt.Sprintf("剧情选项%d：%s\n", i+1, text))
			} else {
				lines = append(lines, option(i)+"\n"+text+"\n")
			}
		}
		return lines, nil
	}

	if contents.Length() > 0 && contents.First().Find("div.NM-Container").Length() > 0 {
		for i := range contents.Length() {
			text, isMsg, err := pane(i)
			if err != nil {
				return nil, err
			}
			if isMsg {
				lines = append(lines, fmt.Sprintf("剧情选项%d：%s\n", i+1, text))
			}
		}
		return lines, nil
	}

	switch f.d.Mismatch {
	case PerIndex:
		for i := range options.Length() {
			if i >= contents.Length() {
				lines = append(lines, option(i)+"\n")
				continue
			}
			text, _, err := pane(i)
			if err != nil {
				return nil, err
			}
			lines = append(lines, option(i)+"\n"+text+"\n")
		}
	default:
		labels := make([]string, options.Length())
		for i := range options.Length() {
			labels[i] = option(i)
		}
		lines = append(lines, strings.Join(labels, "\n"))
		for i := range contents.Length() {
			lines = append(lines, f.text(contents.Get(i))+"\n")
		}
	}
	return lines, nil
}

// text returns the trimmed text of n, leaving out comments and ignored
// elements.
func (f flattener) text(n *html.Node) string {
	return strings.TrimSpace(f.textSkipping(n, nil))
}

func (f flattener) textSkipping(n *html.Node, skip func(*html.Node) bool) string {
	if n == nil {
		return ""
	}

	sb := strings.Builder{}
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			return
		case html.CommentNode:
			return
		case html.ElementNode:
			if f.hasAnyClass(n, f.d.IgnoreClasses) || (skip != nil && skip(n)) {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return sb.String()
}

func (f flattener) hasAnyClass(n *html.Node, classes []string) bool {
	if len(classes) == 0 {
		return false
	}
	for _, c := range classList(n) {
		if slices.Contains(classes, c) {
			return true
		}
	}
	return false
}

// findNext returns the first node after n in document order, descendants
// of n included, that satisfies match.
func findNext(n *html.Node, match func(*html.Node) bool) *html.Node {
	next := func(x *html.Node) *html.Node {
		if x.FirstChild != nil {
			return x.FirstChild
		}
		for ; x != nil; x = x.Parent {
			if x.NextSibling != nil {
				return x.NextSibling
			}
		}
		return nil
	}

	for x := next(n); x != nil; x = next(x) {
		if match(x) {
			return x
		}
	}
	return nil
}

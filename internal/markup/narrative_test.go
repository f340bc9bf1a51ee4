package markup_test

import (
	"strings"
	"testing"

	"github.com/ChiaYuChang/lorekeeper/internal/markup"
	ec "github.com/ChiaYuChang/lorekeeper/pkgs/errors"
	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func mustRoot(t *testing.T, body string) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<div id="root">` + body + `</div>`))
	require.NoError(t, err)
	return doc.Find("#root")
}

func TestFlattenScenarios(t *testing.T) {
	tcs := []struct {
		Name    string
		Body    string
		Dialect markup.Dialect
		Expect  string
	}{
		{
			Name: "plot with matching panes",
			Body: `<div class="plotFrame">` +
				`<div class="plotOptions">Yes</div><div class="content">Thanks!</div>` +
				`<div class="plotOptions">No</div><div class="content">Why not?</div>` +
				`</div>`,
			Dialect: markup.Default,
			Expect:  "剧情选项1：Yes\nThanks!\n\n剧情选项2：No\nWhy not?\n",
		},
		{
			Name: "plot with each pair in a plotBox",
			Body: `<div class="plotFrame">` +
				`<div class="plotBox"><div class="plotOptions">Yes</div><div class="content">Thanks!</div></div>` +
				`<div class="plotBox"><div class="plotOptions">No</div><div class="content">Why not?</div></div>` +
				`</div>`,
			Dialect: markup.Default,
			Expect:  "剧情选项1：Yes\nThanks!\n\n剧情选项2：No\nWhy not?\n",
		},
		{
			Name: "starrail pairs options inside plotBoxes",
			Body: `<div class="plotFrame">` +
				`<div class="plotBox"><div class="plotOptions">A</div><div class="content">x</div></div>` +
				`<div class="plotBox"><div class="plotOptions">B</div><div class="content">y</div></div>` +
				`</div>`,
			Dialect: markup.StarRail,
			Expect:  "剧情选项1：A\nx\n\n剧情选项2：B\ny",
		},
		{
			Name: "genshin numbers each plotBox on its own",
			Body: `<div class="plotFrame">` +
				`<div class="plotBox"><div class="plotOptions">A</div><div class="content">x</div></div>` +
				`<div class="plotBox"><div class="plotOptions">B</div><div class="content">y</div></div>` +
				`</div>`,
			Dialect: markup.Genshin,
			Expect:  "剧情选项1：A\nx\n剧情选项1：B\ny",
		},
		{
			Name:    "starrail drops boilerplate headings",
			Body:    `<h3>MediaWiki:导航</h3><p>正文</p>`,
			Dialect: markup.StarRail,
			Expect:  "正文",
		},
		{
			Name:    "genshin keeps headings matching drop lines",
			Body:    `<h2>Media</h2><p>正文</p>`,
			Dialect: markup.Genshin,
			Expect:  "=Media=\n正文",
		},
		{
			Name: "message with image body",
			Body: `<div class="MessageToMe"><div class="SenderName">Paimon</div>` +
				`<div class="EmotionLeft"><img alt="heart" src="/img/heart.png"></div></div>`,
			Dialect: markup.Default,
			Expect:  "Paimon：[heart](/img/heart.png)",
		},
		{
			Name: "message with text body",
			Body: `<div class="MessageFromMe"><div class="SenderName">开拓者</div>` +
				`<div class="content">你好 ！</div></div>`,
			Dialect: markup.StarRail,
			Expect:  "开拓者：你好！",
		},
		{
			Name:    "headings never carry asterisks",
			Body:    `<h3>第一幕</h3><p>text</p>`,
			Dialect: markup.StarRail,
			Expect:  "=第一幕=\ntext",
		},
		{
			Name:    "genshin emphasis per line and heading prefix",
			Body:    `<h2>序章</h2><blockquote>line one<br>
line two</blockquote><!-- note --><p>plain</p>`,
			Dialect: markup.Genshin,
			Expect:  "=序章=\n*lineone*\n*linetwo*\nplain",
		},
		{
			Name:    "plain dialect drops asterisks",
			Body:    `<dl><dd><span style="color: #f29e38">重点</span></dd></dl>`,
			Dialect: markup.StarRail.Plain(),
			Expect:  "重点",
		},
		{
			Name:    "starrail emphasis from styled dl",
			Body:    `<dl><dd><span style="color:#f29e38">重点</span></dd></dl>`,
			Dialect: markup.StarRail,
			Expect:  "*重点*",
		},
		{
			Name:    "exploded list",
			Body:    "<ul><li>first</li>\n<li>second</li></ul>",
			Dialect: markup.Default.WithLists(markup.Exploded),
			Expect:  "- first\n- second",
		},
		{
			Name:    "ignored classes and boilerplate",
			Body:    `<div class="foldExplain">展开</div><p>正文</p><p>MediaWiki:导航</p>`,
			Dialect: markup.StarRail,
			Expect:  "正文",
		},
		{
			Name: "tabber",
			Body: `<div class="tabber">` +
				`<div class="tabbertab" title="选择A"><p>甲</p></div>` +
				`<div class="tabbertab" title="空"></div>` +
				`<div class="tabbertab" title="选择B"><p>乙</p></div>` +
				`</div>`,
			Dialect: markup.StarRail,
			Expect:  "剧情分支1：选择A\n甲\n剧情分支3：选择B\n乙",
		},
		{
			Name: "fold with nested plot",
			Body: `<div class="foldFrame"><div class="foldTitle">回忆</div>` +
				`<div class="foldContent"><div class="plotFrame">` +
				`<div class="plotOptions">好</div><div class="content">嗯</div>` +
				`</div></div></div>`,
			Dialect: markup.StarRail,
			Expect:  "*回忆*\n剧情选项1：好\n嗯",
		},
		{
			Name:    "message header",
			Body:    `<div class="MessageHeader">三月七 <small>今天也要元气满满</small></div>`,
			Dialect: markup.StarRail,
			Expect:  "三月七[签名：今天也要元气满满]",
		},
		{
			Name: "mail frame",
			Body: `<div class="mailFrame">` +
				`<div class="mailOptions">回复</div><div class="messageContent">收到</div>` +
				`</div>`,
			Dialect: markup.Default,
			Expect:  "剧情选项1：回复\n收到\n",
		},
		{
			Name: "per index mismatch",
			Body: `<div class="plotFrame">` +
				`<div class="plotOptions">A</div><div class="plotOptions">B</div>` +
				`<div class="content">only</div>` +
				`</div>`,
			Dialect: markup.Default,
			Expect:  "剧情选项1：A\nonly\n\n剧情选项2：B\n",
		},
		{
			Name: "options then contents mismatch",
			Body: `<div class="plotFrame">` +
				`<div class="plotOptions">A</div><div class="plotOptions">B</div>` +
				`<div class="content">only</div>` +
				`</div>`,
			Dialect: markup.StarRail,
			Expect:  "剧情选项1：A\n剧情选项2：B\nonly",
		},
		{
			Name: "dialogue pane with sender",
			Body: `<div class="plotFrame">` +
				`<div class="plotOptions">问</div>` +
				`<div class="content"><div class="NM-Container"><div class="SenderName">姬子</div><div>答</div></div></div>` +
				`</div>`,
			Dialect: markup.StarRail,
			Expect:  "剧情选项1：姬子：答",
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			root := mustRoot(t, tc.Body)
			before, err := goquery.OuterHtml(root)
			require.NoError(t, err)

			got, err := markup.Flatten(root, markup.ChildrenOf, tc.Dialect)
			require.NoError(t, err)
			require.Equal(t, tc.Expect, got)

			after, err := goquery.OuterHtml(root)
			require.NoError(t, err)
			require.Equal(t, before, after, "input tree must not change")
		})
	}
}

func TestFlattenSiblingsAfter(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<div><h2 id="start">剧情内容</h2><p>第一句</p>text<p>第二句</p></div>`))
	require.NoError(t, err)

	got, err := markup.Flatten(doc.Find("#start"), markup.SiblingsAfter, markup.StarRail)
	require.NoError(t, err)
	require.Equal(t, "第一句\n第二句", got, "bare text siblings are skipped")
}

func TestFlattenSelection(t *testing.T) {
	root := mustRoot(t, `<p>a</p><p>b</p><p>c</p>`)
	got, err := markup.FlattenSelection(root.Find("p").Slice(1, 3), markup.Default)
	require.NoError(t, err)
	require.Equal(t, "b\nc", got)

	got, err = markup.Flatten(nil, markup.ChildrenOf, markup.Default)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestFlattenMissingNodes(t *testing.T) {
	tcs := []struct {
		Name string
		Body string
	}{
		{"message without sender", `<div class="MessageToMe"><div>hi</div></div>`},
		{"fold without title", `<div class="foldFrame"><div class="foldContent">x</div></div>`},
		{"fold without content", `<div class="foldFrame"><div class="foldTitle">x</div></div>`},
		{"header without signature", `<div class="MessageHeader">name</div>`},
		{"message without body", `<div class="MessageToMe"><div class="SenderName">A</div></div>`},
		{"emotion without image", `<div class="MessageToMe"><div class="SenderName">A</div><div class="EmotionLeft"></div></div>`},
	}

	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			_, err := markup.Flatten(mustRoot(t, tc.Body), markup.ChildrenOf, markup.StarRail)
			require.ErrorIs(t, err, ec.ErrMissingNode)
		})
	}
}

func TestClassify(t *testing.T) {
	root := mustRoot(t, `<h3>t</h3><ul><li>x</li></ul><div class="plotBox">p</div> `)
	var kinds []string
	for c := root.Get(0).FirstChild; c != nil; c = c.NextSibling {
		kinds = append(kinds, markup.Classify(c, markup.Genshin).String())
	}
	require.Equal(t, []string{"emphasis", "list", "plot", "empty"}, kinds)
}

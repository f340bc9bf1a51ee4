package scrapers

import (
	"context"
	"fmt"
	"strings"

	"github.com/ChiaYuChang/lorekeeper/internal/markup"
	ec "github.com/ChiaYuChang/lorekeeper/pkgs/errors"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func genshinCharacters(ctx context.Context, s *Site) (any, error) {
	const dataset = "角色一览"
	doc, err := s.Document(ctx, ys("角色"))
	if err != nil {
		return nil, err
	}

	results := NewObject()
	doc.Find(".resp-tab-content").Each(func(_ int, tab *goquery.Selection) {
		tiles := tab.Find(`[class="g C5星"]`).AddSelection(tab.Find(`[class="g C4星"]`))
		tiles.Each(func(_ int, tile *goquery.Selection) {
			title := text(tile.Find(".L").First())
			href, ok := tile.Find("a").Last().Attr("href")
			if !ok || title == "" {
				return
			}
			if _, seen := results.Get(title); seen {
				return
			}

			page, err := s.Document(ctx, href)
			if err != nil {
				s.skip(dataset, title, err)
				return
			}
			results.Set(title, s.genshinCharacter(dataset, title, page))
		})
	})
	return results, nil
}

// genshinCharacter reads every h2 section of a character page. Talent tabs
// and the related section have their own layout; other sections are the
// first wikitable that follows the heading.
func (s *Site) genshinCharacter(dataset, name string, doc *goquery.Document) *Object {
	info := NewObject()
	doc.Find("h2").Each(func(_ int, h2 *goquery.Selection) {
		section := h2.Find("span.mw-headline").First()
		if section.Length() == 0 || strings.Contains(section.Text(), "立绘") {
			return
		}
		id, _ := section.Attr("id")
		title := strings.TrimSpace(id)

		switch {
		case strings.Contains(title, "天赋"):
			info.Set(title, talents(section))
			return
		case title == "角色相关":
			info.Set(title, relatedSections(section))
			return
		}

		table := findNext(section, "table.wikitable")
		if table.Length() == 0 {
			info.Set(title, NewObject())
			return
		}
		v, err := markup.NormalizeTable(table, s.Dialect)
		if err != nil {
			s.skip(dataset, name+"/"+title, err)
			return
		}
		info.Set(title, v)
	})
	return info
}

func talents(section *goquery.Selection) *markup.Fields {
	out := markup.NewFields()
	findNext(section, "div.resp-tabs-container").
		Find("div.resp-tab-content").
		Each(func(_ int, tab *goquery.Selection) {
			name := strings.TrimSpace(lastPart(tab.Find("div.r-skill-title-1").First().Text(), "图"))
			content := lastPart(tab.Find("div.r-skill-bg-2").First().Text(), "描述")
			out.Set(name, strings.TrimSpace(reSpaces.ReplaceAllString(content, " ")))
		})
	return out
}

// relatedSections collects, for every h3 after section, the text of its
// siblings up to the next heading of the same or a higher level.
func relatedSections(section *goquery.Selection) *Object {
	out := NewObject()
	for _, h3 := range findAllNext(section, "h3") {
		key := text(h3)
		lines, ok := out.Get(key)
		if !ok {
			lines = []string{}
		}
		h3.NextAll().EachWithBreak(func(_ int, sib *goquery.Selection) bool {
			if lvl := headingLevel(sib); lvl > 0 && lvl <= 3 {
				return false
			}
			if strings.Contains(sib.Text(), "原神WIKI导航") {
				return false
			}
			if line := reFigureSpace.ReplaceAllString(text(sib), ""); line != "" {
				lines = append(lines.([]string), line)
			}
			return true
		})
		out.Set(key, lines)
	}
	return out
}

func lastPart(s, sep string) string {
	parts := strings.Split(s, sep)
	return parts[len(parts)-1]
}

var travelerVoices = [][2]string{
	{"旅行者语音/荧", ys("旅行者语音", "荧")},
	{"旅行者语音/空", ys("旅行者语音", "空")},
}

func genshinVoices(ctx context.Context, s *Site) (any, error) {
	const dataset = "角色语音"
	doc, err := s.Document(ctx, ys("角色语音"))
	if err != nil {
		return nil, err
	}

	results := NewObject()
	for _, tv := range travelerVoices {
		v, err := s.voicePage(ctx, tv[1])
		if err != nil {
			s.skip(dataset, tv[0], err)
			continue
		}
		results.Set(tv[0], v)
	}

	doc.Find(".resp-tab-content").First().
		Find(".home-box-tag-1").
		Each(func(_ int, tag *goquery.Selection) {
			title, href, ok := link(tag.Find("a").First())
			if !ok || !strings.Contains(title, "语音") {
				return
			}
			v, err := s.voicePage(ctx, href)
			if err != nil {
				s.skip(dataset, title, err)
				return
			}
			results.Set(title, v)
		})
	return results, nil
}

func (s *Site) voicePage(ctx context.Context, route string) (*Object, error) {
	doc, err := s.Document(ctx, route)
	if err != nil {
		return nil, err
	}
	return voiceTables(doc), nil
}

// voiceTables reads every voice table from the third tbody on. The first
// row names the table, the second holds the column keys.
func voiceTables(doc *goquery.Document) *Object {
	info := NewObject()
	doc.Find("tbody").Each(func(i int, tbody *goquery.Selection) {
		if i < 2 {
			return
		}
		rows := tbody.Find("tr")
		if rows.Length() < 2 {
			return
		}

		var keys []string
		rows.Eq(1).Find("th").Each(func(_ int, th *goquery.Selection) {
			keys = append(keys, text(th))
		})

		entry := markup.NewFields()
		tail(rows, 2).Each(func(_ int, tr *goquery.Selection) {
			tr.Find("div").Each(func(j int, cell *goquery.Selection) {
				if j < len(keys) {
					entry.Set(keys[j], textLines(cell))
				}
			})
		})
		info.Set(text(rows.Eq(0)), entry)
	})
	return info
}

// textLines joins the non-blank text nodes of sel with line breaks.
func textLines(sel *goquery.Selection) string {
	var lines []string
	for _, root := range sel.Nodes {
		for n := nextNode(root); n != nil && isDescendant(n, root); n = nextNode(n) {
			if n.Type != html.TextNode {
				continue
			}
			if t := strings.TrimSpace(n.Data); t != "" {
				lines = append(lines, t)
			}
		}
	}
	return strings.Join(lines, "\n")
}

func isDescendant(n, root *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

func genshinOutfits(ctx context.Context, s *Site) (any, error) {
	const dataset = "角色装扮"
	doc, err := s.Document(ctx, ys("装扮"))
	if err != nil {
		return nil, err
	}

	results := NewObject()
	doc.Find("table").First().Find("tr").Each(func(_ int, tr *goquery.Selection) {
		title, href, ok := link(tr.Find("a").First())
		if !ok {
			return
		}
		source, ok1 := tr.Attr("data-param1")
		rarity, ok2 := tr.Attr("data-param2")
		sort, ok3 := tr.Attr("data-param3")
		if !ok1 || !ok2 || !ok3 {
			return
		}

		page, err := s.Document(ctx, href)
		if err != nil {
			s.skip(dataset, title, err)
			return
		}
		info, err := outfit(page, sort)
		if err != nil {
			s.skip(dataset, title, err)
			return
		}
		for _, kv := range [][2]string{{"来源", source}, {"稀有度", rarity + "星"}, {"类型", sort}} {
			if _, ok := info.Get(kv[0]); !ok {
				info.Set(kv[0], kv[1])
			}
		}
		results.Set(title, info)
	})
	return results, nil
}

// outfit reads an outfit page. Costumes (衣装) only carry a story; other
// kinds carry a th/td table.
func outfit(doc *goquery.Document, kind string) (*markup.Fields, error) {
	info := markup.NewFields()
	if kind == "衣装" {
		story := doc.Find("span#故事").First()
		if story.Length() == 0 {
			return nil, ec.ErrMissingNode.Clone().WithDetails("span#故事")
		}
		info.Set("故事", text(findNext(story, "tbody")))
		return dropEmpty(info), nil
	}

	table := doc.Find("table.wikitable").First()
	if table.Length() == 0 {
		return nil, ec.ErrMissingNode.Clone().WithDetails("table.wikitable")
	}
	table.Find("th").Each(func(_ int, th *goquery.Selection) {
		key := text(th)
		td := findNext(th, "td")
		if key == "稀有度" {
			if r, ok := rarityOf(td); ok {
				info.Set(key, r)
			}
			return
		}
		if td.Length() > 0 && !strings.Contains(td.Text(), "请上传文件") {
			info.Set(key, markup.CleanField(td.Text()))
		}
	})
	return dropEmpty(info), nil
}

func dropEmpty(f *markup.Fields) *markup.Fields {
	for pair := f.Oldest(); pair != nil; {
		next := pair.Next()
		if pair.Value == "" {
			f.Delete(pair.Key)
		}
		pair = next
	}
	return f
}

func genshinNPCs(ctx context.Context, s *Site) (any, error) {
	const dataset = "NPC图鉴"
	doc, err := s.Document(ctx, ys("NPC图鉴"))
	if err != nil {
		return nil, err
	}

	results := NewObject()
	doc.Find("div.giconCard").Each(func(_ int, card *goquery.Selection) {
		a := card.Find("a").Last()
		name := text(a)
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		page, err := s.Document(ctx, href)
		if err != nil {
			s.skip(dataset, name, err)
			return
		}
		info, err := npc(page)
		if err != nil {
			s.skip(dataset, name, err)
			return
		}
		results.Set(name, info)
	})
	return results, nil
}

func npc(doc *goquery.Document) (*Object, error) {
	right := doc.Find("div.npcMainRight").First()
	if right.Length() == 0 {
		return nil, ec.ErrMissingNode.Clone().WithDetails("div.npcMainRight")
	}

	info := NewObject()
	info.Set("姓名", text(right.Find("div.npcName").First()))
	info.Set("昵称", text(right.Find("div.npcNick").First()))
	info.Set("地点", text(right.Find("div.npcAddress").First()))

	if table := right.Find("table.npcInfor").First(); table.Length() > 0 {
		fields := markup.NewFields()
		table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			tds := tr.Find("td")
			if tds.Length() < 2 {
				return
			}
			key, content := text(tds.Eq(0)), text(tds.Eq(1))
			if key == "对话赠礼" {
				if gift, ok := tr.Find("a").First().Attr("title"); ok {
					content = gift + reSpaces.ReplaceAllString(content, "")
				}
			}
			fields.Set(key, content)
		})
		info.Set("信息", fields)
	}

	info.Set("对话", npcConversation(doc.Find("#npcTalk").First()))

	idle := []string{}
	doc.Find("table.npcStandVoiceList").Each(func(_ int, table *goquery.Selection) {
		rows := table.Find("tr")
		tail(rows, 1).Each(func(_ int, tr *goquery.Selection) {
			if strings.Contains(tr.Text(), "待机语音") {
				return
			}
			if line := text(tr.Find("td").First()); line != "" {
				idle = append(idle, line)
			}
		})
	})
	info.Set("待机语音", idle)

	tasks := []string{}
	doc.Find("div.npcTask").Each(func(_ int, task *goquery.Selection) {
		tasks = append(tasks, text(task))
	})
	info.Set("相关剧情&任务", tasks)
	return info, nil
}

// npcConversation reads every talk box as title -> entries. Loose text
// between branch blocks is joined into one entry; text with latin letters
// (file names, markup leftovers) is dropped.
func npcConversation(talk *goquery.Selection) *Object {
	conv := NewObject()
	talk.Find("div.npcTalkBox").Each(func(_ int, box *goquery.Selection) {
		title := box.Find("div.npcPlotFrame").First().Find("div.npcSmallTitle").First()
		if title.Length() == 0 {
			return
		}

		entries := []any{}
		var span strings.Builder
		flush := func() {
			if t := strings.TrimSpace(span.String()); t != "" {
				entries = append(entries, t)
			}
			span.Reset()
		}

		for n := title.Get(0).NextSibling; n != nil; n = n.NextSibling {
			switch {
			case n.Type == html.TextNode:
				if !reLatinOrDot.MatchString(n.Data) {
					span.WriteString(n.Data)
				}
			case n.Type != html.ElementNode:
			case n.Data != "div":
				if t := wrap(n).Text(); !reLatinOrDot.MatchString(t) {
					span.WriteString(t)
				}
			default:
				flush()
				if plots := npcPlots(wrap(n)); len(plots) > 0 {
					entries = append(entries, plots)
				}
			}
		}
		flush()
		conv.Set(text(title), entries)
	})
	return conv
}

// npcPlots renders the branch selectors of a plot box. Options pair with
// the div siblings that follow them; when the siblings are empty only the
// options are listed.
func npcPlots(box *goquery.Selection) []any {
	var plots []any
	box.Find("div.npcPlotSelect").Each(func(i int, sel *goquery.Selection) {
		begins := sel.Find("div.npcPlot")
		contents := sel.NextAllFiltered("div")

		if begins.Length() == contents.Length() {
			if begins.Length() == 0 {
				return
			}
			opts := markup.NewFields()
			begins.Each(func(j int, b *goquery.Selection) {
				opts.Set(fmt.Sprintf("对话分支%d-%d", i+1, j+1),
					reMediaMarker.ReplaceAllString(b.Text(), "")+"\n"+
						reMediaMarker.ReplaceAllString(contents.Eq(j).Text(), ""))
			})
			plots = append(plots, opts)
			return
		}

		if contents.Length() > 0 && text(contents.First()) == "" {
			var sb strings.Builder
			sb.WriteString("对话选项：")
			begins.Each(func(k int, b *goquery.Selection) {
				fmt.Fprintf(&sb, "%d）%s", k+1, text(b))
			})
			plots = append(plots, sb.String())
		}
	})
	return plots
}

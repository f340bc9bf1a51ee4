package scrapers

import (
	"context"
	"slices"
	"strings"

	"github.com/ChiaYuChang/lorekeeper/internal/browser"
	"github.com/ChiaYuChang/lorekeeper/internal/markup"
	ec "github.com/ChiaYuChang/lorekeeper/pkgs/errors"
	"github.com/PuerkitoBio/goquery"
)

var StarRailDatasets = []Dataset{
	{Game: GameStarRail, Dir: "角色图鉴", File: "角色一览.json", Run: starRailCharacters},
	{Game: GameStarRail, Dir: "角色图鉴", File: "角色语音.json", Run: starRailVoices},
	{Game: GameStarRail, Dir: "装备图鉴", File: "光锥一览.json", Run: starRailLightCones},
	{Game: GameStarRail, Dir: "装备图鉴", File: "装备一览.json", Run: starRailRelics},
	{Game: GameStarRail, Dir: "任务", File: "开拓任务.json", Run: chapterMissions("开拓任务", false)},
	{Game: GameStarRail, Dir: "任务", File: "同行任务.json", Run: chapterMissions("同行任务", true)},
	{Game: GameStarRail, Dir: "任务", File: "冒险任务.json", Run: headedMissions("冒险任务")},
	{Game: GameStarRail, Dir: "任务", File: "日常任务.json", Run: headedMissions("日常任务")},
	{Game: GameStarRail, Dir: "任务", File: "活动任务.json", Run: chapterMissions("活动任务", false)},
	{Game: GameStarRail, Dir: "任务", File: "交互事件.json", Run: headedMissions("交互事件")},
	{Game: GameStarRail, Dir: "书籍一览", File: "书籍.json", Run: starRailBooks},
	{Game: GameStarRail, Dir: "短信一览", File: "短信.json", Run: starRailMessages},
}

func sr(segments ...string) string {
	return wikiRoute("sr", segments...)
}

// sectionTables normalizes the first wikitable after the headline of
// every h2 whose id is in titles.
func (s *Site) sectionTables(dataset, entity string, doc *goquery.Document, info *Object, titles ...string) {
	doc.Find("h2").Each(func(_ int, h2 *goquery.Selection) {
		section := h2.Find("span.mw-headline").First()
		if section.Length() == 0 || strings.Contains(section.Text(), "立绘") {
			return
		}
		id, _ := section.Attr("id")
		title := strings.TrimSpace(id)
		if !slices.Contains(titles, title) {
			return
		}
		table := findNext(section, "table.wikitable")
		if table.Length() == 0 {
			return
		}
		v, err := markup.NormalizeTable(table, s.Dialect)
		if err != nil {
			s.skip(dataset, entity+"/"+title, err)
			return
		}
		info.Set(title, v)
	})
}

// basicTable normalizes the first wikitable of doc under key.
func (s *Site) basicTable(doc *goquery.Document, info *Object, key string) (*goquery.Selection, error) {
	table := doc.Find("table.wikitable").First()
	if table.Length() == 0 {
		return nil, ec.ErrMissingNode.Clone().WithDetails("table.wikitable")
	}
	v, err := markup.NormalizeTable(table, s.Dialect)
	if err != nil {
		return nil, err
	}
	info.Set(key, v)
	return table, nil
}

func starRailCharacters(ctx context.Context, s *Site) (any, error) {
	const dataset = "角色一览"
	doc, err := s.FreshDocument(ctx, sr("角色图鉴"))
	if err != nil {
		return nil, err
	}

	results := NewObject()
	doc.Find("div#CardSelectTr").First().Find("div.visible-xs").Each(func(_ int, card *goquery.Selection) {
		title, href, ok := link(card.Find("a").First())
		if !ok {
			return
		}
		page, err := s.Document(ctx, href)
		if err != nil {
			s.skip(dataset, title, err)
			return
		}
		info, err := s.starRailCharacter(dataset, title, page)
		if err != nil {
			s.skip(dataset, title, err)
			return
		}
		if info.Len() > 0 {
			results.Set(title, info)
		}
	})
	return results, nil
}

var characterSections = []string{"角色故事", "角色晋阶材料", "其它信息", "角色搭配推荐"}

func (s *Site) starRailCharacter(dataset, name string, doc *goquery.Document) (*Object, error) {
	info := NewObject()
	if quote := doc.Find(`div[style="font-size: 18px;font-weight: bold;"]`).First(); quote.Length() > 0 {
		info.Set("quote", text(quote))
	}

	basic, err := s.basicTable(doc, info, "基础信息")
	if err != nil {
		return nil, err
	}
	info.Set("简介", text(findNext(basic, "table.wikitable")))

	doc.Find("h2 span.mw-headline#角色相关").First().Each(func(_ int, section *goquery.Selection) {
		intro := markup.NewFields()
		intro.Set("官方介绍", text(findNext(section, "center")))
		related := []any{intro}
		for _, table := range findAllNext(section, "table.wikitable") {
			v, err := markup.NormalizeTable(table, s.Dialect)
			if err != nil {
				s.skip(dataset, name+"/角色相关", err)
				continue
			}
			if !empty(v) {
				related = append(related, v)
			}
		}
		info.Set("角色相关", related)
	})

	s.sectionTables(dataset, name, doc, info, characterSections...)
	return compact(info), nil
}

func starRailVoices(ctx context.Context, s *Site) (any, error) {
	const dataset = "角色语音"
	doc, err := s.Document(ctx, sr("角色语音"))
	if err != nil {
		return nil, err
	}

	results := NewObject()
	doc.Find("div.ping0").Each(func(_ int, card *goquery.Selection) {
		title, href, ok := link(card.Find("a").First())
		if !ok {
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

		lines := markup.NewFields()
		tail(page.Find("table.wikitable"), 2).Each(func(_ int, table *goquery.Selection) {
			rows := table.Find("tr")
			lines.Set(text(rows.First()), text(rows.Last()))
		})
		if lines.Len() > 0 {
			results.Set(title, lines)
		}
	})
	return results, nil
}

// tableList parses the page linked from every row of the #CardSelectTr
// table, the header row excepted.
func (s *Site) tableList(ctx context.Context, dataset, listRoute string,
	parse func(name string, doc *goquery.Document) (*Object, error)) (*Object, error) {
	doc, err := s.Document(ctx, listRoute)
	if err != nil {
		return nil, err
	}

	results := NewObject()
	tail(doc.Find("table#CardSelectTr").First().Find("tr"), 1).Each(func(_ int, tr *goquery.Selection) {
		title, href, ok := link(tr.Find("a").First())
		if !ok {
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
		info, err := parse(title, page)
		if err != nil {
			s.skip(dataset, title, err)
			return
		}
		if info.Len() > 0 {
			results.Set(title, info)
		}
	})
	return results, nil
}

var equipmentSections = []string{"光锥故事", "推荐角色"}

func starRailLightCones(ctx context.Context, s *Site) (any, error) {
	const dataset = "光锥一览"
	return s.tableList(ctx, dataset, sr("光锥一览"), func(name string, doc *goquery.Document) (*Object, error) {
		info := NewObject()
		if _, err := s.basicTable(doc, info, "基础信息"); err != nil {
			return nil, err
		}
		s.sectionTables(dataset, name, doc, info, equipmentSections...)
		return compact(info), nil
	})
}

func starRailRelics(ctx context.Context, s *Site) (any, error) {
	const dataset = "装备一览"
	return s.tableList(ctx, dataset, sr("遗器筛选"), func(name string, doc *goquery.Document) (*Object, error) {
		info := NewObject()
		if _, err := s.basicTable(doc, info, "基本信息"); err != nil {
			return nil, err
		}

		doc.Find("h2 span.mw-headline#遗器来历").First().Each(func(_ int, section *goquery.Selection) {
			wrap := findNext(section, "div.main-line-wrap")
			var titles []string
			wrap.Find("ul").First().Find("li").Each(func(_ int, li *goquery.Selection) {
				titles = append(titles, text(li))
			})
			origin := markup.NewFields()
			wrap.Find("div.resp-tab-content").Each(func(i int, tab *goquery.Selection) {
				if i < len(titles) {
					origin.Set(titles[i], text(tab))
				}
			})
			info.Set("遗器来历", origin)
		})

		s.sectionTables(dataset, name, doc, info, equipmentSections...)
		return compact(info), nil
	})
}

func starRailBooks(ctx context.Context, s *Site) (any, error) {
	const dataset = "书籍"
	doc, err := s.Document(ctx, sr("书架"))
	if err != nil {
		return nil, err
	}

	results := NewObject()
	doc.Find("div#CardSelectTr").First().Find("div.book-image").Each(func(_ int, cover *goquery.Selection) {
		title, href, ok := link(cover.Find("a").First())
		if !ok {
			return
		}
		page, err := s.Document(ctx, href)
		if err != nil {
			s.skip(dataset, title, err)
			return
		}
		if info := book(page); info.Len() > 0 {
			results.Set(title, info)
		}
	})
	return results, nil
}

// book reads the epigraph and every h2 titled row of a book page.
func book(doc *goquery.Document) *markup.Fields {
	info := markup.NewFields()
	if quote := doc.Find("blockquote").First(); quote.Length() > 0 {
		info.Set("引用", text(quote))
	}
	doc.Find("div.row").Each(func(_ int, row *goquery.Selection) {
		h2 := row.Find("h2").First()
		if h2.Length() == 0 {
			return
		}
		body := strings.TrimSpace(textWithout(row, "h2"))
		info.Set(text(h2), strings.ReplaceAll(body, " ", ""))
	})
	return info
}

func starRailMessages(ctx context.Context, s *Site) (any, error) {
	if s.Messages == nil {
		return nil, ec.ErrBrowserFailed.Clone().WithDetails("no message source configured")
	}
	msgs, err := s.Messages.Crawl(ctx, s.Fetcher.URL(sr("短信")))
	if err != nil {
		return nil, err
	}
	return s.messageTranscripts("短信", msgs), nil
}

// messageTranscripts flattens the captured html of every thread.
func (s *Site) messageTranscripts(dataset string, msgs *browser.Messages) *Object {
	out := NewObject()
	for org := msgs.Oldest(); org != nil; org = org.Next() {
		contacts := NewObject()
		out.Set(org.Key, contacts)
		for c := org.Value.Oldest(); c != nil; c = c.Next() {
			threads := markup.NewFields()
			contacts.Set(c.Key, threads)
			for t := c.Value.Oldest(); t != nil; t = t.Next() {
				transcript, err := MessageTranscript(t.Value, s.Dialect)
				if err != nil {
					s.skip(dataset, org.Key+"/"+c.Key+"/"+t.Key, err)
					continue
				}
				if transcript != "" {
					threads.Set(t.Key, transcript)
				}
			}
		}
	}
	return out
}

// MessageTranscript flattens the children of the first div.CodeContainer
// in fragment.
func MessageTranscript(fragment string, d markup.Dialect) (string, error) {
	doc, err := parseDocument("fragment", fragment)
	if err != nil {
		return "", err
	}
	container := doc.Find("div.CodeContainer").First()
	if container.Length() == 0 {
		return "", ec.ErrMissingNode.Clone().WithDetails("div.CodeContainer")
	}
	return markup.Flatten(container, markup.ChildrenOf, d)
}

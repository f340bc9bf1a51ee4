package scrapers

import (
	"context"
	"regexp"
	"strings"

	"github.com/ChiaYuChang/lorekeeper/internal/markup"
	"github.com/PuerkitoBio/goquery"
)

var reAct = regexp.MustCompile(`第.+幕`)

func genshinArchonQuests(ctx context.Context, s *Site) (any, error) {
	const dataset = "魔神任务"
	doc, err := s.Document(ctx, ys("魔神任务"))
	if err != nil {
		return nil, err
	}

	results := NewObject()
	doc.Find("div.taskIcon").Each(func(_ int, task *goquery.Selection) {
		title, href, ok := link(task.Find("a").First())
		if !ok {
			return
		}
		q, err := s.quest(ctx, href, "h2", s.Dialect)
		if err != nil {
			s.skip(dataset, title, err)
			return
		}
		results.Set(title, q)
	})
	return results, nil
}

// genshinLegendQuests keeps the acts (第…幕) of every legend quest. An act
// page links each of its parts from a hint box.
func genshinLegendQuests(ctx context.Context, s *Site) (any, error) {
	const dataset = "传说任务"
	doc, err := s.Document(ctx, ys("传说任务"))
	if err != nil {
		return nil, err
	}

	results := NewObject()
	doc.Find("div.taskIcon").Each(func(_ int, task *goquery.Selection) {
		title, href, ok := link(task.Find("a").First())
		if !ok || !reAct.MatchString(title) {
			return
		}
		if _, seen := results.Get(title); seen {
			return
		}

		act, err := s.Document(ctx, href)
		if err != nil {
			s.skip(dataset, title, err)
			return
		}
		parts := NewObject()
		act.Find("div.tishi").Each(func(_ int, hint *goquery.Selection) {
			part, partHref, ok := link(hint.Find("a").First())
			if !ok {
				return
			}
			q, err := s.quest(ctx, partHref, "h2", s.Dialect)
			if err != nil {
				s.skip(dataset, title+"/"+part, err)
				return
			}
			parts.Set(part, q)
		})
		if parts.Len() > 0 {
			results.Set(title, parts)
		}
	})
	return results, nil
}

func genshinWorldQuests(ctx context.Context, s *Site) (any, error) {
	const dataset = "世界任务"
	doc, err := s.Document(ctx, ys("世界任务"))
	if err != nil {
		return nil, err
	}

	results := NewObject()
	doc.Find("span.home-an1").Each(func(_ int, task *goquery.Selection) {
		title, href, ok := link(task.Find("a").First())
		if !ok {
			return
		}
		page, err := s.Document(ctx, href)
		if err != nil {
			s.skip(dataset, title, err)
			return
		}

		info := NewObject()
		if table := page.Find("table.wikitable").First(); table.Length() > 0 {
			v, err := markup.NormalizeTable(table, s.Dialect)
			if err != nil {
				s.skip(dataset, title, err)
				return
			}
			info.Set("信息", v)
		}
		story, err := questSections(page, href, "h2", s.Dialect)
		if err != nil {
			s.skip(dataset, title, err)
			return
		}
		if story.Len() > 0 {
			info.Set("剧情", story)
		}
		if info.Len() > 0 {
			results.Set(title, info)
		}
	})
	return results, nil
}

// Commission is one daily commission transcript.
type Commission struct {
	Title   string  `json:"title"`
	Content *Object `json:"content"`
}

func genshinCommissions(ctx context.Context, s *Site) (any, error) {
	const dataset = "委托任务"
	doc, err := s.Document(ctx, ys("委托任务"))
	if err != nil {
		return nil, err
	}

	out := []Commission{}
	doc.Find("div.tishi").Each(func(_ int, task *goquery.Selection) {
		title, href, ok := link(task.Find("a").First())
		if !ok || reLatin.MatchString(title) {
			return
		}
		q, err := s.quest(ctx, href, "h2", s.Dialect)
		if err != nil {
			s.skip(dataset, title, err)
			return
		}
		if q.Len() > 0 {
			out = append(out, Commission{Title: title, Content: q})
		}
	})
	return out, nil
}

// genshinBirthdayMail reads the mail table. Rewards are cut at the first
// 【 and a missing sender falls back to the row's data-param1.
func genshinBirthdayMail(ctx context.Context, s *Site) (any, error) {
	doc, err := s.Document(ctx, ys("邮件"))
	if err != nil {
		return nil, err
	}
	ct, err := readCardTable(doc, false, false)
	if err != nil {
		return nil, err
	}

	out := []*markup.Fields{}
	for _, row := range ct.rows {
		info := markup.NewFields()
		for i, h := range ct.headers {
			if i >= len(row.cells) {
				break
			}
			cell := row.cells[i]
			switch {
			case cell != "" && h == "奖励":
				before, _, _ := strings.Cut(cell, "【")
				info.Set(h, strings.TrimSpace(before))
			case cell != "":
				info.Set(h, cell)
			case h == "发件人":
				if sender, ok := row.sel.Attr("data-param1"); ok && sender != "" {
					info.Set(h, sender)
				}
			}
		}
		out = append(out, info)
	}
	return out, nil
}

func genshinBooks(ctx context.Context, s *Site) (any, error) {
	const dataset = "书籍一览"
	doc, err := s.Document(ctx, ys("书籍一览"))
	if err != nil {
		return nil, err
	}

	results := NewObject()
	links := findAllNext(doc.Find("div.tishi").First(), "a")
	for i, a := range links {
		if i == 0 {
			continue
		}
		title, href, ok := link(a)
		if !ok {
			continue
		}
		if _, seen := results.Get(title); seen {
			continue
		}
		q, err := s.quest(ctx, href, "h2", s.Dialect)
		if err != nil {
			s.skip(dataset, title, err)
			continue
		}
		results.Set(title, q)
	}
	return results, nil
}

func genshinAchievements(ctx context.Context, s *Site) (any, error) {
	const dataset = "成就一览"
	doc, err := s.Document(ctx, ys("成就系统"))
	if err != nil {
		return nil, err
	}

	results := NewObject()
	doc.Find("div.acBox").Each(func(_ int, box *goquery.Selection) {
		title, href, ok := link(box.Find("a").First())
		if !ok {
			return
		}
		q, err := s.plainQuest(ctx, href)
		if err != nil {
			s.skip(dataset, title, err)
			return
		}
		results.Set(title, q)
	})
	return results, nil
}

// genshinLibrary walks the library menus. The first menu is the landing
// page itself; the others link to their own page of shelves.
func genshinLibrary(ctx context.Context, s *Site) (any, error) {
	const dataset = "北陆图书馆"
	doc, err := s.Document(ctx, ys("北陆图书馆"))
	if err != nil {
		return nil, err
	}

	results := NewObject()
	doc.Find("div.menu").Each(func(i int, menu *goquery.Selection) {
		name := text(menu)
		shelves := NewObject()
		results.Set(name, shelves)

		page := doc
		if i > 0 {
			href, ok := menu.Find("a").First().Attr("href")
			if !ok {
				return
			}
			if page, err = s.Document(ctx, href); err != nil {
				s.skip(dataset, name, err)
				return
			}
		}

		page.Find("div.ct").Each(func(_ int, shelf *goquery.Selection) {
			shelfName := text(shelf)
			href, ok := shelf.Find("a").First().Attr("href")
			if !ok || strings.Contains(href, "index.php") {
				return
			}
			q, err := s.plainQuest(ctx, href)
			if err != nil {
				s.skip(dataset, name+"/"+shelfName, err)
				return
			}
			if q.Len() > 0 {
				shelves.Set(shelfName, q)
			}
		})
	})
	return results, nil
}

// genshinTips reads every loading tip table under its nearest headline.
// Rows with more than three cells keep the first and the second to last.
func genshinTips(ctx context.Context, s *Site) (any, error) {
	doc, err := s.Document(ctx, ys("过场提示"))
	if err != nil {
		return nil, err
	}

	results := NewObject()
	doc.Find("table.wikitable").Each(func(_ int, table *goquery.Selection) {
		title := text(findPrevious(table, "span.mw-headline"))
		tips := []string{}
		tail(table.Find("tr"), 1).Each(func(_ int, tr *goquery.Selection) {
			var cells []string
			tr.Find("td").Each(func(_ int, td *goquery.Selection) {
				cells = append(cells, markup.CleanField(td.Text()))
			})
			if len(cells) > 3 {
				cells = []string{cells[0], cells[len(cells)-2]}
			}
			tips = append(tips, strings.Join(cells, "："))
		})
		results.Set(title, tips)
	})
	return results, nil
}

func genshinArgot(ctx context.Context, s *Site) (any, error) {
	return s.quest(ctx, ys("黑话"), "h2", s.Dialect)
}

package scrapers

import (
	"context"
	"net/url"
	"strings"

	"github.com/ChiaYuChang/lorekeeper/internal/markup"
	ec "github.com/ChiaYuChang/lorekeeper/pkgs/errors"
	"github.com/PuerkitoBio/goquery"
)

// GenshinDatasets mirrors the output tree of the Genshin Impact wiki dump.
var GenshinDatasets = []Dataset{
	{Game: GameGenshin, Dir: "角色图鉴", File: "角色一览.json", Run: genshinCharacters},
	{Game: GameGenshin, Dir: "角色图鉴", File: "角色语音.json", Run: genshinVoices},
	{Game: GameGenshin, Dir: "角色图鉴", File: "角色装扮.json", Run: genshinOutfits},
	{Game: GameGenshin, Dir: "装备图鉴", File: "武器一览.json", Run: genshinWeapons},
	{Game: GameGenshin, Dir: "装备图鉴", File: "圣遗物一览.json", Run: genshinRelics},
	{Game: GameGenshin, Dir: "物品一览", File: "食物一览.json", Run: genshinFoods},
	{Game: GameGenshin, Dir: "物品一览", File: "材料一览.json", Run: genshinMaterials},
	{Game: GameGenshin, Dir: "物品一览", File: "道具一览.json", Run: genshinItems},
	{Game: GameGenshin, Dir: "物品一览", File: "摆设套装一览.json", Run: genshinFurnitureSuites},
	{Game: GameGenshin, Dir: "七圣召唤", File: "七圣召唤.json", Run: genshinTCG},
	{Game: GameGenshin, Dir: "七圣召唤", File: "卡牌一览.json", Run: genshinCards},
	{Game: GameGenshin, Dir: "生物志", File: "怪物一览.json", Run: genshinMonsters},
	{Game: GameGenshin, Dir: "生物志", File: "野生生物一览.json", Run: genshinAnimals},
	{Game: GameGenshin, Dir: "生物志", File: "地理志一览.json", Run: genshinGeography},
	{Game: GameGenshin, Dir: "生物志", File: "NPC图鉴.json", Run: genshinNPCs},
	{Game: GameGenshin, Dir: "书籍一览", File: "书籍一览.json", Run: genshinBooks},
	{Game: GameGenshin, Dir: "成就一览", File: "成就一览.json", Run: genshinAchievements},
	{Game: GameGenshin, Dir: "任务", File: "魔神任务.json", Run: genshinArchonQuests},
	{Game: GameGenshin, Dir: "任务", File: "传说任务.json", Run: genshinLegendQuests},
	{Game: GameGenshin, Dir: "任务", File: "世界任务.json", Run: genshinWorldQuests},
	{Game: GameGenshin, Dir: "任务", File: "委托任务.json", Run: genshinCommissions},
	{Game: GameGenshin, Dir: "邮件", File: "生日邮件.json", Run: genshinBirthdayMail},
	{Game: GameGenshin, Dir: "扩展阅读", File: "北陆图书馆.json", Run: genshinLibrary},
	{Game: GameGenshin, Dir: "扩展阅读", File: "过场提示.json", Run: genshinTips},
	{Game: GameGenshin, Dir: "扩展阅读", File: "黑话.json", Run: genshinArgot},
}

// ys builds an escaped Genshin wiki route from its title segments.
func ys(segments ...string) string {
	return wikiRoute("ys", segments...)
}

func wikiRoute(prefix string, segments ...string) string {
	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, prefix)
	for _, s := range segments {
		parts = append(parts, url.PathEscape(s))
	}
	return "/" + strings.Join(parts, "/")
}

// quest renders a page as title -> transcript, one entry per level heading
// that carries a headline span.
func (s *Site) quest(ctx context.Context, route, level string, d markup.Dialect) (*Object, error) {
	doc, err := s.Document(ctx, route)
	if err != nil {
		return nil, err
	}
	return questSections(doc, route, level, d)
}

func questSections(doc *goquery.Document, route, level string, d markup.Dialect) (*Object, error) {
	root := doc.Find("div#mw-content-text").First()
	if root.Length() == 0 {
		return nil, ec.ErrMissingNode.Clone().
			WithDetails("div#mw-content-text", "route: "+route)
	}

	out := NewObject()
	var ferr error
	root.Find(level).EachWithBreak(func(_ int, head *goquery.Selection) bool {
		if head.Find("span").Length() == 0 {
			return true
		}
		body, err := markup.FlattenSelection(head.NextUntil(level), d)
		if err != nil {
			ferr = err
			return false
		}
		out.Set(text(head), body)
		return true
	})
	if ferr != nil {
		return nil, ferr
	}
	return out, nil
}

// plainQuest tries h2 sections first and falls back to h3.
func (s *Site) plainQuest(ctx context.Context, route string) (*Object, error) {
	doc, err := s.Document(ctx, route)
	if err != nil {
		return nil, err
	}
	d := s.Dialect.Plain()
	out, err := questSections(doc, route, "h2", d)
	if err != nil || out.Len() > 0 {
		return out, err
	}
	return questSections(doc, route, "h3", d)
}

// cardTable is a #CardSelectTr filter table.
type cardTable struct {
	headers []string
	rows    []cardRow
}

type cardRow struct {
	sel   *goquery.Selection
	cells []string
}

func (r cardRow) name() string {
	if len(r.cells) == 0 {
		return ""
	}
	return r.cells[0]
}

func (r cardRow) link() (string, bool) {
	return r.sel.Find("a").First().Attr("href")
}

// readCardTable reads the #CardSelectTr filter table. With skipIcon the
// first column, an icon, is left out. The rarity column is read from its
// image.
func readCardTable(doc *goquery.Document, skipIcon bool, withRarity bool) (cardTable, error) {
	table := doc.Find("table#CardSelectTr").First()
	rows := table.Find("tr")
	if rows.Length() == 0 {
		return cardTable{}, ec.ErrMissingNode.Clone().WithDetails("table#CardSelectTr")
	}

	var ct cardTable
	rows.First().Find("th").Each(func(i int, th *goquery.Selection) {
		if skipIcon && i == 0 {
			return
		}
		ct.headers = append(ct.headers, text(th))
	})

	rarity := -1
	if withRarity {
		for i, h := range ct.headers {
			if h == "稀有度" {
				rarity = i
				break
			}
		}
	}

	tail(rows, 1).Each(func(_ int, tr *goquery.Selection) {
		row := cardRow{sel: tr}
		tr.Find("td").Each(func(i int, td *goquery.Selection) {
			if skipIcon {
				if i == 0 {
					return
				}
				i--
			}
			if i == rarity {
				r, _ := rarityOf(td)
				row.cells = append(row.cells, r)
				return
			}
			row.cells = append(row.cells, markup.CleanField(td.Text()))
		})
		ct.rows = append(ct.rows, row)
	})
	return ct, nil
}

// basic zips the headers with the cells of r. Without keepEmpty empty
// cells are dropped.
func (ct cardTable) basic(r cardRow, keepEmpty bool) *markup.Fields {
	f := markup.NewFields()
	for i, h := range ct.headers {
		if i >= len(r.cells) {
			break
		}
		if r.cells[i] == "" && !keepEmpty {
			continue
		}
		f.Set(h, r.cells[i])
	}
	return f
}

// detailSections reads the wikitable following every headline seen as
// header left rows. Hidden tables and headers are ignored.
func detailSections(doc *goquery.Document) *Object {
	info := NewObject()
	doc.Find("span.mw-headline").Each(func(_ int, headline *goquery.Selection) {
		fields := markup.NewFields()
		info.Set(text(headline), fields)

		table := findNext(headline, "table.wikitable")
		if table.Length() == 0 || hidden(table) {
			return
		}
		table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			var headers []string
			tr.Find("th").Each(func(_ int, th *goquery.Selection) {
				if hidden(th) {
					return
				}
				before, _, _ := strings.Cut(th.Text(), "Media")
				if h := strings.TrimSpace(before); h != "" {
					headers = append(headers, h)
				}
			})
			if len(headers) == 0 {
				return
			}
			header := strings.Join(headers, " - ")

			var content string
			if header == "稀有度" {
				r, ok := rarityOf(tr)
				if !ok {
					return
				}
				content = r
			} else {
				td := tr.Find("td").First()
				if td.Length() == 0 {
					return
				}
				content = strings.ReplaceAll(text(td), "\u00A0", " ")
			}
			if content == "" || content == "'" || strings.Contains(content, "文件:") {
				return
			}
			fields.Set(header, content)
		})
	})

	if basic, ok := info.Get("基本信息"); ok {
		basic.(*markup.Fields).Delete("同类素材")
	}
	return info
}

func (s *Site) details(ctx context.Context, route string) (*Object, error) {
	if strings.Contains(route, "index.php") {
		return NewObject(), nil
	}
	doc, err := s.Document(ctx, route)
	if err != nil {
		return nil, err
	}
	return detailSections(doc), nil
}

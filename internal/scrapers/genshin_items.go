package scrapers

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/ChiaYuChang/lorekeeper/internal/markup"
	ec "github.com/ChiaYuChang/lorekeeper/pkgs/errors"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// tileLinks visits the last link of every element matching selector.
func tileLinks(doc *goquery.Document, selector string, fn func(title, href string)) {
	doc.Find(selector).Each(func(_ int, tile *goquery.Selection) {
		if title, href, ok := link(tile.Find("a").Last()); ok {
			fn(title, href)
		}
	})
}

// entityList fetches the page of every tile and parses it with parse.
func (s *Site) entityList(ctx context.Context, dataset, listRoute, selector string,
	parse func(*goquery.Document) (*Object, error)) (*Object, error) {
	doc, err := s.Document(ctx, listRoute)
	if err != nil {
		return nil, err
	}

	results := NewObject()
	tileLinks(doc, selector, func(title, href string) {
		page, err := s.Document(ctx, href)
		if err != nil {
			s.skip(dataset, title, err)
			return
		}
		info, err := parse(page)
		if err != nil {
			s.skip(dataset, title, err)
			return
		}
		results.Set(title, info)
	})
	return results, nil
}

func genshinWeapons(ctx context.Context, s *Site) (any, error) {
	return s.entityList(ctx, "武器一览", ys("武器一览"), "div.g", weapon)
}

func weapon(doc *goquery.Document) (*Object, error) {
	brief := doc.Find("div.YS-WeaponBrief").First()
	if brief.Length() == 0 {
		return nil, ec.ErrMissingNode.Clone().WithDetails("div.YS-WeaponBrief")
	}

	info := NewObject()
	info.Set("简介", normalizeBlock(brief.Text(), false))
	for _, key := range []string{"实装版本", "锻造材料", "故事"} {
		if span := doc.Find("span#" + key).First(); span.Length() > 0 {
			info.Set(key, text(findNext(span, "div")))
		}
	}

	if rec := doc.Find(`div[class="YSCard recommended"]`).First(); rec.Length() > 0 {
		block := strings.TrimSpace(reLineBreaks.ReplaceAllString(rec.Text(), "\n"))
		var sb strings.Builder
		for i, part := range strings.Split(block, "推荐说明") {
			if i%2 == 1 {
				sb.WriteString(part)
				sb.WriteString("\n")
			}
		}
		info.Set("推荐", strings.TrimSpace(sb.String()))
	}
	return info, nil
}

func genshinRelics(ctx context.Context, s *Site) (any, error) {
	return s.entityList(ctx, "圣遗物一览", ys("圣遗物一览"), "div.g", relic)
}

func relic(doc *goquery.Document) (*Object, error) {
	brief := doc.Find("div.attribute").First()
	if brief.Length() == 0 {
		return nil, ec.ErrMissingNode.Clone().WithDetails("div.attribute")
	}

	info := NewObject()
	info.Set("简介", normalizeBlock(brief.Text(), true))
	info.Set("获取方式", normalizeBlock(doc.Find("div.get").First().Text(), true))

	var parts []string
	doc.Find("div.up").Each(func(_ int, up *goquery.Selection) {
		parts = append(parts, text(up))
	})
	stories := markup.NewFields()
	doc.Find("div.story").Each(func(j int, story *goquery.Selection) {
		if j >= len(parts) {
			return
		}
		stories.Set(parts[j], text(story)+"\n"+text(findNext(story, "div.item")))
	})
	info.Set("圣遗物故事", stories)

	recs := []string{}
	doc.Find("div.recommended").First().Find("div.title").Each(func(_ int, title *goquery.Selection) {
		if text(title) == "推荐角色" {
			return
		}
		rec := text(title) + "\n" + text(findNext(title, "div.item"))
		if !slices.Contains(recs, rec) {
			recs = append(recs, rec)
		}
	})
	info.Set("推荐", recs)
	return info, nil
}

// cardList reads a #CardSelectTr list. Every row becomes {basic, detail}
// with the detail read from the row link when it yields anything.
func (s *Site) cardList(ctx context.Context, dataset, listRoute string, withRarity bool) (*Object, error) {
	doc, err := s.Document(ctx, listRoute)
	if err != nil {
		return nil, err
	}
	ct, err := readCardTable(doc, true, withRarity)
	if err != nil {
		return nil, err
	}

	results := NewObject()
	for _, row := range ct.rows {
		name := row.name()
		entry := item(results, name)
		basic := entry.Value("basic").(*markup.Fields)
		for i, h := range ct.headers {
			if i < len(row.cells) {
				basic.Set(h, row.cells[i])
			}
		}

		href, ok := row.link()
		if !ok {
			continue
		}
		detail, err := s.details(ctx, href)
		if err != nil {
			s.skip(dataset, name, err)
			continue
		}
		if detail.Len() > 0 {
			entry.Set("detail", detail)
		}
	}
	return results, nil
}

// item returns the {basic, detail} entry of name, creating it on first use.
func item(results *Object, name string) *Object {
	if v, ok := results.Get(name); ok {
		return v.(*Object)
	}
	entry := NewObject()
	entry.Set("basic", markup.NewFields())
	entry.Set("detail", NewObject())
	results.Set(name, entry)
	return entry
}

func genshinFoods(ctx context.Context, s *Site) (any, error) {
	return s.cardList(ctx, "食物一览", ys("食物一览"), true)
}

func genshinItems(ctx context.Context, s *Site) (any, error) {
	return s.cardList(ctx, "道具一览", ys("道具一览"), true)
}

func genshinFurnitureSuites(ctx context.Context, s *Site) (any, error) {
	return s.cardList(ctx, "摆设套装一览", ys("摆设套装一览"), false)
}

func genshinMaterials(ctx context.Context, s *Site) (any, error) {
	const dataset = "材料一览"
	doc, err := s.Document(ctx, ys("材料图鉴"))
	if err != nil {
		return nil, err
	}

	results := NewObject()
	doc.Find("div.ys-iconLarge").Each(func(_ int, icon *goquery.Selection) {
		title, href, ok := link(icon.Find("a").First())
		if !ok {
			return
		}
		detail, err := s.details(ctx, href)
		if err != nil {
			s.skip(dataset, title, err)
			return
		}
		if detail.Len() > 0 {
			results.Set(title, detail)
		}
	})
	return results, nil
}

// linkedCards reads a #CardSelectTr list whose rows link to a detail page
// parsed by parse. Rows linking to index.php have no page and are left out.
func (s *Site) linkedCards(ctx context.Context, dataset, listRoute string,
	parse func(*goquery.Document) *Object) (*Object, error) {
	doc, err := s.Document(ctx, listRoute)
	if err != nil {
		return nil, err
	}
	ct, err := readCardTable(doc, true, false)
	if err != nil {
		return nil, err
	}

	results := NewObject()
	for _, row := range ct.rows {
		href, ok := row.link()
		if !ok || strings.Contains(href, "index.php") {
			continue
		}
		name := row.name()
		entry := item(results, name)
		basic := entry.Value("basic").(*markup.Fields)
		for pair := ct.basic(row, false).Oldest(); pair != nil; pair = pair.Next() {
			basic.Set(pair.Key, pair.Value)
		}

		page, err := s.Document(ctx, href)
		if err != nil {
			s.skip(dataset, name, err)
			continue
		}
		if detail := parse(page); detail.Len() > 0 {
			entry.Set("detail", detail)
		}
	}
	return results, nil
}

func genshinMonsters(ctx context.Context, s *Site) (any, error) {
	return s.linkedCards(ctx, "怪物一览", ys("怪物一览"), monster)
}

var monsterSkipped = []string{"基本信息", "相关攻略", "参考链接", "特别提醒"}

// monster reads the textual h2 sections of a monster page, the ones
// without id or class. Skill blocks are rendered as "name: text" lines.
func monster(doc *goquery.Document) *Object {
	info := NewObject()
	doc.Find("h2:not([id]):not([class])").Each(func(_ int, h2 *goquery.Selection) {
		title := text(h2)
		if slices.Contains(monsterSkipped, title) {
			return
		}
		info.Set(title, NewObject())

		var data []string
		h2.NextAll().EachWithBreak(func(_ int, sib *goquery.Selection) bool {
			if goquery.NodeName(sib) == "h2" {
				return false
			}
			var desc string
			if goquery.NodeName(sib) == "div" && sib.HasClass("m-skill-bg") {
				desc = monsterSkill(sib)
			} else {
				desc = text(sib)
			}
			if desc != "" && !strings.Contains(desc, "http") {
				data = append(data, desc)
			}
			return true
		})

		switch len(data) {
		case 0:
		case 1:
			info.Set(title, data[0])
		default:
			info.Set(title, data)
		}
	})
	return info
}

func monsterSkill(block *goquery.Selection) string {
	name := text(block.Find("div.m-skill-title-1").First())
	var sb strings.Builder
	block.Find("span.m-skill-p").Each(func(_ int, sub *goquery.Selection) {
		var content strings.Builder
		for n := sub.Get(0).NextSibling; n != nil; n = n.NextSibling {
			if n.Type == html.ElementNode && n.Data == "span" && hasAttr(n, "class") {
				break
			}
			content.WriteString(strings.TrimSpace(wrap(n).Text()))
		}
		if c := strings.TrimSpace(content.String()); c != "" {
			fmt.Fprintf(&sb, "%s: %s\n", text(sub), c)
		}
	})

	desc := sb.String()
	if name != "" {
		return "技能名称：" + name + "\n" + strings.TrimSpace(desc)
	}
	return strings.TrimSpace(desc)
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func genshinAnimals(ctx context.Context, s *Site) (any, error) {
	doc, err := s.Document(ctx, ys("野生生物一览"))
	if err != nil {
		return nil, err
	}
	ct, err := readCardTable(doc, true, false)
	if err != nil {
		return nil, err
	}

	results := NewObject()
	for _, row := range ct.rows {
		name := row.name()
		v, ok := results.Get(name)
		if !ok {
			v = markup.NewFields()
			results.Set(name, v)
		}
		fields := v.(*markup.Fields)
		for pair := ct.basic(row, false).Oldest(); pair != nil; pair = pair.Next() {
			fields.Set(pair.Key, pair.Value)
		}
	}
	return results, nil
}

func genshinTCG(ctx context.Context, s *Site) (any, error) {
	return s.quest(ctx, ys("七圣召唤"), "h2", s.Dialect)
}

func genshinCards(ctx context.Context, s *Site) (any, error) {
	return s.linkedCards(ctx, "卡牌一览", ys("卡牌图鉴"), tcgCard)
}

// tcgCard lists the text of the flex rows of a card page. Cost boxes are
// left out, as are the cost markers of skill rows.
func tcgCard(doc *goquery.Document) *Object {
	data := []string{}
	doc.Find("div.flex-row").Each(func(_ int, row *goquery.Selection) {
		if row.HasClass("cost-box") {
			return
		}
		if row.HasClass("jiNeng") {
			data = append(data, strings.TrimSpace(textWithout(row, ".cost")))
			return
		}
		data = append(data, text(row))
	})
	info := NewObject()
	info.Set("详细信息", data)
	return info
}

func genshinGeography(ctx context.Context, s *Site) (any, error) {
	const dataset = "地理志一览"
	doc, err := s.Document(ctx, ys("地理志"))
	if err != nil {
		return nil, err
	}

	results := NewObject()
	headline := doc.Find("span.mw-headline").First()
	if headline.Length() == 0 {
		return nil, ec.ErrMissingNode.Clone().WithDetails("span.mw-headline")
	}
	findNext(headline, "div").Find("a").Each(func(_ int, a *goquery.Selection) {
		title, href, ok := link(a)
		if !ok {
			return
		}
		page, err := s.Document(ctx, href)
		if err != nil {
			s.skip(dataset, title, err)
			return
		}
		results.Set(title, geography(page))
	})
	return results, nil
}

func geography(doc *goquery.Document) *markup.Fields {
	info := markup.NewFields()
	doc.Find("div.showOnBox").Each(func(_ int, box *goquery.Selection) {
		info.Set(text(box.Find("div.showOn").First()), text(box.Find("div.showOnText").First()))
	})
	return info
}

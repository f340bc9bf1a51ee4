package scrapers

import (
	"context"
	"strings"

	"github.com/ChiaYuChang/lorekeeper/internal/markup"
	"github.com/PuerkitoBio/goquery"
)

// missionNoise is left out of the related text of a mission page.
const missionNoise = "div.resourceLoader, div.foldExplain"

// chapterMissions reads a list page where every h2 after the first two is
// a chapter and each drop-down below it a mission. With unique a mission
// page title already seen in the chapter is not read again.
func chapterMissions(name string, unique bool) func(context.Context, *Site) (any, error) {
	return func(ctx context.Context, s *Site) (any, error) {
		doc, err := s.Document(ctx, sr(name))
		if err != nil {
			return nil, err
		}

		results := NewObject()
		tail(doc.Find("h2"), 2).Each(func(_ int, h2 *goquery.Selection) {
			chapter := text(h2)
			missions := NewObject()
			results.Set(chapter, missions)

			seen := map[string]bool{}
			h2.NextAll().EachWithBreak(func(_ int, node *goquery.Selection) bool {
				if goquery.NodeName(node) == "h2" {
					return false
				}
				if !node.Is("div.drop-down-wrap") {
					return true
				}
				mission := strings.TrimSpace(strings.ReplaceAll(text(node.Find("div.title").First()), "展开/折叠", ""))
				pages := NewObject()
				missions.Set(mission, pages)

				node.Find("div.wrap-content").First().Find("a").Each(func(_ int, a *goquery.Selection) {
					title, href, ok := link(a)
					if !ok || (unique && seen[title]) {
						return
					}
					seen[title] = true
					if data := s.mission(ctx, name, title, href); data != nil {
						pages.Set(title, data)
					}
				})
				return true
			})
		})
		return results, nil
	}
}

// headedMissions reads a list page grouped by h2 and then by h3, each h3
// followed by a list of mission links.
func headedMissions(name string) func(context.Context, *Site) (any, error) {
	return func(ctx context.Context, s *Site) (any, error) {
		doc, err := s.Document(ctx, sr(name))
		if err != nil {
			return nil, err
		}

		results := NewObject()
		tail(doc.Find("h2"), 2).Each(func(_ int, h2 *goquery.Selection) {
			group := NewObject()
			results.Set(text(h2), group)

			for _, h := range findAllNext(h2, "h3, h2") {
				if goquery.NodeName(h) == "h2" {
					break
				}
				missions := NewObject()
				group.Set(text(h), missions)
				findNext(h, "ul").Find("li").Each(func(_ int, li *goquery.Selection) {
					title, href, ok := link(li.Find("a").First())
					if !ok {
						return
					}
					if data := s.mission(ctx, name, title, href); data != nil {
						missions.Set(title, data)
					}
				})
			}
		})
		return results, nil
	}
}

// mission fetches and parses a mission page. Failures are logged and
// yield nil.
func (s *Site) mission(ctx context.Context, dataset, title, route string) *Object {
	doc, err := s.Document(ctx, route)
	if err != nil {
		s.skip(dataset, title, err)
		return nil
	}
	data, err := s.missionPage(doc)
	if err != nil {
		s.skip(dataset, title, err)
		return nil
	}
	if data.Len() == 0 {
		return nil
	}
	return data
}

// missionPage reads the info table, the related notes and the story of a
// mission page.
func (s *Site) missionPage(doc *goquery.Document) (*Object, error) {
	info := NewObject()
	if table := doc.Find("table.wikitable").First(); table.Length() > 0 {
		v, err := markup.NormalizeTable(table, s.Dialect)
		if err != nil {
			return nil, err
		}
		info.Set("基本信息", v)
	}

	var ferr error
	doc.Find("h2").EachWithBreak(func(_ int, h2 *goquery.Selection) bool {
		section := h2.Find("span.mw-headline").First()
		if section.Length() == 0 {
			return true
		}
		id, _ := section.Attr("id")
		switch strings.TrimSpace(id) {
		case "任务相关":
			if related := missionRelated(h2); related != "" {
				info.Set("任务相关", related)
			}
		case "剧情内容":
			story, err := markup.Flatten(h2, markup.SiblingsAfter, s.Dialect)
			if err != nil {
				ferr = err
				return false
			}
			if story != "" {
				info.Set("剧情内容", story)
			}
		}
		return true
	})
	if ferr != nil {
		return nil, ferr
	}
	return info, nil
}

// missionRelated renders the siblings after h2 up to the next h2: h3 as
// "=title=", lists as one "- item" line per item line, anything else as
// its text.
func missionRelated(h2 *goquery.Selection) string {
	var lines []string
	h2.NextAll().EachWithBreak(func(_ int, node *goquery.Selection) bool {
		if goquery.NodeName(node) == "h2" {
			return false
		}
		t := strings.TrimSpace(textWithout(node, missionNoise))
		if t == "" {
			return true
		}
		switch goquery.NodeName(node) {
		case "h3":
			lines = append(lines, "="+t+"=")
		case "ul":
			for _, line := range strings.Split(t, "\n") {
				if line = strings.TrimSpace(line); line != "" {
					lines = append(lines, "- "+line)
				}
			}
		default:
			lines = append(lines, t)
		}
		return true
	})
	return strings.Join(lines, "\n")
}

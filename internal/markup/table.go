package markup

import (
	"regexp"
	"strings"

	ec "github.com/ChiaYuChang/lorekeeper/pkgs/errors"
	"github.com/PuerkitoBio/goquery"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Fields is a string mapping that keeps document order, so that the same
// table always serializes to the same JSON.
type Fields = orderedmap.OrderedMap[string, string]

// NewFields returns an empty Fields.
func NewFields() *Fields {
	return orderedmap.New[string, string]()
}

// Shape is the header layout of a table.
type Shape int

const (
	HeaderTop Shape = iota
	HeaderCellEqual
	HeaderLeft
	NoHeader
	Freeform
)

func (s Shape) String() string {
	switch s {
	case HeaderTop:
		return "header-top"
	case HeaderCellEqual:
		return "header-cell-equal"
	case HeaderLeft:
		return "header-left"
	case NoHeader:
		return "no-header"
	default:
		return "freeform"
	}
}

// RarityKey is the field whose value is read from an image alt text.
const RarityKey = "稀有度"

var (
	reFieldSpace  = regexp.MustCompile(`(?:^图)?[\s\p{Z}]+`)
	reFileMarker  = regexp.MustCompile(`文件:.+\.(?:jpg|gif|png)`)
	reDisplayNone = regexp.MustCompile(`display\s*:\s*none`)
)

// ClassifyTable returns the first shape whose predicate accepts the table.
// The second result is false when no predicate matches or the table has no
// usable first row.
func ClassifyTable(table *goquery.Selection) (Shape, bool) {
	rows := table.Find("tr")
	if rows.Length() == 0 {
		return Freeform, false
	}

	first := rows.First()
	if first.Find("th, td").Length() == 0 {
		return Freeform, false
	}

	if first.Find("th").Length() > 1 && first.Find("td").Length() == 0 {
		return HeaderTop, true
	}

	nth, ntd := table.Find("th").Length(), table.Find("td").Length()
	if nth == ntd {
		return HeaderCellEqual, true
	}

	last := rows.Last()
	if last.Find("th").Length() > 0 && last.Find("td").Length() > 0 {
		return HeaderLeft, true
	}

	if ntd > 0 && nth == 0 {
		return NoHeader, true
	}
	return Freeform, false
}

// NormalizeTable renders table as a *Fields, a []*Fields or a []string
// depending on its shape. The tree is only read.
func NormalizeTable(table *goquery.Selection, d Dialect) (any, error) {
	if table == nil || table.Length() == 0 {
		return nil, ec.ErrMalformedTable.Clone().
			WithDetails("table selection is empty")
	}

	shape, ok := ClassifyTable(table)
	if !ok {
		if d.UnknownShape != FallbackFreeform {
			if rows := table.Find("tr"); rows.Length() == 0 ||
				rows.First().Find("th, td").Length() == 0 {
				return nil, ec.ErrMalformedTable.Clone().
					WithDetails("table has no rows or an empty first row")
			}
			return nil, ec.ErrUnknownShape.Clone().
				WithDetails("dialect: " + d.Name)
		}
		shape = Freeform
	}

	switch shape {
	case HeaderTop:
		return headerTop(table)
	case HeaderCellEqual:
		return headerCellEqual(table)
	case HeaderLeft:
		return headerLeft(table)
	case NoHeader:
		return cleanList(texts(table.Find("td"))), nil
	default:
		return cleanList(freeform(table)), nil
	}
}

func headerTop(table *goquery.Selection) ([]*Fields, error) {
	rows := table.Find("tr")
	headers := texts(rows.First().Find("th"))

	result := make([]*Fields, 0, rows.Length()-1)
	var err error
	rows.Slice(1, rows.Length()).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		fields := NewFields()
		cells := row.Find("td")
		for i, key := range headers {
			if i >= cells.Length() {
				break
			}
			if key == "" {
				continue
			}

			var val string
			if val, err = fieldValue(key, cells.Eq(i)); err != nil {
				return false
			}
			fields.Set(key, val)
		}
		result = append(result, cleanFields(fields))
		return true
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func headerCellEqual(table *goquery.Selection) (*Fields, error) {
	headers := table.Find("th")
	cells := table.Find("td")

	fields := NewFields()
	for i := range min(headers.Length(), cells.Length()) {
		key := strings.TrimSpace(headers.Eq(i).Text())
		val, err := fieldValue(key, cells.Eq(i))
		if err != nil {
			return nil, err
		}
		fields.Set(key, val)
	}
	return cleanFields(fields), nil
}

func headerLeft(table *goquery.Selection) (*Fields, error) {
	fields := NewFields()

	var err error
	table.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if row.Find("td").Length() == 0 {
			return true
		}

		var headers []string
		row.Find("th").Each(func(_ int, th *goquery.Selection) {
			if style, ok := th.Attr("style"); ok && reDisplayNone.MatchString(strings.ToLower(style)) {
				return
			}
			header, _, _ := strings.Cut(th.Text(), "Media")
			if header = strings.TrimSpace(header); header != "" {
				headers = append(headers, header)
			}
		})
		if len(headers) == 0 {
			return true
		}

		key := strings.Join(headers, " - ")
		var val string
		if key == RarityKey {
			if val, err = rarity(row); err != nil {
				return false
			}
		} else {
			val = strings.TrimSpace(row.Find("td").First().Text())
			val = strings.ReplaceAll(val, "\u00A0", " ")
		}
		fields.Set(key, val)
		return true
	})
	if err != nil {
		return nil, err
	}
	return cleanFields(fields), nil
}

func freeform(table *goquery.Selection) []string {
	var lines []string
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		line := ""
		cells := row.Find("th, td")
		cells.Each(func(k int, cell *goquery.Selection) {
			if k > 0 && goquery.NodeName(cell) == "td" &&
				goquery.NodeName(cells.Eq(k-1)) == "th" {
				line += ": "
			}
			content := strings.ReplaceAll(cell.Text(), "\u00A0", "")
			content = reFileMarker.ReplaceAllString(content, "")
			line += strings.TrimSpace(content) + " "
		})
		lines = append(lines, strings.TrimSpace(line))
	})
	return lines
}

// fieldValue renders one td for key.
func fieldValue(key string, cell *goquery.Selection) (string, error) {
	if key == RarityKey {
		return rarity(cell)
	}
	return CleanField(cell.Text()), nil
}

// CleanField collapses whitespace runs, drops a leading caption marker and
// trims the result.
func CleanField(s string) string {
	return strings.TrimSpace(reFieldSpace.ReplaceAllString(s, " "))
}

func rarity(sel *goquery.Selection) (string, error) {
	img := sel.Find("img").First()
	alt, ok := img.Attr("alt")
	if img.Length() == 0 || !ok {
		return "", ec.ErrMissingNode.Clone().
			WithDetails("rarity cell has no img[alt]")
	}
	val, _, _ := strings.Cut(alt, ".")
	return val, nil
}

func texts(sel *goquery.Selection) []string {
	out := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, strings.TrimSpace(s.Text()))
	})
	return out
}

func dropValue(v string) bool {
	return v == "" || v == "'" || strings.Contains(v, "文件:")
}

func cleanFields(f *Fields) *Fields {
	var drop []string
	for p := f.Oldest(); p != nil; p = p.Next() {
		if p.Key == "" || dropValue(p.Value) {
			drop = append(drop, p.Key)
		}
	}
	for _, k := range drop {
		f.Delete(k)
	}
	return f
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if !dropValue(v) {
			out = append(out, v)
		}
	}
	return out
}

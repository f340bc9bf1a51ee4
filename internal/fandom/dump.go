// Package fandom reads the MediaWiki export of the English Genshin Impact
// wiki and extracts character records from its wikitext.
package fandom

import (
	"bufio"
	"encoding/json"
	"encoding/xml"
	"errors"
	"html"
	"io"
	"regexp"
	"strconv"

	"github.com/ChiaYuChang/lorekeeper/internal/global"
	ec "github.com/ChiaYuChang/lorekeeper/pkgs/errors"
)

// MainNamespace is the ns of article pages.
const MainNamespace = "0"

// Page is one article of the dump.
type Page struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ReadDump streams the pages of a MediaWiki XML export and calls fn for
// every page of the main namespace. An error returned by fn stops the read.
func ReadDump(r io.Reader, fn func(Page) error) error {
	dec := xml.NewDecoder(r)
	dec.Strict = false

	var title, ns string
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return ec.ErrUnmarshalFailed.Clone().WithDetails("malformed dump").Warp(err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "page":
			title, ns = "", ""
		case "title":
			if err := dec.DecodeElement(&title, &start); err != nil {
				return ec.ErrUnmarshalFailed.Clone().WithDetails("title").Warp(err)
			}
		case "ns":
			if err := dec.DecodeElement(&ns, &start); err != nil {
				return ec.ErrUnmarshalFailed.Clone().WithDetails("ns").Warp(err)
			}
		case "text":
			var content string
			if err := dec.DecodeElement(&content, &start); err != nil {
				return ec.ErrUnmarshalFailed.Clone().WithDetails("text of " + title).Warp(err)
			}
			if ns != MainNamespace {
				continue
			}
			if err := fn(Page{Title: title, Content: content}); err != nil {
				return err
			}
		}
	}
}

// PageEncoder is satisfied by sink.JSONLWriter.
type PageEncoder interface {
	Encode(v any) error
}

// Preprocess copies the main namespace pages of a dump to enc and returns
// their number.
func Preprocess(r io.Reader, enc PageEncoder) (int, error) {
	n := 0
	err := ReadDump(r, func(p Page) error {
		if err := enc.Encode(p); err != nil {
			return err
		}
		n++
		if n%500 == 0 {
			global.Logger.Debug().Int("pages", n).Msg("dump pages read")
		}
		return nil
	})
	return n, err
}

var (
	reLineBreakTag = regexp.MustCompile(`\s*<br />\s*`)
	reTag          = regexp.MustCompile(`<[^>]+>`)
)

// Normalize decodes HTML entities, turns line break tags into spaces and
// strips the remaining tags.
func Normalize(content string) string {
	content = html.UnescapeString(content)
	content = reLineBreakTag.ReplaceAllString(content, " ")
	return reTag.ReplaceAllString(content, "")
}

// LoadPages reads pages saved as JSON lines. Pages without content are
// dropped and the others normalized.
func LoadPages(r io.Reader) ([]Page, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), 64<<20)

	var pages []Page
	for line := 1; sc.Scan(); line++ {
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var p Page
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, ec.ErrUnmarshalFailed.Clone().
				WithDetails("line " + strconv.Itoa(line)).
				Warp(err)
		}
		if p.Content == "" {
			continue
		}
		p.Content = Normalize(p.Content)
		pages = append(pages, p)
	}
	if err := sc.Err(); err != nil {
		return nil, ec.ErrIOError.Clone().Warp(err)
	}
	return pages, nil
}

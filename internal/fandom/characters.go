package fandom

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	ec "github.com/ChiaYuChang/lorekeeper/pkgs/errors"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Fields is an insertion ordered string map.
type Fields = orderedmap.OrderedMap[string, string]

func newFields() *Fields {
	return orderedmap.New[string, string]()
}

// Characters maps a character name to its record, in discovery order.
type Characters = orderedmap.OrderedMap[string, *Character]

type Character struct {
	Infobox    *Fields    `json:"infobox"`
	Lore       Lore       `json:"lore"`
	VoiceOvers VoiceOvers `json:"voice_overs"`
	Companion  Companion  `json:"companion"`
}

type Lore struct {
	Quote       string `json:"quote"`
	Personality string `json:"Personality"`
}

type VoiceOvers struct {
	Story  *Fields `json:"Story"`
	Combat *Fields `json:"Combat VO"`
}

type Companion struct {
	IdleQuotes string  `json:"Idle Quotes"`
	Dialogue   string  `json:"Dialogue"`
	Special    *Fields `json:"Special Dialogue"`
}

var (
	reRedirect = regexp.MustCompile(`^#redirect \[\[[^\]]+/companion]]`)
	reIndent   = regexp.MustCompile(`^([:;]+)\s*(.+)$`)
	reBoldTag  = regexp.MustCompile(`'''|<[^>]+>`)
	reDIcon    = regexp.MustCompile(`\{\{DIcon.*}}:*\s*`)
)

const companionSuffix = "/Companion"

// ExtractCharacters builds a record for every playable character, found
// through its companion page. Characters with a missing page or section are
// left out; their errors are joined in the returned error.
func ExtractCharacters(pages []Page) (*Characters, error) {
	byTitle := make(map[string]Page, len(pages))
	var names []string
	for _, p := range pages {
		if _, ok := byTitle[p.Title]; !ok {
			byTitle[p.Title] = p
		}
		name, ok := strings.CutSuffix(p.Title, companionSuffix)
		if !ok || reRedirect.MatchString(strings.ToLower(p.Content)) {
			continue
		}
		if name == "Companion" || name == "Paimon" {
			continue
		}
		names = append(names, name)
	}

	out := orderedmap.New[string, *Character]()
	var errs []error
	for _, name := range names {
		if _, seen := out.Get(name); seen {
			continue
		}
		c, err := character(name, byTitle)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		out.Set(name, c)
	}
	return out, errors.Join(errs...)
}

func character(name string, pages map[string]Page) (*Character, error) {
	page := func(title string) (Page, error) {
		p, ok := pages[title]
		if !ok {
			return Page{}, ec.ErrMissingNode.Clone().WithDetails("page " + title)
		}
		return p, nil
	}

	home, err := page(name)
	if err != nil {
		return nil, err
	}
	infobox, err := Infobox(home.Content)
	if err != nil {
		return nil, err
	}

	lorePage, err := page(name + "/Lore")
	if err != nil {
		return nil, err
	}
	lore, err := CharacterLore(lorePage.Content)
	if err != nil {
		return nil, err
	}

	voPage, err := page(name + "/Voice-Overs")
	if err != nil {
		return nil, err
	}
	companionPage, err := page(name + companionSuffix)
	if err != nil {
		return nil, err
	}

	return &Character{
		Infobox:    infobox,
		Lore:       lore,
		VoiceOvers: CharacterVoiceOvers(name, voPage.Content),
		Companion:  CompanionDialogue(name, companionPage.Content),
	}, nil
}

var infoboxKeys = []string{"quality", "weapon", "element", "birthday", "constellation", "region", "dish", "namecard"}

// Infobox reads the Character Infobox template of a character page.
func Infobox(content string) (*Fields, error) {
	for _, t := range Templates(content) {
		if !strings.Contains(t.Name, "Character Infobox") {
			continue
		}
		info := newFields()
		for _, a := range t.Args {
			if !infoboxKey(a.Name) {
				continue
			}
			if v := StripFormat(strings.TrimSpace(a.Value)); v != "" {
				info.Set(a.Name, v)
			}
		}
		return info, nil
	}
	return nil, ec.ErrMissingNode.Clone().WithDetails("Character Infobox")
}

func infoboxKey(name string) bool {
	return slices.Contains(infoboxKeys, name) ||
		strings.Contains(name, "affiliation") || strings.Contains(name, "title")
}

// CharacterLore takes the quote of the lead section and the Personality
// section, with its own quote template inlined.
func CharacterLore(content string) (Lore, error) {
	var lore Lore
	sections := Sections(content)
	for _, t := range Templates(sections[0].Contents) {
		if strings.ToLower(t.Name) == "quote" && len(t.Args) > 0 {
			lore.Quote = StripFormat(strings.TrimSpace(t.Args[0].Value))
			break
		}
	}

	for _, s := range sections[1:] {
		if s.Title != "Personality" {
			continue
		}
		text := s.Contents
		for _, t := range Templates(text) {
			if strings.ToLower(t.Name) == "quote" && len(t.Args) > 0 {
				text = strings.Replace(text, t.Raw, t.Args[0].Value, 1)
				break
			}
		}
		lore.Personality = StripFormat(text)
	}

	if lore.Quote == "" {
		return lore, ec.ErrMissingNode.Clone().WithDetails("lore quote")
	}
	if lore.Personality == "" {
		return lore, ec.ErrMissingNode.Clone().WithDetails("Personality")
	}
	return lore, nil
}

// CharacterVoiceOvers pairs the _title and _tx arguments of the VO/Story
// templates and reads the _tx arguments of Combat VO. The {name} and
// {character} placeholders become name.
func CharacterVoiceOvers(name, content string) VoiceOvers {
	vo := VoiceOvers{Story: newFields(), Combat: newFields()}
	fill := strings.NewReplacer("{name}", name, "{character}", name)

	for _, t := range Templates(content) {
		switch {
		case strings.Contains(t.Name, "VO/Story"):
			titles := map[string]string{}
			for _, a := range t.Args {
				if id, ok := strings.CutSuffix(a.Name, "_title"); ok {
					titles[id] = a.Value
					continue
				}
				id, ok := strings.CutSuffix(a.Name, "_tx")
				if !ok {
					continue
				}
				title, ok := titles[id]
				if !ok {
					continue
				}
				vo.Story.Set(
					StripFormat(fill.Replace(strings.TrimSpace(title))),
					StripFormat(fill.Replace(strings.TrimSpace(a.Value))))
			}
		case t.Name == "Combat VO":
			for _, a := range t.Args {
				if !strings.HasSuffix(a.Name, "tx") {
					continue
				}
				title, _, _ := strings.Cut(a.Name, "_tx")
				vo.Combat.Set(
					StripFormat(fill.Replace(strings.TrimSpace(title))),
					StripFormat(fill.Replace(strings.TrimSpace(a.Value))))
			}
		}
	}
	return vo
}

// CompanionDialogue reads the Idle Quotes, Dialogue and Special Dialogue
// sections of a companion page.
func CompanionDialogue(name, content string) Companion {
	c := Companion{Special: newFields()}
	for _, s := range Sections(content) {
		switch s.Title {
		case "Idle Quotes":
			c.IdleQuotes = dialogueLines(name, StripFormat(s.Contents), true)
		case "Dialogue":
			c.Dialogue = companionLines(s.Contents)
		case "Special Dialogue":
			for _, sub := range s.Descendants() {
				if sub.Title == "" || sub.Title == s.Title {
					continue
				}
				c.Special.Set(sub.Title, companionLines(sub.Contents))
			}
		}
	}
	return c
}

func companionLines(raw string) string {
	p := reBoldTag.ReplaceAllString(raw, "")
	p = reDIcon.ReplaceAllString(p, "Traveler: ")
	p = strings.ReplaceAll(p, "(Traveler)", "Traveler")
	return dialogueLines("", StripFormat(p), false)
}

// dialogueLines keeps the indented lines of a paragraph. A ";" line is a
// term and kept as is; ":" lines become "- " items nested by their colon
// count, prefixed with the speaker when withSpeaker is set.
func dialogueLines(speaker, paragraph string, withSpeaker bool) string {
	var sb strings.Builder
	for _, line := range strings.Split(strings.TrimSpace(paragraph), "\n") {
		m := reIndent.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		marks, content := m[1], strings.TrimSpace(m[2])
		if marks == ";" {
			sb.WriteString(content)
			sb.WriteByte('\n')
			continue
		}
		indent := strings.Repeat("\t", max(strings.Count(marks, ":")-1, 0)) + "- "
		if withSpeaker {
			content = speaker + ": " + content
		}
		sb.WriteString(indent + content + "\n")
	}
	return sb.String()
}

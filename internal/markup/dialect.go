// Package markup turns hand-authored wiki markup into canonical values.
//
// It holds the two routines every page extractor shares: a table
// normalizer that classifies a table's header layout and renders it as a
// mapping or a sequence, and a narrative flattener that linearizes quest
// dialogue, mail and chat blocks into an annotated transcript. Both are
// pure functions over an already parsed document; the per-site
// differences are captured by a Dialect value.
package markup

import "regexp"

// ShapePolicy decides what happens to a table no shape predicate accepts.
type ShapePolicy int

const (
	// Fatal reports ErrUnknownShape (and ErrMalformedTable for empty tables).
	Fatal ShapePolicy = iota
	// FallbackFreeform renders the table row by row instead.
	FallbackFreeform
)

// ListStyle decides how a bullet list is rendered.
type ListStyle int

const (
	// Block emits the list's whole text as one line.
	Block ListStyle = iota
	// Exploded emits "- item" for every line of the list.
	Exploded
)

// SpacePolicy decides the final whitespace treatment of a transcript.
type SpacePolicy int

const (
	// Collapse squeezes runs of spaces into one.
	Collapse SpacePolicy = iota
	// Strip removes every space, for text that is not space delimited.
	Strip
)

// MismatchPolicy decides how a branching block with fewer contents than
// options is rendered.
type MismatchPolicy int

const (
	// OptionsThenContents emits every option label, then every content.
	OptionsThenContents MismatchPolicy = iota
	// PerIndex pairs options and contents by index as far as they go.
	PerIndex
)

// Dialect bundles the rendering choices of one wiki.
type Dialect struct {
	Name         string
	UnknownShape ShapePolicy
	Lists        ListStyle
	Spaces       SpacePolicy
	Mismatch     MismatchPolicy

	// HeadingTags render as "=text=", prefixed with HeadingPrefix.
	HeadingTags   []string
	HeadingPrefix string

	// EmphasisTags always render as emphasis. EmphasisStyle marks a node as
	// emphasis when the node or a descendant carries the inline style; when
	// EmphasisStyleTags is set only those tags are considered.
	EmphasisTags      []string
	EmphasisStyle     string
	EmphasisStyleTags []string
	EmphasisPerLine   bool
	Asterisks         bool

	PlotClasses   []string
	FoldClasses   []string
	IgnoreClasses []string
	// PlotBoxRecurse flattens a plot holding several plotBox children as
	// ordinary content instead of pairing its options.
	PlotBoxRecurse bool

	// DropLines discard a whole rendered block. Headings are kept when
	// HeadingsKeepDropped is set.
	DropLines           []*regexp.Regexp
	HeadingsKeepDropped bool
	// StripPatterns are removed from the assembled transcript.
	StripPatterns    []*regexp.Regexp
	CollapseNewlines bool
	Trim             bool
}

// Plain returns a copy of d that renders emphasis without asterisks.
func (d Dialect) Plain() Dialect {
	d.Asterisks = false
	return d
}

// WithLists returns a copy of d using the given list style.
func (d Dialect) WithLists(s ListStyle) Dialect {
	d.Lists = s
	return d
}

// Genshin is the lenient dialect of the Genshin Impact wiki.
var Genshin = Dialect{
	Name:            "genshin",
	UnknownShape:    FallbackFreeform,
	Lists:           Block,
	Spaces:          Strip,
	Mismatch:        OptionsThenContents,
	HeadingTags:     []string{"h2"},
	HeadingPrefix:   "\n",
	EmphasisTags:    []string{"h3", "blockquote"},
	EmphasisStyle:   "color:#b18300",
	EmphasisPerLine: true,
	Asterisks:       true,
	PlotClasses:     []string{"plotFrame", "plotBox", "foldFrame"},
	IgnoreClasses:   []string{"foldExplain"},
	PlotBoxRecurse:  true,
	DropLines: []*regexp.Regexp{
		regexp.MustCompile(`相关攻略|参考链接|原神WIKI导航`),
		regexp.MustCompile(`请上传文件|www\.|文件:|https:|max-width|toclevel|Media`),
	},
	StripPatterns: []*regexp.Regexp{
		regexp.MustCompile(`分支对话|动画剧情`),
		regexp.MustCompile(`请上传文件.+`),
	},
	HeadingsKeepDropped: true,
	CollapseNewlines:    true,
	Trim:                true,
}

// StarRail is the strict dialect of the Honkai: Star Rail wiki.
var StarRail = Dialect{
	Name:              "starrail",
	UnknownShape:      Fatal,
	Lists:             Block,
	Spaces:            Strip,
	Mismatch:          OptionsThenContents,
	HeadingTags:       []string{"h3"},
	EmphasisStyle:     "color:#f29e38",
	EmphasisStyleTags: []string{"dl"},
	Asterisks:         true,
	PlotClasses:       []string{"plotFrame"},
	FoldClasses:       []string{"foldFrame"},
	IgnoreClasses:     []string{"resourceLoader", "foldExplain"},
	DropLines: []*regexp.Regexp{
		regexp.MustCompile(`MediaWiki`),
	},
	Trim: true,
}

// Default is a neutral strict dialect that keeps spaces and trailing
// newlines.
var Default = Dialect{
	Name:         "default",
	UnknownShape: Fatal,
	Lists:        Block,
	Spaces:       Collapse,
	Mismatch:     PerIndex,
	HeadingTags:  []string{"h2", "h3"},
	Asterisks:    true,
	PlotClasses:  []string{"plotFrame"},
	FoldClasses:  []string{"foldFrame"},
}

// Dialects indexes the named dialects.
var Dialects = map[string]Dialect{
	Genshin.Name:  Genshin,
	StarRail.Name: StarRail,
	Default.Name:  Default,
}

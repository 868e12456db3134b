package ixbrl

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"text/template"
	"time"
	"unicode/utf8"

	"github.com/saranrapjs/esrs-ixbrl/pkg/report"
)

// ErrMalformedOutput is returned when a generated document lacks its root
// element.
var ErrMalformedOutput = errors.New("generated document is not a valid XHTML document")

const (
	// DefaultHeading is the h1 of generated documents.
	DefaultHeading = "Sustainability Disclosures"

	defaultEntityIdentifier = "12345654321"
	fallbackDate            = "2024-12-31"
)

//go:embed document.xhtml.tmpl
var documentTemplate string

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// Escape replaces the five XML special characters with entities.
func Escape(s string) string {
	return escaper.Replace(s)
}

var tpl = template.Must(template.New("document").Funcs(template.FuncMap{
	"esc": Escape,
}).Parse(documentTemplate))

// Option configures a Generator.
type Option func(*Generator)

// WithClock sets the time source of the "Generated on" line.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithSchemaRef overrides the taxonomy entry point referenced by the document.
func WithSchemaRef(href string) Option {
	return func(g *Generator) {
		if href != "" {
			g.schemaRef = href
		}
	}
}

// WithMinimalUnits emits only the units referenced by numeric facts instead
// of the whole unit table.
func WithMinimalUnits() Option {
	return func(g *Generator) { g.minimalUnits = true }
}

// WithTooltips adds a descriptive title attribute to every fact.
func WithTooltips() Option {
	return func(g *Generator) { g.tooltips = true }
}

// WithHeading sets the document heading.
func WithHeading(h string) Option {
	return func(g *Generator) {
		if h != "" {
			g.heading = h
		}
	}
}

// Generator serializes report documents as inline XBRL.
type Generator struct {
	now          func() time.Time
	schemaRef    string
	heading      string
	minimalUnits bool
	tooltips     bool
}

func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		now:       time.Now,
		schemaRef: DefaultSchemaRef,
		heading:   DefaultHeading,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate serializes doc with the default generator.
func Generate(doc *report.Document) ([]byte, error) {
	return NewGenerator().Generate(doc)
}

type contextData struct {
	ID          string
	Scheme      string
	Identifier  string
	Instant     bool
	InstantDate string
	StartDate   string
	EndDate     string
}

type documentData struct {
	XHTML       string
	Namespaces  []Namespace
	Title       string
	SchemaRef   string
	Contexts    []contextData
	Units       []StandardUnit
	Heading     string
	GeneratedOn string
	Body        string
}

// Generate serializes doc. The output is a complete XHTML document or an
// error; partial output is never returned.
func (g *Generator) Generate(doc *report.Document) ([]byte, error) {
	data := documentData{
		XHTML:       NamespaceXHTML,
		Namespaces:  Namespaces,
		Title:       doc.Title,
		SchemaRef:   g.schemaRef,
		Contexts:    contexts(doc),
		Units:       g.units(doc),
		Heading:     g.heading,
		GeneratedOn: g.now().Format(time.DateOnly),
		Body:        g.body(doc),
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render document: %w", err)
	}
	out := buf.Bytes()
	if !bytes.Contains(out, []byte(`<html xmlns="`+NamespaceXHTML+`"`)) || !bytes.Contains(out, []byte("</html>")) {
		return nil, ErrMalformedOutput
	}
	return out, nil
}

func formatDate(s string) string {
	if d, ok := report.NormalizeDate(s); ok {
		return d
	}
	return fallbackDate
}

// contexts returns the distinct contexts used by doc's tags. The first tag
// referencing an id decides its content.
func contexts(doc *report.Document) []contextData {
	seen := make(map[string]bool)
	var out []contextData
	for _, tag := range doc.Tags() {
		c := tag.Context
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		cd := contextData{
			ID:         c.ID,
			Scheme:     c.EntityScheme,
			Identifier: c.EntityIdentifier,
			Instant:    c.IsInstant(),
		}
		if cd.Scheme == "" {
			cd.Scheme = report.DefaultEntityScheme
		}
		if cd.Identifier == "" {
			cd.Identifier = defaultEntityIdentifier
		}
		if cd.Instant {
			cd.InstantDate = formatDate(c.InstantDate)
		} else {
			cd.StartDate = formatDate(c.StartDate)
			cd.EndDate = formatDate(c.EndDate)
		}
		out = append(out, cd)
	}
	return out
}

func (g *Generator) units(doc *report.Document) []StandardUnit {
	if !g.minimalUnits {
		return StandardUnits
	}
	used := make(map[string]bool)
	for _, tag := range doc.Tags() {
		if IsNumeric(tag.Concept) {
			if u := UnitRef(tag.Concept); u != "" {
				used[u] = true
			}
		}
	}
	var out []StandardUnit
	for _, u := range StandardUnits {
		if used[u.ID] {
			out = append(out, u)
		}
	}
	return out
}

type section struct {
	category Category
	titled   bool
	blocks   []*report.Block
}

// sections groups blocks in a single pass. A tagged block whose first tag
// belongs to another category than the open section starts a new section;
// untagged blocks always join the open one.
func sections(blocks []*report.Block) []section {
	var out []section
	cur := section{}
	for _, b := range blocks {
		if b == nil {
			continue
		}
		if tags := b.Tagged(); len(tags) > 0 {
			cat := CategoryOf(tags[0].Concept.ID)
			if !cur.titled || cat != cur.category {
				if len(cur.blocks) > 0 {
					out = append(out, cur)
				}
				cur = section{category: cat, titled: true, blocks: []*report.Block{b}}
				continue
			}
		}
		cur.blocks = append(cur.blocks, b)
	}
	if len(cur.blocks) > 0 {
		out = append(out, cur)
	}
	return out
}

func (g *Generator) body(doc *report.Document) string {
	var sb strings.Builder
	for _, s := range sections(doc.Blocks) {
		sb.WriteString("  <div class=\"section\">\n")
		if s.titled {
			fmt.Fprintf(&sb, "    <h2>%s</h2>\n", Escape(SectionTitle(s.category)))
		}
		for _, b := range s.blocks {
			g.writeBlock(&sb, b)
		}
		sb.WriteString("  </div>\n\n")
	}
	return sb.String()
}

// placement is a tag span that survives overlap and bounds checks, in rune
// offsets of the block content.
type placement struct {
	tag        *report.Tag
	n          int
	start, end int
}

// placements orders a block's tags by start and drops empty spans, spans
// starting past the content and spans overlapping an earlier one.
func placements(b *report.Block) []placement {
	tags := b.Tagged()
	slices.SortStableFunc(tags, func(a, b *report.Tag) int {
		return a.Span().Start - b.Span().Start
	})
	length := utf8.RuneCountInString(b.Content)
	var out []placement
	last := 0
	for i, tag := range tags {
		span := tag.Span()
		if span.End <= span.Start || span.Start < last || span.Start >= length {
			continue
		}
		end := min(span.End, length)
		out = append(out, placement{tag: tag, n: i + 1, start: span.Start, end: end})
		last = end
	}
	return out
}

func (g *Generator) writeBlock(sb *strings.Builder, b *report.Block) {
	if len(b.Tagged()) == 0 {
		fmt.Fprintf(sb, "    <div class=\"content-block\">%s</div>\n", Escape(b.Content))
		return
	}
	runes := []rune(b.Content)
	var out strings.Builder
	last := 0
	for _, p := range placements(b) {
		out.WriteString(Escape(string(runes[last:p.start])))
		out.WriteString(g.fact(p.tag, string(runes[p.start:p.end]), p.n))
		last = p.end
	}
	out.WriteString(Escape(string(runes[last:])))
	content := strings.ReplaceAll(out.String(), "\n", "<br/>")
	fmt.Fprintf(sb, "    <div class=\"content-block\">%s</div>\n\n", content)
}

// fact renders one tagged span as ix:nonFraction or ix:nonNumeric.
func (g *Generator) fact(tag *report.Tag, value string, n int) string {
	c := tag.Concept
	name := ConceptName(c.ID)
	unit := UnitRef(c)

	var attrs []string
	attrs = append(attrs, attr("name", name), attr("contextRef", tag.Context.ID))
	numeric := IsNumeric(c)
	if numeric {
		if unit != "" {
			attrs = append(attrs, attr("unitRef", unit))
		}
		attrs = append(attrs, attr("decimals", Decimals(c)))
	}
	if g.tooltips {
		title := "Tag " + strconv.Itoa(n) + ": " + conceptLabel(c.ID) + " (" + name + ")"
		if unit != "" {
			title += " - Unit: " + unit
		}
		attrs = append(attrs, attr("title", title))
	}
	element := "ix:nonNumeric"
	if numeric {
		element = "ix:nonFraction"
	}
	return "<" + element + " " + strings.Join(attrs, " ") + ">" + Escape(value) + "</" + element + ">"
}

func attr(name, value string) string {
	return name + `="` + Escape(value) + `"`
}

// FactCount returns the number of facts Generate emits for doc.
func FactCount(doc *report.Document) int {
	n := 0
	for _, b := range doc.Blocks {
		if b != nil {
			n += len(placements(b))
		}
	}
	return n
}

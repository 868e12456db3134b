// Package ixbrl reads and writes inline XBRL: XHTML documents carrying
// ix:nonFraction and ix:nonNumeric facts, with their contexts and units
// declared in ix:resources.
package ixbrl

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	strip "github.com/grokify/html-strip-tags-go"
	"golang.org/x/net/html"
)

var numberPattern = regexp.MustCompile(`-?\d[\d,]*(\.\d+)?`)

type nodeRegistry map[string]func() any

// html.Parse lower-cases element and attribute names, so the registry and
// the struct tags below are lower case.
var registry = nodeRegistry{
	"ix:nonfraction": func() any { return &NonFraction{} },
	"ix:nonnumeric":  func() any { return &NonNumeric{} },
	"xbrli:context":  func() any { return &Context{} },
	"xbrli:unit":     func() any { return &Unit{} },
}

// ParsedNode is a namespaced element together with the struct it was
// decoded into. Struct is nil for prefixed elements outside the registry.
type ParsedNode struct {
	Node   *html.Node
	Struct any
	Type   string
}

// Parse reads an XHTML document and returns its prefixed elements in
// document order, alongside the parsed document. Facts are linked to their
// context and unit when those are declared.
func Parse(r io.Reader) ([]*ParsedNode, *html.Node, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, doc, fmt.Errorf("failed to parse document: %w", err)
	}

	var parsedNodes []*ParsedNode
	collectAndParseNodes(doc, &parsedNodes)

	contexts := make(map[string]*Context)
	units := make(map[string]*Unit)
	for _, p := range parsedNodes {
		switch n := p.Struct.(type) {
		case *Context:
			if _, ok := contexts[n.ID]; !ok {
				contexts[n.ID] = n
			}
		case *Unit:
			if _, ok := units[n.ID]; !ok {
				units[n.ID] = n
			}
		}
	}
	for _, p := range parsedNodes {
		switch n := p.Struct.(type) {
		case *NonFraction:
			n.Context = contexts[n.ContextRef]
			n.Unit = units[n.UnitRef]
		case *NonNumeric:
			n.Context = contexts[n.ContextRef]
		}
	}
	return parsedNodes, doc, nil
}

// collectAndParseNodes traverses the HTML tree and collects nodes with
// colons, as a fuzzy test for whether they are likely to be XBRL elements.
// Elements that fail to decode are skipped.
func collectAndParseNodes(n *html.Node, nodes *[]*ParsedNode) {
	if n.Type == html.ElementNode && strings.Contains(n.Data, ":") {
		parsedNode := &ParsedNode{
			Node: n,
			Type: n.Data,
		}
		if constructor, exists := registry[n.Data]; exists {
			structInstance := constructor()
			var s strings.Builder
			if err := html.Render(&s, n); err != nil {
				return
			}
			if err := xml.Unmarshal([]byte(s.String()), structInstance); err != nil {
				return
			}
			if f, ok := structInstance.(interface{ setText(string) }); ok {
				f.setText(factText(n))
			}
			parsedNode.Struct = structInstance
		}
		*nodes = append(*nodes, parsedNode)
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectAndParseNodes(c, nodes)
	}
}

// factText is the visible text of a fact element, with nested markup
// removed and whitespace collapsed.
func factText(n *html.Node) string {
	var inner strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "br" {
			inner.WriteString(" ")
			continue
		}
		if err := html.Render(&inner, c); err != nil {
			return ""
		}
	}
	text := html.UnescapeString(strip.StripTags(inner.String()))
	return strings.Join(strings.Fields(text), " ")
}

// NonFraction is an ix:nonFraction element: a numeric fact.
type NonFraction struct {
	XMLName    xml.Name `xml:"nonfraction"`
	UnitRef    string   `xml:"unitref,attr"`
	Decimals   string   `xml:"decimals,attr"`
	Name       string   `xml:"name,attr"`
	Format     string   `xml:"format,attr"`
	Scale      string   `xml:"scale,attr"`
	Sign       string   `xml:"sign,attr"`
	ID         string   `xml:"id,attr"`
	Content    string   `xml:",chardata"`
	ContextRef string   `xml:"contextref,attr"`
	Text       string   `xml:"-"`
	Context    *Context `xml:"-"`
	Unit       *Unit    `xml:"-"`
}

func (nf *NonFraction) setText(s string) { nf.Text = s }

func (nf *NonFraction) scale() float64 {
	scale, err := strconv.Atoi(nf.Scale)
	if err != nil {
		return 1
	}
	return math.Pow10(scale)
}

// Number parses the displayed value, ignoring thousands separators, a
// trailing percent sign and surrounding unit words. ok is false when no
// number can be read.
func (nf *NonFraction) Number() (value float64, ok bool) {
	m := numberPattern.FindString(nf.Text)
	if m == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	if nf.Sign == "-" {
		value = -value
	}
	return value, true
}

// ScaledNumber applies the scale attribute, a power of 10, to the value.
func (nf *NonFraction) ScaledNumber() float64 {
	v, _ := nf.Number()
	return nf.scale() * v
}

// NonNumeric is an ix:nonNumeric element: a textual fact.
type NonNumeric struct {
	XMLName    xml.Name `xml:"nonnumeric"`
	Name       string   `xml:"name,attr"`
	Format     string   `xml:"format,attr"`
	ID         string   `xml:"id,attr"`
	Content    string   `xml:",chardata"`
	ContextRef string   `xml:"contextref,attr"`
	Text       string   `xml:"-"`
	Context    *Context `xml:"-"`
}

func (nn *NonNumeric) setText(s string) { nn.Text = s }

// Context is an xbrli:context element: the entity and period of facts.
type Context struct {
	XMLName xml.Name `xml:"context"`
	ID      string   `xml:"id,attr"`
	Entity  Entity   `xml:"entity"`
	Period  Period   `xml:"period"`
}

// Period is either an instant or a start and end date.
type Period struct {
	XMLName   xml.Name `xml:"period"`
	StartDate string   `xml:"startdate"`
	Instant   string   `xml:"instant"`
	EndDate   string   `xml:"enddate"`
}

func (p Period) FormattedValue() string {
	if p.Instant != "" {
		return p.Instant
	}
	return fmt.Sprintf("%s to %s", p.StartDate, p.EndDate)
}

type Entity struct {
	Identifier Identifier `xml:"identifier"`
	Segment    Segment    `xml:"segment"`
}

// Identifier names the reporting entity within a scheme such as an LEI.
type Identifier struct {
	XMLName xml.Name `xml:"identifier"`
	Scheme  string   `xml:"scheme,attr"`
	Content string   `xml:",chardata"`
}

type Segment struct {
	XMLName         xml.Name         `xml:"segment"`
	ExplicitMembers []ExplicitMember `xml:"explicitmember"`
}

// ExplicitMember is an xbrldi:explicitMember dimension qualifier.
type ExplicitMember struct {
	XMLName   xml.Name `xml:"explicitmember"`
	Dimension string   `xml:"dimension,attr"`
	Content   string   `xml:",chardata"`
}

// Unit is an xbrli:unit element.
type Unit struct {
	XMLName xml.Name `xml:"unit"`
	ID      string   `xml:"id,attr"`
	Measure Measure  `xml:"measure"`
}

type Measure struct {
	XMLName xml.Name `xml:"measure"`
	Content string   `xml:",chardata"`
}

// FilterByType returns the parsed structs of type K matching predicate.
func FilterByType[K any](nodes []*ParsedNode, predicate func(t *K) bool) []*K {
	var filtered []*K
	for _, node := range nodes {
		if t, ok := node.Struct.(*K); ok {
			if predicate(t) {
				filtered = append(filtered, t)
			}
		}
	}
	return filtered
}

// All returns every parsed struct of type K.
func All[K any](nodes []*ParsedNode) []*K {
	return FilterByType(nodes, func(*K) bool { return true })
}

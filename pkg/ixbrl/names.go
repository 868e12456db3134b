package ixbrl

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/saranrapjs/esrs-ixbrl/pkg/report"
)

// Namespace is a prefix bound in the root element of generated documents.
type Namespace struct {
	Prefix string
	URI    string
}

const (
	NamespaceXHTML    = "http://www.w3.org/1999/xhtml"
	NamespaceInstance = "http://www.xbrl.org/2003/instance"
	NamespaceInline   = "http://www.xbrl.org/2013/inlineXBRL"
	esrsBaseURI       = "https://xbrl.efrag.org/taxonomy/esrs/2023-12-22"

	// DefaultSchemaRef is the ESRS entry point referenced by generated documents.
	DefaultSchemaRef = esrsBaseURI + "/esrs_all.xsd"
)

// Namespaces is the fixed, ordered namespace block of every generated
// document. It does not depend on the document, since tags may use any
// ESRS sub-module.
var Namespaces = []Namespace{
	{"xbrli", NamespaceInstance},
	{"link", "http://www.xbrl.org/2003/linkbase"},
	{"xlink", "http://www.w3.org/1999/xlink"},
	{"ix", NamespaceInline},
	{"esrs", esrsBaseURI},
	{"esrs_e1", esrsBaseURI + "/esrs_e1"},
	{"esrs_g1", esrsBaseURI + "/esrs_g1"},
	{"esrs_s1", esrsBaseURI + "/esrs_s1"},
	{"iso4217", "http://www.xbrl.org/2003/iso4217"},
	{"xbrldt", "http://xbrl.org/2005/xbrldt"},
	{"xsi", "http://www.w3.org/2001/XMLSchema-instance"},
}

var subModules = map[string]bool{"e1": true, "g1": true, "s1": true}

// ConceptName resolves a concept id to the qualified name used in the name
// attribute of facts:
//
//	esrs:Revenue                -> esrs:Revenue
//	esrs_e1_GrossScope1         -> esrs_e1:GrossScope1
//	esrs_Revenue                -> esrs:Revenue
//	ifrs_full_Revenue           -> ifrs:fullRevenue
//	Revenue                     -> esrs:Revenue
func ConceptName(id string) string {
	if strings.Contains(id, ":") {
		return id
	}
	if rest, ok := strings.CutPrefix(id, "esrs_"); ok {
		parts := strings.Split(rest, "_")
		if subModules[parts[0]] {
			return "esrs_" + parts[0] + ":" + strings.Join(parts[1:], "")
		}
		return "esrs:" + rest
	}
	if strings.Contains(id, "_") {
		parts := strings.Split(id, "_")
		return parts[0] + ":" + strings.Join(parts[1:], "")
	}
	return "esrs:" + id
}

// StandardUnit is a unit of measure declared in ix:resources.
type StandardUnit struct {
	ID      string
	Measure string
}

// StandardUnits is the static unit registry of generated documents.
var StandardUnits = []StandardUnit{
	{"U-EUR", "iso4217:EUR"},
	{"U-USD", "iso4217:USD"},
	{"pure", "xbrli:pure"},
	{"tCO2e", "xbrli:pure"},
	{"MWh", "xbrli:pure"},
	{"m3", "xbrli:pure"},
	{"tonnes", "xbrli:pure"},
}

// UnitRef picks the unit of a numeric concept from its data type and id.
// It returns "" when no unit applies.
func UnitRef(c report.Concept) string {
	id := strings.ToLower(c.ID)
	dataType := report.DataType(strings.ToLower(string(c.DataType)))
	switch {
	case dataType == report.DataMonetary:
		return "U-EUR"
	case strings.Contains(id, "percentage"), strings.Contains(id, "ratio"):
		return "pure"
	case strings.Contains(id, "ghg"), strings.Contains(id, "emission"), strings.Contains(id, "carbon"):
		return "tCO2e"
	case strings.Contains(id, "energy"):
		return "MWh"
	case strings.Contains(id, "water"):
		return "m3"
	case strings.Contains(id, "waste"):
		return "tonnes"
	case dataType == report.DataDecimal, dataType == report.DataInteger:
		return "pure"
	}
	return ""
}

// Decimals is the decimals attribute of a numeric concept.
func Decimals(c report.Concept) string {
	switch report.DataType(strings.ToLower(string(c.DataType))) {
	case report.DataMonetary, report.DataInteger:
		return "0"
	default:
		return "2"
	}
}

// IsNumeric reports whether facts of c are written as ix:nonFraction.
func IsNumeric(c report.Concept) bool {
	return report.DataType(strings.ToLower(string(c.DataType))).IsNumeric()
}

// Category groups concepts into report sections.
type Category string

const (
	CategoryGovernance Category = "governance"
	CategoryClimate    Category = "climate"
	CategoryRisk       Category = "risk"
	CategoryFinancial  Category = "financial"
	CategoryGeneral    Category = "general"
)

// CategoryOf classifies a concept id by keyword.
func CategoryOf(conceptID string) Category {
	id := strings.ToLower(conceptID)
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(id, w) {
				return true
			}
		}
		return false
	}
	switch {
	case has("governance", "administrative"):
		return CategoryGovernance
	case has("ghg", "emission", "climate"):
		return CategoryClimate
	case has("risk", "assessment"):
		return CategoryRisk
	case has("revenue", "financial"):
		return CategoryFinancial
	}
	return CategoryGeneral
}

var sectionTitles = map[Category]string{
	CategoryGovernance: "Governance and Risk Management",
	CategoryClimate:    "Climate-related Risks and Opportunities",
	CategoryRisk:       "Risk Assessment",
	CategoryFinancial:  "Financial Information",
	CategoryGeneral:    "General Disclosures",
}

// SectionTitle is the heading of a section of the given category.
func SectionTitle(c Category) string {
	if t, ok := sectionTitles[c]; ok {
		return t
	}
	return "Sustainability Disclosures"
}

var upper = cases.Upper(language.Und)

// conceptLabel turns the local part of a concept id into words, for
// example "esrs:NetRevenue" into "Net Revenue".
func conceptLabel(id string) string {
	if i := strings.LastIndex(id, ":"); i >= 0 {
		id = id[i+1:]
	}
	var b strings.Builder
	for _, r := range id {
		if unicode.IsUpper(r) {
			b.WriteRune(' ')
		}
		b.WriteRune(r)
	}
	s := strings.TrimSpace(b.String())
	if s == "" {
		return s
	}
	first := []rune(s)[0]
	return upper.String(string(first)) + string([]rune(s)[1:])
}

var fileNameChars = func(r rune) rune {
	if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
		return unicode.ToLower(r)
	}
	return '_'
}

// FileName is the download name of a report's iXBRL export.
func FileName(title string) string {
	return strings.Map(fileNameChars, title) + "_esrs.ixbrl"
}

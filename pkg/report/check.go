package report

import (
	"fmt"
	"strings"
	"unicode"
)

// Readiness is the outcome of the pre-export check of a document.
type Readiness struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Check inspects a document before export. Errors block export; warnings
// point at tagging that is likely incomplete.
func Check(doc *Document) Readiness {
	r := Readiness{Errors: []string{}, Warnings: []string{}}
	tags := doc.Tags()

	if len(tags) == 0 {
		r.Errors = append(r.Errors, "No XBRL tags found in the report")
	}
	if len(doc.ContextIDs()) == 0 {
		r.Errors = append(r.Errors, "No contexts found for XBRL tags")
	}

	climate := false
	var unqualified, missingValues []string
	for _, b := range doc.Blocks {
		if b == nil {
			continue
		}
		for _, t := range b.Tagged() {
			id := strings.ToLower(t.Concept.ID)
			if strings.Contains(id, "climate") || strings.Contains(id, "ghg") {
				climate = true
			}
			if !strings.ContainsAny(t.Concept.ID, ":_") {
				unqualified = append(unqualified, t.Concept.ID)
			}
			if t.Concept.IsNumeric() && !containsDigit(valueText(b, t)) {
				name := t.Concept.Label
				if name == "" {
					name = t.Concept.ID
				}
				missingValues = append(missingValues, name)
			}
		}
	}
	if !climate {
		r.Warnings = append(r.Warnings, "No climate-related disclosures found. Consider adding ESRS E1 elements.")
	}
	if len(unqualified) > 0 {
		r.Warnings = append(r.Warnings, "Concepts may need proper namespace prefixes: "+truncatedList(unqualified, 3))
	}
	if len(missingValues) > 0 {
		r.Warnings = append(r.Warnings, "Numeric concepts may be missing values: "+truncatedList(missingValues, 2))
	}

	periods := make(map[string]string)
	warned := make(map[string]bool)
	for _, t := range tags {
		key := periodKey(t.Context)
		if prev, ok := periods[key]; ok && prev != t.Context.ID && !warned[t.Context.ID] {
			warned[t.Context.ID] = true
			r.Warnings = append(r.Warnings, fmt.Sprintf("Multiple contexts found for same period: %s", t.Context.ID))
		}
		periods[key] = t.Context.ID
	}

	r.IsValid = len(r.Errors) == 0
	return r
}

// valueText is the text a tag reports: its span, or the whole block when
// the tag has no span.
func valueText(b *Block, t *Tag) string {
	if t.StartIndex == nil || t.EndIndex == nil {
		return b.Content
	}
	return t.Text(b.Content)
}

func containsDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

func truncatedList(items []string, n int) string {
	if len(items) <= n {
		return strings.Join(items, ", ")
	}
	return strings.Join(items[:n], ", ") + "..."
}

func periodKey(c Context) string {
	return strings.Join([]string{c.PeriodType, c.InstantDate, c.StartDate, c.EndDate}, "|")
}

package facts

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/saranrapjs/esrs-ixbrl/pkg/ixbrl"
)

// Fact is a single tagged value read back out of an inline XBRL document.
type Fact struct {
	Concept    string         `json:"concept"`
	ContextRef string         `json:"contextRef"`
	UnitRef    string         `json:"unitRef,omitempty"`
	Decimals   string         `json:"decimals,omitempty"`
	Value      string         `json:"value"`
	Number     float64        `json:"number,omitempty"`
	Numeric    bool           `json:"numeric"`
	Context    *ixbrl.Context `json:"-"`
	Unit       *ixbrl.Unit    `json:"-"`
}

// Facts is everything extracted from one document.
type Facts struct {
	Title    string           `json:"title"`
	Facts    []Fact           `json:"facts"`
	Contexts []*ixbrl.Context `json:"-"`
	Units    []*ixbrl.Unit    `json:"-"`
}

// FromIXBRL parses an inline XBRL document and returns its facts in
// document order, each linked to its declared context and unit.
func FromIXBRL(r io.Reader) (*Facts, error) {
	p, doc, err := ixbrl.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to extract facts: %w", err)
	}
	facts := &Facts{
		Title:    ixbrl.Title(doc),
		Facts:    []Fact{},
		Contexts: dedupContexts(ixbrl.All[ixbrl.Context](p)),
		Units:    dedupUnits(ixbrl.All[ixbrl.Unit](p)),
	}
	for _, node := range p {
		switch n := node.Struct.(type) {
		case *ixbrl.NonFraction:
			facts.Facts = append(facts.Facts, Fact{
				Concept:    n.Name,
				ContextRef: n.ContextRef,
				UnitRef:    n.UnitRef,
				Decimals:   n.Decimals,
				Value:      cleanFactValue(n.Text),
				Number:     n.ScaledNumber(),
				Numeric:    true,
				Context:    n.Context,
				Unit:       n.Unit,
			})
		case *ixbrl.NonNumeric:
			facts.Facts = append(facts.Facts, Fact{
				Concept:    n.Name,
				ContextRef: n.ContextRef,
				Value:      cleanFactValue(n.Text),
				Context:    n.Context,
			})
		}
	}
	return facts, nil
}

func dedupContexts(all []*ixbrl.Context) []*ixbrl.Context {
	seen := make(map[string]bool)
	var out []*ixbrl.Context
	for _, c := range all {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}

func dedupUnits(all []*ixbrl.Unit) []*ixbrl.Unit {
	seen := make(map[string]bool)
	var out []*ixbrl.Unit
	for _, u := range all {
		if seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		out = append(out, u)
	}
	return out
}

// cleanFactValue trims a fact's displayed text and drops the quotes
// editors sometimes leave around a tagged selection.
func cleanFactValue(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'“”‘’`)
	return strings.TrimSpace(s)
}

// Entity is the identifier of the first context, or "" when there are none.
func (f *Facts) Entity() string {
	for _, c := range f.Contexts {
		if id := strings.TrimSpace(c.Entity.Identifier.Content); id != "" {
			return id
		}
	}
	return ""
}

// ReportingPeriod is the formatted period of the most recent context.
func (f *Facts) ReportingPeriod() string {
	if len(f.Contexts) == 0 {
		return ""
	}
	sorted := make([]*ixbrl.Context, len(f.Contexts))
	copy(sorted, f.Contexts)
	sortContextsByDate(sorted)
	return sorted[0].Period.FormattedValue()
}

// sortContextsByDate sorts contexts in reverse chronological order. Duration
// contexts sort ahead of instants ending on the same day.
func sortContextsByDate(contexts []*ixbrl.Context) {
	sort.SliceStable(contexts, func(i, j int) bool {
		di, dj := getLatestDate(contexts[i]), getLatestDate(contexts[j])
		if di.Equal(dj) {
			return contexts[i].Period.Instant == "" && contexts[j].Period.Instant != ""
		}
		return di.After(dj)
	})
}

// getLatestDate extracts the latest date from a context's period.
func getLatestDate(c *ixbrl.Context) time.Time {
	if c == nil {
		return time.Time{}
	}
	period := c.Period
	dateStr := period.EndDate
	if dateStr == "" {
		dateStr = period.Instant
	}
	if dateStr == "" {
		dateStr = period.StartDate
	}
	date, err := time.Parse(time.DateOnly, strings.TrimSpace(dateStr))
	if err != nil {
		return time.Time{}
	}
	return date
}

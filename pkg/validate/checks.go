package validate

import (
	"fmt"
	"strconv"
	"strings"
)

func (res *Result) check(s *scan) {
	if s.instanceNS {
		res.add(SeverityInfo, "I001", "XBRL instance namespace properly declared", 1)
	} else {
		res.add(SeverityError, "E002", "Missing required XBRL instance namespace", 1)
	}

	if s.schemaRefs == 0 {
		res.add(SeverityError, "E003", "Missing required schema reference (link:schemaRef)", 1)
	} else {
		res.add(SeverityInfo, "I002", fmt.Sprintf("Found %d schema reference(s)", s.schemaRefs), 1)
	}

	if len(s.contexts) == 0 {
		res.add(SeverityError, "E004", "No contexts found - XBRL document must contain at least one context", 1)
	} else {
		res.add(SeverityInfo, "I003", fmt.Sprintf("Found %d context(s)", len(s.contexts)), 1)
	}

	if len(s.unitIDs) == 0 {
		res.add(SeverityWarning, "W001", "No units found - numeric facts typically require units", 1)
	} else {
		res.add(SeverityInfo, "I004", fmt.Sprintf("Found %d unit(s)", len(s.unitIDs)), 1)
	}

	var withoutContext []*fact
	for _, f := range s.facts {
		if !f.hasContext {
			withoutContext = append(withoutContext, f)
		}
	}
	if len(withoutContext) > 0 {
		res.add(SeverityWarning, "W002",
			fmt.Sprintf("Found %d fact(s) without contextRef attribute", len(withoutContext)),
			withoutContext[0].line)
	}

	contextIDs := make(map[string]bool, len(s.contexts))
	duplicateContext := 0
	for _, c := range s.contexts {
		if contextIDs[c.id] && duplicateContext == 0 {
			duplicateContext = c.line
		}
		contextIDs[c.id] = true
	}
	unitIDs := make(map[string]bool, len(s.unitIDs))
	duplicateUnit := 0
	for _, u := range s.unitIDs {
		if unitIDs[u.id] && duplicateUnit == 0 {
			duplicateUnit = u.line
		}
		unitIDs[u.id] = true
	}

	for _, r := range s.contextRefs {
		if !contextIDs[r.id] {
			res.add(SeverityError, "E005", fmt.Sprintf("Invalid contextRef %q - context not defined", r.id), r.line)
		}
	}
	for _, r := range s.unitRefs {
		if !unitIDs[r.id] {
			res.add(SeverityError, "E006", fmt.Sprintf("Invalid unitRef %q - unit not defined", r.id), r.line)
		}
	}

	if duplicateContext > 0 {
		res.add(SeverityError, "E007", "Duplicate context IDs found", duplicateContext)
	}
	if duplicateUnit > 0 {
		res.add(SeverityError, "E008", "Duplicate unit IDs found", duplicateUnit)
	}

	for _, c := range s.contexts {
		if !c.hasIdentifier {
			res.add(SeverityError, "E009", "Contexts missing entity identifier", c.line)
			break
		}
	}
	for _, c := range s.contexts {
		if !c.hasPeriod {
			res.add(SeverityError, "E010", "Contexts missing period information", c.line)
			break
		}
	}

	for _, f := range s.facts {
		if !f.numeric() {
			continue
		}
		text := strings.TrimSpace(f.text.String())
		value, ok := parseNumber(text)
		switch {
		case !ok:
			res.add(SeverityWarning, "W004", fmt.Sprintf("Numeric fact %s has non-numeric value %q", f.name, text), f.line)
		case value < 0 || f.sign == "-":
			res.add(SeverityWarning, "W003", fmt.Sprintf("Numeric fact %s reports negative value %q", f.name, text), f.line)
		}
	}
}

// numeric reports whether a fact carries a unit or is an ix:nonFraction.
func (f *fact) numeric() bool {
	return f.unitRef != "" || f.name == "nonFraction"
}

// parseNumber reads the first number in s, ignoring thousands separators
// and any surrounding currency or unit text.
func parseNumber(s string) (float64, bool) {
	m := numberPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

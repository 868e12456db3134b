package taxonomy

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// MergeCalculations replaces the calculation set of every node in the tree
// with the arcs whose From equals the node id. Nodes without arcs end up
// with none. Running it twice with the same arcs yields the same tree.
func MergeCalculations(children []*Node, arcs []CalculationArc) {
	byFrom := make(map[string][]CalculationArc)
	for _, arc := range arcs {
		if arc.Weight == 0 || arc.To == "" {
			continue
		}
		byFrom[arc.From] = append(byFrom[arc.From], arc)
	}
	stack := append([]*Node(nil), children...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if group, ok := byFrom[n.ID]; ok {
			n.Calculations = append([]CalculationArc(nil), group...)
		} else {
			n.Calculations = nil
		}
		stack = append(stack, n.Children...)
	}
}

// ParseCalculationArcs reads an auxiliary relationships file. Both a JSON
// array of arcs and an XBRL calculation linkbase are accepted; locator
// labels in a linkbase are resolved to concept ids through their href
// fragment.
func ParseCalculationArcs(r io.Reader) ([]CalculationArc, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read calculations: %w", err)
	}
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var raw []any
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("failed to decode calculations: %w", err)
		}
		return convertArcs(raw), nil
	}
	var lb linkbase
	if err := xml.Unmarshal(trimmed, &lb); err != nil {
		return nil, fmt.Errorf("failed to decode calculation linkbase: %w", err)
	}
	return lb.arcs(), nil
}

type linkbase struct {
	XMLName xml.Name          `xml:"linkbase"`
	Links   []calculationLink `xml:"calculationLink"`
}

type calculationLink struct {
	Locators []locator `xml:"loc"`
	Arcs     []calcArc `xml:"calculationArc"`
}

type locator struct {
	Label string `xml:"label,attr"`
	Href  string `xml:"href,attr"`
}

type calcArc struct {
	From   string `xml:"from,attr"`
	To     string `xml:"to,attr"`
	Weight string `xml:"weight,attr"`
	Order  string `xml:"order,attr"`
}

func (lb linkbase) arcs() []CalculationArc {
	var out []CalculationArc
	for _, link := range lb.Links {
		concepts := make(map[string]string, len(link.Locators))
		for _, loc := range link.Locators {
			concepts[loc.Label] = conceptFromHref(loc.Href)
		}
		for _, a := range link.Arcs {
			weight, err := strconv.ParseFloat(strings.TrimSpace(a.Weight), 64)
			if err != nil || weight == 0 {
				continue
			}
			from, to := concepts[a.From], concepts[a.To]
			if from == "" || to == "" {
				continue
			}
			out = append(out, CalculationArc{From: from, To: to, Weight: weight, Order: a.Order})
		}
	}
	return out
}

func conceptFromHref(href string) string {
	if i := strings.LastIndex(href, "#"); i >= 0 {
		return href[i+1:]
	}
	return href
}

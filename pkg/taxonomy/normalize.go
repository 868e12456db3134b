package taxonomy

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Normalize coerces a decoded JSON value of unknown shape into a canonical
// root. Rules, in priority order:
//
//   - an object with a "children" field is used as the root;
//   - an array becomes the children of a synthetic root;
//   - an object with "data.children" is unwrapped;
//   - anything else becomes the single child of a synthetic root.
//
// Normalize never fails and never returns a nil Children slice.
func Normalize(raw any) *Data {
	switch v := raw.(type) {
	case map[string]any:
		if _, ok := v["children"]; ok {
			return rootFromObject(v)
		}
		if inner, ok := v["data"].(map[string]any); ok {
			if _, ok := inner["children"]; ok {
				return rootFromObject(inner)
			}
		}
		return &Data{
			ID:       DefaultRootID,
			Label:    DefaultRootLabel,
			Children: convertNodes([]any{v}),
		}
	case []any:
		return &Data{
			ID:       DefaultRootID,
			Label:    DefaultRootLabel,
			Children: convertNodes(v),
		}
	default:
		return &Data{
			ID:       DefaultRootID,
			Label:    DefaultRootLabel,
			Children: []*Node{},
		}
	}
}

// Load decodes a JSON taxonomy document and normalizes it.
func Load(r io.Reader) (*Data, error) {
	var raw any
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode taxonomy: %w", err)
	}
	return Normalize(raw), nil
}

// LoadFile reads and normalizes the taxonomy at path.
func LoadFile(path string) (*Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open taxonomy: %w", err)
	}
	defer f.Close()
	data, err := Load(f)
	if err != nil {
		return nil, err
	}
	if data.SourceFile == "" {
		data.SourceFile = path
	}
	return data, nil
}

var rootKeys = map[string]bool{
	"id": true, "label": true, "originalLabel": true, "sectionCode": true,
	"labelCode": true, "sourceFile": true, "children": true,
}

func rootFromObject(obj map[string]any) *Data {
	d := &Data{
		ID:            stringField(obj, "id"),
		Label:         stringField(obj, "label"),
		OriginalLabel: stringField(obj, "originalLabel"),
		SectionCode:   stringField(obj, "sectionCode"),
		LabelCode:     stringField(obj, "labelCode"),
		SourceFile:    stringField(obj, "sourceFile"),
		Extra:         extraFields(obj, rootKeys),
	}
	if d.ID == "" {
		d.ID = DefaultRootID
	}
	if d.Label == "" {
		d.Label = DefaultRootLabel
	}
	children, _ := obj["children"].([]any)
	d.Children = convertNodes(children)
	return d
}

var nodeKeys = map[string]bool{
	"id": true, "label": true, "originalLabel": true, "name": true,
	"labelType": true, "type": true, "abstract": true, "order": true,
	"periodType": true, "substitutionGroup": true, "nillable": true,
	"children": true, "calculations": true,
}

type pending struct {
	raw  []any
	dest *[]*Node
}

// convertNodes converts raw child lists into nodes with an explicit work
// stack, so the depth of the input is bounded only by memory.
func convertNodes(raw []any) []*Node {
	out := []*Node{}
	stack := []pending{{raw: raw, dest: &out}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, item := range p.raw {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			n := nodeFromObject(obj)
			*p.dest = append(*p.dest, n)
			if children, ok := obj["children"].([]any); ok && len(children) > 0 {
				stack = append(stack, pending{raw: children, dest: &n.Children})
			}
		}
	}
	return out
}

func nodeFromObject(obj map[string]any) *Node {
	n := &Node{
		ID:                stringField(obj, "id"),
		Label:             stringField(obj, "label"),
		OriginalLabel:     stringField(obj, "originalLabel"),
		Name:              stringField(obj, "name"),
		LabelType:         LabelType(stringField(obj, "labelType")),
		Type:              stringField(obj, "type"),
		Abstract:          stringField(obj, "abstract"),
		Order:             stringField(obj, "order"),
		PeriodType:        stringField(obj, "periodType"),
		SubstitutionGroup: stringField(obj, "substitutionGroup"),
		Nillable:          stringField(obj, "nillable"),
		Extra:             extraFields(obj, nodeKeys),
	}
	if arcs, ok := obj["calculations"].([]any); ok {
		n.Calculations = convertArcs(arcs)
	}
	return n
}

func convertArcs(raw []any) []CalculationArc {
	var arcs []CalculationArc
	for _, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		arc := CalculationArc{
			From:   stringField(obj, "from"),
			To:     stringField(obj, "to"),
			Weight: floatField(obj, "weight"),
			Order:  stringField(obj, "order"),
		}
		if arc.Weight == 0 || arc.To == "" {
			continue
		}
		arcs = append(arcs, arc)
	}
	return arcs
}

// stringField reads a scalar field as a string. Numbers and booleans are
// formatted, objects and arrays read as empty.
func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func floatField(obj map[string]any, key string) float64 {
	switch v := obj[key].(type) {
	case float64:
		return v
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func extraFields(obj map[string]any, known map[string]bool) map[string]any {
	var extra map[string]any
	for k, v := range obj {
		if known[k] {
			continue
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[k] = v
	}
	return extra
}

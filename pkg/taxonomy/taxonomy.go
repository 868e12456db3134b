// Package taxonomy loads ESRS taxonomy trees of loosely defined shape into a
// canonical rooted tree, and indexes that tree for lookup, search, breadcrumb
// and calculation (summation) queries.
package taxonomy

import (
	"encoding/json"
	"maps"
)

// LabelType classifies presentation nodes of the ESRS taxonomy.
type LabelType string

const (
	LabelAbstract  LabelType = "abstract"
	LabelTable     LabelType = "table"
	LabelAxis      LabelType = "axis"
	LabelMember    LabelType = "member"
	LabelTextBlock LabelType = "text block"
	LabelLineItems LabelType = "line items"
	LabelTypedAxis LabelType = "typed axis"
)

const (
	// DefaultRootLabel is the label given to a synthesized root.
	DefaultRootLabel = "ESRS Taxonomy"
	// DefaultRootID is the id given to a synthesized root.
	DefaultRootID = "root"
)

// CalculationArc is a summation relationship: the value of From is the
// weighted sum of its To children. Weight is never zero.
type CalculationArc struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Weight float64 `json:"weight"`
	Order  string  `json:"order,omitempty"`
}

// Node is a single concept in the taxonomy tree. A node without children is
// a reportable (fact) concept; a node with children is a presentation
// grouping. Keys of the raw input that are not modelled here are preserved
// in Extra.
type Node struct {
	ID                string           `json:"id"`
	Label             string           `json:"label"`
	OriginalLabel     string           `json:"originalLabel,omitempty"`
	Name              string           `json:"name,omitempty"`
	LabelType         LabelType        `json:"labelType,omitempty"`
	Type              string           `json:"type,omitempty"`
	Abstract          string           `json:"abstract,omitempty"`
	Order             string           `json:"order,omitempty"`
	PeriodType        string           `json:"periodType,omitempty"`
	SubstitutionGroup string           `json:"substitutionGroup,omitempty"`
	Nillable          string           `json:"nillable,omitempty"`
	Children          []*Node          `json:"children,omitempty"`
	Calculations      []CalculationArc `json:"calculations,omitempty"`
	Extra             map[string]any   `json:"-"`
}

// IsLeaf reports whether n is a fact concept.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// IsAbstract reports whether the node is flagged abstract.
func (n *Node) IsAbstract() bool {
	return n.Abstract == "true" || n.LabelType == LabelAbstract
}

// MarshalJSON flattens Extra next to the modelled fields so that a
// normalized tree round-trips without losing unknown keys.
func (n *Node) MarshalJSON() ([]byte, error) {
	type plain Node
	b, err := json.Marshal((*plain)(n))
	if err != nil || len(n.Extra) == 0 {
		return b, err
	}
	out := make(map[string]any, len(n.Extra)+8)
	maps.Copy(out, n.Extra)
	var known map[string]any
	if err := json.Unmarshal(b, &known); err != nil {
		return nil, err
	}
	maps.Copy(out, known)
	return json.Marshal(out)
}

// Data is the canonical root of a taxonomy. It is built once at load time
// and treated as immutable afterwards.
type Data struct {
	ID            string         `json:"id"`
	Label         string         `json:"label"`
	OriginalLabel string         `json:"originalLabel,omitempty"`
	SectionCode   string         `json:"sectionCode,omitempty"`
	LabelCode     string         `json:"labelCode,omitempty"`
	SourceFile    string         `json:"sourceFile,omitempty"`
	Children      []*Node        `json:"children"`
	Extra         map[string]any `json:"-"`
}

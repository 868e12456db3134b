package report

import (
	"strings"

	"github.com/saranrapjs/esrs-ixbrl/pkg/taxonomy"
)

// DataType is the value class of a concept.
type DataType string

const (
	DataMonetary   DataType = "monetary"
	DataDecimal    DataType = "decimal"
	DataInteger    DataType = "integer"
	DataShares     DataType = "shares"
	DataPercentage DataType = "percentage"
	DataBoolean    DataType = "boolean"
	DataDate       DataType = "date"
	DataString     DataType = "string"
)

// IsNumeric reports whether facts of this data type are numeric.
func (d DataType) IsNumeric() bool {
	switch d {
	case DataMonetary, DataDecimal, DataInteger, DataShares, DataPercentage:
		return true
	}
	return false
}

const (
	PeriodInstant  = "instant"
	PeriodDuration = "duration"
)

const standardLabelRole = "http://www.xbrl.org/2003/role/label"

// Label is a labelled rendering of a concept in some role.
type Label struct {
	Role  string `json:"role"`
	Value string `json:"value"`
}

// Reference points at the authoritative paragraph for a concept.
type Reference struct {
	Name      string `json:"name"`
	Paragraph string `json:"paragraph,omitempty"`
	URI       string `json:"uri,omitempty"`
}

// Concept is the denormalized snapshot of a taxonomy concept that a tag
// carries.
type Concept struct {
	ID         string      `json:"id"`
	Label      string      `json:"label"`
	Definition string      `json:"definition"`
	Type       string      `json:"type"`
	DataType   DataType    `json:"dataType"`
	PeriodType string      `json:"periodType"`
	Balance    string      `json:"balance,omitempty"`
	Abstract   bool        `json:"abstract"`
	Labels     []Label     `json:"labels,omitempty"`
	References []Reference `json:"references,omitempty"`
}

// IsNumeric reports whether the concept reports numeric facts.
func (c Concept) IsNumeric() bool {
	return c.DataType.IsNumeric()
}

// Context is a reporting context: who reports, and for which period. Dates
// are kept as entered; the iXBRL generator normalizes them.
type Context struct {
	ID               string `json:"id"`
	Label            string `json:"label"`
	EntityName       string `json:"entityName"`
	EntityScheme     string `json:"entityScheme"`
	EntityIdentifier string `json:"entityIdentifier"`
	PeriodType       string `json:"periodType"`
	InstantDate      string `json:"instantDate,omitempty"`
	StartDate        string `json:"startDate,omitempty"`
	EndDate          string `json:"endDate,omitempty"`
	CreatedAt        string `json:"createdAt"`
}

// IsInstant reports whether the context describes a point in time.
func (c Context) IsInstant() bool {
	return c.PeriodType == PeriodInstant
}

// DataTypeOf maps an XBRL item type such as "xbrli:monetaryItemType" to the
// data type of its facts.
func DataTypeOf(itemType string) DataType {
	t := strings.ToLower(itemType)
	if i := strings.LastIndex(t, ":"); i >= 0 {
		t = t[i+1:]
	}
	t = strings.TrimSuffix(t, "itemtype")
	switch t {
	case "monetary":
		return DataMonetary
	case "decimal", "float", "double", "pure", "energy", "mass", "volume", "ghgemissions", "area":
		return DataDecimal
	case "integer", "nonnegativeinteger", "positiveinteger", "int", "long":
		return DataInteger
	case "shares":
		return DataShares
	case "percent", "percentage":
		return DataPercentage
	case "boolean":
		return DataBoolean
	case "date", "gyear", "datetime":
		return DataDate
	default:
		return DataString
	}
}

// ConceptFromNode snapshots a taxonomy node as a concept.
func ConceptFromNode(n *taxonomy.Node) Concept {
	c := Concept{
		ID:         n.ID,
		Label:      n.Label,
		Type:       n.Type,
		DataType:   DataTypeOf(n.Type),
		PeriodType: n.PeriodType,
		Abstract:   n.IsAbstract(),
	}
	if c.Label == "" {
		c.Label = n.ID
	}
	if c.PeriodType == "" {
		c.PeriodType = PeriodDuration
	}
	if s, ok := n.Extra["definition"].(string); ok {
		c.Definition = s
	}
	if s, ok := n.Extra["balance"].(string); ok {
		c.Balance = s
	}
	if n.Label != "" {
		c.Labels = append(c.Labels, Label{Role: standardLabelRole, Value: n.Label})
	}
	if n.OriginalLabel != "" && n.OriginalLabel != n.Label {
		c.Labels = append(c.Labels, Label{Role: "original", Value: n.OriginalLabel})
	}
	if refs, ok := n.Extra["references"].([]any); ok {
		for _, r := range refs {
			obj, ok := r.(map[string]any)
			if !ok {
				continue
			}
			ref := Reference{}
			ref.Name, _ = obj["name"].(string)
			ref.Paragraph, _ = obj["paragraph"].(string)
			ref.URI, _ = obj["uri"].(string)
			c.References = append(c.References, ref)
		}
	}
	return c
}

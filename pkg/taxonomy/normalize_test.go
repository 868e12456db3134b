package taxonomy

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestNormalizeShapes(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantID    string
		wantLabel string
		wantKids  []string
	}{
		{
			name:      "object with children",
			input:     `{"id":"esrs","label":"ESRS","sectionCode":"E1","children":[{"id":"a","label":"A"}]}`,
			wantID:    "esrs",
			wantLabel: "ESRS",
			wantKids:  []string{"a"},
		},
		{
			name:      "bare array",
			input:     `[{"id":"a","label":"A"},{"id":"b","label":"B"}]`,
			wantID:    DefaultRootID,
			wantLabel: DefaultRootLabel,
			wantKids:  []string{"a", "b"},
		},
		{
			name:      "wrapped data",
			input:     `{"data":{"label":"Wrapped","children":[{"id":"x"}]}}`,
			wantID:    DefaultRootID,
			wantLabel: "Wrapped",
			wantKids:  []string{"x"},
		},
		{
			name:      "single object",
			input:     `{"id":"lonely","label":"Lonely"}`,
			wantID:    DefaultRootID,
			wantLabel: DefaultRootLabel,
			wantKids:  []string{"lonely"},
		},
		{
			name:      "children wins over data",
			input:     `{"children":[{"id":"top"}],"data":{"children":[{"id":"inner"}]}}`,
			wantID:    DefaultRootID,
			wantLabel: DefaultRootLabel,
			wantKids:  []string{"top"},
		},
		{
			name:      "scalar",
			input:     `42`,
			wantID:    DefaultRootID,
			wantLabel: DefaultRootLabel,
		},
		{
			name:      "null",
			input:     `null`,
			wantID:    DefaultRootID,
			wantLabel: DefaultRootLabel,
		},
		{
			name:      "children not an array",
			input:     `{"label":"Odd","children":"nope"}`,
			wantID:    DefaultRootID,
			wantLabel: "Odd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := Normalize(decode(t, tt.input))
			require.NotNil(t, data)
			require.NotNil(t, data.Children)
			assert.Equal(t, tt.wantID, data.ID)
			assert.Equal(t, tt.wantLabel, data.Label)
			var ids []string
			for _, c := range data.Children {
				ids = append(ids, c.ID)
			}
			assert.Equal(t, tt.wantKids, ids)
		})
	}
}

func TestNormalizeFields(t *testing.T) {
	data := Normalize(decode(t, `{"children":[{
		"id":"esrs_E1",
		"label":"Climate change",
		"labelType":"abstract",
		"abstract":true,
		"order":2,
		"periodType":"duration",
		"custom":"kept",
		"children":[
			{"id":"esrs_A","label":"A","order":"1.5","calculations":[
				{"from":"esrs_A","to":"esrs_B","weight":1,"order":"1"},
				{"from":"esrs_A","to":"esrs_C","weight":0,"order":"2"},
				{"from":"esrs_A","to":"esrs_D","weight":"-1","order":"3"}
			]},
			"not a node",
			{"id":"esrs_B","label":"B"}
		]
	}]}`))

	require.Len(t, data.Children, 1)
	e1 := data.Children[0]
	assert.Equal(t, LabelAbstract, e1.LabelType)
	assert.Equal(t, "true", e1.Abstract)
	assert.True(t, e1.IsAbstract())
	assert.Equal(t, "2", e1.Order)
	assert.Equal(t, "kept", e1.Extra["custom"])
	require.Len(t, e1.Children, 2)

	a := e1.Children[0]
	assert.Equal(t, "1.5", a.Order)
	assert.True(t, a.IsLeaf())
	require.Len(t, a.Calculations, 2, "zero-weight arcs are dropped")
	assert.Equal(t, "esrs_B", a.Calculations[0].To)
	assert.Equal(t, -1.0, a.Calculations[1].Weight)
}

func TestNormalizeDeepInput(t *testing.T) {
	const depth = 200000
	var raw any = []any{}
	for i := 0; i < depth; i++ {
		raw = []any{map[string]any{"id": "n", "children": raw}}
	}
	data := Normalize(raw)
	idx := NewIndex(data)
	assert.Equal(t, depth, idx.Len())
	path, ok := idx.PathLabels("n")
	require.True(t, ok)
	assert.Equal(t, []string{"n"}, path)
}

func TestLoad(t *testing.T) {
	data, err := Load(strings.NewReader(`[{"id":"a"}]`))
	require.NoError(t, err)
	assert.Len(t, data.Children, 1)

	_, err = Load(strings.NewReader(`{not json`))
	assert.Error(t, err)
}

func TestNodeMarshalKeepsExtra(t *testing.T) {
	n := &Node{ID: "a", Label: "A", Extra: map[string]any{"references": "ESRS E1 44"}}
	b, err := json.Marshal(n)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"a","label":"A","references":"ESRS E1 44"}`, string(b))
}

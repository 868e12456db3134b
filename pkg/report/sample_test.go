package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSampleReportSpans(t *testing.T) {
	doc := SampleReport()
	var got []string
	for _, b := range doc.Blocks {
		for _, tag := range b.Tags {
			got = append(got, tag.Text(b.Content))
		}
	}
	assert.Equal(t, []string{
		"The administrative and supervisory bodies ensure ESG integration into core governance.",
		"25,400 metric tons CO2e",
		"18,200 metric tons CO2e",
		"145,800 metric tons CO2e",
		"65.25%",
		"8,450",
		"72.3%",
		"€248,000,000",
	}, got)
}

func TestSampleReportIndices(t *testing.T) {
	doc := SampleReport()
	emissions := doc.Blocks[3]
	spans := make([]Span, len(emissions.Tags))
	for i, tag := range emissions.Tags {
		spans[i] = tag.Span()
	}
	assert.Equal(t, []Span{{39, 62}, {87, 110}, {142, 166}, {218, 224}}, spans)

	revenue := doc.Blocks[7]
	assert.Equal(t, Span{Start: 85, End: 97}, revenue.Tags[0].Span(), "offsets count runes, not bytes")
}

func TestSpanOfMissingNeedle(t *testing.T) {
	assert.Equal(t, Span{}, spanOf("abc", "z"))
}

package facts

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saranrapjs/esrs-ixbrl/pkg/ixbrl"
	"github.com/saranrapjs/esrs-ixbrl/pkg/report"
)

func TestFromIXBRLRoundTrip(t *testing.T) {
	out, err := ixbrl.Generate(report.SampleReport())
	require.NoError(t, err)

	facts, err := FromIXBRL(bytes.NewReader(out))
	require.NoError(t, err)

	assert.Equal(t, "Acme Corporation Sustainability Report 2024", facts.Title)
	require.Len(t, facts.Facts, 8)
	require.Len(t, facts.Contexts, 2)
	assert.Len(t, facts.Units, len(ixbrl.StandardUnits))

	governance := facts.Facts[0]
	assert.False(t, governance.Numeric)
	assert.Equal(t, "esrs_g1:DisclosureOfRoleOfAdministrativeManagementAndSupervisoryBodiesRelatedToBusinessConductExplanatory", governance.Concept)
	assert.Equal(t, "The administrative and supervisory bodies ensure ESG integration into core governance.", governance.Value)
	require.NotNil(t, governance.Context)
	assert.Nil(t, governance.Unit)

	scope1 := facts.Facts[1]
	assert.True(t, scope1.Numeric)
	assert.Equal(t, "esrs_e1:GrossScope1GreenhouseGasEmissions", scope1.Concept)
	assert.Equal(t, "current", scope1.ContextRef)
	assert.Equal(t, "tCO2e", scope1.UnitRef)
	assert.Equal(t, "2", scope1.Decimals)
	assert.Equal(t, "25,400 metric tons CO2e", scope1.Value)
	assert.Equal(t, 25400.0, scope1.Number)
	require.NotNil(t, scope1.Unit)
	require.NotNil(t, scope1.Context)
	assert.Equal(t, "2024-01-01 to 2024-12-31", scope1.Context.Period.FormattedValue())

	employees := facts.Facts[5]
	assert.Equal(t, "instant-current", employees.ContextRef)
	assert.Equal(t, 8450.0, employees.Number)

	assert.Equal(t, "12345654321", facts.Entity())
	assert.Equal(t, "2024-01-01 to 2024-12-31", facts.ReportingPeriod())
}

func TestFromIXBRLResolvesScaleAndSign(t *testing.T) {
	doc := `<html><head><title>Scaled</title></head><body>
	<xbrli:context id="c"><xbrli:period><xbrli:instant>2023-12-31</xbrli:instant></xbrli:period></xbrli:context>
	<xbrli:unit id="U-EUR"><xbrli:measure>iso4217:EUR</xbrli:measure></xbrli:unit>
	<p>Loss of <ix:nonFraction name="esrs:Loss" contextRef="c" unitRef="U-EUR" scale="3" sign="-">1,500</ix:nonFraction> thousand.</p>
	<p><ix:nonFraction name="esrs:Dangling" contextRef="nope" unitRef="nope">7</ix:nonFraction></p>
	</body></html>`
	facts, err := FromIXBRL(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, facts.Facts, 2)

	loss := facts.Facts[0]
	assert.Equal(t, -1500000.0, loss.Number)
	require.NotNil(t, loss.Unit)
	assert.Equal(t, "iso4217:EUR", loss.Unit.Measure.Content)

	assert.Nil(t, facts.Facts[1].Context)
	assert.Nil(t, facts.Facts[1].Unit)
	assert.Equal(t, "2023-12-31", facts.ReportingPeriod())
}

func TestFromIXBRLEmpty(t *testing.T) {
	facts, err := FromIXBRL(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, facts.Facts)
	assert.Empty(t, facts.Entity())
	assert.Empty(t, facts.ReportingPeriod())
}

func TestCleanFactValue(t *testing.T) {
	tests := map[string]string{
		"  plain ":       "plain",
		`"quoted"`:       "quoted",
		"“curly”":        "curly",
		" ' spaced ' ":   "spaced",
		"keeps 'inner'.": "keeps 'inner'.",
	}
	for in, want := range tests {
		assert.Equal(t, want, cleanFactValue(in), in)
	}
}

func TestSortContextsByDate(t *testing.T) {
	older := &ixbrl.Context{ID: "older", Period: ixbrl.Period{StartDate: "2023-01-01", EndDate: "2023-12-31"}}
	instant := &ixbrl.Context{ID: "instant", Period: ixbrl.Period{Instant: "2024-12-31"}}
	current := &ixbrl.Context{ID: "current", Period: ixbrl.Period{StartDate: "2024-01-01", EndDate: "2024-12-31"}}
	broken := &ixbrl.Context{ID: "broken", Period: ixbrl.Period{Instant: "soon"}}

	contexts := []*ixbrl.Context{broken, older, instant, current}
	sortContextsByDate(contexts)

	var ids []string
	for _, c := range contexts {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"current", "instant", "older", "broken"}, ids)
}

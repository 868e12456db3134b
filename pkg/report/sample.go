package report

import (
	"strings"
	"unicode/utf8"
)

const esrsTaxonomyURI = "https://xbrl.efrag.org/taxonomy/esrs/2023-12-22"

func sampleConcept(id, label, definition, typ string, dataType DataType, periodType, refName, paragraph, module string) Concept {
	return Concept{
		ID:         id,
		Label:      label,
		Definition: definition,
		Type:       typ,
		DataType:   dataType,
		PeriodType: periodType,
		Labels: []Label{
			{Role: "standard", Value: label},
			{Role: "documentation", Value: definition},
		},
		References: []Reference{
			{Name: refName, Paragraph: paragraph, URI: esrsTaxonomyURI + "/" + module + "/"},
		},
	}
}

// SampleConcepts returns a small set of ESRS 2023-12-22 concepts used for
// demos and tests.
func SampleConcepts() []Concept {
	return []Concept{
		sampleConcept("esrs_e1_ClimateChangeTransitionPlan", "Climate Change Transition Plan",
			"The entity's plan to ensure that its business model and strategy are compatible with the transition to a climate-neutral economy and with limiting global warming to 1.5°C in line with the Paris Agreement.",
			"ESRS E1", DataString, PeriodDuration, "ESRS E1", "Disclosure Requirement E1-1", "esrs_e1"),
		sampleConcept("esrs_e1_GrossScope1GreenhouseGasEmissions", "Gross Scope 1 Greenhouse Gas Emissions",
			"Direct greenhouse gas emissions from sources that are owned or controlled by the entity, expressed in metric tons of CO2 equivalent.",
			"ESRS E1", DataDecimal, PeriodDuration, "ESRS E1", "Disclosure Requirement E1-6", "esrs_e1"),
		sampleConcept("esrs_e1_GrossScope2GreenhouseGasEmissions", "Gross Scope 2 Greenhouse Gas Emissions",
			"Indirect greenhouse gas emissions from the generation of purchased electricity, steam, heating and cooling consumed by the entity, expressed in metric tons of CO2 equivalent.",
			"ESRS E1", DataDecimal, PeriodDuration, "ESRS E1", "Disclosure Requirement E1-6", "esrs_e1"),
		sampleConcept("esrs_e1_GrossScope3GreenhouseGasEmissions", "Gross Scope 3 Greenhouse Gas Emissions",
			"Other indirect greenhouse gas emissions that occur in the value chain of the entity, including both upstream and downstream emissions, expressed in metric tons of CO2 equivalent.",
			"ESRS E1", DataDecimal, PeriodDuration, "ESRS E1", "Disclosure Requirement E1-6", "esrs_e1"),
		sampleConcept("esrs_e1_ScienceBasedTargetsValidatedByInitiative", "Science-Based Targets Validated by Initiative",
			"Whether the entity has science-based targets validated by the Science Based Targets initiative.",
			"ESRS E1", DataBoolean, PeriodDuration, "ESRS E1", "Disclosure Requirement E1-3", "esrs_e1"),
		sampleConcept("esrs_e1_PercentageOfApproximateGrossScope3GreenhouseGasEmissionsCoveredByInternalCarbonPricingScheme",
			"Percentage of Scope 3 GHG Emissions Covered by Internal Carbon Pricing",
			"The percentage of approximate gross Scope 3 greenhouse gas emissions covered by internal carbon pricing scheme.",
			"ESRS E1", DataDecimal, PeriodDuration, "ESRS E1", "Disclosure Requirement E1-7", "esrs_e1"),
		sampleConcept("esrs_s1_TotalNumberOfEmployees", "Total Number of Employees",
			"The total number of employees at the end of the reporting period.",
			"ESRS S1", DataInteger, PeriodInstant, "ESRS S1", "Disclosure Requirement S1-6", "esrs_s1"),
		sampleConcept("esrs_s1_PercentageOfEmployeesCoveredByCollectiveBargainingAgreements",
			"Percentage of Employees Covered by Collective Bargaining",
			"The percentage of total employees covered by collective bargaining agreements.",
			"ESRS S1", DataDecimal, PeriodInstant, "ESRS S1", "Disclosure Requirement S1-8", "esrs_s1"),
		sampleConcept("esrs_g1_DisclosureOfRoleOfAdministrativeManagementAndSupervisoryBodiesRelatedToBusinessConductExplanatory",
			"Role of Administrative Bodies in Business Conduct",
			"The role of the administrative, management and supervisory bodies with regard to business conduct matters.",
			"ESRS G1", DataString, PeriodDuration, "ESRS G1", "Disclosure Requirement G1-1", "esrs_g1"),
		sampleConcept("esrs:NetRevenueOtherThanUsedToCalculateGHGIntensity", "Net Revenue (Other than for GHG Intensity)",
			"Net revenue other than the net revenue used to calculate GHG emission intensities.",
			"ESRS", DataMonetary, PeriodDuration, "ESRS 1", "Appendix C", "esrs"),
	}
}

// SampleContexts returns the current-year duration, current-year instant
// and previous-year duration contexts of a demo entity.
func SampleContexts() []Context {
	ts := now()
	base := Context{
		EntityName:       "Acme Corporation",
		EntityScheme:     "http://www.moorpro.com",
		EntityIdentifier: "12345654321",
		CreatedAt:        ts,
	}
	current := base
	current.ID, current.Label = "current", "Current Period - 2024"
	current.PeriodType, current.StartDate, current.EndDate = PeriodDuration, "2024-01-01", "2024-12-31"

	instant := base
	instant.ID, instant.Label = "instant-current", "As of December 31, 2024"
	instant.PeriodType, instant.InstantDate = PeriodInstant, "2024-12-31"

	previous := base
	previous.ID, previous.Label = "previous", "Previous Period - 2023"
	previous.PeriodType, previous.StartDate, previous.EndDate = PeriodDuration, "2023-01-01", "2023-12-31"

	return []Context{current, instant, previous}
}

// SampleReport returns a tagged demo report covering governance, climate,
// workforce and financial disclosures.
func SampleReport() *Document {
	concepts := SampleConcepts()
	contexts := SampleContexts()
	doc := New("Acme Corporation Sustainability Report 2024")

	type mark struct {
		text    string
		concept int
		context int
	}
	add := func(typ BlockType, content string, marks ...mark) {
		b := doc.AppendBlock(typ, content)
		for _, m := range marks {
			span := spanOf(content, m.text)
			tag, _ := NewTag(&concepts[m.concept], &contexts[m.context], &span)
			b.Tags = append(b.Tags, tag)
		}
	}

	add(BlockHeading, "Governance and Risk Management")
	add(BlockParagraph,
		"The administrative and supervisory bodies ensure ESG integration into core governance. Risk assessment results and controls are embedded in strategic and operational decision-making.",
		mark{"The administrative and supervisory bodies ensure ESG integration into core governance.", 8, 0})
	add(BlockHeading, "Climate Change and Emissions")
	add(BlockParagraph,
		"In 2024, our Scope 1 emissions totaled 25,400 metric tons CO2e, Scope 2 emissions were 18,200 metric tons CO2e, and Scope 3 emissions reached 145,800 metric tons CO2e. We have validated science-based targets and cover 65.25% of our Scope 3 emissions with internal carbon pricing.",
		mark{"25,400 metric tons CO2e", 1, 0},
		mark{"18,200 metric tons CO2e", 2, 0},
		mark{"145,800 metric tons CO2e", 3, 0},
		mark{"65.25%", 5, 0})
	add(BlockHeading, "Workforce Information")
	add(BlockParagraph,
		"As of December 31, 2024, we employed 8,450 people. Approximately 72.3% of our workforce is covered by collective bargaining agreements.",
		mark{"8,450", 6, 1},
		mark{"72.3%", 7, 1})
	add(BlockHeading, "Financial Performance")
	add(BlockParagraph,
		"Our net revenue for 2024, excluding amounts used for GHG intensity calculations, was €248,000,000.",
		mark{"€248,000,000", 9, 0})
	return doc
}

// spanOf returns the rune span of the first occurrence of needle in content.
func spanOf(content, needle string) Span {
	i := strings.Index(content, needle)
	if i < 0 {
		return Span{}
	}
	start := utf8.RuneCountInString(content[:i])
	return Span{Start: start, End: start + utf8.RuneCountInString(needle)}
}

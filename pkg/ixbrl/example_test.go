package ixbrl_test

import (
	"fmt"
	"strings"
	"time"

	"github.com/saranrapjs/esrs-ixbrl/pkg/ixbrl"
	"github.com/saranrapjs/esrs-ixbrl/pkg/report"
)

func Example() {
	r := strings.NewReader(`<html><body>
		<div style="display:none;"><ix:hidden>
			<xbrli:context id="current">
				<xbrli:period>
					<xbrli:startDate>2024-01-01</xbrli:startDate>
					<xbrli:endDate>2024-12-31</xbrli:endDate>
				</xbrli:period>
			</xbrli:context>
		</ix:hidden></div>
		<p>Net revenue of €<ix:nonFraction unitRef="U-EUR" contextRef="current" decimals="-3" name="esrs:Revenue" scale="3">248,000</ix:nonFraction></p>
	</body></html>`)
	parsed, _, err := ixbrl.Parse(r)
	if err != nil {
		panic(err)
	}
	revenue := ixbrl.FilterByType(parsed, func(f *ixbrl.NonFraction) bool {
		return f.Name == "esrs:Revenue"
	})[0]
	fmt.Printf("€%.0f for %s", revenue.ScaledNumber(), revenue.Context.Period.FormattedValue())
	// Output: €248000000 for 2024-01-01 to 2024-12-31
}

func ExampleConceptName() {
	for _, id := range []string{"esrs:Revenue", "esrs_e1_GrossScope1", "esrs_Revenue", "ifrs_full_Revenue", "Revenue"} {
		fmt.Println(ixbrl.ConceptName(id))
	}
	// Output:
	// esrs:Revenue
	// esrs_e1:GrossScope1
	// esrs:Revenue
	// ifrs:fullRevenue
	// esrs:Revenue
}

func ExampleGenerator_Generate() {
	doc := report.New("Example")
	block := doc.AppendBlock(report.BlockParagraph, "Headcount: 120")
	concept := report.Concept{ID: "esrs:NumberOfEmployees", DataType: report.DataInteger}
	ctx := report.Context{ID: "fy2024", PeriodType: report.PeriodInstant, InstantDate: "2024-12-31"}
	tag, _ := report.NewTag(&concept, &ctx, &report.Span{Start: 11, End: 14})
	_ = doc.AddTag(block.ID, tag)

	g := ixbrl.NewGenerator(
		ixbrl.WithClock(func() time.Time { return time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC) }),
		ixbrl.WithMinimalUnits(),
	)
	out, err := g.Generate(doc)
	if err != nil {
		panic(err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.Contains(line, `<div class="content-block"`) || strings.Contains(line, "Generated on") {
			fmt.Println(strings.TrimSpace(line))
		}
	}
	// Output:
	// <p><em>Generated on: 2025-01-02</em></p>
	// <div class="content-block">Headcount: <ix:nonFraction name="esrs:NumberOfEmployees" contextRef="fy2024" unitRef="pure" decimals="0">120</ix:nonFraction></div>
}

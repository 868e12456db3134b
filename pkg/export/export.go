// Package export writes facts extracted from an inline XBRL document as a
// JSON preview or an .xlsx workbook.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/saranrapjs/esrs-ixbrl/pkg/facts"
	"github.com/saranrapjs/esrs-ixbrl/pkg/ixbrl"
)

const (
	DocumentType = "ESRS-XBRL"
	Taxonomy     = "ESRS 2023-12-22"
)

// Info describes the exported document.
type Info struct {
	DocumentType    string `json:"documentType"`
	Taxonomy        string `json:"taxonomy"`
	ReportingEntity string `json:"reportingEntity"`
	ReportingPeriod string `json:"reportingPeriod"`
}

// InfoFor fills Info from the facts. entity overrides the context
// identifier when set.
func InfoFor(f *facts.Facts, entity string) Info {
	if entity == "" {
		entity = f.Entity()
	}
	return Info{
		DocumentType:    DocumentType,
		Taxonomy:        Taxonomy,
		ReportingEntity: entity,
		ReportingPeriod: f.ReportingPeriod(),
	}
}

type identifier struct {
	Scheme string `json:"scheme"`
	Value  string `json:"value"`
}

type entity struct {
	Identifier identifier `json:"identifier"`
}

type period struct {
	Instant   string `json:"instant,omitempty"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}

type context struct {
	ID     string `json:"id"`
	Entity entity `json:"entity"`
	Period period `json:"period"`
}

type unit struct {
	ID      string `json:"id"`
	Measure string `json:"measure"`
}

type fact struct {
	Concept    string `json:"concept"`
	ContextRef string `json:"contextRef"`
	Value      any    `json:"value"`
	Unit       string `json:"unit,omitempty"`
	Decimals   *int   `json:"decimals,omitempty"`
}

type document struct {
	DocumentInfo Info      `json:"documentInfo"`
	Contexts     []context `json:"contexts"`
	Units        []unit    `json:"units"`
	Facts        []fact    `json:"facts"`
}

// JSON writes the preview document: documentInfo, contexts, units and facts.
// Numeric facts carry their scaled number; text facts their text.
func JSON(w io.Writer, f *facts.Facts, info Info) error {
	doc := document{
		DocumentInfo: info,
		Contexts:     []context{},
		Units:        []unit{},
		Facts:        []fact{},
	}
	for _, c := range f.Contexts {
		doc.Contexts = append(doc.Contexts, context{
			ID: c.ID,
			Entity: entity{Identifier: identifier{
				Scheme: strings.TrimSpace(c.Entity.Identifier.Scheme),
				Value:  strings.TrimSpace(c.Entity.Identifier.Content),
			}},
			Period: period{
				Instant:   strings.TrimSpace(c.Period.Instant),
				StartDate: strings.TrimSpace(c.Period.StartDate),
				EndDate:   strings.TrimSpace(c.Period.EndDate),
			},
		})
	}
	for _, u := range f.Units {
		doc.Units = append(doc.Units, unit{ID: u.ID, Measure: measure(u)})
	}
	for _, ft := range f.Facts {
		out := fact{Concept: ft.Concept, ContextRef: ft.ContextRef, Value: ft.Value}
		if ft.Numeric {
			out.Value = ft.Number
			out.Unit = unitName(ft)
			if d, err := strconv.Atoi(ft.Decimals); err == nil {
				out.Decimals = &d
			}
		}
		doc.Facts = append(doc.Facts, out)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode facts: %w", err)
	}
	return nil
}

func measure(u *ixbrl.Unit) string {
	return strings.TrimSpace(u.Measure.Content)
}

// unitName is the currency code for iso4217 measures, e.g. EUR, and the
// unitRef otherwise.
func unitName(ft facts.Fact) string {
	if ft.Unit != nil {
		if code, ok := strings.CutPrefix(measure(ft.Unit), "iso4217:"); ok && code != "" {
			return code
		}
	}
	return ft.UnitRef
}

var printer = message.NewPrinter(language.English)

const (
	factsSheet    = "Facts"
	contextsSheet = "Contexts"
)

var (
	factsHeader    = []any{"Concept", "Context", "Period", "Unit", "Decimals", "Value", "Formatted"}
	contextsHeader = []any{"ID", "Scheme", "Identifier", "Period"}
)

// Workbook writes an .xlsx file with a Facts sheet, one row per fact, and
// a Contexts sheet.
func Workbook(w io.Writer, f *facts.Facts) error {
	x := excelize.NewFile()
	defer x.Close()

	if err := x.SetSheetName("Sheet1", factsSheet); err != nil {
		return fmt.Errorf("failed to create workbook: %w", err)
	}
	if _, err := x.NewSheet(contextsSheet); err != nil {
		return fmt.Errorf("failed to create workbook: %w", err)
	}

	rows := [][]any{factsHeader}
	for _, ft := range f.Facts {
		rows = append(rows, factRow(ft))
	}
	if err := setRows(x, factsSheet, rows); err != nil {
		return err
	}

	rows = [][]any{contextsHeader}
	for _, c := range f.Contexts {
		rows = append(rows, []any{
			c.ID,
			strings.TrimSpace(c.Entity.Identifier.Scheme),
			strings.TrimSpace(c.Entity.Identifier.Content),
			c.Period.FormattedValue(),
		})
	}
	if err := setRows(x, contextsSheet, rows); err != nil {
		return err
	}

	if err := x.SetColWidth(factsSheet, "A", "A", 60); err != nil {
		return fmt.Errorf("failed to format workbook: %w", err)
	}
	x.SetActiveSheet(0)
	if _, err := x.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func factRow(ft facts.Fact) []any {
	var periodText string
	if ft.Context != nil {
		periodText = ft.Context.Period.FormattedValue()
	}
	if !ft.Numeric {
		return []any{ft.Concept, ft.ContextRef, periodText, "", "", ft.Value, ft.Value}
	}
	decimals, err := strconv.Atoi(ft.Decimals)
	if err != nil || decimals < 0 {
		decimals = 0
	}
	return []any{
		ft.Concept, ft.ContextRef, periodText, unitName(ft), ft.Decimals,
		ft.Number, printer.Sprintf("%.*f", decimals, ft.Number),
	}
}

func setRows(x *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("failed to address row %d: %w", i+1, err)
		}
		if err := x.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

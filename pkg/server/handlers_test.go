package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/saranrapjs/esrs-ixbrl/pkg/config"
	"github.com/saranrapjs/esrs-ixbrl/pkg/db"
	"github.com/saranrapjs/esrs-ixbrl/pkg/ixbrl"
	"github.com/saranrapjs/esrs-ixbrl/pkg/report"
	"github.com/saranrapjs/esrs-ixbrl/pkg/taxonomy"
	"github.com/saranrapjs/esrs-ixbrl/pkg/validate"
)

const testTaxonomy = `{
	"id": "esrs",
	"label": "ESRS Set 1",
	"children": [
		{"id": "esrs_E1", "label": "ESRS E1 Climate change", "children": [
			{"id": "esrs_GrossScopes123GHGEmissions", "label": "Gross Scopes 1, 2 and 3 GHG emissions",
			 "type": "xbrli:decimalItemType",
			 "calculations": [
				{"from": "esrs_GrossScopes123GHGEmissions", "to": "esrs_GrossScope2GHGEmissions", "weight": 1, "order": "2"},
				{"from": "esrs_GrossScopes123GHGEmissions", "to": "esrs_GrossScope1GHGEmissions", "weight": 1, "order": "1"}
			 ]},
			{"id": "esrs_GrossScope1GHGEmissions", "label": "Gross Scope 1 GHG emissions", "type": "xbrli:decimalItemType"},
			{"id": "esrs_GrossScope2GHGEmissions", "label": "Gross Scope 2 GHG emissions", "type": "xbrli:decimalItemType"}
		]},
		{"id": "esrs_S1", "label": "ESRS S1 Own workforce", "children": [
			{"id": "esrs_NumberOfEmployees", "label": "Number of employees", "type": "xbrli:integerItemType", "periodType": "instant"}
		]}
	]
}`

type testEnv struct {
	srv     *Server
	handler http.Handler
	db      *db.DB
	sample  *report.Document
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	data, err := taxonomy.Load(strings.NewReader(testTaxonomy))
	require.NoError(t, err)
	store := taxonomy.NewStore(taxonomy.NewIndex(data))

	database, err := db.New(filepath.Join(t.TempDir(), "esrs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	for _, c := range report.SampleContexts() {
		require.NoError(t, database.StoreContext(c))
	}
	sample := report.SampleReport()
	require.NoError(t, database.StoreReport(sample))

	gen := ixbrl.NewGenerator(ixbrl.WithClock(func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }))
	srv, err := NewServer(store, database, gen, &config.ServerConfig{Port: 8080}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { srv.Stop(context.Background()) })
	return &testEnv{srv: srv, handler: srv.Routes(), db: database, sample: sample}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out), w.Body.String())
	return out
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	out := decode[map[string]any](t, w)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, 6.0, out["concepts"])
}

func TestHandleTaxonomySearch(t *testing.T) {
	env := newTestEnv(t)

	type results struct {
		Query   string        `json:"query"`
		Results []nodeSummary `json:"results"`
	}
	resultIDs := func(r results) []string {
		var out []string
		for _, n := range r.Results {
			out = append(out, n.ID)
		}
		return out
	}

	tests := []struct {
		name   string
		target string
		want   []string
	}{
		{"substring", "/api/taxonomy/search?q=scope", []string{"esrs_GrossScopes123GHGEmissions", "esrs_GrossScope1GHGEmissions"}},
		{"limit", "/api/taxonomy/search?q=gross&limit=1", []string{"esrs_GrossScopes123GHGEmissions"}},
		{"ranked id", "/api/taxonomy/search?q=esrs_NumberOfEmployees&ranked=true", []string{"esrs_NumberOfEmployees"}},
		{"no match", "/api/taxonomy/search?q=biodiversity", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, tt.target, nil)
			require.Equal(t, http.StatusOK, w.Code)
			got := decode[results](t, w)
			if tt.want == nil {
				assert.Empty(t, got.Results)
				return
			}
			ids := resultIDs(got)
			require.NotEmpty(t, ids)
			assert.Equal(t, tt.want, ids[:min(len(ids), len(tt.want))])
		})
	}

	w := env.do(t, http.MethodGet, "/api/taxonomy/search?q=x&limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleTaxonomyNode(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/taxonomy/nodes/esrs_GrossScopes123GHGEmissions", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		Node         nodeSummary    `json:"node"`
		Path         []string       `json:"path"`
		Calculations []nodeSummary  `json:"calculations"`
		Concept      report.Concept `json:"concept"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	assert.Equal(t, "Gross Scopes 1, 2 and 3 GHG emissions", out.Node.Label)
	assert.Equal(t, []string{"ESRS E1 Climate change", "Gross Scopes 1, 2 and 3 GHG emissions"}, out.Path)
	require.Len(t, out.Calculations, 2)
	assert.Equal(t, "esrs_GrossScope1GHGEmissions", out.Calculations[0].ID)
	assert.Equal(t, report.DataDecimal, out.Concept.DataType)

	w = env.do(t, http.MethodGet, "/api/taxonomy/nodes/esrs_Nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleContexts(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/contexts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	listed := decode[[]report.Context](t, w)
	require.Len(t, listed, 3)
	assert.Equal(t, "current", listed[0].ID)

	w = env.do(t, http.MethodPost, "/api/contexts", report.Context{EntityName: "Acme"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/contexts", report.Context{
		EntityName:       "Acme",
		EntityIdentifier: "529900T8BM49AURSDO55",
		PeriodType:       report.PeriodInstant,
		InstantDate:      "2023-12-31",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[report.Context](t, w)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Acme - As of 2023-12-31", created.Label)

	stored, err := env.db.GetContext(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, stored)

	w = env.do(t, http.MethodDelete, "/api/contexts/current", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	conflict := decode[map[string]any](t, w)
	assert.Equal(t, []any{env.sample.ID}, conflict["reports"])

	w = env.do(t, http.MethodDelete, "/api/contexts/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	_, err = env.db.GetContext(created.ID)
	assert.ErrorIs(t, err, db.ErrNotFound)

	w = env.do(t, http.MethodDelete, "/api/contexts/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateContextNotRegisteredWhenStoreFails(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.Close())

	w := env.do(t, http.MethodPost, "/api/contexts", report.Context{
		EntityName:       "Acme",
		EntityIdentifier: "529900T8BM49AURSDO55",
		InstantDate:      "2023-12-31",
		PeriodType:       report.PeriodInstant,
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = env.do(t, http.MethodGet, "/api/contexts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]report.Context](t, w), 3)
}

func TestUpdateReportRejectsInvalidDocuments(t *testing.T) {
	env := newTestEnv(t)
	target := "/api/reports/" + env.sample.ID

	tests := []struct {
		name string
		body string
	}{
		{"null tag", `{"title":"x","blocks":[{"id":"b1","content":"abc","tags":[null]}]}`},
		{"null block", `{"title":"x","blocks":[null]}`},
		{"span past content", `{"title":"x","blocks":[{"id":"b1","content":"abc","tags":[{"id":"t1","context":{"id":"current"},"startIndex":1,"endIndex":9}]}]}`},
		{"negative span", `{"title":"x","blocks":[{"id":"b1","content":"abc","tags":[{"id":"t1","context":{"id":"current"},"startIndex":-1,"endIndex":2}]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPut, target, json.RawMessage(tt.body))
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}

	stored, err := env.db.GetReport(env.sample.ID)
	require.NoError(t, err)
	assert.Equal(t, env.sample.Title, stored.Title)

	w := env.do(t, http.MethodDelete, "/api/contexts/previous", nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestHandleReportLifecycle(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/reports", createReportRequest{Title: " "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/reports", createReportRequest{
		Title: "Draft 2025",
		Text:  "Our Scope 1 emissions were 1,200 tCO2e.\n\nWe employ 40 people.",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	doc := decode[report.Document](t, w)
	require.Len(t, doc.Blocks, 2)

	w = env.do(t, http.MethodGet, "/api/reports", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]db.ReportSummary](t, w), 2)

	w = env.do(t, http.MethodGet, "/api/reports?q=draft", nil)
	require.Equal(t, http.StatusOK, w.Code)
	found := decode[[]db.ReportSummary](t, w)
	require.Len(t, found, 1)
	assert.Equal(t, doc.ID, found[0].ID)

	doc.Title = "Final 2025"
	doc.Blocks[1].Content = "We employ 41 people."
	w = env.do(t, http.MethodPut, "/api/reports/"+doc.ID, doc)
	require.Equal(t, http.StatusOK, w.Code)
	updated := decode[report.Document](t, w)
	assert.Equal(t, doc.CreatedAt, updated.CreatedAt)

	w = env.do(t, http.MethodGet, "/api/reports/"+doc.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[report.Document](t, w)
	assert.Equal(t, "Final 2025", got.Title)
	assert.Equal(t, "We employ 41 people.", got.Blocks[1].Content)

	w = env.do(t, http.MethodDelete, "/api/reports/"+doc.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodGet, "/api/reports/"+doc.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do(t, http.MethodDelete, "/api/reports/"+doc.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleTags(t *testing.T) {
	env := newTestEnv(t)
	block := env.sample.Blocks[5]
	base := "/api/reports/" + env.sample.ID + "/blocks/" + block.ID + "/tags"
	intp := func(n int) *int { return &n }

	tests := []struct {
		name   string
		target string
		req    addTagRequest
		status int
	}{
		{"unknown block", "/api/reports/" + env.sample.ID + "/blocks/nope/tags",
			addTagRequest{ConceptID: "esrs_NumberOfEmployees", ContextID: "instant-current"}, http.StatusNotFound},
		{"unknown report", "/api/reports/nope/blocks/" + block.ID + "/tags",
			addTagRequest{ConceptID: "esrs_NumberOfEmployees", ContextID: "instant-current"}, http.StatusNotFound},
		{"unknown concept", base, addTagRequest{ConceptID: "esrs_Nope", ContextID: "current"}, http.StatusNotFound},
		{"unknown context", base, addTagRequest{ConceptID: "esrs_NumberOfEmployees", ContextID: "nope"}, http.StatusNotFound},
		{"no concept", base, addTagRequest{ContextID: "current"}, http.StatusBadRequest},
		{"no context", base, addTagRequest{ConceptID: "esrs_NumberOfEmployees"}, http.StatusBadRequest},
		{"span out of range", base, addTagRequest{
			ConceptID: "esrs_NumberOfEmployees", ContextID: "instant-current", StartIndex: intp(0), EndIndex: intp(10000),
		}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, tt.target, tt.req)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	w := env.do(t, http.MethodPost, base, addTagRequest{
		ConceptID: "esrs_NumberOfEmployees", ContextID: "instant-current", StartIndex: intp(37), EndIndex: intp(42),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	doc := decode[report.Document](t, w)
	tags := doc.Blocks[5].Tags
	require.Len(t, tags, len(block.Tags)+1)
	added := tags[len(tags)-1]
	assert.Equal(t, "esrs_NumberOfEmployees", added.Concept.ID)
	assert.Equal(t, report.DataInteger, added.Concept.DataType)
	assert.Equal(t, "instant-current", added.Context.ID)
	assert.Equal(t, "8,450", added.Text(doc.Blocks[5].Content))

	w = env.do(t, http.MethodDelete, base+"/"+added.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[report.Document](t, w).Blocks[5].Tags, len(block.Tags))

	w = env.do(t, http.MethodDelete, base+"/"+added.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleCheckReport(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/reports/"+env.sample.ID+"/check", nil)
	require.Equal(t, http.StatusOK, w.Code)
	r := decode[report.Readiness](t, w)
	assert.True(t, r.IsValid)
	assert.Empty(t, r.Errors)

	w = env.do(t, http.MethodPost, "/api/reports", createReportRequest{Title: "Empty"})
	doc := decode[report.Document](t, w)
	w = env.do(t, http.MethodGet, "/api/reports/"+doc.ID+"/check", nil)
	r = decode[report.Readiness](t, w)
	assert.False(t, r.IsValid)
	assert.Contains(t, r.Errors, "No XBRL tags found in the report")
}

func TestHandleGenerate(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/reports/"+env.sample.ID+"/ixbrl", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/xhtml+xml", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ixbrl.FileName(env.sample.Title))

	res := validate.Document(w.Body.Bytes())
	assert.True(t, res.IsValid, "errors: %v", res.Errors)
	assert.Equal(t, 8, res.Stats.TotalFacts)
}

func TestHandleExportJSON(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/reports/"+env.sample.ID+"/export.json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".json")

	var out struct {
		DocumentInfo map[string]string `json:"documentInfo"`
		Facts        []map[string]any  `json:"facts"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	assert.Equal(t, "ESRS-XBRL", out.DocumentInfo["documentType"])
	assert.Equal(t, env.sample.Blocks[1].Tags[0].Context.EntityName, out.DocumentInfo["reportingEntity"])
	assert.Equal(t, "2024-01-01 to 2024-12-31", out.DocumentInfo["reportingPeriod"])
	assert.Len(t, out.Facts, 8)
}

func TestHandleExportWorkbook(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/reports/"+env.sample.ID+"/export.xlsx", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))

	x, err := excelize.OpenReader(w.Body)
	require.NoError(t, err)
	defer x.Close()
	rows, err := x.GetRows("Facts")
	require.NoError(t, err)
	assert.Len(t, rows, 9)
}

func TestHandleValidate(t *testing.T) {
	env := newTestEnv(t)
	content, err := os.ReadFile("../validate/testdata/sample.xbrl")
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/api/validate", bytes.NewReader(content))
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[validate.Result](t, w)
	assert.False(t, res.IsValid)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "E006", res.Errors[0].Code)

	r = httptest.NewRequest(http.MethodPost, "/api/validate", strings.NewReader("not xml"))
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "E001", decode[validate.Result](t, w).Errors[0].Code)
}

func TestConceptIndexRebuildsAfterSwap(t *testing.T) {
	env := newTestEnv(t)
	first, search, err := env.srv.conceptIndex()
	require.NoError(t, err)
	_, again, err := env.srv.conceptIndex()
	require.NoError(t, err)
	assert.Same(t, search, again)

	data, err := taxonomy.Load(strings.NewReader(testTaxonomy))
	require.NoError(t, err)
	env.srv.taxonomy.Swap(taxonomy.NewIndex(data))
	second, rebuilt, err := env.srv.conceptIndex()
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.NotSame(t, search, rebuilt)
}

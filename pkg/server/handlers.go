package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/saranrapjs/esrs-ixbrl/pkg/conceptsearch"
	"github.com/saranrapjs/esrs-ixbrl/pkg/db"
	"github.com/saranrapjs/esrs-ixbrl/pkg/export"
	"github.com/saranrapjs/esrs-ixbrl/pkg/facts"
	"github.com/saranrapjs/esrs-ixbrl/pkg/ixbrl"
	"github.com/saranrapjs/esrs-ixbrl/pkg/report"
	"github.com/saranrapjs/esrs-ixbrl/pkg/taxonomy"
	"github.com/saranrapjs/esrs-ixbrl/pkg/validate"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"concepts": s.taxonomy.Index().Len(),
	})
}

// nodeSummary is the API view of a taxonomy node.
type nodeSummary struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Name       string `json:"name,omitempty"`
	Type       string `json:"type,omitempty"`
	PeriodType string `json:"periodType,omitempty"`
	Abstract   bool   `json:"abstract"`
	Leaf       bool   `json:"leaf"`
}

func summarize(n *taxonomy.Node) nodeSummary {
	return nodeSummary{
		ID:         n.ID,
		Label:      n.Label,
		Name:       n.Name,
		Type:       n.Type,
		PeriodType: n.PeriodType,
		Abstract:   n.IsAbstract(),
		Leaf:       n.IsLeaf(),
	}
}

func summarizeAll(nodes []*taxonomy.Node) []nodeSummary {
	out := make([]nodeSummary, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, summarize(n))
	}
	return out
}

func (s *Server) handleTaxonomySearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	limit := conceptsearch.DefaultLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	ranked, _ := strconv.ParseBool(q.Get("ranked"))
	fuzzy, _ := strconv.ParseBool(q.Get("fuzzy"))
	s.logger.Debug("taxonomy search request",
		zap.String("query", query), zap.Bool("ranked", ranked), zap.Int("limit", limit))

	var nodes []*taxonomy.Node
	if ranked || fuzzy {
		_, search, err := s.conceptIndex()
		if err != nil {
			s.logger.Error("building concept index failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		nodes, err = search.Nodes(query, conceptsearch.Options{Limit: limit, Fuzzy: fuzzy})
		if err != nil {
			s.logger.Error("concept search failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	} else {
		nodes = s.taxonomy.Index().Search(query)
		if len(nodes) > limit {
			nodes = nodes[:limit]
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"results": summarizeAll(nodes),
	})
}

func (s *Server) handleTaxonomyNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	idx := s.taxonomy.Index()
	node, ok := idx.FindByID(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "concept not found")
		return
	}
	path, _ := idx.PathLabels(id)
	s.respondJSON(w, http.StatusOK, map[string]any{
		"node":         summarize(node),
		"path":         path,
		"calculations": summarizeAll(idx.CalculationChildren(node)),
		"concept":      report.ConceptFromNode(node),
	})
}

func (s *Server) handleListContexts(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.contexts.List())
}

func (s *Server) handleCreateContext(w http.ResponseWriter, r *http.Request) {
	var input report.Context
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	c, err := report.NormalizeContext(input)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.db.StoreContext(c); err != nil {
		s.logger.Error("storing context failed", zap.String("id", c.ID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if _, err := s.contexts.Add(c); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("context created", zap.String("id", c.ID), zap.String("label", c.Label))
	s.respondJSON(w, http.StatusCreated, c)
}

func (s *Server) handleDeleteContext(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.contexts.Get(id); !ok {
		s.respondError(w, http.StatusNotFound, "context not found")
		return
	}
	refs, err := s.db.ReportsReferencingContext(id)
	if err != nil {
		s.logger.Error("checking context references failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(refs) > 0 {
		s.respondJSON(w, http.StatusConflict, map[string]any{
			"error":   "context is used by tagged reports",
			"reports": refs,
		})
		return
	}
	if err := s.contexts.Remove(id); err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err := s.db.DeleteContext(id); err != nil && !errors.Is(err, db.ErrNotFound) {
		s.logger.Error("deleting context failed", zap.String("id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	var (
		reports []db.ReportSummary
		err     error
	)
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		reports, err = s.db.SearchReports(q, 50)
	} else {
		reports, err = s.db.ListReports()
	}
	if err != nil {
		s.logger.Error("listing reports failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, reports)
}

type createReportRequest struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	var req createReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		s.respondError(w, http.StatusBadRequest, "title is required")
		return
	}
	doc := report.FromText(req.Title, req.Text)
	if err := s.db.StoreReport(doc); err != nil {
		s.logger.Error("storing report failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Debug("report created", zap.String("id", doc.ID), zap.Int("blocks", len(doc.Blocks)))
	s.respondJSON(w, http.StatusCreated, doc)
}

// loadReport fetches the report named in the URL, writing the error
// response itself when it cannot.
func (s *Server) loadReport(w http.ResponseWriter, r *http.Request) (*report.Document, bool) {
	id := chi.URLParam(r, "id")
	doc, err := s.db.GetReport(id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "report not found")
			return nil, false
		}
		s.logger.Error("loading report failed", zap.String("id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return doc, true
}

func (s *Server) saveReport(w http.ResponseWriter, doc *report.Document, status int) {
	if err := s.db.StoreReport(doc); err != nil {
		s.logger.Error("storing report failed", zap.String("id", doc.ID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, status, doc)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if doc, ok := s.loadReport(w, r); ok {
		s.respondJSON(w, http.StatusOK, doc)
	}
}

func (s *Server) handleUpdateReport(w http.ResponseWriter, r *http.Request) {
	existing, ok := s.loadReport(w, r)
	if !ok {
		return
	}
	var doc report.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := doc.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	doc.ID = existing.ID
	doc.CreatedAt = existing.CreatedAt
	doc.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if doc.Blocks == nil {
		doc.Blocks = []*report.Block{}
	}
	s.saveReport(w, &doc, http.StatusOK)
}

func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete report request", zap.String("id", id))
	if err := s.db.DeleteReport(id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "report not found")
			return
		}
		s.logger.Error("deleting report failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// addTagRequest names the concept either by taxonomy id or inline, and the
// context either by registry id or inline.
type addTagRequest struct {
	ConceptID  string          `json:"conceptId"`
	Concept    *report.Concept `json:"concept"`
	ContextID  string          `json:"contextId"`
	Context    *report.Context `json:"context"`
	StartIndex *int            `json:"startIndex"`
	EndIndex   *int            `json:"endIndex"`
}

func (s *Server) resolveTag(req addTagRequest) (*report.Tag, int, error) {
	concept := req.Concept
	if req.ConceptID != "" {
		node, ok := s.taxonomy.Index().FindByID(req.ConceptID)
		if !ok {
			return nil, http.StatusNotFound, fmt.Errorf("concept %s not found", req.ConceptID)
		}
		c := report.ConceptFromNode(node)
		concept = &c
	}
	ctx := req.Context
	if req.ContextID != "" {
		c, ok := s.contexts.Get(req.ContextID)
		if !ok {
			return nil, http.StatusNotFound, fmt.Errorf("%w: %s", report.ErrContextNotFound, req.ContextID)
		}
		ctx = &c
	}
	var span *report.Span
	if req.StartIndex != nil && req.EndIndex != nil {
		span = &report.Span{Start: *req.StartIndex, End: *req.EndIndex}
	}
	tag, err := report.NewTag(concept, ctx, span)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	return tag, 0, nil
}

func tagErrorStatus(err error) int {
	switch {
	case errors.Is(err, report.ErrBlockNotFound), errors.Is(err, report.ErrTagNotFound):
		return http.StatusNotFound
	case errors.Is(err, report.ErrSpanOutOfRange):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) handleAddTag(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.loadReport(w, r)
	if !ok {
		return
	}
	var req addTagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tag, status, err := s.resolveTag(req)
	if err != nil {
		s.respondError(w, status, err.Error())
		return
	}
	if err := doc.AddTag(chi.URLParam(r, "blockID"), tag); err != nil {
		s.respondError(w, tagErrorStatus(err), err.Error())
		return
	}
	s.logger.Debug("tag added",
		zap.String("report", doc.ID), zap.String("concept", tag.Concept.ID), zap.String("context", tag.Context.ID))
	s.saveReport(w, doc, http.StatusCreated)
}

func (s *Server) handleRemoveTag(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.loadReport(w, r)
	if !ok {
		return
	}
	if err := doc.RemoveTag(chi.URLParam(r, "blockID"), chi.URLParam(r, "tagID")); err != nil {
		s.respondError(w, tagErrorStatus(err), err.Error())
		return
	}
	s.saveReport(w, doc, http.StatusOK)
}

func (s *Server) handleCheckReport(w http.ResponseWriter, r *http.Request) {
	if doc, ok := s.loadReport(w, r); ok {
		s.respondJSON(w, http.StatusOK, report.Check(doc))
	}
}

func (s *Server) generate(w http.ResponseWriter, doc *report.Document) ([]byte, bool) {
	out, err := s.generator.Generate(doc)
	if err != nil {
		s.logger.Error("generating ixbrl failed", zap.String("report", doc.ID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return out, true
}

func attachment(w http.ResponseWriter, contentType, name string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.loadReport(w, r)
	if !ok {
		return
	}
	out, ok := s.generate(w, doc)
	if !ok {
		return
	}
	s.logger.Info("generated ixbrl",
		zap.String("report", doc.ID), zap.Int("facts", ixbrl.FactCount(doc)), zap.Int("bytes", len(out)))
	attachment(w, "application/xhtml+xml", ixbrl.FileName(doc.Title))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// reportFacts renders the report and reads its facts back out of the
// generated document.
func (s *Server) reportFacts(w http.ResponseWriter, r *http.Request) (*report.Document, *facts.Facts, bool) {
	doc, ok := s.loadReport(w, r)
	if !ok {
		return nil, nil, false
	}
	out, ok := s.generate(w, doc)
	if !ok {
		return nil, nil, false
	}
	f, err := facts.FromIXBRL(bytes.NewReader(out))
	if err != nil {
		s.logger.Error("extracting facts failed", zap.String("report", doc.ID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return nil, nil, false
	}
	return doc, f, true
}

func reportEntity(doc *report.Document) string {
	for _, t := range doc.Tags() {
		if t.Context.EntityName != "" {
			return t.Context.EntityName
		}
	}
	return ""
}

func baseName(title string) string {
	return strings.TrimSuffix(ixbrl.FileName(title), ".ixbrl")
}

func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	doc, f, ok := s.reportFacts(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.JSON(&buf, f, export.InfoFor(f, reportEntity(doc))); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	attachment(w, "application/json", baseName(doc.Title)+".json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleExportWorkbook(w http.ResponseWriter, r *http.Request) {
	doc, f, ok := s.reportFacts(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.Workbook(&buf, f); err != nil {
		s.logger.Error("writing workbook failed", zap.String("report", doc.ID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	attachment(w, xlsxContentType, baseName(doc.Title)+".xlsx")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	res, err := validate.Reader(http.MaxBytesReader(w, r.Body, maxDocumentSize))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("validated document",
		zap.Bool("valid", res.IsValid), zap.Int("errors", len(res.Errors)), zap.Int("bytes", res.Stats.ByteSize))
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// Package conceptsearch ranks taxonomy concepts against free-text queries
// with an in-memory Bleve index.
package conceptsearch

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/saranrapjs/esrs-ixbrl/pkg/taxonomy"
)

const (
	DefaultLimit     = 20
	defaultFuzziness = 1
)

// Options tune a search. The zero value is an exact-term search returning
// DefaultLimit results.
type Options struct {
	Limit     int
	Fuzzy     bool
	Fuzziness int
}

// Result is a ranked hit.
type Result struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Index is a Bleve index over the nodes of one taxonomy.
type Index struct {
	index bleve.Index
	tax   *taxonomy.Index
}

func indexMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	for _, field := range []string{"label", "originalLabel", "name", "words"} {
		doc.AddFieldMappingsAt(field, text)
	}
	exact := bleve.NewTextFieldMapping()
	exact.Analyzer = keyword.Name
	doc.AddFieldMappingsAt("id", exact)
	im.DefaultMapping = doc
	return im
}

// New indexes every node of tax. Repeated ids are indexed once, as the
// first node in pre-order.
func New(tax *taxonomy.Index) (*Index, error) {
	index, err := bleve.NewMemOnly(indexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create concept index: %w", err)
	}
	batch := index.NewBatch()
	seen := make(map[string]bool)
	for _, n := range tax.Flatten() {
		if n.ID == "" || seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		if err := batch.Index(n.ID, document(n)); err != nil {
			index.Close()
			return nil, fmt.Errorf("failed to index concept %s: %w", n.ID, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		index.Close()
		return nil, fmt.Errorf("failed to index concepts: %w", err)
	}
	return &Index{index: index, tax: tax}, nil
}

func document(n *taxonomy.Node) map[string]any {
	return map[string]any{
		"id":            n.ID,
		"label":         n.Label,
		"originalLabel": n.OriginalLabel,
		"name":          n.Name,
		"words":         splitWords(n.ID) + " " + splitWords(n.Name),
	}
}

// splitWords breaks an identifier such as esrs_GrossScope1Emissions into
// "esrs Gross Scope 1 Emissions".
func splitWords(id string) string {
	var b strings.Builder
	var prev rune
	for i, r := range id {
		switch {
		case r == '_' || r == ':' || r == '-' || r == '.':
			b.WriteRune(' ')
		case i > 0 && unicode.IsUpper(r) && !unicode.IsUpper(prev):
			b.WriteRune(' ')
			b.WriteRune(r)
		case i > 0 && unicode.IsDigit(r) != unicode.IsDigit(prev) && prev != '_':
			b.WriteRune(' ')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
		prev = r
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func terms(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

func (idx *Index) query(q string, opts Options) blevequery.Query {
	queries := []blevequery.Query{}
	exact := bleve.NewTermQuery(strings.TrimSpace(q))
	exact.SetField("id")
	exact.SetBoost(10)
	queries = append(queries, exact, bleve.NewMatchQuery(q))

	fuzziness := opts.Fuzziness
	if fuzziness <= 0 {
		fuzziness = defaultFuzziness
	}
	for _, term := range terms(q) {
		prefix := bleve.NewPrefixQuery(term)
		prefix.SetBoost(0.5)
		queries = append(queries, prefix)
		if opts.Fuzzy {
			fq := bleve.NewFuzzyQuery(term)
			fq.SetFuzziness(fuzziness)
			fq.SetBoost(0.5)
			queries = append(queries, fq)
		}
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// Search returns the ids of matching concepts, best first. An empty query
// matches nothing.
func (idx *Index) Search(q string, opts Options) ([]Result, error) {
	if len(terms(q)) == 0 {
		return []Result{}, nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	req := bleve.NewSearchRequest(idx.query(q, opts))
	req.Size = limit
	res, err := idx.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search concepts: %w", err)
	}
	out := make([]Result, len(res.Hits))
	for i, hit := range res.Hits {
		out[i] = Result{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// Nodes runs Search and resolves hits against the taxonomy.
func (idx *Index) Nodes(q string, opts Options) ([]*taxonomy.Node, error) {
	results, err := idx.Search(q, opts)
	if err != nil {
		return nil, err
	}
	nodes := make([]*taxonomy.Node, 0, len(results))
	for _, r := range results {
		if n, ok := idx.tax.FindByID(r.ID); ok {
			nodes = append(nodes, n)
		}
	}
	return nodes, nil
}

// Len returns the number of indexed concepts.
func (idx *Index) Len() (uint64, error) {
	return idx.index.DocCount()
}

func (idx *Index) Close() error {
	return idx.index.Close()
}

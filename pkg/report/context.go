package report

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

// DefaultEntityScheme is used when a context names no identifier scheme.
const DefaultEntityScheme = "http://www.sec.gov/CIK"

var (
	ErrEntityRequired  = errors.New("entity name and identifier are required")
	ErrContextNotFound = errors.New("context not found")
)

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02",
	"01/02/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	time.RFC1123,
	time.RFC1123Z,
}

// NormalizeDate formats a date-like value as YYYY-MM-DD. Values already in
// that form pass through unchanged.
func NormalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if isoDate.MatchString(s) {
		return s, true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(time.DateOnly), true
		}
	}
	return "", false
}

// ContextLabel renders the display label of a context, for example
// "Acme - As of 2024-12-31" or "Acme - 2024-01-01 to 2024-12-31".
func ContextLabel(c Context) string {
	date := func(s string) string {
		if d, ok := NormalizeDate(s); ok {
			return d
		}
		return s
	}
	if c.IsInstant() {
		return fmt.Sprintf("%s - As of %s", c.EntityName, date(c.InstantDate))
	}
	return fmt.Sprintf("%s - %s to %s", c.EntityName, date(c.StartDate), date(c.EndDate))
}

// Registry is the set of contexts available for tagging, kept in insertion
// order. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	contexts map[string]Context
}

// NewRegistry returns a registry holding contexts.
func NewRegistry(contexts ...Context) *Registry {
	r := &Registry{contexts: make(map[string]Context)}
	for _, c := range contexts {
		r.put(c)
	}
	return r
}

// Add normalizes c with NormalizeContext and stores it. Adding an existing
// id replaces that context.
func (r *Registry) Add(c Context) (Context, error) {
	c, err := NormalizeContext(c)
	if err != nil {
		return Context{}, err
	}
	r.mu.Lock()
	r.put(c)
	r.mu.Unlock()
	return c, nil
}

// NormalizeContext validates c and fills in its id, scheme, label and
// creation time when missing.
func NormalizeContext(c Context) (Context, error) {
	if strings.TrimSpace(c.EntityName) == "" || strings.TrimSpace(c.EntityIdentifier) == "" {
		return Context{}, ErrEntityRequired
	}
	if c.ID == "" {
		c.ID = newID()
	}
	if c.EntityScheme == "" {
		c.EntityScheme = DefaultEntityScheme
	}
	if c.PeriodType == "" {
		c.PeriodType = PeriodDuration
	}
	if c.Label == "" {
		c.Label = ContextLabel(c)
	}
	if c.CreatedAt == "" {
		c.CreatedAt = now()
	}
	return c, nil
}

func (r *Registry) put(c Context) {
	if _, ok := r.contexts[c.ID]; !ok {
		r.order = append(r.order, c.ID)
	}
	r.contexts[c.ID] = c
}

// Get returns the context with the given id.
func (r *Registry) Get(id string) (Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contexts[id]
	return c, ok
}

// List returns all contexts in insertion order.
func (r *Registry) List() []Context {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Context, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.contexts[id])
	}
	return out
}

// Remove deletes a context.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.contexts[id]; !ok {
		return fmt.Errorf("%w: %s", ErrContextNotFound, id)
	}
	delete(r.contexts, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

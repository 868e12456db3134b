// Package report models sustainability report documents: text blocks, the
// XBRL tags highlighted inside them, and the reporting contexts those tags
// refer to.
package report

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	ErrConceptRequired = errors.New("a concept is required to create a tag")
	ErrContextRequired = errors.New("a context is required to create a tag")
	ErrBlockNotFound   = errors.New("block not found")
	ErrTagNotFound     = errors.New("tag not found")
	ErrSpanOutOfRange  = errors.New("tag span is outside the block content")
	ErrInvalidDocument = errors.New("invalid document")
)

// BlockType is the structural role of a block of report text.
type BlockType string

const (
	BlockParagraph BlockType = "paragraph"
	BlockHeading   BlockType = "heading"
	BlockTable     BlockType = "table"
	BlockList      BlockType = "list"
)

// Document is a report: an ordered list of blocks.
type Document struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt"`
	Blocks    []*Block `json:"blocks"`
}

// Block is a unit of report text. Blocks are never split or merged; only
// their content and tags change.
type Block struct {
	ID      string    `json:"id"`
	Content string    `json:"content"`
	Type    BlockType `json:"type"`
	Tags    []*Tag    `json:"tags"`
}

// Span is a character range inside a block's content. Offsets count runes.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Tag binds a concept and a context to a span of a block. When both indices
// are present, 0 <= StartIndex <= EndIndex <= rune length of the content.
// Concept and Context are copies taken when the tag was created.
type Tag struct {
	ID         string  `json:"id"`
	Concept    Concept `json:"concept"`
	Context    Context `json:"context"`
	CreatedAt  string  `json:"createdAt"`
	StartIndex *int    `json:"startIndex,omitempty"`
	EndIndex   *int    `json:"endIndex,omitempty"`
}

// Span returns the tag's range, reading absent indices as 0.
func (t *Tag) Span() Span {
	var s Span
	if t.StartIndex != nil {
		s.Start = *t.StartIndex
	}
	if t.EndIndex != nil {
		s.End = *t.EndIndex
	} else {
		s.End = s.Start
	}
	return s
}

// Text returns the part of content the tag covers, or "" when its span does
// not fit content.
func (t *Tag) Text(content string) string {
	s := t.Span()
	runes := []rune(content)
	if s.Start < 0 || s.Start > s.End || s.End > len(runes) {
		return ""
	}
	return string(runes[s.Start:s.End])
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func newID() string {
	return uuid.New().String()
}

// NewTag creates a tag for concept in ctx. A nil span means no text was
// highlighted and yields a 0/0 span.
func NewTag(concept *Concept, ctx *Context, span *Span) (*Tag, error) {
	if concept == nil {
		return nil, ErrConceptRequired
	}
	if ctx == nil {
		return nil, ErrContextRequired
	}
	start, end := 0, 0
	if span != nil {
		start, end = span.Start, span.End
	}
	return &Tag{
		ID:         newID(),
		Concept:    *concept,
		Context:    *ctx,
		CreatedAt:  now(),
		StartIndex: &start,
		EndIndex:   &end,
	}, nil
}

// New returns an empty document.
func New(title string) *Document {
	ts := now()
	return &Document{
		ID:        newID(),
		Title:     title,
		CreatedAt: ts,
		UpdatedAt: ts,
		Blocks:    []*Block{},
	}
}

// FromText builds a document whose paragraphs are the blank-line separated
// parts of text. Empty paragraphs are dropped.
func FromText(title, text string) *Document {
	doc := New(title)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		doc.AppendBlock(BlockParagraph, p)
	}
	return doc
}

// AppendBlock adds a block at the end of the document.
func (d *Document) AppendBlock(typ BlockType, content string) *Block {
	b := &Block{ID: newID(), Content: content, Type: typ, Tags: []*Tag{}}
	d.Blocks = append(d.Blocks, b)
	d.touch()
	return b
}

func (d *Document) touch() {
	d.UpdatedAt = now()
}

// Block returns the block with the given id.
func (d *Document) Block(id string) (*Block, bool) {
	for _, b := range d.Blocks {
		if b != nil && b.ID == id {
			return b, true
		}
	}
	return nil, false
}

// AddTag attaches tag to a block after checking its span against the block
// content.
func (d *Document) AddTag(blockID string, tag *Tag) error {
	b, ok := d.Block(blockID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrBlockNotFound, blockID)
	}
	if tag == nil {
		return ErrConceptRequired
	}
	if err := checkSpan(b, tag); err != nil {
		return err
	}
	b.Tags = append(b.Tags, tag)
	d.touch()
	return nil
}

func checkSpan(b *Block, tag *Tag) error {
	if tag.StartIndex == nil || tag.EndIndex == nil {
		return nil
	}
	start, end := *tag.StartIndex, *tag.EndIndex
	if start < 0 || start > end || end > utf8.RuneCountInString(b.Content) {
		return fmt.Errorf("%w: [%d, %d)", ErrSpanOutOfRange, start, end)
	}
	return nil
}

// Validate checks a document received from outside, such as a decoded
// request body or file: every block and tag must be present and every
// span must fit its block.
func (d *Document) Validate() error {
	for i, b := range d.Blocks {
		if b == nil {
			return fmt.Errorf("%w: block %d is null", ErrInvalidDocument, i)
		}
		for j, t := range b.Tags {
			if t == nil {
				return fmt.Errorf("%w: tag %d of block %s is null", ErrInvalidDocument, j, b.ID)
			}
			if err := checkSpan(b, t); err != nil {
				return fmt.Errorf("%w: tag %s of block %s: %w", ErrInvalidDocument, t.ID, b.ID, err)
			}
		}
	}
	return nil
}

// CarryTags copies the tags of src onto the blocks of d with the same id,
// for blocks of d that have no tags of their own. Tags whose span no longer
// fits the block content are dropped. It returns the number of tags kept
// and dropped.
func (d *Document) CarryTags(src *Document) (kept, dropped int) {
	for _, from := range src.Blocks {
		if from == nil {
			continue
		}
		tags := from.Tagged()
		to, ok := d.Block(from.ID)
		if !ok || len(to.Tagged()) > 0 {
			dropped += len(tags)
			continue
		}
		for _, t := range tags {
			if checkSpan(to, t) != nil {
				dropped++
				continue
			}
			to.Tags = append(to.Tags, t)
			kept++
		}
	}
	return kept, dropped
}

// Tagged returns the block's tags, skipping null entries.
func (b *Block) Tagged() []*Tag {
	out := make([]*Tag, 0, len(b.Tags))
	for _, t := range b.Tags {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

// RemoveTag detaches a tag from a block.
func (d *Document) RemoveTag(blockID, tagID string) error {
	b, ok := d.Block(blockID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrBlockNotFound, blockID)
	}
	for i, t := range b.Tags {
		if t != nil && t.ID == tagID {
			b.Tags = append(b.Tags[:i], b.Tags[i+1:]...)
			d.touch()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrTagNotFound, tagID)
}

// UpdateContent replaces the content of a block. Tags are kept as they are.
func (d *Document) UpdateContent(blockID, content string) error {
	b, ok := d.Block(blockID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrBlockNotFound, blockID)
	}
	b.Content = content
	d.touch()
	return nil
}

// Tags returns all tags in block order. Null blocks and tags are skipped.
func (d *Document) Tags() []*Tag {
	var tags []*Tag
	for _, b := range d.Blocks {
		if b != nil {
			tags = append(tags, b.Tagged()...)
		}
	}
	return tags
}

// ContextIDs returns the distinct context ids referenced by tags, in first
// seen order.
func (d *Document) ContextIDs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range d.Tags() {
		if !seen[t.Context.ID] {
			seen[t.Context.ID] = true
			out = append(out, t.Context.ID)
		}
	}
	return out
}

// ReferencesContext reports whether any tag uses the context id.
func (d *Document) ReferencesContext(id string) bool {
	for _, t := range d.Tags() {
		if t.Context.ID == id {
			return true
		}
	}
	return false
}

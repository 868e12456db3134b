// Package validate runs structural and cross-reference checks over XBRL and
// inline XBRL documents and reports what it finds as coded issues.
package validate

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Severity classifies an issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Issue is a single finding. Line is 1-based.
type Issue struct {
	Type     Severity `json:"type"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Line     int      `json:"line"`
	Severity Severity `json:"severity"`
}

// Stats describes the validated document. TotalFacts counts contextRef
// attributes.
type Stats struct {
	TotalFacts     int           `json:"totalFacts"`
	Contexts       int           `json:"contexts"`
	Units          int           `json:"units"`
	ByteSize       int           `json:"byteSize"`
	FileSize       string        `json:"fileSize"`
	ValidationTime string        `json:"validationTime"`
	Elapsed        time.Duration `json:"-"`
}

type Summary struct {
	TotalIssues  int `json:"totalIssues"`
	ErrorCount   int `json:"errorCount"`
	WarningCount int `json:"warningCount"`
	InfoCount    int `json:"infoCount"`
}

// Result is the outcome of a validation run. IsValid is true when there are
// no errors; warnings and info never affect it.
type Result struct {
	IsValid  bool    `json:"isValid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
	Info     []Issue `json:"info"`
	Stats    Stats   `json:"stats"`
	Summary  Summary `json:"summary"`
}

const (
	nsInstance  = "http://www.xbrl.org/2003/instance"
	nsLinkbase  = "http://www.xbrl.org/2003/linkbase"
	nsInline    = "http://www.xbrl.org/2013/inlineXBRL"
	nsInline11  = "http://www.xbrl.org/2008/inlineXBRL"
	nsXHTML     = "http://www.w3.org/1999/xhtml"
	nsXLink     = "http://www.w3.org/1999/xlink"
	nsXSI       = "http://www.w3.org/2001/XMLSchema-instance"
	nsDimension = "http://xbrl.org/2006/xbrldi"
	nsISO4217   = "http://www.xbrl.org/2003/iso4217"
)

// Namespaces whose elements are document structure rather than facts.
var structural = map[string]bool{
	nsInstance:  true,
	nsLinkbase:  true,
	nsXHTML:     true,
	nsXLink:     true,
	nsXSI:       true,
	nsDimension: true,
	nsISO4217:   true,
	"xbrli":     true,
	"link":      true,
	"xlink":     true,
	"xbrldi":    true,
	"":          true,
}

var numberPattern = regexp.MustCompile(`-?\d[\d,]*(\.\d+)?`)

var printer = message.NewPrinter(language.English)

// Reader validates everything read from r. It fails only when r does.
func Reader(r io.Reader) (*Result, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return Document(content), nil
}

type fact struct {
	name       string
	line       int
	hasContext bool
	unitRef    string
	sign       string
	text       strings.Builder
}

type context struct {
	id            string
	line          int
	hasIdentifier bool
	hasPeriod     bool
}

type ref struct {
	id   string
	line int
}

// scan is everything collected from one pass over the document.
type scan struct {
	instanceNS  bool
	schemaRefs  int
	contexts    []*context
	unitIDs     []ref
	contextRefs []ref
	unitRefs    []ref
	facts       []*fact
}

// Document validates content. It never fails: every problem, including
// content that is not XML at all, is reported as an issue.
func Document(content []byte) *Result {
	start := time.Now()
	res := &Result{
		Errors:   []Issue{},
		Warnings: []Issue{},
		Info:     []Issue{},
	}
	s, line, err := walk(content)
	if err != nil {
		res.add(SeverityError, "E001", "Document is not valid XML", line)
		res.finish(Stats{FileSize: "0 KB"}, start)
		return res
	}
	res.check(s)
	res.finish(Stats{
		TotalFacts: len(s.contextRefs),
		Contexts:   len(s.contexts),
		Units:      len(s.unitIDs),
		ByteSize:   len(content),
		FileSize:   printer.Sprintf("%.1f KB", float64(len(content))/1024),
	}, start)
	return res
}

func (res *Result) add(sev Severity, code, msg string, line int) {
	if line < 1 {
		line = 1
	}
	issue := Issue{Type: sev, Code: code, Message: msg, Line: line, Severity: sev}
	switch sev {
	case SeverityError:
		res.Errors = append(res.Errors, issue)
	case SeverityWarning:
		res.Warnings = append(res.Warnings, issue)
	default:
		res.Info = append(res.Info, issue)
	}
}

func (res *Result) finish(stats Stats, start time.Time) {
	stats.Elapsed = time.Since(start)
	stats.ValidationTime = stats.Elapsed.Round(time.Microsecond).String()
	res.Stats = stats
	res.IsValid = len(res.Errors) == 0
	res.Summary = Summary{
		TotalIssues:  len(res.Errors) + len(res.Warnings),
		ErrorCount:   len(res.Errors),
		WarningCount: len(res.Warnings),
		InfoCount:    len(res.Info),
	}
}

func attr(attrs []xml.Attr, local string) (string, bool) {
	for _, a := range attrs {
		if a.Name.Local == local && a.Name.Space == "" {
			return a.Value, true
		}
	}
	return "", false
}

func isInstance(n xml.Name) bool {
	return n.Space == nsInstance || n.Space == "xbrli" || n.Space == ""
}

func isInlineFact(n xml.Name) bool {
	if n.Space != nsInline && n.Space != nsInline11 && n.Space != "ix" {
		return false
	}
	switch n.Local {
	case "nonFraction", "nonNumeric", "fraction":
		return true
	}
	return false
}

func isFact(n xml.Name) bool {
	if isInlineFact(n) {
		return true
	}
	if n.Space == nsInline || n.Space == nsInline11 || n.Space == "ix" {
		return false
	}
	return !structural[n.Space]
}

// walk decodes content in strict mode, accepting HTML named entities, and
// collects what the checks need. On a syntax error it returns the line of
// the error.
func walk(content []byte) (*scan, int, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))
	dec.Strict = true
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	s := &scan{}
	var (
		cur          *context
		inIdentifier bool
		inUnit       bool
		open         []*fact
		stack        []*fact
		roots        int
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			var syntax *xml.SyntaxError
			if errors.As(err, &syntax) {
				return nil, syntax.Line, err
			}
			line, _ := dec.InputPos()
			return nil, line, err
		}
		line, _ := dec.InputPos()
		switch tok := tok.(type) {
		case xml.StartElement:
			if len(stack) == 0 {
				roots++
				if roots > 1 {
					return nil, line, fmt.Errorf("element <%s> after the root element", tok.Name.Local)
				}
			}
			for _, a := range tok.Attr {
				declares := a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns")
				if declares && a.Value == nsInstance {
					s.instanceNS = true
				}
			}
			if v, ok := attr(tok.Attr, "contextRef"); ok {
				s.contextRefs = append(s.contextRefs, ref{v, line})
			}
			if v, ok := attr(tok.Attr, "unitRef"); ok {
				s.unitRefs = append(s.unitRefs, ref{v, line})
			}

			var f *fact
			switch {
			case tok.Name.Local == "schemaRef":
				s.schemaRefs++
			case tok.Name.Local == "context" && isInstance(tok.Name):
				id, _ := attr(tok.Attr, "id")
				cur = &context{id: id, line: line}
				s.contexts = append(s.contexts, cur)
			case tok.Name.Local == "unit" && isInstance(tok.Name):
				id, _ := attr(tok.Attr, "id")
				s.unitIDs = append(s.unitIDs, ref{id, line})
				inUnit = true
			case cur != nil:
				switch {
				case tok.Name.Local == "period" && isInstance(tok.Name):
					cur.hasPeriod = true
				case tok.Name.Local == "identifier" && isInstance(tok.Name):
					inIdentifier = true
				}
			case inUnit:
			case isFact(tok.Name):
				f = &fact{name: tok.Name.Local, line: line}
				f.unitRef, _ = attr(tok.Attr, "unitRef")
				f.sign, _ = attr(tok.Attr, "sign")
				_, f.hasContext = attr(tok.Attr, "contextRef")
				s.facts = append(s.facts, f)
				open = append(open, f)
			}
			stack = append(stack, f)

		case xml.EndElement:
			if len(stack) == 0 {
				break
			}
			if stack[len(stack)-1] != nil {
				open = open[:len(open)-1]
			}
			stack = stack[:len(stack)-1]
			if !isInstance(tok.Name) {
				break
			}
			switch tok.Name.Local {
			case "context":
				cur = nil
			case "identifier":
				inIdentifier = false
			case "unit":
				inUnit = false
			}

		case xml.CharData:
			if len(stack) == 0 && len(bytes.TrimSpace(tok)) > 0 {
				return nil, line, errors.New("text outside the root element")
			}
			if inIdentifier && cur != nil && len(bytes.TrimSpace(tok)) > 0 {
				cur.hasIdentifier = true
			}
			for _, f := range open {
				f.text.Write(tok)
			}
		}
	}
	if roots == 0 {
		return nil, 1, errors.New("no root element")
	}
	return s, 0, nil
}

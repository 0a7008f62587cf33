// Package report assembles the downloadable composite analysis document.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/consilium-health/consilium/pkg/consult"
)

const divider = "=================================================="

// Section is one titled block of the composite document.
type Section struct {
	Title   string
	Content string
}

// Document is the final human-readable analysis, sections first and the
// multidisciplinary synthesis last.
type Document struct {
	GeneratedAt time.Time
	Sections    []Section
	Final       string
	Partial     bool
}

// FromResult builds a Document from a pipeline result, preserving the
// specialist order of the run.
func FromResult(r *consult.Result) Document {
	doc := Document{
		GeneratedAt: r.FinishedAt,
		Final:       r.Synthesis.Content,
		Partial:     r.Partial,
	}
	if doc.GeneratedAt.IsZero() {
		doc.GeneratedAt = time.Now()
	}
	for _, role := range r.Order {
		a := r.Assessments[role]
		content := a.Content
		if a.Err != nil {
			content = "No response (consultation failed)."
		}
		doc.Sections = append(doc.Sections, Section{
			Title:   strings.ToUpper(string(role)) + " ANALYSIS",
			Content: content,
		})
	}
	return doc
}

// Render produces the plain-text document offered for download.
func (d Document) Render() string {
	var sb strings.Builder

	sb.WriteString("MEDICAL REPORT ANALYSIS\n")
	sb.WriteString("Generated on: " + d.GeneratedAt.Format("2006-01-02 15:04:05") + "\n")
	if d.Partial {
		sb.WriteString("NOTE: one or more specialist consultations failed; this analysis is partial.\n")
	}
	sb.WriteString(divider + "\n\n")

	for _, s := range d.Sections {
		sb.WriteString(s.Title + ":\n")
		sb.WriteString(s.Content + "\n\n")
		sb.WriteString(divider + "\n\n")
	}

	sb.WriteString("FINAL MULTIDISCIPLINARY TEAM ANALYSIS:\n")
	sb.WriteString(d.Final + "\n\n")
	sb.WriteString(divider + "\n")
	sb.WriteString("End of Report\n")

	return sb.String()
}

// Filename returns the timestamped download name for the document.
func (d Document) Filename() string {
	return fmt.Sprintf("medical_analysis_%s.txt", d.GeneratedAt.Format("20060102_150405"))
}

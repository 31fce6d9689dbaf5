package analyzer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf/v2"
)

// WritePlaceholder renders the document used when a report yields no files to
// analyze. Returning success here is a normal terminal state, not a failure.
func WritePlaceholder(path string) (string, error) {
	if err := renderPlaceholderPDF(path); err != nil {
		return "", err
	}
	return path, nil
}

func renderPlaceholderPDF(path string) error {
	pdf, tr := newDocument("Code Base Analysis (No Files Found)")
	pdf.SetFont("Arial", "", 11)
	pdf.SetTextColor(33, 37, 41)
	pdf.MultiCell(0, 6, tr("No commits or files matched the requested criteria."), "", "L", false)
	return output(pdf, path)
}

// renderPDF assembles the final document: holistic narrative, aggregate
// statistics, then per-file details, in that fixed order.
func renderPDF(path, title, narrative string, stats *batchStats) error {
	pdf, tr := newDocument(title)

	// Narrative
	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(33, 37, 41)
	writeParagraphs(pdf, tr, narrative)

	// Statistics
	sectionHeader(pdf, tr, "Detailed file statistics")
	pdf.SetFont("Arial", "", 10)
	writeLine(pdf, tr, fmt.Sprintf("Total files analyzed: %d", stats.total))
	writeLine(pdf, tr, fmt.Sprintf("Fully completed (COMPLETED): %d", stats.completed))
	writeLine(pdf, tr, fmt.Sprintf("Partially completed (PARTIAL): %d", stats.partial))
	writeLine(pdf, tr, fmt.Sprintf("Needs rework (INCOMPLETE/ERROR/FAILED): %d", stats.incomplete))
	writeLine(pdf, tr, fmt.Sprintf("Overall completion (estimate): %.1f%%", stats.completionPercent()))
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	writeLine(pdf, tr, "Per-author statistics:")
	pdf.SetFont("Arial", "", 10)
	for _, author := range stats.sortedAuthors() {
		files := stats.byAuthor[author]
		completed, partial, incomplete, percent := authorPercent(files)
		writeLine(pdf, tr, fmt.Sprintf("%s (%d files): completed %d, partial %d, incomplete %d, completion %.1f%%",
			author, len(files), completed, partial, incomplete, percent))
	}

	// Per-file details
	sectionHeader(pdf, tr, "Individual file reviews")
	for _, s := range stats.summaries {
		pdf.SetFont("Arial", "B", 10)
		pdf.SetTextColor(0, 102, 204)
		pdf.MultiCell(0, 5, tr(s.Filename), "", "L", false)

		pdf.SetFont("Arial", "", 9)
		pdf.SetTextColor(108, 117, 125)
		pdf.MultiCell(0, 5, tr(fmt.Sprintf("Author: %s    Status: %s", s.Author, s.Status)), "", "L", false)

		pdf.SetFont("Arial", "", 10)
		pdf.SetTextColor(33, 37, 41)
		writeParagraphs(pdf, tr, s.Summary)
		pdf.Ln(3)
	}

	return output(pdf, path)
}

// newDocument creates an A4 page with the shared title block, footer page
// numbering, and a cp1252 translator for non-ASCII narrative text.
func newDocument(title string) (*gofpdf.Fpdf, func(string) string) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AliasNbPages("{nb}")

	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Arial", "", 9)
		pdf.SetTextColor(108, 117, 125)
		pdf.SetX(15)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.MultiCell(0, 10, tr(title), "", "C", false)

	pdf.SetFont("Arial", "", 9)
	pdf.SetTextColor(108, 117, 125)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated: %s", time.Now().UTC().Format("2006-01-02 15:04 UTC")), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	return pdf, tr
}

func sectionHeader(pdf *gofpdf.Fpdf, tr func(string) string, text string) {
	pdf.Ln(6)
	pdf.SetFont("Arial", "B", 12)
	pdf.SetTextColor(0, 51, 102)
	pdf.MultiCell(0, 8, tr(text), "", "L", false)
	pdf.Ln(2)
}

func writeLine(pdf *gofpdf.Fpdf, tr func(string) string, text string) {
	pdf.MultiCell(0, 6, tr(text), "", "L", false)
}

// writeParagraphs splits free text on blank lines and renders each chunk as
// its own paragraph, dropping NUL bytes the renderer cannot handle.
func writeParagraphs(pdf *gofpdf.Fpdf, tr func(string) string, text string) {
	for _, paragraph := range splitParagraphs(text) {
		pdf.MultiCell(0, 5, tr(paragraph), "", "L", false)
		pdf.Ln(2)
	}
}

func splitParagraphs(text string) []string {
	cleaned := strings.NewReplacer("\x00", "", "\r", "").Replace(text)
	var out []string
	for _, p := range strings.Split(cleaned, "\n\n") {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

func output(pdf *gofpdf.Fpdf, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create document dir: %w", err)
	}
	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("render document %s: %w", path, err)
	}
	return nil
}

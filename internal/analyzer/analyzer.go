// Package analyzer runs every file of a snapshot through the model reviewer,
// aggregates per-file and per-author completion statistics, and renders the
// result into a PDF document.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/arturoeanton/go-commit-auditor/internal/domain"
	"github.com/arturoeanton/go-commit-auditor/internal/port"
	"github.com/arturoeanton/go-commit-auditor/internal/snapshot"
)

const (
	// maxCodeChars bounds the source text submitted per file.
	maxCodeChars = 5500
	// maxNarrativeChars bounds the stored per-file narrative.
	maxNarrativeChars = 700
	// maxSummaryInput bounds the combined input of the holistic call.
	maxSummaryInput = 5500
)

// Per-file status tags. FAILED_ANALYSIS and ERROR both count toward the
// incomplete bucket.
const (
	StatusCompleted  = "COMPLETED"
	StatusPartial    = "PARTIAL"
	StatusIncomplete = "INCOMPLETE"
	StatusFailed     = "FAILED_ANALYSIS"
	StatusError      = "ERROR"
)

// FileSummary is the reviewed outcome for one file record.
type FileSummary struct {
	Filename string
	Author   string
	Status   string
	Summary  string
}

// batchStats accumulates one analyzer run. Discarded after rendering.
type batchStats struct {
	summaries  []FileSummary
	total      int
	completed  int
	partial    int
	incomplete int
	byAuthor   map[string][]FileSummary
}

func newBatchStats(total int) *batchStats {
	return &batchStats{total: total, byAuthor: make(map[string][]FileSummary)}
}

func (b *batchStats) add(s FileSummary) {
	b.summaries = append(b.summaries, s)
	b.byAuthor[s.Author] = append(b.byAuthor[s.Author], s)
	switch s.Status {
	case StatusCompleted:
		b.completed++
	case StatusPartial:
		b.partial++
	default:
		b.incomplete++
	}
}

// completionPercent estimates overall progress: COMPLETED counts 100%,
// PARTIAL counts 50%.
func (b *batchStats) completionPercent() float64 {
	total := b.total
	if total == 0 {
		total = 1
	}
	return (float64(b.completed) + 0.5*float64(b.partial)) / float64(total) * 100
}

func authorPercent(files []FileSummary) (completed, partial, incomplete int, percent float64) {
	for _, f := range files {
		switch f.Status {
		case StatusCompleted:
			completed++
		case StatusPartial:
			partial++
		default:
			incomplete++
		}
	}
	if len(files) > 0 {
		percent = (float64(completed) + 0.5*float64(partial)) / float64(len(files)) * 100
	}
	return
}

// Analyzer reviews snapshot files with the model and renders documents.
type Analyzer struct {
	ai port.AIProvider
}

// New creates an analyzer backed by the given model provider.
func New(ai port.AIProvider) *Analyzer {
	return &Analyzer{ai: ai}
}

// Run loads the snapshot at snapshotPath, reviews each file, and renders the
// PDF document at outputPath. progress, when non-nil, is called after each
// reviewed file with (done, total).
//
// A model failure on a single file is recorded and does not abort the batch;
// a failure of the holistic summary call is substituted with a placeholder.
// Only an unreadable snapshot or a rendering failure is fatal.
func (a *Analyzer) Run(ctx context.Context, snapshotPath, outputPath string, progress func(done, total int)) (string, error) {
	env, err := snapshot.Load(snapshotPath)
	if err != nil {
		return "", fmt.Errorf("load snapshot: %w", err)
	}

	if len(env.Files) == 0 {
		slog.Warn("snapshot contains no files to analyze", "snapshot", snapshotPath)
		if err := renderPlaceholderPDF(outputPath); err != nil {
			return "", err
		}
		return outputPath, nil
	}

	stats := newBatchStats(len(env.Files))
	for i, file := range env.Files {
		slog.Info("analyzing file",
			"file", file.Filename, "author", file.AuthorEmail,
			"progress", fmt.Sprintf("%d/%d", i+1, len(env.Files)))
		stats.add(a.analyzeFile(ctx, file))
		if progress != nil {
			progress(i+1, len(env.Files))
		}
	}

	narrative := a.makeGeneralAnalysis(ctx, stats)

	title := fmt.Sprintf("Code Base Analysis (Report %s)", env.CreatedAt.Format("2006-01-02"))
	if err := renderPDF(outputPath, title, narrative, stats); err != nil {
		return "", err
	}
	return outputPath, nil
}

// analyzeFile submits one file to the model and parses the leading status
// marker out of the reply. Never returns an error: failures become the
// FAILED_ANALYSIS / ERROR statuses.
func (a *Analyzer) analyzeFile(ctx context.Context, file domain.FileRecord) FileSummary {
	code := file.Code
	if len(code) > maxCodeChars {
		code = truncate(code, maxCodeChars)
		slog.Warn("code truncated for analysis", "file", file.Filename, "limit", maxCodeChars)
	}

	messages := []port.Message{
		{Role: "system", Content: reviewSystemPrompt},
		{Role: "user", Content: fmt.Sprintf(
			"Review the code from file %q (author: %s):\n\n```\n%s\n```",
			file.Filename, file.AuthorEmail, code)},
	}

	raw, err := a.ai.Complete(ctx, messages, 0.2, 1500)
	if err != nil {
		slog.Error("model call failed for file", "file", file.Filename, "error", err)
		return FileSummary{
			Filename: file.Filename,
			Author:   file.AuthorEmail,
			Status:   StatusError,
			Summary:  fmt.Sprintf("[error analyzing file: %v]", err),
		}
	}
	if strings.TrimSpace(raw) == "" {
		slog.Warn("model returned no result for file", "file", file.Filename)
		return FileSummary{
			Filename: file.Filename,
			Author:   file.AuthorEmail,
			Status:   StatusFailed,
			Summary:  "[analysis returned no result]",
		}
	}

	status, narrative := parseStatus(raw)
	narrative = truncate(narrative, maxNarrativeChars)
	return FileSummary{
		Filename: file.Filename,
		Author:   file.AuthorEmail,
		Status:   status,
		Summary:  narrative,
	}
}

// truncate shortens s to at most limit bytes, backing off so a multi-byte
// rune is never split.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

// parseStatus extracts the leading status marker from raw model output,
// case-insensitively. Anything not starting with a recognized marker is
// INCOMPLETE. The marker is stripped from the returned narrative.
func parseStatus(raw string) (string, string) {
	upper := strings.ToUpper(raw)

	status := StatusIncomplete
	switch {
	case strings.HasPrefix(upper, "[STATUS: COMPLETED]"):
		status = StatusCompleted
	case strings.HasPrefix(upper, "[STATUS: PARTIAL]"):
		status = StatusPartial
	}

	narrative := raw
	if strings.HasPrefix(upper, "[STATUS:") {
		if end := strings.Index(narrative, "]"); end != -1 {
			narrative = strings.TrimSpace(narrative[end+1:])
		}
	}
	return status, narrative
}

// makeGeneralAnalysis issues the one holistic model call over all per-file
// narratives. Failure is non-fatal: an explanatory placeholder is returned
// so the batch still produces a document.
func (a *Analyzer) makeGeneralAnalysis(ctx context.Context, stats *batchStats) string {
	if len(stats.summaries) == 0 {
		return "No data available for a general analysis."
	}

	var sb strings.Builder
	for _, s := range stats.summaries {
		fmt.Fprintf(&sb, "File: %s\nAuthor: %s\nStatus: %s\nSummary: %s\n---\n",
			s.Filename, s.Author, s.Status, s.Summary)
	}
	combined := sb.String()
	if len(combined) > maxSummaryInput {
		combined = truncate(combined, maxSummaryInput)
		slog.Warn("combined summaries truncated for general analysis", "limit", maxSummaryInput)
	}

	messages := []port.Message{
		{Role: "system", Content: summarySystemPrompt(stats.total, stats.completionPercent())},
		{Role: "user", Content: "Here are the short file reviews:\n\n" + combined +
			"\n\nDraw an overall conclusion and give strategic recommendations."},
	}

	narrative, err := a.ai.Complete(ctx, messages, 0.3, 2000)
	if err != nil {
		slog.Error("general analysis call failed", "error", err)
		return fmt.Sprintf("The general analysis could not be generated: %v", err)
	}
	return narrative
}

// sortedAuthors returns the rollup's author emails in a stable order for
// deterministic rendering.
func (b *batchStats) sortedAuthors() []string {
	authors := make([]string, 0, len(b.byAuthor))
	for author := range b.byAuthor {
		authors = append(authors, author)
	}
	sort.Strings(authors)
	return authors
}

// Package snapshot writes and loads the immutable on-disk artifact capturing
// all fetched file records for one report.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/arturoeanton/go-commit-auditor/internal/domain"
)

// Envelope is the fixed serialization format of a snapshot artifact.
type Envelope struct {
	ReportID  string              `json:"report_id"`
	CreatedAt time.Time           `json:"created_at"`
	Files     []domain.FileRecord `json:"files"`
}

// Write serializes the file records into dir as report_<id>.json. The write
// is atomic: the file is written to a temp name in the same directory and
// renamed into place, so a reader never observes a partial artifact.
func Write(reportID string, files []domain.FileRecord, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	if files == nil {
		files = []domain.FileRecord{}
	}
	env := Envelope{
		ReportID:  reportID,
		CreatedAt: time.Now().UTC(),
		Files:     files,
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "report_*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close snapshot: %w", err)
	}

	path := filepath.Join(dir, "report_"+reportID+".json")
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("rename snapshot: %w", err)
	}
	return path, nil
}

// Load reads an envelope back from disk. A missing file or a structurally
// invalid envelope is an error; an envelope with zero files is valid.
func Load(path string) (*Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	if env.ReportID == "" || env.Files == nil {
		return nil, fmt.Errorf("invalid snapshot structure in %s", path)
	}
	return &env, nil
}

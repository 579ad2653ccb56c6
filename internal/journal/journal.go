// Package journal provides the append-only JSONL history of pipeline
// cycles. Each line is one self-contained JSON entry; the file is the
// durable record of what ran, what changed, and what was delivered.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gradewatch/gradewatch/internal/differ"
)

// DefaultRetentionDays is how long entries are kept by Prune when no
// retention is configured.
const DefaultRetentionDays = 90

// ChangeRecord is the journaled form of a single change.
type ChangeRecord struct {
	Type            string `json:"type"`
	SectionTitle    string `json:"section_title"`
	PeriodName      string `json:"period_name,omitempty"`
	CategoryName    string `json:"category_name,omitempty"`
	AssignmentTitle string `json:"assignment_title"`
	AssignmentID    string `json:"assignment_id"`
	Old             string `json:"old"`
	New             string `json:"new"`
}

// Entry is one journaled pipeline cycle. Kind distinguishes normal
// cycle records from fetch-failure records.
type Entry struct {
	Timestamp  time.Time       `json:"timestamp"`
	Kind       string          `json:"kind,omitempty"` // "" for cycles, "error" for failures
	IsInitial  bool            `json:"is_initial,omitempty"`
	HasChanges bool            `json:"has_changes"`
	Summary    string          `json:"summary,omitempty"`
	Counts     differ.Counts   `json:"counts"`
	Changes    []ChangeRecord  `json:"changes,omitempty"`
	Delivered  map[string]bool `json:"delivered,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Writer appends entries to a JSONL file.
type Writer struct {
	path          string
	retentionDays int
}

// New creates a Writer for the given path. retentionDays <= 0 selects
// the default.
func New(path string, retentionDays int) *Writer {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Writer{path: path, retentionDays: retentionDays}
}

// Path returns the journal file path.
func (w *Writer) Path() string { return w.path }

// Record appends a cycle entry built from the report and delivery
// results.
func (w *Writer) Record(report *differ.Report, delivered map[string]bool) error {
	entry := Entry{
		Timestamp:  report.Timestamp,
		IsInitial:  report.IsInitial,
		HasChanges: report.HasChanges(),
		Summary:    report.Summary(),
		Counts:     report.Counts,
		Delivered:  delivered,
	}
	for _, c := range report.Changes {
		entry.Changes = append(entry.Changes, ChangeRecord{
			Type:            string(c.Type),
			SectionTitle:    c.SectionTitle,
			PeriodName:      c.PeriodName,
			CategoryName:    c.CategoryName,
			AssignmentTitle: c.AssignmentTitle,
			AssignmentID:    c.AssignmentID,
			Old:             c.Old,
			New:             c.New,
		})
	}
	return w.Append(entry)
}

// RecordError appends a failure entry for a cycle that never produced
// a report.
func (w *Writer) RecordError(ts time.Time, cycleErr error) error {
	return w.Append(Entry{
		Timestamp: ts,
		Kind:      "error",
		Error:     cycleErr.Error(),
	})
}

// Append writes one entry as a single JSON line. The file is opened
// with O_APPEND so concurrent writers interleave whole lines rather
// than corrupt each other.
func (w *Writer) Append(entry Entry) error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	buf := bufio.NewWriter(f)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(entry); err != nil {
		return fmt.Errorf("failed to encode journal entry: %w", err)
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush journal: %w", err)
	}
	return nil
}

// Tail returns up to n of the most recent entries, oldest first.
// Malformed lines are skipped; a journal corrupted in one spot still
// yields everything around it.
func (w *Writer) Tail(n int) ([]Entry, error) {
	f, err := os.Open(w.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

// Prune rewrites the journal keeping entries newer than the retention
// window. Lines that fail to parse are preserved as-is; retention
// never destroys data it cannot interpret. The rewrite goes through a
// temp file and rename so a crash mid-prune leaves the original
// intact.
func (w *Writer) Prune(now time.Time) error {
	f, err := os.Open(w.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	cutoff := now.AddDate(0, 0, -w.retentionDays)
	tmpPath := w.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create temp journal: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	out := bufio.NewWriter(tmp)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		var e Entry
		if err := json.Unmarshal(line, &e); err == nil && e.Timestamp.Before(cutoff) {
			continue
		}
		if _, err := out.Write(line); err != nil {
			return fmt.Errorf("failed to write temp journal: %w", err)
		}
		if err := out.WriteByte('\n'); err != nil {
			return fmt.Errorf("failed to write temp journal: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	if err := out.Flush(); err != nil {
		return fmt.Errorf("failed to flush temp journal: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp journal: %w", err)
	}

	if err := os.Rename(tmpPath, w.path); err != nil {
		return fmt.Errorf("failed to replace journal: %w", err)
	}
	return nil
}

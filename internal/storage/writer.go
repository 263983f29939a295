package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// JournalEntry is one archived call as written to the daily journal.
type JournalEntry struct {
	CallID        string
	CustomerID    int64
	InteractionID int64
	Summary       string
	SavedAt       time.Time
}

func (e JournalEntry) FormatMarkdown() string {
	return fmt.Sprintf("## %s call %s\n\n- customer: %d\n- interaction: %d\n\n%s\n",
		e.SavedAt.Format("15:04:05"), e.CallID, e.CustomerID, e.InteractionID, e.Summary)
}

// Writer appends archived calls to one markdown file per day.
type Writer struct {
	dir string
	mu  sync.Mutex
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

func (w *Writer) Append(e JournalEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", w.dir, err)
	}

	date := e.SavedAt.Format("2006-01-02")
	path := filepath.Join(w.dir, date+".md")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := fmt.Fprintln(f, e.FormatMarkdown()); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	return nil
}

func (w *Writer) CurrentPath() string {
	date := time.Now().Format("2006-01-02")
	return filepath.Join(w.dir, date+".md")
}

// Package ledger records attendance events: at most one per person per
// calendar day, written through to one CSV file per date.
package ledger

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/facegate/facegate/internal/identity"
)

// MarkResult reports the outcome of a mark attempt.
type MarkResult int

const (
	// Recorded means this was the first detection of the person today and
	// an attendance event was durably written.
	Recorded MarkResult = iota
	// AlreadyRecordedToday means an event for this person and date already
	// exists; the attempt was a no-op.
	AlreadyRecordedToday
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

// csvHeader is the stable column order of every attendance file.
var csvHeader = []string{"name", "time"}

// Record is one attendance event: who, and the time of first detection.
type Record struct {
	Name string `json:"name"`
	Time string `json:"time"`
}

// Ledger is the per-day dedup store of attendance events. The check for
// "already present today" and the insert are one atomic critical section;
// the durable append happens inside it, so a mark never reports success
// without its row on disk. A new calendar day simply has no prior entries,
// which is all the day-boundary handling there is.
type Ledger struct {
	mu      sync.Mutex
	dir     string
	day     string          // date currently cached in memory
	marked  map[string]bool // normalized names marked on day
	records []Record        // events of day, in check-in order
}

// Open creates a ledger writing one file per date under dir.
func Open(dir string) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating attendance directory: %w", err)
	}
	return &Ledger{dir: dir, marked: make(map[string]bool)}, nil
}

// filePath returns the attendance file for a date.
func (l *Ledger) filePath(date string) string {
	return filepath.Join(l.dir, "attendance_"+date+".csv")
}

// MarkPresent records the person for the date of ts, unless an event for
// that (person, date) already exists. Concurrent attempts for the same
// person and date yield exactly one Recorded. A storage failure is returned
// and nothing is committed.
func (l *Ledger) MarkPresent(name string, ts time.Time) (MarkResult, error) {
	key := identity.NormalizeName(name)
	if key == "" {
		return AlreadyRecordedToday, fmt.Errorf("empty person name")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	date := ts.Format(dateLayout)
	if err := l.rollLocked(date); err != nil {
		return AlreadyRecordedToday, err
	}

	if l.marked[key] {
		return AlreadyRecordedToday, nil
	}

	rec := Record{Name: name, Time: ts.Format(timeLayout)}
	if err := l.appendLocked(date, rec); err != nil {
		return AlreadyRecordedToday, err
	}

	l.marked[key] = true
	l.records = append(l.records, rec)
	return Recorded, nil
}

// rollLocked switches the in-memory dedup window to date, replaying that
// date's file so dedup survives process restarts.
func (l *Ledger) rollLocked(date string) error {
	if l.day == date {
		return nil
	}

	records, err := l.read(date)
	if err != nil {
		return err
	}

	l.day = date
	l.records = records
	l.marked = make(map[string]bool, len(records))
	for _, rec := range records {
		l.marked[identity.NormalizeName(rec.Name)] = true
	}
	return nil
}

// appendLocked durably appends one event row, creating the file with its
// header on first write of the day.
func (l *Ledger) appendLocked(date string, rec Record) error {
	path := l.filePath(date)
	_, statErr := os.Stat(path)
	newFile := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("opening attendance file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if newFile {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("writing attendance header: %w", err)
		}
	}
	if err := w.Write([]string{rec.Name, rec.Time}); err != nil {
		return fmt.Errorf("writing attendance record: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing attendance record: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing attendance file: %w", err)
	}
	return nil
}

// read loads a date's events from disk, in check-in order. A missing file
// means no events.
func (l *Ledger) read(date string) ([]Record, error) {
	f, err := os.Open(l.filePath(date))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening attendance file: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing attendance file: %w", err)
	}

	var records []Record
	for i, row := range rows {
		if i == 0 || len(row) < 2 { // skip header
			continue
		}
		records = append(records, Record{Name: row[0], Time: row[1]})
	}
	return records, nil
}

// Today returns today's events ordered by check-in time ascending.
func (l *Ledger) Today() ([]Record, error) {
	return l.Records(time.Now().Format(dateLayout))
}

// Records returns the events of a date ordered by check-in time ascending.
// Dates other than the cached day are served from disk.
func (l *Ledger) Records(date string) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.day == date {
		out := make([]Record, len(l.records))
		copy(out, l.records)
		return out, nil
	}
	return l.read(date)
}

// Export serializes a date's events as CSV with the stable name,time
// header, one row per event.
func (l *Ledger) Export(date string) ([]byte, error) {
	records, err := l.Records(date)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("writing export header: %w", err)
	}
	for _, rec := range records {
		if err := w.Write([]string{rec.Name, rec.Time}); err != nil {
			return nil, fmt.Errorf("writing export record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing export: %w", err)
	}
	return buf.Bytes(), nil
}

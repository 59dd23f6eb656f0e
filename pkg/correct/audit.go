package correct

import (
	"encoding/csv"
	"io"
	"strconv"
	"sync"
)

// Entry is one line of the correction audit log.
type Entry struct {
	Row       int       `json:"row"`
	Field     FieldKind `json:"field"`
	Original  string    `json:"original"`
	Corrected string    `json:"corrected"`
	Applied   bool      `json:"applied"`
	Warning   string    `json:"warning,omitempty"`
}

// Audit collects correction attempts for one request. The log is an output
// artifact only; nothing reads it back to make decisions.
type Audit struct {
	mu      sync.Mutex
	entries []Entry
}

// Record appends the outcome of a correction. Untouched values without a warning are skipped.
func (a *Audit) Record(row int, kind FieldKind, original string, res Result) {
	if !res.Applied && res.Warning == "" {
		return
	}
	a.mu.Lock()
	a.entries = append(a.entries, Entry{
		Row:       row,
		Field:     kind,
		Original:  original,
		Corrected: res.Text,
		Applied:   res.Applied,
		Warning:   res.Warning,
	})
	a.mu.Unlock()
}

// Entries returns a copy of the log in recording order.
func (a *Audit) Entries() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// WriteCSV writes the log as a table for later inspection.
func (a *Audit) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Row", "Field", "Original", "Corrected", "Applied", "Warning"}); err != nil {
		return err
	}
	for _, e := range a.Entries() {
		rec := []string{strconv.Itoa(e.Row), string(e.Field), e.Original, e.Corrected, strconv.FormatBool(e.Applied), e.Warning}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

package link

/*------------------------------------------------------------------
 *
 * Purpose: Save a diagnostic trail of every frame absorbed, emitted,
 *	or dropped, to CSV for easy reading and later processing.
 *
 * Description: One file per day, named with the current date, created
 *	under dir. An empty dir disables the feature entirely — nothing is
 *	opened, and every write becomes a no-op.
 *
 *------------------------------------------------------------------*/

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lestrrat-go/strftime"
)

var sessionLogPattern = strftime.MustNew("sonicbridge-%Y%m%d.csv")

// SessionLog appends one CSV row per notable frame event. It rotates to
// a new file automatically when the date changes, and is safe for
// concurrent use from the session loop and any background sweep
// goroutine.
type SessionLog struct {
	mu       sync.Mutex
	dir      string
	openName string
	fp       *os.File
	w        *csv.Writer
}

// NewSessionLog builds a session log rooted at dir. Passing an empty
// dir disables the feature: Write becomes a no-op and no file is ever
// created, mirroring the "empty string disables feature" convention
// used throughout this codebase's config loading.
func NewSessionLog(dir string) *SessionLog {
	return &SessionLog{dir: dir}
}

// Event identifies the kind of row being recorded.
type Event string

const (
	EventAbsorbed   Event = "absorbed"
	EventReassembled Event = "reassembled"
	EventDropped    Event = "dropped"
	EventSent       Event = "sent"
	EventRetxSent   Event = "retx_sent"
	EventRetxRecv   Event = "retx_recv"
)

// Write appends one row. now is injectable so tests can supply a fixed
// timestamp instead of depending on wall-clock time.
func (sl *SessionLog) Write(now time.Time, id string, ev Event, ci, cc, bytes int, detail string) error {
	if sl.dir == "" {
		return nil
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	if err := sl.rotate(now); err != nil {
		return err
	}

	row := []string{
		id,
		fmt.Sprintf("%d", now.Unix()),
		now.UTC().Format(time.RFC3339),
		string(ev),
		fmt.Sprintf("%d", ci),
		fmt.Sprintf("%d", cc),
		fmt.Sprintf("%d", bytes),
		detail,
	}

	if err := sl.w.Write(row); err != nil {
		return fmt.Errorf("session log write: %w", err)
	}

	sl.w.Flush()

	return sl.w.Error()
}

// rotate opens (or reopens, on a date change) the file for now. Caller
// must hold sl.mu.
func (sl *SessionLog) rotate(now time.Time) error {
	name := sessionLogPattern.FormatString(now.UTC())
	if name == sl.openName && sl.fp != nil {
		return nil
	}

	if sl.fp != nil {
		sl.w.Flush()
		sl.fp.Close()
	}

	if _, err := os.Stat(sl.dir); err != nil {
		if mkErr := os.MkdirAll(sl.dir, 0o755); mkErr != nil {
			return fmt.Errorf("session log dir %q: %w", sl.dir, mkErr)
		}
	}

	full := filepath.Join(sl.dir, name)

	needHeader := true
	if st, err := os.Stat(full); err == nil && st.Size() > 0 {
		needHeader = false
	}

	fp, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("session log open %q: %w", full, err)
	}

	sl.fp = fp
	sl.openName = name
	sl.w = csv.NewWriter(fp)

	if needHeader {
		_ = sl.w.Write([]string{"id", "utime", "isotime", "event", "ci", "cc", "bytes", "detail"})
		sl.w.Flush()
	}

	return nil
}

// Close flushes and closes the currently open file, if any.
func (sl *SessionLog) Close() error {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.fp == nil {
		return nil
	}

	sl.w.Flush()
	err := sl.fp.Close()
	sl.fp = nil

	return err
}

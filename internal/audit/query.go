package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/tavnit/docshield/pkg/constants"
)

// Filter narrows a trail query. Zero values match everything.
type Filter struct {
	Since    time.Time
	Until    time.Time
	Action   constants.AuditAction
	Level    constants.AuditLevel
	ClientID string
}

func (f Filter) matches(e Entry) bool {
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Level != "" && e.Level != f.Level {
		return false
	}
	if f.ClientID != "" && e.ClientID != f.ClientID {
		return false
	}
	return true
}

// Query flushes pending entries and scans the active file plus all archives.
// Lines that fail to parse are skipped so one corrupt write cannot hide the
// rest of the trail. Results are ordered by timestamp.
func (l *Logger) Query(filter Filter) ([]Entry, error) {
	if err := l.Flush(); err != nil {
		return nil, err
	}

	files, err := filepath.Glob(filepath.Join(l.cfg.LogDir, "audit-*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("audit: list archives: %w", err)
	}
	files = append(files, filepath.Join(l.cfg.LogDir, constants.AuditActiveFileName))

	var out []Entry
	for _, path := range files {
		entries, err := scanFile(path, filter)
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func scanFile(path string, filter Filter) ([]Entry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	var out []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		if filter.matches(e) {
			out = append(out, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan %s: %w", filepath.Base(path), err)
	}
	return out, nil
}

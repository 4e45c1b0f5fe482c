package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tavnit/docshield/pkg/clock"
	"github.com/tavnit/docshield/pkg/constants"
	"github.com/tavnit/docshield/pkg/errors"
	"github.com/tavnit/docshield/pkg/logger"
)

// archiveTimeLayout names rotated files, e.g. audit-20250601-143000.jsonl.
const archiveTimeLayout = "20060102-150405"

// Config controls the audit trail destination and lifecycle.
type Config struct {
	// LogDir is the directory holding the active file, archives, and the
	// machine identifier.
	LogDir string `mapstructure:"log_dir"`

	// MaxFileSize is the rotation threshold for the active file in bytes.
	MaxFileSize int64 `mapstructure:"max_file_size"`

	// RetentionDays is how long rotated archives are kept.
	RetentionDays int `mapstructure:"retention_days"`

	// BufferSize is the number of entries buffered before an automatic flush.
	BufferSize int `mapstructure:"buffer_size"`
}

func (c Config) withDefaults() Config {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = constants.DefaultAuditMaxFileSize
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = constants.DefaultAuditRetentionDays
	}
	if c.BufferSize <= 0 {
		c.BufferSize = constants.DefaultAuditBufferSize
	}
	return c
}

// Logger buffers audit entries and appends them as JSONL. All methods are safe
// for concurrent use.
type Logger struct {
	mu        sync.Mutex
	cfg       Config
	clock     clock.Clock
	log       logger.Logger
	machineID string
	buffer    []Entry
	closed    bool
}

// NewLogger creates the trail directory if needed and loads the machine
// identifier. A nil clk selects the system clock.
func NewLogger(cfg Config, clk clock.Clock, log logger.Logger) (*Logger, error) {
	cfg = cfg.withDefaults()
	if clk == nil {
		clk = clock.NewSystem()
	}
	if log == nil {
		log = logger.NewNoopLogger()
	}
	if cfg.LogDir == "" {
		return nil, fmt.Errorf("audit: log directory is required")
	}
	if err := os.MkdirAll(cfg.LogDir, 0o700); err != nil {
		return nil, fmt.Errorf("audit: create log directory: %w", err)
	}

	machineID, err := loadOrCreateMachineID(cfg.LogDir)
	if err != nil {
		return nil, fmt.Errorf("audit: machine identifier: %w", err)
	}

	return &Logger{
		cfg:       cfg,
		clock:     clk,
		log:       log,
		machineID: machineID,
		buffer:    make([]Entry, 0, cfg.BufferSize),
	}, nil
}

// MachineID returns the anonymous installation identifier stamped on entries.
func (l *Logger) MachineID() string {
	return l.machineID
}

// Log buffers one entry, stamping the timestamp and machine identifier. The
// buffer is flushed to disk once it reaches the configured size.
func (l *Logger) Log(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("audit: logger is closed")
	}

	entry.Timestamp = l.clock.Now().UTC()
	entry.MachineID = l.machineID
	l.buffer = append(l.buffer, entry)

	if len(l.buffer) >= l.cfg.BufferSize {
		return l.flushLocked()
	}
	return nil
}

// Info records an informational event.
func (l *Logger) Info(action constants.AuditAction, message string, metadata map[string]interface{}) error {
	return l.Log(Entry{Level: constants.AuditLevelInfo, Action: action, Message: message, Metadata: metadata})
}

// Warn records a recoverable anomaly.
func (l *Logger) Warn(action constants.AuditAction, message string, metadata map[string]interface{}) error {
	return l.Log(Entry{Level: constants.AuditLevelWarn, Action: action, Message: message, Metadata: metadata})
}

// Error records a pipeline failure.
func (l *Logger) Error(action constants.AuditAction, message string, metadata map[string]interface{}) error {
	return l.Log(Entry{Level: constants.AuditLevelError, Action: action, Message: message, Metadata: metadata})
}

// Security records a blocked or rewritten request.
func (l *Logger) Security(action constants.AuditAction, message string, metadata map[string]interface{}) error {
	return l.Log(Entry{Level: constants.AuditLevelSecurity, Action: action, Message: message, Metadata: metadata})
}

// LogDocumentAccess records access to a document. Only the SHA-256 of the
// content enters the trail.
func (l *Logger) LogDocumentAccess(userID, clientID string, content []byte) error {
	sum := sha256.Sum256(content)
	return l.Log(Entry{
		Level:        constants.AuditLevelInfo,
		Action:       constants.ActionDocumentAccess,
		Message:      "document accessed",
		DocumentHash: hex.EncodeToString(sum[:]),
		UserID:       userID,
		ClientID:     clientID,
	})
}

// LogAuthAttempt records an authentication attempt.
func (l *Logger) LogAuthAttempt(userID, ipAddress string, success bool) error {
	level := constants.AuditLevelInfo
	message := "authentication succeeded"
	if !success {
		level = constants.AuditLevelWarn
		message = "authentication failed"
	}
	return l.Log(Entry{
		Level:     level,
		Action:    constants.ActionAuthAttempt,
		Message:   message,
		UserID:    userID,
		IPAddress: ipAddress,
		Success:   &success,
	})
}

// LogRateLimitViolation records a throttled client.
func (l *Logger) LogRateLimitViolation(clientID, message string) error {
	return l.Log(Entry{
		Level:    constants.AuditLevelWarn,
		Action:   constants.ActionRateLimitViolation,
		Message:  message,
		ClientID: clientID,
	})
}

// LogSecurityViolation records a request rejected by a defense layer.
func (l *Logger) LogSecurityViolation(clientID string, se *errors.SecurityError) error {
	return l.Log(Entry{
		Level:    constants.AuditLevelSecurity,
		Action:   constants.ActionSecurityViolation,
		Message:  se.Message,
		ClientID: clientID,
		Metadata: map[string]interface{}{
			"code":  string(se.Code),
			"layer": string(se.Layer),
		},
	})
}

// Flush writes all buffered entries to the active file.
func (l *Logger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked()
}

// Close flushes and stops accepting entries.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	err := l.flushLocked()
	l.closed = true
	return err
}

func (l *Logger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}

	var b strings.Builder
	for _, entry := range l.buffer {
		b.Write(marshalEntry(entry))
		b.WriteByte('\n')
	}

	path := filepath.Join(l.cfg.LogDir, constants.AuditActiveFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("audit: open active file: %w", err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return fmt.Errorf("audit: append entries: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("audit: close active file: %w", err)
	}

	l.buffer = l.buffer[:0]
	return l.rotateIfNeeded(path)
}

// marshalEntry serializes one entry, substituting a marker when the caller
// supplied metadata that does not serialize (channels, cycles).
func marshalEntry(entry Entry) []byte {
	line, err := json.Marshal(entry)
	if err == nil {
		return line
	}
	entry.Metadata = map[string]interface{}{"_error": "metadata not serializable"}
	line, err = json.Marshal(entry)
	if err != nil {
		// Only metadata can be caller-controlled, so this is unreachable.
		return []byte(`{"_error":"entry not serializable"}`)
	}
	return line
}

// rotateIfNeeded archives the active file once it crosses the size threshold.
func (l *Logger) rotateIfNeeded(path string) error {
	info, err := os.Stat(path)
	if err != nil || info.Size() < l.cfg.MaxFileSize {
		return nil
	}

	stamp := l.clock.Now().UTC().Format(archiveTimeLayout)
	archive := filepath.Join(l.cfg.LogDir, fmt.Sprintf("audit-%s.jsonl", stamp))
	// Collisions happen when more than one rotation lands in one second.
	for i := 1; ; i++ {
		if _, statErr := os.Stat(archive); os.IsNotExist(statErr) {
			break
		}
		archive = filepath.Join(l.cfg.LogDir, fmt.Sprintf("audit-%s-%d.jsonl", stamp, i))
	}
	if err := os.Rename(path, archive); err != nil {
		return fmt.Errorf("audit: rotate active file: %w", err)
	}
	l.log.Info(context.Background(), "audit file rotated", logger.Fields{
		"archive":    filepath.Base(archive),
		"size_bytes": info.Size(),
	})
	return nil
}

// Cleanup deletes archives whose rotation timestamp is older than the
// retention window. The active file is never removed.
func (l *Logger) Cleanup() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.clock.Now().UTC().AddDate(0, 0, -l.cfg.RetentionDays)

	matches, err := filepath.Glob(filepath.Join(l.cfg.LogDir, "audit-*.jsonl"))
	if err != nil {
		return 0, fmt.Errorf("audit: list archives: %w", err)
	}

	removed := 0
	for _, path := range matches {
		stamp, ok := archiveStamp(filepath.Base(path))
		if !ok {
			continue
		}
		if stamp.Before(cutoff) {
			if err := os.Remove(path); err != nil {
				return removed, fmt.Errorf("audit: remove archive: %w", err)
			}
			removed++
		}
	}
	return removed, nil
}

// archiveStamp parses the rotation time out of an archive file name.
func archiveStamp(name string) (time.Time, bool) {
	name = strings.TrimPrefix(name, "audit-")
	name = strings.TrimSuffix(name, ".jsonl")
	// Drop a collision suffix if present.
	if len(name) > len(archiveTimeLayout) {
		name = name[:len(archiveTimeLayout)]
	}
	ts, err := time.Parse(archiveTimeLayout, name)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

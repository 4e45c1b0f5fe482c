// Package audit writes an append-only JSONL trail of security decisions.
// Entries never contain document content; documents are referenced by SHA-256
// hash only. Writes are buffered and the active file rotates by size.
package audit

import (
	"time"

	"github.com/tavnit/docshield/pkg/constants"
)

// Entry is one line of the audit trail.
type Entry struct {
	Timestamp    time.Time              `json:"timestamp"`
	Level        constants.AuditLevel   `json:"level"`
	Action       constants.AuditAction  `json:"action"`
	Message      string                 `json:"message"`
	MachineID    string                 `json:"machineId"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	DocumentHash string                 `json:"documentHash,omitempty"`
	UserID       string                 `json:"userId,omitempty"`
	IPAddress    string                 `json:"ipAddress,omitempty"`
	Success      *bool                  `json:"success,omitempty"`
	ClientID     string                 `json:"clientId,omitempty"`
}

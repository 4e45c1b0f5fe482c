package audit

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/tavnit/docshield/pkg/constants"
)

// loadOrCreateMachineID returns the anonymous installation identifier, creating
// and persisting a fresh one on first run. The identifier carries no host
// information; it only lets operators correlate entries from one installation.
func loadOrCreateMachineID(logDir string) (string, error) {
	path := filepath.Join(logDir, constants.MachineIDFileName)

	if raw, err := os.ReadFile(path); err == nil {
		id := strings.TrimSpace(string(raw))
		if _, parseErr := uuid.Parse(id); parseErr == nil {
			return id, nil
		}
		// A corrupt file is replaced rather than failing startup.
	}

	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", err
	}
	return id, nil
}

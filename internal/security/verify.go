package security

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// ManifestVerifier compares template digests against a trusted manifest: a
// JSON object mapping canonical template paths to hex SHA-256 digests.
// Computed digests are cached with a TTL so hot templates are not re-hashed
// on every request; an updated template is picked up after expiry.
type ManifestVerifier struct {
	manifest map[string]string
	cache    *gocache.Cache
}

// NewManifestVerifier loads the manifest file.
func NewManifestVerifier(manifestPath string, cacheTTL time.Duration) (*ManifestVerifier, error) {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("security: read manifest: %w", err)
	}
	var manifest map[string]string
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("security: parse manifest: %w", err)
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &ManifestVerifier{
		manifest: manifest,
		cache:    gocache.New(cacheTTL, 2*cacheTTL),
	}, nil
}

// Verify implements TemplateVerifier. Templates absent from the manifest are
// untrusted and fail verification.
func (v *ManifestVerifier) Verify(path string) (bool, error) {
	expected, ok := v.manifest[path]
	if !ok {
		return false, nil
	}

	actual, err := v.digest(path)
	if err != nil {
		return false, err
	}
	return actual == expected, nil
}

func (v *ManifestVerifier) digest(path string) (string, error) {
	if cached, ok := v.cache.Get(path); ok {
		return cached.(string), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("security: open template: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("security: hash template: %w", err)
	}
	sum := hex.EncodeToString(h.Sum(nil))
	v.cache.SetDefault(path, sum)
	return sum, nil
}

package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretmanagerpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// CollectorSecret is the JSON document stored for the collector service.
// A secret holding a bare token is read as the API key.
type CollectorSecret struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url,omitempty"`
}

// cacheEntry represents a cached secret with expiration
type cacheEntry struct {
	secret    *CollectorSecret
	expiresAt time.Time
}

type accessFunc func(ctx context.Context, name string) ([]byte, error)

// GCPSecretManager reads collector credentials from Google Cloud Secret Manager
type GCPSecretManager struct {
	client    *secretmanager.Client
	access    accessFunc
	projectID string
	cache     map[string]*cacheEntry
	cacheMu   sync.RWMutex
	cacheTTL  time.Duration
}

// NewGCPSecretManager creates a new GCP Secret Manager client
func NewGCPSecretManager(ctx context.Context, projectID string) (*GCPSecretManager, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}

	sm := newManager(projectID, func(ctx context.Context, name string) ([]byte, error) {
		result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
		if err != nil {
			return nil, err
		}
		return result.Payload.Data, nil
	})
	sm.client = client
	return sm, nil
}

func newManager(projectID string, access accessFunc) *GCPSecretManager {
	return &GCPSecretManager{
		access:    access,
		projectID: projectID,
		cache:     make(map[string]*cacheEntry),
		cacheTTL:  5 * time.Minute,
	}
}

// Close closes the Secret Manager client
func (sm *GCPSecretManager) Close() error {
	if sm.client != nil {
		return sm.client.Close()
	}
	return nil
}

// BuildSecretName constructs the full resource name of a secret
// Format: projects/{project}/secrets/{secret_id}
func (sm *GCPSecretManager) BuildSecretName(secretID string) string {
	return fmt.Sprintf("projects/%s/secrets/%s", sm.projectID, sanitizeSecretID(secretID))
}

// GetCollectorSecret retrieves the latest version of a collector secret
func (sm *GCPSecretManager) GetCollectorSecret(ctx context.Context, secretID string) (*CollectorSecret, error) {
	secretName := sm.BuildSecretName(secretID)

	// Check cache first
	sm.cacheMu.RLock()
	if entry, ok := sm.cache[secretName]; ok && time.Now().Before(entry.expiresAt) {
		sm.cacheMu.RUnlock()
		return entry.secret, nil
	}
	sm.cacheMu.RUnlock()

	data, err := sm.access(ctx, secretName+"/versions/latest")
	if err != nil {
		return nil, fmt.Errorf("failed to access secret: %w", err)
	}

	secret, err := parseCollectorSecret(data)
	if err != nil {
		return nil, err
	}

	// Cache the result
	sm.cacheMu.Lock()
	sm.cache[secretName] = &cacheEntry{
		secret:    secret,
		expiresAt: time.Now().Add(sm.cacheTTL),
	}
	sm.cacheMu.Unlock()

	return secret, nil
}

// InvalidateCache removes a secret from the cache
func (sm *GCPSecretManager) InvalidateCache(secretID string) {
	sm.cacheMu.Lock()
	delete(sm.cache, sm.BuildSecretName(secretID))
	sm.cacheMu.Unlock()
}

func parseCollectorSecret(data []byte) (*CollectorSecret, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("secret payload is empty")
	}
	if !strings.HasPrefix(trimmed, "{") {
		return &CollectorSecret{APIKey: trimmed}, nil
	}

	var secret CollectorSecret
	if err := json.Unmarshal([]byte(trimmed), &secret); err != nil {
		return nil, fmt.Errorf("failed to unmarshal secret: %w", err)
	}
	if secret.APIKey == "" {
		return nil, fmt.Errorf("secret has no api_key")
	}
	return &secret, nil
}

// sanitizeSecretID removes or replaces invalid characters for GCP secret IDs
// Secret IDs can only contain alphanumeric characters, hyphens, and underscores
func sanitizeSecretID(input string) string {
	var result strings.Builder
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		} else {
			result.WriteRune('-')
		}
	}
	return result.String()
}

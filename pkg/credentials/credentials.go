// Package credentials stores and resolves the API keys of generation
// backends.
package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/recall/pkg/dotdir"
)

const (
	credentialsFile = "credentials.toml"

	currentVersion = 0
)

var (
	// ErrUnsupportedProvider is returned for providers without a backend.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrNoCredential is returned when removing a key that is not stored.
	ErrNoCredential = errors.New("no stored credential")
)

var providerEnvVars = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

// Manager reads and writes credentials.toml in a .recall/ directory.
type Manager struct {
	targetPath string
	now        func() time.Time
}

// NewManager creates a Manager for the .recall/ directory resolved from
// override (see dotdir.Manager.Target).
func NewManager(override string) (*Manager, error) {
	dir, err := dotdir.NewManager().Target(override)
	if err != nil {
		return nil, err
	}

	return &Manager{
		targetPath: filepath.Join(dir, credentialsFile),
		now:        time.Now,
	}, nil
}

// Load reads credentials.toml. A missing file yields empty Credentials.
func (m *Manager) Load() (*Credentials, error) {
	creds := &Credentials{Version: currentVersion}

	data, err := os.ReadFile(m.targetPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading credentials: %w", err)
	default:
		if err := toml.Unmarshal(data, creds); err != nil {
			return nil, fmt.Errorf("parsing credentials: %w", err)
		}
	}

	if creds.Providers == nil {
		creds.Providers = make(map[string]ProviderCredential)
	}
	return creds, nil
}

// Save writes creds with owner-only permissions.
func (m *Manager) Save(creds *Credentials) error {
	if creds == nil {
		return errors.New("cannot save nil credentials")
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(creds); err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	if err := os.WriteFile(m.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	return nil
}

// update applies fn to the stored credentials and saves the result.
func (m *Manager) update(fn func(*Credentials) error) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}
	if err := fn(creds); err != nil {
		return err
	}
	return m.Save(creds)
}

// SetKey stores key for provider, replacing any previous key.
func (m *Manager) SetKey(provider, key string) error {
	if !IsSupportedProvider(provider) {
		return fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("API key cannot be empty")
	}

	return m.update(func(c *Credentials) error {
		c.Providers[provider] = ProviderCredential{APIKey: key, StoredAt: m.now().UTC()}
		return nil
	})
}

// GetKey returns the stored key for provider, or "" when none is stored.
func (m *Manager) GetKey(provider string) (string, error) {
	creds, err := m.Load()
	if err != nil {
		return "", err
	}
	return creds.Providers[provider].APIKey, nil
}

// RemoveKey deletes the stored key for provider.
func (m *Manager) RemoveKey(provider string) error {
	return m.update(func(c *Credentials) error {
		if _, ok := c.Providers[provider]; !ok {
			return fmt.Errorf("%w for %q", ErrNoCredential, provider)
		}
		delete(c.Providers, provider)
		return nil
	})
}

// ListProviders returns the providers with stored keys, sorted by name.
func (m *Manager) ListProviders() ([]string, error) {
	creds, err := m.Load()
	if err != nil {
		return nil, err
	}
	return slices.Sorted(maps.Keys(creds.Providers)), nil
}

// GetTarget returns the path of credentials.toml.
func (m *Manager) GetTarget() string {
	return m.targetPath
}

// EnvVarForProvider returns the environment variable consulted for
// provider, or "" for unknown providers.
func EnvVarForProvider(provider string) string {
	return providerEnvVars[provider]
}

// SupportedProviders returns the providers that have generation backends.
func SupportedProviders() []string {
	return []string{"openai", "anthropic"}
}

func IsSupportedProvider(provider string) bool {
	return slices.Contains(SupportedProviders(), provider)
}

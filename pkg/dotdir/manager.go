// Package dotdir manages the .recall/ and ~/.recall directories.
//
// The directory holds config.toml, credentials.toml and the session state
// used by "recall ask" to carry a conversation across invocations.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	dirName = ".recall"

	// HomeEnv names an environment variable that replaces ~/.recall and
	// takes precedence over a local .recall/ directory.
	HomeEnv = "RECALL_HOME"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the absolute path of the recall directory, creating it
// when missing. The first match wins:
//  1. overrideDir
//  2. $RECALL_HOME
//  3. ./.recall when it already exists
//  4. ~/.recall
func (m *Manager) Target(overrideDir string) (string, error) {
	dir, err := m.resolve(overrideDir)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating recall directory %s: %w", dir, err)
	}
	return filepath.Abs(dir)
}

func (m *Manager) resolve(overrideDir string) (string, error) {
	if overrideDir != "" {
		return overrideDir, nil
	}
	if env := os.Getenv(HomeEnv); env != "" {
		return env, nil
	}

	if cwd, err := os.Getwd(); err == nil {
		local := filepath.Join(cwd, dirName)
		if info, err := os.Stat(local); err == nil && info.IsDir() {
			return local, nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, dirName), nil
}

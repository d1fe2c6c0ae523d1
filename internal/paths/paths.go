package paths

import (
	"os"
	"path/filepath"
)

// DefaultDataDir returns ~/.crmd, the default daemon data directory.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".crmd")
}

// DBPath returns the app-owned crm.db path under the data dir.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, "crm.db")
}

// SessionDir returns the per-session credential directory.
func SessionDir(dataDir, sessionID string) string {
	return filepath.Join(dataDir, "sessions", sessionID)
}

// CredsDBPath returns the whatsmeow credential store path for a session.
func CredsDBPath(dataDir, sessionID string) string {
	return filepath.Join(SessionDir(dataDir, sessionID), "creds.db")
}

// LogDir returns the daemon log directory.
func LogDir(dataDir string) string {
	return filepath.Join(dataDir, "logs")
}

// LogPath returns the daemon log file path.
func LogPath(dataDir string) string {
	return filepath.Join(LogDir(dataDir), "crmd.log")
}

// ConfigPath returns the default config file path.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config.toml")
}

// EnsureDataDir creates the data directory tree with proper permissions.
func EnsureDataDir(dataDir string) error {
	dirs := []string{
		dataDir,
		filepath.Join(dataDir, "sessions"),
		LogDir(dataDir),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}

// EnsureSessionDir creates the credential directory for a session.
func EnsureSessionDir(dataDir, sessionID string) error {
	return os.MkdirAll(SessionDir(dataDir, sessionID), 0700)
}

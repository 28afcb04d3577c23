// Package paths resolves where pingmon keeps its configuration, data and socket.
package paths

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"github.com/wellsgz/pingmon/internal/config"
)

// Paths holds the resolved paths for config, data, and socket
type Paths struct {
	ConfigFile string
	DataDir    string
	SocketPath string
}

// DefaultPaths returns the default paths based on current user
// Root user: /etc/pingmon/, /var/lib/pingmon/, /var/run/pingmon/
// Non-root: ~/.pingmon/config/, ~/.pingmon/data/, ~/.pingmon/
func DefaultPaths() (*Paths, error) {
	if os.Geteuid() == 0 {
		return &Paths{
			ConfigFile: "/etc/pingmon/config.yaml",
			DataDir:    "/var/lib/pingmon",
			SocketPath: "/var/run/pingmon/pingmon.sock",
		}, nil
	}

	usr, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}

	return ForBase(filepath.Join(usr.HomeDir, ".pingmon")), nil
}

// ForBase returns the per-user layout rooted at baseDir
func ForBase(baseDir string) *Paths {
	return &Paths{
		ConfigFile: filepath.Join(baseDir, "config", "config.yaml"),
		DataDir:    filepath.Join(baseDir, "data"),
		SocketPath: filepath.Join(baseDir, "pingmon.sock"),
	}
}

// LogDir is where the daily JSON outcome logs are written
func (p *Paths) LogDir() string {
	return filepath.Join(p.DataDir, "logs")
}

// SQLitePath is the default outcome database
func (p *Paths) SQLitePath() string {
	return filepath.Join(p.DataDir, "pingmon.db")
}

// RRDDir is the default directory for round robin archives
func (p *Paths) RRDDir() string {
	return filepath.Join(p.DataDir, "rrd")
}

// EnsureDirectories creates all necessary directories if they don't exist
func (p *Paths) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(p.ConfigFile),
		p.DataDir,
		p.LogDir(),
		filepath.Dir(p.SocketPath),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Resolve fills empty location settings in cfg with this layout's defaults
func (p *Paths) Resolve(cfg *config.Config) {
	if cfg.Server.Socket == "" {
		cfg.Server.Socket = p.SocketPath
	}
	if cfg.Archive.LogDir == "" {
		cfg.Archive.LogDir = p.LogDir()
	}
	if cfg.Archive.RRD.Dir == "" {
		cfg.Archive.RRD.Dir = p.RRDDir()
	}
}

// ConfigExists checks if the config file exists
func (p *Paths) ConfigExists() bool {
	_, err := os.Stat(p.ConfigFile)
	return err == nil
}

// SocketExists checks if the socket file exists
func (p *Paths) SocketExists() bool {
	_, err := os.Stat(p.SocketPath)
	return err == nil
}

// String returns a human-readable representation of the paths
func (p *Paths) String() string {
	return fmt.Sprintf("Config: %s, Data: %s, Socket: %s", p.ConfigFile, p.DataDir, p.SocketPath)
}

// CreateDefaultConfig writes the default configuration with the default targets.
// Returns true if a new config was created, false if it already existed.
func (p *Paths) CreateDefaultConfig() (bool, error) {
	if p.ConfigExists() {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(p.ConfigFile), 0755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := config.Save(config.Default(), p.ConfigFile); err != nil {
		return false, err
	}
	return true, nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wellsgz/pingmon/internal/config"
	"github.com/wellsgz/pingmon/internal/logging"
	"github.com/wellsgz/pingmon/internal/paths"
)

var (
	cfgFile    string
	socketFlag string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "pingmon",
	Short: "Continuous latency and packet loss monitor",
	Long: `pingmon probes a list of targets on a fixed interval and keeps running
statistics (min, max, average, jitter, loss) for each of them.

Run 'pingmon serve' to start the monitor with its HTTP API and control
socket, then use 'pingmon tui' or 'pingmon ctl' to watch and control it.`,
	SilenceUsage:      true,
	PersistentPreRunE: applyLogFlags,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default depends on user, see 'pingmon init')")
	rootCmd.PersistentFlags().StringVar(&socketFlag, "socket", "", "control socket path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json")
}

// applyLogFlags applies the logging flags; they win over the config file
func applyLogFlags(cmd *cobra.Command, args []string) error {
	if logFormat != "" {
		if logFormat != string(logging.FormatText) && logFormat != string(logging.FormatJSON) {
			return fmt.Errorf("--log-format must be 'text' or 'json', got %q", logFormat)
		}
		logging.SetFormat(logging.Format(logFormat))
	}
	if logLevel != "" {
		return logging.SetLevel(logLevel)
	}
	return nil
}

// resolvePaths returns the default layout with the --config override applied
func resolvePaths() (*paths.Paths, error) {
	p, err := paths.DefaultPaths()
	if err != nil {
		return nil, err
	}
	if cfgFile != "" {
		p.ConfigFile = cfgFile
	}
	return p, nil
}

// loadConfig reads the config file, creating the default one on first run
func loadConfig() (*config.Config, *paths.Paths, error) {
	p, err := resolvePaths()
	if err != nil {
		return nil, nil, err
	}
	if _, err := p.CreateDefaultConfig(); err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(p.ConfigFile)
	if err != nil {
		return nil, nil, err
	}
	p.Resolve(cfg)
	return cfg, p, nil
}

// resolveSocket finds the control socket: flag, then config file, then default
func resolveSocket() (string, error) {
	if socketFlag != "" {
		return socketFlag, nil
	}

	p, err := resolvePaths()
	if err != nil {
		return "", err
	}
	if p.ConfigExists() {
		if cfg, err := config.Load(p.ConfigFile); err == nil && cfg.Server.Socket != "" {
			return cfg.Server.Socket, nil
		}
	}
	return p.SocketPath, nil
}

// applyConfigLogging applies the config's logging settings unless flags were given
func applyConfigLogging(cfg *config.Config) error {
	if logFormat == "" {
		logging.SetFormat(logging.Format(cfg.Logging.Format))
	}
	if logLevel == "" {
		return logging.SetLevel(cfg.Logging.Level)
	}
	return nil
}

package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wellsgz/pingmon/internal/api"
	"github.com/wellsgz/pingmon/internal/config"
	"github.com/wellsgz/pingmon/internal/engine"
	"github.com/wellsgz/pingmon/internal/events"
	"github.com/wellsgz/pingmon/internal/ipc"
	"github.com/wellsgz/pingmon/internal/logging"
	"github.com/wellsgz/pingmon/internal/probe"
	"github.com/wellsgz/pingmon/internal/storage"
	"github.com/wellsgz/pingmon/internal/tui"
)

const shutdownTimeout = 5 * time.Second

var (
	serveAddr      string
	serveTUI       bool
	serveAutostart bool
	serveNoWatch   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitor with its HTTP API and control socket",
	Long: `Run the monitor in the foreground.

The HTTP API and WebSocket stream listen on server.address, the control
socket used by 'pingmon tui' and 'pingmon ctl' on server.socket. Outcomes
are appended to the daily JSON logs and, when configured, to SQLite and
RRD archives. Edits to the config file are applied without a restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (overrides server.address)")
	serveCmd.Flags().BoolVar(&serveTUI, "tui", false, "show the TUI in this terminal")
	serveCmd.Flags().BoolVar(&serveAutostart, "autostart", false, "start monitoring immediately")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "do not reload the config file on change")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logging.For("Serve")

	p, err := resolvePaths()
	if err != nil {
		return err
	}
	if created, err := p.CreateDefaultConfig(); err != nil {
		return err
	} else if created {
		log.WithField("path", p.ConfigFile).Info("Created default configuration")
	}
	if err := p.EnsureDirectories(); err != nil {
		return err
	}

	// Reloads are handed to the errgroup so they never race engine creation
	reloads := make(chan *config.Config, 1)
	onChange := func(next *config.Config) {
		p.Resolve(next)
		if serveAddr != "" {
			next.Server.Address = serveAddr
		}
		select {
		case <-reloads: // replace a reload nobody picked up yet
		default:
		}
		reloads <- next
	}
	onError := func(err error) {
		log.WithError(err).Warn("Ignoring invalid configuration")
	}

	var cfg *config.Config
	if serveNoWatch {
		cfg, err = config.Load(p.ConfigFile)
	} else {
		cfg, err = config.Watch(p.ConfigFile, onChange, onError)
	}
	if err != nil {
		return err
	}
	p.Resolve(cfg)

	if serveAddr != "" {
		cfg.Server.Address = serveAddr
	}
	if err := applyConfigLogging(cfg); err != nil {
		return err
	}
	if serveTUI {
		// Log lines would tear the full screen UI apart
		logFile, err := os.OpenFile(filepath.Join(p.DataDir, "pingmon.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer logFile.Close()
		logging.SetWriter(logFile)
	}

	prober, err := probe.New(cfg.Monitor.Prober, cfg.Monitor.TCPPort)
	if err != nil {
		return err
	}

	recorder, archive, err := openRecorders(cfg)
	if err != nil {
		return err
	}

	bus := events.NewBus()
	eng := engine.New(cfg, engine.Options{
		Prober:   prober,
		Recorder: recorder,
		Sink:     bus,
		Persist:  persistTo(p.ConfigFile),
	})

	apiServer := api.NewServer(api.Options{
		Engine:  eng,
		Bus:     bus,
		Archive: archive,
		Version: version,
	})

	ipcServer := ipc.NewServer(cfg.Server.Socket, eng, bus, archive)
	if err := ipcServer.Start(); err != nil {
		eng.Close()
		recorder.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return apiServer.Start(cfg.Server.Address)
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case next := <-reloads:
				if next.Monitor.Prober != cfg.Monitor.Prober {
					log.WithField("prober", next.Monitor.Prober).Warn("Prober change takes effect after restart")
				}
				if err := eng.ApplyConfig(next); err != nil {
					log.WithError(err).Warn("Ignoring reloaded configuration")
				}
			}
		}
	})

	if serveTUI {
		g.Go(func() error {
			defer stop()
			return tui.Run(ctx, tui.NewLocalBackend(eng), cfg.Server.Address)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down")

		var errs []error
		errs = append(errs, apiServer.Shutdown(shutdownTimeout))
		errs = append(errs, ipcServer.Stop())
		eng.Close()
		bus.Close()
		errs = append(errs, recorder.Close())
		return errors.Join(errs...)
	})

	if serveAutostart || cfg.Monitor.Autostart {
		if err := eng.Start(); err != nil {
			log.WithError(err).Warn("Autostart failed")
		}
	}

	log.WithFields(logrus.Fields{
		"api":     cfg.Server.Address,
		"socket":  cfg.Server.Socket,
		"targets": len(cfg.Targets),
	}).Info("pingmon is ready")

	return g.Wait()
}

// persistTo returns a hook that writes the engine's roster and runtime
// settings back into the config file at path. Everything else in the file,
// including unresolved paths, is left as the user wrote it.
func persistTo(path string) func(*config.Config) error {
	return func(current *config.Config) error {
		onDisk, err := config.Load(path)
		if err != nil {
			return err
		}

		onDisk.Targets = current.Targets
		onDisk.Monitor.PollInterval = current.Monitor.PollInterval
		onDisk.Monitor.ProbeTimeout = current.Monitor.ProbeTimeout
		onDisk.Monitor.MaxHistorySize = current.Monitor.MaxHistorySize

		return config.Save(onDisk, path)
	}
}

// openRecorders opens every configured outcome sink. The returned querier is
// the archive history requests are answered from, or nil.
func openRecorders(cfg *config.Config) (storage.Recorder, storage.Querier, error) {
	var recorders storage.MultiRecorder
	var archive storage.Querier

	fail := func(err error) (storage.Recorder, storage.Querier, error) {
		recorders.Close()
		return nil, nil, err
	}

	if cfg.Archive.LogDir != "" {
		jl, err := storage.NewJSONLog(cfg.Archive.LogDir)
		if err != nil {
			return fail(err)
		}
		recorders = append(recorders, jl)
	}

	if cfg.Archive.SQLitePath != "" {
		db, err := storage.NewSQLiteArchive(cfg.Archive.SQLitePath)
		if err != nil {
			return fail(err)
		}
		recorders = append(recorders, db)
		archive = db
	}

	// RRD consolidates long ranges, so it answers history queries when enabled
	if cfg.Archive.RRD.Enabled {
		rrdArchive, err := storage.NewRRDArchive(cfg.Archive.RRD, cfg.Monitor.PollInterval)
		if err != nil {
			return fail(err)
		}
		recorders = append(recorders, rrdArchive)
		archive = rrdArchive
	}

	return recorders, archive, nil
}


// Package main provides the playback engine server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"resono/internal/api/rest"
	"resono/internal/app/automix"
	"resono/internal/app/broadcast"
	"resono/internal/app/effects"
	"resono/internal/app/engine"
	"resono/internal/app/filter"
	"resono/internal/app/persist"
	"resono/internal/app/queue"
	"resono/internal/app/resolver"
	"resono/internal/domain/stream"
	"resono/internal/domain/track"
	"resono/internal/infra/blob"
	"resono/internal/infra/catalog"
	"resono/internal/infra/config"
	"resono/internal/infra/connectivity"
	"resono/internal/infra/logger"
	"resono/internal/infra/metrics"
	"resono/internal/infra/player"
	"resono/internal/infra/settings"
)

var (
	app        = kingpin.New("resono-server", "resono playback engine server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	// Initialize logger
	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	// Override with command-line flags if specified
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	// Load config
	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	// Re-initialize the logger from config, keeping flag overrides
	if *logfile == "" && cfg.Log.Output != "" {
		loggerConfig.Output = cfg.Log.Output
		loggerConfig.File = cfg.Log.File
		loggerConfig.MaxSizeMB = cfg.Log.MaxSizeMB
		loggerConfig.MaxBackups = cfg.Log.MaxBackups
		if !*verbose {
			loggerConfig.Level = cfg.Log.Level
		}
		if err := logger.Init(loggerConfig); err != nil {
			zlog.Fatal().Msgf("Failed to re-initialize logger: %v", err)
		}
	}

	// Run server (defer ensures shutdown hooks are called)
	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	met := metrics.New()

	// Snapshot storage backend
	blobs, err := newBlobStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}
	if closer, ok := blobs.(interface{ Close() error }); ok {
		defer func() { _ = closer.Close() }()
	}

	// Reactive user settings
	settingsSrc, err := settings.NewFileSource(cfg.Settings.File)
	if err != nil {
		return fmt.Errorf("failed to open settings file: %w", err)
	}
	defer func() { _ = settingsSrc.Close() }()

	// Catalog collaborators
	catalogClient := catalog.NewClient(catalog.Config{
		BaseURL:    cfg.Catalog.BaseURL,
		TimeoutSec: cfg.Catalog.TimeoutSec,
	})
	metaStore := catalog.NewMemoryMetadataStore()

	caps := stream.DeviceCaps{Supported: parseCodecs(cfg.Device.SupportedCodecs)}
	res := resolver.New(catalogClient, metaStore, caps, resolver.Config{
		Quality:          stream.Quality(cfg.Resolver.Quality),
		RecoveryWindow:   time.Duration(cfg.Resolver.RecoveryWindowSec) * time.Second,
		MaxRecoveryTries: cfg.Resolver.MaxRecoveryTries,
	}, met)

	// Queue engine with content filters and automix continuation
	filters := filter.NewChain()
	filters.Add(filter.NewHideExplicitFilter(settingsSrc))
	filters.Add(filter.NewHideVideoFilter(settingsSrc))

	provider := automix.NewProvider(catalogClient, cfg.Automix.PageSize)
	q := queue.NewEngine(queue.Config{
		WindowBefore:    cfg.Queue.WindowBefore,
		WindowAfter:     cfg.Queue.WindowAfter,
		SettleDelay:     time.Duration(cfg.Queue.SettleDelayMs) * time.Millisecond,
		LowWaterPaged:   cfg.Queue.LowWaterPaged,
		LowWaterNoPages: cfg.Queue.LowWaterNoPages,
		AutomixEnabled:  cfg.Automix.Enabled,
	}, filters, provider, res)

	effectsChain := effects.NewChain(player.NewSoftwareDevice(), 44100, 2)

	caster := broadcast.NewBroadcaster()
	defer caster.Close()

	observer := connectivity.NewObserver(connectivity.Config{
		ProbeAddr:   cfg.Connectivity.ProbeAddr,
		Interval:    time.Duration(cfg.Connectivity.IntervalSec) * time.Second,
		DialTimeout: time.Duration(cfg.Connectivity.DialTimeoutSec) * time.Second,
	})
	observer.Start()
	defer observer.Close()

	// The transport callbacks close over the machine; it is assigned before
	// Start launches the run loop, so the callbacks never see a nil machine.
	var machine *engine.Machine
	transport := player.NewHeadless(player.Callbacks{
		OnEnded: func() { machine.OnPlayerEnded() },
		OnError: func(err error) { machine.OnPlayerError(err) },
	})
	defer transport.Close()

	machine = engine.NewMachine(engine.Config{
		MaxConsecutiveErrors:    cfg.Playback.MaxConsecutiveErrors,
		SnapshotInterval:        time.Duration(cfg.Playback.SnapshotIntervalSec) * time.Second,
		PlayingSnapshotInterval: time.Duration(cfg.Playback.PlayingSnapshotSec) * time.Second,
	}, engine.Deps{
		Queue:        q,
		Resolver:     res,
		Effects:      effectsChain,
		Transport:    transport,
		Settings:     settingsSrc,
		Store:        persist.NewStore(blobs),
		Broadcaster:  caster,
		Metrics:      met,
		Presence:     []engine.PresenceSink{logPresence{}},
		Connectivity: observer.Transitions(),
	})

	// Queue changes fan out to subscribers. The callback must not call back
	// into the machine.
	q.SetNotify(func() {
		met.SetQueueLength(q.Len())
		// Broadcast waits on subscriber sends; keep it off the mutation path
		go caster.Broadcast(broadcast.Event{
			Type: broadcast.EventQueueChanged,
			At:   time.Now(),
		})
	})

	caster.Subscribe(logStream{})

	machine.RestoreFromSnapshots()
	machine.Start()
	defer machine.Close()

	handler := rest.NewHandler(machine, q, met)
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: handler.Router(),
	}

	// Channel to capture server startup errors
	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return nil
}

// newBlobStore creates the snapshot storage backend selected in config.
func newBlobStore(cfg *config.Config) (blob.Store, error) {
	switch cfg.Persistence.Backend {
	case "redis":
		return blob.NewRedisStore(blob.RedisConfig{
			Addr:     cfg.Persistence.Redis.Addr,
			Password: cfg.Persistence.Redis.Password,
			DB:       cfg.Persistence.Redis.DB,
		})
	default:
		return blob.NewFileStore(cfg.Persistence.Dir)
	}
}

// parseCodecs converts config codec names to stream codecs.
func parseCodecs(names []string) []stream.Codec {
	codecs := make([]stream.Codec, 0, len(names))
	for _, name := range names {
		codecs = append(codecs, stream.Codec(name))
	}
	return codecs
}

// logPresence logs now-playing transitions. A real deployment would put a
// media-session or scrobbling integration behind the same interface.
type logPresence struct{}

func (logPresence) NotifyNowPlaying(t track.Track, positionMs int64) error {
	zlog.Info().Msgf("Now playing: track=%s title=%q position_ms=%d", t.ID, t.Title, positionMs)
	return nil
}

func (logPresence) NotifyFinished(t track.Track, startMs, endMs int64) error {
	zlog.Info().Msgf("Finished: track=%s title=%q played_ms=%d", t.ID, t.Title, endMs-startMs)
	return nil
}

// logStream mirrors broadcast events into the debug log.
type logStream struct{}

func (logStream) Send(ev broadcast.Event) error {
	zlog.Debug().Msgf("Event: type=%s seq=%d state=%s track=%s", ev.Type, ev.SequenceNo, ev.State, ev.TrackID)
	return nil
}

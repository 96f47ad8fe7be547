package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"zonewars.gg/internal/config"
	"zonewars.gg/internal/logging"
	persistlog "zonewars.gg/internal/persistence/log"
	"zonewars.gg/internal/persistence/snapshot"
	"zonewars.gg/internal/sim/emit"
	"zonewars.gg/internal/sim/match"
	"zonewars.gg/internal/sim/tuning"
	"zonewars.gg/internal/sim/zone"
	"zonewars.gg/internal/telemetry"
	"zonewars.gg/internal/transport/ws"
)

func main() {
	var (
		configFile = flag.String("config", "", "server config file (yaml/json/toml, optional)")
		_          = flag.String("addr", ":8080", "http listen address")
		_          = flag.String("match_id", "match_1", "match id")
		_          = flag.String("config_dir", "./configs", "config directory")
		_          = flag.String("data_dir", "./data", "runtime data directory")
		_          = flag.String("tuning", "", "path to tuning.yaml (default: <config_dir>/tuning.yaml)")
		_          = flag.String("map", "", "path to map.yaml (default: <config_dir>/map.yaml)")
		_          = flag.Bool("disable_db", false, "disable the sqlite index")
		_          = flag.String("snapshot", "", "path to snapshot to load (optional)")
		_          = flag.Bool("load_latest_snapshot", true, "load latest snapshot from the match dir if present (when -snapshot is empty)")
		_          = flag.String("log_level", "info", "trace|debug|info|warn|error")
		_          = flag.String("log_format", "json", "json|console")
	)
	flag.Parse()

	// Flags the user actually set override file and env values.
	v := config.New()
	flag.Visit(func(f *flag.Flag) {
		if f.Name != "config" {
			v.Set(f.Name, f.Value.String())
		}
	})
	cfg, err := config.Load(v, *configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat, "server")
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	matchDir := cfg.MatchDir()
	if err := os.MkdirAll(matchDir, 0o755); err != nil {
		return err
	}

	m, layout, err := loadMatch(cfg, logger)
	if err != nil {
		return err
	}

	// Optional: read-model index backend (does not affect sim determinism).
	idx, err := openRuntimeIndex(matchDir, cfg.DisableDB)
	if err != nil {
		return fmt.Errorf("open index backend: %w", err)
	}
	if idx != nil {
		defer idx.Close()
		var l any
		if layout != nil {
			l = layout
		}
		if err := idx.UpsertConfig(m.ID(), m.Tuning(), l); err != nil {
			logger.Warn().Err(err).Msg("index backend: upsert config")
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	tickLog := persistlog.NewTickLogger(matchDir)
	defer tickLog.Close()
	if idx != nil {
		m.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
	} else {
		m.SetTickLogger(tickLog)
	}

	tel, err := telemetry.NewMatch(m.ID())
	if err != nil {
		logger.Warn().Err(err).Msg("telemetry disabled")
	}
	m.SetTelemetry(tel)

	m.OnNeutralisedSector(func(h emit.SectorNeutralisedHook) {
		logger.Info().Uint32("player", uint32(h.Player)).Int("zones", h.ZonesNeutralised).Msg("sector neutralised")
	})
	m.OnTick(logAchievements(logger))

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	m.SetSnapshotSink(snapCh)
	go writeSnapshots(ctx, matchDir, snapCh, idx, logger)

	go func() {
		if err := m.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("match stopped")
		}
	}()

	wsSrv := ws.NewServer(m, logger)
	mux := newMux(m, wsSrv, idx, cfg.EnableAdminHTTP && defaultEnableAdminHTTP())
	if !cfg.EnableAdminHTTP {
		logger.Info().Msg("admin endpoints disabled (ZW_ENABLE_ADMIN_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Info().Str("addr", cfg.Addr).Str("match", m.ID()).Uint64("tick", m.CurrentTick()).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ListenAndServe: %w", err)
	}
	return nil
}

// loadMatch resumes from a snapshot when one is configured or present,
// otherwise builds a fresh match from the map layout. The layout is nil
// when resuming.
func loadMatch(cfg config.Config, logger zerolog.Logger) (*match.Match, *zone.Layout, error) {
	snapshotToLoad := strings.TrimSpace(cfg.Snapshot)
	if snapshotToLoad == "" && cfg.LoadLatestSnapshot {
		latest, err := snapshot.Latest(filepath.Join(cfg.MatchDir(), "snapshots"))
		if err != nil {
			return nil, nil, fmt.Errorf("find latest snapshot: %w", err)
		}
		snapshotToLoad = latest
	}

	// Load tuning (required for a fresh match; optional for snapshot resumes).
	tune, tuneErr := tuning.Load(cfg.Tuning)
	if tuneErr != nil {
		if snapshotToLoad == "" || !os.IsNotExist(tuneErr) {
			return nil, nil, fmt.Errorf("load tuning: %w", tuneErr)
		}
		// Resume fallback: the snapshot carries the effective tuning.
		logger.Info().Str("path", cfg.Tuning).Msg("tuning not found; using snapshot tuning")
		tune = tuning.Defaults()
	}
	mcfg := match.Config{ID: cfg.MatchID, Tuning: tune, Logger: logger}

	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			return nil, nil, fmt.Errorf("read snapshot: %w", err)
		}
		m, err := match.NewFromSnapshot(mcfg, snap)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Str("snapshot", filepath.Base(snapshotToLoad)).Uint64("tick", m.CurrentTick()).Msg("resumed from snapshot")
		return m, nil, nil
	}

	layout, err := zone.LoadLayout(cfg.Map)
	if err != nil {
		return nil, nil, fmt.Errorf("load map: %w", err)
	}
	g, err := layout.Build()
	if err != nil {
		return nil, nil, err
	}
	mcfg.MapName = layout.Name
	m, err := match.New(mcfg, g)
	if err != nil {
		return nil, nil, err
	}
	return m, &layout, nil
}

func writeSnapshots(ctx context.Context, matchDir string, snapCh <-chan snapshot.SnapshotV1, idx runtimeIndex, logger zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-snapCh:
			path := filepath.Join(matchDir, "snapshots", snapshot.FileName(snap.Header.Tick))
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				logger.Error().Err(err).Uint64("tick", snap.Header.Tick).Msg("snapshot write")
				continue
			}
			logger.Debug().Str("path", path).Msg("snapshot written")
			if idx != nil {
				idx.RecordSnapshot(path, snap)
			}
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func logAchievements(logger zerolog.Logger) emit.Sink {
	return func(tick uint64, ev emit.Events) {
		for _, a := range ev.Achievements {
			logger.Info().Uint64("tick", tick).Uint32("player", uint32(a.Player)).Str("achievement", a.Achievement).Msg("achievement unlocked")
		}
	}
}

type multiTickLogger struct {
	a match.TickLogger
	b match.TickLogger
}

func (m multiTickLogger) WriteTick(entry match.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"camsync/internal/alignment"
	"camsync/internal/platform/config"
	"camsync/internal/platform/kvstore"
	"camsync/internal/platform/logger"
	"camsync/internal/platform/metrics"
	"camsync/internal/playback"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	cfg, fromFile, err := config.LoadFile(config.GetEnv("CONFIG_PATH", "camsync.toml"))
	if err != nil {
		logger.New("info", "json").Error("config error", "error", err)
		os.Exit(1)
	}
	cfg.ApplyEnv()

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "error", err)
		os.Exit(1)
	}
	policy, err := alignment.ParseEndPolicy(cfg.Sync.EndPolicy)
	if err != nil {
		log.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var kv alignment.KVStore = alignment.NewInMemoryKV()
	var db *kvstore.Store
	if cfg.State.DBPath != "" {
		db, err = kvstore.Open(cfg.State.DBPath)
		if err != nil {
			log.Error("state store error", "path", cfg.State.DBPath, "error", err)
			os.Exit(1)
		}
		kv = db
	}

	met := metrics.New()
	streams := cfg.StreamCount()
	cameras := make([]alignment.Camera, len(cfg.Cameras))
	for i, c := range cfg.Cameras {
		cameras[i] = alignment.Camera{Name: c.Name, Source: c.Source}
	}
	engine := alignment.NewEngine(alignment.NewSyncStateStore(kv), alignment.Options{
		Streams:   streams,
		Cameras:   cameras,
		EndPolicy: policy,
		NudgeStep: cfg.Sync.NudgeStep,
		Logger:    log,
		Telemetry: met,
	})
	hub := playback.NewHub(streams, log, met.SetConnectedPlayers)
	for i, p := range hub.Players() {
		if err := engine.AttachPlayer(i, p); err != nil {
			log.Error("attach player", "stream", i, "error", err)
			os.Exit(1)
		}
	}
	engine.Initialize()

	h := alignment.NewHandler(engine, log, met)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetConnectedPlayers(hub.Connected()) }).ServeHTTP(w, r)
	})
	r.Get("/ws/streams/{index}", hub.ServeStream)
	h.Routes(r)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Server.Port,
		"streams", streams,
		"end_policy", string(engine.EndPolicy()),
		"config_file", fromFile,
		"state_db", cfg.State.DBPath,
		"log_level", cfg.Logging.Level,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	hub.Close()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	engine.Close()
	if db != nil {
		if err := db.Close(); err != nil {
			log.Error("state store close error", "error", err)
		}
	}

	log.Info("server stopped")
}

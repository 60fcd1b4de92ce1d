package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Phantom-Ear/phantom-ear-sub000/internal/asr"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/config"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/embedding"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/events"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/llm"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/metrics"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/notes"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/retrieval"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/server"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/session"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/store"
	"github.com/Phantom-Ear/phantom-ear-sub000/internal/transcription"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "phantomeard"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", serviceName, serviceVersion)
		return
	}

	// The default config path is optional; an explicit one must exist
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && *configPath == defaultConfigPath {
			cfg = config.Default()
		} else {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("udp_port", cfg.Server.UDPPort),
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Float64("chunk_nominal", cfg.Audio.ChunkNominal),
		slog.Float64("silence_threshold", cfg.Silence.Threshold),
		slog.String("asr_backend", cfg.ASR.Backend),
		slog.String("embedding_model", cfg.Embedding.Model),
		slog.String("llm_provider", cfg.LLM.Provider),
		slog.String("storage_path", cfg.Storage.Path),
		slog.String("log_level", cfg.Logging.Level),
	)

	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	st, err := store.Open(cfg.Storage.Path, logger)
	if err != nil {
		logger.Error("Failed to open segment store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer st.Close()

	bus := events.NewBus(256, logger)

	// ASR backend and its model state. The HTTP backends have no local
	// weights to load, so the model counts as loaded once configured.
	asrBackend, err := asr.New(cfg.ASR, logger)
	if err != nil {
		logger.Error("Failed to create ASR backend", slog.String("error", err.Error()))
		os.Exit(1)
	}
	asrTracker := asr.NewStateTracker(asrBackend.Name(), publishModelState(bus, "asr"))
	if err := markLoaded(asrTracker); err != nil {
		logger.Error("Failed to initialize ASR model state", slog.String("error", err.Error()))
		os.Exit(1)
	}

	embedBackend, err := embedding.NewHTTPBackend(cfg.Embedding)
	if err != nil {
		logger.Error("Failed to create embedding backend", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Every loaded transition of the embedding model kicks a backlog drain,
	// so the tracker is marked loaded only after the pipeline is running
	var pipeline *embedding.Pipeline
	publishEmbedState := publishModelState(bus, "embedding")
	embedTracker := asr.NewStateTracker(cfg.Embedding.Model, func(snapshot asr.StateSnapshot) {
		publishEmbedState(snapshot)
		if snapshot.State == asr.StateLoaded && pipeline != nil {
			pipeline.Kick()
		}
	})

	worker := transcription.NewWorker(asrBackend, asrTracker, st, bus, appMetrics, cfg.Audio.QueueSize, logger)
	worker.Start()

	pipeline = embedding.NewPipeline(embedBackend, embedTracker, st, bus, appMetrics,
		cfg.Embedding.GetSweepInterval(), logger)
	pipeline.Start()

	if err := markLoaded(embedTracker); err != nil {
		logger.Error("Failed to initialize embedding model state", slog.String("error", err.Error()))
		os.Exit(1)
	}

	llmClient, err := llm.New(cfg.LLM)
	if err != nil {
		logger.Error("Failed to create LLM client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if llmClient == nil {
		logger.Info("No LLM provider configured, question answering disabled")
	}

	engine := retrieval.NewEngine(st, embedBackend, embedTracker, appMetrics, cfg.Retrieval.MaxLimit, logger)
	answerer := retrieval.NewAnswerer(engine, llmClient, st, logger)
	summarizer := retrieval.NewSummarizer(llmClient, st, logger)

	watches := notes.NewWatches(cfg.Notes.MaxWatches)
	var evaluator notes.Evaluator = notes.KeywordEvaluator{}
	if cfg.Notes.UseLLM && llmClient != nil {
		evaluator = notes.NewLLMEvaluator(llmClient)
	}
	monitor := notes.NewMonitor(watches, evaluator, st, bus, appMetrics, notes.MonitorConfig{
		CheckEvery: cfg.Notes.CheckEvery,
		WindowSize: cfg.Notes.WindowSize,
		Cooldown:   cfg.Notes.GetCooldown(),
	}, logger)
	monitor.Start()

	sessions := session.NewManager(st, worker, bus, appMetrics, cfg, logger)
	if llmClient != nil {
		sessions.SetSummarizer(summarizer)
	}

	ingest := server.NewIngestServer(&cfg.Server, sessions, appMetrics, logger)
	if err := ingest.Start(); err != nil {
		logger.Error("Failed to start UDP ingest server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, server.Deps{
			Config:      cfg,
			Store:       st,
			Sessions:    sessions,
			Ingest:      ingest,
			Worker:      worker,
			Engine:      engine,
			Answerer:    answerer,
			Summarizer:  summarizer,
			Watches:     watches,
			Bus:         bus,
			ASRTracker:  asrTracker,
			EmbedStatus: pipeline,
			Metrics:     appMetrics,
		}, logger)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("udp_address", fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.UDPPort)),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	// Stop outer surfaces first, then drain the pipeline inward
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
		shutdownCancel()
	}

	if err := ingest.Stop(); err != nil {
		logger.Error("Error stopping UDP ingest server", slog.String("error", err.Error()))
	}

	sessionCtx, sessionCancel := context.WithTimeout(context.Background(), 60*time.Second)
	sessions.Stop(sessionCtx)
	sessionCancel()

	monitor.Stop()
	pipeline.Stop()
	worker.Stop()

	stats := ingest.GetStats()
	logger.Info("Final ingest statistics",
		slog.Uint64("frames_received", stats.FramesReceived),
		slog.Uint64("frames_invalid", stats.FramesInvalid),
		slog.Uint64("frames_dropped", stats.FramesDropped),
	)

	logger.Info("Service stopped")
}

// publishModelState forwards model state changes onto the event bus
func publishModelState(bus *events.Bus, component string) func(asr.StateSnapshot) {
	return func(snapshot asr.StateSnapshot) {
		bus.Publish(events.Event{
			Type: events.TypeModelState,
			Payload: map[string]interface{}{
				"component": component,
				"state":     snapshot,
			},
		})
	}
}

// markLoaded walks a tracker through its boot transitions
func markLoaded(tracker *asr.StateTracker) error {
	if err := tracker.StartLoading(); err != nil {
		return err
	}
	return tracker.SetLoaded()
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}

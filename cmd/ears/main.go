package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"

	"github.com/magi-shell/ears/internal/audio"
	"github.com/magi-shell/ears/internal/capture"
	"github.com/magi-shell/ears/internal/config"
	"github.com/magi-shell/ears/internal/endpoint"
	"github.com/magi-shell/ears/internal/filter"
	"github.com/magi-shell/ears/internal/metrics"
	"github.com/magi-shell/ears/internal/pipeline"
	"github.com/magi-shell/ears/internal/server"
	"github.com/magi-shell/ears/internal/transcription"
	"github.com/magi-shell/ears/internal/vad"
)

const (
	defaultConfigPath = "configs/ears.yaml"
	serviceName       = "magi-ears"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := pflag.StringP("config", "c", defaultConfigPath, "Path to configuration file")
	envFile := pflag.StringP("env", "e", ".env", "Env file path")
	logLevel := pflag.StringP("log", "l", "", "Log level override (debug, info, warn, error)")
	pflag.Parse()

	// Env file is optional, ignore a missing one
	godotenv.Load(*envFile)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Shared MAGI shell config overrides the service defaults, env wins last
	if err := cfg.ApplyLegacy(config.LegacyPath()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to apply legacy configuration: %v\n", err)
		os.Exit(1)
	}
	if ep := os.Getenv("MAGI_WHISPER_ENDPOINT"); ep != "" {
		cfg.Transcription.Endpoint = ep
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary
	logger.Info("Configuration loaded",
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("chunk_size", cfg.Audio.ChunkSize),
		slog.String("vad_mode", cfg.VAD.Mode),
		slog.Float64("silence_limit", cfg.Endpoint.SilenceLimit),
		slog.Float64("pre_roll", cfg.Endpoint.PreRoll),
		slog.String("transcription_engine", cfg.Transcription.Engine),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize the frame classifier
	classifier, err := buildClassifier(cfg)
	if err != nil {
		logger.Error("Failed to create classifier", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Classifier initialized", slog.String("mode", cfg.VAD.Mode))

	// Initialize the endpoint detector
	detector, err := endpoint.NewDetector(endpoint.Config{
		ChunkSize:            cfg.Audio.ChunkSize,
		SampleRate:           cfg.Audio.SampleRate,
		SilenceLimit:         cfg.Endpoint.GetSilenceLimit(),
		PreRoll:              cfg.Endpoint.GetPreRoll(),
		MinSilenceDetections: cfg.Endpoint.MinSilenceDetections,
		MinUtteranceDuration: cfg.Endpoint.GetMinUtteranceDuration(),
		Metrics:              appMetrics,
	})
	if err != nil {
		logger.Error("Failed to create endpoint detector", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize the transcription engine
	engine, err := buildEngine(cfg)
	if err != nil {
		logger.Error("Failed to create transcription engine", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer engine.Close()
	logger.Info("Transcription engine initialized", slog.String("engine", cfg.Transcription.Engine))

	// Initialize the transcript filter
	transcriptFilter := filter.New(filter.Config{
		RejectCJK:     cfg.Filter.RejectCJK,
		ExtraDenylist: cfg.Filter.Denylist,
	})

	// Initialize optional WAV archiving
	var archive *audio.ArchiveWriter
	if cfg.Archive.Enabled {
		archive, err = audio.NewArchiveWriter(cfg.Archive.Dir)
		if err != nil {
			logger.Error("Failed to create archive writer", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Utterance archiving enabled", slog.String("dir", cfg.Archive.Dir))
	}

	// Initialize the transcript fan-out hub
	hub := server.NewHub(logger)

	// Initialize the pipeline
	pipe, err := pipeline.New(pipeline.Options{
		Classifier:  classifier,
		Detector:    detector,
		Engine:      engine,
		Filter:      transcriptFilter,
		Archive:     archive,
		Broadcaster: hub,
		Metrics:     appMetrics,
		Logger:      logger,
		Out:         os.Stdout,
		StatusW:     os.Stderr,
	})
	if err != nil {
		logger.Error("Failed to create pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, pipe, detector, hub, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Start microphone capture
	mic, err := capture.NewMic(capture.Config{
		SampleRate: cfg.Audio.SampleRate,
		ChunkSize:  cfg.Audio.ChunkSize,
		BufferSize: cfg.Audio.QueueSize,
	}, logger, appMetrics)
	if err != nil {
		logger.Error("Failed to start microphone capture", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Run the pipeline until the frame source closes
	pipelineDone := make(chan error, 1)
	go func() {
		pipelineDone <- pipe.Run(ctx, mic.Frames())
	}()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, listening...")

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case err := <-pipelineDone:
		if err != nil {
			logger.Error("Pipeline stopped", slog.String("error", err.Error()))
		}
	}

	logger.Info("Starting graceful shutdown...")

	// Stop capture first so the pipeline drains and exits
	if err := mic.Stop(); err != nil {
		logger.Error("Error stopping capture", slog.String("error", err.Error()))
	}

	select {
	case <-pipelineDone:
	case <-time.After(10 * time.Second):
		logger.Warn("Pipeline did not drain in time")
		cancel()
	}

	// Stop HTTP server
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Get final statistics
	stats := pipe.GetStats()
	captureStats := mic.GetStats()
	logger.Info("Final pipeline statistics",
		slog.Uint64("frames_captured", captureStats.FramesCaptured),
		slog.Uint64("frames_dropped", captureStats.FramesDropped),
		slog.Uint64("frames_processed", stats.FramesProcessed),
		slog.Uint64("transcripts_emitted", stats.TranscriptsEmitted),
		slog.Uint64("transcripts_filtered", stats.TranscriptsFiltered),
		slog.Uint64("dispatch_failures", stats.DispatchFailures),
	)

	logger.Info("Service stopped")
}

// buildClassifier creates the configured frame classifier.
func buildClassifier(cfg *config.Config) (vad.Classifier, error) {
	switch cfg.VAD.Mode {
	case "heuristic":
		return vad.NewHeuristic(vad.HeuristicConfig{
			ChunkSize:           cfg.Audio.ChunkSize,
			SampleRate:          cfg.Audio.SampleRate,
			BaseEnergyThreshold: cfg.VAD.BaseEnergyThreshold,
			ZCRThreshold:        cfg.VAD.ZCRThreshold,
			SpeechMemory:        cfg.VAD.SpeechMemory,
			MinSpeechVotes:      cfg.VAD.MinSpeechVotes,
		})
	case "neural":
		n, err := vad.NewNeural(vad.NeuralConfig{
			ModelPath:  cfg.VAD.ModelPath,
			Threshold:  cfg.VAD.Threshold,
			ChunkSize:  cfg.Audio.ChunkSize,
			SampleRate: cfg.Audio.SampleRate,
		})
		if err != nil {
			return nil, err
		}
		if err := n.Initialize(); err != nil {
			return nil, err
		}
		return n, nil
	default:
		return nil, fmt.Errorf("unknown vad mode '%s'", cfg.VAD.Mode)
	}
}

// buildEngine creates the configured transcription engine.
func buildEngine(cfg *config.Config) (transcription.Engine, error) {
	switch cfg.Transcription.Engine {
	case "http":
		return transcription.NewClient(transcription.Config{
			Endpoint:      cfg.Transcription.Endpoint,
			Timeout:       cfg.Transcription.GetTimeoutDuration(),
			MaxRetries:    cfg.Transcription.MaxRetries,
			MaxConcurrent: cfg.Transcription.MaxConcurrent,
		})
	case "local":
		return transcription.NewLocal(transcription.LocalConfig{
			ModelPath: cfg.Transcription.ModelPath,
			Language:  cfg.Transcription.Language,
		})
	default:
		return nil, fmt.Errorf("unknown transcription engine '%s'", cfg.Transcription.Engine)
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
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
		level = slog.LevelError // stdout carries transcripts, stay quiet by default
	}

	// Determine output destination. Stdout is reserved for transcripts.
	var output *os.File
	switch cfg.Output {
	case "stderr", "":
		output = os.Stderr
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level})
	default:
		handler = tint.NewHandler(output, &tint.Options{Level: level})
	}

	return slog.New(handler)
}

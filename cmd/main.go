package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"roomsync/auth"
	"roomsync/infrastructure/search"
	"roomsync/infrastructure/storage"
	"roomsync/internal"
	"roomsync/runtime"
	"roomsync/sink"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "roomsync terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires the headless client: one engine for the signed-in user, its
// events written to the log, commands read from stdin.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()
	internal.StartInspector(ctx, logger, db, config.DebugPort)

	// 3. Store, search index and identity
	store := storage.NewStore(db, logger)
	index, err := search.NewRoomIndex(logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("search index opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing search index...")
		_ = index.Close()
	}()
	identity := auth.NewTokenIdentity([]byte(config.JWTSecret), logger)

	// 4. Engine and its sinks
	engine := runtime.NewEngine(store, identity, index, index, runtime.Options{
		SeenEpsilon:          config.SeenEpsilon,
		TypingDebounce:       config.TypingDebounce,
		TypingStaleAfter:     config.TypingStaleAfter,
		EventBuffer:          config.EventBuffer,
		SinkTimeout:          config.SinkTimeout,
		ShutdownTimeout:      config.ShutdownTimeout,
		MetricInterval:       config.MetricInterval,
		LowCapacityThreshold: config.LowCapacityThreshold,
	}, logger)

	eventLog, closeEventLog, err := eventLogger(config.EventLogPath, logger)
	if err != nil {
		return exitConfig, err
	}
	defer closeEventLog()
	engine.Subscribe("log", "", sink.NewLogSink(eventLog))

	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	// 5. Sign-in, then commands until stdin or the process ends
	if config.AuthToken != "" {
		if _, err = identity.SignIn(config.AuthToken); err != nil {
			logger.Error("Sign-in with AUTH_TOKEN failed", "error", err)
		}
	}
	console := newConsole(engine, identity, []byte(config.JWTSecret), config.AuthTokenDuration, os.Stdout)
	go console.Run(ctx, bufio.NewScanner(os.Stdin), stop)

	if err = <-done; err != nil {
		return exitRuntime, err
	}
	logger.Info("Program stopped cleanly")
	return exitOK, nil
}

// eventLogger writes events to path as JSON lines, or to the main logger
// when path is empty.
func eventLogger(path string, fallback *slog.Logger) (*slog.Logger, func(), error) {
	if path == "" {
		return fallback, func() {}, nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("event log opening failed: %w", err)
	}
	return slog.New(slog.NewJSONHandler(file, nil)), func() { _ = file.Close() }, nil
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"

	"github.com/flowkernel/engine/observability"
	"github.com/flowkernel/engine/workflow/config"
	"github.com/flowkernel/engine/workflow/engine"
	"github.com/flowkernel/engine/workflow/schema"
	transporthttp "github.com/flowkernel/engine/workflow/transport/http"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Path to engine config JSON file (overrides defaults)")
		projectRoot = flag.String("project", "", "Project root to resolve .aromcp/workflows from (defaults to cwd)")
		addr        = flag.String("addr", ":8089", "Address to listen on")
		verbose     = flag.Bool("verbose", false, "Enable verbose logging to stderr")
	)
	flag.Parse()

	cfg := config.DefaultEngineConfig("workflow-server")
	if *configFile != "" {
		loaded, err := loadEngineConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg.Merge(loaded)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	eng, err := engine.New(cfg, *projectRoot, schema.StructuralValidator{}, observability.NewSlogObserver(logger))
	if err != nil {
		log.Fatalf("Failed to construct engine: %v", err)
	}

	server := transporthttp.NewServer(eng)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	httpServer := &http.Server{Addr: *addr, Handler: server}
	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	logger.Info("workflow server listening", "addr", *addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed: %v", err)
	}
}

func loadEngineConfig(path string) (*config.EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var cfg config.EngineConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return &cfg, nil
}

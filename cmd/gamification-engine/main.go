package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/R3E-Network/gamification-engine/internal/config"
	"github.com/R3E-Network/gamification-engine/internal/orchestrator"
	"github.com/R3E-Network/gamification-engine/internal/platform/security"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (defaults to :8080)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	engine, err := orchestrator.New(cfg)
	if err != nil {
		log.Fatalf("build engine: %s", security.SanitizeError(err))
	}

	listenAddr := determineAddr(*addr, cfg)

	ctx := context.Background()
	if err := engine.Start(ctx, listenAddr); err != nil {
		log.Fatalf("start engine: %s", security.SanitizeError(err))
	}
	engine.MarkReady()
	log.Printf("gamification engine listening on %s", listenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := engine.Stop(shutdownCtx); err != nil {
		log.Fatalf("shutdown: %s", security.SanitizeError(err))
	}
}

func determineAddr(flagAddr string, cfg *config.Config) string {
	if trimmed := strings.TrimSpace(flagAddr); trimmed != "" {
		return trimmed
	}
	if cfg.HTTPPort != 0 {
		return fmt.Sprintf(":%d", cfg.HTTPPort)
	}
	return ":8080"
}

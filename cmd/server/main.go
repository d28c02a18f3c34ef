package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nexusim/nexusim/internal/config"
	"github.com/nexusim/nexusim/internal/core/events"
	"github.com/nexusim/nexusim/internal/host"
)

func main() {
	cfgPath := flag.String("config", "", "path to YAML config (defaults apply when empty)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Println("Error loading config:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := host.New(cfg, host.ProvideLogger(cfg), events.New())

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	if err := h.Start(ctx); err != nil {
		fmt.Println("Error starting host:", err)
		os.Exit(1)
	}

	<-stopCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := h.Stop(shutdownCtx); err != nil {
		fmt.Println("Error stopping host:", err)
	}
}

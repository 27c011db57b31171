// Command server runs the collaborative editing service: one shared
// buffer, reachable over WebSocket at /ws and over a static client at /.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/avian-editor/avian/pkg/config"
	"github.com/avian-editor/avian/pkg/logger"
	"github.com/avian-editor/avian/pkg/server"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	if err := logger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Infof("starting avian server on %s:%s", cfg.Host, cfg.Port)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := server.New(cfg)
	if err := srv.Run(ctx); err != nil {
		logger.Errorf("server exited: %v", err)
		os.Exit(1)
	}
}

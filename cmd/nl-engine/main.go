// nl-engine runs the analysis pipeline against frames arriving over NATS
// from one or more nl-probe agents, and serves snapshots over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"netlens/internal/api"
	"netlens/internal/config"
	"netlens/internal/pipeline"
	"netlens/internal/probe"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg = config.Default()
		} else {
			log.WithError(err).Fatal("failed to load config")
		}
	}

	pipe, err := pipeline.New(cfg, nil, nil)
	if err != nil {
		log.WithError(err).Fatal("failed to build pipeline")
	}
	pipe.Start()

	server := api.NewServer(cfg.API, pipe)
	server.Start()

	sub, err := probe.NewSubscriber(cfg.Probe)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to NATS")
	}
	if err := sub.Start(pipe.Feed); err != nil {
		log.WithError(err).Fatal("failed to subscribe")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info("shutdown signal received")

	sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(ctx)
	pipe.Stop(ctx)
	log.Info("shutdown complete")
}

// nl-probe is the lightweight capture agent: it reads frames from an
// interface and publishes them to NATS for a remote nl-engine to analyze.
package main

import (
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"netlens/internal/config"
	"netlens/internal/model"
	"netlens/internal/probe"
	"netlens/pkg/pcap"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration file")
	iface := flag.String("iface", "", "interface to capture from (overrides config)")
	promisc := flag.Bool("promiscuous", false, "put the interface in promiscuous mode")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg = config.Default()
		} else {
			log.WithError(err).Fatal("failed to load config")
		}
	}
	if *iface != "" {
		cfg.Capture.Interface = *iface
	}
	if *promisc {
		cfg.Capture.Promiscuous = true
	}

	pub, err := probe.NewPublisher(cfg.Probe)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to NATS")
	}
	defer pub.Close()

	src, err := pcap.OpenLive(cfg.Capture)
	if err != nil {
		log.WithError(err).Fatal("failed to open capture source")
	}
	defer src.Close()
	log.WithField("iface", src.Interface()).Info("probe capture started")

	go func() {
		published := 0
		err := src.ReadFrames(func(frame model.RawFrame) {
			if err := pub.Publish(frame); err != nil {
				log.WithError(err).Warn("failed to publish frame")
				return
			}
			published++
			if published%10000 == 0 {
				log.WithField("frames", published).Debug("publishing")
			}
		})
		if err != nil {
			log.WithError(err).Error("capture ended")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info("shutdown signal received")
}

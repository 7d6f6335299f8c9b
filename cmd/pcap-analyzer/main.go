// pcap-analyzer replays a capture file through the analysis pipeline and
// prints a plain-text traffic report.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"netlens/internal/config"
	"netlens/internal/export"
	"netlens/internal/pipeline"
	"netlens/pkg/pcap"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: pcap-analyzer <path_to_pcap_file>")
		os.Exit(1)
	}
	path := os.Args[1]

	cfg := config.Default()
	pipe, err := pipeline.New(cfg, nil, nil)
	if err != nil {
		log.WithError(err).Fatal("failed to build pipeline")
	}
	pipe.Start()

	reader, err := pcap.NewReader(path)
	if err != nil {
		log.WithError(err).Fatal("failed to open pcap file")
	}
	log.WithField("file", path).Info("reading capture file")
	reader.ReadFrames(pipe.Feed)
	reader.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pipe.Stop(ctx)

	writer := export.NewTextWriter(os.Stdout)
	writer.MaxConnections = 50
	writer.MaxPackets = 50
	if err := writer.Write(export.Collect(pipe)); err != nil {
		log.WithError(err).Fatal("failed to render report")
	}
}

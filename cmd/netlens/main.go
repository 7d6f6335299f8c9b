// netlens is the all-in-one binary: capture from an interface or a pcap
// file, run the analysis pipeline locally, serve snapshots over HTTP and
// export on exit.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"netlens/internal/api"
	"netlens/internal/config"
	"netlens/internal/export"
	"netlens/internal/filter"
	"netlens/internal/pipeline"
	"netlens/pkg/pcap"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	app := cli.NewApp()
	app.Name = "netlens"
	app.Usage = "real-time network traffic analysis"
	app.Version = "0.3.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "path to the YAML configuration file",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "logrus level (debug, info, warn, error)",
			Value: "info",
		},
	}
	app.Before = func(c *cli.Context) error {
		lvl, err := log.ParseLevel(c.GlobalString("log-level"))
		if err != nil {
			return err
		}
		log.SetLevel(lvl)
		return nil
	}
	app.Commands = []cli.Command{
		captureCommand(),
		analyzeCommand(),
		interfacesCommand(),
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.GlobalString("config")
	if path != "" {
		return config.LoadConfig(path)
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return config.LoadConfig(defaultConfigPath)
	}
	return config.Default(), nil
}

func captureCommand() cli.Command {
	return cli.Command{
		Name:  "capture",
		Usage: "capture live traffic from an interface and analyze it",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "iface, i",
				Usage: "interface to capture from (default: first with an address)",
			},
			cli.BoolFlag{
				Name:  "promiscuous, p",
				Usage: "put the interface in promiscuous mode",
			},
			cli.StringFlag{
				Name:  "listen",
				Usage: "override the API listen address",
			},
			cli.StringSliceFlag{
				Name:  "filter, f",
				Usage: "display filter, field=value or field!=value (repeatable)",
			},
			exportFlag(), formatFlag(),
		},
		Action: runCapture,
	}
}

func runCapture(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if iface := c.String("iface"); iface != "" {
		cfg.Capture.Interface = iface
	}
	if c.Bool("promiscuous") {
		cfg.Capture.Promiscuous = true
	}
	if listen := c.String("listen"); listen != "" {
		cfg.API.ListenAddr = listen
	}

	filters, err := filter.ParseAll(c.StringSlice("filter"))
	if err != nil {
		return err
	}

	pipe, err := pipeline.New(cfg, nil, nil)
	if err != nil {
		return err
	}
	pipe.SetFilters(filters)
	pipe.Start()

	server := api.NewServer(cfg.API, pipe)
	server.Start()

	src, err := pcap.OpenLive(cfg.Capture)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"iface":       src.Interface(),
		"promiscuous": cfg.Capture.Promiscuous,
	}).Info("capture started")

	readDone := make(chan error, 1)
	go func() {
		readDone <- src.ReadFrames(pipe.Feed)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
		log.Info("shutdown signal received")
	case err := <-readDone:
		if err != nil {
			log.WithError(err).Error("capture ended")
		}
	}
	src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(ctx)
	pipe.Stop(ctx)

	return writeExport(c, pipe)
}

func analyzeCommand() cli.Command {
	return cli.Command{
		Name:      "analyze",
		Usage:     "analyze a pcap file and print a report",
		ArgsUsage: "<file.pcap>",
		Flags: []cli.Flag{
			cli.StringSliceFlag{
				Name:  "filter, f",
				Usage: "display filter, field=value or field!=value (repeatable)",
			},
			exportFlag(), formatFlag(),
		},
		Action: runAnalyze,
	}
}

func runAnalyze(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: netlens analyze <file.pcap>")
	}
	path := c.Args().First()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	filters, err := filter.ParseAll(c.StringSlice("filter"))
	if err != nil {
		return err
	}

	pipe, err := pipeline.New(cfg, nil, nil)
	if err != nil {
		return err
	}
	pipe.SetFilters(filters)
	pipe.Start()

	reader, err := pcap.NewReader(path)
	if err != nil {
		return err
	}
	log.WithField("file", path).Info("reading capture file")
	reader.ReadFrames(pipe.Feed)
	reader.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pipe.Stop(ctx)

	if c.String("export") != "" {
		return writeExport(c, pipe)
	}
	writer := export.NewTextWriter(os.Stdout)
	writer.MaxConnections = 50
	writer.MaxPackets = 50
	return writer.Write(export.Collect(pipe))
}

func interfacesCommand() cli.Command {
	return cli.Command{
		Name:  "interfaces",
		Usage: "list capture-capable network interfaces",
		Action: func(c *cli.Context) error {
			ifaces, err := pcap.ListInterfaces()
			if err != nil {
				return err
			}
			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Name", "Description", "Addresses"})
			for _, ifc := range ifaces {
				addrs := ""
				for i, a := range ifc.Addresses {
					if i > 0 {
						addrs += ", "
					}
					addrs += a
				}
				table.Append([]string{ifc.Name, ifc.Description, addrs})
			}
			table.Render()
			return nil
		},
	}
}

func exportFlag() cli.Flag {
	return cli.StringFlag{
		Name:  "export, o",
		Usage: "write a snapshot to this file on exit",
	}
}

func formatFlag() cli.Flag {
	return cli.StringFlag{
		Name:  "format",
		Usage: "export format: pcap, json, csv or text",
		Value: "json",
	}
}

// writeExport dumps the final snapshot when --export was given.
func writeExport(c *cli.Context, pipe *pipeline.Pipeline) error {
	path := c.String("export")
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	writer, err := export.ForFormat(c.String("format"), f)
	if err != nil {
		return err
	}
	if err := writer.Write(export.Collect(pipe)); err != nil {
		return err
	}
	log.WithFields(log.Fields{"file": path, "format": c.String("format")}).Info("snapshot exported")
	return nil
}

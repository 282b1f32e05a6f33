package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/spimod/axispi/bridge"
	"github.com/spimod/axispi/devfile"
	"github.com/spimod/axispi/internal/board"
)

const retryDelay = 5 * time.Second

func main() {
	cfg := board.DefaultConfig()
	cfg.RegisterFlags(flag.CommandLine)
	mcfg := bridge.DefaultMQTTConfig()
	scfg := bridge.DefaultSerialConfig()
	flag.StringVar(&mcfg.Broker, "mqtt", "", "MQTT broker host:port. Empty disables the MQTT bridge.")
	flag.StringVar(&mcfg.ClientID, "mqtt-id", mcfg.ClientID, "MQTT client identifier.")
	flag.StringVar(&mcfg.CommandTopic, "mqtt-cmd", mcfg.CommandTopic, "Topic requests are read from.")
	flag.StringVar(&mcfg.ResultTopic, "mqtt-result", mcfg.ResultTopic, "Topic replies are published to.")
	flag.StringVar(&scfg.Device, "serial", "", "Serial console device. Empty disables the serial bridge.")
	flag.IntVar(&scfg.Baud, "baud", scfg.Baud, "Serial console baud rate.")
	debug := flag.Bool("debug", false, "Enable debug logging.")
	flag.Parse()
	if mcfg.Broker == "" && scfg.Device == "" {
		log.Fatal("nothing to serve: set -mqtt and/or -serial")
	}
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := board.NewLogger(level)
	cfg.Logger, mcfg.Logger, scfg.Logger = logger, logger, logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	b, err := board.Open(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer b.Close()

	dev := devfile.New(b.Engine, logger)
	var wg sync.WaitGroup
	if mcfg.Broker != "" {
		m := bridge.NewMQTT(dev, mcfg)
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveLoop(ctx, logger, "mqtt", m.Serve)
		}()
	}
	if scfg.Device != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveLoop(ctx, logger, "serial", func(ctx context.Context) error {
				return bridge.ServeSerial(ctx, dev, scfg)
			})
		}()
	}
	wg.Wait()
}

func serveLoop(ctx context.Context, logger *slog.Logger, name string, serve func(context.Context) error) {
	for ctx.Err() == nil {
		err := serve(ctx)
		if errors.Is(err, context.Canceled) {
			return
		} else if err != nil {
			logger.Error("bridge:"+name, slog.Any("err", err))
		}
		select {
		case <-ctx.Done():
		case <-time.After(retryDelay):
		}
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spimod/axispi/bridge"
	"github.com/spimod/axispi/devfile"
	"github.com/spimod/axispi/internal/board"
)

func main() {
	cfg := board.DefaultConfig()
	cfg.RegisterFlags(flag.CommandLine)
	verbose := flag.Int("v", 0, "Verbosity: 1 debug, 2 register trace.")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "spimod - Read and write slave registers through an AXI Quad SPI controller.\n\tUsage:\n"+
			"\tspimod [flags] r <addr>\n\tspimod [flags] w <addr> <4 hex bytes>\n\tspimod [flags] e|d\n"+
			"\tspimod [flags]    (interactive shell on stdin)\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	level := slog.LevelInfo
	switch *verbose {
	case 0:
	case 1:
		level = slog.LevelDebug
	default:
		level = slog.LevelDebug - 1
	}
	cfg.Logger = board.NewLogger(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, cfg, flag.Args(), os.Stdin, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg board.Config, args []string, in io.Reader, out io.Writer) error {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	b, err := board.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()
	dev := devfile.New(b.Engine, cfg.Logger)

	if len(args) > 0 {
		reply := bridge.Exec(ctx, dev, strings.Join(args, " "))
		fmt.Fprintln(out, reply)
		if strings.HasPrefix(reply, "err") {
			return errors.New("spimod: command failed")
		}
		return nil
	}
	err = bridge.ServeLines(ctx, dev, struct {
		io.Reader
		io.Writer
	}{in, out}, cfg.Logger)
	st := b.Engine.Stats()
	cfg.Logger.Debug("stats", slog.Uint64("transactions", st.Transactions), slog.Uint64("timeouts", st.Timeouts),
		slog.Uint64("faults", st.Faults), slog.Uint64("interrupts", st.Interrupts), slog.Uint64("mode-faults", st.ModeFaults))
	return err
}

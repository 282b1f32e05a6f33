// package board wires an engine to its register backend: the simulator or a
// memory mapped controller, with interrupt delivery for either.
package board

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/spimod/axispi"
	"github.com/spimod/axispi/mmio"
	"github.com/spimod/axispi/sim"
)

type Config struct {
	// Sim runs against the simulated controller and slave.
	Sim bool
	// StuckTxEmpty makes the simulated transmit register never drain.
	StuckTxEmpty bool
	MMIO         mmio.Config
	Engine       axispi.Config
	Logger       *slog.Logger
}

func DefaultConfig() Config {
	return Config{
		MMIO:   mmio.DefaultConfig(),
		Engine: axispi.DefaultConfig(),
	}
}

// RegisterFlags binds cfg to command line flags on fs.
func (cfg *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.BoolVar(&cfg.Sim, "sim", cfg.Sim, "Use the simulated controller instead of hardware.")
	fs.BoolVar(&cfg.StuckTxEmpty, "sim-stuck-tx", cfg.StuckTxEmpty, "Simulate a transmit register that never drains.")
	fs.StringVar(&cfg.MMIO.Device, "dev", cfg.MMIO.Device, "Register window device: /dev/mem or /dev/uioN.")
	fs.Func("base", "Controller physical base address (default "+strconv.FormatUint(cfg.MMIO.Base, 16)+").", func(s string) error {
		v, err := strconv.ParseUint(s, 0, 64)
		cfg.MMIO.Base = v
		return err
	})
	fs.IntVar(&cfg.Engine.TxEmptyPolls, "tx-polls", cfg.Engine.TxEmptyPolls, "Status reads before a transmit-empty timeout.")
	fs.IntVar(&cfg.Engine.RxReadyPolls, "rx-polls", cfg.Engine.RxReadyPolls, "Status reads before a receive-ready timeout.")
}

// Board is a running engine and its backend.
type Board struct {
	Engine *axispi.Engine
	// Sim is set when running on the simulator.
	Sim *sim.Controller

	closer io.Closer
	cancel context.CancelFunc
	errs   chan error
	tasks  int
}

// Open starts an engine on the configured backend and initializes the
// controller. Close stops it.
func Open(ctx context.Context, cfg Config) (*Board, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))
	}
	cfg.Engine.Logger = cfg.Logger
	ctx, cancel := context.WithCancel(ctx)
	b := &Board{cancel: cancel, errs: make(chan error, 2)}
	var serveIRQ func(context.Context, func()) error
	if cfg.Sim {
		b.Sim = sim.New(nil, sim.Config{
			StuckTxEmpty: cfg.StuckTxEmpty,
			OnInterrupt:  func() { b.Engine.Interrupt() },
		})
		b.Engine = axispi.New(b.Sim, cfg.Engine)
	} else {
		cfg.MMIO.Logger = cfg.Logger
		w, err := mmio.Open(cfg.MMIO)
		if err != nil {
			cancel()
			return nil, err
		}
		b.closer = w
		b.Engine = axispi.New(w, cfg.Engine)
		if cfg.MMIO.IsUIO() {
			serveIRQ = w.ServeIRQ
		} else {
			cfg.Logger.Warn("board:no-irq", slog.String("dev", cfg.MMIO.Device))
		}
	}
	b.tasks++
	go func() { b.errs <- b.Engine.Run(ctx) }()
	if serveIRQ != nil {
		b.tasks++
		go func() { b.errs <- serveIRQ(ctx, b.Engine.Interrupt) }()
	}
	if err := b.Engine.Init(ctx); err != nil {
		return nil, errors.Join(err, b.Close())
	}
	return b, nil
}

// Close stops the engine and releases the backend.
func (b *Board) Close() error {
	b.cancel()
	var err error
	for ; b.tasks > 0; b.tasks-- {
		if terr := <-b.errs; !errors.Is(terr, context.Canceled) {
			err = errors.Join(err, terr)
		}
	}
	if b.closer != nil {
		err = errors.Join(err, b.closer.Close())
	}
	return err
}

// NewLogger returns the text logger used by the commands.
func NewLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

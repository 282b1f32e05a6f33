package board

import (
	"context"
	"errors"
	"flag"
	"testing"

	"github.com/spimod/axispi"
	"github.com/spimod/axispi/reg"
)

func TestFlags(t *testing.T) {
	cfg := DefaultConfig()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg.RegisterFlags(fs)
	err := fs.Parse([]string{"-sim", "-base", "0x43c00000", "-tx-polls", "10", "-dev", "/dev/uio1"})
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Sim || cfg.MMIO.Base != 0x43c0_0000 || cfg.Engine.TxEmptyPolls != 10 || !cfg.MMIO.IsUIO() {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if cfg.Engine.RxReadyPolls != axispi.DefaultRxReadyPolls {
		t.Error("default overwritten", cfg.Engine.RxReadyPolls)
	}
}

func TestOpenSim(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sim = true
	b, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if b.Sim.Peek(reg.GIER) != reg.GIEREnable {
		t.Error("controller not initialized")
	}
	ctx := context.Background()
	if err := b.Engine.WriteWord(ctx, 1, 0x01020304); err != nil {
		t.Fatal(err)
	}
	if v, err := b.Engine.ReadWord(ctx, 1); err != nil || v != 0x01020304 {
		t.Error("read back", v, err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Engine.ReadWord(ctx, 1); !errors.Is(err, axispi.ErrClosed) {
		t.Error("want ErrClosed after Close, got", err)
	}
}

package devfile

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spimod/axispi"
	"github.com/spimod/axispi/sim"
)

func newDevice(t *testing.T) *Device {
	t.Helper()
	e := axispi.New(sim.New(nil, sim.Config{}), axispi.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go e.Run(ctx)
	if err := e.Init(ctx); err != nil {
		t.Fatal(err)
	}
	return New(e, nil)
}

func TestOpenGuard(t *testing.T) {
	d := newDevice(t)
	f, err := d.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.Open(context.Background()); !errors.Is(err, axispi.ErrBusy) {
		t.Error("second open: want ErrBusy, got", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err == nil {
		t.Error("double close succeeded")
	}
	if _, err := f.Write([]byte("e")); err == nil {
		t.Error("write after close succeeded")
	}
	f, err = d.Open(context.Background())
	if err != nil {
		t.Fatal("reopen:", err)
	}
	f.Close()
}

func TestWriteRead(t *testing.T) {
	d := newDevice(t)
	f, err := d.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.Write([]byte("w\x05\x11\x00\x33\x44")); err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte("w\x05\x11\x00\x33\x44"), got); diff != "" {
		t.Error("write result (-want +got):\n" + diff)
	}
	n, err := f.Write([]byte("r\x05"))
	if err != nil || n != 2 {
		t.Fatal(n, err)
	}
	got, err = io.ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	// The zero byte does not truncate the result.
	if diff := cmp.Diff([]byte{0x11, 0x00, 0x33, 0x44}, got); diff != "" {
		t.Error("read result (-want +got):\n" + diff)
	}
	if _, err := f.Write([]byte("x")); !errors.Is(err, axispi.ErrProtocol) {
		t.Error("want ErrProtocol, got", err)
	}
	if _, err := f.Write(make([]byte, axispi.MaxCommandLen+1)); !errors.Is(err, axispi.ErrBuffer) {
		t.Error("want ErrBuffer, got", err)
	}
}

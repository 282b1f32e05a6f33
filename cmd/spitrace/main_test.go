package main

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/soypat/saleae/analyzers"
	"github.com/spimod/axispi"
)

func TestDecode(t *testing.T) {
	txs := []analyzers.TxSPI{
		{SDO: []byte{0x85, 0x44, 0x33, 0x22, 0x11}, SDI: []byte{0, 0, 0, 0, 0}},
		{SDO: []byte{0x05, 0, 0, 0, 0}, SDI: []byte{0, 0x44, 0x33, 0x22, 0x11}},
		{SDO: []byte{0x05, 0, 0, 0, 0}, SDI: []byte{0, 0x44, 0x33, 0x22, 0x11}},
		{SDO: []byte{0x06, 0}, SDI: []byte{0, 0xaa}},
		{},
	}
	frames := decode(txs)
	if len(frames) != 3 {
		t.Fatal("want 3 frames, got", len(frames))
	}
	wantWrite := axispi.WriteCommand(5, [4]byte{0x11, 0x22, 0x33, 0x44})
	if frames[0].Cmd != wantWrite || frames[0].Num != 1 || frames[0].Short {
		t.Error("write frame", frames[0])
	}
	if frames[1].Cmd != axispi.ReadCommand(5) || frames[1].Num != 2 || frames[1].Data != [4]byte{0x11, 0x22, 0x33, 0x44} {
		t.Error("read frame", frames[1])
	}
	if !frames[2].Short || frames[2].Data != [4]byte{0, 0, 0, 0xaa} {
		t.Error("short frame", frames[2])
	}
}

func TestWriteOmit(t *testing.T) {
	frames := []frame{
		{Num: 1, Cmd: axispi.WriteCommand(1, [4]byte{1, 2, 3, 4}), Data: [4]byte{1, 2, 3, 4}},
		{Num: 3, Cmd: axispi.ReadCommand(1), Data: [4]byte{1, 2, 3, 4}},
	}
	var buf bytes.Buffer
	ctl := TraceCtl{OmitWrite: true, OmitReadData: true}
	if err := ctl.write(&buf, frames); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "cmd× 3 read  addr=0x1 data=00000000\n" {
		t.Errorf("got %q", got)
	}
}

func TestScannedTruncated(t *testing.T) {
	var logs bytes.Buffer
	defer slog.SetDefault(slog.Default())
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))

	partial := []analyzers.TxSPI{{SDO: []byte{0x05, 0, 0, 0, 0}, SDI: []byte{0, 1, 2, 3, 4}}}
	errTrunc := errors.New("unexpected end of capture")
	var ctl TraceCtl
	txs, err := ctl.scanned(partial, errTrunc)
	if err != nil || len(txs) != 1 {
		t.Fatalf("want partial frames kept, got %d frames, err=%v", len(txs), err)
	}
	if out := logs.String(); !strings.Contains(out, "level=WARN") || !strings.Contains(out, errTrunc.Error()) {
		t.Error("scan error not logged:", out)
	}

	ctl.Strict = true
	if _, err = ctl.scanned(partial, errTrunc); !errors.Is(err, errTrunc) {
		t.Error("strict scan: want wrapped error, got", err)
	}
	if txs, err = ctl.scanned(partial, nil); err != nil || len(txs) != 1 {
		t.Error("clean scan altered", txs, err)
	}
}

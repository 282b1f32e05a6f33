package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spimod/axispi/internal/board"
)

func simConfig() board.Config {
	cfg := board.DefaultConfig()
	cfg.Sim = true
	return cfg
}

func TestRunOneShot(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), simConfig(), []string{"e"}, nil, &out); err != nil {
		t.Fatal(err)
	}
	if out.String() != "ok 65\n" {
		t.Errorf("got %q", out.String())
	}
	out.Reset()
	if err := run(context.Background(), simConfig(), []string{"x"}, nil, &out); err == nil {
		t.Error("unknown command succeeded")
	}
}

func TestRunShell(t *testing.T) {
	var out bytes.Buffer
	in := strings.NewReader("w 05 11223344\nr 05\n")
	if err := run(context.Background(), simConfig(), nil, in, &out); err != nil {
		t.Fatal(err)
	}
	if want := "ok 770511223344\nok 11223344\n"; out.String() != want {
		t.Errorf("want %q, got %q", want, out.String())
	}
}

func TestRunTimeout(t *testing.T) {
	cfg := simConfig()
	cfg.StuckTxEmpty = true
	cfg.Engine.TxEmptyPolls = 5
	var out bytes.Buffer
	if err := run(context.Background(), cfg, []string{"r", "05"}, nil, &out); err == nil {
		t.Fatal("stuck bus succeeded")
	}
	if !strings.Contains(out.String(), "timeout") {
		t.Error("reply", out.String())
	}
}

package bridge

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spimod/axispi"
	"github.com/spimod/axispi/devfile"
	"github.com/spimod/axispi/sim"
)

func newDevice(t *testing.T) *devfile.Device {
	t.Helper()
	e := axispi.New(sim.New(nil, sim.Config{}), axispi.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go e.Run(ctx)
	if err := e.Init(ctx); err != nil {
		t.Fatal(err)
	}
	return devfile.New(e, nil)
}

func TestParseLine(t *testing.T) {
	for _, tc := range []struct {
		line string
		want []byte
		err  bool
	}{
		{line: "e", want: []byte("e")},
		{line: "  d  ", want: []byte("d")},
		{line: "r 05", want: []byte{'r', 5}},
		{line: "r 7f", want: []byte{'r', 0x7f}},
		{line: "w 05 11223344", want: []byte{'w', 5, 0x11, 0x22, 0x33, 0x44}},
		{line: "x", want: []byte("x")},
		{line: "", err: true},
		{line: "read 05", err: true},
		{line: "r", err: true},
		{line: "r 100", err: true},
		{line: "r zz", err: true},
		{line: "w 05 112233", err: true},
		{line: "w 05 1122334g", err: true},
		{line: "e 1", err: true},
	} {
		got, err := ParseLine(tc.line)
		if (err != nil) != tc.err {
			t.Errorf("%q: unexpected error state %v", tc.line, err)
			continue
		}
		if tc.err && !errors.Is(err, errSyntax) {
			t.Errorf("%q: want syntax error, got %v", tc.line, err)
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("%q: (-want +got):\n%s", tc.line, diff)
		}
	}
}

func TestServeLines(t *testing.T) {
	dev := newDevice(t)
	in := strings.NewReader("w 05 11003344\r\n\nr 05\nx\nr\nr 80\ne\n")
	var out bytes.Buffer
	err := ServeLines(context.Background(), dev, struct {
		io.Reader
		io.Writer
	}{in, &out}, nil)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	if len(lines) != 6 {
		t.Fatalf("got %d replies: %q", len(lines), lines)
	}
	for i, want := range map[int]string{0: "ok 770511003344", 1: "ok 11003344", 5: "ok 65"} {
		if lines[i] != want {
			t.Errorf("reply %d: want %q, got %q", i, want, lines[i])
		}
	}
	for _, l := range lines[2:5] {
		if !strings.HasPrefix(l, "err ") {
			t.Error("want error reply, got", l)
		}
	}
	if !strings.Contains(lines[2], axispi.ErrProtocol.Error()) {
		t.Error("unknown command reply", lines[2])
	}
	// Handles are released after every request.
	f, err := dev.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
}

func TestServeLinesBusyDevice(t *testing.T) {
	dev := newDevice(t)
	f, err := dev.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	rw := struct {
		io.Reader
		io.Writer
	}{strings.NewReader("e\n"), &out}
	if err = ServeLines(context.Background(), dev, rw, nil); err != nil {
		t.Fatal(err)
	}
	if want := "err " + axispi.ErrBusy.Error() + "\n"; out.String() != want {
		t.Errorf("want %q, got %q", want, out.String())
	}
	f.Close()
}

func TestServeLinesTooLong(t *testing.T) {
	dev := newDevice(t)
	in := strings.NewReader(strings.Repeat("r", maxLine+100) + "\ne\n")
	var out bytes.Buffer
	rw := struct {
		io.Reader
		io.Writer
	}{in, &out}
	if err := ServeLines(context.Background(), dev, rw, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "line too long") {
		t.Error("no overflow reply:", out.String())
	}
}

func TestIdlePortRead(t *testing.T) {
	var buf [8]byte
	idle := idlePort{struct {
		io.Reader
		io.Writer
	}{strings.NewReader(""), io.Discard}}
	if n, err := idle.Read(buf[:]); n != 0 || err != nil {
		t.Errorf("timed out read: want (0, nil), got (%d, %v)", n, err)
	}
	data := idlePort{struct {
		io.Reader
		io.Writer
	}{strings.NewReader("e\n"), io.Discard}}
	if n, err := data.Read(buf[:]); n != 2 || err != nil {
		t.Errorf("want (2, nil), got (%d, %v)", n, err)
	}
}

package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/soypat/saleae"
	"github.com/soypat/saleae/analyzers"
	"github.com/spimod/axispi"
)

// Slave frame layout: address byte, write marker in the top bit, then the
// word bytes highest index first.
const (
	writeMarker = 0x80
	wordSize    = 4
)

type TraceCtl struct {
	OmitRead     bool
	OmitWrite    bool
	OmitReadData bool
	// Timings writes frame start times to the output alongside each line.
	Timings bool
	// Strict fails on a capture the analyzer could not scan to the end.
	Strict bool
}

func main() {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(handler))
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "spitrace - Decode Saleae binary digital captures of spimod register transactions.\n\tUsage:\n")
		flag.PrintDefaults()
	}
	cs := flag.String("f-cs", "digital_0.bin", "Input filename: SPI CS/SS data.")
	clk := flag.String("f-clk", "digital_1.bin", "Input filename: SPI SCK data.")
	mosi := flag.String("f-mosi", "digital_2.bin", "Input filename: SPI MOSI data.")
	miso := flag.String("f-miso", "digital_3.bin", "Input filename: SPI MISO data.")
	output := flag.String("o", "", "Output filename of decoded transactions. Defaults to stdout.")
	var ctl TraceCtl
	flag.BoolVar(&ctl.OmitRead, "omit-read", false, "Omit read transactions in output.")
	flag.BoolVar(&ctl.OmitWrite, "omit-write", false, "Omit write transactions in output.")
	flag.BoolVar(&ctl.OmitReadData, "omit-read-data", false, "Omit data of read transactions.")
	flag.BoolVar(&ctl.Timings, "t", false, "Print frame start time.")
	flag.BoolVar(&ctl.Strict, "strict", false, "Fail on a truncated or malformed capture instead of decoding what was scanned.")
	flag.Parse()
	if ctl.OmitRead && ctl.OmitWrite {
		log.Fatal("cannot omit both read and write transactions")
	}
	start := time.Now()
	if err := ctl.run(*cs, *clk, *mosi, *miso, *output); err != nil {
		log.Fatal(err.Error())
	}
	slog.Debug("finished", slog.Duration("elapsed", time.Since(start)))
}

func (ctl *TraceCtl) run(fcs, fclk, fmosi, fmiso, output string) error {
	var files [4]*saleae.DigitalFile
	for i, name := range []string{fcs, fclk, fmosi, fmiso} {
		df, err := opendigital(name)
		if err != nil {
			return err
		}
		files[i] = df
	}
	spi := analyzers.SPI{}
	txs, err := ctl.scanned(spi.Scan(files[1], files[0], files[2], files[3]))
	if err != nil {
		return err
	}
	slog.Debug("scanned", slog.Int("frames", len(txs)))

	var w io.Writer = os.Stdout
	if output != "" {
		fp, err := os.Create(output)
		if err != nil {
			return err
		}
		defer fp.Close()
		w = fp
	}
	return ctl.write(w, decode(txs))
}

// scanned handles a capture the analyzer stopped scanning early. The frames
// decoded up to that point are kept unless ctl.Strict is set.
func (ctl *TraceCtl) scanned(txs []analyzers.TxSPI, err error) ([]analyzers.TxSPI, error) {
	if err == nil {
		return txs, nil
	}
	if ctl.Strict {
		return nil, errors.Join(errors.New("spitrace: scan"), err)
	}
	slog.Warn("scan incomplete", slog.Int("frames", len(txs)), slog.String("err", err.Error()))
	return txs, nil
}

func opendigital(filename string) (*saleae.DigitalFile, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	return saleae.ReadDigitalFile(fp)
}

// frame is one decoded chip-select frame, repeated Num times in a row.
type frame struct {
	Num   int
	Cmd   axispi.Command
	Data  [wordSize]byte // Caller order.
	Short bool           // Frame ended before the word was complete.
	Start float64
}

func (f frame) String() string {
	s := fmt.Sprintf("cmd×%2d %-5s addr=%#02x data=%x", f.Num, f.Cmd.Op, f.Cmd.Addr, f.Data)
	if f.Short {
		s += " short"
	}
	return s
}

// decode groups SPI transactions into register frames. Identical
// consecutive frames are merged.
func decode(txs []analyzers.TxSPI) (frames []frame) {
	for _, tx := range txs {
		if len(tx.SDO) == 0 {
			continue
		}
		f := frame{Num: 1, Start: tx.StartTime()}
		f.Cmd.Addr = tx.SDO[0] &^ writeMarker
		f.Cmd.Op = axispi.OpRead
		wire := tx.SDI
		if tx.SDO[0]&writeMarker != 0 {
			f.Cmd.Op = axispi.OpWrite
			wire = tx.SDO
		}
		wire = wire[min(1, len(wire)):]
		f.Short = len(wire) < wordSize
		for i := 0; i < wordSize && i < len(wire); i++ {
			f.Data[wordSize-1-i] = wire[i]
		}
		if f.Cmd.Op == axispi.OpWrite {
			f.Cmd.Data = f.Data
		}
		if n := len(frames); n > 0 && frames[n-1].Cmd == f.Cmd && frames[n-1].Data == f.Data && frames[n-1].Short == f.Short {
			frames[n-1].Num++
			continue
		}
		frames = append(frames, f)
	}
	return frames
}

func (ctl *TraceCtl) write(w io.Writer, frames []frame) error {
	var buf bytes.Buffer
	for _, f := range frames {
		read := f.Cmd.Op == axispi.OpRead
		if (ctl.OmitRead && read) || (ctl.OmitWrite && !read) {
			continue
		}
		if ctl.OmitReadData && read {
			f.Data = [wordSize]byte{}
		}
		if ctl.Timings {
			fmt.Fprintf(&buf, "t=%f\t", f.Start)
		}
		buf.WriteString(f.String())
		buf.WriteByte('\n')
	}
	_, err := w.Write(buf.Bytes())
	return err
}

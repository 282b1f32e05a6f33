package bridge

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/spimod/axispi/devfile"
	"github.com/tarm/serial"
)

// maxLine bounds a request line, command and hex arguments included.
const maxLine = 256

type SerialConfig struct {
	// Device is the serial port, for example /dev/ttyPS0.
	Device string
	Baud   int
	// ReadTimeout bounds each read so Serve notices cancellation.
	ReadTimeout time.Duration
	Logger      *slog.Logger
}

func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		Device:      "/dev/ttyPS0",
		Baud:        115200,
		ReadTimeout: 200 * time.Millisecond,
	}
}

// ServeSerial opens the configured port and serves dev over it until ctx is
// done.
func ServeSerial(ctx context.Context, dev *devfile.Device, cfg SerialConfig) error {
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return err
	}
	defer port.Close()
	if cfg.Logger != nil {
		cfg.Logger.Info("serial:open", slog.String("dev", cfg.Device), slog.Int("baud", cfg.Baud))
	}
	return ServeLines(ctx, dev, idlePort{port}, cfg.Logger)
}

// idlePort hides read timeouts of a serial port. A tty read that times out
// with no data returns io.EOF; that is an idle line, not the end of it.
type idlePort struct {
	io.ReadWriter
}

func (p idlePort) Read(b []byte) (int, error) {
	n, err := p.ReadWriter.Read(b)
	if n == 0 && errors.Is(err, io.EOF) {
		return 0, nil
	}
	return n, err
}

// ServeLines answers newline terminated requests read from rw until ctx is
// done or rw reaches EOF. Reads that return no data without an error are
// retried, so a port with a read timeout must report timeouts that way.
func ServeLines(ctx context.Context, dev *devfile.Device, rw io.ReadWriter, logger *slog.Logger) error {
	var (
		buf  [64]byte
		line []byte
	)
	for ctx.Err() == nil {
		n, err := rw.Read(buf[:])
		line = append(line, buf[:n]...)
		for {
			i := bytes.IndexByte(line, '\n')
			if i < 0 {
				break
			}
			req := string(bytes.TrimRight(line[:i], "\r"))
			line = line[i+1:]
			if len(bytes.TrimSpace([]byte(req))) == 0 {
				continue
			}
			reply := Exec(ctx, dev, req)
			if logger != nil {
				logger.Debug("serial:request", slog.String("req", req), slog.String("reply", reply))
			}
			if _, werr := io.WriteString(rw, reply+"\n"); werr != nil {
				return werr
			}
		}
		if len(line) > maxLine {
			line = line[:0]
			if _, werr := io.WriteString(rw, FormatResult(nil, errors.Join(errSyntax, errors.New("line too long")))+"\n"); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}
	}
	return ctx.Err()
}

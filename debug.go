package axispi

import (
	"context"
	"log/slog"

	"github.com/spimod/axispi/reg"
)

// levelTrace logs every register level step of a transaction.
const levelTrace slog.Level = slog.LevelDebug - 1

func (e *Engine) logerr(msg string, attrs ...slog.Attr) {
	e.logattrs(slog.LevelError, msg, attrs...)
}

func (e *Engine) warn(msg string, attrs ...slog.Attr) {
	e.logattrs(slog.LevelWarn, msg, attrs...)
}

func (e *Engine) info(msg string, attrs ...slog.Attr) {
	e.logattrs(slog.LevelInfo, msg, attrs...)
}

func (e *Engine) debug(msg string, attrs ...slog.Attr) {
	e.logattrs(slog.LevelDebug, msg, attrs...)
}

func (e *Engine) trace(msg string, attrs ...slog.Attr) {
	if e._traceenabled {
		e.logattrs(levelTrace, msg, attrs...)
	}
}

func (e *Engine) logattrs(level slog.Level, msg string, attrs ...slog.Attr) {
	if e.logger != nil {
		e.logger.LogAttrs(context.Background(), level, msg, attrs...)
	}
}

func regattr(key string, v uint32) slog.Attr {
	return slog.String(key, reg.Hex(v))
}

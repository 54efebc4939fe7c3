// Package logger is the engine's leveled text logger. Every line carries one of
// the level tokens ERROR, WARNING, INFO, SIGNAL, BUY or SELL so that log readers
// can classify it without parsing.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Custom levels sit between INFO and WARN so level filtering keeps them with INFO.
const (
	LevelSignal = slog.Level(1)
	LevelBuy    = slog.Level(2)
	LevelSell   = slog.Level(3)
)

const defaultTailSize = 5000

var (
	levelVar   slog.LevelVar
	loggerMu   sync.RWMutex
	baseLogger *slog.Logger
	output     io.Writer = os.Stdout
	tail                 = NewRing(defaultTailSize)
)

func init() {
	levelVar.Set(slog.LevelInfo)
	baseLogger = newLogger(os.Stdout)
}

func levelName(l slog.Level) string {
	switch l {
	case LevelSignal:
		return "SIGNAL"
	case LevelBuy:
		return "BUY"
	case LevelSell:
		return "SELL"
	case slog.LevelWarn:
		return "WARNING"
	}
	return l.String()
}

func newLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewTextHandler(io.MultiWriter(w, tail), &slog.HandlerOptions{
		Level: &levelVar,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(levelName(lvl))
				}
			}
			return a
		},
	})
	return slog.New(handler)
}

// SetOutput replaces the primary sink. The in-memory tail always receives a copy.
func SetOutput(w io.Writer) {
	loggerMu.Lock()
	output = w
	baseLogger = newLogger(w)
	loggerMu.Unlock()
}

func SetLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "info":
		levelVar.Set(slog.LevelInfo)
	case "warn", "warning":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
}

func activeLogger() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return baseLogger
}

// Writer returns the current primary sink (used by gin's writers).
func Writer() io.Writer {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return io.MultiWriter(output, tail)
}

func logf(level slog.Level, format string, v ...any) {
	activeLogger().Log(context.Background(), level, fmt.Sprintf(format, v...))
}

func Debugf(format string, v ...any)  { logf(slog.LevelDebug, format, v...) }
func Infof(format string, v ...any)   { logf(slog.LevelInfo, format, v...) }
func Warnf(format string, v ...any)   { logf(slog.LevelWarn, format, v...) }
func Errorf(format string, v ...any)  { logf(slog.LevelError, format, v...) }
func Signalf(format string, v ...any) { logf(LevelSignal, format, v...) }

// Tradef logs an order fill under the BUY or SELL token.
func Tradef(side string, format string, v ...any) {
	level := LevelBuy
	if strings.EqualFold(side, "SELL") {
		level = LevelSell
	}
	logf(level, format, v...)
}

// Tail returns up to n of the most recent log lines, oldest first.
func Tail(n int) []string {
	return tail.Last(n)
}

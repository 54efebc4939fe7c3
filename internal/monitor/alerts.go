package monitor

import "supertrend-core/internal/logger"

// AlertSink interface for pluggable alert delivery.
type AlertSink interface {
	Send(message string) error
}

// LogSink writes alerts to the engine log as WARNING lines.
type LogSink struct{}

func (LogSink) Send(message string) error {
	logger.Warnf("ALERT %s", message)
	return nil
}

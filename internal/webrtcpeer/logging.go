package webrtcpeer

import (
	"fmt"
	"log/slog"

	"github.com/pion/logging"
)

// NewLoggerFactory bridges pion's leveled logging onto the process slog
// logger. Pion trace output maps to debug; everything else keeps its level.
func NewLoggerFactory(logger *slog.Logger) logging.LoggerFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &slogLoggerFactory{logger: logger}
}

type slogLoggerFactory struct {
	logger *slog.Logger
}

func (f *slogLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &slogLeveledLogger{log: f.logger.With("scope", scope)}
}

type slogLeveledLogger struct {
	log *slog.Logger
}

func (l *slogLeveledLogger) Trace(msg string) { l.log.Debug(msg) }
func (l *slogLeveledLogger) Tracef(format string, args ...any) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func (l *slogLeveledLogger) Debug(msg string) { l.log.Debug(msg) }
func (l *slogLeveledLogger) Debugf(format string, args ...any) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

func (l *slogLeveledLogger) Info(msg string) { l.log.Info(msg) }
func (l *slogLeveledLogger) Infof(format string, args ...any) {
	l.log.Info(fmt.Sprintf(format, args...))
}

func (l *slogLeveledLogger) Warn(msg string) { l.log.Warn(msg) }
func (l *slogLeveledLogger) Warnf(format string, args ...any) {
	l.log.Warn(fmt.Sprintf(format, args...))
}

func (l *slogLeveledLogger) Error(msg string) { l.log.Error(msg) }
func (l *slogLeveledLogger) Errorf(format string, args ...any) {
	l.log.Error(fmt.Sprintf(format, args...))
}

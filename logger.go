package tspacer

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Right now we use a package-level logger because it feels weird to thread
// a logger argument through the pure bit-level parsing functions. It is
// consulted to let the caller know about recoverable events on the wire:
// an unhandled descriptor tag, a sync-byte skip, a unit dropped after a
// decode error, an oversized fragment, or an early end of the producer loop.
var logger = zap.NewNop()

// SetLogger replaces the package-level logger. Passing nil restores the
// no-op default.
func SetLogger(l *zap.Logger) {
	if l == nil {
		logger = zap.NewNop()
		return
	}
	logger = l
}

// NewRotatingFileLogger builds a *zap.Logger that writes leveled JSON
// records into path, rotated by lumberjack the way ausocean/av backs its
// zap core with gopkg.in/natefinch/lumberjack.v2.
func NewRotatingFileLogger(path string, maxSizeMB, maxBackups, maxAgeDays int) *zap.Logger {
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	})
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), w, zapcore.DebugLevel)
	return zap.New(core)
}

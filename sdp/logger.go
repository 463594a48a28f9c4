package sdp

import "go.uber.org/zap"

var logger = zap.NewNop()

// SetLogger replaces this package's structured logger, mirroring
// tspacer.SetLogger. Passing nil restores the no-op default.
func SetLogger(l *zap.Logger) {
	if l == nil {
		logger = zap.NewNop()
		return
	}
	logger = l
}

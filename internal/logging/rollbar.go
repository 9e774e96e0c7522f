package logger

import (
	"admissions-go/internal/config"

	"github.com/rollbar/rollbar-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// WithRollbar forwards error-level entries to Rollbar. Without a token the
// logger is returned unchanged.
func WithRollbar(log *zap.Logger, conf config.RollbarConfig) *zap.Logger {
	if conf.Token == "" {
		return log
	}
	rollbar.SetToken(conf.Token)
	rollbar.SetEnvironment(conf.Environment)
	rollbar.SetServerRoot("admissions-go")

	return log.WithOptions(zap.Hooks(rollbarHook))
}

func rollbarHook(entry zapcore.Entry) error {
	if entry.Level < zapcore.ErrorLevel {
		return nil
	}
	rollbar.Error(entry.Message, map[string]interface{}{
		"caller": entry.Caller.TrimmedPath(),
		"logger": entry.LoggerName,
	})
	return nil
}

// Close flushes pending Rollbar items.
func Close() {
	rollbar.Close()
}

package gptbatch

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// We've omitted 'Fatal' errors. This library shouldn't cause any panics or os.Exit()s.

// Logger: An interface to support different logging implementations, with a default no-op Logger provided.
// A *zap.SugaredLogger satisfies it as is.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
}

// NewZapLogger returns a console logger writing to stderr, at debug level when debug is set.
func NewZapLogger(debug bool) *zap.SugaredLogger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stderr),
		level,
	)

	return zap.New(core, zap.AddCaller()).Sugar()
}

// noOpLogger: A no-operation logger implementation that does not log anything. This is the default logger used if no custom logger is provided.
type noOpLogger struct{}

func (n *noOpLogger) Debug(args ...interface{})                 {}
func (n *noOpLogger) Debugf(format string, args ...interface{}) {}
func (n *noOpLogger) Info(args ...interface{})                  {}
func (n *noOpLogger) Infof(format string, args ...interface{})  {}
func (n *noOpLogger) Warn(args ...interface{})                  {}
func (n *noOpLogger) Warnf(format string, args ...interface{})  {}
func (n *noOpLogger) Error(args ...interface{})                 {}
func (n *noOpLogger) Errorf(format string, args ...interface{}) {}

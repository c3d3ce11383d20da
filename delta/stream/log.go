package stream

import (
	"log"
	"os"

	"go.uber.org/zap"
)

type Logger interface {
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
}

type stdLog struct {
	logger *log.Logger
}

var _ Logger = (*stdLog)(nil)

func (s *stdLog) Infof(format string, v ...interface{}) {
	// NOTE: there is no concept of levels in the stdlib log package
	// For less noise, this default implementation will not print any non-error messages
	// To see these use the zap-backed logger via WithLogger(ZapLogger(...))
}

func (s *stdLog) Warnf(format string, v ...interface{}) {
	// NOTE: there is no concept of levels in the stdlib log package
	// For less noise, this default implementation will not print any non-error messages
	// To see these use the zap-backed logger via WithLogger(ZapLogger(...))
}

func (s *stdLog) Errorf(format string, v ...interface{}) {
	s.logger.Printf(format, v...)
}

// DefaultLogger returns a Logger that only prints errors, to stderr.
func DefaultLogger() Logger {
	return &stdLog{logger: log.New(os.Stderr, "", log.LstdFlags)}
}

type zapLog struct {
	sugar *zap.SugaredLogger
}

var _ Logger = (*zapLog)(nil)

func (z *zapLog) Infof(format string, v ...interface{})  { z.sugar.Infof(format, v...) }
func (z *zapLog) Warnf(format string, v ...interface{})  { z.sugar.Warnf(format, v...) }
func (z *zapLog) Errorf(format string, v ...interface{}) { z.sugar.Errorf(format, v...) }

// ZapLogger adapts a zap logger to the stream Logger interface.
func ZapLogger(l *zap.Logger) Logger {
	return &zapLog{sugar: l.Sugar()}
}

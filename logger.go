package loader

import (
	"go.uber.org/zap"

	"github.com/lbbs/loader/bbsmodule"
)

// Logger defines the interface used for all loader and module logging. The
// shape matches bbsmodule.Logger so a module's self-token logger and the
// loader's own logger are interchangeable.
//
// Example implementation using zap, the default used by NewZapLogger:
//
//	logger.Info("module loaded", "name", name, "state", state)
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

var _ bbsmodule.Logger = Logger(nil)

// zapLogger adapts a zap.SugaredLogger to Logger.
type zapLogger struct {
	s *zap.SugaredLogger
}

// NewZapLogger builds the default Logger implementation on top of
// go.uber.org/zap, matching the key-value logging shape used throughout the
// loader.
func NewZapLogger(z *zap.Logger) Logger {
	return &zapLogger{s: z.Sugar()}
}

// NewProductionLogger constructs a zap production logger and wraps it.
func NewProductionLogger() (Logger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return NewZapLogger(z), nil
}

func (l *zapLogger) Info(msg string, args ...any)  { l.s.Infow(msg, args...) }
func (l *zapLogger) Error(msg string, args ...any) { l.s.Errorw(msg, args...) }
func (l *zapLogger) Warn(msg string, args ...any)  { l.s.Warnw(msg, args...) }
func (l *zapLogger) Debug(msg string, args ...any) { l.s.Debugw(msg, args...) }

// namedLogger adds a "module" key-value pair naming the module to every
// log call, handed to modules as part of their self-token.
type namedLogger struct {
	name string
	base Logger
}

func newNamedLogger(name string, base Logger) Logger {
	return &namedLogger{name: name, base: base}
}

func (l *namedLogger) Info(msg string, args ...any) {
	l.base.Info(msg, append([]any{"module", l.name}, args...)...)
}

func (l *namedLogger) Error(msg string, args ...any) {
	l.base.Error(msg, append([]any{"module", l.name}, args...)...)
}

func (l *namedLogger) Warn(msg string, args ...any) {
	l.base.Warn(msg, append([]any{"module", l.name}, args...)...)
}

func (l *namedLogger) Debug(msg string, args ...any) {
	l.base.Debug(msg, append([]any{"module", l.name}, args...)...)
}

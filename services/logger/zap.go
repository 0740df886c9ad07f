package logsvc

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/uniroute/uniroute/core"
)

// ZapLogger is the default logger; Rollbar takes over in production.
type ZapLogger struct {
	zl      *zap.SugaredLogger
	enabled bool
}

var _ core.Logger = (*ZapLogger)(nil)

func NewZapLogger(conf *core.Config) (*ZapLogger, error) {
	var cfg zap.Config
	if conf.Debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.InitialFields = map[string]interface{}{
		"app":   conf.AppName,
		"env":   conf.Env,
		"build": conf.Build,
	}

	zl, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &ZapLogger{zl: zl.Sugar(), enabled: true}, nil
}

func (l *ZapLogger) Enable(enabled bool) { l.enabled = enabled }

func (l *ZapLogger) Debug(msg string, args ...interface{}) {
	if l.enabled {
		l.zl.Debugw(msg, kvArgs(args)...)
	}
}

func (l *ZapLogger) Info(msg string, args ...interface{}) {
	if l.enabled {
		l.zl.Infow(msg, kvArgs(args)...)
	}
}

func (l *ZapLogger) Warn(msg string, args ...interface{}) {
	if l.enabled {
		l.zl.Warnw(msg, kvArgs(args)...)
	}
}

func (l *ZapLogger) Error(msg string, args ...interface{}) {
	if l.enabled {
		l.zl.Errorw(msg, kvArgs(args)...)
	}
}

func (l *ZapLogger) Fatal(msg string, args ...interface{}) {
	l.zl.Fatalw(msg, kvArgs(args)...)
}

// kvArgs turns loose args into zap keyed fields; bare errors keep the
// conventional "error" key.
func kvArgs(args []interface{}) []interface{} {
	kvs := make([]interface{}, 0, len(args)*2)
	for i, arg := range args {
		switch v := arg.(type) {
		case error:
			kvs = append(kvs, zap.Error(v))
		case map[string]interface{}:
			for k, val := range v {
				kvs = append(kvs, k, val)
			}
		default:
			kvs = append(kvs, zap.Any(fmt.Sprintf("arg%d", i), v))
		}
	}
	return kvs
}

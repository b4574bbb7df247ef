package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config configura el logger del servicio.
type Config struct {
	// Env: "prod" loguea JSON; cualquier otro valor, consola de dev.
	Env string

	// Level mínimo: "debug", "info", "warn", "error". Default "info".
	Level string

	// ServiceName se agrega como campo "service". Default "identsync".
	ServiceName string

	// Version del binario, opcional (campo "version").
	Version string
}

// build arma el logger según la configuración.
func build(cfg Config) *zap.Logger {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "identsync"
	}

	prod := strings.EqualFold(strings.TrimSpace(cfg.Env), "prod")
	var zcfg zap.Config
	if prod {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zcfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		// en dev el stacktrace de warn es ruido
		zcfg.DisableStacktrace = true
	}
	zcfg.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	zcfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	opts := []zap.Option{zap.AddCaller(), zap.AddCallerSkip(1)}
	if prod {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	l, err := zcfg.Build(opts...)
	if err != nil {
		// fallback mínimo si la config no construye
		l, _ = zap.NewProduction()
		return l
	}

	fields := []zap.Field{zap.String("service", cfg.ServiceName)}
	if cfg.Version != "" {
		fields = append(fields, zap.String("version", cfg.Version))
	}
	return l.With(fields...)
}

// parseLevel convierte el nivel configurado; desconocido o vacío → info.
func parseLevel(lvl string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

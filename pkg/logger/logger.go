package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config содержит настройки логгера.
type Config struct {
	Level      string // debug, info, warn, error
	Encoding   string // json или console
	OutputPath string // пусто = stdout
	Service    string // поле "service" в каждой записи
	Version    string // поле "version", если задано
}

// New builds a zap.Logger for the trigger handlers. Unknown levels fall back
// to info, unknown encodings to json. Service and Version are attached to
// every entry so lines from both transports can be told apart in a shared sink.
func New(cfg Config) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(normalizeLevel(cfg.Level))); err != nil {
		// Логгера еще нет, пишем в stderr.
		fmt.Fprintf(os.Stderr, "Invalid log level '%s', using 'info'. Error: %v\n", cfg.Level, err)
		level.SetLevel(zap.InfoLevel)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	outputPath := cfg.OutputPath
	if outputPath == "" {
		outputPath = "stdout"
	}

	zapConfig := zap.Config{
		Level:             level,
		DisableCaller:     true,
		DisableStacktrace: true,
		Encoding:          normalizeEncoding(cfg.Encoding),
		EncoderConfig:     encoderCfg,
		OutputPaths:       []string{outputPath},
		ErrorOutputPaths:  []string{"stderr"},
		InitialFields:     initialFields(cfg),
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

func initialFields(cfg Config) map[string]interface{} {
	fields := make(map[string]interface{}, 2)
	if cfg.Service != "" {
		fields["service"] = cfg.Service
	}
	if cfg.Version != "" {
		fields["version"] = cfg.Version
	}
	return fields
}

func normalizeLevel(raw string) string {
	lvl := strings.ToLower(strings.TrimSpace(raw))
	if lvl == "" {
		return "info"
	}
	return lvl
}

func normalizeEncoding(raw string) string {
	enc := strings.ToLower(strings.TrimSpace(raw))
	if enc != "console" && enc != "json" {
		return "json"
	}
	return enc
}

package utils

import (
	"os"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var unsafeChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// NewLogger builds a console logger with ISO8601 timestamps.
func NewLogger(debug bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Encoding = "console"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	if debug {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return config.Build()
}

func LookupEnv(key, defaultValue string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultValue
}

// SafeName turns a product name into something usable as a file name.
func SafeName(name string) string {
	name = unsafeChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "_"
	}
	return name
}

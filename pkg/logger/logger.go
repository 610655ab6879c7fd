// Package logger is the process-wide component logger. Every call names the
// component it comes from and may attach structured fields.
package logger

import (
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var (
	mu     sync.RWMutex
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base   *zap.Logger
	format = "json"
)

func init() {
	base = build(format, os.Stderr)
}

func build(f string, out zapcore.WriteSyncer) *zap.Logger {
	var encoder zapcore.Encoder
	if f == "console" {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(cfg)
	} else {
		cfg := zap.NewProductionEncoderConfig()
		cfg.TimeKey = "ts"
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
	}
	return zap.New(zapcore.NewCore(encoder, out, level))
}

// Configure switches the output format ("json" or "console") and level name.
// Unknown level names leave the current level in place.
func Configure(outputFormat, levelName string) {
	outputFormat = strings.ToLower(strings.TrimSpace(outputFormat))
	if outputFormat != "console" {
		outputFormat = "json"
	}
	if lvl, ok := ParseLevel(levelName); ok {
		SetLevel(lvl)
	}

	mu.Lock()
	defer mu.Unlock()
	if outputFormat == format {
		return
	}
	_ = base.Sync()
	format = outputFormat
	base = build(format, os.Stderr)
}

// SetOutput redirects log output; tests use it to capture lines.
func SetOutput(out zapcore.WriteSyncer) {
	mu.Lock()
	defer mu.Unlock()
	base = build(format, out)
}

func ParseLevel(name string) (LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DEBUG, true
	case "info":
		return INFO, true
	case "warn", "warning":
		return WARN, true
	case "error":
		return ERROR, true
	case "fatal":
		return FATAL, true
	default:
		return INFO, false
	}
}

func SetLevel(l LogLevel) {
	level.SetLevel(toZap(l))
}

func GetLevel() LogLevel {
	switch level.Level() {
	case zapcore.DebugLevel:
		return DEBUG
	case zapcore.WarnLevel:
		return WARN
	case zapcore.ErrorLevel:
		return ERROR
	case zapcore.FatalLevel:
		return FATAL
	default:
		return INFO
	}
}

func toZap(l LogLevel) zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	case FATAL:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Sync flushes buffered output. Call once on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}

func logCF(l LogLevel, component, message string, fields map[string]interface{}) {
	mu.RLock()
	lg := base
	mu.RUnlock()

	zl := toZap(l)
	if !level.Enabled(zl) {
		return
	}

	zfields := make([]zap.Field, 0, len(fields)+1)
	if component != "" {
		zfields = append(zfields, zap.String("component", component))
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		zfields = append(zfields, zap.Any(k, fields[k]))
	}

	if ce := lg.Check(zl, message); ce != nil {
		ce.Write(zfields...)
	}
}

func DebugCF(component, message string, fields map[string]interface{}) {
	logCF(DEBUG, component, message, fields)
}

func InfoCF(component, message string, fields map[string]interface{}) {
	logCF(INFO, component, message, fields)
}

func WarnCF(component, message string, fields map[string]interface{}) {
	logCF(WARN, component, message, fields)
}

func ErrorCF(component, message string, fields map[string]interface{}) {
	logCF(ERROR, component, message, fields)
}

// FatalCF logs and exits the process.
func FatalCF(component, message string, fields map[string]interface{}) {
	logCF(FATAL, component, message, fields)
	os.Exit(1)
}

func DebugC(component, message string) { logCF(DEBUG, component, message, nil) }
func InfoC(component, message string)  { logCF(INFO, component, message, nil) }
func WarnC(component, message string)  { logCF(WARN, component, message, nil) }
func ErrorC(component, message string) { logCF(ERROR, component, message, nil) }

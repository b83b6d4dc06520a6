package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log   = zap.NewNop()
	level = zap.NewAtomicLevel()
)

type Configuration struct {
	LogFile   string
	ErrorFile string
	Level     string
	Console   bool
}

// Initialize replaces the package logger. Every sink shares one atomic level,
// except the error file which never records below error.
func Initialize(configuration Configuration) error {
	if err := SetLevel(configuration.Level); err != nil {
		return err
	}

	var (
		cores  []zapcore.Core
		closes []func()
	)
	fail := func(err error) error {
		for _, closeSink := range closes {
			closeSink()
		}
		return fmt.Errorf("logger: %w", err)
	}

	if configuration.LogFile != "" {
		core, closeSink, err := fileCore(configuration.LogFile, level)
		if err != nil {
			return fail(err)
		}
		cores = append(cores, core)
		closes = append(closes, closeSink)
	}
	if configuration.ErrorFile != "" {
		errorsOnly := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return l >= zapcore.ErrorLevel && level.Enabled(l)
		})
		core, closeSink, err := fileCore(configuration.ErrorFile, errorsOnly)
		if err != nil {
			return fail(err)
		}
		cores = append(cores, core)
		closes = append(closes, closeSink)
	}
	if configuration.Console {
		console := encoderConfig()
		console.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(console), zapcore.Lock(os.Stdout), level))
	}

	log = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
	return nil
}

// SetLevel changes the minimum level of every sink at runtime. An empty level
// means info.
func SetLevel(name string) error {
	if name == "" {
		level.SetLevel(zapcore.InfoLevel)
		return nil
	}
	parsed, err := zapcore.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	level.SetLevel(parsed)
	return nil
}

func Level() zapcore.Level {
	return level.Level()
}

func encoderConfig() zapcore.EncoderConfig {
	config := zap.NewProductionEncoderConfig()
	config.TimeKey = "timestamp"
	config.MessageKey = "message"
	config.EncodeTime = zapcore.ISO8601TimeEncoder
	return config
}

// fileCore appends JSON lines to path.
func fileCore(path string, enabler zapcore.LevelEnabler) (zapcore.Core, func(), error) {
	sink, closeSink, err := zap.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), sink, enabler), closeSink, nil
}

// Named returns a child logger for a component. Unlike the package helpers it
// does not skip a caller frame.
func Named(name string) *zap.Logger {
	return log.WithOptions(zap.AddCallerSkip(-1)).Named(name)
}

func Sync() {
	_ = log.Sync()
}

func Debug(message string, fields ...zap.Field) {
	log.Debug(message, fields...)
}

func Info(message string, fields ...zap.Field) {
	log.Info(message, fields...)
}

func Warn(message string, fields ...zap.Field) {
	log.Warn(message, fields...)
}

func Error(message string, fields ...zap.Field) {
	log.Error(message, fields...)
}

func Fatal(message string, fields ...zap.Field) {
	log.Fatal(message, fields...)
}

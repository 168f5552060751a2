package internal

import (
	"evsim/internal/config"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Importance string

const (
	Info    Importance = " "
	Warning Importance = "?"
	Error   Importance = "!"
	Raw     Importance = "-"
)

type Logger struct {
	zap       *zap.Logger
	database  Database
	location  *time.Location
	debugMode bool
	writer    chan *LogEvent
	done      chan struct{}
	closeOnce sync.Once
}

type LogEvent struct {
	Importance Importance
	Message    *FeatureLogMessage
}

// NewLogger builds the zap core from the log section of conf: console or json encoding on
// stdout, plus a rolling file when a file name is set.
func NewLogger(conf *config.Config) *Logger {
	return newLogger(buildZap(conf), conf.IsDebug)
}

func newLogger(z *zap.Logger, debugMode bool) *Logger {
	logger := &Logger{
		zap:       z,
		debugMode: debugMode,
		location:  time.Local,
		writer:    make(chan *LogEvent, 100),
		done:      make(chan struct{}),
	}
	go logger.startWriter()
	return logger
}

func buildZap(conf *config.Config) *zap.Logger {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(strings.ToLower(conf.Log.Level))); err != nil {
		level.SetLevel(zapcore.InfoLevel)
	}
	if conf.IsDebug {
		level.SetLevel(zapcore.DebugLevel)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	var encoder zapcore.Encoder
	if conf.Log.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level)}
	if conf.Log.File != "" {
		file := &lumberjack.Logger{
			Filename:   conf.Log.File,
			MaxSize:    conf.Log.MaxSizeMb,
			MaxBackups: conf.Log.MaxBackups,
			MaxAge:     conf.Log.MaxAgeDays,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(file), level))
	}
	return zap.New(zapcore.NewTee(cores...))
}

func (l *Logger) startWriter() {
	defer close(l.done)
	for event := range l.writer {
		l.logLine(event.Importance, event.Message)

		if l.database != nil {
			if err := l.database.WriteLogMessage(event.Message); err != nil {
				l.zap.Error("write log to database failed", zap.Error(err))
			}
		}
	}
}

func (l *Logger) SetDatabase(database Database) {
	l.database = database
}

func logTime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

func (l *Logger) FeatureEvent(feature, id, text string) {
	l.logEvent(Info, l.newFeatureLogMessage(feature, id, text))
}

func (l *Logger) logEvent(importance Importance, message *FeatureLogMessage) {
	if message.ChargePointId == "" {
		message.ChargePointId = "*"
	}
	message.Importance = string(importance)
	l.writer <- &LogEvent{
		Importance: importance,
		Message:    message,
	}
}

func (l *Logger) Debug(text string) {
	l.logEvent(Info, l.newFeatureLogMessage("info", "", text))
}

func (l *Logger) Warn(text string) {
	l.logEvent(Warning, l.newFeatureLogMessage("warning", "", text))
}

func (l *Logger) Error(text string, err error) {
	l.logEvent(Error, l.newFeatureLogMessage("error", "", fmt.Sprintf("%s: %s", text, err)))
}

func (l *Logger) RawDataEvent(direction, data string) {
	if l.debugMode {
		l.logEvent(Raw, l.newFeatureLogMessage("raw", "", fmt.Sprintf("%s: %s", direction, data)))
	}
}

func (l *Logger) logLine(importance Importance, message *FeatureLogMessage) {
	fields := []zap.Field{zap.String("id", message.ChargePointId), zap.String("feature", message.Feature)}
	switch importance {
	case Error:
		l.zap.Error(message.Text, fields...)
	case Warning:
		l.zap.Warn(message.Text, fields...)
	case Raw:
		l.zap.Debug(message.Text, fields...)
	default:
		l.zap.Info(message.Text, fields...)
	}
}

// Close flushes queued events; the logger must not be used afterwards.
func (l *Logger) Close() {
	l.closeOnce.Do(func() {
		close(l.writer)
		<-l.done
		_ = l.zap.Sync()
	})
}

func (l *Logger) newFeatureLogMessage(feature, id, text string) *FeatureLogMessage {
	now := time.Now()
	return &FeatureLogMessage{
		Time:          logTime(now.In(l.location)),
		TimeStamp:     now.UTC(),
		Text:          text,
		Feature:       feature,
		ChargePointId: id,
	}
}

package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel defines the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

// Logger оборачивает zap.SugaredLogger.
// Debug/Info/Warn/Error/Fatal принимают printf-формат,
// Debugw/Infow/Warnw/Errorw/Fatalw принимают пары ключ-значение.
type Logger struct {
	*zap.SugaredLogger
	level LogLevel
}

// New creates a new Logger instance with colored console output
func New(level LogLevel) *Logger {
	return newLogger(level, false)
}

// NewProduction создает логгер с JSON-выводом для production окружения
func NewProduction(level LogLevel) *Logger {
	return newLogger(level, true)
}

// NewNop возвращает логгер, который ничего не пишет (для тестов)
func NewNop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar(), level: FATAL}
}

func newLogger(level LogLevel, jsonOutput bool) *Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if jsonOutput {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), zap.NewAtomicLevelAt(toZapLevel(level)))
	z := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))

	return &Logger{SugaredLogger: z.Sugar(), level: level}
}

// ParseLevel переводит строку (debug, info, warn, error) в LogLevel
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}

func toZapLevel(level LogLevel) zapcore.Level {
	switch level {
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

// Level возвращает текущий уровень логирования
func (l *Logger) Level() LogLevel {
	return l.level
}

// With возвращает дочерний логгер с дополнительными полями
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{
		SugaredLogger: l.SugaredLogger.With(keysAndValues...),
		level:         l.level,
	}
}

// Named возвращает дочерний логгер с именем компонента
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		SugaredLogger: l.SugaredLogger.Named(name),
		level:         l.level,
	}
}

// Zap возвращает нижележащий *zap.Logger
func (l *Logger) Zap() *zap.Logger {
	return l.SugaredLogger.Desugar()
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.SugaredLogger.Debugf(format, v...)
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	l.SugaredLogger.Infof(format, v...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...interface{}) {
	l.SugaredLogger.Warnf(format, v...)
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.SugaredLogger.Errorf(format, v...)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(format string, v ...interface{}) {
	l.SugaredLogger.Fatalf(format, v...)
}

// Printf позволяет использовать Logger там, где ожидается printf-логгер (goose, sarama)
func (l *Logger) Printf(format string, v ...interface{}) {
	l.SugaredLogger.Infof(strings.TrimSuffix(format, "\n"), v...)
}

// Println реализует интерфейс sarama.StdLogger
func (l *Logger) Println(v ...interface{}) {
	l.SugaredLogger.Info(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

// Print реализует интерфейс sarama.StdLogger
func (l *Logger) Print(v ...interface{}) {
	l.SugaredLogger.Info(v...)
}

// Fatalf нужен goose.Logger
func (l *Logger) Fatalf(format string, v ...interface{}) {
	l.SugaredLogger.Fatalf(format, v...)
}

package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Level represents log level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

func (l Level) logrus() logrus.Level {
	switch l {
	case DEBUG:
		return logrus.DebugLevel
	case WARN:
		return logrus.WarnLevel
	case ERROR:
		return logrus.ErrorLevel
	case FATAL:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

// DefaultDir is where file loggers write when it is writable.
const DefaultDir = "/var/log/stopwatch"

// Logger is a leveled, structured logger. Loggers derived with WithField
// share the underlying output and log file.
type Logger struct {
	base   *logrus.Logger
	entry  *logrus.Entry
	file   *fileSink
	prefix string
}

// fileSink owns the open log file so rotation is visible to every
// derived logger.
type fileSink struct {
	mu    sync.Mutex
	file  *os.File
	extra io.Writer
}

func (s *fileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.extra != nil {
		if _, err := s.extra.Write(p); err != nil {
			return 0, err
		}
	}
	return s.file.Write(p)
}

func newBase(level Level, jsonFormat bool, out io.Writer) *logrus.Logger {
	base := logrus.New()
	base.SetOutput(out)
	base.SetLevel(level.logrus())
	if jsonFormat {
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		})
	} else {
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			DisableColors:   true,
		})
	}
	return base
}

// NewLogger creates a new logger writing to stdout
func NewLogger(level Level, jsonFormat bool) *Logger {
	base := newBase(level, jsonFormat, os.Stdout)
	return &Logger{base: base, entry: logrus.NewEntry(base)}
}

// NewFileLogger creates a logger that writes to
// /var/log/stopwatch/<component>/<subcomponent>.log and stdout.
// Falls back to ./logs/<component>/ if /var/log is not writable.
func NewFileLogger(component, subComponent string, level Level, jsonFormat bool) (*Logger, error) {
	logPath := GetLogPath(component, subComponent)
	return newFileLogger(logPath, os.Stdout, level, jsonFormat)
}

func newFileLogger(logPath string, echo io.Writer, level Level, jsonFormat bool) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", filepath.Dir(logPath), err)
	}

	f, err := openLogFile(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}

	sink := &fileSink{file: f, extra: echo}
	base := newBase(level, jsonFormat, sink)
	logger := &Logger{base: base, entry: logrus.NewEntry(base), file: sink}
	logger.Debug("logger initialized", map[string]interface{}{"path": logPath})
	return logger, nil
}

// SetOutput sets the output writer
func (l *Logger) SetOutput(w io.Writer) {
	l.base.SetOutput(w)
}

// Writer returns a writer that logs each line at INFO. The caller must
// close it.
func (l *Logger) Writer() *io.PipeWriter {
	return l.entry.WriterLevel(logrus.InfoLevel)
}

func (l *Logger) log(level Level, message string, fields []map[string]interface{}) {
	e := l.entry
	if len(fields) > 0 && len(fields[0]) > 0 {
		e = e.WithFields(logrus.Fields(fields[0]))
	}
	if l.prefix != "" {
		message = l.prefix + message
	}
	e.Log(level.logrus(), message)
	if level == FATAL {
		l.base.Exit(1)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields ...map[string]interface{}) {
	l.log(DEBUG, message, fields)
}

// Info logs an info message
func (l *Logger) Info(message string, fields ...map[string]interface{}) {
	l.log(INFO, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields ...map[string]interface{}) {
	l.log(WARN, message, fields)
}

// Error logs an error message
func (l *Logger) Error(message string, fields ...map[string]interface{}) {
	l.log(ERROR, message, fields)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(message string, fields ...map[string]interface{}) {
	l.log(FATAL, message, fields)
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		base:   l.base,
		entry:  l.entry.WithField(key, value),
		file:   l.file,
		prefix: l.prefix,
	}
}

// WithPrefix returns a logger that prepends prefix to every message.
func (l *Logger) WithPrefix(prefix string) *Logger {
	return &Logger{base: l.base, entry: l.entry, file: l.file, prefix: l.prefix + prefix}
}

// Enabled reports whether messages at level are emitted.
func (l *Logger) Enabled(level Level) bool {
	return l.base.IsLevelEnabled(level.logrus())
}

// ParseLevel parses a log level string. Unknown values map to INFO.
func ParseLevel(level string) Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// Close closes the log file if opened
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	l.Debug("logger closing")
	l.file.mu.Lock()
	defer l.file.mu.Unlock()
	return l.file.file.Close()
}

// RotateIfNeeded rotates the log file if it exceeds maxSize (in bytes).
// The old file is kept next to the new one with a timestamp suffix.
func (l *Logger) RotateIfNeeded(maxSize int64) (bool, error) {
	if l.file == nil {
		return false, nil
	}

	l.file.mu.Lock()
	info, err := l.file.file.Stat()
	if err != nil {
		l.file.mu.Unlock()
		return false, err
	}
	if info.Size() <= maxSize {
		l.file.mu.Unlock()
		return false, nil
	}

	oldPath := l.file.file.Name()
	backupPath := oldPath + "." + time.Now().Format("20060102-150405.000000000")
	l.file.file.Close()

	if err := renameFile(oldPath, backupPath); err != nil {
		err = l.file.reopen(oldPath, fmt.Errorf("rotating log: %w", err))
		l.file.mu.Unlock()
		return false, err
	}
	f, err := openLogFile(oldPath)
	if err != nil {
		// Keep logging into the renamed file rather than a closed one.
		err = l.file.reopen(backupPath, fmt.Errorf("reopening log: %w", err))
		l.file.mu.Unlock()
		return false, err
	}
	l.file.file = f
	l.file.mu.Unlock()

	l.Info("log rotated", map[string]interface{}{"from": oldPath, "to": backupPath})
	return true, nil
}

var (
	renameFile  = os.Rename
	openLogFile = func(path string) (*os.File, error) {
		return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	}
)

// reopen installs path as the sink's file after a failed rotation and
// returns cause, joined with the reopen error if that fails too. The
// caller holds s.mu.
func (s *fileSink) reopen(path string, cause error) error {
	f, err := openLogFile(path)
	if err != nil {
		return errors.Join(cause, err)
	}
	s.file = f
	return cause
}

// isWritable checks if directory is writable
func isWritable(path string) bool {
	if err := os.MkdirAll(path, 0755); err != nil {
		return false
	}

	testFile := filepath.Join(path, ".write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(testFile)
	return true
}

// GetLogPath returns the expected log path for a component
func GetLogPath(component, subComponent string) string {
	baseDir := DefaultDir
	if !isWritable(baseDir) {
		baseDir = "./logs"
	}

	logFileName := component + ".log"
	if subComponent != "" {
		logFileName = subComponent + ".log"
	}

	return filepath.Join(baseDir, component, logFileName)
}

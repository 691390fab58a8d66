package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Iksvihii/daily-watt-sub000/config"
)

// LogLevel constants
const (
	DEBUG = "debug"
	INFO  = "info"
	WARN  = "warn"
	ERROR = "error"
)

var levels = map[string]int{
	DEBUG: 0,
	INFO:  1,
	WARN:  2,
	ERROR: 3,
}

var (
	mu       sync.RWMutex
	out      *log.Logger
	errOut   *log.Logger
	logFile  *os.File
	logLevel = INFO
)

// Init initializes the logging system using configuration
func Init(cfg *config.Config) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current working directory: %w", err)
	}

	logPath := cfg.Logging.LogFile
	if !filepath.IsAbs(logPath) {
		logPath = filepath.Join(cwd, logPath)
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}

	var infoWriter, errorWriter io.Writer = file, file
	if cfg.Logging.LogToConsole {
		infoWriter = io.MultiWriter(os.Stdout, file)
		errorWriter = io.MultiWriter(os.Stderr, file)
	}

	mu.Lock()
	logFile = file
	out = log.New(infoWriter, "", log.LstdFlags)
	errOut = log.New(errorWriter, "", log.LstdFlags)
	mu.Unlock()
	SetLevel(cfg.Logging.LogLevel)

	Printf("=== Session started at %s ===", time.Now().Format("2006-01-02 15:04:05"))
	Printf("Log file: %s", logPath)
	Printf("Log level: %s", Level())
	LogDivider()

	return nil
}

// SetOutput sends every level to w; used by commands that never call Init and by tests
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = log.New(w, "", log.LstdFlags)
	errOut = log.New(w, "", log.LstdFlags)
}

// SetLevel changes the minimum level; unknown values fall back to info
func SetLevel(level string) {
	level = strings.ToLower(strings.TrimSpace(level))
	if _, ok := levels[level]; !ok {
		level = INFO
	}
	mu.Lock()
	logLevel = level
	mu.Unlock()
}

// Level returns the current minimum level
func Level() string {
	mu.RLock()
	defer mu.RUnlock()
	return logLevel
}

// Close closes the log file
func Close() error {
	mu.Lock()
	file := logFile
	logFile = nil
	mu.Unlock()

	if file == nil {
		return nil
	}
	LogDivider()
	Printf("=== Session ended at %s ===", time.Now().Format("2006-01-02 15:04:05"))
	SetOutput(os.Stdout)
	return file.Close()
}

// shouldLog determines if a message should be logged based on log level
func shouldLog(messageLevel string) bool {
	mu.RLock()
	current := levels[logLevel]
	mu.RUnlock()
	return levels[messageLevel] >= current
}

func emit(target func() *log.Logger, prefix, format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	msg = strings.TrimRight(msg, "\n")
	if l := target(); l != nil {
		l.Print(prefix + msg)
		return
	}
	fmt.Fprintln(os.Stderr, prefix+msg)
}

func infoLogger() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return out
}

func errorLogger() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return errOut
}

// Printf prints formatted text to log (respects log level)
func Printf(format string, v ...interface{}) {
	if shouldLog(INFO) {
		emit(infoLogger, "", format, v...)
	}
}

// Println prints a line to log (respects log level)
func Println(v ...interface{}) {
	if shouldLog(INFO) {
		emit(infoLogger, "", "%s", fmt.Sprint(v...))
	}
}

// Infof is Printf with an INFO prefix
func Infof(format string, v ...interface{}) {
	if shouldLog(INFO) {
		emit(infoLogger, "INFO: ", format, v...)
	}
}

// Debugf prints formatted debug text
func Debugf(format string, v ...interface{}) {
	if shouldLog(DEBUG) {
		emit(infoLogger, "DEBUG: ", format, v...)
	}
}

// Warnf prints formatted warning text
func Warnf(format string, v ...interface{}) {
	if shouldLog(WARN) {
		emit(infoLogger, "WARN: ", format, v...)
	}
}

// Errorf prints formatted error text (always logged regardless of level)
func Errorf(format string, v ...interface{}) {
	emit(errorLogger, "ERROR: ", format, v...)
}

// Fatalf prints formatted fatal error and exits (always logged)
func Fatalf(format string, v ...interface{}) {
	emit(errorLogger, "FATAL: ", format, v...)
	_ = Close()
	os.Exit(1)
}

// LogCommand logs the command being executed
func LogCommand(command string, args []string) {
	if len(args) > 1 {
		Printf("Command executed: %s %v", command, args[1:])
		return
	}
	Printf("Command executed: %s", command)
}

// LogDivider prints a divider line for better log organization
func LogDivider() {
	Println("------------------------------------------------------------")
}

// LogResult logs a result with status
func LogResult(operation string, success bool, details string) {
	status := "SUCCESS"
	if !success {
		status = "FAILED"
	}
	if details != "" {
		Printf("%s: %s - %s", operation, status, details)
		return
	}
	Printf("%s: %s", operation, status)
}

// LogProgress logs progress information
func LogProgress(current, total int, item string) {
	Printf("Progress: [%d/%d] %s", current, total, item)
}

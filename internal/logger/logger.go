// Package logger writes timestamped, caller-tagged log lines to stdout and a
// daily rotating file. Timestamps follow the consultation platform's local
// zone (Lagos) so operator logs line up with the offering ledger.
package logger

import (
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	LogsDirectory string
	LogFileFormat string
	TimeZone      string
}

var (
	initialized  int32 // 0 = not initialized, 1 = initialized
	logger       *log.Logger
	loggerOutput io.Writer
	timeZone     *time.Location
	logFilePath  string
	mu           sync.Mutex // guards one-time setup
)

// SetupLogger opens the day's log file and starts mirroring output to it.
// Calling it twice is a bug, so it refuses rather than rotating silently.
func SetupLogger(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	if atomic.LoadInt32(&initialized) == 1 {
		return fmt.Errorf("logger already initialized")
	}

	if cfg.TimeZone == "" {
		cfg.TimeZone = "Africa/Lagos"
	}

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		fallbackLogFatal("Failed to load time zone '%s': %v", cfg.TimeZone, err)
	}
	timeZone = loc

	// Print the working directory before anything else, it is the first
	// thing to check when the log file lands somewhere unexpected.
	if wd, err := os.Getwd(); err == nil {
		fmt.Printf("[INFO] Current working directory: %s\n", wd)
	} else {
		fmt.Printf("[WARN] Failed to get working directory: %v\n", err)
	}

	if err := os.MkdirAll(cfg.LogsDirectory, 0775); err != nil {
		fallbackLogFatal("Failed to create logs directory '%s': %v", cfg.LogsDirectory, err)
	}

	today := time.Now().In(loc).Format("2006-01-02")
	logFileName := fmt.Sprintf(cfg.LogFileFormat, today)

	// LogFileFormat may already carry a full path
	if filepath.IsAbs(logFileName) {
		logFilePath = logFileName
	} else {
		logFilePath = filepath.Join(cfg.LogsDirectory, logFileName)
	}

	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0664)
	if err != nil {
		fallbackLogFatal("Failed to open log file '%s': %v", logFilePath, err)
	}

	multi := io.MultiWriter(os.Stdout, logFile)
	loggerOutput = multi
	logger = log.New(multi, "", log.Ldate|log.Ltime)

	atomic.StoreInt32(&initialized, 1)
	LogInfo("Logger initialized, writing to %s", logFilePath)
	return nil
}

func IsInitialized() bool {
	return atomic.LoadInt32(&initialized) == 1
}

// LogMessage formats one line with level, zone-local timestamp and the
// caller's file:line. Before setup it degrades to the stdlib logger so
// early config errors are not lost.
func LogMessage(level string, message string, v ...interface{}) {
	if !IsInitialized() {
		log.Printf("[%s] %s", level, fmt.Sprintf(message, v...))
		return
	}

	_, file, line, _ := runtime.Caller(2)
	fileName := filepath.Base(file)
	formattedMsg := fmt.Sprintf(message, v...)
	timestamp := time.Now().In(timeZone).Format("2006-01-02 15:04:05 MST")

	full := fmt.Sprintf("[%s] %s %s:%d - %s", level, timestamp, fileName, line, formattedMsg)
	logger.Println(full)
}

func LogInfo(message string, v ...interface{})  { LogMessage("INFO", message, v...) }
func LogWarn(message string, v ...interface{})  { LogMessage("WARN", message, v...) }
func LogError(message string, v ...interface{}) { LogMessage("ERROR", message, v...) }
func LogFatal(message string, v ...interface{}) {
	LogMessage("FATAL", message, v...)
	os.Exit(1)
}

func LogHTTPRequest(r *http.Request) {
	clientIP := GetClientIP(r)
	LogInfo("HTTP %s %s from %s", r.Method, r.URL.Path, clientIP)
}

func LogHTTPError(r *http.Request, status int, err error) {
	clientIP := GetClientIP(r)
	LogError("HTTP %d error for %s %s from %s: %v", status, r.Method, r.URL.Path, clientIP, err)
}

// GetClientIP prefers proxy headers over RemoteAddr since the service sits
// behind a reverse proxy in production.
func GetClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// fallbackLogFatal reports setup failures on stderr and exits, since the
// real logger is not up yet.
func fallbackLogFatal(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	fmt.Fprintf(os.Stderr, "[FATAL] %s\n", msg)
	os.Exit(1)
}

package logger

import (
	"log"
	"os"
	"strings"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

type Logger struct {
	level LogLevel
	debug *log.Logger
	info  *log.Logger
	warn  *log.Logger
	error *log.Logger
	fatal *log.Logger
}

// Log is the exported, initialized logger instance
var Log *Logger

func init() {
	Log = NewLogger(parseLogLevelFromEnv())
}

// parseLogLevelFromEnv reads the LOG_LEVEL environment variable.
// Defaults to INFO if LOG_LEVEL is unset or invalid.
func parseLogLevelFromEnv() LogLevel {
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		return DEBUG
	case "WARN":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

func NewLogger(level LogLevel) *Logger {
	return &Logger{
		level: level,
		debug: log.New(os.Stdout, "DEBUG: ", log.Ldate|log.Ltime),
		info:  log.New(os.Stdout, "INFO: ", log.Ldate|log.Ltime),
		warn:  log.New(os.Stdout, "WARN: ", log.Ldate|log.Ltime),
		error: log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime),
		fatal: log.New(os.Stderr, "FATAL: ", log.Ldate|log.Ltime),
	}
}

func (l *Logger) Debug(msg string, v ...interface{}) {
	if l.level <= DEBUG {
		l.debug.Printf(msg, v...)
	}
}

func (l *Logger) Info(msg string, v ...interface{}) {
	if l.level <= INFO {
		l.info.Printf(msg, v...)
	}
}

func (l *Logger) Warn(msg string, v ...interface{}) {
	if l.level <= WARN {
		l.warn.Printf(msg, v...)
	}
}

func (l *Logger) Error(msg string, v ...interface{}) {
	if l.level <= ERROR {
		l.error.Printf(msg, v...)
	}
}

// Fatal logs the message and exits the program.
func (l *Logger) Fatal(msg string, v ...interface{}) {
	l.fatal.Printf(msg, v...)
	os.Exit(1)
}

// Package-level wrappers over the default instance.

func Debug(msg string, v ...interface{}) { Log.Debug(msg, v...) }
func Info(msg string, v ...interface{})  { Log.Info(msg, v...) }
func Warn(msg string, v ...interface{})  { Log.Warn(msg, v...) }
func Error(msg string, v ...interface{}) { Log.Error(msg, v...) }
func Fatal(msg string, v ...interface{}) { Log.Fatal(msg, v...) }

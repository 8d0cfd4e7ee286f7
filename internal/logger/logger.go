package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	Logger *logrus.Logger // Main logger instance
)

// Initialize sets up the application logger from LOG_LEVEL and LOG_FILE.
// When LOG_FILE is empty or cannot be opened, logs go to stdout.
func Initialize() {
	l := logrus.New()
	l.SetLevel(parseLevel(os.Getenv("LOG_LEVEL")))
	l.SetReportCaller(true)

	logFile := strings.TrimSpace(os.Getenv("LOG_FILE"))
	if logFile == "" {
		l.SetOutput(os.Stdout)
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
		Logger = l
		return
	}

	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
		DisableColors:   true,
	})
	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
		fmt.Printf("Failed to create logs directory: %v\n", err)
		l.SetOutput(os.Stdout)
		Logger = l
		return
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		fmt.Printf("Failed to open log file: %v\n", err)
		l.SetOutput(os.Stdout)
		Logger = l
		return
	}
	l.SetOutput(f)
	Logger = l

	Logger.WithFields(logrus.Fields{
		"log_level": l.GetLevel().String(),
		"log_file":  logFile,
	}).Info("Logging system initialized")
}

func parseLevel(s string) logrus.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return logrus.DebugLevel
	case "WARN":
		return logrus.WarnLevel
	case "ERROR":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// SetOutput redirects the logger, mostly for tests.
func SetOutput(w io.Writer) {
	GetLogger().SetOutput(w)
}

// GetLogger returns the configured main logger instance
func GetLogger() *logrus.Logger {
	if Logger == nil {
		Initialize()
	}
	return Logger
}

// WithContext creates a logger with additional context fields
func WithContext(fields map[string]interface{}) *logrus.Entry {
	return GetLogger().WithFields(fields)
}

// WithChatRoom scopes log lines to one analysis record.
func WithChatRoom(chatRoomID string, requestID int, component string) *logrus.Entry {
	fields := logrus.Fields{
		"chat_room_id": chatRoomID,
		"component":    component,
	}
	if requestID > 0 {
		fields["request_id"] = requestID
	}
	return GetLogger().WithFields(fields)
}

// WithLLM creates a logger with LLM service context
func WithLLM(callType string) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"component": "llm_service",
		"call_type": callType,
	})
}

// WithML creates a logger with ML execution service context
func WithML(modelChoice string) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"component":    "ml_service",
		"model_choice": modelChoice,
	})
}

// WithSession creates a logger with guest session context
func WithSession(sessionID string) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"session_id": sessionID,
		"component":  "controller",
	})
}

// WithError creates a logger with error context
func WithError(err error, component string) *logrus.Entry {
	fields := logrus.Fields{
		"error":     err.Error(),
		"component": component,
	}

	if GetLogger().GetLevel() >= logrus.DebugLevel {
		fields["stack_trace"] = getStackTrace()
	}

	return GetLogger().WithFields(fields)
}

// getStackTrace returns a formatted stack trace
func getStackTrace() string {
	var stack []string
	for i := 1; i < 10; i++ {
		if pc, file, line, ok := runtime.Caller(i); ok {
			fn := runtime.FuncForPC(pc)
			stack = append(stack, fmt.Sprintf("%s:%d %s", file, line, fn.Name()))
		}
	}
	return strings.Join(stack, "\n")
}

// Log levels convenience functions (with fields)
func Debug(msg string, fields map[string]interface{}) {
	GetLogger().WithFields(fields).Debug(msg)
}

func Info(msg string, fields map[string]interface{}) {
	GetLogger().WithFields(fields).Info(msg)
}

func Warn(msg string, fields map[string]interface{}) {
	GetLogger().WithFields(fields).Warn(msg)
}

func Error(msg string, fields map[string]interface{}) {
	GetLogger().WithFields(fields).Error(msg)
}

func Fatal(msg string, fields map[string]interface{}) {
	GetLogger().WithFields(fields).Fatal(msg)
}

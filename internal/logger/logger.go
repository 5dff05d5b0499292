package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
)

var (
	InfoLogger  = log.New(os.Stdout, "INFO: ", log.Ldate|log.Ltime|log.Lshortfile)
	WarnLogger  = log.New(os.Stdout, "WARN: ", log.Ldate|log.Ltime|log.Lshortfile)
	ErrorLogger = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)
	DebugLogger = log.New(os.Stdout, "DEBUG: ", log.Ldate|log.Ltime|log.Lshortfile)
)

const callDepth = 2

func Info(format string, v ...interface{}) {
	_ = InfoLogger.Output(callDepth, fmt.Sprintf(format, v...))
}

func Warn(format string, v ...interface{}) {
	_ = WarnLogger.Output(callDepth, fmt.Sprintf(format, v...))
}

func Error(format string, v ...interface{}) {
	_ = ErrorLogger.Output(callDepth, fmt.Sprintf(format, v...))
}

// Debug only writes when APP_ENV is development.
func Debug(format string, v ...interface{}) {
	if !strings.EqualFold(os.Getenv("APP_ENV"), "development") {
		return
	}
	_ = DebugLogger.Output(callDepth, fmt.Sprintf(format, v...))
}

package internal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	// SourceField is the entry field holding the source label printed on each line.
	SourceField  = "camera"
	SystemSource = "SYSTEM"
	LogFileName  = "ptz-stabilizer.log"

	timestampFormat = "2006-01-02 15:04:05.000"
)

// LevelCritical is the most severe level. It is emitted through Entry.Log so it never exits the process.
const LevelCritical = log.FatalLevel

// ParseLogLevel maps DEBUG, INFO, WARNING, ERROR and CRITICAL (any case) onto logrus levels.
// Unrecognized names fall back to INFO.
func ParseLogLevel(name string) log.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return log.DebugLevel
	case "WARNING":
		return log.WarnLevel
	case "ERROR":
		return log.ErrorLevel
	case "CRITICAL":
		return LevelCritical
	}
	return log.InfoLevel
}

// SeverityCode returns the one letter code of a level.
func SeverityCode(level log.Level) string {
	switch level {
	case log.TraceLevel, log.DebugLevel:
		return "D"
	case log.InfoLevel:
		return "I"
	case log.WarnLevel:
		return "W"
	case log.ErrorLevel:
		return "E"
	}
	return "C"
}

// LineFormatter renders "2006-01-02 15:04:05.000 - [I] - [source] - message".
type LineFormatter struct{}

func (f *LineFormatter) Format(entry *log.Entry) ([]byte, error) {
	source := SystemSource
	if v, ok := entry.Data[SourceField]; ok {
		source = fmt.Sprint(v)
	}
	line := fmt.Sprintf("%s - [%s] - [%s] - %s\n", entry.Time.Format(timestampFormat), SeverityCode(entry.Level), source, entry.Message)
	return []byte(line), nil
}

// NewLogger returns a logger writing formatted lines to out.
func NewLogger(level string, out io.Writer) *log.Logger {
	logger := log.New()
	logger.SetFormatter(&LineFormatter{})
	logger.SetLevel(ParseLogLevel(level))
	logger.SetOutput(out)
	return logger
}

// ConfigureLogger applies level and formatting to logger and, when logDir is set, appends to a log file in it.
func ConfigureLogger(logger *log.Logger, logDir, level string) error {
	logger.SetFormatter(&LineFormatter{})
	logger.SetLevel(ParseLogLevel(level))
	if logDir == "" || logDir == "-" {
		logger.SetOutput(os.Stdout)
		return nil
	}
	f, err := os.OpenFile(filepath.Join(logDir, LogFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error opening log file: %w", err)
	}
	logger.SetOutput(f)
	return nil
}

func Critical(entry *log.Entry, args ...interface{}) {
	entry.Log(LevelCritical, args...)
}

func Criticalf(entry *log.Entry, format string, args ...interface{}) {
	entry.Logf(LevelCritical, format, args...)
}

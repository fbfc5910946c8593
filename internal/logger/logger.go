package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

var (
	log     = zerolog.Nop()
	logFile *os.File
)

func consoleWriter(w io.Writer) zerolog.ConsoleWriter {
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	output.FormatLevel = func(i interface{}) string {
		return fmt.Sprintf("[%s]", i)
	}
	output.FormatMessage = func(i interface{}) string {
		return fmt.Sprintf("%s", i)
	}
	return output
}

func applyLevel() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if _, exists := os.LookupEnv("DEBUG"); exists {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// Init sets up console logging on stderr so stdout stays free for command output
func Init() {
	log = zerolog.New(consoleWriter(os.Stderr)).With().Timestamp().Logger()
	applyLevel()
}

// InitFileOnly initializes the logger to write only to a file (for TUI mode)
func InitFileOnly(logDir string) (string, error) {
	if logDir == "" {
		logDir = "logs"
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create logs directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logPath := filepath.Join(logDir, fmt.Sprintf("ledger-sync_%s.log", timestamp))

	var err error
	logFile, err = os.Create(logPath)
	if err != nil {
		return "", fmt.Errorf("failed to create log file: %w", err)
	}

	// JSON lines, the TUI owns the terminal
	log = zerolog.New(logFile).With().Timestamp().Logger()
	applyLevel()

	Info("Logger initialized in file-only mode: %s", logPath)
	return logPath, nil
}

// Close closes the log file if it's open
func Close() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// SetOutput sets the output destination for the logger
func SetOutput(w io.Writer) {
	log = zerolog.New(consoleWriter(w)).With().Timestamp().Logger()
}

// Debug logs a debug message
func Debug(msg string, args ...interface{}) {
	log.Debug().Msgf(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...interface{}) {
	log.Info().Msgf(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...interface{}) {
	log.Warn().Msgf(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...interface{}) {
	log.Error().Msgf(msg, args...)
}

// Fatal logs a fatal message and exits the program
func Fatal(msg string, args ...interface{}) {
	log.Fatal().Msgf(msg, args...)
}

// ChainEvent logs a structured per-chain event
func ChainEvent(level zerolog.Level, chainID, event string, err error) {
	e := log.WithLevel(level).Str("chain", chainID).Str("event", event)
	if err != nil {
		e = e.Err(err)
	}
	e.Send()
}

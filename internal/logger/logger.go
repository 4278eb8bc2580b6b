// internal/logger/logger.go
package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
)

var (
	once   sync.Once
	shared *logrus.Logger
)

// NewLogger returns the process-wide logrus logger, configuring it on first use
// from LOG_LEVEL, LOG_FORMAT and LOG_FILE.
func NewLogger() *logrus.Logger {
	once.Do(func() {
		shared = New(Options{
			Level:  os.Getenv("LOG_LEVEL"),
			Format: os.Getenv("LOG_FORMAT"),
			File:   os.Getenv("LOG_FILE"),
		})
	})
	return shared
}

// Options controls how a logger is built.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	File   string // optional rotating log file, teed with stdout
}

// New builds a standalone logger. Most callers want NewLogger.
func New(opts Options) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if strings.EqualFold(opts.Format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var out io.Writer = os.Stdout
	if opts.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50, // MB
			MaxBackups: 7,
			MaxAge:     14, // days
			Compress:   true,
		})
	}
	log.SetOutput(out)

	return log
}

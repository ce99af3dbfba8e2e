package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger construction. An empty File logs to stderr
// only; otherwise output is duplicated to a size-rotated file.
type Options struct {
	Level string
	File  string
}

// New builds the process logger. Unknown levels fall back to info.
func New(opts Options) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if opts.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		logger.SetOutput(io.MultiWriter(os.Stderr, rotated))
	}
	return logger
}

// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Init parses level and sends log output to file, or to stderr when file is
// empty or "console". The returned closer releases the file.
func Init(level, file string) (io.Closer, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	var closer io.Closer = nopCloser{}
	if file != "" && file != "console" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		rotating := &lumberjack.Logger{
			Filename:   filepath.ToSlash(file),
			MaxSize:    5, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		log.SetOutput(rotating)
		closer = rotating
	} else {
		log.SetOutput(os.Stderr)
	}

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	log.SetLevel(lvl)
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

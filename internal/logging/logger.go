// Package logging configures the process-wide logrus logger from a loaded
// config.Config.
package logging

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/ioustamora/datamesh/internal/config"
)

// InitLogger sets the log level and format based on the provided configuration.
func InitLogger(cfg *config.Config) {
	setLogLevel(cfg.LogLevel)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
}

// setLogLevel sets the log level based on string input.
func setLogLevel(logLevel string) {
	switch strings.ToLower(logLevel) {
	case "trace":
		log.SetLevel(log.TraceLevel)
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	default:
		log.SetLevel(log.ErrorLevel)
	}
}

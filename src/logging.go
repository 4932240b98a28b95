package rfcompanion

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

type LogConfig struct {
	// debug, info, warn, error
	Level string `yaml:"level"`

	// text, logfmt or json
	Format string `yaml:"format"`
}

func DefaultLogConfig() LogConfig {
	return LogConfig{Level: "info", Format: "text"}
}

// NewLogger builds the root logger.  Components derive theirs with WithPrefix.
func NewLogger(cfg LogConfig, w io.Writer) (*log.Logger, error) {
	var level, err = log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}

	var formatter log.Formatter

	switch cfg.Format {
	case "", "text":
		formatter = log.TextFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	case "json":
		formatter = log.JSONFormatter
	default:
		return nil, fmt.Errorf("log format %q: want text, logfmt or json", cfg.Format)
	}

	return log.NewWithOptions(w, log.Options{ //nolint:exhaustruct
		ReportTimestamp: true,
		TimeFormat:      time.StampMicro,
		Level:           level,
		Formatter:       formatter,
	}), nil
}

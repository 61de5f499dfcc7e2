package logger

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	charmlog "github.com/charmbracelet/log"
)

const (
	FormatJSON = "json"
	FormatText = "text"
)

// Init initializes the global slog logger. The json format is meant for the
// service, text for interactive CLI use.
func Init(writer io.Writer, level slog.Level, format string) *slog.Logger {
	var handler slog.Handler
	switch format {
	case FormatText:
		handler = charmlog.NewWithOptions(writer, charmlog.Options{
			Level:           charmlog.Level(level),
			ReportTimestamp: true,
			TimeFormat:      time.Kitchen,
		})
	default:
		handler = slog.NewJSONHandler(writer, &slog.HandlerOptions{
			Level: level,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if len(groups) > 0 {
					return a
				}
				switch a.Key {
				case slog.TimeKey:
					a.Key = "timestamp"
				case slog.LevelKey:
					a.Key = "level"
				case slog.MessageKey:
					a.Key = "message"
				}
				return a
			},
		})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel accepts debug, info, warn and error in any case.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

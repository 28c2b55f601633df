package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	clog "github.com/charmbracelet/log"
)

// New returns a logger writing to w at the named level ("debug", "info",
// "warn", "error"). An empty level means info.
func New(level string, w io.Writer) (*clog.Logger, error) {
	lvl := clog.InfoLevel
	if strings.TrimSpace(level) != "" {
		var err error
		if lvl, err = clog.ParseLevel(strings.ToLower(strings.TrimSpace(level))); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}
	if w == nil {
		w = os.Stderr
	}
	return clog.NewWithOptions(w, clog.Options{
		Level:           lvl,
		Prefix:          "securevault",
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
	}), nil
}

// Discard returns a logger that drops everything.
func Discard() *clog.Logger {
	return clog.New(io.Discard)
}

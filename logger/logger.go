package logger

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ZeroLogger implements Logger on top of zerolog. Every string, header and payload field
// passes through a SensitiveDataFilter before it is written.
type ZeroLogger struct {
	zlog   *zerolog.Logger
	filter *SensitiveDataFilter
}

var _ Logger = (*ZeroLogger)(nil)

var callerMarshalOnce sync.Once

// Options configures a ZeroLogger.
type Options struct {
	// Level is a zerolog level name; unknown names fall back to info.
	Level string
	// Pretty switches to human-readable console output.
	Pretty bool
	// Output defaults to os.Stdout.
	Output io.Writer
	// Filter defaults to DefaultFilterConfig().
	Filter *FilterConfig
}

// New creates a logger writing JSON (or console output when pretty) to stdout.
func New(level string, pretty bool) *ZeroLogger {
	return NewWithOptions(Options{Level: level, Pretty: pretty})
}

// NewWithFilter creates a logger with a custom sensitive-field configuration.
func NewWithFilter(level string, pretty bool, filterConfig *FilterConfig) *ZeroLogger {
	return NewWithOptions(Options{Level: level, Pretty: pretty, Filter: filterConfig})
}

// NewWithOptions creates a logger from opts.
func NewWithOptions(opts Options) *ZeroLogger {
	callerMarshalOnce.Do(func() {
		zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
			base := filepath.Base(file)
			parent := filepath.Base(filepath.Dir(file))
			if parent != "." && parent != "" {
				return parent + "/" + base + ":" + strconv.Itoa(line)
			}
			return base + ":" + strconv.Itoa(line)
		}
	})

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	l := zerolog.New(out).With().Timestamp().CallerWithSkipFrameCount(3).Logger()

	zLevel, err := zerolog.ParseLevel(opts.Level)
	if err != nil {
		zLevel = zerolog.InfoLevel
	}
	l = l.Level(zLevel)

	return &ZeroLogger{zlog: &l, filter: NewSensitiveDataFilter(opts.Filter)}
}

// Nop returns a logger that discards everything.
func Nop() *ZeroLogger {
	l := zerolog.Nop()
	return &ZeroLogger{zlog: &l}
}

// WithContext returns the zerolog logger stored in ctx, if any, keeping this filter.
func (l *ZeroLogger) WithContext(ctx any) Logger {
	if c, ok := ctx.(context.Context); ok {
		zl := zerolog.Ctx(c)
		if zl == nil || zl.GetLevel() == zerolog.Disabled {
			return l
		}
		return &ZeroLogger{zlog: zl, filter: l.filter}
	}
	return l
}

// WithFields returns a logger that adds fields to every entry, after filtering them.
func (l *ZeroLogger) WithFields(fields map[string]any) Logger {
	if l.filter != nil {
		fields = l.filter.FilterFields(fields)
	}
	log := l.zlog.With().Fields(fields).Logger()
	return &ZeroLogger{zlog: &log, filter: l.filter}
}

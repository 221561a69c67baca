package logger

import (
	"time"

	"github.com/rs/zerolog"
)

// LogEventAdapter adapts zerolog events to LogEvent.
type LogEventAdapter struct {
	event  *zerolog.Event
	filter *SensitiveDataFilter
}

// Msg sends the event with msg.
func (lea *LogEventAdapter) Msg(msg string) {
	lea.event.Msg(msg)
}

// Msgf sends the event with a formatted message.
func (lea *LogEventAdapter) Msgf(format string, args ...any) {
	lea.event.Msgf(format, args...)
}

// Err adds an error field.
func (lea *LogEventAdapter) Err(err error) LogEvent {
	return lea.with(lea.event.Err(err))
}

// Str adds a string field, masked when key is sensitive or value is a URL with credentials.
func (lea *LogEventAdapter) Str(key, value string) LogEvent {
	if lea.filter != nil {
		value = lea.filter.FilterString(key, value)
	}
	return lea.with(lea.event.Str(key, value))
}

// Int adds an integer field.
func (lea *LogEventAdapter) Int(key string, value int) LogEvent {
	return lea.with(lea.event.Int(key, value))
}

// Int64 adds an int64 field.
func (lea *LogEventAdapter) Int64(key string, value int64) LogEvent {
	return lea.with(lea.event.Int64(key, value))
}

// Uint64 adds a uint64 field.
func (lea *LogEventAdapter) Uint64(key string, value uint64) LogEvent {
	return lea.with(lea.event.Uint64(key, value))
}

// Dur adds a duration field.
func (lea *LogEventAdapter) Dur(key string, d time.Duration) LogEvent {
	return lea.with(lea.event.Dur(key, d))
}

// Interface adds an arbitrary field; header maps are filtered entry by entry.
func (lea *LogEventAdapter) Interface(key string, i any) LogEvent {
	if lea.filter != nil {
		i = lea.filter.FilterValue(key, i)
	}
	return lea.with(lea.event.Interface(key, i))
}

// Bytes adds a byte slice field.
func (lea *LogEventAdapter) Bytes(key string, val []byte) LogEvent {
	if lea.filter != nil && lea.filter.isSensitiveField(key) {
		return lea.with(lea.event.Str(key, lea.filter.config.MaskValue))
	}
	return lea.with(lea.event.Bytes(key, val))
}

func (lea *LogEventAdapter) with(e *zerolog.Event) LogEvent {
	return &LogEventAdapter{event: e, filter: lea.filter}
}

// Info creates an info-level event.
func (l *ZeroLogger) Info() LogEvent {
	return &LogEventAdapter{event: l.zlog.Info(), filter: l.filter}
}

// Error creates an error-level event.
func (l *ZeroLogger) Error() LogEvent {
	return &LogEventAdapter{event: l.zlog.Error(), filter: l.filter}
}

// Debug creates a debug-level event.
func (l *ZeroLogger) Debug() LogEvent {
	return &LogEventAdapter{event: l.zlog.Debug(), filter: l.filter}
}

// Warn creates a warn-level event.
func (l *ZeroLogger) Warn() LogEvent {
	return &LogEventAdapter{event: l.zlog.Warn(), filter: l.filter}
}

// Fatal creates a fatal-level event. Sending it exits the process.
func (l *ZeroLogger) Fatal() LogEvent {
	return &LogEventAdapter{event: l.zlog.Fatal(), filter: l.filter}
}

// Package stdlogger bridges the global zerolog logger to code expecting a
// printf style logger or a standard library *log.Logger.
package stdlogger

import (
	stdlog "log"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger writes printf style messages to the global zerolog logger.
type Logger struct {
	component string
}

// New returns a Logger. An optional component name is added to every message.
func New(component ...string) *Logger {
	l := &Logger{}
	if len(component) > 0 {
		l.component = component[0]
	}

	return l
}

func (l *Logger) event(e *zerolog.Event) *zerolog.Event {
	if l.component != "" {
		e = e.Str("component", l.component)
	}

	return e
}

// Debugf logs at debug level.
func (l *Logger) Debugf(format string, args ...any) {
	l.event(log.Debug()).Msgf(format, args...)
}

// Infof logs at info level.
func (l *Logger) Infof(format string, args ...any) {
	l.event(log.Info()).Msgf(format, args...)
}

// Warningf logs at warn level.
func (l *Logger) Warningf(format string, args ...any) {
	l.event(log.Warn()).Msgf(format, args...)
}

// Errorf logs at error level.
func (l *Logger) Errorf(format string, args ...any) {
	l.event(log.Error()).Msgf(format, args...)
}

// Write implements io.Writer, logging every line at debug level.
func (l *Logger) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	if msg != "" {
		l.event(log.Debug()).Msg(msg)
	}

	return len(p), nil
}

// Std returns a *log.Logger writing to zerolog at debug level, e.g. for ldap.Logger.
func (l *Logger) Std() *stdlog.Logger {
	return stdlog.New(l, "", 0)
}

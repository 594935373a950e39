// Package logger writes levelled, tagged lines to a *log.Logger. Level
// prefixes are coloured when the output is a terminal.
package logger

import (
	"io"
	"log"

	"github.com/fatih/color"
)

// Level selects which messages are written. Higher is more verbose.
type Level int

const (
	LevelNone Level = iota
	LevelError
	LevelWarning
	LevelInfo
	LevelDebug
)

type label struct {
	text string
	c    *color.Color
}

var labels = map[Level]label{
	LevelDebug:   {"DEBUG:", color.New(color.FgCyan)},
	LevelWarning: {"WARN:", color.New(color.FgYellow, color.Bold)},
	LevelError:   {"ERROR:", color.New(color.FgRed, color.Bold)},
}

var fatal = label{"FATAL:", color.New(color.FgRed, color.Bold)}

// Logger is safe for concurrent use; tagged copies share the sink.
type Logger struct {
	out   *log.Logger
	level Level
	tag   string
}

func NewLogger(out *log.Logger, level Level) *Logger {
	return &Logger{out: out, level: level}
}

// Discard returns a logger that writes nothing.
func Discard() *Logger {
	return NewLogger(log.New(io.Discard, "", 0), LevelNone)
}

// WithTag returns a copy that prefixes every line with [tag].
func (l *Logger) WithTag(tag string) *Logger {
	return &Logger{out: l.out, level: l.level, tag: tag}
}

// Enabled reports whether messages at level are written.
func (l *Logger) Enabled(level Level) bool {
	return l.level >= level
}

func (l *Logger) logf(level Level, format string, v []interface{}) {
	if !l.Enabled(level) {
		return
	}
	l.out.Printf(l.prefix(labels[level])+format, v...)
}

func (l *Logger) prefix(lb label) string {
	p := ""
	if l.tag != "" {
		p = "[" + l.tag + "] "
	}
	if lb.text != "" {
		p += lb.c.Sprint(lb.text) + " "
	}
	return p
}

func (l *Logger) Debugf(format string, v ...interface{}) { l.logf(LevelDebug, format, v) }
func (l *Logger) Infof(format string, v ...interface{})  { l.logf(LevelInfo, format, v) }
func (l *Logger) Warnf(format string, v ...interface{})  { l.logf(LevelWarning, format, v) }
func (l *Logger) Errorf(format string, v ...interface{}) { l.logf(LevelError, format, v) }

// Fatalf logs regardless of level and exits.
func (l *Logger) Fatalf(format string, v ...interface{}) {
	l.out.Fatalf(l.prefix(fatal)+format, v...)
}

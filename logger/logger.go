/*
MIT License

Copyright (c) 2019 Nicolas JUHEL

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the trace sink every package in this module accepts, usually
// as an optional constructor argument (nil is a valid, silent logger).
type Logger interface {
	WithFields(f Fields) Logger
	Log(lvl Level, msg string)
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
}

type lgr struct {
	entry *logrus.Entry
}

// New returns a Logger writing to w at the given level. Passing a nil
// Logger anywhere in this module is always safe — every call site treats
// it as "don't log."
func New(w io.Writer, lvl Level) Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(lvl.logrus())
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		DisableSorting:  false,
		QuoteEmptyFields: true,
	})
	return &lgr{entry: logrus.NewEntry(l)}
}

// Stderr is a convenience constructor matching the teacher's default
// formatter choice (colorless, timestamped) at InfoLevel.
func Stderr() Logger {
	return New(os.Stderr, InfoLevel)
}

func (l *lgr) WithFields(f Fields) Logger {
	return &lgr{entry: l.entry.WithFields(f.toLogrus())}
}

func (l *lgr) Log(lvl Level, msg string) {
	l.entry.Log(lvl.logrus(), msg)
}

func (l *lgr) Debug(msg string) { l.entry.Debug(msg) }
func (l *lgr) Info(msg string)  { l.entry.Info(msg) }
func (l *lgr) Warn(msg string)  { l.entry.Warn(msg) }
func (l *lgr) Error(msg string) { l.entry.Error(msg) }

// Nil is a Logger that discards everything; equivalent to passing nil but
// usable where a non-nil Logger is required by a signature.
var Nil Logger = nilLogger{}

type nilLogger struct{}

func (nilLogger) WithFields(Fields) Logger { return Nil }
func (nilLogger) Log(Level, string)        {}
func (nilLogger) Debug(string)             {}
func (nilLogger) Info(string)              {}
func (nilLogger) Warn(string)              {}
func (nilLogger) Error(string)              {}

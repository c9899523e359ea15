/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package errors carries the error kinds surfaced by the socket core (spec
// §7): a numeric CodeError similar in spirit to an HTTP status, a short
// registered message, and an optional parent chain so a rolled-back
// operation can report both what failed and why the rollback happened.
package errors

import (
	"errors"
	"fmt"
)

// CodeError classifies an error the way the kernel's local-domain request
// switch classifies a return value: a small closed set of named kinds.
type CodeError uint16

// Unknown is the zero value fallback; it should never be returned by a
// conforming operation, only by a caller that ignored a real code.
const Unknown CodeError = 0

var messages = map[CodeError]string{}

// register associates a human-readable message with a code. Called only
// from this package's init to build the table in codes.go.
func register(c CodeError, msg string) CodeError {
	messages[c] = msg
	return c
}

// Message returns the registered text for c, or a generic fallback.
func (c CodeError) Message() string {
	if m, ok := messages[c]; ok {
		return m
	}
	return "unknown error"
}

func (c CodeError) String() string {
	return c.Message()
}

// Error builds an Error value of this code, optionally wrapping parents.
func (c CodeError) Error(parent ...error) Error {
	return &ers{code: c, parents: compact(parent)}
}

// Errorf builds an Error value of this code with a formatted message
// appended to the registered one.
func (c CodeError) Errorf(format string, args ...interface{}) Error {
	return &ers{code: c, msg: fmt.Sprintf(format, args...)}
}

func compact(in []error) []error {
	out := make([]error, 0, len(in))
	for _, e := range in {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// Error extends the standard error with the code/parent hierarchy every
// operation in this module reports through.
type Error interface {
	error

	// Code returns this error's own classification.
	Code() CodeError

	// Is reports whether this error (or any parent in its chain) carries
	// the given code. It takes a CodeError rather than an error, so
	// errors.Is does not call it; Has is the errors.As-based helper.
	Is(code CodeError) bool

	// Parents returns the immediate wrapped causes, if any.
	Parents() []error

	// Unwrap exposes the first parent for errors.Unwrap/As chains.
	Unwrap() error
}

type ers struct {
	code    CodeError
	msg     string
	parents []error
}

func (e *ers) Error() string {
	m := e.msg
	if m == "" {
		m = e.code.Message()
	}
	if len(e.parents) == 0 {
		return m
	}
	return fmt.Sprintf("%s: %s", m, e.parents[0].Error())
}

func (e *ers) Code() CodeError { return e.code }

func (e *ers) Parents() []error { return e.parents }

func (e *ers) Unwrap() error {
	if len(e.parents) == 0 {
		return nil
	}
	return e.parents[0]
}

func (e *ers) Is(code CodeError) bool {
	if e.code == code {
		return true
	}
	for _, p := range e.parents {
		var pe Error
		if errors.As(p, &pe) && pe.Is(code) {
			return true
		}
	}
	return false
}

// Has reports whether err (or any parent in its chain) carries code.
// Callers compare with Has rather than errors.Is(err, code.Error()),
// which would require constructing a throwaway Error just to discard it.
func Has(err error, code CodeError) bool {
	var e Error
	if errors.As(err, &e) {
		return e.Is(code)
	}
	return false
}

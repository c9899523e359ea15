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

// Package addr models a bound rendezvous name (spec §3 "bound_name", §6
// "the address sentinel 'no name'").
package addr

// Domain is always "local" in this module; no wire encoding exists for
// the name, it is purely an in-process rendezvous key (spec §1 non-goals).
const Domain = "local"

// Address is an owned copy of the path an endpoint was bound to.
type Address struct {
	Name string
}

// NoName is the sentinel address for an unbound endpoint — its length is
// conceptually "the header only," i.e. no name (spec §6).
var NoName = Address{}

// IsSet reports whether this is a real bound name rather than the
// sentinel.
func (a Address) IsSet() bool {
	return a.Name != ""
}

func (a Address) String() string {
	if !a.IsSet() {
		return "(no name)"
	}
	return a.Name
}

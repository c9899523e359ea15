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

package cred

import "os"

// Self returns the calling process's own credentials. The real subsystem
// gets a connecting peer's credentials from the syscall dispatch layer
// (out of scope per spec §1); Self is the stand-in callers use to build a
// caller_cred for connect/listen in tests and examples, and the one
// transfer.Engine.Send falls back to for the implicit connect a stream
// send triggers when it carries an address but no syscall-supplied
// credential is available at that layer.
func Self() Ucred {
	groups, _ := os.Getgroups()
	g := make([]uint32, 0, len(groups))
	for _, gid := range groups {
		g = append(g, uint32(gid))
	}
	return Ucred{
		Pid:    int32(os.Getpid()),
		Uid:    uint32(os.Getuid()),
		Gid:    uint32(os.Getgid()),
		Groups: g,
	}.Clamp()
}

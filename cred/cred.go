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

// Package cred models peer process credentials (spec §3 "peer_cred", §4.6
// CREDS). Ucred is the same portable struct on every GOOS; on Linux,
// FromKernel additionally adapts golang.org/x/sys/unix.Ucred, the exact
// struct the kernel hands back from getsockopt(SO_PEERCRED), into it.
package cred

// MaxGroups bounds the supplementary-group list synthesized by CREDS
// (spec §4.6: "first N supplementary groups (N bounded)"), following the
// fixed-size Groups array BSD's struct cmsgcred/sockcred carries.
const MaxGroups = 16

// Ucred is the process credential pair carried alongside a connection:
// who is on the other end of it, captured at connect/listen time and
// never refreshed (spec §3, §4.4).
type Ucred struct {
	Pid    int32
	Uid    uint32
	Gid    uint32
	Groups []uint32
}

// Clamp truncates Groups to MaxGroups, matching the CREDS synthesis rule.
func (c Ucred) Clamp() Ucred {
	if len(c.Groups) <= MaxGroups {
		return c
	}
	out := c
	out.Groups = append([]uint32(nil), c.Groups[:MaxGroups]...)
	return out
}

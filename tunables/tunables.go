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

// Package tunables holds the plain-struct configuration spec §6 enumerates.
// It is its own leaf package, not a field of uds.Socket, so that endpoint
// (which needs the defaults at creation time) does not have to import the
// facade package that in turn imports endpoint — this module has no
// file-backed config layer to bind to (spec §1 non-goals: no persistence
// across restarts), so a struct of defaults is the entire ambient
// "configuration" concern here.
package tunables

// Tunables is the set of byte-size/message-count defaults spec §6 lists.
type Tunables struct {
	StreamSendSpace   int
	StreamRecvSpace   int
	DatagramMax       int
	DatagramRecvSpace int
}

// Default returns spec §6's documented defaults: 8192/8192 stream,
// 2048/4096 datagram.
func Default() Tunables {
	return Tunables{
		StreamSendSpace:   8192,
		StreamRecvSpace:   8192,
		DatagramMax:       2048,
		DatagramRecvSpace: 4096,
	}
}

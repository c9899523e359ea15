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

package sockbuf

// Pair bundles the send and receive buffers of one endpoint — the
// "owning socket object" spec §1 lists as an external collaborator, here
// given the minimal concrete shape (§3: "socket.rcv_buffer", and the
// peer's matching send-side view) needed to exercise the rest of the
// module.
type Pair struct {
	Send *Buffer
	Recv *Buffer
}

// NewPair builds a Pair with a send buffer of sendBytes capacity and a
// receive buffer of recvBytes capacity / recvMsgs message count (0 means
// unlimited message count — stream buffers pass 0).
func NewPair(sendBytes, recvBytes, recvMsgs int) *Pair {
	return &Pair{
		Send: NewBuffer(sendBytes, 0),
		Recv: NewBuffer(recvBytes, recvMsgs),
	}
}

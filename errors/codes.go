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

package errors

// The codes below are the error kinds enumerated in spec §7. Numbering
// starts at 1000 so they never collide with Unknown and sort apart from
// any future HTTP-style codes this package grows.
const (
	InvalidArgument CodeError = iota + 1000
	AddressInUse
	PermissionDenied
	NotSocket
	ConnectionRefused
	ProtocolMismatch
	AlreadyConnected
	NotConnected
	BrokenPipe
	NoBufferSpace
	MessageTooBig
	BadHandle
	Unsupported
	ConnectionReset
	ConnectionAborted
)

func init() {
	register(InvalidArgument, "invalid argument")
	register(AddressInUse, "address already in use")
	register(PermissionDenied, "permission denied")
	register(NotSocket, "not a socket")
	register(ConnectionRefused, "connection refused")
	register(ProtocolMismatch, "protocol wrong type for socket")
	register(AlreadyConnected, "socket is already connected")
	register(NotConnected, "socket is not connected")
	register(BrokenPipe, "broken pipe")
	register(NoBufferSpace, "no buffer space available")
	register(MessageTooBig, "message too long")
	register(BadHandle, "bad handle in ancillary data")
	register(Unsupported, "operation not supported")
	register(ConnectionReset, "connection reset by peer")
	register(ConnectionAborted, "software caused connection abort")
}

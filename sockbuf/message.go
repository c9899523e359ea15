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

// Package sockbuf is the minimal stand-in for "the generic socket buffer
// primitives (append, wakeup, wait)" spec §1 lists as an external
// collaborator, interface-only. It carries exactly what §3/§4.5 need: a
// byte/record queue with occupancy accounting and a blocking wait, with
// ancillary control riding along attached to the byte-stream position
// where it was sent (spec §5 "Ordering guarantees").
package sockbuf

import (
	"time"

	"github/sabouaram/uds/addr"
	"github/sabouaram/uds/cred"
	"github/sabouaram/uds/handle"
)

// Tag identifies the kind of ancillary blob a ControlMessage carries
// (spec §4.6).
type Tag int

const (
	TagRights Tag = iota
	TagCreds
	TagTimestamp
)

func (t Tag) String() string {
	switch t {
	case TagRights:
		return "RIGHTS"
	case TagCreds:
		return "CREDS"
	case TagTimestamp:
		return "TIMESTAMP"
	default:
		return "UNKNOWN"
	}
}

// ControlMessage is one tagged blob in the linked sequence spec §4.6
// describes. Exactly one of RawRights (pre-internalize), Rights
// (post-internalize), Creds, or Timestamp is meaningful, selected by Tag.
type ControlMessage struct {
	Tag Tag

	// RawRights is the sender-side input to Internalize: integer handle
	// indices in the sender's own handle table.
	RawRights []int

	// Rights is the internalized, owned list of handle references. Once
	// externalized, the consumer reads these back out as integer indices:
	// each entry's own table ID. No new index is allocated for them.
	Rights []*handle.Entry

	Creds     cred.Ucred
	Timestamp time.Time
}

// Record is one queued unit: a data run plus whatever control rode along
// with it, and — for datagram sockets — the source address it arrived
// with (spec §4.5 "append-with-source-address").
type Record struct {
	Data    []byte
	Control []ControlMessage
	Source  addr.Address
}

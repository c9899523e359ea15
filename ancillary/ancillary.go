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

// Package ancillary is the control-message processor (spec §4.6, C6):
// internalize/externalize of RIGHTS, CREDS, and TIMESTAMP tags.
package ancillary

import (
	"time"

	"github/sabouaram/uds/cred"
	uerr "github/sabouaram/uds/errors"
	"github/sabouaram/uds/handle"
	"github/sabouaram/uds/rights"
	"github/sabouaram/uds/sockbuf"
)

// Internalize validates and converts every RawRights entry into an owned
// handle reference, synthesizes CREDS/TIMESTAMP payloads, and bumps the
// global inflight_rights counter by the total number of rights
// delivered. Validation happens in a first pass that touches no counter,
// so a bad_handle/unsupported failure on entry k leaves entries 0..k-1
// untouched — spec §4.6 "On any validation failure, reject the entire
// operation (atomic)".
func Internalize(table *handle.Table, counter *rights.Counter, msgs []sockbuf.ControlMessage, sender cred.Ucred) ([]sockbuf.ControlMessage, error) {
	out := make([]sockbuf.ControlMessage, len(msgs))
	copy(out, msgs)

	// Validation pass over every RIGHTS message; no counter is touched
	// until all of them have resolved.
	resolved := make([][]*handle.Entry, len(out))
	for i := range out {
		if out[i].Tag != sockbuf.TagRights {
			continue
		}
		entries := make([]*handle.Entry, 0, len(out[i].RawRights))
		for _, idx := range out[i].RawRights {
			e, ok := table.Lookup(uint64(idx))
			if !ok {
				return nil, uerr.BadHandle.Error()
			}
			if np, isNP := e.Object().(handle.NotPassable); isNP && np.NotPassable() {
				return nil, uerr.Unsupported.Error()
			}
			entries = append(entries, e)
		}
		resolved[i] = entries
	}

	for i := range out {
		switch out[i].Tag {
		case sockbuf.TagRights:
			// Validation pass succeeded for every message; commit its refs.
			entries := resolved[i]
			for _, e := range entries {
				table.MsgRef(e)
			}
			counter.Add(len(entries))
			out[i].RawRights = nil
			out[i].Rights = entries

		case sockbuf.TagCreds:
			// Bounded supplementary-group list (spec §4.6: "first N
			// supplementary groups, N bounded"; original_source's
			// cmsgcred/sockcred structures cap this the same way).
			out[i].Creds = sender.Clamp()

		case sockbuf.TagTimestamp:
			out[i].Timestamp = time.Now()
		}
	}

	return out, nil
}

// Externalize converts internalized RIGHTS back into the receiver's own
// index space. capacity bounds how many more handles the receiver's
// table can accept right now; exceeding it fails the whole message with
// message_too_big and discards every listed right rather than
// partially delivering (spec §4.6 "Externalize").
func Externalize(table *handle.Table, counter *rights.Counter, msgs []sockbuf.ControlMessage, capacity int) ([]sockbuf.ControlMessage, error) {
	out := make([]sockbuf.ControlMessage, len(msgs))
	copy(out, msgs)

	for i := range out {
		if out[i].Tag != sockbuf.TagRights {
			continue
		}
		if len(out[i].Rights) > capacity {
			DiscardControl(table, counter, out)
			return nil, uerr.MessageTooBig.Error()
		}
		capacity -= len(out[i].Rights)
		ids := make([]int, len(out[i].Rights))
		for j, e := range out[i].Rights {
			ids[j] = int(e.ID())
			table.MsgUnref(e)
			counter.Add(-1)
		}
		out[i].RawRights = ids
		out[i].Rights = nil
	}

	return out, nil
}

// DiscardControl releases every RIGHTS entry across msgs without
// delivering them — the path taken when a receiver discards a control
// message outright (spec §4.6 "If externalize is skipped"), when a send
// is cancelled (spec §5 "Cancellation": "a cancelled send releases
// internalized rights by running the externalize-discard path"), and
// internally by Externalize on message_too_big.
func DiscardControl(table *handle.Table, counter *rights.Counter, msgs []sockbuf.ControlMessage) {
	for _, m := range msgs {
		if m.Tag != sockbuf.TagRights {
			continue
		}
		for _, e := range m.Rights {
			table.MsgUnref(e)
			counter.Add(-1)
		}
	}
}

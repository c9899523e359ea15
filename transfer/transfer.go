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

// Package transfer is the data path (spec §4.5, C5): stream send/rcvd
// with coupled buffer accounting, and datagram send with
// append-with-source-address semantics.
package transfer

import (
	"context"

	"github/sabouaram/uds/ancillary"
	"github/sabouaram/uds/conn"
	"github/sabouaram/uds/cred"
	"github/sabouaram/uds/endpoint"
	uerr "github/sabouaram/uds/errors"
	"github/sabouaram/uds/handle"
	"github/sabouaram/uds/rights"
	"github/sabouaram/uds/sockbuf"
)

// Engine binds the data path to a conn.Manager so an implicit connect
// (spec §4.5 stream send step 1) can be attempted without the caller
// reaching back into the facade. Handles/Rights are the same table and
// counter the caller's Internalize used to build control, needed here
// so a send that fails after internalizing rights can discard them
// (spec §5 "Cancellation").
type Engine struct {
	Conn    *conn.Manager
	Handles *handle.Table
	Rights  *rights.Counter
}

// New builds an Engine over m, releasing internalized rights through
// handles/counter on a failed send.
func New(m *conn.Manager, handles *handle.Table, counter *rights.Counter) *Engine {
	return &Engine{Conn: m, Handles: handles, Rights: counter}
}

// adjustCredit implements the single coupled-accounting step spec §4.5
// item 4 describes, called from both Send (after append) and Rcvd
// (after drain) so the delta math lives in one place (SPEC_FULL.md
// "Transfer engine"): it recomputes src's cached view of peer's current
// receive occupancy. It computes no delta and changes no buffer's byte
// limit; the send-side high-water mark stays at its creation value.
func adjustCredit(src, peer *endpoint.Endpoint) {
	bytes, msgs := peer.Buf.Recv.Occupancy()
	src.SetSendCredit(bytes, msgs)
}

// Send implements spec §4.5 "Stream send": if unconnected and addr is
// given, attempts the same implicit connect conn.Manager.Connect runs
// for an explicit connect call, propagating its error (spec §4.5 step
// 1; original_source's uipc_send, SOCK_STREAM case, only falls through
// to ENOTCONN when the caller passed no address). Otherwise fails
// broken_pipe if the send side is shut, appends payload+control to the
// peer's receive buffer, and runs the coupled-accounting step. On any
// failure to append, discards control's internalized rights rather
// than leaking them (spec §5 "Cancellation").
func (eng *Engine) Send(ctx context.Context, src *endpoint.Endpoint, payload []byte, control []sockbuf.ControlMessage, addr string) error {
	eng.Conn.Reg.RLock()
	peer := src.Peer()
	eng.Conn.Reg.RUnlock()

	if peer == nil {
		if addr == "" {
			return uerr.NotConnected.Error()
		}
		p, err := eng.Conn.Connect(src, addr, cred.Self())
		if err != nil {
			return err
		}
		peer = p
	}

	if src.Buf.Send.IsShut() {
		return uerr.BrokenPipe.Error()
	}

	rec := sockbuf.Record{Data: append([]byte(nil), payload...), Control: control}
	if err := peer.Buf.Recv.AppendBlocking(ctx, rec); err != nil {
		ancillary.DiscardControl(eng.Handles, eng.Rights, control)
		return err
	}

	adjustCredit(src, peer)
	return nil
}

// Rcvd implements spec §4.5 "Stream rcvd": the sole backpressure-release
// path, run on every receive-side drain. n is accepted for symmetry with
// the external operation table (spec §6 "rcvd: drained-byte-count") but
// the credit recomputation itself reads peer's live occupancy rather
// than trusting a caller-supplied count, so a short read still leaves
// accounting consistent.
func (eng *Engine) Rcvd(src *endpoint.Endpoint, n int) {
	eng.Conn.Reg.RLock()
	peer := src.Peer()
	eng.Conn.Reg.RUnlock()
	if peer == nil {
		return
	}
	adjustCredit(peer, src)
}

// SendDatagram implements spec §4.5 "Datagram send": optional transient
// connect, append-with-source-address, optional transient disconnect.
// On buffer-full, no_buffer_space.
func (eng *Engine) SendDatagram(src *endpoint.Endpoint, payload []byte, control []sockbuf.ControlMessage, optAddr string) error {
	transient := false

	if optAddr != "" {
		// Spec §4.5: "Datagram send with an address while already
		// connected: already_connected" (spec §4.4 edge rules).
		eng.Conn.Reg.RLock()
		already := src.Peer() != nil
		eng.Conn.Reg.RUnlock()
		if already {
			return uerr.AlreadyConnected.Error()
		}
		node, err := eng.Conn.NS.Lookup(optAddr)
		if err != nil {
			return err
		}
		p, ok := node.Owner().(*endpoint.Endpoint)
		if !ok || p == nil {
			return uerr.ConnectionRefused.Error()
		}
		if p.Kind() != src.Kind() {
			return uerr.ProtocolMismatch.Error()
		}
		// connect2 directly (spec §4.4 step 5): records the peer without
		// symmetrization.
		eng.Conn.Connect2(src, p)
		transient = true
	}

	eng.Conn.Reg.RLock()
	peer := src.Peer()
	eng.Conn.Reg.RUnlock()
	if peer == nil {
		return uerr.NotConnected.Error()
	}

	rec := sockbuf.Record{
		Data:    append([]byte(nil), payload...),
		Control: control,
		Source:  src.BoundName(), // addr.NoName sentinel when unbound
	}

	if err := peer.Buf.Recv.AppendNonBlocking(rec); err != nil {
		if transient {
			eng.Conn.Disconnect(src)
		}
		return err
	}

	if transient {
		eng.Conn.Disconnect(src)
	}
	return nil
}

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

// Package uds is the facade exposing "Operations exposed to the socket
// layer" (spec §6) as a single concrete type. It is the one surface
// SPEC_FULL.md adds beyond the literal component list — grounded on the
// teacher's socket/server/unix constructor-takes-a-logger,
// context-bearing-methods shape.
package uds

import (
	"context"

	"github/sabouaram/uds/addr"
	"github/sabouaram/uds/ancillary"
	"github/sabouaram/uds/conn"
	"github/sabouaram/uds/cred"
	"github/sabouaram/uds/endpoint"
	uerr "github/sabouaram/uds/errors"
	"github/sabouaram/uds/handle"
	"github/sabouaram/uds/logger"
	"github/sabouaram/uds/registry"
	"github/sabouaram/uds/rendezvous"
	"github/sabouaram/uds/rights"
	"github/sabouaram/uds/rightsgc"
	"github/sabouaram/uds/sockbuf"
	"github/sabouaram/uds/transfer"
	"github/sabouaram/uds/tunables"
)

// Tunables re-exports tunables.Tunables under the facade's own name, the
// way spec §6 itself names the tunables table without assigning it to a
// specific component.
type Tunables = tunables.Tunables

// DefaultTunables returns spec §6's documented defaults.
func DefaultTunables() Tunables { return tunables.Default() }

// Subsystem is the process-wide collection of singletons spec §9
// "Global mutable state" describes: the registry, the rendezvous
// namespace, the handle table, the inflight_rights counter, and the
// rights GC, wired together once at subsystem startup — "no teardown
// (handles survive while the process does)".
type Subsystem struct {
	Reg     *registry.Registry
	NS      *rendezvous.Namespace
	Handles *handle.Table
	Rights  *rights.Counter
	GC      *rightsgc.Collector
	Conn    *conn.Manager
	Xfer    *transfer.Engine
	Tun     Tunables
	Log     logger.Logger
}

// NewSubsystem constructs and wires every collaborator.
func NewSubsystem(tun Tunables, log logger.Logger) *Subsystem {
	if log == nil {
		log = logger.Nil
	}
	reg := registry.New()
	ns := rendezvous.New()
	handles := handle.NewTable()
	counter := &rights.Counter{}
	gc := rightsgc.New(handles, counter, log)
	cm := conn.New(reg, ns, gc, tun, log)
	xfer := transfer.New(cm, handles, counter)

	return &Subsystem{
		Reg: reg, NS: ns, Handles: handles, Rights: counter, GC: gc,
		Conn: cm, Xfer: xfer, Tun: tun, Log: log,
	}
}

// Stats is the read-only introspection snapshot spec §6 "Tunables:
// inflight_rights (read-only observation)" and §6 "Introspection" call
// for, collapsed into the one struct both ask for.
type Stats struct {
	Generation      uint64
	DatagramCount   int
	StreamCount     int
	InflightRights  int64
}

// Stat returns a point-in-time Stats snapshot.
func (s *Subsystem) Stat() Stats {
	s.Reg.RLock()
	defer s.Reg.RUnlock()
	return Stats{
		Generation:     s.Reg.Generation(),
		DatagramCount:  s.Reg.Count(registry.Datagram),
		StreamCount:    s.Reg.Count(registry.Stream),
		InflightRights: s.Rights.Load(),
	}
}

// Introspect implements spec §6 "Introspection": enumerates (kind,
// [endpoints]) with the registry generation at time of call. Callers
// must compare each *Socket's own Generation() against the returned
// generation before relying on further state, per spec §8 invariant 7.
func (s *Subsystem) Introspect(kind endpoint.Kind) (generation uint64, sockets []*Socket) {
	gen, members := s.Reg.Snapshot(kind)
	out := make([]*Socket, 0, len(members))
	for _, m := range members {
		if ep, ok := m.(*endpoint.Endpoint); ok {
			out = append(out, &Socket{sub: s, ep: ep})
		}
	}
	return gen, out
}

// Socket is one attached endpoint, the "socket handle" every operation
// in spec §6's table takes.
type Socket struct {
	sub *Subsystem
	ep  *endpoint.Endpoint
}

// Attach implements spec §6 "attach".
func (s *Subsystem) Attach(kind endpoint.Kind) *Socket {
	return &Socket{sub: s, ep: s.Conn.Attach(kind)}
}

// Generation exposes the endpoint's own generation for snapshot
// revalidation (spec §8 invariant 7).
func (sock *Socket) Generation() uint64 { return sock.ep.Generation() }

// Endpoint exposes the underlying endpoint.Endpoint for packages that
// need lower-level access (tests, rightsgc wiring via handle.Table).
func (sock *Socket) Endpoint() *endpoint.Endpoint { return sock.ep }

// Detach implements spec §6 "detach" / §4.4 "detach".
func (sock *Socket) Detach(ctx context.Context) {
	sock.sub.Conn.Detach(ctx, sock.ep, sock.sub.Rights)
}

// Bind implements spec §6 "bind" / §4.3 "bind".
func (sock *Socket) Bind(path string) error {
	return sock.sub.Conn.Bind(sock.ep, path)
}

// Listen implements spec §6 "listen" / §4.4 "listen".
func (sock *Socket) Listen(callerCred cred.Ucred) {
	sock.sub.Conn.Listen(sock.ep, callerCred)
}

// Connect implements spec §6 "connect" / §4.4 "connect".
func (sock *Socket) Connect(address string, callerCred cred.Ucred) error {
	_, err := sock.sub.Conn.Connect(sock.ep, address, callerCred)
	return err
}

// Accept implements spec §6 "accept": returns the newly connected
// child's peer address (the connecting client's bound name, or the
// no-name sentinel), claiming the oldest pending child off this
// (listening) socket's queue.
func (sock *Socket) Accept() (*Socket, addr.Address, error) {
	child, ok := sock.ep.PopPending()
	if !ok {
		return nil, addr.NoName, uerr.ConnectionRefused.Error()
	}
	sock.sub.Reg.RLock()
	p := child.Peer()
	sock.sub.Reg.RUnlock()
	peerAddr := addr.NoName
	if p != nil {
		peerAddr = p.BoundName()
	}
	return &Socket{sub: sock.sub, ep: child}, peerAddr, nil
}

// ConnectPair implements spec §6 "connect-pair" / §4.4 "connect2".
func (sock *Socket) ConnectPair(other *Socket) {
	sock.sub.Conn.ConnectPair(sock.ep, other.ep)
}

// Shutdown implements spec §6 "shutdown" / §4.4 "shutdown".
func (sock *Socket) Shutdown() {
	sock.sub.Conn.Shutdown(sock.ep)
}

// Send implements spec §6 "send": for a stream socket, appends payload
// with coupled accounting, implicitly connecting first when unconnected
// and optAddr is given; for a datagram socket, enqueues with optional
// transient connect. control is pre-internalized by the caller via
// DisposeControl's counterpart, Internalize (exposed below).
func (sock *Socket) Send(ctx context.Context, payload []byte, control []sockbuf.ControlMessage, optAddr string) error {
	if sock.ep.Kind() == endpoint.Stream {
		return sock.sub.Xfer.Send(ctx, sock.ep, payload, control, optAddr)
	}
	return sock.sub.Xfer.SendDatagram(sock.ep, payload, control, optAddr)
}

// Rcvd implements spec §6 "rcvd": must be called on every receive-side
// drain (spec §4.5 "Stream rcvd"); programmer error to call on a
// datagram socket (spec §4.4 edge rules: "Any recv on a datagram
// endpoint calling the stream-only rcvd hook is a programmer error and
// must abort").
func (sock *Socket) Rcvd(n int) {
	if sock.ep.Kind() != endpoint.Stream {
		uerr.Fatal("rcvd called on a datagram socket")
	}
	sock.sub.Xfer.Rcvd(sock.ep, n)
}

// Stat implements spec §6 "stat": synthetic inode + apparent blocksize
// (send hiwat, plus for stream the peer's current receive-buffer
// occupancy).
func (sock *Socket) Stat() (inode uint64, blockSize int) {
	blockSize = sock.sub.Tun.DatagramMax
	if sock.ep.Kind() == endpoint.Stream {
		blockSize = sock.sub.Tun.StreamSendSpace
		// Spec §9 open question 2: rcvd/stat should take both the
		// endpoint lock and the peer buffer's own lock, not just the
		// endpoint lock — implemented here via registry_lock (shared)
		// plus Occupancy's own internal buffer lock.
		sock.sub.Reg.RLock()
		p := sock.ep.Peer()
		sock.sub.Reg.RUnlock()
		if p != nil {
			rcvBytes, _ := p.Buf.Recv.Occupancy()
			blockSize += rcvBytes
		}
	}
	return sock.ep.FakeInode(), blockSize
}

// PeerAddr implements spec §6 "peer-addr".
func (sock *Socket) PeerAddr() addr.Address {
	sock.sub.Reg.RLock()
	p := sock.ep.Peer()
	sock.sub.Reg.RUnlock()
	if p != nil {
		return p.BoundName()
	}
	return addr.NoName
}

// SockAddr implements spec §6 "sock-addr".
func (sock *Socket) SockAddr() addr.Address {
	return sock.ep.BoundName()
}

// GetPeerCred implements spec §6 "get-peer-cred": not_connected for an
// unconnected stream socket, invalid_argument for datagram (spec §9
// open question 1 — implemented exactly as described, not resolved
// further).
func (sock *Socket) GetPeerCred() (cred.Ucred, error) {
	if sock.ep.Kind() != endpoint.Stream {
		return cred.Ucred{}, uerr.InvalidArgument.Error()
	}
	c, have := sock.ep.PeerCred()
	if !have {
		return cred.Ucred{}, uerr.NotConnected.Error()
	}
	return c, nil
}

// DisposeControl implements spec §6 "dispose-control": the
// externalize-discard path for control never delivered to a receiver
// (spec §4.6 "If externalize is skipped").
func (sock *Socket) DisposeControl(control []sockbuf.ControlMessage) {
	ancillary.DiscardControl(sock.sub.Handles, sock.sub.Rights, control)
}

// Internalize exposes ancillary.Internalize bound to this subsystem's
// handle table and counter, the half of C6 the caller drives from
// outside Send (building control for a Send call).
func (s *Subsystem) Internalize(msgs []sockbuf.ControlMessage, sender cred.Ucred) ([]sockbuf.ControlMessage, error) {
	return ancillary.Internalize(s.Handles, s.Rights, msgs, sender)
}

// Externalize exposes ancillary.Externalize bound to this subsystem's
// handle table and counter, for a receiver converting drained control
// back into its own index space.
func (s *Subsystem) Externalize(msgs []sockbuf.ControlMessage, capacity int) ([]sockbuf.ControlMessage, error) {
	return ancillary.Externalize(s.Handles, s.Rights, msgs, capacity)
}

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

// Package endpoint is the per-socket control block (spec §4.2/§3, C2): a
// single tagged-variant struct for both datagram and stream endpoints,
// per spec §9 "Polymorphism" ("model as a tagged variant with a single
// dispatch table; avoid per-field nullable-based kind inference").
package endpoint

import (
	"sync"
	"sync/atomic"

	"github/sabouaram/uds/addr"
	"github/sabouaram/uds/cred"
	"github/sabouaram/uds/handle"
	"github/sabouaram/uds/registry"
	"github/sabouaram/uds/rendezvous"
	"github/sabouaram/uds/sockbuf"
	"github/sabouaram/uds/tunables"
)

// Kind is an alias of registry.Kind so endpoint and registry never
// disagree on the two-way partition, without endpoint needing its own
// duplicate enum.
type Kind = registry.Kind

const (
	Datagram = registry.Datagram
	Stream   = registry.Stream
)

// State is the per-endpoint connection state machine (spec §4.4).
// Datagram endpoints never enter Listening or Connecting; they occupy
// Unbound, Bound, Connected, and, after disconnect or detach,
// Disconnecting and Closed.
type State int

const (
	Unbound State = iota
	Bound
	Listening
	Connecting
	Connected
	Disconnecting
	Closed
)

// Flags is the bitset spec §3 lists on Endpoint.
type Flags uint8

const (
	HavePeerCred Flags = 1 << iota
	HaveCachedListenerCred
)

var nextInode uint64

// Endpoint is the per-socket control object (spec §3 "Endpoint (C2)").
// Fields are split across two guard disciplines, matching spec §5's lock
// list: Peer, Refs, and Generation are linkage fields conceptually
// guarded by registry_lock (callers — conn, rightsgc — hold the owning
// *registry.Registry's lock across any mutation of them); everything
// else is guarded by this struct's own mu, a finer-grained lock spec §5
// doesn't separately name but that keeps unrelated endpoints from
// contending on the single global registry_lock for accessor reads.
type Endpoint struct {
	kind       Kind
	generation uint64 // registry_lock

	mu         sync.Mutex
	state      State
	boundName  *addr.Address
	node       *rendezvous.Node
	sndCreditB int
	sndCreditM int
	peerCred   cred.Ucred
	flags      Flags
	fakeInode  uint64
	asyncErr   error

	// Peer/Refs: registry_lock.
	peer *Endpoint
	refs map[*Endpoint]struct{}

	// pending holds children allocated by conn.Connect against this
	// listening endpoint, waiting to be claimed by Accept (spec §6's
	// "accept | — | peer address of child" has no further elaboration in
	// §4.4, so the listener side is modeled as the simplest queue that
	// makes connect-then-accept observable).
	pending []*Endpoint

	Buf *sockbuf.Pair
	tun tunables.Tunables
}

// New creates an endpoint of the given kind with default buffer sizes
// from tun (spec §4.2: "Creation reserves default send/receive buffer
// sizes if not already set"). Generation is assigned by the caller
// (conn.Attach) under registry_lock, via SetGeneration, immediately
// after New returns and before the endpoint becomes visible in the
// registry.
func New(kind Kind, tun tunables.Tunables) *Endpoint {
	e := &Endpoint{kind: kind, tun: tun}
	if kind == Stream {
		e.Buf = sockbuf.NewPair(tun.StreamSendSpace, tun.StreamRecvSpace, 0)
	} else {
		e.Buf = sockbuf.NewPair(tun.DatagramMax, tun.DatagramRecvSpace, 0)
	}
	return e
}

// Kind satisfies registry.Member.
func (e *Endpoint) Kind() Kind { return e.kind }

// Generation satisfies registry.Member. Caller must hold registry_lock
// (shared or exclusive) for a linearizable read with concurrent conn
// operations, though an atomic-free plain read is safe here because
// every writer also holds registry_lock.
func (e *Endpoint) Generation() uint64 { return e.generation }

// SetGeneration is called by conn under registry_lock on attach and on
// every detach (spec §3 "Global counters").
func (e *Endpoint) SetGeneration(g uint64) { e.generation = g }

// Peer returns the connected/transiently-bound peer, or nil. Caller must
// hold registry_lock.
func (e *Endpoint) Peer() *Endpoint { return e.peer }

// SetPeer sets the peer link. Caller must hold registry_lock.
func (e *Endpoint) SetPeer(p *Endpoint) { e.peer = p }

// Refs returns the set of datagram endpoints pointing back at e (spec §3
// "refs"). Caller must hold registry_lock.
func (e *Endpoint) Refs() map[*Endpoint]struct{} {
	if e.refs == nil {
		e.refs = make(map[*Endpoint]struct{})
	}
	return e.refs
}

// AddRef records that d considers e its peer. Caller must hold
// registry_lock.
func (e *Endpoint) AddRef(d *Endpoint) { e.Refs()[d] = struct{}{} }

// RemoveRef undoes AddRef. Caller must hold registry_lock.
func (e *Endpoint) RemoveRef(d *Endpoint) { delete(e.Refs(), d) }

// State returns the connection state.
func (e *Endpoint) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SetState sets the connection state.
func (e *Endpoint) SetState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// BoundName returns the bound address, or addr.NoName if unbound.
func (e *Endpoint) BoundName() addr.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.boundName == nil {
		return addr.NoName
	}
	return *e.boundName
}

// Node returns the rendezvous node backing this endpoint's bound name,
// or nil.
func (e *Endpoint) Node() *rendezvous.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.node
}

// SetBinding installs the bound address and its rendezvous node
// together, preserving the invariant "bound_name.some <=> node.some"
// (spec §3).
func (e *Endpoint) SetBinding(a addr.Address, n *rendezvous.Node) {
	e.mu.Lock()
	e.boundName = &a
	e.node = n
	e.mu.Unlock()
}

// ClearBinding removes the bound address and node together (spec §4.4
// detach: "clears back-pointer on the rendezvous node").
func (e *Endpoint) ClearBinding() {
	e.mu.Lock()
	e.boundName = nil
	e.node = nil
	e.mu.Unlock()
}

// SendCredit returns the cached view of the peer's last-observed
// receive-side occupancy (spec §3 "snd_credit_bytes, snd_credit_msgs").
func (e *Endpoint) SendCredit() (bytes, msgs int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sndCreditB, e.sndCreditM
}

// SetSendCredit updates the cached view.
func (e *Endpoint) SetSendCredit(bytes, msgs int) {
	e.mu.Lock()
	e.sndCreditB = bytes
	e.sndCreditM = msgs
	e.mu.Unlock()
}

// PeerCred returns the cached remote credential and whether it has ever
// been set.
func (e *Endpoint) PeerCred() (cred.Ucred, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peerCred, e.flags&HavePeerCred != 0
}

// SetPeerCred caches c and sets HavePeerCred (spec §4.4 connect step 3).
func (e *Endpoint) SetPeerCred(c cred.Ucred) {
	e.mu.Lock()
	e.peerCred = c
	e.flags |= HavePeerCred
	e.mu.Unlock()
}

// CacheListenerCred caches c as the listener's own captured credential
// and sets HaveCachedListenerCred (spec §4.4 "listen").
func (e *Endpoint) CacheListenerCred(c cred.Ucred) {
	e.mu.Lock()
	e.peerCred = c
	e.flags |= HaveCachedListenerCred
	e.mu.Unlock()
}

// HasFlag reports whether f is set.
func (e *Endpoint) HasFlag(f Flags) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flags&f != 0
}

// FakeInode lazily assigns and returns a process-unique synthetic inode
// number (spec §3 "fake_inode", §6 "stat": "synthetic inode").
func (e *Endpoint) FakeInode() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fakeInode == 0 {
		e.fakeInode = atomic.AddUint64(&nextInode, 1)
	}
	return e.fakeInode
}

// AsyncErr returns and clears the asynchronous error set by Drop (spec
// §4.4 "drop": "Records err as the endpoint's asynchronous error").
func (e *Endpoint) AsyncErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.asyncErr
	e.asyncErr = nil
	return err
}

// SetAsyncErr records err without clearing it, for Drop.
func (e *Endpoint) SetAsyncErr(err error) {
	e.mu.Lock()
	e.asyncErr = err
	e.mu.Unlock()
}

// PushPending enqueues a freshly connected child for Accept to claim.
func (e *Endpoint) PushPending(child *Endpoint) {
	e.mu.Lock()
	e.pending = append(e.pending, child)
	e.mu.Unlock()
}

// PopPending dequeues the oldest pending child, or ok=false if none.
func (e *Endpoint) PopPending() (child *Endpoint, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pending) == 0 {
		return nil, false
	}
	child = e.pending[0]
	e.pending = e.pending[1:]
	return child, true
}

// QueuedRights implements handle.RightsSource: every handle referenced
// by a RIGHTS control message currently sitting in this endpoint's
// receive queue (spec §4.7 step 2's socket-handle propagation case).
func (e *Endpoint) QueuedRights() []*handle.Entry {
	var out []*handle.Entry
	for _, rec := range e.Buf.Recv.Peek() {
		for _, c := range rec.Control {
			if c.Tag == sockbuf.TagRights {
				out = append(out, c.Rights...)
			}
		}
	}
	return out
}

// FlushRights implements handle.RightsSource's forced-flush half (spec
// §4.7 step 4): it empties the receive queue without itself adjusting
// any handle-table counters, which is rightsgc's responsibility once it
// has captured QueuedRights for this same queue.
func (e *Endpoint) FlushRights() {
	e.Buf.Recv.Clear()
}

// Close implements io.Closer so an Endpoint can be registered directly
// in a handle.Table when passed as a RIGHTS payload (a socket-to-socket
// handle, spec §4.7's "local-domain socket handle carrying RIGHTS"
// case). Closing here forcibly flushes both buffers; conn.Detach is
// still the normal, non-forced release path.
func (e *Endpoint) Close() error {
	e.Buf.Recv.Clear()
	e.Buf.Send.Clear()
	return nil
}

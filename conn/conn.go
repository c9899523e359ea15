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

// Package conn is the connection manager (spec §4.4, C4): connect,
// connect-pair, listen, disconnect, shutdown, drop, and detach state
// transitions for stream and datagram endpoints, plus attach.
package conn

import (
	"context"

	"github/sabouaram/uds/addr"
	"github/sabouaram/uds/cred"
	"github/sabouaram/uds/endpoint"
	uerr "github/sabouaram/uds/errors"
	"github/sabouaram/uds/logger"
	"github/sabouaram/uds/registry"
	"github/sabouaram/uds/rendezvous"
	"github/sabouaram/uds/rights"
	"github/sabouaram/uds/rightsgc"
	"github/sabouaram/uds/tunables"
)

// Manager owns the process-wide collaborators conn's operations thread
// through: the endpoint registry, the rendezvous namespace, and the
// rights GC (triggered from Detach).
type Manager struct {
	Reg  *registry.Registry
	NS   *rendezvous.Namespace
	GC   *rightsgc.Collector
	Tun  tunables.Tunables
	log  logger.Logger
}

// New builds a Manager over freshly constructed collaborators.
func New(reg *registry.Registry, ns *rendezvous.Namespace, gc *rightsgc.Collector, tun tunables.Tunables, log logger.Logger) *Manager {
	if log == nil {
		log = logger.Nil
	}
	return &Manager{Reg: reg, NS: ns, GC: gc, Tun: tun, log: log}
}

// Attach creates an endpoint of kind, assigns its generation, and
// inserts it into the registry (spec §6 "attach").
func (m *Manager) Attach(kind endpoint.Kind) *endpoint.Endpoint {
	e := endpoint.New(kind, m.Tun)

	m.Reg.Lock()
	e.SetGeneration(m.Reg.NextGeneration())
	m.Reg.Insert(e)
	m.Reg.Unlock()

	e.SetState(endpoint.Unbound)
	return e
}

// Bind implements spec §4.3's bind, wired to the endpoint's own state.
func (m *Manager) Bind(e *endpoint.Endpoint, path string) error {
	if e.BoundName().IsSet() {
		return uerr.InvalidArgument.Error()
	}
	node, err := m.NS.Bind(path, e)
	if err != nil {
		return err
	}
	e.SetBinding(addr.Address{Name: path}, node)
	m.Reg.Lock()
	if e.State() == endpoint.Unbound {
		e.SetState(endpoint.Bound)
	}
	m.Reg.Unlock()
	return nil
}

// Listen implements spec §4.4 "listen": caches caller_cred and marks the
// endpoint listening. Idempotent.
func (m *Manager) Listen(e *endpoint.Endpoint, callerCred cred.Ucred) {
	e.CacheListenerCred(callerCred)
	if e.State() != endpoint.Listening {
		e.SetState(endpoint.Listening)
	}
}

// Connect implements spec §4.4 "connect" steps 1-5.
func (m *Manager) Connect(src *endpoint.Endpoint, peerAddr string, callerCred cred.Ucred) (*endpoint.Endpoint, error) {
	node, err := m.NS.Lookup(peerAddr)
	if err != nil {
		return nil, err
	}
	peer, _ := node.Owner().(*endpoint.Endpoint)
	if peer == nil {
		return nil, uerr.ConnectionRefused.Error()
	}
	if peer.Kind() != src.Kind() {
		return nil, uerr.ProtocolMismatch.Error()
	}

	if src.Kind() == endpoint.Stream {
		if peer.State() != endpoint.Listening {
			return nil, uerr.ConnectionRefused.Error()
		}

		child := endpoint.New(endpoint.Stream, m.Tun)
		m.Reg.Lock()
		child.SetGeneration(m.Reg.NextGeneration())
		m.Reg.Insert(child)
		m.Reg.Unlock()

		listenerCred, _ := peer.PeerCred()
		child.SetPeerCred(callerCred)
		src.SetPeerCred(listenerCred)

		m.Connect2(src, child)
		peer.PushPending(child)
		return child, nil
	}

	// Datagram: connect2 directly, no listener/child indirection.
	m.Connect2(src, peer)
	return peer, nil
}

// Connect2 implements spec §4.4 "connect2": the exported surface calls
// this ConnectPair.
func (m *Manager) Connect2(a, b *endpoint.Endpoint) {
	m.Reg.Lock()
	defer m.Reg.Unlock()

	a.SetPeer(b)
	if a.Kind() == endpoint.Stream {
		b.SetPeer(a)
		a.SetState(endpoint.Connected)
		b.SetState(endpoint.Connected)
	} else {
		b.AddRef(a)
		a.SetState(endpoint.Connected)
	}
}

// ConnectPair is the exported name for Connect2 (spec §6 "connect-pair").
func (m *Manager) ConnectPair(a, b *endpoint.Endpoint) { m.Connect2(a, b) }

// Disconnect implements spec §4.4 "disconnect".
func (m *Manager) Disconnect(e *endpoint.Endpoint) {
	m.Reg.Lock()
	defer m.Reg.Unlock()
	m.disconnectLocked(e)
}

func (m *Manager) disconnectLocked(e *endpoint.Endpoint) {
	peer := e.Peer()
	if peer == nil {
		return
	}
	if e.Kind() == endpoint.Stream {
		e.SetPeer(nil)
		peer.SetPeer(nil)
		e.SetState(endpoint.Disconnecting)
		peer.SetState(endpoint.Disconnecting)
	} else {
		peer.RemoveRef(e)
		e.SetPeer(nil)
		e.SetState(endpoint.Disconnecting)
	}
}

// Shutdown implements spec §4.4 "shutdown": for stream with a live peer,
// signal the peer "cannot receive more." Datagram: no-op.
func (m *Manager) Shutdown(e *endpoint.Endpoint) {
	if e.Kind() != endpoint.Stream {
		return
	}
	m.Reg.RLock()
	peer := e.Peer()
	m.Reg.RUnlock()
	if peer != nil {
		peer.Buf.Recv.Shutdown()
	}
}

// Drop implements spec §4.4 "drop": records err as the asynchronous
// error, then disconnects.
func (m *Manager) Drop(e *endpoint.Endpoint, err error) {
	e.SetAsyncErr(err)
	m.Disconnect(e)
}

// Detach implements spec §4.4 "detach" in full: registry removal,
// generation bump, rendezvous back-pointer clear, disconnect, refs
// cascade with connection_reset, and — if inflight_rights > 0 — a
// forced receive-buffer flush followed by a rights GC pass, all before
// the endpoint is released.
func (m *Manager) Detach(ctx context.Context, e *endpoint.Endpoint, counter *rights.Counter) {
	m.Reg.Lock()

	m.Reg.Remove(e)
	e.SetGeneration(m.Reg.NextGeneration())

	if bn := e.BoundName(); bn.IsSet() {
		m.NS.Unbind(bn.Name)
	}
	e.ClearBinding()

	m.disconnectLocked(e)

	for ref := range e.Refs() {
		ref.SetPeer(nil)
		ref.SetAsyncErr(uerr.ConnectionReset.Error())
		ref.SetState(endpoint.Disconnecting)
	}
	e.SetState(endpoint.Closed)

	needGC := counter.Load() > 0
	if needGC {
		e.Buf.Recv.Clear()
	}

	// registry_lock stays held across the GC pass itself (spec §4.7
	// "Concurrency": the caller already holds it). reclaim's goroutine
	// fan-out only ever touches handle_list_lock, never registry_lock, so
	// this cannot deadlock against itself.
	if needGC && m.GC != nil {
		m.GC.Collect(ctx)
	}

	m.Reg.Unlock()
}

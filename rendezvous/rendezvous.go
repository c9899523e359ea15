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

// Package rendezvous is the name binder (spec §4.3, C3): it stands in for
// the filesystem namespace spec §1 lists as an external collaborator
// (path lookup, inode creation, permission checks), with an in-process
// map playing the role of the directory the original resolves with
// namei() (see uipc_bind/uipc_connect in the retrieved BSD
// sys/kern/uipc_usrreq.c source).
package rendezvous

import (
	"sync"

	uerr "github/sabouaram/uds/errors"
)

// DefaultMode is spec §6's "mode 0777 & ~umask" for a freshly bound
// rendezvous node, with umask folded in by the caller if desired; this
// package applies no umask itself (it has no process-wide umask concept
// of its own), matching the spec's carve-out that "no wire format is
// exposed" for namespace metadata.
const DefaultMode = 0777

// Node is a filesystem node of socket type (spec §3 "Rendezvous node").
// Owner is a weak, lookup-only back-pointer to the bound endpoint —
// typed as any so this package never has to import endpoint and create a
// cycle; callers type-assert it back to *endpoint.Endpoint.
type Node struct {
	Mode     uint32
	IsSocket bool
	owner    any
}

// Owner returns the node's bound endpoint, or nil if unbound (a node can
// outlive its endpoint's binding in principle, though this module always
// deletes the map entry together with clearing the owner — see Unbind).
func (n *Node) Owner() any {
	return n.owner
}

// Namespace is the in-process stand-in for the filesystem rendezvous
// directory: a single `path -> *Node` map guarded by its own lock,
// independent of registry_lock (spec §5 lists filesystem operations as a
// distinct suspension point from registry membership).
type Namespace struct {
	mu    sync.Mutex
	nodes map[string]*Node
}

// New constructs an empty namespace.
func New() *Namespace {
	return &Namespace{nodes: make(map[string]*Node)}
}

// Bind publishes owner at path (spec §4.3 "bind"):
//   - invalid_argument if path is empty (the "already bound" half of
//     this check belongs to the caller, which must not invoke Bind twice
//     for the same endpoint — conn.Manager.Bind enforces that before
//     calling here).
//   - address_in_use if a node already exists at path.
//
// On success returns the new Node, already carrying owner.
func (ns *Namespace) Bind(path string, owner any) (*Node, error) {
	if path == "" {
		return nil, uerr.InvalidArgument.Error()
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()

	if _, exists := ns.nodes[path]; exists {
		return nil, uerr.AddressInUse.Error()
	}

	n := &Node{Mode: DefaultMode, IsSocket: true, owner: owner}
	ns.nodes[path] = n
	return n, nil
}

// PlaceForeign registers a non-socket node at path, standing in for a
// regular file or directory that already occupies the name — the
// namespace normally only ever holds socket-typed nodes it created
// itself via Bind, so this method exists purely to make the "exists,
// wrong type" branch of Lookup reachable in tests the way a real
// filesystem would produce it by coincidence.
func (ns *Namespace) PlaceForeign(path string) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.nodes[path] = &Node{Mode: DefaultMode, IsSocket: false}
}

// Lookup resolves path (spec §4.3 "lookup"), mirroring the BSD
// uipc_bind/uipc_connect three-way branch recovered from
// sys/kern/uipc_usrreq.c: "no such name" and "name exists but unbound"
// both surface as connection_refused (the spec's own §4.3 text collapses
// these two original cases into one kind), "exists but not a socket" is
// not_socket. The "permission_denied" access check belongs to the
// caller, which knows the requesting credential; this package has no
// credential concept.
func (ns *Namespace) Lookup(path string) (*Node, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	n, exists := ns.nodes[path]
	if !exists {
		return nil, uerr.ConnectionRefused.Error()
	}
	if !n.IsSocket {
		return nil, uerr.NotSocket.Error()
	}
	if n.owner == nil {
		return nil, uerr.ConnectionRefused.Error()
	}
	return n, nil
}

// Unbind removes path's node from the namespace and clears its owner,
// the normal filesystem-unlink-equivalent release path spec §3 describes
// ("destroyed by normal filesystem unlink"). Safe to call more than once.
func (ns *Namespace) Unbind(path string) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if n, ok := ns.nodes[path]; ok {
		n.owner = nil
		delete(ns.nodes, path)
	}
}

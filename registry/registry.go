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

// Package registry is the process-wide endpoint registry (spec §4.1, C1):
// two membership lists partitioned by kind, a monotonic generation
// counter, and a snapshot facility for introspection that tolerates
// storage reuse (§8 invariant 7).
package registry

import "sync"

// Kind mirrors endpoint.Kind without importing it, to keep registry a leaf
// package in the dependency order SPEC_FULL.md's component table lays out.
type Kind int

const (
	Datagram Kind = iota
	Stream
)

// Member is the minimal surface registry needs from an endpoint: its own
// kind and generation, so Insert/Remove/Snapshot never have to know the
// rest of endpoint.Endpoint's shape.
type Member interface {
	Kind() Kind
	Generation() uint64
}

// Registry holds the two per-kind lists guarded by registry_lock (spec
// §5): the single mutex that also guards per-endpoint linkage fields
// (peer, refs, generation) elsewhere in the module. Registry exposes that
// mutex directly via Lock/Unlock/RLock/RUnlock rather than hiding it,
// because spec §4.4/§4.7 require callers (conn, rightsgc) to hold it
// across several registry operations plus their own endpoint-field
// mutations as one critical section — the non-reentrant methods below
// all assume the caller already holds it.
type Registry struct {
	mu         sync.RWMutex
	generation uint64
	lists      [2][]Member
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{}
}

// Lock acquires registry_lock for exclusive access.
func (r *Registry) Lock() { r.mu.Lock() }

// Unlock releases registry_lock.
func (r *Registry) Unlock() { r.mu.Unlock() }

// RLock acquires registry_lock for shared (read-only) access.
func (r *Registry) RLock() { r.mu.RLock() }

// RUnlock releases a shared acquisition of registry_lock.
func (r *Registry) RUnlock() { r.mu.RUnlock() }

// NextGeneration bumps and returns the global generation counter. Called
// on every endpoint create/destroy (spec §3 "Global counters"). Caller
// must hold registry_lock.
func (r *Registry) NextGeneration() uint64 {
	r.generation++
	return r.generation
}

// Generation reads the current counter. Caller must hold registry_lock
// (shared or exclusive).
func (r *Registry) Generation() uint64 {
	return r.generation
}

// Insert adds m to its kind's list. Caller must hold registry_lock.
func (r *Registry) Insert(m Member) {
	r.lists[m.Kind()] = append(r.lists[m.Kind()], m)
}

// Remove deletes m from its kind's list. No-op if not present (supports
// idempotent detach, spec §8 "Idempotence"). Caller must hold
// registry_lock.
func (r *Registry) Remove(m Member) {
	l := r.lists[m.Kind()]
	for i, e := range l {
		if e == m {
			l[i] = l[len(l)-1]
			r.lists[m.Kind()] = l[:len(l)-1]
			return
		}
	}
}

// Count returns the current membership count for kind. Caller must hold
// registry_lock (shared or exclusive).
func (r *Registry) Count(kind Kind) int {
	return len(r.lists[kind])
}

// Snapshot returns the registry generation at the moment of the call and
// a copy of kind's membership list. Callers must re-check each returned
// member's own Generation() against the returned generation before
// dereferencing further state on it (spec §4.1, §8 invariant 7): storage
// is never freed, only reused, so a stale member is detectable, never
// dangling. Snapshot takes registry_lock itself (shared) since
// introspection is the one caller that does not already hold it.
func (r *Registry) Snapshot(kind Kind) (generation uint64, members []Member) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Member, len(r.lists[kind]))
	copy(out, r.lists[kind])
	return r.generation, out
}

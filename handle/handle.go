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

// Package handle is the minimal stand-in for the host process's handle
// table (spec §1: "the handle table of the host process ... external
// collaborators, interfaces only"). It carries exactly the accounting the
// rights subsystem needs: ref_count, msg_count, and the GC's mark/deferred
// flags (spec §3 "In-flight rights", §4.7).
package handle

import (
	"io"
	"sync"
	"sync/atomic"
)

// RightsSource is implemented by anything that can itself hold RIGHTS in
// its own receive queue — in this module, a local-domain socket endpoint.
// The rights GC (§4.7 step 2) needs this to walk into a handle that is
// itself a socket and follow the handles referenced by its queued RIGHTS
// messages.
type RightsSource interface {
	// QueuedRights returns every handle currently referenced by a RIGHTS
	// control message sitting in this object's receive queue.
	QueuedRights() []*Entry

	// FlushRights forcibly empties the receive queue, discarding any data
	// and detaching (but not itself accounting for) every RIGHTS entry
	// QueuedRights would have reported — spec §4.7 step 4's "forcibly
	// flush its receive buffer." The caller (rightsgc) is responsible for
	// calling QueuedRights before FlushRights and then unreffing each
	// child, since this object has no access to the global handle table
	// or inflight_rights counter.
	FlushRights()
}

// Entry is one handle-table slot: an owned object plus the two counters
// spec §3 defines. Every Entry update happens under its own lock (spec §5
// "handle.lock"), never under the registry or handle-list locks.
type Entry struct {
	mu       sync.Mutex
	id       uint64
	object   io.Closer
	refCount int32
	msgCount int32
	marked   bool
	deferred bool
	source   RightsSource // non-nil iff object is itself a RightsSource
}

// ID is a stable identity for an Entry: the integer index Table.Lookup
// resolves and ancillary.Externalize hands back. Entries are still
// compared by pointer identity, never by ID.
func (e *Entry) ID() uint64 { return e.id }

// RefCount returns the current strong reference count.
func (e *Entry) RefCount() int32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refCount
}

// MsgCount returns the number of in-flight-message references.
func (e *Entry) MsgCount() int32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.msgCount
}

// Object returns the underlying handle object.
func (e *Entry) Object() io.Closer {
	return e.object
}

// Accessible reports spec §3's "externally accessible" predicate for this
// entry alone (transitive reachability is the GC's job, not a single
// entry's).
func (e *Entry) Accessible() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refCount > e.msgCount
}

// ref/unref/msgRef/msgUnref are the four primitive mutations spec §3 and
// §4.6/§4.7 perform on an Entry. They never close the object themselves —
// that is Table.remove's job, once ref_count reaches zero, so the close
// path is in exactly one place.
func (e *Entry) ref() {
	e.mu.Lock()
	e.refCount++
	e.mu.Unlock()
}

func (e *Entry) unref() (closed bool) {
	e.mu.Lock()
	e.refCount--
	z := e.refCount <= 0
	e.mu.Unlock()
	return z
}

func (e *Entry) msgRef() {
	e.mu.Lock()
	e.refCount++
	e.msgCount++
	e.mu.Unlock()
}

func (e *Entry) msgUnref() (closed bool) {
	e.mu.Lock()
	e.msgCount--
	e.refCount--
	z := e.refCount <= 0
	e.mu.Unlock()
	return z
}

var nextID uint64

// Table is the process-wide handle table (spec §5 "shared-resource
// policy"). Iteration order is unspecified; callers that need a stable
// pass (the GC) take listLock for the duration of their walk.
type Table struct {
	listLock sync.RWMutex
	entries  map[uint64]*Entry
}

// NewTable constructs an empty handle table.
func NewTable() *Table {
	return &Table{entries: make(map[uint64]*Entry)}
}

// Register allocates a fresh Entry for obj with ref_count=1, msg_count=0
// — the state of a handle that is only reachable from ordinary process
// references (spec §3).
func (t *Table) Register(obj io.Closer) *Entry {
	src, _ := obj.(RightsSource)
	e := &Entry{
		id:       atomic.AddUint64(&nextID, 1),
		object:   obj,
		refCount: 1,
		source:   src,
	}
	t.listLock.Lock()
	t.entries[e.id] = e
	t.listLock.Unlock()
	return e
}

// Ref takes an ordinary strong reference (dup(2)-style).
func (t *Table) Ref(e *Entry) {
	e.ref()
}

// Unref drops an ordinary strong reference, removing and closing the
// entry once ref_count reaches zero.
func (t *Table) Unref(e *Entry) {
	if e.unref() {
		t.remove(e)
	}
}

// MsgRef is called by ancillary.Internalize: the handle gains a reference
// held by an in-flight RIGHTS message (spec §4.6, ref_count and msg_count
// both increment).
func (t *Table) MsgRef(e *Entry) {
	e.msgRef()
}

// MsgUnref is called when a RIGHTS-carrying message is externalized or
// discarded (spec §4.6): msg_count and ref_count both decrement.
func (t *Table) MsgUnref(e *Entry) {
	if e.msgUnref() {
		t.remove(e)
	}
}

func (t *Table) remove(e *Entry) {
	t.listLock.Lock()
	delete(t.entries, e.id)
	t.listLock.Unlock()
	_ = e.object.Close()
}

// Walk visits every live entry under a shared listLock (spec §5
// "handle_list_lock"). The callback must not register/unregister entries.
func (t *Table) Walk(fn func(*Entry)) {
	t.listLock.RLock()
	defer t.listLock.RUnlock()
	for _, e := range t.entries {
		fn(e)
	}
}

// Len reports the number of live entries, for test assertions.
func (t *Table) Len() int {
	t.listLock.RLock()
	defer t.listLock.RUnlock()
	return len(t.entries)
}

// Lookup resolves an integer handle index to its Entry, the operation
// ancillary.Internalize performs for each element of a RIGHTS payload
// (spec §4.6: "input is an array of integer handle indices in the
// sender's handle table").
func (t *Table) Lookup(id uint64) (*Entry, bool) {
	t.listLock.RLock()
	defer t.listLock.RUnlock()
	e, ok := t.entries[id]
	return e, ok
}

// NotPassable is an optional interface a handle's underlying object can
// implement to refuse rights-passing (spec §4.6: "references a handle
// whose type permits passage", `unsupported` otherwise) — historically,
// some descriptor kinds (e.g. kqueues) could not cross a RIGHTS
// boundary. Most handle objects implement no such restriction.
type NotPassable interface {
	NotPassable() bool
}

func (e *Entry) setMarked(v bool) {
	e.mu.Lock()
	e.marked = v
	e.mu.Unlock()
}

func (e *Entry) isMarked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.marked
}

func (e *Entry) setDeferred(v bool) {
	e.mu.Lock()
	e.deferred = v
	e.mu.Unlock()
}

func (e *Entry) isDeferred() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deferred
}

// GCView exposes exactly the fields and mutators the rights GC needs,
// keeping the mark/deferred bits private to this package otherwise.
type GCView struct{ e *Entry }

// View returns e's GC-facing accessor.
func View(e *Entry) GCView { return GCView{e: e} }

func (v GCView) Entry() *Entry       { return v.e }
func (v GCView) RefCount() int32     { return v.e.RefCount() }
func (v GCView) MsgCount() int32     { return v.e.MsgCount() }
func (v GCView) Marked() bool        { return v.e.isMarked() }
func (v GCView) SetMarked(b bool)    { v.e.setMarked(b) }
func (v GCView) Deferred() bool      { return v.e.isDeferred() }
func (v GCView) SetDeferred(b bool)  { v.e.setDeferred(b) }
func (v GCView) Source() RightsSource { return v.e.source }

// TakeExtraRef implements spec §4.7 step 3's "take an extra reference."
func (v GCView) TakeExtraRef() { v.e.ref() }

// DropExtraRef implements spec §4.7 step 4's terminal drop, via the
// owning table so a zero ref_count is removed and closed exactly once.
func (t *Table) DropExtraRef(e *Entry) {
	t.Unref(e)
}

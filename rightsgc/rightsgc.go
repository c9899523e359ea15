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

// Package rightsgc is the cycle collector (spec §4.7, C7): mark-and-sweep
// over the global handle table that reclaims handles reachable only
// through cycles of in-flight RIGHTS messages. The phase order below is
// load-bearing — see "Why this shape" in spec §4.7 — and must not be
// shortcut, or it reproduces the historical double-close bug that
// motivated this design.
package rightsgc

import (
	"context"
	"sync/atomic"

	"github/sabouaram/uds/handle"
	"github/sabouaram/uds/logger"
	"github/sabouaram/uds/rights"

	"golang.org/x/sync/semaphore"
)

// maxConcurrentReclaims bounds step 4's fan-out (spec §4.7 step 4) so a
// large sweep set cannot explode the scheduler with one goroutine per
// handle, the same tradeoff the pack's semaphore-based bounding reaches
// for elsewhere (see DESIGN.md).
const maxConcurrentReclaims int64 = 32

// Collector runs the algorithm against one global handle table. It is
// not re-entrant: a Collect call observed already running returns
// immediately (spec §4.7 "Trigger").
type Collector struct {
	table   *handle.Table
	counter *rights.Counter
	log     logger.Logger
	running atomic.Bool
}

// New builds a Collector over table, decrementing counter as reclaimed
// rights are released.
func New(table *handle.Table, counter *rights.Counter, log logger.Logger) *Collector {
	if log == nil {
		log = logger.Nil
	}
	return &Collector{table: table, counter: counter, log: log}
}

// Collect runs one GC pass. Callers (conn.Detach) must already hold
// registry_lock for the duration (spec §4.7 "Concurrency"); Collect
// itself takes handle_list_lock shared for the mark and sweep walks via
// handle.Table.Walk.
func (c *Collector) Collect(ctx context.Context) {
	if !c.running.CompareAndSwap(false, true) {
		return
	}
	defer c.running.Store(false)

	c.clearMarks()
	c.markPhase()
	sweepList := c.sweepPhase()
	if len(sweepList) > 0 {
		c.log.Debug("rightsgc: sweep set non-empty, reclaiming")
	}
	c.reclaim(ctx, sweepList)
}

// clearMarks implements step 1.
func (c *Collector) clearMarks() {
	c.table.Walk(func(e *handle.Entry) {
		v := handle.View(e)
		v.SetMarked(false)
		v.SetDeferred(false)
	})
}

// markPhase implements step 2's fixed point. Each outer iteration walks
// the whole table once to find handles whose mark state can still
// change (either because they carry the deferred flag, or because
// they're a freshly-discovered externally-reachable root), and defers
// the propagation step (descending into any RightsSource's queued
// rights) to after the walk, so mutation never races with handle.Table's
// own iteration lock.
func (c *Collector) markPhase() {
	for {
		var toPropagate []*handle.Entry

		c.table.Walk(func(e *handle.Entry) {
			v := handle.View(e)

			if v.RefCount() == 0 {
				return // already dead
			}
			if v.Deferred() {
				v.SetDeferred(false)
				toPropagate = append(toPropagate, e)
				return
			}
			if v.Marked() {
				return
			}
			if v.RefCount() == v.MsgCount() {
				return // not externally reachable directly; cannot be a root
			}
			v.SetMarked(true)
			toPropagate = append(toPropagate, e)
		})

		if len(toPropagate) == 0 {
			return
		}
		for _, e := range toPropagate {
			c.propagate(e)
		}
	}
}

// propagate descends into a RightsSource handle's queued rights,
// marking and deferring any not-yet-marked child for the next iteration.
func (c *Collector) propagate(e *handle.Entry) {
	src := handle.View(e).Source()
	if src == nil {
		return
	}
	for _, child := range src.QueuedRights() {
		cv := handle.View(child)
		if !cv.Marked() {
			cv.SetMarked(true)
			cv.SetDeferred(true)
		}
	}
}

// sweepPhase implements step 3: every handle with ref_count == msg_count
// and not marked is reachable only through in-flight cycles. An extra
// reference is taken immediately, before any reclaim runs, so the
// recursive releases triggered by flushing one socket's buffer cannot
// prematurely drop another handle still queued for reclaim (spec §4.7
// "Why this shape").
func (c *Collector) sweepPhase() []*handle.Entry {
	var list []*handle.Entry
	c.table.Walk(func(e *handle.Entry) {
		v := handle.View(e)
		if v.RefCount() == v.MsgCount() && !v.Marked() {
			v.TakeExtraRef()
			list = append(list, e)
		}
	})
	return list
}

// reclaim implements step 4: flush every socket-handle in the sweep set
// (releasing the rights it holds), then drop the extra reference taken
// in sweepPhase. Fan-out across the sweep set is bounded by a weighted
// semaphore rather than left as an unbounded goroutine burst.
func (c *Collector) reclaim(ctx context.Context, list []*handle.Entry) {
	sem := semaphore.NewWeighted(maxConcurrentReclaims)
	done := make(chan struct{}, len(list))

	for _, e := range list {
		e := e
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled mid-reclaim: run the remainder inline
			// rather than leaving handles in the "extra ref taken, never
			// dropped" state, which would leak them permanently.
			c.reclaimOne(e)
			done <- struct{}{}
			continue
		}
		go func() {
			defer sem.Release(1)
			c.reclaimOne(e)
			done <- struct{}{}
		}()
	}
	for range list {
		<-done
	}
	// Terminal drops run only once the whole sweep set has been flushed.
	for _, e := range list {
		c.table.DropExtraRef(e)
	}
}

func (c *Collector) reclaimOne(e *handle.Entry) {
	v := handle.View(e)
	if src := v.Source(); src != nil {
		children := src.QueuedRights()
		src.FlushRights()
		for _, child := range children {
			c.table.MsgUnref(child)
			c.counter.Add(-1)
		}
	}
}

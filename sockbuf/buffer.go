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

package sockbuf

import (
	"context"
	"sync"

	uerr "github/sabouaram/uds/errors"
)

// Buffer is one direction of one endpoint's data path: a FIFO of Records
// with byte/message occupancy accounting (spec §3 "snd_credit_bytes",
// "snd_credit_msgs") and a blocking wait for readers/writers, guarded by
// its own lock (spec §5 "socket.rcv_lock / socket.snd_lock").
type Buffer struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	queue    []Record
	bytes    int
	maxBytes int
	maxMsgs  int

	shut   bool // peer side announced "cannot receive more" (spec §4.4 shutdown)
	closed bool
}

// NewBuffer builds a Buffer with the given byte and message-count limits.
// maxMsgs is only enforced for datagram buffers; stream buffers pass 0
// (unlimited message count — a stream has no per-record framing a reader
// observes).
func NewBuffer(maxBytes, maxMsgs int) *Buffer {
	b := &Buffer{maxBytes: maxBytes, maxMsgs: maxMsgs}
	b.notEmpty = sync.NewCond(&b.mu)
	b.notFull = sync.NewCond(&b.mu)
	return b
}

// Occupancy reports current bytes queued and record count — this is
// exactly "peer.rcv_buffer.bytes"/".msgs" in spec §4.5's accounting.
func (b *Buffer) Occupancy() (bytes, msgs int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bytes, len(b.queue)
}

// AppendBlocking appends rec, blocking while the buffer is full (stream
// semantics: spec §1 lists "buffer-blocking appends" among the
// subsystem's suspension points). It wakes on ctx cancellation, a
// capacity freed by a drain, or the buffer being shut/closed.
func (b *Buffer) AppendBlocking(ctx context.Context, rec Record) error {
	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		close(done)
		b.mu.Lock()
		b.notFull.Broadcast()
		b.mu.Unlock()
	})
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()

	for b.maxBytes > 0 && b.bytes+len(rec.Data) > b.maxBytes && !b.shut && !b.closed {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		b.notFull.Wait()
	}

	if b.closed {
		return uerr.BrokenPipe.Error()
	}
	if b.shut {
		return uerr.BrokenPipe.Error()
	}

	b.queue = append(b.queue, rec)
	b.bytes += len(rec.Data)
	b.notEmpty.Broadcast()
	return nil
}

// AppendNonBlocking appends rec if it fits, or fails immediately with
// NoBufferSpace (spec §4.5 datagram send: "On buffer-full:
// no_buffer_space").
func (b *Buffer) AppendNonBlocking(rec Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || b.shut {
		return uerr.BrokenPipe.Error()
	}
	if b.maxBytes > 0 && b.bytes+len(rec.Data) > b.maxBytes {
		return uerr.NoBufferSpace.Error()
	}
	if b.maxMsgs > 0 && len(b.queue) >= b.maxMsgs {
		return uerr.NoBufferSpace.Error()
	}

	b.queue = append(b.queue, rec)
	b.bytes += len(rec.Data)
	b.notEmpty.Broadcast()
	return nil
}

// Drain removes up to max bytes of stream data, returning the bytes read
// and every ControlMessage attached to a record any of whose bytes were
// consumed (spec §5: "RIGHTS ... delivered as a single atomic unit
// attached to the byte stream position where they were sent"). It never
// blocks; callers that want blocking reads use Wait first.
func (b *Buffer) Drain(max int) (data []byte, ctl []ControlMessage, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for max > 0 && len(b.queue) > 0 {
		rec := &b.queue[0]
		take := len(rec.Data)
		if take > max {
			take = max
		}

		data = append(data, rec.Data[:take]...)
		if len(rec.Control) > 0 {
			ctl = append(ctl, rec.Control...)
			rec.Control = nil // deliver control exactly once
		}

		rec.Data = rec.Data[take:]
		b.bytes -= take
		max -= take

		if len(rec.Data) == 0 {
			b.queue = b.queue[1:]
		}
	}

	b.notFull.Broadcast()
	if len(data) == 0 && len(ctl) == 0 && b.shut && len(b.queue) == 0 {
		return nil, nil, uerr.NotConnected.Error()
	}
	return data, ctl, nil
}

// ReadMessage pops one whole datagram record, or ok=false if none queued.
func (b *Buffer) ReadMessage() (rec Record, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) == 0 {
		return Record{}, false
	}
	rec = b.queue[0]
	b.queue = b.queue[1:]
	b.bytes -= len(rec.Data)
	b.notFull.Broadcast()
	return rec, true
}

// Wait blocks until a record is queued, ctx is cancelled, or the buffer
// is shut/closed with nothing left to read.
func (b *Buffer) Wait(ctx context.Context) error {
	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		close(done)
		b.mu.Lock()
		b.notEmpty.Broadcast()
		b.mu.Unlock()
	})
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.queue) == 0 && !b.shut && !b.closed {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		b.notEmpty.Wait()
	}
	return nil
}

// Shutdown marks the buffer as "peer cannot receive more" (spec §4.4) and
// wakes every waiter.
func (b *Buffer) Shutdown() {
	b.mu.Lock()
	b.shut = true
	b.notEmpty.Broadcast()
	b.notFull.Broadcast()
	b.mu.Unlock()
}

// IsShut reports the shutdown flag.
func (b *Buffer) IsShut() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.shut
}

// Peek returns a snapshot of queued records without consuming them, used
// by the rights GC's mark phase (spec §4.7 step 2) to discover handles
// referenced from a socket's receive queue without disturbing it.
func (b *Buffer) Peek() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Record, len(b.queue))
	copy(out, b.queue)
	return out
}

// Clear empties the buffer and returns everything that was queued, for a
// forced flush (spec §4.7 step 4, and detach's own receive-buffer flush).
func (b *Buffer) Clear() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.queue
	b.queue = nil
	b.bytes = 0
	b.closed = true
	b.notFull.Broadcast()
	b.notEmpty.Broadcast()
	return out
}

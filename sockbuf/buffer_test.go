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

package sockbuf_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github/sabouaram/uds/sockbuf"
)

var _ = Describe("Buffer", func() {
	It("appends and drains bytes in order", func() {
		b := sockbuf.NewBuffer(1024, 0)
		Expect(b.AppendNonBlocking(sockbuf.Record{Data: []byte("hello ")})).To(Succeed())
		Expect(b.AppendNonBlocking(sockbuf.Record{Data: []byte("world")})).To(Succeed())

		data, _, err := b.Drain(1024)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("hello world"))
	})

	It("reports no_buffer_space on datagram overflow", func() {
		b := sockbuf.NewBuffer(4, 0)
		err := b.AppendNonBlocking(sockbuf.Record{Data: []byte("toolong")})
		Expect(err).To(HaveOccurred())
	})

	It("blocks AppendBlocking until space is drained", func() {
		b := sockbuf.NewBuffer(4, 0)
		Expect(b.AppendNonBlocking(sockbuf.Record{Data: []byte("abcd")})).To(Succeed())

		done := make(chan error, 1)
		go func() {
			done <- b.AppendBlocking(context.Background(), sockbuf.Record{Data: []byte("ef")})
		}()

		Consistently(done, 50*time.Millisecond).ShouldNot(Receive())

		_, _, err := b.Drain(4)
		Expect(err).NotTo(HaveOccurred())

		Eventually(done, time.Second).Should(Receive(BeNil()))
	})

	It("cancels AppendBlocking on context cancellation", func() {
		b := sockbuf.NewBuffer(2, 0)
		Expect(b.AppendNonBlocking(sockbuf.Record{Data: []byte("xy")})).To(Succeed())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- b.AppendBlocking(ctx, sockbuf.Record{Data: []byte("z")})
		}()
		cancel()

		Eventually(done, time.Second).Should(Receive(HaveOccurred()))
	})

	It("delivers control attached to the byte position it was sent at", func() {
		b := sockbuf.NewBuffer(1024, 0)
		ctl := []sockbuf.ControlMessage{{Tag: sockbuf.TagTimestamp}}
		Expect(b.AppendNonBlocking(sockbuf.Record{Data: []byte("ab"), Control: ctl})).To(Succeed())
		Expect(b.AppendNonBlocking(sockbuf.Record{Data: []byte("cd")})).To(Succeed())

		data1, ctl1, _ := b.Drain(1)
		Expect(string(data1)).To(Equal("a"))
		Expect(ctl1).To(HaveLen(1))

		data2, ctl2, _ := b.Drain(3)
		Expect(string(data2)).To(Equal("bcd"))
		Expect(ctl2).To(BeEmpty())
	})

	It("marks shut and refuses further appends", func() {
		b := sockbuf.NewBuffer(1024, 0)
		b.Shutdown()
		Expect(b.IsShut()).To(BeTrue())
		err := b.AppendNonBlocking(sockbuf.Record{Data: []byte("x")})
		Expect(err).To(HaveOccurred())
	})

	It("Clear flushes and returns every queued record", func() {
		b := sockbuf.NewBuffer(1024, 0)
		Expect(b.AppendNonBlocking(sockbuf.Record{Data: []byte("a")})).To(Succeed())
		Expect(b.AppendNonBlocking(sockbuf.Record{Data: []byte("b")})).To(Succeed())

		flushed := b.Clear()
		Expect(flushed).To(HaveLen(2))
		bytes, msgs := b.Occupancy()
		Expect(bytes).To(Equal(0))
		Expect(msgs).To(Equal(0))
	})

	It("Peek does not consume records", func() {
		b := sockbuf.NewBuffer(1024, 0)
		Expect(b.AppendNonBlocking(sockbuf.Record{Data: []byte("a")})).To(Succeed())
		snap := b.Peek()
		Expect(snap).To(HaveLen(1))
		bytes, _ := b.Occupancy()
		Expect(bytes).To(Equal(1))
	})
})

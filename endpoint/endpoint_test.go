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

package endpoint_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github/sabouaram/uds/addr"
	"github/sabouaram/uds/cred"
	"github/sabouaram/uds/endpoint"
	"github/sabouaram/uds/sockbuf"
	"github/sabouaram/uds/tunables"
)

var _ = Describe("Endpoint", func() {
	tun := tunables.Default()

	It("starts Unbound with no bound name", func() {
		e := endpoint.New(endpoint.Stream, tun)
		Expect(e.State()).To(Equal(endpoint.Unbound))
		Expect(e.BoundName().IsSet()).To(BeFalse())
	})

	It("sizes stream buffers from StreamSendSpace/StreamRecvSpace", func() {
		e := endpoint.New(endpoint.Stream, tun)
		Expect(e.Buf.Send.AppendNonBlocking(sockbuf.Record{Data: make([]byte, tun.StreamSendSpace)})).To(Succeed())
		Expect(e.Buf.Send.AppendNonBlocking(sockbuf.Record{Data: []byte("x")})).To(HaveOccurred())
	})

	It("sizes datagram buffers from DatagramMax/DatagramRecvSpace", func() {
		e := endpoint.New(endpoint.Datagram, tun)
		Expect(e.Buf.Recv.AppendNonBlocking(sockbuf.Record{Data: make([]byte, tun.DatagramRecvSpace)})).To(Succeed())
		Expect(e.Buf.Recv.AppendNonBlocking(sockbuf.Record{Data: []byte("x")})).To(HaveOccurred())
	})

	It("round-trips bound name and node together", func() {
		e := endpoint.New(endpoint.Stream, tun)
		Expect(e.Node()).To(BeNil())
		e.SetBinding(addr.Address{Name: "/tmp/s.sock"}, nil)
		Expect(e.BoundName().IsSet()).To(BeTrue())
		e.ClearBinding()
		Expect(e.BoundName().IsSet()).To(BeFalse())
	})

	It("caches peer credential and reports whether one has ever been set", func() {
		e := endpoint.New(endpoint.Stream, tun)
		_, have := e.PeerCred()
		Expect(have).To(BeFalse())
		e.SetPeerCred(cred.Ucred{Pid: 7, Uid: 1000, Gid: 1000})
		c, have := e.PeerCred()
		Expect(have).To(BeTrue())
		Expect(c.Pid).To(Equal(int32(7)))
	})

	It("lazily assigns a stable fake inode", func() {
		e := endpoint.New(endpoint.Stream, tun)
		i1 := e.FakeInode()
		i2 := e.FakeInode()
		Expect(i1).To(Equal(i2))
		Expect(i1).NotTo(BeZero())
	})

	It("clears the async error on read", func() {
		e := endpoint.New(endpoint.Stream, tun)
		Expect(e.AsyncErr()).To(BeNil())
		e.SetAsyncErr(errBroken{})
		Expect(e.AsyncErr()).To(HaveOccurred())
		Expect(e.AsyncErr()).To(BeNil())
	})

	It("queues and dequeues pending children in FIFO order for Accept", func() {
		e := endpoint.New(endpoint.Stream, tun)
		c1 := endpoint.New(endpoint.Stream, tun)
		c2 := endpoint.New(endpoint.Stream, tun)
		e.PushPending(c1)
		e.PushPending(c2)

		got, ok := e.PopPending()
		Expect(ok).To(BeTrue())
		Expect(got).To(BeIdenticalTo(c1))

		got, ok = e.PopPending()
		Expect(ok).To(BeTrue())
		Expect(got).To(BeIdenticalTo(c2))

		_, ok = e.PopPending()
		Expect(ok).To(BeFalse())
	})

	It("reports the RIGHTS it currently holds queued and can be force-flushed", func() {
		e := endpoint.New(endpoint.Stream, tun)
		Expect(e.QueuedRights()).To(BeEmpty())

		rec := sockbuf.Record{
			Data:    []byte("x"),
			Control: []sockbuf.ControlMessage{{Tag: sockbuf.TagRights}},
		}
		Expect(e.Buf.Recv.AppendNonBlocking(rec)).To(Succeed())
		// QueuedRights with no actual *handle.Entry attached is still
		// reachable without panicking; FlushRights empties the queue.
		_ = e.QueuedRights()
		e.FlushRights()
		bytes, _ := e.Buf.Recv.Occupancy()
		Expect(bytes).To(Equal(0))
	})

	It("Close flushes both buffers", func() {
		e := endpoint.New(endpoint.Stream, tun)
		Expect(e.Buf.Send.AppendNonBlocking(sockbuf.Record{Data: []byte("a")})).To(Succeed())
		Expect(e.Buf.Recv.AppendNonBlocking(sockbuf.Record{Data: []byte("b")})).To(Succeed())
		Expect(e.Close()).To(Succeed())
		sb, _ := e.Buf.Send.Occupancy()
		rb, _ := e.Buf.Recv.Occupancy()
		Expect(sb).To(Equal(0))
		Expect(rb).To(Equal(0))
	})
})

type errBroken struct{}

func (errBroken) Error() string { return "broken" }

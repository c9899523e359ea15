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

package uds_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github/sabouaram/uds/cred"
	"github/sabouaram/uds/endpoint"
	uerr "github/sabouaram/uds/errors"
	"github/sabouaram/uds/handle"
	"github/sabouaram/uds/sockbuf"
	"github/sabouaram/uds/uds"
)

type fakeHandle struct{ closed bool }

func (f *fakeHandle) Close() error { f.closed = true; return nil }

var _ = Describe("Subsystem", func() {
	// S1: stream echo.
	It("carries a byte stream end to end through listen/connect/accept/send/rcvd", func() {
		sub := uds.NewSubsystem(uds.DefaultTunables(), nil)
		srv := sub.Attach(endpoint.Stream)
		Expect(srv.Bind("/tmp/echo.sock")).To(Succeed())
		srv.Listen(cred.Ucred{Pid: 1})

		cli := sub.Attach(endpoint.Stream)
		Expect(cli.Connect("/tmp/echo.sock", cred.Ucred{Pid: 2})).To(Succeed())

		conn, peerAddr, err := srv.Accept()
		Expect(err).NotTo(HaveOccurred())
		Expect(peerAddr.IsSet()).To(BeFalse()) // client never bound its own name

		Expect(cli.Send(context.Background(), []byte("ping"), nil, "")).To(Succeed())

		data, _, derr := conn.Endpoint().Buf.Recv.Drain(4)
		Expect(derr).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("ping"))
		conn.Rcvd(len(data))
	})

	// S2: datagram addressed send.
	It("delivers an addressed datagram carrying the sender's bound address", func() {
		sub := uds.NewSubsystem(uds.DefaultTunables(), nil)
		srv := sub.Attach(endpoint.Datagram)
		Expect(srv.Bind("/tmp/dgram-srv.sock")).To(Succeed())
		cli := sub.Attach(endpoint.Datagram)
		Expect(cli.Bind("/tmp/dgram-cli.sock")).To(Succeed())

		Expect(cli.Send(context.Background(), []byte("hi"), nil, "/tmp/dgram-srv.sock")).To(Succeed())

		rec, ok := srv.Endpoint().Buf.Recv.ReadMessage()
		Expect(ok).To(BeTrue())
		Expect(string(rec.Data)).To(Equal("hi"))
		Expect(rec.Source.Name).To(Equal("/tmp/dgram-cli.sock"))
	})

	// S3: rights passing round trip.
	It("passes a handle as RIGHTS from sender to receiver", func() {
		sub := uds.NewSubsystem(uds.DefaultTunables(), nil)
		srv := sub.Attach(endpoint.Stream)
		Expect(srv.Bind("/tmp/rights.sock")).To(Succeed())
		srv.Listen(cred.Ucred{})
		cli := sub.Attach(endpoint.Stream)
		Expect(cli.Connect("/tmp/rights.sock", cred.Ucred{})).To(Succeed())
		conn, _, err := srv.Accept()
		Expect(err).NotTo(HaveOccurred())

		obj := &fakeHandle{}
		e := sub.Handles.Register(obj)

		control, err := sub.Internalize([]sockbuf.ControlMessage{
			{Tag: sockbuf.TagRights, RawRights: []int{int(e.ID())}},
		}, cred.Ucred{})
		Expect(err).NotTo(HaveOccurred())
		Expect(sub.Rights.Load()).To(Equal(int64(1)))

		Expect(cli.Send(context.Background(), []byte("x"), control, "")).To(Succeed())

		_, ctl, derr := conn.Endpoint().Buf.Recv.Drain(1)
		Expect(derr).NotTo(HaveOccurred())
		Expect(ctl).To(HaveLen(1))

		out, err := sub.Externalize(ctl, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(out[0].RawRights).To(Equal([]int{int(e.ID())}))
		Expect(sub.Rights.Load()).To(Equal(int64(0)))
	})

	// S4: rights cycle collected by the GC. Each endpoint's own receive
	// queue is itself the RIGHTS payload referencing the other endpoint's
	// handle, the genuine "socket holds a handle to a socket" cycle spec
	// §4.7's "why this shape" scenario describes.
	It("reclaims two sockets holding RIGHTS to each other once both are detached", func() {
		sub := uds.NewSubsystem(uds.DefaultTunables(), nil)
		a := sub.Attach(endpoint.Stream)
		b := sub.Attach(endpoint.Stream)

		ea := sub.Handles.Register(a.Endpoint())
		eb := sub.Handles.Register(b.Endpoint())

		Expect(a.Endpoint().Buf.Recv.AppendNonBlocking(sockbuf.Record{
			Control: []sockbuf.ControlMessage{{Tag: sockbuf.TagRights, Rights: []*handle.Entry{eb}}},
		})).To(Succeed())
		Expect(b.Endpoint().Buf.Recv.AppendNonBlocking(sockbuf.Record{
			Control: []sockbuf.ControlMessage{{Tag: sockbuf.TagRights, Rights: []*handle.Entry{ea}}},
		})).To(Succeed())

		sub.Handles.MsgRef(eb)
		sub.Handles.MsgRef(ea)
		sub.Rights.Add(2)
		sub.Handles.Unref(ea)
		sub.Handles.Unref(eb)

		Expect(sub.Rights.Load()).To(Equal(int64(2)))

		sub.GC.Collect(context.Background())

		Expect(sub.Rights.Load()).To(Equal(int64(0)))
	})

	// S6: shutdown during send.
	It("fails a send with broken_pipe after the sender's own side is shut down", func() {
		sub := uds.NewSubsystem(uds.DefaultTunables(), nil)
		srv := sub.Attach(endpoint.Stream)
		Expect(srv.Bind("/tmp/shutdown.sock")).To(Succeed())
		srv.Listen(cred.Ucred{})
		cli := sub.Attach(endpoint.Stream)
		Expect(cli.Connect("/tmp/shutdown.sock", cred.Ucred{})).To(Succeed())

		cli.Endpoint().Buf.Send.Shutdown()
		err := cli.Send(context.Background(), []byte("x"), nil, "")
		Expect(err).To(HaveOccurred())
		Expect(err.(uerr.Error).Code()).To(Equal(uerr.BrokenPipe))
	})

	It("GetPeerCred is invalid_argument for datagram and not_connected for an unconnected stream socket", func() {
		sub := uds.NewSubsystem(uds.DefaultTunables(), nil)
		dgram := sub.Attach(endpoint.Datagram)
		_, err := dgram.GetPeerCred()
		Expect(err).To(HaveOccurred())
		Expect(err.(uerr.Error).Code()).To(Equal(uerr.InvalidArgument))

		stream := sub.Attach(endpoint.Stream)
		_, err = stream.GetPeerCred()
		Expect(err).To(HaveOccurred())
		Expect(err.(uerr.Error).Code()).To(Equal(uerr.NotConnected))
	})

	It("Stat reports a stream socket's apparent blocksize including the peer's occupancy", func() {
		sub := uds.NewSubsystem(uds.DefaultTunables(), nil)
		srv := sub.Attach(endpoint.Stream)
		Expect(srv.Bind("/tmp/stat.sock")).To(Succeed())
		srv.Listen(cred.Ucred{})
		cli := sub.Attach(endpoint.Stream)
		Expect(cli.Connect("/tmp/stat.sock", cred.Ucred{})).To(Succeed())
		conn, _, err := srv.Accept()
		Expect(err).NotTo(HaveOccurred())
		_ = conn

		Expect(cli.Send(context.Background(), []byte("abc"), nil, "")).To(Succeed())
		_, blockSize := cli.Stat()
		Expect(blockSize).To(BeNumerically(">=", 3))
	})

	It("DisposeControl releases RIGHTS entries that were never delivered", func() {
		sub := uds.NewSubsystem(uds.DefaultTunables(), nil)
		obj := &fakeHandle{}
		e := sub.Handles.Register(obj)
		control, err := sub.Internalize([]sockbuf.ControlMessage{
			{Tag: sockbuf.TagRights, RawRights: []int{int(e.ID())}},
		}, cred.Ucred{})
		Expect(err).NotTo(HaveOccurred())
		Expect(sub.Rights.Load()).To(Equal(int64(1)))

		dummy := sub.Attach(endpoint.Stream)
		dummy.DisposeControl(control)
		Expect(sub.Rights.Load()).To(Equal(int64(0)))
	})
})

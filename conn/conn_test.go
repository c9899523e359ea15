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

package conn_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github/sabouaram/uds/conn"
	"github/sabouaram/uds/cred"
	"github/sabouaram/uds/endpoint"
	uerr "github/sabouaram/uds/errors"
	"github/sabouaram/uds/handle"
	"github/sabouaram/uds/registry"
	"github/sabouaram/uds/rendezvous"
	"github/sabouaram/uds/rights"
	"github/sabouaram/uds/rightsgc"
	"github/sabouaram/uds/tunables"
)

func newManager() *conn.Manager {
	reg := registry.New()
	ns := rendezvous.New()
	gc := rightsgc.New(handle.NewTable(), &rights.Counter{}, nil)
	return conn.New(reg, ns, gc, tunables.Default(), nil)
}

var _ = Describe("Manager", func() {
	It("attaches an endpoint as Unbound with a fresh generation", func() {
		m := newManager()
		e := m.Attach(endpoint.Stream)
		Expect(e.State()).To(Equal(endpoint.Unbound))
		Expect(e.Generation()).NotTo(BeZero())
	})

	It("binds a name exactly once, rejecting a second bind with invalid_argument", func() {
		m := newManager()
		e := m.Attach(endpoint.Stream)
		Expect(m.Bind(e, "/tmp/s.sock")).To(Succeed())
		Expect(e.State()).To(Equal(endpoint.Bound))

		err := m.Bind(e, "/tmp/other.sock")
		Expect(err).To(HaveOccurred())
		Expect(err.(uerr.Error).Code()).To(Equal(uerr.InvalidArgument))
	})

	It("drives a stream connect through listen/accept, wiring cross peer_cred as spec §9 open question 1 describes", func() {
		m := newManager()
		listener := m.Attach(endpoint.Stream)
		Expect(m.Bind(listener, "/tmp/listener.sock")).To(Succeed())
		listenerCred := cred.Ucred{Pid: 1, Uid: 10, Gid: 10}
		m.Listen(listener, listenerCred)

		client := m.Attach(endpoint.Stream)
		callerCred := cred.Ucred{Pid: 2, Uid: 20, Gid: 20}
		child, err := m.Connect(client, "/tmp/listener.sock", callerCred)
		Expect(err).NotTo(HaveOccurred())
		Expect(client.State()).To(Equal(endpoint.Connected))
		Expect(child.State()).To(Equal(endpoint.Connected))

		// Open question 1: the client's peer_cred is the *listener's*
		// cached credential, and the new child's peer_cred is the caller's.
		clientPeerCred, ok := client.PeerCred()
		Expect(ok).To(BeTrue())
		Expect(clientPeerCred.Pid).To(Equal(listenerCred.Pid))

		childPeerCred, ok := child.PeerCred()
		Expect(ok).To(BeTrue())
		Expect(childPeerCred.Pid).To(Equal(callerCred.Pid))

		popped, ok := listener.PopPending()
		Expect(ok).To(BeTrue())
		Expect(popped).To(BeIdenticalTo(child))
	})

	It("refuses to connect to a non-listening stream endpoint with connection_refused", func() {
		m := newManager()
		passive := m.Attach(endpoint.Stream)
		Expect(m.Bind(passive, "/tmp/not-listening.sock")).To(Succeed())

		client := m.Attach(endpoint.Stream)
		_, err := m.Connect(client, "/tmp/not-listening.sock", cred.Ucred{})
		Expect(err).To(HaveOccurred())
		Expect(err.(uerr.Error).Code()).To(Equal(uerr.ConnectionRefused))
	})

	It("refuses a kind mismatch with protocol_mismatch", func() {
		m := newManager()
		dgram := m.Attach(endpoint.Datagram)
		Expect(m.Bind(dgram, "/tmp/dgram.sock")).To(Succeed())

		client := m.Attach(endpoint.Stream)
		_, err := m.Connect(client, "/tmp/dgram.sock", cred.Ucred{})
		Expect(err).To(HaveOccurred())
		Expect(err.(uerr.Error).Code()).To(Equal(uerr.ProtocolMismatch))
	})

	It("disconnects a stream pair symmetrically", func() {
		m := newManager()
		a := m.Attach(endpoint.Stream)
		b := m.Attach(endpoint.Stream)
		m.ConnectPair(a, b)
		Expect(a.State()).To(Equal(endpoint.Connected))

		m.Disconnect(a)
		Expect(a.State()).To(Equal(endpoint.Disconnecting))
		Expect(b.State()).To(Equal(endpoint.Disconnecting))
	})

	It("shutdown signals the peer's receive buffer shut, stream-only", func() {
		m := newManager()
		a := m.Attach(endpoint.Stream)
		b := m.Attach(endpoint.Stream)
		m.ConnectPair(a, b)

		m.Shutdown(a)
		Expect(b.Buf.Recv.IsShut()).To(BeTrue())
	})

	It("drop records the async error then disconnects", func() {
		m := newManager()
		a := m.Attach(endpoint.Stream)
		b := m.Attach(endpoint.Stream)
		m.ConnectPair(a, b)

		m.Drop(a, uerr.ConnectionReset.Error())
		Expect(a.AsyncErr()).To(HaveOccurred())
		Expect(a.State()).To(Equal(endpoint.Disconnecting))
	})

	It("detach closes the endpoint and cascades connection_reset to datagram refs", func() {
		m := newManager()
		srv := m.Attach(endpoint.Datagram)
		Expect(m.Bind(srv, "/tmp/dgram-srv.sock")).To(Succeed())

		cli := m.Attach(endpoint.Datagram)
		m.ConnectPair(cli, srv) // datagram: cli -> srv, srv.refs contains cli

		m.Detach(context.Background(), srv, &rights.Counter{})
		Expect(srv.State()).To(Equal(endpoint.Closed))
		Expect(cli.State()).To(Equal(endpoint.Disconnecting))
		Expect(cli.AsyncErr()).To(HaveOccurred())
	})
})

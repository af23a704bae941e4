package chat

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/danmu-chat-go/internal/network/acceptor"
)

type udpPeer struct {
	conn net.PacketConn
}

func newUDPPeer(t *testing.T) *udpPeer {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &udpPeer{conn: conn}
}

func (p *udpPeer) addr() net.Addr { return p.conn.LocalAddr() }

func (p *udpPeer) read(t *testing.T) string {
	t.Helper()
	buf := make([]byte, 4096)
	require.NoError(t, p.conn.SetReadDeadline(time.Now().Add(time.Second)))
	n, _, err := p.conn.ReadFrom(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func (p *udpPeer) assertSilent(t *testing.T) {
	t.Helper()
	buf := make([]byte, 4096)
	require.NoError(t, p.conn.SetReadDeadline(time.Now().Add(30*time.Millisecond)))
	_, _, err := p.conn.ReadFrom(buf)
	assert.Error(t, err)
}

// datagramFixture 直接调用 OnPacket，server 为服务器侧用于回复的套接字。
type datagramFixture struct {
	h      *DatagramHandler
	r      *Registry
	server net.PacketConn
}

func newDatagramFixture(t *testing.T) *datagramFixture {
	r := NewRegistry()
	return &datagramFixture{h: NewDatagramHandler(r), r: r, server: newUDPPeer(t).conn}
}

func (f *datagramFixture) send(p *udpPeer, raw string) {
	f.h.OnPacket(f.server, p.addr(), []byte(raw))
}

func TestDatagramLoginAndList(t *testing.T) {
	f := newDatagramFixture(t)
	alice := newUDPPeer(t)

	f.send(alice, "alice1234:list")
	assert.Equal(t, NotAuthenticatedText, alice.read(t))

	f.send(alice, "login:abc")
	assert.Equal(t, InvalidUsernameText, alice.read(t))

	f.send(alice, "login:alice1234\n")
	assert.Equal(t, LoginSuccessText, alice.read(t))
	assert.True(t, f.r.IsRegistered("alice1234"))

	f.send(alice, "login:alice1234")
	assert.Equal(t, "Username alice1234 is taken. Please choose a different one.", alice.read(t))

	f.send(alice, "alice1234:list")
	assert.Equal(t, "alice1234", alice.read(t))
}

func TestDatagramRouting(t *testing.T) {
	f := newDatagramFixture(t)
	alice, bob := newUDPPeer(t), newUDPPeer(t)

	f.send(alice, "login:alice1234")
	require.Equal(t, LoginSuccessText, alice.read(t))
	f.send(bob, "login:bobbob99")
	require.Equal(t, LoginSuccessText, bob.read(t))

	f.send(alice, "alice1234:message:bobbob99:hi")
	assert.Equal(t, "message:alice1234:hi", bob.read(t))
	alice.assertSilent(t)

	f.send(alice, "alice1234:message:ghost123:hi")
	assert.Equal(t, "ghost123 is not logged in.", alice.read(t))

	f.send(bob, "ghost123:message:alice1234:hi")
	assert.Equal(t, NotAuthenticatedText, bob.read(t))

	f.send(alice, "alice1234:list")
	assert.Equal(t, "alice1234, bobbob99", alice.read(t))
}

func TestDatagramExitAndInvalid(t *testing.T) {
	f := newDatagramFixture(t)
	alice := newUDPPeer(t)

	f.send(alice, "list")
	assert.Equal(t, InvalidCommandText, alice.read(t))
	f.send(alice, "alice1234:message:bobbob99")
	assert.Equal(t, InvalidCommandText, alice.read(t))

	f.send(alice, "alice1234:exit")
	assert.Equal(t, NotAuthenticatedText, alice.read(t))

	f.send(alice, "login:alice1234")
	require.Equal(t, LoginSuccessText, alice.read(t))
	f.send(alice, "alice1234:exit")
	assert.Equal(t, LogoutText, alice.read(t))
	assert.False(t, f.r.IsRegistered("alice1234"))
}

func TestDatagramOverAcceptor(t *testing.T) {
	r := NewRegistry()
	a, err := acceptor.ListenPacket(TransportDatagram, "127.0.0.1:0", acceptor.PacketConfig{})
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- a.Serve(t.Context(), NewDatagramHandler(r)) }()

	client, err := net.Dial("udp", a.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte("login:alice1234"))
	require.NoError(t, err)

	buf := make([]byte, 4096)
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, LoginSuccessText, string(buf[:n]))

	require.NoError(t, a.Close())
	select {
	case <-served:
	case <-time.After(2 * time.Second):
		require.FailNow(t, "datagram acceptor did not stop")
	}
}

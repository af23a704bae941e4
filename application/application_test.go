package application

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/danmu-chat-go/internal/chat"
	"github.com/lk2023060901/danmu-chat-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chat-go/internal/network/connector"
	"github.com/lk2023060901/danmu-chat-go/internal/network/framer"
	"github.com/lk2023060901/danmu-chat-go/internal/network/serializer"
	"github.com/lk2023060901/danmu-chat-go/internal/network/session"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Stream.Address = "127.0.0.1:0"
	cfg.Object.Address = "127.0.0.1:0"
	cfg.Datagram.Address = "127.0.0.1:0"
	cfg.Metrics.Enabled = true
	cfg.Metrics.Address = "127.0.0.1:0"
	return cfg
}

func startApp(t *testing.T, cfg *Config) *Application {
	t.Helper()
	app := New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	select {
	case <-app.Ready():
	case err := <-done:
		cancel()
		require.FailNow(t, "application failed to start", "%v", err)
	case <-time.After(5 * time.Second):
		cancel()
		require.FailNow(t, "application did not become ready")
	}

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("application did not stop")
		}
	})
	return app
}

func clientConfig() connector.Config {
	cfg := connector.DefaultConfig()
	cfg.Session = session.Config{SendQueueSize: 16, ReadTimeout: 2 * time.Second}
	return cfg
}

// lineClient 以行协议与服务器交互，多行回复按行数读取后拼接。
type lineClient struct {
	sess session.Session
}

func dialLine(t *testing.T, addr net.Addr) *lineClient {
	t.Helper()
	c, err := codec.NewText(framer.NewLineFramer(0))
	require.NoError(t, err)
	conn, err := connector.New(c, clientConfig())
	require.NoError(t, err)
	sess, err := conn.Dial(context.Background(), addr.String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })
	return &lineClient{sess: sess}
}

func (c *lineClient) send(t *testing.T, raw string) {
	t.Helper()
	require.NoError(t, c.sess.Send(raw))
}

func (c *lineClient) read(t *testing.T, expected string) {
	t.Helper()
	lines := make([]string, 0, 3)
	for range strings.Count(expected, "\n") + 1 {
		var line string
		require.NoError(t, c.sess.Recv(&line))
		lines = append(lines, line)
	}
	assert.Equal(t, expected, strings.Join(lines, "\n"))
}

func TestLineTransportScenario(t *testing.T) {
	app := startApp(t, testConfig())
	a := dialLine(t, app.LineAddr())
	b := dialLine(t, app.LineAddr())

	a.send(t, "list")
	a.read(t, chat.NotAuthenticatedText)

	a.send(t, "login:alice1234")
	a.read(t, chat.LoginSuccessText)
	b.send(t, "login:alice1234")
	b.read(t, chat.UsernameTakenText("alice1234"))
	b.send(t, "login:bob")
	b.read(t, chat.InvalidUsernameText)
	b.send(t, "login:bobbob99")
	b.read(t, chat.LoginSuccessText)

	a.send(t, "list")
	a.read(t, "alice1234, bobbob99")

	a.send(t, "message:bobbob99:hello bob")
	b.read(t, "message:alice1234:hello bob")
	b.send(t, "message:ghost123:boo")
	b.read(t, chat.RecipientNotFoundText("ghost123"))
	b.send(t, "hello?")
	b.read(t, chat.InvalidCommandText)

	a.send(t, "exit")
	a.read(t, chat.LogoutText)
	var line string
	assert.ErrorIs(t, a.sess.Recv(&line), io.EOF)

	b.send(t, "list")
	b.read(t, "bobbob99")
	b.send(t, "message:alice1234:still there?")
	b.read(t, chat.RecipientNotFoundText("alice1234"))
}

func TestLineTransportDisconnectUnregisters(t *testing.T) {
	app := startApp(t, testConfig())
	a := dialLine(t, app.LineAddr())
	a.send(t, "login:alice1234")
	a.read(t, chat.LoginSuccessText)
	require.NoError(t, a.sess.Close())
	<-a.sess.Done()

	b := dialLine(t, app.LineAddr())
	deadline := time.Now().Add(2 * time.Second)
	var line string
	for {
		b.send(t, "login:alice1234")
		require.NoError(t, b.sess.Recv(&line))
		if line != chat.UsernameTakenText("alice1234") {
			break
		}
		require.True(t, time.Now().Before(deadline), "username was not released")
		time.Sleep(20 * time.Millisecond)
	}
	assert.Equal(t, strings.Split(chat.LoginSuccessText, "\n")[0], line)
}

func dialObject(t *testing.T, addr net.Addr) session.Session {
	t.Helper()
	c, err := codec.New(codec.Options{
		Framer:     framer.NewLengthPrefixedFramer(0),
		Serializer: serializer.SonicSerializer{},
	})
	require.NoError(t, err)
	conn, err := connector.New(c, clientConfig())
	require.NoError(t, err)
	sess, err := conn.Dial(context.Background(), addr.String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

func recvEnvelope(t *testing.T, sess session.Session) chat.Envelope {
	t.Helper()
	var env chat.Envelope
	require.NoError(t, sess.Recv(&env))
	return env
}

func TestObjectTransportScenario(t *testing.T) {
	app := startApp(t, testConfig())
	a := dialObject(t, app.ObjectAddr())
	b := dialObject(t, app.ObjectAddr())

	require.NoError(t, a.Send(chat.Request{Sender: "alice1234", Content: "login:alice1234"}))
	env := recvEnvelope(t, a)
	assert.Equal(t, chat.KindMessage, env.Kind)
	assert.Equal(t, chat.ServerSender, env.Sender)
	assert.Equal(t, chat.LoginSuccessText, env.Text)

	require.NoError(t, b.Send(chat.Request{Content: "login:bobbob99"}))
	assert.Equal(t, chat.LoginSuccessText, recvEnvelope(t, b).Text)

	// 声明的发送方与会话身份不一致时以会话身份为准。
	require.NoError(t, a.Send(chat.Request{Sender: "mallory1", Content: "message:bobbob99:hi: there"}))
	assert.Equal(t, chat.InvalidCommandText, recvEnvelope(t, a).Text, "text must not contain the delimiter")
	require.NoError(t, a.Send(chat.Request{Sender: "mallory1", Content: "message:bobbob99:hi there"}))
	env = recvEnvelope(t, b)
	assert.Equal(t, chat.KindMessage, env.Kind)
	assert.Equal(t, "alice1234", env.Sender)
	assert.Equal(t, "hi there", env.Text)

	require.NoError(t, b.Send(chat.Request{Content: "list"}))
	env = recvEnvelope(t, b)
	assert.Equal(t, chat.KindRoster, env.Kind)
	assert.Equal(t, []string{"alice1234", "bobbob99"}, env.Roster)

	require.NoError(t, b.Send(chat.Request{Content: "exit"}))
	assert.Equal(t, chat.LogoutText, recvEnvelope(t, b).Text)
	require.NoError(t, a.Send(chat.Request{Content: "message:bobbob99:gone?"}))
	assert.Equal(t, chat.RecipientNotFoundText("bobbob99"), recvEnvelope(t, a).Text)
}

type udpClient struct {
	conn net.Conn
}

func dialUDP(t *testing.T, addr net.Addr) *udpClient {
	t.Helper()
	conn, err := net.Dial("udp", addr.String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &udpClient{conn: conn}
}

func (c *udpClient) roundTrip(t *testing.T, raw string) string {
	t.Helper()
	_, err := c.conn.Write([]byte(raw))
	require.NoError(t, err)
	return c.read(t)
}

func (c *udpClient) read(t *testing.T) string {
	t.Helper()
	buf := make([]byte, 64*1024)
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err := c.conn.Read(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestDatagramTransportScenario(t *testing.T) {
	app := startApp(t, testConfig())
	a := dialUDP(t, app.DatagramAddr())
	b := dialUDP(t, app.DatagramAddr())

	assert.Equal(t, chat.LoginSuccessText, a.roundTrip(t, "login:alice1234"))
	assert.Equal(t, chat.LoginSuccessText, b.roundTrip(t, "login:bobbob99"))
	assert.Equal(t, "alice1234, bobbob99", a.roundTrip(t, "alice1234:list"))

	_, err := a.conn.Write([]byte("alice1234:message:bobbob99:hi bob"))
	require.NoError(t, err)
	assert.Equal(t, "message:alice1234:hi bob", b.read(t))

	assert.Equal(t, chat.LogoutText, a.roundTrip(t, "alice1234:exit"))
	assert.Equal(t, chat.RecipientNotFoundText("alice1234"), b.roundTrip(t, "bobbob99:message:alice1234:bye"))
}

func TestTransportsHaveSeparateRegistries(t *testing.T) {
	app := startApp(t, testConfig())
	u := dialUDP(t, app.DatagramAddr())
	assert.Equal(t, chat.LoginSuccessText, u.roundTrip(t, "login:alice1234"))

	l := dialLine(t, app.LineAddr())
	l.send(t, "login:alice1234")
	l.read(t, chat.LoginSuccessText)
}

func TestMetricsEndpoint(t *testing.T) {
	app := startApp(t, testConfig())
	l := dialLine(t, app.LineAddr())
	l.send(t, "login:alice1234")
	l.read(t, chat.LoginSuccessText)

	base := "http://" + app.MetricsAddr().String()
	resp, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "chat_commands_total")
	assert.Contains(t, string(body), "chat_build_info")
	assert.Contains(t, string(body), "go_goroutines")

	resp, err = http.Get(base + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Object.Serializer = "gob"
	err := New(cfg).Run(context.Background())
	assert.Error(t, err)
}

func TestRunFailsWhenPortIsTaken(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig()
	cfg.Object.Enabled, cfg.Datagram.Enabled, cfg.Metrics.Enabled = false, false, false
	cfg.Stream.Address = ln.Addr().String()
	cfg.ListenRetry.Attempts = 2
	cfg.ListenRetry.Sleep = 10 * time.Millisecond

	err = New(cfg).Run(context.Background())
	assert.Error(t, err)
}

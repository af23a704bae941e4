package connector

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/danmu-chat-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chat-go/internal/network/framer"
	"github.com/lk2023060901/danmu-chat-go/pkg/util/merr"
)

func lineCodec(t *testing.T) codec.Codec {
	c, err := codec.NewText(framer.NewLineFramer(0))
	require.NoError(t, err)
	return c
}

func TestDial(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write([]byte("Invalid command\n"))
	}()

	c, err := New(lineCodec(t), DefaultConfig())
	require.NoError(t, err)
	sess, err := c.Dial(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	defer sess.Close()

	var line string
	require.NoError(t, sess.Recv(&line))
	assert.Equal(t, "Invalid command", line)
}

func TestDialRetriesUntilListening(t *testing.T) {
	// 先占用一个端口再释放，随后延迟监听。
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	go func() {
		time.Sleep(200 * time.Millisecond)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return
		}
		defer ln.Close()
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	c, err := New(lineCodec(t), DefaultConfig())
	require.NoError(t, err)
	sess, err := c.Dial(context.Background(), addr)
	require.NoError(t, err)
	sess.Close()
}

func TestDialGivesUp(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := DefaultConfig()
	cfg.MaxElapsedTime = 0
	c, err := New(lineCodec(t), cfg)
	require.NoError(t, err)
	_, err = c.Dial(context.Background(), addr)
	assert.ErrorIs(t, err, merr.ErrTransportFailure)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Dial(ctx, addr)
	assert.Error(t, err)

	_, err = New(nil, cfg)
	assert.Error(t, err)
}

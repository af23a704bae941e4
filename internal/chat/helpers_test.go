package chat

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/lk2023060901/danmu-chat-go/internal/network/session"
	"github.com/lk2023060901/danmu-chat-go/pkg/util/merr"
)

// fakeSession 是内存中的 session.Session 实现。
// in 中放入 string、Request 或 error，out 收集 Send 的消息。
type fakeSession struct {
	id     uint64
	ctx    context.Context
	cancel context.CancelFunc
	in     chan any
	out    chan any

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

var _ session.Session = (*fakeSession)(nil)

func newFakeSession() *fakeSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &fakeSession{
		id:     session.NextID(),
		ctx:    ctx,
		cancel: cancel,
		in:     make(chan any, 16),
		out:    make(chan any, 64),
		done:   make(chan struct{}),
	}
}

func (s *fakeSession) ID() uint64               { return s.id }
func (s *fakeSession) Context() context.Context { return s.ctx }
func (s *fakeSession) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 50000}
}
func (s *fakeSession) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4567}
}
func (s *fakeSession) Done() <-chan struct{} { return s.done }
func (s *fakeSession) Err() error            { return nil }

func (s *fakeSession) Send(msg any) error {
	if s.closed.Load() {
		return merr.WrapErrSessionClosed(s.id)
	}
	s.out <- msg
	return nil
}

func (s *fakeSession) Recv(msg any) error {
	select {
	case v := <-s.in:
		if err, ok := v.(error); ok {
			return err
		}
		switch m := msg.(type) {
		case *string:
			*m = v.(string)
		case *Request:
			*m = v.(Request)
		}
		return nil
	case <-s.done:
		return io.EOF
	}
}

func (s *fakeSession) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cancel()
		close(s.done)
	})
	return nil
}

// next 取出下一条已发送的消息。
func (s *fakeSession) next(t *testing.T) any {
	t.Helper()
	select {
	case msg := <-s.out:
		return msg
	case <-time.After(time.Second):
		require.FailNow(t, "no message sent")
		return nil
	}
}

// nextLine 取出下一条已发送的文本行。
func (s *fakeSession) nextLine(t *testing.T) string {
	t.Helper()
	line, ok := s.next(t).(string)
	require.True(t, ok, "expected a text line")
	return line
}

func (s *fakeSession) assertSilent(t *testing.T) {
	t.Helper()
	select {
	case msg := <-s.out:
		require.FailNow(t, "unexpected message", "%v", msg)
	case <-time.After(20 * time.Millisecond):
	}
}

// recordingEndpoint 记录投递的消息，err 非空时投递失败。
type recordingEndpoint struct {
	mu  sync.Mutex
	got []Envelope
	err error
}

func (e *recordingEndpoint) Deliver(env Envelope) error {
	if e.err != nil {
		return e.err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.got = append(e.got, env)
	return nil
}

func (e *recordingEndpoint) delivered() []Envelope {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Envelope(nil), e.got...)
}

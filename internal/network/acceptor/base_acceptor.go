package acceptor

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	network "github.com/lk2023060901/danmu-chat-go/internal/network"
	"github.com/lk2023060901/danmu-chat-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chat-go/internal/network/session"
	"github.com/lk2023060901/danmu-chat-go/pkg/log"
)

// BaseAcceptor 是 StreamAcceptor 的 TCP 实现。
//
// 内部负责：接受连接、创建 Session、在每个连接的独立 goroutine 中回调 Handler，
// 不绑定具体业务逻辑。
type BaseAcceptor struct {
	name  string
	ln    net.Listener
	codec codec.Codec
	cfg   session.Config

	active atomic.Int64
	closed atomic.Bool

	closeOnce sync.Once
}

// 确保 BaseAcceptor 实现了 StreamAcceptor 接口。
var _ StreamAcceptor = (*BaseAcceptor)(nil)

// NewBaseAcceptor 使用已有的 Listener 创建一个流式接入器。
//
// 参数：
//   - name：接入器名称，写入日志的 transport 字段；
//   - ln  ：已创建好的 net.Listener；
//   - c   ：用于当前接入器所有连接的 Codec；
//   - cfg ：每个连接的会话配置。
func NewBaseAcceptor(name string, ln net.Listener, c codec.Codec, cfg session.Config) (*BaseAcceptor, error) {
	if ln == nil {
		return nil, errors.New("acceptor: listener is nil")
	}
	if c == nil {
		return nil, errors.New("acceptor: codec is nil")
	}
	return &BaseAcceptor{
		name:  name,
		ln:    ln,
		codec: c,
		cfg:   cfg,
	}, nil
}

// NewTCPAcceptor 在给定地址上监听 TCP，并创建一个流式接入器。
func NewTCPAcceptor(name string, addr string, c codec.Codec, cfg session.Config) (*BaseAcceptor, error) {
	if addr == "" {
		return nil, errors.New("acceptor: addr is empty")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "acceptor: listen tcp %s", addr)
	}
	a, err := NewBaseAcceptor(name, ln, c, cfg)
	if err != nil {
		_ = ln.Close()
		return nil, err
	}
	return a, nil
}

// Addr 实现 Acceptor.Addr。
func (a *BaseAcceptor) Addr() net.Addr {
	return a.ln.Addr()
}

// Active 返回当前活跃连接数。
func (a *BaseAcceptor) Active() int64 {
	return a.active.Load()
}

// Serve 实现 StreamAcceptor.Serve。
func (a *BaseAcceptor) Serve(ctx context.Context, h Handler) error {
	if h == nil {
		return errors.New("acceptor: handler is nil")
	}

	logger := log.Ctx(ctx).With(log.FieldTransport(a.name), zap.Stringer("addr", a.Addr()))
	logger.Info("acceptor started")

	stop := context.AfterFunc(ctx, func() { _ = a.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	var tempDelay time.Duration
	for {
		conn, err := a.ln.Accept()
		if err != nil {
			if a.closed.Load() || ctx.Err() != nil {
				logger.Info("acceptor stopped")
				return nil
			}

			// 临时错误（例如文件描述符耗尽）退避后继续接受新连接。
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				tempDelay = nextDelay(tempDelay)
				logger.Warn("accept failed, retrying", zap.Duration("delay", tempDelay), zap.Error(err))
				h.OnError(nil, network.StageAccept, err)
				time.Sleep(tempDelay)
				continue
			}

			h.OnError(nil, network.StageAccept, err)
			return network.WrapError(network.StageAccept, err)
		}
		tempDelay = 0

		wg.Add(1)
		go func(conn net.Conn) {
			defer wg.Done()
			a.handleConnection(ctx, conn, h)
		}(conn)
	}
}

// Close 实现 Acceptor.Close。
func (a *BaseAcceptor) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.closed.Store(true)
		err = a.ln.Close()
	})
	return err
}

// handleConnection 处理单个连接的生命周期。
//
// 流程：
//  1. 创建携带 trace 的上下文与 Session；
//  2. 回调 Handler.OnAccept，直到业务侧结束会话；
//  3. 关闭 Session 并等待已入队的消息写出；
//  4. 回调 Handler.OnSessionClosed。
func (a *BaseAcceptor) handleConnection(parent context.Context, conn net.Conn, h Handler) {
	ctx, span := log.NewIntentContext(parent, a.name, "session")
	defer span.End()
	ctx = log.WithFields(ctx, log.FieldTransport(a.name), log.FieldRemote(conn.RemoteAddr().String()))

	sess := session.NewBaseSession(ctx, conn, a.codec, a.cfg)
	a.active.Inc()
	defer a.active.Dec()

	logger := log.Ctx(sess.Context())
	logger.Debug("session opened")

	cause := h.OnAccept(sess)
	_ = sess.Close()
	<-sess.Done()

	if cause == nil {
		cause = sess.Err()
	}
	if network.IsClosed(cause) {
		cause = nil
	}
	if cause != nil {
		logger.Info("session closed", zap.Error(cause))
	} else {
		logger.Debug("session closed")
	}
	h.OnSessionClosed(sess, cause)
}

func nextDelay(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if max := time.Second; d > max {
		d = max
	}
	return d
}

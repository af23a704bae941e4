package session

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	network "github.com/lk2023060901/danmu-chat-go/internal/network"
	"github.com/lk2023060901/danmu-chat-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chat-go/pkg/log"
	"github.com/lk2023060901/danmu-chat-go/pkg/util/merr"
)

// Config 描述会话层面的配置。
//
// ReadTimeout/WriteTimeout 控制单次读写的超时时间，为 0 表示不设置 deadline。
type Config struct {
	SendQueueSize int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

const defaultSendQueueSize = 256

// DefaultConfig 返回默认会话配置：无超时。
func DefaultConfig() Config {
	return Config{
		SendQueueSize: defaultSendQueueSize,
	}
}

var idGenerator atomic.Uint64

// NextID 分配一个新的会话 ID，从 1 开始递增。
func NextID() uint64 {
	return idGenerator.Inc()
}

// BaseSession 是 Session 接口基于 net.Conn 的实现。
//
// 写方向：Send 只负责入队，独立的发送协程按顺序编码并写出，
// 因此多个 goroutine 同时向同一会话发送消息也不会产生交叉的报文。
type BaseSession struct {
	id uint64

	ctx    context.Context
	cancel context.CancelFunc

	conn   net.Conn
	codec  codec.Codec
	cfg    Config
	reader *bufio.Reader
	writer *bufio.Writer

	sendQueue chan any

	// closing 在 Close 或发送失败时关闭，之后 Send 不再入队。
	closing   chan struct{}
	closeOnce sync.Once
	// done 在发送协程退出并关闭连接后关闭。
	done chan struct{}

	cause atomic.Error
}

var _ Session = (*BaseSession)(nil)

// NewBaseSession 创建一个基于 net.Conn 的会话，并启动发送协程。
//
// parent 被取消时会话随之关闭；若为 nil，则使用 context.Background()。
// 会话上下文中的 Logger 自动带上 sessionID 字段。
func NewBaseSession(parent context.Context, conn net.Conn, c codec.Codec, cfg Config) *BaseSession {
	if parent == nil {
		parent = context.Background()
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = defaultSendQueueSize
	}
	id := NextID()
	ctx, cancel := context.WithCancel(log.WithFields(parent, log.FieldSession(id)))

	s := &BaseSession{
		id:        id,
		ctx:       ctx,
		cancel:    cancel,
		conn:      conn,
		codec:     c,
		cfg:       cfg,
		reader:    bufio.NewReader(conn),
		writer:    bufio.NewWriter(conn),
		sendQueue: make(chan any, cfg.SendQueueSize),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
	}

	go s.sendLoop()
	return s
}

// ID 实现 Session.ID。
func (s *BaseSession) ID() uint64 {
	return s.id
}

// Context 实现 Session.Context。
func (s *BaseSession) Context() context.Context {
	return s.ctx
}

// RemoteAddr 实现 Session.RemoteAddr。
func (s *BaseSession) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// LocalAddr 实现 Session.LocalAddr。
func (s *BaseSession) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Send 实现 Session.Send。
func (s *BaseSession) Send(msg any) error {
	select {
	case <-s.closing:
		return merr.WrapErrSessionClosed(s.id)
	default:
	}

	select {
	case s.sendQueue <- msg:
		return nil
	case <-s.closing:
		return merr.WrapErrSessionClosed(s.id)
	}
}

// Recv 实现 Session.Recv。
//
// 内容损坏但帧边界完好的错误（codec.ErrMalformedFrame）原样返回，
// 其余错误包装为 merr.ErrTransportFailure。
func (s *BaseSession) Recv(msg any) error {
	if s.cfg.ReadTimeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			return network.WrapError(network.StageRecv, err)
		}
	}
	err := s.codec.Decode(s.reader, msg)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, codec.ErrMalformedFrame):
		return err
	default:
		return network.WrapError(network.StageRecv, err)
	}
}

// Close 实现 Session.Close。
func (s *BaseSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
	})
	return nil
}

// Done 实现 Session.Done。
func (s *BaseSession) Done() <-chan struct{} {
	return s.done
}

// Err 实现 Session.Err。
func (s *BaseSession) Err() error {
	return s.cause.Load()
}

// sendLoop 为每个会话启动的专职发送协程，是唯一写连接的 goroutine。
func (s *BaseSession) sendLoop() {
	defer s.finish()

	for {
		select {
		case msg := <-s.sendQueue:
			if err := s.write(msg); err != nil {
				s.fail(err)
				return
			}
		case <-s.closing:
			s.drain()
			return
		case <-s.ctx.Done():
			return
		}
	}
}

// drain 写出关闭前已入队的消息。
func (s *BaseSession) drain() {
	for {
		select {
		case msg := <-s.sendQueue:
			if err := s.write(msg); err != nil {
				s.fail(err)
				return
			}
		default:
			return
		}
	}
}

// write 编码一条消息；队列中没有更多消息时才刷新缓冲区，以合并小包。
func (s *BaseSession) write(msg any) error {
	if s.cfg.WriteTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
			return network.WrapError(network.StageSend, err)
		}
	}
	if err := s.codec.Encode(s.writer, msg); err != nil {
		return network.WrapError(network.StageEncode, err)
	}
	if len(s.sendQueue) > 0 {
		return nil
	}
	if err := s.writer.Flush(); err != nil {
		return network.WrapError(network.StageSend, err)
	}
	return nil
}

func (s *BaseSession) fail(err error) {
	s.cause.Store(err)
	s.Close()
}

func (s *BaseSession) finish() {
	s.Close()
	if s.cause.Load() == nil {
		if err := s.writer.Flush(); err != nil && !network.IsClosed(err) {
			s.cause.Store(network.WrapError(network.StageSend, err))
		}
	}
	if err := s.conn.Close(); err != nil && !network.IsClosed(err) {
		log.Ctx(s.ctx).Debug("close session conn failed", log.FieldSession(s.id), zap.Error(err))
	}
	s.cancel()
	close(s.done)
}

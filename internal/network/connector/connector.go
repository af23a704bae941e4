package connector

import (
	"context"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	network "github.com/lk2023060901/danmu-chat-go/internal/network"
	"github.com/lk2023060901/danmu-chat-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chat-go/internal/network/session"
	"github.com/lk2023060901/danmu-chat-go/pkg/log"
)

// Config 描述客户端连接的基础配置。
type Config struct {
	Session session.Config

	// DialTimeout 为单次拨号的超时时间，为 0 表示不设置。
	DialTimeout time.Duration
	// InitialInterval 为首次重试前的等待时间。
	InitialInterval time.Duration
	// MaxElapsedTime 为拨号重试的总时长上限，为 0 表示只拨号一次。
	MaxElapsedTime time.Duration
}

// DefaultConfig 返回默认配置：单次拨号 3 秒超时，最多重试 5 秒。
func DefaultConfig() Config {
	return Config{
		Session:         session.DefaultConfig(),
		DialTimeout:     3 * time.Second,
		InitialInterval: 50 * time.Millisecond,
		MaxElapsedTime:  5 * time.Second,
	}
}

// Connector 是客户端侧的 TCP 拨号器，连接建立后返回与服务器侧相同的 Session 实现。
type Connector struct {
	cfg   Config
	codec codec.Codec
}

// New 创建一个使用 c 编解码的 Connector。
func New(c codec.Codec, cfg Config) (*Connector, error) {
	if c == nil {
		return nil, errors.New("connector: codec is nil")
	}
	return &Connector{cfg: cfg, codec: c}, nil
}

// Dial 连接 addr，失败时按指数退避重试，直到成功、超过 MaxElapsedTime 或 ctx 结束。
//
// 返回的 Session 生命周期独立于 ctx，由调用方负责 Close。
func (c *Connector) Dial(ctx context.Context, addr string) (session.Session, error) {
	logger := log.Ctx(ctx).With(zap.String("addr", addr))
	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}

	var conn net.Conn
	operation := func() error {
		var err error
		conn, err = dialer.DialContext(ctx, "tcp", addr)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		logger.Warn("dial failed, retrying", zap.Duration("next", next), zap.Error(err))
	}

	if err := backoff.RetryNotify(operation, c.backOff(ctx), notify); err != nil {
		return nil, network.WrapError(network.StageAccept, errors.Wrapf(err, "connector: dial %s", addr))
	}

	logger.Debug("connected", log.FieldRemote(conn.RemoteAddr().String()))
	return session.NewBaseSession(context.Background(), conn, c.codec, c.cfg.Session), nil
}

func (c *Connector) backOff(ctx context.Context) backoff.BackOff {
	if c.cfg.MaxElapsedTime <= 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	b := backoff.NewExponentialBackOff()
	if c.cfg.InitialInterval > 0 {
		b.InitialInterval = c.cfg.InitialInterval
	}
	b.MaxElapsedTime = c.cfg.MaxElapsedTime
	return backoff.WithContext(b, ctx)
}

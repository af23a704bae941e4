package acceptor

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	network "github.com/lk2023060901/danmu-chat-go/internal/network"
	"github.com/lk2023060901/danmu-chat-go/pkg/log"
	"github.com/lk2023060901/danmu-chat-go/pkg/util/conc"
	"github.com/lk2023060901/danmu-chat-go/pkg/util/hardware"
	"github.com/lk2023060901/danmu-chat-go/pkg/util/merr"
)

// 数据报被丢弃的原因。
const (
	DropReasonRateLimited = "rate_limited"
	DropReasonOverload    = "overload"
)

const (
	defaultMaxPacketSize = 64 * 1024
	limiterIdleTTL       = time.Minute
)

// PacketConfig 描述数据报接入器的配置。
type PacketConfig struct {
	// MaxPacketSize 为读缓冲区大小，超出部分被操作系统截断。
	MaxPacketSize int
	// Workers 为处理数据报的协程池容量，<= 0 时为 CPU 核数的两倍。
	Workers int
	// PeerRate 为每个来源地址每秒允许的数据报数，<= 0 表示不限流。
	PeerRate float64
	// PeerBurst 为每个来源地址允许的突发数。
	PeerBurst int
	// PreAlloc 表示是否在启动时预先分配全部 worker。
	PreAlloc bool
	// WorkerExpiry 为空闲 worker 的回收间隔；0 使用 ants 默认值，< 0 表示从不回收。
	WorkerExpiry time.Duration
}

func (cfg PacketConfig) poolOptions(name string) []conc.PoolOption {
	opts := []conc.PoolOption{
		conc.WithName(name),
		conc.WithNonBlocking(true),
		conc.WithConcealPanic(true),
		conc.WithPreAlloc(cfg.PreAlloc),
	}
	switch {
	case cfg.WorkerExpiry < 0:
		opts = append(opts, conc.WithDisablePurge(true))
	case cfg.WorkerExpiry > 0:
		opts = append(opts, conc.WithExpiryDuration(cfg.WorkerExpiry))
	}
	return opts
}

type peerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// PacketAcceptor 是 DatagramAcceptor 基于 net.PacketConn 的实现。
//
// 读循环只负责读取与限流，每个数据报作为一个独立任务提交到协程池处理，
// 因此同一来源的数据报之间不保证处理顺序。
type PacketAcceptor struct {
	log.Binder

	name string
	conn net.PacketConn
	cfg  PacketConfig
	pool *conc.Pool[struct{}]

	mu       sync.Mutex
	limiters map[string]*peerLimiter

	closed    atomic.Bool
	closeOnce sync.Once
}

var _ DatagramAcceptor = (*PacketAcceptor)(nil)

// NewPacketAcceptor 使用已有的 PacketConn 创建数据报接入器。
func NewPacketAcceptor(name string, conn net.PacketConn, cfg PacketConfig) (*PacketAcceptor, error) {
	if conn == nil {
		return nil, errors.New("acceptor: packet conn is nil")
	}
	if cfg.MaxPacketSize <= 0 {
		cfg.MaxPacketSize = defaultMaxPacketSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = hardware.GetCPUNum() * 2
	}
	if cfg.PeerBurst <= 0 {
		cfg.PeerBurst = 1
	}

	a := &PacketAcceptor{
		name:     name,
		conn:     conn,
		cfg:      cfg,
		limiters: make(map[string]*peerLimiter),
		pool:     conc.NewPool[struct{}](cfg.Workers, cfg.poolOptions(name)...),
	}
	a.BindComponent("packet-acceptor", log.FieldTransport(name))
	return a, nil
}

// ListenPacket 在给定地址上监听 UDP，并创建数据报接入器。
func ListenPacket(name string, addr string, cfg PacketConfig) (*PacketAcceptor, error) {
	if addr == "" {
		return nil, errors.New("acceptor: addr is empty")
	}
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "acceptor: listen udp %s", addr)
	}
	a, err := NewPacketAcceptor(name, conn, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return a, nil
}

// Addr 实现 Acceptor.Addr。
func (a *PacketAcceptor) Addr() net.Addr {
	return a.conn.LocalAddr()
}

// Serve 实现 DatagramAcceptor.Serve。
func (a *PacketAcceptor) Serve(ctx context.Context, h PacketHandler) error {
	if h == nil {
		return errors.New("acceptor: handler is nil")
	}
	logger := a.Logger().With(zap.Stringer("addr", a.Addr()))
	logger.Info("packet acceptor started",
		zap.Int("workers", a.cfg.Workers),
		zap.Float64("peerRate", a.cfg.PeerRate))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { _ = a.Close() })
	defer stop()
	defer a.pool.Release()

	if a.cfg.PeerRate > 0 {
		go a.pruneLimiters(ctx)
	}

	buf := make([]byte, a.cfg.MaxPacketSize)
	for {
		n, from, err := a.conn.ReadFrom(buf)
		if err != nil {
			if a.closed.Load() || ctx.Err() != nil {
				logger.Info("packet acceptor stopped")
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return network.WrapError(network.StageAccept, err)
		}

		if !a.allow(from, time.Now()) {
			a.drop(h, from, DropReasonRateLimited)
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		future := a.pool.Submit(func() (struct{}, error) {
			h.OnPacket(a.conn, from, payload)
			return struct{}{}, nil
		})
		if future.Done() && errors.Is(future.Err(), merr.ErrServiceTooManyRequests) {
			a.drop(h, from, DropReasonOverload)
		}
	}
}

// Close 实现 Acceptor.Close。
func (a *PacketAcceptor) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.closed.Store(true)
		err = a.conn.Close()
		a.pool.Release()
	})
	return err
}

func (a *PacketAcceptor) drop(h PacketHandler, from net.Addr, reason string) {
	a.Logger().RatedWarn(1, "datagram dropped", log.FieldRemote(from.String()), zap.String("reason", reason))
	h.OnDrop(from, reason)
}

// allow 判断来源地址是否仍有配额。
func (a *PacketAcceptor) allow(from net.Addr, now time.Time) bool {
	if a.cfg.PeerRate <= 0 {
		return true
	}
	key := from.String()

	a.mu.Lock()
	defer a.mu.Unlock()
	pl, ok := a.limiters[key]
	if !ok {
		pl = &peerLimiter{limiter: rate.NewLimiter(rate.Limit(a.cfg.PeerRate), a.cfg.PeerBurst)}
		a.limiters[key] = pl
	}
	pl.lastSeen = now
	return pl.limiter.AllowN(now, 1)
}

func (a *PacketAcceptor) pruneLimiters(ctx context.Context) {
	ticker := time.NewTicker(limiterIdleTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.prune(now)
		}
	}
}

// prune 删除空闲超过 limiterIdleTTL 的限流器。
func (a *PacketAcceptor) prune(now time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	removed := 0
	for key, pl := range a.limiters {
		if now.Sub(pl.lastSeen) > limiterIdleTTL {
			delete(a.limiters, key)
			removed++
		}
	}
	return removed
}

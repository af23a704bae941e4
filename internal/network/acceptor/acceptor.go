package acceptor

import (
	"context"
	"net"

	network "github.com/lk2023060901/danmu-chat-go/internal/network"
	"github.com/lk2023060901/danmu-chat-go/internal/network/session"
)

// Handler 由流式接入器的使用者实现，用于在连接生命周期的各个阶段插入业务逻辑。
//
// 所有回调均在该连接专属的 goroutine 中被调用。
type Handler interface {
	// OnAccept 在会话建立后被调用，通常在其中运行该连接的读循环，
	// 返回即表示业务侧认为会话结束；返回的错误作为关闭原因。
	OnAccept(sess session.Session) error

	// OnSessionClosed 在底层连接关闭后被调用一次。
	//
	// cause 为关闭原因，对端正常断开或主动退出时为 nil。
	OnSessionClosed(sess session.Session, cause error)

	// OnError 在接入过程中发生错误时被调用，sess 可能为 nil。
	OnError(sess session.Session, stage network.Stage, err error)
}

// PacketHandler 由数据报接入器的使用者实现。
type PacketHandler interface {
	// OnPacket 处理一个数据报，在协程池中并发调用。
	//
	// payload 归回调所有；回复通过 conn.WriteTo 发往 from 或其他已知地址。
	OnPacket(conn net.PacketConn, from net.Addr, payload []byte)

	// OnDrop 在数据报未经处理即被丢弃时调用，reason 取值见 DropReason*。
	OnDrop(from net.Addr, reason string)
}

// Acceptor 抽象了服务器侧的接入层。
type Acceptor interface {
	// Addr 返回实际监听的地址。
	Addr() net.Addr

	// Close 停止接入，幂等。
	Close() error
}

// StreamAcceptor 为面向连接的接入器。
type StreamAcceptor interface {
	Acceptor

	// Serve 启动接入循环，阻塞直至 ctx 取消、Close 被调用或出现致命错误。
	// 返回前等待所有连接处理协程退出。
	Serve(ctx context.Context, h Handler) error
}

// DatagramAcceptor 为无连接的接入器。
type DatagramAcceptor interface {
	Acceptor

	// Serve 启动读循环，阻塞直至 ctx 取消、Close 被调用或出现致命错误。
	Serve(ctx context.Context, h PacketHandler) error
}

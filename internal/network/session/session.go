package session

import (
	"context"
	"net"
)

// Session 抽象了一条面向流的网络会话/连接。
//
// 约定：
//   - 每个 Session 对应一条底层连接，写方向由 Session 自己的发送协程独占；
//   - Session ID 使用 64 位无符号整型，在进程内唯一；
//   - 网络层只关心会话本身，不关心“用户”等具体业务概念。
type Session interface {
	// ID 返回该会话在进程内的唯一标识。
	ID() uint64

	// Context 返回与该会话关联的上下文，会话结束时被取消。
	Context() context.Context

	// RemoteAddr 返回远端地址，主要用于日志记录。
	RemoteAddr() net.Addr

	// LocalAddr 返回本端地址。
	LocalAddr() net.Addr

	// Send 将一条消息投递到会话的发送队列，由发送协程按顺序编码并写出。
	//
	// 队列已满时阻塞，会话关闭后返回 merr.ErrSessionClosed。
	// 任何 goroutine 都可以调用 Send。
	Send(msg any) error

	// Recv 从连接读取一帧并解码到 msg 中。
	//
	// 同一时刻只能有一个 goroutine 调用 Recv。
	Recv(msg any) error

	// Close 请求关闭会话：不再接受新消息，已入队的消息写出后关闭底层连接。
	//
	// Close 不阻塞，多次调用是幂等的；需要等待关闭完成时使用 Done。
	Close() error

	// Done 返回一个在底层连接关闭后被关闭的 channel。
	Done() <-chan struct{}

	// Err 返回导致会话结束的错误，正常关闭时为 nil。
	Err() error
}

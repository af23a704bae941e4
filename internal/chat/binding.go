package chat

import (
	"net"

	"github.com/lk2023060901/danmu-chat-go/internal/network/session"
)

// 传输名称，同时用作日志字段与指标的 transport 标签。
const (
	TransportLine     = "tcp-line"
	TransportObject   = "tcp-object"
	TransportDatagram = "udp"
)

// Endpoint 是某个已登录用户的投递端点。
type Endpoint interface {
	// Deliver 把 env 发给该用户。流式端点只负责入队，由会话的发送协程写出。
	Deliver(env Envelope) error
}

// Request 是对象流传输上的入站消息。
// Sender 仅作参考，服务器以会话绑定的身份为准。
type Request struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// Binding 描述一种流式传输如何读取命令与渲染回复。
type Binding interface {
	// Name 返回传输名称。
	Name() string
	// ReadCommand 从会话读取下一条原始命令文本。
	ReadCommand(sess session.Session) (string, error)
	// Render 把 env 转换为交给 session.Send 的消息。
	Render(env Envelope) any
}

// LineBinding 为换行分隔的文本协议。
type LineBinding struct{}

func (LineBinding) Name() string { return TransportLine }

func (LineBinding) ReadCommand(sess session.Session) (string, error) {
	var line string
	if err := sess.Recv(&line); err != nil {
		return "", err
	}
	return line, nil
}

func (LineBinding) Render(env Envelope) any { return env.Line() }

// ObjectBinding 为长度前缀的 JSON 对象协议，入站为 Request，出站为 Envelope。
type ObjectBinding struct{}

func (ObjectBinding) Name() string { return TransportObject }

func (ObjectBinding) ReadCommand(sess session.Session) (string, error) {
	var req Request
	if err := sess.Recv(&req); err != nil {
		return "", err
	}
	return req.Content, nil
}

func (ObjectBinding) Render(env Envelope) any { return env }

// streamEndpoint 把消息投递到一个流式会话。
type streamEndpoint struct {
	sess    session.Session
	binding Binding
}

func (e *streamEndpoint) Deliver(env Envelope) error {
	return e.sess.Send(e.binding.Render(env))
}

// datagramEndpoint 把消息以单个数据报发往 addr。
type datagramEndpoint struct {
	conn net.PacketConn
	addr net.Addr
}

func (e datagramEndpoint) Deliver(env Envelope) error {
	_, err := e.conn.WriteTo([]byte(env.Line()), e.addr)
	return err
}

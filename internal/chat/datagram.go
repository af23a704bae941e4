package chat

import (
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	network "github.com/lk2023060901/danmu-chat-go/internal/network"
	"github.com/lk2023060901/danmu-chat-go/internal/network/acceptor"
	"github.com/lk2023060901/danmu-chat-go/pkg/log"
	"github.com/lk2023060901/danmu-chat-go/pkg/metrics"
)

var _ acceptor.PacketHandler = (*DatagramHandler)(nil)

// DatagramHandler 处理无连接传输上的命令。
//
// 每个数据报独立处理，没有会话状态：发送方身份取自命令首个字段，
// 是否已登录以 Registry 为准。回复总是发往数据报的来源地址。
type DatagramHandler struct {
	log.Binder

	d dispatcher
}

// NewDatagramHandler 创建一个 DatagramHandler。
func NewDatagramHandler(registry *Registry) *DatagramHandler {
	h := &DatagramHandler{d: dispatcher{registry: registry, transport: TransportDatagram}}
	h.BindComponent("datagram", log.FieldTransport(TransportDatagram))
	return h
}

// OnPacket 解析并执行一个数据报中的命令。
func (h *DatagramHandler) OnPacket(conn net.PacketConn, from net.Addr, payload []byte) {
	source := datagramEndpoint{conn: conn, addr: from}
	logger := h.Logger().With(log.FieldRemote(from.String()))

	// 命令行工具发送的数据报通常带有结尾换行。
	raw := strings.TrimRight(string(payload), "\r\n")
	cmd, err := ParseDatagram(raw)
	if err != nil {
		h.d.observeInvalid()
		logger.Debug("invalid command", zap.String("command", raw))
		h.reply(logger, source, ServerMessage(InvalidCommandText))
		return
	}

	start := time.Now()
	reply, err := h.dispatch(cmd, source)
	h.d.observe(cmd.Verb(), start, err)
	if err != nil {
		logger.Debug("command rejected", zap.String("command", cmd.Verb()), zap.Error(err))
	}
	if reply != nil {
		h.reply(logger, source, *reply)
	}
}

// OnDrop 统计被接入器丢弃的数据报。
func (h *DatagramHandler) OnDrop(_ net.Addr, reason string) {
	metrics.DatagramsDropped.WithLabelValues(reason).Inc()
}

func (h *DatagramHandler) dispatch(cmd Command, source datagramEndpoint) (*Envelope, error) {
	switch c := cmd.(type) {
	case Login:
		reply, err := h.d.login(c.Username, source)
		if err == nil {
			h.Logger().Info("user logged in", log.FieldUsername(c.Username), log.FieldRemote(source.addr.String()))
		}
		return reply, err
	case List:
		return h.d.list(c.Sender)
	case SendMessage:
		return h.d.send(c.Sender, c.To, c.Text)
	case Exit:
		reply, err := h.d.exit(c.Sender)
		if err == nil {
			h.Logger().Info("user logged out", log.FieldUsername(c.Sender))
		}
		return reply, err
	default:
		panic("chat: unhandled command type")
	}
}

func (h *DatagramHandler) reply(logger *log.MLogger, ep datagramEndpoint, env Envelope) {
	if err := ep.Deliver(env); err != nil {
		logger.RatedWarn(1, "failed to send datagram reply",
			zap.Error(network.WrapError(network.StageSend, err)))
	}
}

package chat

import (
	"go.uber.org/zap"

	network "github.com/lk2023060901/danmu-chat-go/internal/network"
	"github.com/lk2023060901/danmu-chat-go/internal/network/acceptor"
	"github.com/lk2023060901/danmu-chat-go/internal/network/session"
	"github.com/lk2023060901/danmu-chat-go/pkg/log"
	"github.com/lk2023060901/danmu-chat-go/pkg/metrics"
)

var _ acceptor.Handler = (*StreamHandler)(nil)

// StreamHandler 把流式接入器与聊天会话连接起来，每个连接运行一个 Worker。
type StreamHandler struct {
	registry *Registry
	binding  Binding
}

// NewStreamHandler 创建一个使用 binding 收发消息的 StreamHandler。
func NewStreamHandler(registry *Registry, binding Binding) *StreamHandler {
	return &StreamHandler{registry: registry, binding: binding}
}

// OnAccept 在连接专属的 goroutine 中运行 Worker，直到会话结束。
func (h *StreamHandler) OnAccept(sess session.Session) error {
	transport := h.binding.Name()
	metrics.ConnectionsAccepted.WithLabelValues(transport).Inc()
	metrics.SessionsActive.WithLabelValues(transport).Inc()
	defer metrics.SessionsActive.WithLabelValues(transport).Dec()

	return NewWorker(h.registry, h.binding, sess).Run()
}

func (h *StreamHandler) OnSessionClosed(sess session.Session, cause error) {
	if cause != nil {
		log.Ctx(sess.Context()).Debug("chat session aborted", zap.Error(cause))
	}
}

func (h *StreamHandler) OnError(sess session.Session, stage network.Stage, err error) {
	logger := log.With(log.FieldTransport(h.binding.Name()))
	if sess != nil {
		logger = log.Ctx(sess.Context())
	}
	logger.RatedWarn(1, "stream transport error", zap.Stringer("stage", stage), zap.Error(err))
}

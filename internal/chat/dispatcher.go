package chat

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/danmu-chat-go/pkg/metrics"
	"github.com/lk2023060901/danmu-chat-go/pkg/util/merr"
)

// invalidCommandLabel 为无法解析的命令在指标中的 command 标签。
const invalidCommandLabel = "invalid"

// dispatcher 执行与传输无关的命令语义，流式 Worker 与数据报处理器共用。
// 每个方法返回需要回复给发起方的消息（可能为 nil）以及用于统计的错误。
type dispatcher struct {
	registry  *Registry
	transport string
}

func serverReply(text string) *Envelope {
	env := ServerMessage(text)
	return &env
}

func (d *dispatcher) login(username string, ep Endpoint) (*Envelope, error) {
	if err := d.registry.Register(username, ep); err != nil {
		if errors.Is(err, merr.ErrUsernameInvalid) {
			return serverReply(InvalidUsernameText), err
		}
		return serverReply(UsernameTakenText(username)), err
	}
	return serverReply(LoginSuccessText), nil
}

func (d *dispatcher) list(sender string) (*Envelope, error) {
	if !d.registry.IsRegistered(sender) {
		return serverReply(NotAuthenticatedText), merr.WrapErrNotAuthenticated(VerbList)
	}
	env := RosterMessage(d.registry.Roster())
	return &env, nil
}

// send 把消息投递给 to，成功时不回复发送方。
func (d *dispatcher) send(sender, to, text string) (*Envelope, error) {
	if !d.registry.IsRegistered(sender) {
		return serverReply(NotAuthenticatedText), merr.WrapErrNotAuthenticated(VerbMessage)
	}
	ep, err := d.registry.Lookup(to)
	if err != nil {
		return serverReply(RecipientNotFoundText(to)), err
	}
	// 收件人的连接可能正在关闭，此时按不在线处理。
	if err := ep.Deliver(ChatMessage(sender, text)); err != nil {
		return serverReply(RecipientNotFoundText(to)), merr.WrapErrRecipientNotFound(to, err.Error())
	}
	metrics.RoutedMessagesTotal.WithLabelValues(d.transport).Inc()
	return nil, nil
}

func (d *dispatcher) exit(sender string) (*Envelope, error) {
	if !d.registry.Unregister(sender) {
		return serverReply(NotAuthenticatedText), merr.WrapErrNotAuthenticated(VerbExit)
	}
	return serverReply(LogoutText), nil
}

func (d *dispatcher) observe(verb string, start time.Time, err error) {
	result := metrics.SuccessLabel
	if err != nil {
		result = metrics.FailLabel
	}
	metrics.CommandsTotal.WithLabelValues(d.transport, verb, result).Inc()
	metrics.CommandLatency.WithLabelValues(d.transport, verb).
		Observe(float64(time.Since(start).Microseconds()) / 1000)
}

func (d *dispatcher) observeInvalid() {
	metrics.CommandsTotal.WithLabelValues(d.transport, invalidCommandLabel, metrics.FailLabel).Inc()
}

package chat

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chat-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chat-go/internal/network/session"
	"github.com/lk2023060901/danmu-chat-go/pkg/log"
	"github.com/lk2023060901/danmu-chat-go/pkg/util/merr"
)

// State 为流式会话的状态。
type State int32

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "Unauthenticated"
	case StateAuthenticated:
		return "Authenticated"
	case StateTerminated:
		return "Terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Worker 驱动一条流式连接上的会话状态机：
//
//	Unauthenticated --login--> Authenticated --exit--> Terminated
//
// 连接出错时从任意状态进入 Terminated，并注销已绑定的用户名。
// 登录后所有命令都以绑定的用户名为发送方。
// Worker 只在一个 goroutine 中运行，状态字段无需加锁。
type Worker struct {
	d        dispatcher
	binding  Binding
	sess     session.Session
	endpoint *streamEndpoint
	logger   *log.MLogger

	state    State
	username string
}

// NewWorker 为 sess 创建一个 Worker。
func NewWorker(registry *Registry, binding Binding, sess session.Session) *Worker {
	return &Worker{
		d:        dispatcher{registry: registry, transport: binding.Name()},
		binding:  binding,
		sess:     sess,
		endpoint: &streamEndpoint{sess: sess, binding: binding},
		logger:   log.Ctx(sess.Context()),
	}
}

// State 返回当前状态。
func (w *Worker) State() State {
	return w.state
}

// Username 返回绑定的用户名，未登录时为空。
func (w *Worker) Username() string {
	return w.username
}

// Run 循环读取并处理命令，直到客户端退出或连接出错。
// 客户端正常退出时返回 nil，否则返回导致会话结束的传输错误。
// 返回时 Worker 处于 StateTerminated，绑定的用户名已注销。
func (w *Worker) Run() error {
	defer w.terminate()

	for w.state != StateTerminated {
		raw, err := w.binding.ReadCommand(w.sess)
		if err != nil {
			if !errors.Is(err, codec.ErrMalformedFrame) {
				return err
			}
			w.d.observeInvalid()
			w.logger.RatedWarn(1, "malformed frame", zap.Error(err))
			if err := w.endpoint.Deliver(ServerMessage(InvalidCommandText)); err != nil {
				return err
			}
			continue
		}
		if err := w.Handle(raw); err != nil {
			return err
		}
	}
	return nil
}

// Handle 处理一条原始命令文本。
// 命令本身的失败会以回复告知客户端，只有回复无法写入时才返回错误。
func (w *Worker) Handle(raw string) error {
	cmd, err := ParseStream(raw)
	if err != nil {
		w.d.observeInvalid()
		w.logger.Debug("invalid command", zap.String("command", raw))
		return w.endpoint.Deliver(ServerMessage(InvalidCommandText))
	}

	start := time.Now()
	reply, err := w.dispatch(cmd)
	w.d.observe(cmd.Verb(), start, err)
	if err != nil {
		w.logger.Debug("command rejected", zap.String("command", cmd.Verb()), zap.Error(err))
	}
	if reply == nil {
		return nil
	}
	return w.endpoint.Deliver(*reply)
}

func (w *Worker) dispatch(cmd Command) (*Envelope, error) {
	if _, ok := cmd.(Login); !ok && w.state != StateAuthenticated {
		return serverReply(NotAuthenticatedText), merr.WrapErrNotAuthenticated(cmd.Verb())
	}

	switch c := cmd.(type) {
	case Login:
		if w.state == StateAuthenticated {
			return serverReply(AlreadyAuthenticatedText(w.username)), merr.WrapErrAlreadyAuthenticated(w.username)
		}
		reply, err := w.d.login(c.Username, w.endpoint)
		if err == nil {
			w.state = StateAuthenticated
			w.username = c.Username
			w.logger = w.logger.With(log.FieldUsername(c.Username))
			w.logger.Info("user logged in")
		}
		return reply, err
	case List:
		return w.d.list(w.username)
	case SendMessage:
		return w.d.send(w.username, c.To, c.Text)
	case Exit:
		reply, err := w.d.exit(w.username)
		w.username = ""
		if err != nil {
			w.state = StateUnauthenticated
			return reply, err
		}
		w.state = StateTerminated
		w.logger.Info("user logged out")
		return reply, nil
	default:
		panic(fmt.Sprintf("chat: unhandled command type %T", cmd))
	}
}

func (w *Worker) terminate() {
	if w.username != "" {
		if w.d.registry.Unregister(w.username) {
			w.logger.Info("user disconnected")
		}
		w.username = ""
	}
	w.state = StateTerminated
}

package chat

import (
	"strings"

	"github.com/lk2023060901/danmu-chat-go/pkg/util/merr"
)

const commandDelimiter = ":"

// 命令动词。
const (
	VerbLogin   = "login"
	VerbList    = "list"
	VerbMessage = "message"
	VerbExit    = "exit"
)

// Command 是客户端命令的封闭联合类型，只有本包内的 Login、List、SendMessage、Exit 实现它。
// 分发处使用 type switch 穷举。
type Command interface {
	// Verb 返回命令动词，同时用作指标的 command 标签。
	Verb() string

	isCommand()
}

// Login 请求以 Username 登录。
type Login struct {
	Username string
}

// List 请求当前在线用户列表。
// Sender 在流式连接上为空，由会话绑定的身份决定；在数据报中取自首个字段。
type List struct {
	Sender string
}

// SendMessage 请求把 Text 发送给 To。
type SendMessage struct {
	Sender string
	To     string
	Text   string
}

// Exit 请求退出登录。
type Exit struct {
	Sender string
}

func (Login) Verb() string       { return VerbLogin }
func (List) Verb() string        { return VerbList }
func (SendMessage) Verb() string { return VerbMessage }
func (Exit) Verb() string        { return VerbExit }

func (Login) isCommand()       {}
func (List) isCommand()        {}
func (SendMessage) isCommand() {}
func (Exit) isCommand()        {}

// splitCommand 按分隔符切分命令，并丢弃末尾的空字段。
// 因此 "login:" 只有一个字段，"message:bob:" 只有两个字段。
func splitCommand(raw string) []string {
	parts := strings.Split(raw, commandDelimiter)
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

// ParseStream 解析流式连接上的命令：
//
//	login:<username> | list | message:<to>:<text> | exit
//
// 字段数必须与动词严格匹配，否则返回 merr.ErrCommandInvalid。
func ParseStream(raw string) (Command, error) {
	parts := splitCommand(raw)
	if len(parts) == 0 {
		return nil, merr.WrapErrCommandInvalid(raw)
	}

	switch {
	case parts[0] == VerbLogin && len(parts) == 2:
		return Login{Username: parts[1]}, nil
	case parts[0] == VerbList && len(parts) == 1:
		return List{}, nil
	case parts[0] == VerbMessage && len(parts) == 3:
		return SendMessage{To: parts[1], Text: parts[2]}, nil
	case parts[0] == VerbExit && len(parts) == 1:
		return Exit{}, nil
	default:
		return nil, merr.WrapErrCommandInvalid(raw)
	}
}

// ParseDatagram 解析数据报中的命令。登录命令与流式连接相同，其余命令以发送方用户名开头：
//
//	login:<username> | <sender>:list | <sender>:message:<to>:<text> | <sender>:exit
func ParseDatagram(raw string) (Command, error) {
	parts := splitCommand(raw)
	if len(parts) == 0 {
		return nil, merr.WrapErrCommandInvalid(raw)
	}
	if parts[0] == VerbLogin && len(parts) == 2 {
		return Login{Username: parts[1]}, nil
	}
	if len(parts) < 2 {
		return nil, merr.WrapErrCommandInvalid(raw)
	}

	sender := parts[0]
	switch {
	case parts[1] == VerbList && len(parts) == 2:
		return List{Sender: sender}, nil
	case parts[1] == VerbMessage && len(parts) == 4:
		return SendMessage{Sender: sender, To: parts[2], Text: parts[3]}, nil
	case parts[1] == VerbExit && len(parts) == 2:
		return Exit{Sender: sender}, nil
	default:
		return nil, merr.WrapErrCommandInvalid(raw)
	}
}

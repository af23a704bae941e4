package chat

import "strings"

// Kind 区分出站消息的种类。
type Kind string

const (
	KindMessage Kind = "message"
	KindRoster  Kind = "roster"
)

// Envelope 是服务器发往客户端的一条消息，与具体传输无关。
// 对象流传输直接以 JSON 形式发送它，行协议与数据报通过 Line 渲染为文本。
type Envelope struct {
	Kind   Kind     `json:"kind"`
	Sender string   `json:"sender,omitempty"`
	Text   string   `json:"text,omitempty"`
	Roster []string `json:"roster,omitempty"`

	system bool
}

// ServerMessage 构造一条由服务器发出的文本回复。
func ServerMessage(text string) Envelope {
	return Envelope{Kind: KindMessage, Sender: ServerSender, Text: text, system: true}
}

// ChatMessage 构造一条从 from 转发来的聊天消息。
func ChatMessage(from, text string) Envelope {
	return Envelope{Kind: KindMessage, Sender: from, Text: text}
}

// RosterMessage 构造一条在线用户列表回复。
func RosterMessage(names []string) Envelope {
	return Envelope{Kind: KindRoster, Sender: ServerSender, Roster: names, system: true}
}

// IsSystem 表示该消息由服务器自身产生。
// 名为 "Server" 的用户发出的聊天消息不属于系统消息。
func (e Envelope) IsSystem() bool {
	return e.system
}

// Line 返回行协议下的文本形式：
//   - 服务器回复原样输出；
//   - 转发的聊天消息为 message:<from>:<text>；
//   - 在线用户列表以 ", " 连接。
func (e Envelope) Line() string {
	switch {
	case e.Kind == KindRoster:
		return strings.Join(e.Roster, RosterSeparator)
	case e.system:
		return e.Text
	default:
		return VerbMessage + commandDelimiter + e.Sender + commandDelimiter + e.Text
	}
}

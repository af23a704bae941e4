package serializer

import (
	"strings"

	"github.com/lk2023060901/danmu-chat-go/pkg/util/merr"
)

// Serializer 抽象了网络层“对象 <-> 字节流”的序列化能力。
//
// 调用方通过接口注入具体实现，对象流连接据此编解码信封。
type Serializer interface {
	// Marshal 将任意对象编码为字节序列。
	Marshal(v any) ([]byte, error)

	// Unmarshal 将字节序列解码到目标对象。
	//
	// v 通常为指针类型，用于接收解码结果。
	Unmarshal(data []byte, v any) error

	// Name 返回实现名称，与配置项中的取值一致。
	Name() string
}

const (
	NameSonic    = "sonic"
	NameJSONIter = "jsoniter"
)

// New 根据名称创建 Serializer，名称大小写不敏感，空字符串表示默认的 sonic。
func New(name string) (Serializer, error) {
	switch strings.ToLower(name) {
	case "", NameSonic:
		return SonicSerializer{}, nil
	case NameJSONIter:
		return NewJSONIterSerializer(), nil
	default:
		return nil, merr.WrapErrParameterInvalid("sonic|jsoniter", name, "unknown serializer")
	}
}

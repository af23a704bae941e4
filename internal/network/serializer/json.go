package serializer

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/lk2023060901/danmu-chat-go/internal/json"
)

// SonicSerializer 使用 internal/json（基于 bytedance/sonic）实现 JSON 编解码。
type SonicSerializer struct{}

// 编译期断言：确保 SonicSerializer 实现了 Serializer 接口。
var _ Serializer = SonicSerializer{}

func (SonicSerializer) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (SonicSerializer) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (SonicSerializer) Name() string {
	return NameSonic
}

// JSONIterSerializer 使用 json-iterator 的标准库兼容配置实现 JSON 编解码，
// 适用于 sonic 不支持的平台。
type JSONIterSerializer struct {
	api jsoniter.API
}

var _ Serializer = (*JSONIterSerializer)(nil)

func NewJSONIterSerializer() *JSONIterSerializer {
	return &JSONIterSerializer{
		api: jsoniter.ConfigCompatibleWithStandardLibrary,
	}
}

func (s *JSONIterSerializer) Marshal(v any) ([]byte, error) {
	return s.api.Marshal(v)
}

func (s *JSONIterSerializer) Unmarshal(data []byte, v any) error {
	return s.api.Unmarshal(data, v)
}

func (s *JSONIterSerializer) Name() string {
	return NameJSONIter
}

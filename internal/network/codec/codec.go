package codec

import (
	"bufio"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/danmu-chat-go/internal/network/compressor"
	"github.com/lk2023060901/danmu-chat-go/internal/network/framer"
	"github.com/lk2023060901/danmu-chat-go/internal/network/serializer"
)

// Codec 抽象了“从业务对象到网络帧，以及从网络帧回到业务对象”的完整编解码流程。
//
// 同一个 Codec 可被多个连接并发使用，连接级状态（bufio.Reader 等）由调用方持有。
type Codec interface {
	// Encode 将业务对象编码并写入到底层流。
	Encode(w io.Writer, msg any) error

	// Decode 从底层流中读取一帧，并解码到 msg 中，msg 通常为指针。
	Decode(r *bufio.Reader, msg any) error
}

// ErrMalformedFrame 标记帧边界完好但内容无法解码的错误，流本身仍然可用。
var ErrMalformedFrame = errors.New("codec: malformed frame")

// textCodec 直接以帧内容作为文本，不做序列化。
//
// Encode 接受 string、[]byte 与 fmt.Stringer；Decode 只接受 *string。
type textCodec struct {
	framer framer.Framer
}

var _ Codec = (*textCodec)(nil)

// NewText 创建一个文本 Codec，通常与 framer.LineFramer 搭配使用。
func NewText(f framer.Framer) (Codec, error) {
	if f == nil {
		return nil, errors.New("codec: framer is nil")
	}
	return &textCodec{framer: f}, nil
}

func (c *textCodec) Encode(w io.Writer, msg any) error {
	var frame []byte
	switch v := msg.(type) {
	case string:
		frame = []byte(v)
	case []byte:
		frame = v
	case fmt.Stringer:
		frame = []byte(v.String())
	default:
		return errors.Newf("codec: unsupported text message type %T", msg)
	}
	return c.framer.WriteFrame(w, frame)
}

func (c *textCodec) Decode(r *bufio.Reader, msg any) error {
	out, ok := msg.(*string)
	if !ok {
		return errors.Newf("codec: text message must decode into *string, got %T", msg)
	}
	frame, err := c.framer.ReadFrame(r)
	if err != nil {
		return err
	}
	*out = string(frame)
	return nil
}

// Options 用于构造对象 Codec 的依赖注入参数。
type Options struct {
	Framer     framer.Framer
	Serializer serializer.Serializer
	Compressor compressor.Compressor // 允许为 nil（内部会用 NopCompressor）

	// EnableCompression 为 true 时，序列化结果不小于 CompressThreshold 字节的消息会被压缩。
	EnableCompression bool
	CompressThreshold int
}

// 对象帧的第一个字节为标志位，其余为（可能被压缩的）序列化结果。
const (
	flagPlain      byte = 0
	flagCompressed byte = 1
)

// objectCodec 的 Pipeline：
//
//	Encode: msg --> serializer --> [compress?] --> flag|body --> framer.WriteFrame
//	Decode: framer.ReadFrame --> flag|body --> [decompress?] --> serializer --> msg
type objectCodec struct {
	framer     framer.Framer
	serializer serializer.Serializer
	compressor compressor.Compressor

	compress  bool
	threshold int
}

var _ Codec = (*objectCodec)(nil)

// New 创建一个对象 Codec。
func New(opts Options) (Codec, error) {
	if opts.Framer == nil {
		return nil, errors.New("codec: framer is nil")
	}
	if opts.Serializer == nil {
		return nil, errors.New("codec: serializer is nil")
	}

	c := &objectCodec{
		framer:     opts.Framer,
		serializer: opts.Serializer,
		compressor: opts.Compressor,
		compress:   opts.EnableCompression,
		threshold:  opts.CompressThreshold,
	}
	if c.compressor == nil {
		c.compressor = compressor.NopCompressor{}
	}
	return c, nil
}

// Encode 实现 Codec.Encode。
func (c *objectCodec) Encode(w io.Writer, msg any) error {
	if msg == nil {
		return errors.New("codec: msg is nil")
	}

	body, err := c.serializer.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "codec: marshal failed")
	}

	flag := flagPlain
	if c.compress && len(body) >= c.threshold {
		packet, err := c.compressor.Compress(nil, body)
		if err != nil {
			return errors.Wrap(err, "codec: compress failed")
		}
		body = packet
		flag = flagCompressed
	}

	frame := make([]byte, 0, len(body)+1)
	frame = append(frame, flag)
	frame = append(frame, body...)
	return c.framer.WriteFrame(w, frame)
}

// Decode 实现 Codec.Decode。
func (c *objectCodec) Decode(r *bufio.Reader, msg any) error {
	frame, err := c.framer.ReadFrame(r)
	if err != nil {
		return err
	}
	if len(frame) == 0 {
		return errors.Mark(errors.New("codec: empty frame"), ErrMalformedFrame)
	}

	flag, body := frame[0], frame[1:]
	switch flag {
	case flagPlain:
	case flagCompressed:
		if !c.compress {
			return errors.Mark(errors.New("codec: compressed payload but compression disabled"), ErrMalformedFrame)
		}
		body, err = c.compressor.Decompress(nil, body)
		if err != nil {
			return errors.Mark(errors.Wrap(err, "codec: decompress failed"), ErrMalformedFrame)
		}
	default:
		return errors.Mark(errors.Newf("codec: unknown frame flag %d", flag), ErrMalformedFrame)
	}

	if err := c.serializer.Unmarshal(body, msg); err != nil {
		return errors.Mark(errors.Wrap(err, "codec: unmarshal failed"), ErrMalformedFrame)
	}
	return nil
}

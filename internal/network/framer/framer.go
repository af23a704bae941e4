package framer

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/danmu-chat-go/pkg/util/merr"
)

// Framer 抽象了字节流上的分帧能力。
//
// 约定：
//   - 帧内容为不透明字节，序列化与压缩由上层 codec 负责；
//   - ReadFrame 返回的切片归调用方所有，不会被后续读取复用。
type Framer interface {
	// WriteFrame 将 frame 打包为一帧并写入到 w 中。
	WriteFrame(w io.Writer, frame []byte) error

	// ReadFrame 从 r 中读取一帧数据。
	ReadFrame(r *bufio.Reader) ([]byte, error)
}

const (
	defaultMaxFrameSize uint32 = 16 * 1024 * 1024 // 16MB
	defaultMaxLineSize  int    = 64 * 1024
)

// LengthPrefixedFramer 使用长度前缀（4 字节大端）作为帧边界。
// 适用于承载序列化对象的流式连接。
type LengthPrefixedFramer struct {
	// MaxFrameSize 为允许的最大帧大小，单位字节。
	// 为 0 时使用默认值 defaultMaxFrameSize。
	MaxFrameSize uint32
}

var _ Framer = (*LengthPrefixedFramer)(nil)

// NewLengthPrefixedFramer 创建一个长度前缀帧编码器。
// maxFrameSize 为 0 时使用默认值。
func NewLengthPrefixedFramer(maxFrameSize uint32) *LengthPrefixedFramer {
	if maxFrameSize == 0 {
		maxFrameSize = defaultMaxFrameSize
	}
	return &LengthPrefixedFramer{
		MaxFrameSize: maxFrameSize,
	}
}

// WriteFrame 写出长度前缀与帧内容。
func (f *LengthPrefixedFramer) WriteFrame(w io.Writer, frame []byte) error {
	length := uint64(len(frame))
	if length > uint64(f.effectiveMaxSize()) {
		return merr.WrapErrFrameTooLarge(length, uint64(f.effectiveMaxSize()))
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(length))

	if _, err := w.Write(header[:]); err != nil {
		return errors.Wrap(err, "framer: write header failed")
	}
	if length == 0 {
		return nil
	}
	if _, err := w.Write(frame); err != nil {
		return errors.Wrap(err, "framer: write body failed")
	}
	return nil
}

// ReadFrame 读取一帧数据；长度超过上限时返回 merr.ErrFrameTooLarge，此后流已不可用。
func (f *LengthPrefixedFramer) ReadFrame(r *bufio.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		// 帧边界上的 EOF 原样返回，表示对端正常关闭。
		if err == io.EOF {
			return nil, err
		}
		return nil, errors.Wrap(err, "framer: read header failed")
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > f.effectiveMaxSize() {
		return nil, merr.WrapErrFrameTooLarge(uint64(length), uint64(f.effectiveMaxSize()))
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(r, frame); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, errors.Wrap(err, "framer: read body failed")
	}
	return frame, nil
}

func (f *LengthPrefixedFramer) effectiveMaxSize() uint32 {
	if f == nil || f.MaxFrameSize == 0 {
		return defaultMaxFrameSize
	}
	return f.MaxFrameSize
}

// LineFramer 以换行符作为帧边界，读取时容忍 "\r\n"。
// 写出的帧内容中若包含换行，对端会将其视为多行。
type LineFramer struct {
	// MaxLineSize 为单行允许的最大字节数（不含行尾），为 0 时使用默认值。
	MaxLineSize int
}

var _ Framer = (*LineFramer)(nil)

// NewLineFramer 创建一个行帧编码器。
func NewLineFramer(maxLineSize int) *LineFramer {
	if maxLineSize <= 0 {
		maxLineSize = defaultMaxLineSize
	}
	return &LineFramer{
		MaxLineSize: maxLineSize,
	}
}

// WriteFrame 写出帧内容并追加 "\n"。
func (f *LineFramer) WriteFrame(w io.Writer, frame []byte) error {
	buf := make([]byte, 0, len(frame)+1)
	buf = append(buf, frame...)
	buf = append(buf, '\n')
	if _, err := w.Write(buf); err != nil {
		return errors.Wrap(err, "framer: write line failed")
	}
	return nil
}

// ReadFrame 读取一行，返回值不含行尾。
// 流在最后一行没有换行就结束时，返回该行，下一次读取返回 io.EOF。
func (f *LineFramer) ReadFrame(r *bufio.Reader) ([]byte, error) {
	limit := f.effectiveMaxSize()
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > limit+2 {
			return nil, merr.WrapErrFrameTooLarge(uint64(len(line)), uint64(limit))
		}

		switch {
		case err == nil:
			line = trimLineEnding(line)
			if len(line) > limit {
				return nil, merr.WrapErrFrameTooLarge(uint64(len(line)), uint64(limit))
			}
			return line, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err == io.EOF && len(line) > 0:
			return trimLineEnding(line), nil
		case err == io.EOF:
			return nil, err
		default:
			return nil, errors.Wrap(err, "framer: read line failed")
		}
	}
}

func (f *LineFramer) effectiveMaxSize() int {
	if f == nil || f.MaxLineSize <= 0 {
		return defaultMaxLineSize
	}
	return f.MaxLineSize
}

func trimLineEnding(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte{'\n'})
	return bytes.TrimSuffix(line, []byte{'\r'})
}

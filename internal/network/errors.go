package network

import (
	"io"
	"net"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/danmu-chat-go/pkg/util/merr"
)

// Stage 表示网络收发链路中的处理阶段。
//
// 主要用于在回调和日志中标记错误发生的位置，便于监控与排查。
type Stage string

const (
	StageAccept   Stage = "accept"   // 接受连接或读取数据报
	StageRecv     Stage = "recv"     // 从连接读取原始字节
	StageDecode   Stage = "decode"   // 原始字节 -> 入站消息
	StageDispatch Stage = "dispatch" // 入站消息 -> 业务处理
	StageEncode   Stage = "encode"   // 出站消息 -> 字节
	StageSend     Stage = "send"     // 字节写入连接
)

func (s Stage) String() string {
	return string(s)
}

// WrapError 将 stage 阶段发生的底层错误包装为 merr.ErrTransportFailure。
// err 为 nil 时返回 nil；原始错误保留在错误链上。
func WrapError(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return merr.WrapErrTransportFailure(stage.String(), err)
}

// IsClosed 判断 err 是否表示连接被正常关闭（对端 EOF 或本端已关闭）。
func IsClosed(err error) bool {
	return errors.IsAny(err, io.EOF, net.ErrClosed, io.ErrClosedPipe)
}

package network

import (
	"io"
	"net"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"

	"github.com/lk2023060901/danmu-chat-go/pkg/util/merr"
)

func TestWrapError(t *testing.T) {
	assert.NoError(t, WrapError(StageRecv, nil))

	err := WrapError(StageRecv, io.EOF)
	assert.ErrorIs(t, err, merr.ErrTransportFailure)
	assert.ErrorIs(t, err, io.EOF)
	assert.EqualValues(t, 500, merr.Code(err))
	assert.Contains(t, err.Error(), "stage=recv")
	assert.False(t, merr.IsRecoverable(err))
}

func TestIsClosed(t *testing.T) {
	assert.True(t, IsClosed(io.EOF))
	assert.True(t, IsClosed(errors.Wrap(net.ErrClosed, "read")))
	assert.True(t, IsClosed(WrapError(StageSend, io.ErrClosedPipe)))
	assert.False(t, IsClosed(io.ErrUnexpectedEOF))
	assert.False(t, IsClosed(nil))
}

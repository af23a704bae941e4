package serializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/danmu-chat-go/pkg/util/merr"
)

type request struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

func TestNew(t *testing.T) {
	s, err := New("")
	require.NoError(t, err)
	assert.Equal(t, NameSonic, s.Name())

	s, err = New("JSONIter")
	require.NoError(t, err)
	assert.Equal(t, NameJSONIter, s.Name())

	_, err = New("protobuf")
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)
}

func TestSerializersAgree(t *testing.T) {
	in := request{Sender: "alice1234", Content: "message:bobbob99:héllo: wörld"}
	for _, name := range []string{NameSonic, NameJSONIter} {
		s, err := New(name)
		require.NoError(t, err)

		data, err := s.Marshal(in)
		require.NoError(t, err, name)
		assert.JSONEq(t, `{"sender":"alice1234","content":"message:bobbob99:héllo: wörld"}`, string(data), name)

		var out request
		require.NoError(t, s.Unmarshal(data, &out), name)
		assert.Equal(t, in, out, name)

		assert.Error(t, s.Unmarshal([]byte(`{"sender":1`), &out), name)
	}
}

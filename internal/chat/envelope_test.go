package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/danmu-chat-go/internal/json"
)

func TestEnvelopeLine(t *testing.T) {
	assert.Equal(t, LogoutText, ServerMessage(LogoutText).Line())
	assert.Equal(t, "message:alice1234:hi there", ChatMessage("alice1234", "hi there").Line())
	assert.Equal(t, "alice1234, bobbob99", RosterMessage([]string{"alice1234", "bobbob99"}).Line())
	assert.Equal(t, "alice1234", RosterMessage([]string{"alice1234"}).Line())

	// 名为 Server 的用户发出的消息依然带有前缀。
	spoof := ChatMessage(ServerSender, "hello")
	assert.False(t, spoof.IsSystem())
	assert.Equal(t, "message:Server:hello", spoof.Line())
	assert.True(t, ServerMessage("x").IsSystem())
}

func TestEnvelopeJSON(t *testing.T) {
	data, err := json.Marshal(ChatMessage("alice1234", "hi"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"message","sender":"alice1234","text":"hi"}`, string(data))

	data, err = json.Marshal(RosterMessage([]string{"alice1234", "bobbob99"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"roster","sender":"Server","roster":["alice1234","bobbob99"]}`, string(data))

	var req Request
	require.NoError(t, json.Unmarshal([]byte(`{"sender":"alice1234","content":"list"}`), &req))
	assert.Equal(t, Request{Sender: "alice1234", Content: "list"}, req)
}

func TestReplyTexts(t *testing.T) {
	assert.Equal(t, "Username bobbob99 is taken. Please choose a different one.", UsernameTakenText("bobbob99"))
	assert.Equal(t, "ghost123 is not logged in.", RecipientNotFoundText("ghost123"))
	assert.Equal(t, "You are already logged in as alice1234.", AlreadyAuthenticatedText("alice1234"))
}
